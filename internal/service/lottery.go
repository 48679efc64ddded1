package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Shivanand-hulikatti/event-lottery/internal/model"
	"github.com/Shivanand-hulikatti/event-lottery/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Shuffler permutes ids in place, uniformly at random.
type Shuffler interface {
	Shuffle(ids []string)
}

// DrawResult is the outcome of a successful draw.
type DrawResult struct {
	EventID string
	Winners []string
	Losers  []string
}

// Response converts the result into its HTTP payload.
func (r *DrawResult) Response() model.DrawResponse {
	return model.DrawResponse{
		EventID:   r.EventID,
		Selected:  len(r.Winners),
		Remaining: len(r.Losers),
		Winners:   r.Winners,
	}
}

// LotteryDrawEngine moves a random subset of an event's waitlist to selected.
type LotteryDrawEngine struct {
	docs     repository.Documents
	shuffler Shuffler
	fanout   *NotificationFanout
	clock    func() time.Time
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewLotteryDrawEngine constructs a LotteryDrawEngine. fanout may be nil, in
// which case no draw notifications are sent.
func NewLotteryDrawEngine(docs repository.Documents, shuffler Shuffler, fanout *NotificationFanout, logger *slog.Logger) *LotteryDrawEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &LotteryDrawEngine{
		docs:     docs,
		shuffler: shuffler,
		fanout:   fanout,
		clock:    time.Now,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}
}

// RunDraw selects k winners from the event's waitlist. The draw succeeds as
// soon as the list write lands; notifications are sent in the background.
func (d *LotteryDrawEngine) RunDraw(ctx context.Context, eventID string, k int) (*DrawResult, error) {
	ctx, span := d.tracer.Start(ctx, "lottery.draw", trace.WithAttributes(
		attribute.String("event.id", eventID),
		attribute.Int("draw.k", k),
	))
	defer span.End()

	if k <= 0 {
		return nil, validationf("number to select must be greater than 0")
	}

	var (
		result = &DrawResult{EventID: eventID}
		event  *model.Event
		now    = d.clock()
	)
	err := repository.RunInTx(ctx, d.docs, func(ctx context.Context, docs repository.Documents) error {
		var err error
		event, err = repository.NewEventRepository(docs).Update(ctx, eventID, func(e *model.Event) error {
			pool := e.WaitlistEntrantIDs
			if len(pool) == 0 {
				return validationf("waiting list is empty")
			}
			if k > len(pool) {
				return validationf("cannot select %d entrants, only %d in waiting list", k, len(pool))
			}

			shuffled := slices.Clone(pool)
			d.shuffler.Shuffle(shuffled)
			result.Winners = slices.Clone(shuffled[:k])
			result.Losers = slices.Clone(shuffled[k:])

			moveToSelected(e, result.Winners)
			e.Status = model.EventStatusDrawn
			return nil
		})
		if err != nil {
			return err
		}
		return d.mirrorStatuses(ctx, docs, eventID, result, now)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	d.logger.Info("lottery draw completed",
		"event_id", eventID, "selected", len(result.Winners), "remaining", len(result.Losers))
	d.notify(ctx, event, result)
	return result, nil
}

// mirrorStatuses records Selected for winners and Waitlisted for losers on
// their user records. Outside a transaction failures are logged only; the
// reconciliation sweep repairs winners whose record was not updated.
func (d *LotteryDrawEngine) mirrorStatuses(ctx context.Context, docs repository.Documents, eventID string, result *DrawResult, now time.Time) error {
	transactional := repository.Transactional(d.docs)
	set := func(userID string, status model.Status) error {
		err := updateUser(ctx, docs, userID, func(u *model.User) error {
			u.AddRegistration(eventID, now)
			return u.SetRegistrationStatus(eventID, status, now)
		})
		if err == nil {
			return nil
		}
		if transactional {
			return fmt.Errorf("mark %s %s: %w", userID, status, err)
		}
		d.logger.Warn("draw status mirror failed", "event_id", eventID, "entrant_id", userID, "status", status, "error", err)
		return nil
	}
	for _, id := range result.Winners {
		if err := set(id, model.StatusSelected); err != nil {
			return err
		}
	}
	for _, id := range result.Losers {
		if err := set(id, model.StatusWaitlisted); err != nil {
			return err
		}
	}
	return nil
}

func (d *LotteryDrawEngine) notify(ctx context.Context, event *model.Event, result *DrawResult) {
	if d.fanout == nil || event == nil {
		return
	}
	logDone := func(kind string) func(FanoutResult) {
		return func(r FanoutResult) {
			if !r.OK() {
				d.logger.Warn("draw notifications incomplete", "event_id", event.ID, "kind", kind, "status", r.Status())
			}
		}
	}
	d.fanout.SendToMany(ctx, result.Winners, Message{
		Title:      "Lottery Win",
		Body:       fmt.Sprintf("Congratulations! You have been selected in the lottery draw for %s.", event.Name),
		EventID:    event.ID,
		EventTitle: event.Name,
	}, logDone("win"))
	d.fanout.SendToMany(ctx, result.Losers, Message{
		Title:      "Lottery Result",
		Body:       fmt.Sprintf("Unfortunately, you were not selected in the lottery draw for %s. You remain on the waiting list.", event.Name),
		EventID:    event.ID,
		EventTitle: event.Name,
	}, logDone("result"))
}
