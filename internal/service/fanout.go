package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Shivanand-hulikatti/event-lottery/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/Shivanand-hulikatti/event-lottery/internal/service"

// NotificationSink appends one notification to a recipient's inbox.
type NotificationSink interface {
	Create(ctx context.Context, n *model.Notification) error
}

// Message is the content sent to every recipient of a fan-out.
type Message struct {
	Title      string
	Body       string
	EventID    string
	EventTitle string
}

// FanoutResult aggregates per-recipient delivery outcomes.
type FanoutResult struct {
	Total     int
	Succeeded int
	Failed    int
}

// OK reports full success.
func (r FanoutResult) OK() bool { return r.Failed == 0 }

// PartialFailure reports that some, but not all, deliveries failed.
func (r FanoutResult) PartialFailure() bool { return r.Failed > 0 && r.Succeeded > 0 }

// Status renders the outcome the way organizers see it.
func (r FanoutResult) Status() string {
	switch {
	case r.Failed == 0:
		return fmt.Sprintf("All notifications sent. %d sent", r.Succeeded)
	case r.Succeeded > 0:
		return fmt.Sprintf("Some notifications failed. %d sent, %d failed", r.Succeeded, r.Failed)
	default:
		return "All notifications failed"
	}
}

// Response converts the result into its HTTP payload.
func (r FanoutResult) Response() model.NotifyResponse {
	return model.NotifyResponse{Total: r.Total, Succeeded: r.Succeeded, Failed: r.Failed, Status: r.Status()}
}

// NotificationFanout dispatches one notification per recipient with bounded
// concurrency and reports the aggregate once every dispatch has finished.
type NotificationFanout struct {
	sink        NotificationSink
	concurrency int
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewNotificationFanout constructs a NotificationFanout. concurrency < 1 means 1.
func NewNotificationFanout(sink NotificationSink, concurrency int, logger *slog.Logger) *NotificationFanout {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationFanout{
		sink:        sink,
		concurrency: concurrency,
		logger:      logger,
		tracer:      otel.Tracer(tracerName),
	}
}

// SendToMany starts delivery in the background and returns immediately.
// done, when non-nil, is invoked exactly once after all recipients have
// either succeeded or failed. Delivery outlives ctx cancellation.
func (f *NotificationFanout) SendToMany(ctx context.Context, recipients []string, msg Message, done func(FanoutResult)) {
	ctx = context.WithoutCancel(ctx)
	go f.dispatch(ctx, recipients, msg, done)
}

// SendToManyWait delivers to every recipient and returns the aggregate.
func (f *NotificationFanout) SendToManyWait(ctx context.Context, recipients []string, msg Message) FanoutResult {
	var result FanoutResult
	f.dispatch(ctx, recipients, msg, func(r FanoutResult) { result = r })
	return result
}

func (f *NotificationFanout) dispatch(ctx context.Context, recipients []string, msg Message, done func(FanoutResult)) {
	ctx, span := f.tracer.Start(ctx, "notification.fanout", trace.WithAttributes(
		attribute.String("event.id", msg.EventID),
		attribute.Int("recipients", len(recipients)),
	))
	defer span.End()

	total := int64(len(recipients))
	var succeeded, failed atomic.Int64
	var once sync.Once
	finish := func() {
		once.Do(func() {
			if done != nil {
				done(FanoutResult{Total: int(total), Succeeded: int(succeeded.Load()), Failed: int(failed.Load())})
			}
		})
	}
	if total == 0 {
		finish()
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for _, recipient := range recipients {
		g.Go(func() error {
			err := f.deliver(gctx, recipient, msg)
			if err != nil {
				failed.Add(1)
				f.logger.Warn("notification delivery failed",
					"recipient_id", recipient, "event_id", msg.EventID, "title", msg.Title, "error", err)
			} else {
				succeeded.Add(1)
			}
			if succeeded.Load()+failed.Load() == total {
				finish()
			}
			// Per-recipient failures never cancel the rest of the batch.
			return nil
		})
	}
	_ = g.Wait()
	finish()
}

func (f *NotificationFanout) deliver(ctx context.Context, recipient string, msg Message) error {
	if f.sink == nil {
		return fmt.Errorf("notification sink is not configured")
	}
	return f.sink.Create(ctx, &model.Notification{
		RecipientID: recipient,
		Title:       msg.Title,
		Message:     msg.Body,
		EventID:     msg.EventID,
		EventTitle:  msg.EventTitle,
	})
}
