package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/event-lottery/internal/model"
	"github.com/Shivanand-hulikatti/event-lottery/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultSyncBackoff is the fixed wait between failed sync attempts.
const DefaultSyncBackoff = 60 * time.Second

// DefaultSyncIdleTimeout is how long a clean record keeps its worker.
const DefaultSyncIdleTimeout = 10 * time.Minute

// Record is a profile record the sync controller can reconcile with the
// remote store.
type Record[T any] interface {
	*T
	SyncID() string
	MergeRemote(remote *T)
	MarkClean()
	Clone() T
}

// RemoteStore is the document store view used by the sync controller.
type RemoteStore[T any] interface {
	Get(ctx context.Context, id string) (*T, error)
	Replace(ctx context.Context, record *T) error
}

// SyncEvent reports the outcome of one sync attempt. Err is nil on success.
type SyncEvent struct {
	ID        string
	Attempt   int
	Existence model.Existence
	Err       error
}

// SyncOptions tunes a Controller.
type SyncOptions struct {
	Backoff time.Duration
	// IdleTimeout retires a record's worker once it has been clean and
	// untouched this long. Later reads fall through to the remote store.
	IdleTimeout time.Duration
	Logger      *slog.Logger
	// Wait blocks for d or until ctx ends. Defaults to a timer.
	Wait func(ctx context.Context, d time.Duration) error
}

// Controller keeps local records eventually consistent with a remote store.
// Each record has its own worker so exactly one attempt per record is in
// flight; attempts retry with a fixed backoff until they succeed or the
// controller is closed.
type Controller[T any, P Record[T]] struct {
	store     RemoteStore[T]
	newRecord func(id string) T
	backoff   time.Duration
	idle      time.Duration
	wait      func(ctx context.Context, d time.Duration) error
	logger    *slog.Logger
	tracer    trace.Tracer
	events    chan SyncEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	handles map[string]*syncHandle[T]
}

type syncHandle[T any] struct {
	mu        sync.Mutex
	local     T
	version   uint64
	written   uint64
	existence model.Existence
	kick      chan struct{}
	retired   bool
}

// NewController constructs a Controller whose workers live until Close.
// newRecord builds an empty local record for an id seen for the first time.
func NewController[T any, P Record[T]](store RemoteStore[T], newRecord func(id string) T, opts SyncOptions) *Controller[T, P] {
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultSyncBackoff
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultSyncIdleTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Wait == nil {
		opts.Wait = sleepContext
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller[T, P]{
		store:     store,
		newRecord: newRecord,
		backoff:   opts.Backoff,
		idle:      opts.IdleTimeout,
		wait:      opts.Wait,
		logger:    opts.Logger,
		tracer:    otel.Tracer(tracerName),
		events:    make(chan SyncEvent, 64),
		ctx:       ctx,
		cancel:    cancel,
		handles:   make(map[string]*syncHandle[T]),
	}
}

// Events delivers sync outcomes. Delivery never blocks the controller;
// events are dropped when nobody is reading.
func (c *Controller[T, P]) Events() <-chan SyncEvent { return c.events }

// UpdateRecord replaces the local copy of record and schedules a sync.
func (c *Controller[T, P]) UpdateRecord(record P) {
	snapshot := record.Clone()
	c.Edit(record.SyncID(), func(local P) { *local = snapshot })
}

// Edit applies fn to the local copy of id and schedules a sync.
func (c *Controller[T, P]) Edit(id string, fn func(P)) {
	for {
		h := c.handle(id)
		h.mu.Lock()
		if h.retired {
			// Lost a race with retirement; the next handle starts fresh.
			h.mu.Unlock()
			continue
		}
		fn(P(&h.local))
		h.version++
		h.mu.Unlock()

		select {
		case h.kick <- struct{}{}:
		default:
		}
		return
	}
}

// Snapshot returns a copy of the local record and its existence state.
func (c *Controller[T, P]) Snapshot(id string) (T, model.Existence, bool) {
	c.mu.Lock()
	h, ok := c.handles[id]
	c.mu.Unlock()
	if !ok {
		var zero T
		return zero, model.ExistenceUnknown, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.retired {
		var zero T
		return zero, model.ExistenceUnknown, false
	}
	return P(&h.local).Clone(), h.existence, true
}

// Len reports how many records currently have a live worker.
func (c *Controller[T, P]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

// Close stops every worker and waits for them to exit.
func (c *Controller[T, P]) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Controller[T, P]) handle(id string) *syncHandle[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.handles[id]; ok {
		return h
	}
	h := &syncHandle[T]{
		local:     c.newRecord(id),
		existence: model.ExistenceUnknown,
		kick:      make(chan struct{}, 1),
	}
	c.handles[id] = h
	c.wg.Add(1)
	go c.work(id, h)
	return h
}

func (c *Controller[T, P]) work(id string, h *syncHandle[T]) {
	defer c.wg.Done()
	idle := time.NewTimer(c.idle)
	defer idle.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-h.kick:
			c.syncUntilClean(id, h)
		case <-idle.C:
			if c.retire(id, h) {
				return
			}
		}
		idle.Reset(c.idle)
	}
}

// retire drops a clean handle so its worker can exit. A handle with unsynced
// edits is kept.
func (c *Controller[T, P]) retire(id string, h *syncHandle[T]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.written != h.version || h.existence != model.ExistenceExistent || len(h.kick) > 0 {
		return false
	}
	h.retired = true
	if c.handles[id] == h {
		delete(c.handles, id)
	}
	return true
}

// syncUntilClean runs attempts until one writes the latest local version.
func (c *Controller[T, P]) syncUntilClean(id string, h *syncHandle[T]) {
	h.mu.Lock()
	clean := h.written == h.version && h.existence == model.ExistenceExistent
	h.mu.Unlock()
	if clean {
		return
	}
	for attempt := 1; ; attempt++ {
		done, err := c.attempt(id, h, attempt)
		if err == nil && done {
			return
		}
		if err == nil {
			// A newer edit arrived while writing; go again without waiting.
			continue
		}
		if c.ctx.Err() != nil {
			return
		}
		c.logger.Warn("profile sync attempt failed", "record_id", id, "attempt", attempt, "backoff", c.backoff, "error", err)
		if werr := c.wait(c.ctx, c.backoff); werr != nil {
			return
		}
	}
}

// attempt performs one fetch-then-upsert cycle. It returns done=true when the
// write matched the newest local version.
func (c *Controller[T, P]) attempt(id string, h *syncHandle[T], n int) (done bool, err error) {
	ctx, span := c.tracer.Start(c.ctx, "profilesync.attempt", trace.WithAttributes(
		attribute.String("record.id", id),
		attribute.Int("attempt", n),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	h.mu.Lock()
	state := h.existence
	h.mu.Unlock()

	if state == model.ExistenceUnknown {
		remote, err := c.store.Get(ctx, id)
		switch {
		case err == nil:
			h.mu.Lock()
			P(&h.local).MergeRemote(remote)
			h.existence = model.ExistenceExistent
			h.mu.Unlock()
		case errors.Is(err, repository.ErrNotFound):
			c.setExistence(h, model.ExistenceNonexistent)
		default:
			c.emit(SyncEvent{ID: id, Attempt: n, Existence: model.ExistenceUnknown, Err: err})
			return false, err
		}
	}

	h.mu.Lock()
	snapshot := P(&h.local).Clone()
	version := h.version
	h.mu.Unlock()

	if err := c.store.Replace(ctx, &snapshot); err != nil {
		// A failed write leaves existence ambiguous; re-check next time.
		c.setExistence(h, model.ExistenceUnknown)
		c.emit(SyncEvent{ID: id, Attempt: n, Existence: model.ExistenceUnknown, Err: err})
		return false, err
	}

	h.mu.Lock()
	h.existence = model.ExistenceExistent
	current := h.version == version
	if current {
		h.written = version
		P(&h.local).MarkClean()
	}
	h.mu.Unlock()

	if current {
		c.emit(SyncEvent{ID: id, Attempt: n, Existence: model.ExistenceExistent})
	}
	return current, nil
}

func (c *Controller[T, P]) setExistence(h *syncHandle[T], state model.Existence) {
	h.mu.Lock()
	h.existence = state
	h.mu.Unlock()
}

func (c *Controller[T, P]) emit(ev SyncEvent) {
	select {
	case c.events <- ev:
	default:
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// UserProfileStore upserts user profiles without clobbering registrations,
// which the entrant and RSVP services own on the remote record.
type UserProfileStore struct {
	users repository.UserRepository
}

// NewUserProfileStore constructs a UserProfileStore.
func NewUserProfileStore(docs repository.Documents) UserProfileStore {
	return UserProfileStore{users: repository.NewUserRepository(docs)}
}

func (s UserProfileStore) Get(ctx context.Context, id string) (*model.User, error) {
	return s.users.Get(ctx, id)
}

// Replace writes the profile scalars and adopts registrations only known locally.
func (s UserProfileStore) Replace(ctx context.Context, user *model.User) error {
	_, err := s.users.Update(ctx, user.ID, func(remote *model.User) error {
		remote.Name = user.Name
		remote.Email = user.Email
		remote.Phone = user.Phone
		remote.Type = user.Type
		remote.AdoptRegistrations(user.RegisteredEvents)
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return s.users.Replace(ctx, user)
	}
	return err
}

// OrganizerStore upserts organizer records, unioning event ids.
type OrganizerStore struct {
	organizers repository.OrganizerRepository
}

// NewOrganizerStore constructs an OrganizerStore.
func NewOrganizerStore(docs repository.Documents) OrganizerStore {
	return OrganizerStore{organizers: repository.NewOrganizerRepository(docs)}
}

func (s OrganizerStore) Get(ctx context.Context, id string) (*model.Organizer, error) {
	return s.organizers.Get(ctx, id)
}

func (s OrganizerStore) Replace(ctx context.Context, organizer *model.Organizer) error {
	_, err := s.organizers.Update(ctx, organizer.ID, func(remote *model.Organizer) error {
		remote.MergeRemote(organizer)
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return s.organizers.Replace(ctx, organizer)
	}
	return err
}

// UserSync and OrganizerSync are the controllers wired into the service.
type (
	UserSync      = Controller[model.User, *model.User]
	OrganizerSync = Controller[model.Organizer, *model.Organizer]
)
