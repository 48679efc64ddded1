package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-lottery/internal/model"
	"github.com/Shivanand-hulikatti/event-lottery/internal/repository"
)

var testNow = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedEvent stores an event whose registration window contains testNow.
func seedEvent(t *testing.T, docs repository.Documents, waitlist ...string) *model.Event {
	t.Helper()
	event := &model.Event{
		Name:               "Spring Gala",
		Location:           "Hall A",
		EventDateTime:      testNow.Add(30 * 24 * time.Hour),
		RegistrationStart:  testNow.Add(-24 * time.Hour),
		RegistrationEnd:    testNow.Add(24 * time.Hour),
		MaxEntrants:        10,
		Status:             model.EventStatusOpen,
		WaitlistEntrantIDs: slices.Clone(waitlist),
	}
	if err := repository.NewEventRepository(docs).Create(context.Background(), event); err != nil {
		t.Fatalf("seed event: %v", err)
	}
	return event
}

func mustEvent(t *testing.T, docs repository.Documents, id string) *model.Event {
	t.Helper()
	event, err := repository.NewEventRepository(docs).Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get event %s: %v", id, err)
	}
	return event
}

func mustRegistration(t *testing.T, docs repository.Documents, userID, eventID string) model.RegisteredEvent {
	t.Helper()
	user, err := repository.NewUserRepository(docs).Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("get user %s: %v", userID, err)
	}
	reg, ok := user.Registration(eventID)
	if !ok {
		t.Fatalf("user %s has no registration for %s", userID, eventID)
	}
	return reg
}

func entrantIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("u%d", i+1)
	}
	return ids
}

// identityShuffler leaves the order untouched so draws are predictable.
type identityShuffler struct{}

func (identityShuffler) Shuffle([]string) {}

// recordingSink collects notifications and fails for listed recipients.
type recordingSink struct {
	mu      sync.Mutex
	failFor map[string]bool
	sent    []model.Notification
}

func (s *recordingSink) Create(ctx context.Context, n *model.Notification) error {
	if s.failFor[n.RecipientID] {
		return errors.New("delivery refused")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, *n)
	return nil
}

func (s *recordingSink) byTitle(title string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, n := range s.sent {
		if n.Title == title {
			ids = append(ids, n.RecipientID)
		}
	}
	slices.Sort(ids)
	return ids
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// faultyDocuments fails writes to one collection when armed.
type faultyDocuments struct {
	*repository.MemoryDocuments
	mu            sync.Mutex
	failReplaceIn string
}

func (f *faultyDocuments) Replace(ctx context.Context, collection, id string, doc any) error {
	f.mu.Lock()
	fail := f.failReplaceIn == collection
	f.mu.Unlock()
	if fail {
		return fmt.Errorf("replace %s/%s: store unavailable", collection, id)
	}
	return f.MemoryDocuments.Replace(ctx, collection, id, doc)
}

func (f *faultyDocuments) failWrites(collection string) {
	f.mu.Lock()
	f.failReplaceIn = collection
	f.mu.Unlock()
}

// stagingDocuments is a transactional memory store. Writes made inside InTx
// are buffered and applied only when fn succeeds, so a failing write rolls
// back everything before it. Reads inside a transaction are recorded in
// order to check lock ordering.
type stagingDocuments struct {
	*faultyDocuments

	mu        sync.Mutex
	commits   int
	rollbacks int
	reads     [][]string
}

func newStagingDocuments() *stagingDocuments {
	return &stagingDocuments{faultyDocuments: &faultyDocuments{MemoryDocuments: repository.NewMemoryDocuments()}}
}

func (s *stagingDocuments) InTx(ctx context.Context, fn func(ctx context.Context, docs repository.Documents) error) error {
	tx := &stagedTx{base: s.faultyDocuments, writes: make(map[stagedKey][]byte)}
	err := fn(ctx, tx)

	s.mu.Lock()
	s.reads = append(s.reads, tx.reads)
	if err != nil {
		s.rollbacks++
	} else {
		s.commits++
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	for _, key := range tx.order {
		if err := s.MemoryDocuments.Replace(ctx, key.collection, key.id, json.RawMessage(tx.writes[key])); err != nil {
			return err
		}
	}
	return nil
}

func (s *stagingDocuments) counts() (commits, rollbacks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits, s.rollbacks
}

// lastReads returns the collections read, in order, by the most recent transaction.
func (s *stagingDocuments) lastReads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.reads) == 0 {
		return nil
	}
	return slices.Clone(s.reads[len(s.reads)-1])
}

type stagedKey struct {
	collection string
	id         string
}

type stagedTx struct {
	base   *faultyDocuments
	writes map[stagedKey][]byte
	order  []stagedKey
	reads  []string
}

func (t *stagedTx) Get(ctx context.Context, collection, id string, dst any) error {
	t.reads = append(t.reads, collection)
	if body, ok := t.writes[stagedKey{collection, id}]; ok {
		return json.Unmarshal(body, dst)
	}
	return t.base.Get(ctx, collection, id, dst)
}

func (t *stagedTx) Replace(ctx context.Context, collection, id string, doc any) error {
	t.base.mu.Lock()
	fail := t.base.failReplaceIn == collection
	t.base.mu.Unlock()
	if fail {
		return fmt.Errorf("replace %s/%s: store unavailable", collection, id)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	key := stagedKey{collection, id}
	if _, ok := t.writes[key]; !ok {
		t.order = append(t.order, key)
	}
	t.writes[key] = body
	return nil
}

func (t *stagedTx) Create(ctx context.Context, collection string, doc any) (string, error) {
	return t.base.Create(ctx, collection, doc)
}

func (t *stagedTx) List(ctx context.Context, collection string) ([]json.RawMessage, error) {
	return t.base.List(ctx, collection)
}
