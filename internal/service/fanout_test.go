package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSendToManyPartialFailure(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{failFor: map[string]bool{"b": true}}
	fanout := NewNotificationFanout(sink, 3, discardLogger())

	var calls atomic.Int32
	results := make(chan FanoutResult, 4)
	fanout.SendToMany(context.Background(), []string{"a", "b", "c"}, Message{Title: "Event Update", Body: "hi"}, func(r FanoutResult) {
		calls.Add(1)
		results <- r
	})

	var got FanoutResult
	select {
	case got = <-results:
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback never fired")
	}
	if got.Total != 3 || got.Succeeded != 2 || got.Failed != 1 {
		t.Fatalf("result = %+v", got)
	}
	if !got.PartialFailure() || got.OK() {
		t.Fatalf("expected partial failure, got %+v", got)
	}
	if got.Status() != "Some notifications failed. 2 sent, 1 failed" {
		t.Fatalf("status = %q", got.Status())
	}

	time.Sleep(50 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Fatalf("callback invoked %d times", n)
	}
}

func TestSendToManyWaitOutcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		recipients []string
		failFor    map[string]bool
		want       FanoutResult
		status     string
	}{
		{
			name:       "all sent",
			recipients: []string{"a", "b"},
			want:       FanoutResult{Total: 2, Succeeded: 2},
			status:     "All notifications sent. 2 sent",
		},
		{
			name:       "all failed",
			recipients: []string{"a", "b"},
			failFor:    map[string]bool{"a": true, "b": true},
			want:       FanoutResult{Total: 2, Failed: 2},
			status:     "All notifications failed",
		},
		{
			name:   "no recipients",
			want:   FanoutResult{},
			status: "All notifications sent. 0 sent",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			sink := &recordingSink{failFor: tc.failFor}
			got := NewNotificationFanout(sink, 2, discardLogger()).SendToManyWait(context.Background(), tc.recipients, Message{Title: "t", Body: "b"})
			if got != tc.want {
				t.Fatalf("result = %+v, want %+v", got, tc.want)
			}
			if got.Status() != tc.status {
				t.Fatalf("status = %q, want %q", got.Status(), tc.status)
			}
		})
	}
}

func TestSendToManyCallbackOnceUnderLoad(t *testing.T) {
	t.Parallel()

	recipients := entrantIDs(200)
	failFor := map[string]bool{}
	for i, id := range recipients {
		if i%3 == 0 {
			failFor[id] = true
		}
	}
	sink := &recordingSink{failFor: failFor}
	fanout := NewNotificationFanout(sink, 16, discardLogger())

	var calls atomic.Int32
	var last atomic.Value
	got := fanout.SendToManyWait(context.Background(), recipients, Message{Title: "t", Body: "b"})
	fanout.dispatch(context.Background(), recipients, Message{Title: "t", Body: "b"}, func(r FanoutResult) {
		calls.Add(1)
		last.Store(r)
	})

	if calls.Load() != 1 {
		t.Fatalf("callback invoked %d times", calls.Load())
	}
	if got.Succeeded+got.Failed != 200 || got.Failed != len(failFor) {
		t.Fatalf("result = %+v", got)
	}
	if last.Load().(FanoutResult) != got {
		t.Fatalf("results differ between runs: %+v vs %+v", last.Load(), got)
	}
}

func TestFanoutDeliversMessageFields(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	NewNotificationFanout(sink, 0, discardLogger()).SendToManyWait(context.Background(), []string{"u1"}, Message{
		Title: "Event Update", Body: "Doors open at 6", EventID: "e1", EventTitle: "Gala",
	})
	if sink.count() != 1 {
		t.Fatalf("sent %d", sink.count())
	}
	n := sink.sent[0]
	if n.RecipientID != "u1" || n.Message != "Doors open at 6" || n.EventID != "e1" || n.EventTitle != "Gala" {
		t.Fatalf("notification = %+v", n)
	}
}
