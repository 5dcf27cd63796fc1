package notifications_test

import (
	"context"
	"testing"
	"time"

	"transmute/internal/codec"
	"transmute/internal/jobs"
	"transmute/internal/logging"
	"transmute/internal/notifications"
)

type fakeSource struct {
	fn func(jobs.Event)
}

func (f *fakeSource) Subscribe(_ string, fn func(jobs.Event)) jobs.Subscription {
	f.fn = fn
	return jobs.Subscription{Target: jobs.AllJobs}
}

func (f *fakeSource) Unsubscribe(jobs.Subscription) bool { return true }

type published struct {
	event   notifications.Event
	payload notifications.Payload
}

type recordingService struct {
	calls []published
}

func (r *recordingService) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.calls = append(r.calls, published{event: event, payload: payload})
	return nil
}

func TestForwardTranslatesManagerEvents(t *testing.T) {
	source := &fakeSource{}
	svc := &recordingService{}
	stop := notifications.Forward(source, svc, time.Second, logging.NewNop())
	defer stop()

	done := &jobs.Job{
		ID:     "j1",
		Input:  codec.Descriptor{Path: "/in/book.epub"},
		Output: &codec.Descriptor{Path: "/out/book.mobi"},
		Status: jobs.StatusCompleted,
	}
	failed := &jobs.Job{ID: "j2", Input: codec.Descriptor{Path: "/in/x.mov"}, Status: jobs.StatusFailed, Error: "boom"}
	inBatch := &jobs.Job{ID: "j3", BatchID: "b1", Input: codec.Descriptor{Path: "/in/y.mov"}, Status: jobs.StatusFailed}
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	batch := &jobs.Batch{
		ID:        "b1",
		Total:     2,
		Completed: 2,
		Results:   []jobs.Job{*done, *inBatch},
		Status:    jobs.BatchCompleted,
		CreatedAt: created,
		EndedAt:   created.Add(time.Minute),
	}

	source.fn(jobs.Event{Type: jobs.EventStarted, Job: done})
	source.fn(jobs.Event{Type: jobs.EventCompleted, Job: done})
	source.fn(jobs.Event{Type: jobs.EventFailed, Job: failed})
	source.fn(jobs.Event{Type: jobs.EventFailed, Job: inBatch})
	source.fn(jobs.Event{Type: jobs.EventCancelled, Job: failed})
	source.fn(jobs.Event{Type: jobs.EventBatchProgress, Batch: batch})
	source.fn(jobs.Event{Type: jobs.EventBatchCompleted, Batch: batch})

	want := []notifications.Event{notifications.EventJobCompleted, notifications.EventJobFailed, notifications.EventBatchCompleted}
	if len(svc.calls) != len(want) {
		t.Fatalf("got %d notifications, want %d: %+v", len(svc.calls), len(want), svc.calls)
	}
	for i, ev := range want {
		if svc.calls[i].event != ev {
			t.Fatalf("notification %d = %s, want %s", i, svc.calls[i].event, ev)
		}
	}
	if svc.calls[0].payload["output"] != "book.mobi" {
		t.Fatalf("unexpected completion payload %+v", svc.calls[0].payload)
	}
	last := svc.calls[2].payload
	if last["succeeded"] != 1 || last["failed"] != 1 || last["duration"] != time.Minute {
		t.Fatalf("unexpected batch payload %+v", last)
	}
}
