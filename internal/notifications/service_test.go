package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"transmute/internal/config"
	"transmute/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventJobFailed, notifications.Payload{"input": "a.md"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func captureServer(t *testing.T) (*httptest.Server, func() []captured) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []captured
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		mu.Lock()
		seen = append(seen, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), seen...)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name    string
		event   notifications.Event
		payload notifications.Payload
		want    captured
	}{
		{
			name:    "job completed",
			event:   notifications.EventJobCompleted,
			payload: notifications.Payload{"input": "notes.md", "output": "notes.pdf", "route": "md -> html -> pdf"},
			want: captured{
				title: "Transmute - Converted",
				body:  "✅ Converted: notes.md -> notes.pdf\nRoute: md -> html -> pdf",
				tags:  "transmute,job,completed",
			},
		},
		{
			name:    "job failed",
			event:   notifications.EventJobFailed,
			payload: notifications.Payload{"input": "clip.mov", "error": "ffmpeg exited with status 1"},
			want: captured{
				title:    "Transmute - Conversion Failed",
				body:     "❌ Conversion failed: clip.mov: ffmpeg exited with status 1",
				tags:     "transmute,job,failed",
				priority: "high",
			},
		},
		{
			name:    "batch completed",
			event:   notifications.EventBatchCompleted,
			payload: notifications.Payload{"total": 3, "succeeded": 3, "failed": 0, "duration": 61 * time.Second},
			want: captured{
				title: "Transmute - Batch Complete",
				body:  "Batch complete: 3 files converted in 1m1s",
				tags:  "transmute,batch,completed",
			},
		},
		{
			name:    "batch with failures",
			event:   notifications.EventBatchCompleted,
			payload: notifications.Payload{"total": 3, "succeeded": 2, "failed": 1, "duration": 1500 * time.Millisecond},
			want: captured{
				title: "Transmute - Batch Complete (with errors)",
				body:  "Batch complete: 2 succeeded, 1 failed in 2s",
				tags:  "transmute,batch,completed",
			},
		},
		{
			name:  "test",
			event: notifications.EventTest,
			want: captured{
				title:    "Transmute - Test",
				body:     "🧪 Notification system test",
				tags:     "transmute,test",
				priority: "low",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, seen := captureServer(t)
			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}
			got := seen()
			if len(got) != 1 {
				t.Fatalf("expected 1 request, got %d", len(got))
			}
			if got[0] != tc.want {
				t.Fatalf("unexpected notification\n got: %+v\nwant: %+v", got[0], tc.want)
			}
		})
	}
}

func TestNtfyServiceHonoursToggles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.Header.Get("Title"))
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.JobCompleted = false
	svc := notifications.NewService(&cfg)

	for _, event := range []notifications.Event{notifications.EventJobCompleted, notifications.Event("unknown")} {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"input": "ignored"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	err := notifications.NewService(&cfg).Publish(context.Background(), notifications.EventTest, nil)
	if err == nil {
		t.Fatal("expected error for 503 response")
	}
}
