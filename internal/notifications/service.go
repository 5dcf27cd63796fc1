package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"transmute/internal/config"
)

const userAgent = "Transmute-Go/0.1.0"

// Event names a notification type.
type Event string

const (
	EventJobCompleted   Event = "job_completed"
	EventJobFailed      Event = "job_failed"
	EventBatchCompleted Event = "batch_completed"
	EventTest           Event = "test"
)

// Payload carries event fields by name.
type Payload map[string]any

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := cfg.NotificationTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventJobCompleted:   cfg.Notifications.JobCompleted,
			EventJobFailed:      cfg.Notifications.JobFailed,
			EventBatchCompleted: cfg.Notifications.BatchCompleted,
			EventTest:           true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventJobCompleted:
		body := fmt.Sprintf("✅ Converted: %s", payload.text("input"))
		if out := payload.text("output"); out != "" {
			body += " -> " + out
		}
		if route := payload.text("route"); route != "" {
			body += fmt.Sprintf("\nRoute: %s", route)
		}
		return message{
			title: "Transmute - Converted",
			body:  body,
			tags:  []string{"transmute", "job", "completed"},
		}, true
	case EventJobFailed:
		body := fmt.Sprintf("❌ Conversion failed: %s", payload.text("input"))
		if reason := payload.text("error"); reason != "" {
			body += ": " + reason
		}
		return message{
			title:    "Transmute - Conversion Failed",
			body:     body,
			tags:     []string{"transmute", "job", "failed"},
			priority: "high",
		}, true
	case EventBatchCompleted:
		total := payload.number("total")
		failed := payload.number("failed")
		elapsed := payload.duration("duration")
		title := "Transmute - Batch Complete"
		body := fmt.Sprintf("Batch complete: %d files converted in %s", total, elapsed)
		if failed > 0 {
			title = "Transmute - Batch Complete (with errors)"
			body = fmt.Sprintf("Batch complete: %d succeeded, %d failed in %s", payload.number("succeeded"), failed, elapsed)
		}
		return message{
			title: title,
			body:  body,
			tags:  []string{"transmute", "batch", "completed"},
		}, true
	case EventTest:
		return message{
			title:    "Transmute - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"transmute", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (p Payload) text(key string) string {
	if v, ok := p[key]; ok && v != nil {
		return strings.TrimSpace(fmt.Sprint(v))
	}
	return ""
}

func (p Payload) number(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func (p Payload) duration(key string) string {
	d, _ := p[key].(time.Duration)
	d = max(d.Round(time.Second), 0)
	return d.String()
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
