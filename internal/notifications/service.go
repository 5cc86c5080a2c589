package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mergeflow/internal/config"
)

const userAgent = "mergeflow/0.1.0"

// Event names a notification type.
type Event string

const (
	EventRunStarted   Event = "run_started"
	EventRunCompleted Event = "run_completed"
	EventError        Event = "error"
	EventTest         Event = "test"
)

// Payload carries the values rendered into a notification.
type Payload map[string]string

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is set.
// Individual event types can be muted through the notifications section.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		muted: map[Event]bool{
			EventRunCompleted: !cfg.Notifications.RunCompleted,
			EventError:        !cfg.Notifications.Errors,
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
	muted    map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n.muted[event] {
		return nil
	}
	msg, ok := render(event, payload)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	return n.send(ctx, msg)
}

func render(event Event, payload Payload) (message, bool) {
	get := func(key string) string { return strings.TrimSpace(payload[key]) }
	switch event {
	case EventRunStarted:
		return message{
			title: "mergeflow - Run Started",
			body:  fmt.Sprintf("Merging %s pairs for owner %s", orDefault(get("pairs"), "0"), orDefault(get("owner"), "?")),
			tags:  []string{"mergeflow", "run", "started"},
		}, true
	case EventRunCompleted:
		failed := get("failed")
		if failed == "" || failed == "0" {
			return message{
				title: "mergeflow - Run Complete",
				body:  fmt.Sprintf("✅ %s of %s pairs merged in %s", get("succeeded"), get("total"), orDefault(get("duration"), "0s")),
				tags:  []string{"mergeflow", "run", "completed"},
			}, true
		}
		return message{
			title: "mergeflow - Run Complete (with errors)",
			body:  fmt.Sprintf("%s succeeded, %s failed of %s pairs in %s", get("succeeded"), failed, get("total"), orDefault(get("duration"), "0s")),
			tags:  []string{"mergeflow", "run", "failed"},
		}, true
	case EventError:
		var b strings.Builder
		b.WriteString("❌ Error")
		if label := get("context"); label != "" {
			b.WriteString(" with ")
			b.WriteString(label)
		}
		b.WriteString(": ")
		b.WriteString(orDefault(get("error"), "unknown"))
		return message{
			title:    "mergeflow - Error",
			body:     b.String(),
			tags:     []string{"mergeflow", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "mergeflow - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"mergeflow", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
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
