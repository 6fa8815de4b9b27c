package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ripperbot/internal/config"
)

const userAgent = "ripperbot/0.1.0"

// Service defines the notification surface exposed to the capture loop.
type Service interface {
	NotifyRunStarted(ctx context.Context, armDevice string) error
	NotifySorted(ctx context.Context, captureID, tray string, problems []string) error
	NotifyFatal(ctx context.Context, err error, state string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
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
		sorted:   cfg.Notifications.Sorted,
		errors:   cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	sorted   bool
	errors   bool
}

func (n *ntfyService) NotifyRunStarted(ctx context.Context, armDevice string) error {
	return n.send(ctx, payload{
		title:    "Ripperbot - Started",
		message:  fmt.Sprintf("Capture loop running on %s", strings.TrimSpace(armDevice)),
		tags:     []string{"ripperbot", "started"},
		priority: "low",
	})
}

func (n *ntfyService) NotifySorted(ctx context.Context, captureID, tray string, problems []string) error {
	if tray == "error" {
		if !n.errors && !n.sorted {
			return nil
		}
		message := fmt.Sprintf("Disc %s sorted to the error tray", captureID)
		if len(problems) > 0 {
			message += "\n" + strings.Join(problems, "\n")
		}
		return n.send(ctx, payload{
			title:   "Ripperbot - Disc Failed",
			message: message,
			tags:    []string{"ripperbot", "disc", "warning"},
		})
	}
	if !n.sorted {
		return nil
	}
	return n.send(ctx, payload{
		title:   "Ripperbot - Disc Archived",
		message: fmt.Sprintf("Disc %s imaged and sorted to the %s tray", captureID, tray),
		tags:    []string{"ripperbot", "disc", "completed"},
	})
}

func (n *ntfyService) NotifyFatal(ctx context.Context, err error, state string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Capture loop stopped")
	if state = strings.TrimSpace(state); state != "" {
		builder.WriteString(" in ")
		builder.WriteString(state)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	builder.WriteString("\nCheck the arm and trays before restarting.")

	return n.send(ctx, payload{
		title:    "Ripperbot - Operator Needed",
		message:  builder.String(),
		tags:     []string{"ripperbot", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Ripperbot - Test",
		message:  "Notification system test",
		tags:     []string{"ripperbot", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
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

func (noopService) NotifyRunStarted(context.Context, string) error               { return nil }
func (noopService) NotifySorted(context.Context, string, string, []string) error { return nil }
func (noopService) NotifyFatal(context.Context, error, string) error             { return nil }
func (noopService) TestNotification(context.Context) error                       { return nil }
