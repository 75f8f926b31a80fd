// Package notify raises alerts while a live series is being watched.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"greeks-dashboard/internal/config"
)

// Notifier sends notifications.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// Channel is one notification destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification is one alert.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Data      map[string]interface{}
	Timestamp time.Time
	Priority  int // higher rings the bell
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationTrend   NotificationType = "trend"
	NotificationSession NotificationType = "session"
	NotificationError   NotificationType = "error"
	NotificationInfo    NotificationType = "info"
)

// NotificationLevel filters which types are sent.
type NotificationLevel string

const (
	LevelAll        NotificationLevel = "all"
	LevelTrendOnly  NotificationLevel = "trend_only"
	LevelErrorsOnly NotificationLevel = "errors_only"
)

// MultiNotifier fans a notification out to its channels, filtered by level.
type MultiNotifier struct {
	mu       sync.RWMutex
	channels []Channel
	level    NotificationLevel
}

// NewMultiNotifier creates a MultiNotifier with the webhook channel from cfg,
// if one is configured. Terminal channels are added by the caller.
func NewMultiNotifier(cfg config.NotifyConfig) *MultiNotifier {
	mn := &MultiNotifier{level: NotificationLevel(cfg.Level)}
	if mn.level == "" {
		mn.level = LevelAll
	}
	if cfg.WebhookURL != "" {
		mn.channels = append(mn.channels, NewWebhookNotifier(cfg.WebhookURL))
	}
	return mn
}

// AddChannel appends ch.
func (mn *MultiNotifier) AddChannel(ch Channel) {
	mn.mu.Lock()
	mn.channels = append(mn.channels, ch)
	mn.mu.Unlock()
}

// Accepts reports whether the level lets notifications of type t through.
func (mn *MultiNotifier) Accepts(t NotificationType) bool {
	switch mn.level {
	case LevelTrendOnly:
		return t == NotificationTrend
	case LevelErrorsOnly:
		return t == NotificationError || t == NotificationSession
	}
	return true
}

// Send delivers n to every enabled channel. A failing channel does not stop
// the others; all failures are joined into the returned error.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if !mn.Accepts(n.Type) {
		return nil
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	mn.mu.RLock()
	channels := append([]Channel(nil), mn.channels...)
	mn.mu.RUnlock()

	var errs []error
	for _, ch := range channels {
		if !ch.IsEnabled() {
			continue
		}
		if err := ch.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// webhookPayload is the JSON body posted for every notification.
type webhookPayload struct {
	Type      NotificationType       `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Priority  int                    `json:"priority"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// WebhookNotifier posts notifications as JSON to a URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a WebhookNotifier with a 10s timeout.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

func (w *WebhookNotifier) Name() string   { return "webhook" }
func (w *WebhookNotifier) IsEnabled() bool { return w.url != "" }

// Send posts n. Any non-2xx status is an error.
func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(webhookPayload{
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Priority:  n.Priority,
		Data:      n.Data,
		Timestamp: n.Timestamp.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "greeks-dashboard/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

// NoOpNotifier drops everything.
type NoOpNotifier struct{}

// Send does nothing.
func (NoOpNotifier) Send(context.Context, Notification) error { return nil }
