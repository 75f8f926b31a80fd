package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"greeks-dashboard/internal/models"
	"greeks-dashboard/pkg/utils"
)

// TerminalNotifier prints notifications as a single line, ringing the bell
// for anything with a positive priority.
type TerminalNotifier struct {
	w            io.Writer
	mu           sync.Mutex
	bellEnabled  bool
	colorEnabled bool
}

// NewTerminalNotifier creates a TerminalNotifier writing to w.
func NewTerminalNotifier(w io.Writer, bell, colorEnabled bool) *TerminalNotifier {
	return &TerminalNotifier{w: w, bellEnabled: bell, colorEnabled: colorEnabled}
}

// Name returns the name of the notifier.
func (tn *TerminalNotifier) Name() string { return "terminal" }

// IsEnabled returns whether the notifier is enabled.
func (tn *TerminalNotifier) IsEnabled() bool { return tn.w != nil }

// Send writes the notification.
func (tn *TerminalNotifier) Send(_ context.Context, n Notification) error {
	tn.mu.Lock()
	defer tn.mu.Unlock()

	if tn.bellEnabled && n.Priority > 0 {
		fmt.Fprint(tn.w, "\a")
	}

	line := fmt.Sprintf("🔔 %s  %s: %s", utils.FormatClock(n.Timestamp), n.Title, n.Message)
	if tn.colorEnabled {
		c := color.New(tn.attr(n))
		c.EnableColor()
		line = c.Sprint(line)
	}
	_, err := fmt.Fprintln(tn.w, line)
	return err
}

func (tn *TerminalNotifier) attr(n Notification) color.Attribute {
	switch n.Type {
	case NotificationError, NotificationSession:
		return color.FgRed
	case NotificationTrend:
		if t, ok := n.Data["trend"].(models.Trend); ok {
			switch {
			case t.IsBullish():
				return color.FgGreen
			case t.IsBearish():
				return color.FgRed
			}
		}
		return color.FgYellow
	default:
		return color.FgCyan
	}
}
