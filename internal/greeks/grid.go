package greeks

import (
	"fmt"
	"strings"
	"time"
)

// Step is the spacing between grid instants.
const Step = time.Minute

// Truncation controls what happens to instants after now on the current trading day.
type Truncation int

const (
	// KeepFullSession keeps every instant up to 15:30 so charts keep a stable x-axis.
	KeepFullSession Truncation = iota
	// TruncateAtNow drops instants after now. The 09:15 instant is always kept.
	TruncateAtNow
)

func (t Truncation) String() string {
	switch t {
	case KeepFullSession:
		return "full"
	case TruncateAtNow:
		return "now"
	default:
		return fmt.Sprintf("Truncation(%d)", int(t))
	}
}

// ParseTruncation accepts "full" or "now" (case-insensitive). Empty means full.
func ParseTruncation(s string) (Truncation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "full", "keep":
		return KeepFullSession, nil
	case "now", "truncate":
		return TruncateAtNow, nil
	default:
		return KeepFullSession, fmt.Errorf("unknown truncation %q (want full or now)", s)
	}
}

// GridOptions tunes grid construction.
type GridOptions struct {
	Truncation Truncation
}

// Grid is the ordered minute sequence for a session.
type Grid struct {
	Session  Session
	Instants []time.Time
}

// Len returns the number of instants.
func (g Grid) Len() int { return len(g.Instants) }

// First returns the opening instant.
func (g Grid) First() time.Time { return g.Instants[0] }

// Last returns the final instant.
func (g Grid) Last() time.Time { return g.Instants[len(g.Instants)-1] }

// BuildGrid produces the minute grid for session. The result is never empty.
func BuildGrid(session Session, now time.Time, opts GridOptions) (Grid, error) {
	if session.Start.IsZero() || !session.Start.Before(session.End) {
		return Grid{}, fmt.Errorf("invalid session %s: start %v must precede end %v", session, session.Start, session.End)
	}

	end := session.End
	if opts.Truncation == TruncateAtNow && session.IsToday(now) && now.Before(end) {
		end = now
		if end.Before(session.Start) {
			end = session.Start
		}
	}

	n := int(end.Sub(session.Start)/Step) + 1
	instants := make([]time.Time, n)
	for i := range instants {
		instants[i] = session.Start.Add(time.Duration(i) * Step)
	}

	return Grid{Session: session, Instants: instants}, nil
}
