package logscan

import (
	"context"
	"slices"
	"time"

	"github.com/janekbaraniewski/openpulse/internal/core"
)

const (
	DefaultSessionWindow = 5 * time.Hour
	DefaultWeekWindow    = 7 * 24 * time.Hour

	// fileSlack widens the mod-time cutoff so files whose last write
	// predates the week start by a little are still read.
	fileSlack = 24 * time.Hour
)

// Summary is the windowed result of one scan.
type Summary struct {
	SessionLedger core.TokenLedger
	WeekLedger    core.TokenLedger
	// LatestEvent is the newest usage timestamp seen, zero if none.
	LatestEvent time.Time
	// SessionStart is the estimated start of the active session block,
	// zero when no block is active.
	SessionStart time.Time
	SessionEnd   time.Time
	Events       int
	Files        int
}

func (s Summary) SessionTokens() int64 { return s.SessionLedger.TotalConsumed() }
func (s Summary) WeekTokens() int64    { return s.WeekLedger.TotalConsumed() }

// HasSession reports whether a session block is active.
func (s Summary) HasSession() bool { return !s.SessionStart.IsZero() }

// Scanner computes current session and week totals for one provider.
type Scanner struct {
	Schema        Schema
	Locator       Locator
	MaxLineBytes  int
	SessionWindow time.Duration
	WeekWindow    time.Duration
	Now           func() time.Time
}

type usageEvent struct {
	at     time.Time
	ledger core.TokenLedger
}

func (s *Scanner) Scan(ctx context.Context) (Summary, error) {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	sessionWindow := s.SessionWindow
	if sessionWindow <= 0 {
		sessionWindow = DefaultSessionWindow
	}
	weekWindow := s.WeekWindow
	if weekWindow <= 0 {
		weekWindow = DefaultWeekWindow
	}
	weekStart := now.Add(-weekWindow)

	var out Summary
	if s.Locator == nil {
		return out, nil
	}
	files := s.Locator.Locate(weekStart.Add(-fileSlack))
	ing := s.Schema.newIngest()

	var events []usageEvent
	for _, path := range files {
		fc := &fileContext{}
		err := StreamFile(ctx, path, s.MaxLineBytes, func(line []byte) {
			rec, ok := s.Schema.decode(line)
			if !ok {
				return
			}
			rec = fc.apply(rec)
			if rec.Kind != KindUsage || rec.Timestamp.IsZero() {
				return
			}
			inc, ok := ing.increment(path, rec)
			if !ok || rec.Timestamp.Before(weekStart) {
				return
			}
			events = append(events, usageEvent{at: rec.Timestamp, ledger: inc})
		})
		if err != nil {
			if ctx.Err() != nil {
				return Summary{}, ctx.Err()
			}
			continue
		}
		out.Files++
	}

	slices.SortFunc(events, func(a, b usageEvent) int { return a.at.Compare(b.at) })

	// Blocks are half-open: an event at blockEnd opens the next one.
	var blockStart, blockEnd time.Time
	for _, e := range events {
		out.WeekLedger = out.WeekLedger.Combine(e.ledger)
		if blockEnd.IsZero() || !e.at.Before(blockEnd) {
			blockStart = floorToHour(e.at)
			blockEnd = blockStart.Add(sessionWindow)
		}
	}
	out.Events = len(events)
	if len(events) > 0 {
		out.LatestEvent = events[len(events)-1].at
	}

	if !blockEnd.IsZero() && !now.Before(blockStart) && now.Before(blockEnd) {
		out.SessionStart = blockStart
		out.SessionEnd = blockEnd
		for _, e := range events {
			if !e.at.Before(blockStart) && e.at.Before(blockEnd) {
				out.SessionLedger = out.SessionLedger.Combine(e.ledger)
			}
		}
	}
	return out, nil
}
