// Package pace compares quota consumption against a linear expectation for
// the window.
package pace

import (
	"math"
	"time"
)

type Stage int

const (
	StageOnTrack Stage = iota
	StageSlightlyAhead
	StageAhead
	StageFarAhead
	StageSlightlyBehind
	StageBehind
	StageFarBehind
)

func (s Stage) String() string {
	switch s {
	case StageSlightlyAhead:
		return "slightly ahead"
	case StageAhead:
		return "ahead"
	case StageFarAhead:
		return "far ahead"
	case StageSlightlyBehind:
		return "slightly behind"
	case StageBehind:
		return "behind"
	case StageFarBehind:
		return "far behind"
	default:
		return "on track"
	}
}

// Ahead reports whether usage is running faster than linear.
func (s Stage) Ahead() bool {
	return s == StageSlightlyAhead || s == StageAhead || s == StageFarAhead
}

// Stage boundaries, in percentage points of |actual - expected|.
const (
	onTrackBand  = 2.0
	slightBand   = 6.0
	moderateBand = 12.0
)

type Pace struct {
	ActualPercent   float64
	ExpectedPercent float64
	Delta           float64 // actual - expected
	Stage           Stage
	// ETA is the time from now until 100% at the current average rate. It
	// is only meaningful when WillLastToReset is false.
	ETA             time.Duration
	WillLastToReset bool
}

// Compute evaluates pace for a window of length window that resets at
// resetAt. ok is false when resetAt is nil, window is not positive, or no
// time has elapsed in the window yet.
func Compute(usedPercent float64, resetAt *time.Time, window time.Duration, now time.Time) (Pace, bool) {
	if resetAt == nil || window <= 0 {
		return Pace{}, false
	}
	untilReset := resetAt.Sub(now)
	elapsed := window - untilReset
	if elapsed <= 0 {
		return Pace{}, false
	}
	if elapsed > window {
		elapsed = window
	}

	actual := clamp(usedPercent)
	expected := float64(elapsed) / float64(window) * 100
	delta := actual - expected

	p := Pace{
		ActualPercent:   actual,
		ExpectedPercent: expected,
		Delta:           delta,
		Stage:           stageFor(delta),
	}

	if actual <= 0 || untilReset <= 0 {
		p.WillLastToReset = true
		return p, true
	}
	if actual >= 100 {
		return p, true
	}

	// percent per nanosecond
	rate := actual / float64(elapsed)
	toFull := time.Duration(math.Ceil((100 - actual) / rate))
	if toFull >= untilReset {
		p.WillLastToReset = true
		return p, true
	}
	p.ETA = toFull
	return p, true
}

func stageFor(delta float64) Stage {
	mag := math.Abs(delta)
	ahead := delta > 0
	switch {
	case mag <= onTrackBand:
		return StageOnTrack
	case mag <= slightBand:
		if ahead {
			return StageSlightlyAhead
		}
		return StageSlightlyBehind
	case mag <= moderateBand:
		if ahead {
			return StageAhead
		}
		return StageBehind
	default:
		if ahead {
			return StageFarAhead
		}
		return StageFarBehind
	}
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
