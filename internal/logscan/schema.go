package logscan

import (
	"bytes"
	"strings"
	"time"

	"github.com/janekbaraniewski/openpulse/internal/core"
	"github.com/janekbaraniewski/openpulse/internal/tariff"
)

type RecordKind int

const (
	KindOther RecordKind = iota
	// KindContext declares the model or session for the usage records
	// that follow it in the same file.
	KindContext
	KindUsage
)

// Record is one decoded log line.
type Record struct {
	Kind      RecordKind
	Timestamp time.Time
	SessionID string
	Model     string
	MessageID string
	RequestID string
	// Ledger holds the line's usage block, or the session totals so far
	// for cumulative schemas.
	Ledger core.TokenLedger
}

// Mode selects how usage records are turned into increments.
type Mode int

const (
	// ModeIncremental records carry per-turn usage. Providers may repeat
	// a turn while streaming, so records are deduplicated by message and
	// request id.
	ModeIncremental Mode = iota
	// ModeCumulative records carry running totals per session; only the
	// growth since the previous sighting counts.
	ModeCumulative
)

func (m Mode) String() string {
	if m == ModeCumulative {
		return "cumulative"
	}
	return "incremental"
}

// Schema describes one provider's log format.
type Schema struct {
	Provider core.ProviderID
	Family   tariff.Family
	Mode     Mode
	// Markers prefilter lines: when set, a line must contain at least one
	// of them before Decode runs.
	Markers [][]byte
	// Decode parses a line. ok is false for malformed or irrelevant lines.
	Decode func(line []byte) (rec Record, ok bool)
}

func (s Schema) decode(line []byte) (Record, bool) {
	if s.Decode == nil {
		return Record{}, false
	}
	if len(s.Markers) > 0 {
		hit := false
		for _, m := range s.Markers {
			if bytes.Contains(line, m) {
				hit = true
				break
			}
		}
		if !hit {
			return Record{}, false
		}
	}
	return s.Decode(line)
}

func (s Schema) newIngest() ingest {
	if s.Mode == ModeCumulative {
		return &cumulativeIngest{last: make(map[string]core.TokenLedger)}
	}
	return &incrementalIngest{seen: make(map[string]struct{})}
}

// ingest turns usage records into ledger increments. Instances are local to
// one scan.
type ingest interface {
	increment(file string, rec Record) (core.TokenLedger, bool)
}

// maxDedupeKeys bounds the incremental dedupe set. Once exceeded the set is
// cleared wholesale, so a duplicate straddling the reset can be counted
// twice on very large histories.
const maxDedupeKeys = 50_000

type incrementalIngest struct {
	seen map[string]struct{}
}

func (in *incrementalIngest) increment(_ string, rec Record) (core.TokenLedger, bool) {
	if rec.MessageID != "" && rec.RequestID != "" {
		key := rec.MessageID + ":" + rec.RequestID
		if _, dup := in.seen[key]; dup {
			return core.TokenLedger{}, false
		}
		if len(in.seen) >= maxDedupeKeys {
			clear(in.seen)
		}
		in.seen[key] = struct{}{}
	}
	l := rec.Ledger.NonNegative()
	return l, !l.IsZero()
}

type cumulativeIngest struct {
	last map[string]core.TokenLedger
}

// increment emits the growth since the session's previous totals. A total
// that went down (session restart) contributes nothing for that category
// and becomes the new baseline.
func (cu *cumulativeIngest) increment(file string, rec Record) (core.TokenLedger, bool) {
	key := strings.TrimSpace(rec.SessionID)
	if key == "" {
		key = "file:" + file
	}
	current := rec.Ledger.NonNegative()
	prev := cu.last[key]
	cu.last[key] = current
	delta := current.Since(prev)
	return delta, !delta.IsZero()
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts the ISO-8601 shapes seen in provider logs.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// fileContext carries context-record values forward within one file.
type fileContext struct {
	model   string
	session string
}

func (c *fileContext) apply(rec Record) Record {
	if rec.Kind == KindContext {
		if m := strings.TrimSpace(rec.Model); m != "" {
			c.model = m
		}
		if s := strings.TrimSpace(rec.SessionID); s != "" {
			c.session = s
		}
		return rec
	}
	if rec.Model == "" {
		rec.Model = c.model
	}
	if rec.SessionID == "" {
		rec.SessionID = c.session
	}
	return rec
}

const unknownModel = "unknown"
