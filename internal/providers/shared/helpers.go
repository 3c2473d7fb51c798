package shared

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/janekbaraniewski/openpulse/internal/core"
)

// Unavailable is the reading a source returns when it could not produce
// data. It never wins selection against a source that did.
func Unavailable(provider core.ProviderID, source core.Source, now time.Time, format string, args ...any) core.Reading {
	return core.NewReading(provider, source, core.ConfidenceUnknown, now, fmt.Sprintf(format, args...))
}

func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func TruncateForError(value string, max int) string {
	value = strings.TrimSpace(value)
	if len(value) <= max {
		return value
	}
	if max <= 3 {
		return value[:max]
	}
	return value[:max-3] + "..."
}

// ReadJSONFile decodes path into out. A missing file is reported with
// os.ErrNotExist in the chain.
func ReadJSONFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// Now returns fn, or time.Now when fn is nil.
func Now(fn func() time.Time) func() time.Time {
	if fn == nil {
		return time.Now
	}
	return fn
}
