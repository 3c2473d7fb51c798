package claude_code

import (
	"encoding/json"
	"path/filepath"

	"github.com/samber/lo"

	"github.com/janekbaraniewski/openpulse/internal/core"
	"github.com/janekbaraniewski/openpulse/internal/logscan"
	"github.com/janekbaraniewski/openpulse/internal/tariff"
)

type jsonlEntry struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId"`
	Timestamp string    `json:"timestamp"`
	RequestID string    `json:"requestId,omitempty"`
	Message   *jsonlMsg `json:"message,omitempty"`
}

type jsonlMsg struct {
	ID    string      `json:"id"`
	Model string      `json:"model"`
	Usage *jsonlUsage `json:"usage,omitempty"`
}

type jsonlUsage struct {
	InputTokens              int64 `json:"input_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
}

// syntheticModel marks locally generated placeholder turns that cost
// nothing.
const syntheticModel = "<synthetic>"

// Schema decodes Claude Code conversation logs. Assistant turns carry
// per-turn usage and are repeated while streaming, so records are
// deduplicated by message and request id.
func Schema() logscan.Schema {
	return logscan.Schema{
		Provider: ProviderID,
		Family:   tariff.FamilyAnthropic,
		Mode:     logscan.ModeIncremental,
		Markers:  [][]byte{[]byte(`"assistant"`)},
		Decode:   decodeLine,
	}
}

func decodeLine(line []byte) (logscan.Record, bool) {
	var entry jsonlEntry
	if err := json.Unmarshal(line, &entry); err != nil {
		return logscan.Record{}, false
	}
	if entry.Type != "assistant" || entry.Message == nil || entry.Message.Usage == nil {
		return logscan.Record{}, false
	}
	if entry.Message.Model == syntheticModel {
		return logscan.Record{}, false
	}
	at, ok := logscan.ParseTimestamp(entry.Timestamp)
	if !ok {
		return logscan.Record{}, false
	}
	u := entry.Message.Usage
	return logscan.Record{
		Kind:      logscan.KindUsage,
		Timestamp: at,
		SessionID: entry.SessionID,
		Model:     entry.Message.Model,
		MessageID: entry.Message.ID,
		RequestID: entry.RequestID,
		Ledger: core.TokenLedger{
			Input:       u.InputTokens,
			CachedInput: u.CacheReadInputTokens,
			CacheWrite:  u.CacheCreationInputTokens,
			Output:      u.OutputTokens,
		}.NonNegative(),
	}, true
}

// LogRoots lists the project log directories, old and new layout.
func LogRoots(configDir, homeDir string, extra []string) []string {
	var roots []string
	if configDir != "" {
		roots = append(roots, filepath.Join(configDir, "projects"))
	}
	if homeDir != "" {
		roots = append(roots, filepath.Join(homeDir, ".config", "claude", "projects"))
	}
	return lo.Uniq(lo.Compact(append(roots, extra...)))
}

func Locator(roots []string) logscan.Locator {
	return logscan.ModTimeLocator{Roots: roots, Suffix: ".jsonl"}
}
