package codex

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/janekbaraniewski/openpulse/internal/core"
	"github.com/janekbaraniewski/openpulse/internal/logscan"
	"github.com/janekbaraniewski/openpulse/internal/tariff"
)

type sessionEvent struct {
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

type sessionMetaPayload struct {
	ID    string `json:"id"`
	Model string `json:"model,omitempty"`
}

type turnContextPayload struct {
	Model string `json:"model,omitempty"`
}

type eventPayload struct {
	Type string     `json:"type"`
	Info *tokenInfo `json:"info,omitempty"`
}

type tokenInfo struct {
	TotalTokenUsage tokenUsage `json:"total_token_usage"`
}

type tokenUsage struct {
	InputTokens           int64 `json:"input_tokens"`
	CachedInputTokens     int64 `json:"cached_input_tokens"`
	OutputTokens          int64 `json:"output_tokens"`
	ReasoningOutputTokens int64 `json:"reasoning_output_tokens"`
	TotalTokens           int64 `json:"total_tokens"`
}

// ledger splits cached tokens out of input; the CLI reports them as part
// of input_tokens.
func (u tokenUsage) ledger() core.TokenLedger {
	cached := min(max(u.CachedInputTokens, 0), max(u.InputTokens, 0))
	return core.TokenLedger{
		Input:       u.InputTokens - cached,
		CachedInput: cached,
		Output:      u.OutputTokens,
	}.NonNegative()
}

var markers = [][]byte{
	[]byte(`"type":"event_msg"`),
	[]byte(`"type":"turn_context"`),
	[]byte(`"type":"session_meta"`),
}

// Schema decodes Codex session rollouts. token_count events carry the
// session's running totals, so the scanner counts only their growth.
func Schema() logscan.Schema {
	return logscan.Schema{
		Provider: ProviderID,
		Family:   tariff.FamilyOpenAI,
		Mode:     logscan.ModeCumulative,
		Markers:  markers,
		Decode:   decodeLine,
	}
}

func decodeLine(line []byte) (logscan.Record, bool) {
	var event sessionEvent
	if err := json.Unmarshal(line, &event); err != nil {
		return logscan.Record{}, false
	}
	at, ok := logscan.ParseTimestamp(event.Timestamp)
	if !ok {
		return logscan.Record{}, false
	}

	switch event.Type {
	case "session_meta":
		var meta sessionMetaPayload
		if json.Unmarshal(event.Payload, &meta) != nil {
			return logscan.Record{}, false
		}
		return logscan.Record{Kind: logscan.KindContext, Timestamp: at, SessionID: meta.ID, Model: meta.Model}, true
	case "turn_context":
		var tc turnContextPayload
		if json.Unmarshal(event.Payload, &tc) != nil {
			return logscan.Record{}, false
		}
		return logscan.Record{Kind: logscan.KindContext, Timestamp: at, Model: tc.Model}, true
	case "event_msg":
		if !bytes.Contains(event.Payload, []byte(`"token_count"`)) {
			return logscan.Record{}, false
		}
		var payload eventPayload
		if json.Unmarshal(event.Payload, &payload) != nil || payload.Type != "token_count" || payload.Info == nil {
			return logscan.Record{}, false
		}
		return logscan.Record{
			Kind:      logscan.KindUsage,
			Timestamp: at,
			Ledger:    payload.Info.TotalTokenUsage.ledger(),
		}, true
	}
	return logscan.Record{}, false
}

// Locator reads the sessions/YYYY/MM/DD tree under the Codex home. It
// serves per-day digests, where a rollout's partition is its start day.
func Locator(sessionsDir string, now func() time.Time) logscan.Locator {
	return logscan.DatePartitionLocator{Root: sessionsDir, Suffix: ".jsonl", Now: now}
}

// ScanLocator selects rollouts by modification time. A resumed session keeps
// appending to a file in its original day partition.
func ScanLocator(sessionsDir string) logscan.Locator {
	return logscan.ModTimeLocator{Roots: []string{sessionsDir}, Suffix: ".jsonl"}
}
