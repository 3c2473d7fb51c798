package codex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janekbaraniewski/openpulse/internal/core"
	"github.com/janekbaraniewski/openpulse/internal/logscan"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func tokenCountLine(ts string, input, cached, output int64) string {
	return `{"timestamp":"` + ts + `","type":"event_msg","payload":{"type":"token_count","info":{"total_token_usage":` +
		`{"input_tokens":` + itoa(input) + `,"cached_input_tokens":` + itoa(cached) + `,"output_tokens":` + itoa(output) + `}}}}`
}

func itoa(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestDecodeLine(t *testing.T) {
	rec, ok := decodeLine([]byte(`{"timestamp":"2026-05-01T10:00:00Z","type":"session_meta","payload":{"id":"sess-1","model":"gpt-5-codex"}}`))
	require.True(t, ok)
	assert.Equal(t, logscan.KindContext, rec.Kind)
	assert.Equal(t, "sess-1", rec.SessionID)
	assert.Equal(t, "gpt-5-codex", rec.Model)

	rec, ok = decodeLine([]byte(`{"timestamp":"2026-05-01T10:00:01Z","type":"turn_context","payload":{"model":"gpt-5"}}`))
	require.True(t, ok)
	assert.Equal(t, logscan.KindContext, rec.Kind)
	assert.Equal(t, "gpt-5", rec.Model)

	rec, ok = decodeLine([]byte(tokenCountLine("2026-05-01T10:00:02Z", 1000, 400, 50)))
	require.True(t, ok)
	assert.Equal(t, logscan.KindUsage, rec.Kind)
	assert.Equal(t, core.TokenLedger{Input: 600, CachedInput: 400, Output: 50}, rec.Ledger)
}

func TestDecodeLineSkips(t *testing.T) {
	for _, line := range []string{
		`{"timestamp":"2026-05-01T10:00:00Z","type":"event_msg","payload":{"type":"agent_message"}}`,
		`{"timestamp":"2026-05-01T10:00:00Z","type":"event_msg","payload":{"type":"token_count"}}`,
		`{"timestamp":"2026-05-01T10:00:00Z","type":"response_item","payload":{}}`,
		`{"type":"session_meta","payload":{"id":"x"}}`,
		`{broken`,
	} {
		_, ok := decodeLine([]byte(line))
		assert.False(t, ok, line)
	}
}

func TestLedgerClampsCachedToInput(t *testing.T) {
	got := tokenUsage{InputTokens: 100, CachedInputTokens: 250, OutputTokens: 7}.ledger()
	assert.Equal(t, core.TokenLedger{Input: 0, CachedInput: 100, Output: 7}, got)
}

func TestSchemaCountsCumulativeGrowth(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.Local)
	sessions := t.TempDir()
	day := filepath.Join(sessions, now.Format("2006"), now.Format("01"), now.Format("02"))
	ts := func(d time.Duration) string { return now.Add(-d).UTC().Format(time.RFC3339) }

	writeFile(t, filepath.Join(day, "rollout-1.jsonl"), strings.Join([]string{
		`{"timestamp":"` + ts(time.Hour) + `","type":"session_meta","payload":{"id":"sess-1","model":"gpt-5"}}`,
		tokenCountLine(ts(59*time.Minute), 100, 0, 10),
		tokenCountLine(ts(58*time.Minute), 100, 0, 10),
		tokenCountLine(ts(50*time.Minute), 300, 100, 40),
	}, "\n")+"\n")

	s := &logscan.Scanner{
		Schema:        Schema(),
		Locator:       Locator(sessions, func() time.Time { return now }),
		SessionWindow: sessionWindow,
		WeekWindow:    weekWindow,
		Now:           func() time.Time { return now },
	}
	sum, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Files)
	assert.Equal(t, int64(340), sum.WeekTokens())
	assert.Equal(t, int64(340), sum.SessionTokens())
}

func TestScanLocatorKeepsResumedRollouts(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.Local)
	sessions := t.TempDir()
	path := filepath.Join(sessions, "2026", "10", "01", "rollout-resumed.jsonl")
	writeFile(t, path, strings.Join([]string{
		`{"timestamp":"` + now.Add(-2*time.Hour).UTC().Format(time.RFC3339) + `","type":"session_meta","payload":{"id":"sess-r","model":"gpt-5"}}`,
		tokenCountLine(now.Add(-time.Hour).UTC().Format(time.RFC3339), 1000, 0, 100),
	}, "\n")+"\n")
	require.NoError(t, os.Chtimes(path, now, now))

	clock := func() time.Time { return now }
	opts := Options{SessionsDir: sessions, HomeDir: t.TempDir(), Now: clock}
	s := &logscan.Scanner{
		Schema:        Schema(),
		Locator:       opts.ScanLocator(),
		SessionWindow: sessionWindow,
		WeekWindow:    weekWindow,
		Now:           clock,
	}
	sum, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Files)
	assert.Equal(t, int64(1100), sum.WeekTokens())
	assert.Equal(t, int64(1100), sum.SessionTokens())

	// The day-partitioned digest view still files it under its start day.
	assert.Empty(t, opts.Locator().Locate(now.Add(-7*24*time.Hour)))
}

func TestResolveBaseURL(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, DefaultChatGPTBaseURL, resolveBaseURL("", dir))

	writeFile(t, filepath.Join(dir, "config.toml"), "model = \"gpt-5\"\nchatgpt_base_url = \"https://chat.openai.com/\"\n\n[mcp_servers.x]\ncommand = \"x\"\n")
	assert.Equal(t, "https://chat.openai.com/backend-api", resolveBaseURL("", dir))
	assert.Equal(t, "http://localhost:8080", resolveBaseURL("http://localhost:8080/", dir))

	writeFile(t, filepath.Join(dir, "config.toml"), "not toml [")
	assert.Equal(t, DefaultChatGPTBaseURL, resolveBaseURL("", dir))
}

func TestUsageURL(t *testing.T) {
	assert.Equal(t, "https://chatgpt.com/backend-api/wham/usage", usageURL(DefaultChatGPTBaseURL))
	assert.Equal(t, "http://localhost:8080/api/codex/usage", usageURL("http://localhost:8080"))
}

func TestCreditsBucket(t *testing.T) {
	tests := []struct {
		name    string
		credits *usageCredits
		want    float64
		ok      bool
	}{
		{"dollars", &usageCredits{HasCredits: true, Balance: 42.5}, 42.5, true},
		{"string balance", &usageCredits{HasCredits: true, Balance: "12.25"}, 12.25, true},
		{"cents", &usageCredits{HasCredits: true, Balance: 250000.0}, 2500, true},
		{"unlimited", &usageCredits{HasCredits: true, Unlimited: true, Balance: 10.0}, 0, false},
		{"none", &usageCredits{HasCredits: false}, 0, false},
		{"unparseable", &usageCredits{HasCredits: true, Balance: "lots"}, 0, false},
		{"nil", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, ok := tt.credits.bucket()
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, core.MoneyPrepaidBalance, b.Kind)
				assert.InDelta(t, tt.want, b.Ceiling, 1e-9)
				assert.Zero(t, b.Consumed)
			}
		})
	}
}

var now = time.Date(2026, 5, 1, 14, 0, 0, 0, time.UTC)

const usageBody = `{"email":"dev@example.com","plan_type":"plus","rate_limit":{"allowed":true,` +
	`"primary_window":{"used_percent":37,"limit_window_seconds":18000,"reset_at":1777651200},` +
	`"secondary_window":{"used_percent":112,"limit_window_seconds":604800,"reset_at":1778000000}},` +
	`"credits":{"has_credits":true,"unlimited":false,"balance":"5.00"}}`

func TestAPISourceReadsUsage(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "auth.json"), `{"tokens":{"access_token":"tok-1","account_id":"acct-1"}}`)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/backend-api/wham/usage", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "acct-1", r.Header.Get("ChatGPT-Account-Id"))
		_, _ = w.Write([]byte(usageBody))
	}))
	defer srv.Close()

	src := NewAPISource(APIConfig{
		BaseURL:  srv.URL + "/backend-api",
		AuthPath: filepath.Join(dir, "auth.json"),
		Client:   srv.Client(),
		Now:      func() time.Time { return now },
	})
	r, err := src.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.ConfidenceHigh, r.Confidence)
	assert.Equal(t, float64(37), r.Usage.Session.Used)
	assert.Equal(t, 5*time.Hour, r.Usage.SessionWindow.Duration)
	assert.Equal(t, float64(100), r.Usage.Week.Used)
	assert.True(t, time.Unix(1778000000, 0).Equal(*r.Usage.WeekWindow.ResetAt))
	require.NotNil(t, r.Usage.Money)
	assert.InDelta(t, 5.0, r.Usage.Money.Ceiling, 1e-9)
	assert.Equal(t, &core.Identity{Email: "dev@example.com", Plan: "ChatGPT Plus"}, r.Identity)
	assert.Equal(t, "session 37% · week 100% · credits $5.00 (api)", r.Summary)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAPISourceAccountIDFallback(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "auth.json"), `{"account_id":"top-level","tokens":{"access_token":"tok"}}`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "top-level", r.Header.Get("ChatGPT-Account-Id"))
		_, _ = w.Write([]byte(usageBody))
	}))
	defer srv.Close()

	src := NewAPISource(APIConfig{BaseURL: srv.URL, AuthPath: filepath.Join(dir, "auth.json"), Client: srv.Client()})
	r, err := src.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.ConfidenceHigh, r.Confidence)
}

func TestAPISourceFailures(t *testing.T) {
	dir := t.TempDir()

	r, err := NewAPISource(APIConfig{AuthPath: filepath.Join(dir, "missing.json")}).Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.ConfidenceUnknown, r.Confidence)
	assert.Contains(t, r.Summary, "codex login")

	writeFile(t, filepath.Join(dir, "auth.json"), `{"tokens":{}}`)
	r, err = NewAPISource(APIConfig{AuthPath: filepath.Join(dir, "auth.json")}).Read(context.Background())
	require.NoError(t, err)
	assert.Contains(t, r.Summary, "no access token")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	r, err = NewAPISource(APIConfig{BaseURL: srv.URL, Token: "tok", Client: srv.Client()}).Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.ConfidenceUnknown, r.Confidence)
	assert.Contains(t, r.Summary, "rejected the token")
}

func TestAPISourceCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(usageBody))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewAPISource(APIConfig{BaseURL: srv.URL, Token: "tok", Client: srv.Client()}).Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSourcesOrder(t *testing.T) {
	var names []string
	for _, s := range Sources(Options{ConfigDir: t.TempDir(), Probe: DefaultProbe}) {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"usage-api", "logs", "cli"}, names)
	assert.Len(t, Sources(Options{ConfigDir: t.TempDir()}), 2)
}
