package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/janekbaraniewski/openpulse/internal/core"
	"github.com/janekbaraniewski/openpulse/internal/logscan"
	"github.com/janekbaraniewski/openpulse/internal/render"
)

// TokenLimits are the configured per-window token ceilings. Zero means no
// known ceiling.
type TokenLimits struct {
	Session int64
	Week    int64
}

type LogSourceConfig struct {
	Scanner *logscan.Scanner
	Limits  TokenLimits
	Digest  *DigestAttacher
	Now     func() time.Time
}

// LogSource derives session and week token totals from local session logs.
type LogSource struct {
	profile core.ProviderProfile
	cfg     LogSourceConfig
	now     func() time.Time
}

func NewLogSource(profile core.ProviderProfile, cfg LogSourceConfig) *LogSource {
	return &LogSource{profile: profile, cfg: cfg, now: Now(cfg.Now)}
}

func (s *LogSource) Profile() core.ProviderProfile { return s.profile }
func (s *LogSource) Name() string                  { return "logs" }

func (s *LogSource) Read(ctx context.Context) (core.Reading, error) {
	id := s.profile.ID
	now := s.now()
	if s.cfg.Scanner == nil {
		return Unavailable(id, core.SourceLocalLog, now, "log scanning not configured"), nil
	}

	sum, err := s.cfg.Scanner.Scan(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return core.Reading{}, ctx.Err()
		}
		return Unavailable(id, core.SourceLocalLog, now, "log scan failed: %v", err), nil
	}
	if sum.Files == 0 {
		return Unavailable(id, core.SourceLocalLog, now, "no recent session logs"), nil
	}

	sessionWindow := &core.QuotaWindow{Duration: windowOr(s.cfg.Scanner.SessionWindow, logscan.DefaultSessionWindow)}
	if sum.HasSession() {
		end := sum.SessionEnd
		sessionWindow.ResetAt = &end
	}
	usage := core.UsagePulse{
		Provider:      id,
		CapturedAt:    now,
		Session:       core.Tokens(sum.SessionTokens(), s.cfg.Limits.Session),
		Week:          core.Tokens(sum.WeekTokens(), s.cfg.Limits.Week),
		SessionWindow: sessionWindow,
		WeekWindow:    &core.QuotaWindow{Duration: windowOr(s.cfg.Scanner.WeekWindow, logscan.DefaultWeekWindow)},
	}

	summary := fmt.Sprintf("Session %s tokens · week %s tokens (logs)",
		render.FormatTokens(sum.SessionTokens()), render.FormatTokens(sum.WeekTokens()))
	r := core.NewReading(id, core.SourceLocalLog, core.ConfidenceMedium, now, summary).WithUsage(usage)
	return s.cfg.Digest.Attach(ctx, r), nil
}

func windowOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
