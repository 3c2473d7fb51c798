package codex

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/janekbaraniewski/openpulse/internal/core"
	"github.com/janekbaraniewski/openpulse/internal/providers/shared"
)

type APIConfig struct {
	// BaseURL overrides chatgpt_base_url from config.toml.
	BaseURL   string
	ConfigDir string
	AuthPath  string
	// Token replaces the access token from auth.json when set.
	Token  string
	Client *http.Client
	Cache  *shared.LiveCache
	Digest *shared.DigestAttacher
	Now    func() time.Time
}

// APISource reads the ChatGPT backend usage endpoint the Codex CLI shows in
// its status view.
type APISource struct {
	cfg APIConfig
	now func() time.Time
}

func NewAPISource(cfg APIConfig) *APISource {
	if cfg.Cache == nil {
		cfg.Cache = shared.NewLiveCache(shared.DefaultMinLiveInterval)
	}
	return &APISource{cfg: cfg, now: shared.Now(cfg.Now)}
}

func (s *APISource) Profile() core.ProviderProfile { return Profile }
func (s *APISource) Name() string                  { return "usage-api" }

func (s *APISource) Read(ctx context.Context) (core.Reading, error) {
	now := s.now()
	auth, err := s.credential()
	if err != nil {
		return shared.Unavailable(ProviderID, core.SourceAPI, now, "%v", err), nil
	}

	r, _, err := s.cfg.Cache.Fetch(now, func() (core.Reading, error) {
		return s.fetch(ctx, auth, now)
	})
	if err != nil {
		if ctx.Err() != nil {
			return core.Reading{}, ctx.Err()
		}
		return shared.Unavailable(ProviderID, core.SourceAPI, now, "%s", describeFetchError(err)), nil
	}
	return s.cfg.Digest.Attach(ctx, r), nil
}

func (s *APISource) credential() (authFile, error) {
	auth, err := readAuth(s.cfg.AuthPath)
	if t := strings.TrimSpace(s.cfg.Token); t != "" {
		auth.Tokens.AccessToken = t
		return auth, nil
	}
	switch {
	case errors.Is(err, os.ErrNotExist):
		return authFile{}, errors.New("no auth.json (run `codex login`)")
	case errors.Is(err, errNoAccessToken):
		return authFile{}, errors.New("auth.json has no access token (run `codex login`)")
	case err != nil:
		return authFile{}, err
	}
	return auth, nil
}

func (s *APISource) fetch(ctx context.Context, auth authFile, now time.Time) (core.Reading, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + auth.Tokens.AccessToken,
		"User-Agent":    "codex-cli",
	}
	if id := auth.accountID(); id != "" {
		headers["ChatGPT-Account-Id"] = id
	}
	req, err := shared.NewRequest(ctx, usageURL(resolveBaseURL(s.cfg.BaseURL, s.cfg.ConfigDir)), headers)
	if err != nil {
		return core.Reading{}, err
	}

	var payload usagePayload
	if err := shared.DoJSON(s.cfg.Client, req, &payload); err != nil {
		return core.Reading{}, err
	}
	pulse, ok := payload.toPulse(now)
	if !ok {
		return core.Reading{}, errors.New("usage response had no rate limits or credits")
	}
	return core.NewReading(ProviderID, core.SourceAPI, core.ConfidenceHigh, now, usageSummary(pulse, "api")).
		WithUsage(pulse).
		WithIdentity(core.Identity{Email: payload.Email, Plan: planName(payload.PlanType)}), nil
}

func describeFetchError(err error) string {
	switch {
	case errors.Is(err, shared.ErrUnauthorized):
		return "usage API rejected the token (" + err.Error() + "), run `codex login`"
	case errors.Is(err, shared.ErrRateLimited):
		return "usage API " + err.Error()
	default:
		return "usage API: " + err.Error()
	}
}
