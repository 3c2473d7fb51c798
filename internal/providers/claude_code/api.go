package claude_code

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/janekbaraniewski/openpulse/internal/core"
	"github.com/janekbaraniewski/openpulse/internal/providers/shared"
)

const (
	DefaultAPIBaseURL = "https://api.anthropic.com"
	oauthUsagePath    = "/api/oauth/usage"
	oauthBetaHeader   = "oauth-2025-04-20"
)

var errNoOAuth = errors.New("claude_code: no OAuth credentials")

type APIConfig struct {
	BaseURL         string
	CredentialsPath string
	AccountPath     string
	// Token overrides the CLI's stored access token when set.
	Token  string
	Client *http.Client
	Cache  *shared.LiveCache
	Digest *shared.DigestAttacher
	Now    func() time.Time
}

// APISource reads the OAuth usage endpoint the Claude CLI uses for /usage.
type APISource struct {
	cfg APIConfig
	now func() time.Time
}

func NewAPISource(cfg APIConfig) *APISource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAPIBaseURL
	}
	if cfg.Cache == nil {
		cfg.Cache = shared.NewLiveCache(shared.DefaultMinLiveInterval)
	}
	return &APISource{cfg: cfg, now: shared.Now(cfg.Now)}
}

func (s *APISource) Profile() core.ProviderProfile { return Profile }
func (s *APISource) Name() string                  { return "oauth-api" }

func (s *APISource) Read(ctx context.Context) (core.Reading, error) {
	now := s.now()
	token, subscription, err := s.credential(now)
	if err != nil {
		return shared.Unavailable(ProviderID, core.SourceAPI, now, "%v", err), nil
	}

	r, _, err := s.cfg.Cache.Fetch(now, func() (core.Reading, error) {
		return s.fetch(ctx, token, subscription, now)
	})
	if err != nil {
		if ctx.Err() != nil {
			return core.Reading{}, ctx.Err()
		}
		return shared.Unavailable(ProviderID, core.SourceAPI, now, "%s", describeFetchError(err)), nil
	}
	return s.cfg.Digest.Attach(ctx, r), nil
}

func (s *APISource) credential(now time.Time) (token, subscription string, err error) {
	creds, credErr := readCredentials(s.cfg.CredentialsPath)
	if creds != nil {
		subscription = creds.SubscriptionType
	}
	if t := strings.TrimSpace(s.cfg.Token); t != "" {
		return t, subscription, nil
	}
	switch {
	case credErr != nil:
		return "", "", errors.New("no OAuth credentials (run `claude` and sign in)")
	case strings.TrimSpace(creds.AccessToken) == "":
		return "", "", errors.New("OAuth credentials have no access token")
	case creds.expired(now):
		return "", "", errors.New("OAuth token expired (run `claude` to refresh it)")
	}
	return creds.AccessToken, subscription, nil
}

func (s *APISource) fetch(ctx context.Context, token, subscription string, now time.Time) (core.Reading, error) {
	req, err := shared.NewRequest(ctx, strings.TrimRight(s.cfg.BaseURL, "/")+oauthUsagePath, map[string]string{
		"Authorization":  "Bearer " + token,
		"anthropic-beta": oauthBetaHeader,
		"User-Agent":     "claude-code",
	})
	if err != nil {
		return core.Reading{}, err
	}
	var usage usageResponse
	if err := shared.DoJSON(s.cfg.Client, req, &usage); err != nil {
		return core.Reading{}, err
	}

	pulse, ok := usage.toPulse(now)
	if !ok {
		return core.Reading{}, errors.New("usage response had no quota windows")
	}
	return core.NewReading(ProviderID, core.SourceAPI, core.ConfidenceHigh, now, usageSummary(pulse, "api")).
		WithUsage(pulse).
		WithIdentity(identityFrom(readAccount(s.cfg.AccountPath), subscription)), nil
}

func describeFetchError(err error) string {
	switch {
	case errors.Is(err, shared.ErrUnauthorized):
		return "usage API rejected the credential (" + err.Error() + "), sign in again"
	case errors.Is(err, shared.ErrRateLimited):
		return "usage API " + err.Error()
	default:
		return "usage API: " + err.Error()
	}
}
