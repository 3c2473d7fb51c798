package claude_code

import (
	"time"

	"github.com/janekbaraniewski/openpulse/internal/core"
	"github.com/janekbaraniewski/openpulse/internal/providers/shared"
)

// accountConfig is the part of ~/.claude.json we read.
type accountConfig struct {
	OAuthAccount *oauthAcct `json:"oauthAccount"`
}

type oauthAcct struct {
	AccountUUID      string `json:"accountUuid"`
	EmailAddress     string `json:"emailAddress"`
	OrganizationUUID string `json:"organizationUuid"`
	OrganizationName string `json:"organizationName"`
	DisplayName      string `json:"displayName"`
}

// credentialsFile is ~/.claude/.credentials.json as written by the CLI.
type credentialsFile struct {
	ClaudeAiOauth *oauthCredentials `json:"claudeAiOauth"`
}

type oauthCredentials struct {
	AccessToken      string `json:"accessToken"`
	ExpiresAt        int64  `json:"expiresAt"` // unix millis
	SubscriptionType string `json:"subscriptionType"`
	RateLimitTier    string `json:"rateLimitTier"`
}

func (c *oauthCredentials) expired(now time.Time) bool {
	return c.ExpiresAt > 0 && !time.UnixMilli(c.ExpiresAt).After(now)
}

func readAccount(path string) *oauthAcct {
	if path == "" {
		return nil
	}
	var cfg accountConfig
	if err := shared.ReadJSONFile(path, &cfg); err != nil {
		return nil
	}
	return cfg.OAuthAccount
}

func readCredentials(path string) (*oauthCredentials, error) {
	var f credentialsFile
	if err := shared.ReadJSONFile(path, &f); err != nil {
		return nil, err
	}
	if f.ClaudeAiOauth == nil {
		return nil, errNoOAuth
	}
	return f.ClaudeAiOauth, nil
}

func identityFrom(acct *oauthAcct, subscription string) core.Identity {
	id := core.Identity{Plan: planName(subscription)}
	if acct != nil {
		id.Email = acct.EmailAddress
		id.Org = shared.FirstNonEmpty(acct.OrganizationName, acct.OrganizationUUID)
	}
	return id
}
