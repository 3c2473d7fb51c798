package codex

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/janekbaraniewski/openpulse/internal/providers/shared"
)

const DefaultChatGPTBaseURL = "https://chatgpt.com/backend-api"

var errNoAccessToken = errors.New("codex: auth.json has no access token")

// authFile is ~/.codex/auth.json as written by `codex login`.
type authFile struct {
	AccountID string     `json:"account_id,omitempty"`
	Tokens    authTokens `json:"tokens"`
}

type authTokens struct {
	AccessToken string `json:"access_token"`
	AccountID   string `json:"account_id,omitempty"`
}

func (a authFile) accountID() string {
	return shared.FirstNonEmpty(a.Tokens.AccountID, a.AccountID)
}

func readAuth(path string) (authFile, error) {
	var auth authFile
	if err := shared.ReadJSONFile(path, &auth); err != nil {
		return authFile{}, err
	}
	if strings.TrimSpace(auth.Tokens.AccessToken) == "" {
		return authFile{}, errNoAccessToken
	}
	return auth, nil
}

// cliConfig is the part of ~/.codex/config.toml we read.
type cliConfig struct {
	ChatGPTBaseURL string `toml:"chatgpt_base_url"`
}

func readBaseURLFromConfig(configDir string) string {
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	var cfg cliConfig
	if _, err := toml.DecodeFile(filepath.Join(configDir, "config.toml"), &cfg); err != nil {
		return ""
	}
	return strings.TrimSpace(cfg.ChatGPTBaseURL)
}

// resolveBaseURL prefers an explicit override, then config.toml.
func resolveBaseURL(override, configDir string) string {
	if strings.TrimSpace(override) != "" {
		return normalizeBaseURL(override)
	}
	if fromConfig := readBaseURLFromConfig(configDir); fromConfig != "" {
		return normalizeBaseURL(fromConfig)
	}
	return DefaultChatGPTBaseURL
}

func normalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return DefaultChatGPTBaseURL
	}
	if (strings.HasPrefix(baseURL, "https://chatgpt.com") || strings.HasPrefix(baseURL, "https://chat.openai.com")) &&
		!strings.Contains(baseURL, "/backend-api") {
		baseURL += "/backend-api"
	}
	return baseURL
}

func usageURL(baseURL string) string {
	if strings.Contains(baseURL, "/backend-api") {
		return baseURL + "/wham/usage"
	}
	return baseURL + "/api/codex/usage"
}
