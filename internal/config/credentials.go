package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/janekbaraniewski/openpulse/internal/core"
)

// CredentialStore looks up an API token for a provider. Stores are
// read-only.
type CredentialStore interface {
	Lookup(provider core.ProviderID) (string, bool)
}

// FileCredentials is credentials.json: {"keys": {"claude": "..."}}.
type FileCredentials struct {
	Keys map[string]string `json:"keys"`
}

func (f FileCredentials) Lookup(provider core.ProviderID) (string, bool) {
	v := strings.TrimSpace(f.Keys[string(provider)])
	return v, v != ""
}

// LoadCredentialsFrom reads path. A missing file is an empty store.
func LoadCredentialsFrom(path string) (FileCredentials, error) {
	creds := FileCredentials{Keys: make(map[string]string)}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return creds, nil
		}
		return creds, fmt.Errorf("config: reading credentials: %w", err)
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return FileCredentials{Keys: make(map[string]string)}, fmt.Errorf("config: parsing credentials %s: %w", path, err)
	}
	if creds.Keys == nil {
		creds.Keys = make(map[string]string)
	}
	return creds, nil
}

// EnvVar is the environment variable holding provider's token, for example
// OPENPULSE_CLAUDE_TOKEN.
func EnvVar(provider core.ProviderID) string {
	id := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, string(provider))
	return "OPENPULSE_" + id + "_TOKEN"
}

// EnvCredentials reads OPENPULSE_<PROVIDER>_TOKEN through Getenv, which
// defaults to os.Getenv.
type EnvCredentials struct {
	Getenv func(string) string
}

func (e EnvCredentials) Lookup(provider core.ProviderID) (string, bool) {
	getenv := e.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	v := strings.TrimSpace(getenv(EnvVar(provider)))
	return v, v != ""
}

// LoadDotEnv reads a .env file without touching the process environment.
// A missing file is an empty store.
func LoadDotEnv(path string) (EnvCredentials, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return EnvCredentials{Getenv: func(string) string { return "" }}, nil
		}
		return EnvCredentials{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return EnvCredentials{Getenv: func(key string) string { return vars[key] }}, nil
}

// ChainCredentials returns the first store's answer.
type ChainCredentials []CredentialStore

func (c ChainCredentials) Lookup(provider core.ProviderID) (string, bool) {
	for _, s := range c {
		if s == nil {
			continue
		}
		if v, ok := s.Lookup(provider); ok {
			return v, true
		}
	}
	return "", false
}

// DefaultCredentials chains the process environment, ./.env and the
// credentials file, in that order.
func DefaultCredentials(path string) (CredentialStore, error) {
	dotenv, err := LoadDotEnv(".env")
	if err != nil {
		return nil, err
	}
	file, err := LoadCredentialsFrom(path)
	if err != nil {
		return nil, err
	}
	return ChainCredentials{EnvCredentials{}, dotenv, file}, nil
}
