package claude_code

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/all"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/pbkdf2"

	"github.com/janekbaraniewski/openpulse/internal/core"
	"github.com/janekbaraniewski/openpulse/internal/providers/shared"
)

const (
	DefaultWebBaseURL = "https://claude.ai"
	cookieDomain      = "claude.ai"
	sessionCookie     = "sessionKey"
	orgCookie         = "lastActiveOrg"
)

var (
	errNoSessionCookie = errors.New("no claude.ai sessionKey cookie found")
	wantCookies        = []string{sessionCookie, "cf_clearance", "anthropic-device-id", orgCookie, "__cf_bm"}
)

// CookieJar returns claude.ai cookies by name.
type CookieJar func(ctx context.Context) (map[string]string, error)

type CookieConfig struct {
	WebBaseURL  string
	AccountPath string
	Cookies     CookieJar
	Client      *http.Client
	Cache       *shared.LiveCache
	Digest      *shared.DigestAttacher
	Now         func() time.Time
}

// CookieSource reads the claude.ai web usage page's backing endpoint with a
// browser or desktop-app session cookie.
type CookieSource struct {
	cfg CookieConfig
	now func() time.Time
}

func NewCookieSource(cfg CookieConfig) *CookieSource {
	if cfg.WebBaseURL == "" {
		cfg.WebBaseURL = DefaultWebBaseURL
	}
	if cfg.Cookies == nil {
		cfg.Cookies = ChainJars(BrowserCookies, DesktopCookies(""))
	}
	if cfg.Cache == nil {
		cfg.Cache = shared.NewLiveCache(shared.DefaultMinLiveInterval)
	}
	return &CookieSource{cfg: cfg, now: shared.Now(cfg.Now)}
}

func (s *CookieSource) Profile() core.ProviderProfile { return Profile }
func (s *CookieSource) Name() string                  { return "web-cookie" }

func (s *CookieSource) Read(ctx context.Context) (core.Reading, error) {
	now := s.now()
	cookies, err := s.cfg.Cookies(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return core.Reading{}, ctx.Err()
		}
		return shared.Unavailable(ProviderID, core.SourceCookie, now, "cookie extraction: %v", err), nil
	}

	acct := readAccount(s.cfg.AccountPath)
	orgUUID := cookies[orgCookie]
	if orgUUID == "" && acct != nil {
		orgUUID = acct.OrganizationUUID
	}
	if orgUUID == "" {
		return shared.Unavailable(ProviderID, core.SourceCookie, now, "no claude.ai organization id"), nil
	}

	r, _, err := s.cfg.Cache.Fetch(now, func() (core.Reading, error) {
		return s.fetch(ctx, orgUUID, cookies, acct, now)
	})
	if err != nil {
		if ctx.Err() != nil {
			return core.Reading{}, ctx.Err()
		}
		return shared.Unavailable(ProviderID, core.SourceCookie, now, "%s", describeFetchError(err)), nil
	}
	return s.cfg.Digest.Attach(ctx, r), nil
}

func (s *CookieSource) fetch(ctx context.Context, orgUUID string, cookies map[string]string, acct *oauthAcct, now time.Time) (core.Reading, error) {
	url := fmt.Sprintf("%s/api/organizations/%s/usage", strings.TrimRight(s.cfg.WebBaseURL, "/"), orgUUID)
	req, err := shared.NewRequest(ctx, url, map[string]string{
		"Cookie":                    cookieHeader(cookies),
		"User-Agent":                "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		"Content-Type":              "application/json",
		"Referer":                   DefaultWebBaseURL + "/settings/usage",
		"anthropic-client-platform": "web_claude_ai",
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
	return core.NewReading(ProviderID, core.SourceCookie, core.ConfidenceHigh, now, usageSummary(pulse, "web")).
		WithUsage(pulse).
		WithIdentity(identityFrom(acct, "")), nil
}

// cookieHeader joins cookies in name order.
func cookieHeader(cookies map[string]string) string {
	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+cookies[name])
	}
	return strings.Join(parts, "; ")
}

// ChainJars tries each jar in turn and returns the first with a session
// cookie.
func ChainJars(jars ...CookieJar) CookieJar {
	return func(ctx context.Context) (map[string]string, error) {
		var errs []error
		for _, jar := range jars {
			cookies, err := jar(ctx)
			if err == nil && cookies[sessionCookie] != "" {
				return cookies, nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if err == nil {
				err = errNoSessionCookie
			}
			errs = append(errs, err)
		}
		return nil, errors.Join(errs...)
	}
}

// BrowserCookies reads claude.ai cookies from every installed browser's
// cookie store.
func BrowserCookies(ctx context.Context) (map[string]string, error) {
	found, err := kooky.ReadCookies(ctx, kooky.Valid, kooky.DomainHasSuffix(cookieDomain))
	cookies := make(map[string]string)
	for _, c := range found {
		if c == nil || c.Value == "" {
			continue
		}
		for _, name := range wantCookies {
			if c.Name == name {
				if _, dup := cookies[name]; !dup {
					cookies[name] = c.Value
				}
			}
		}
	}
	if cookies[sessionCookie] == "" {
		if err != nil {
			return nil, fmt.Errorf("browser cookies: %w", err)
		}
		return nil, errNoSessionCookie
	}
	return cookies, nil
}

// DesktopCookies reads the Claude desktop app's Chromium cookie DB. An
// empty path uses the platform default; only macOS is supported because
// the key lives in the login keychain.
func DesktopCookies(path string) CookieJar {
	return func(ctx context.Context) (map[string]string, error) {
		if runtime.GOOS != "darwin" {
			return nil, errors.New("desktop cookie extraction only supported on macOS")
		}
		dbPath := path
		if dbPath == "" {
			home, _ := os.UserHomeDir()
			dbPath = filepath.Join(home, "Library", "Application Support", "Claude", "Cookies")
		}
		key, err := chromiumKeychainKey(ctx)
		if err != nil {
			return nil, fmt.Errorf("getting encryption key: %w", err)
		}
		return readCookieDB(dbPath, key)
	}
}

func chromiumKeychainKey(ctx context.Context) ([]byte, error) {
	out, err := exec.CommandContext(ctx, "security", "find-generic-password", "-w", "-s", "Claude Safe Storage", "-a", "Claude").Output()
	if err != nil {
		return nil, fmt.Errorf("keychain lookup failed (is Claude desktop installed?): %w", err)
	}
	return chromiumKey(strings.TrimSpace(string(out))), nil
}

func chromiumKey(password string) []byte {
	return pbkdf2.Key([]byte(password), []byte("saltysalt"), 1003, 16, sha1.New)
}

// readCookieDB copies the DB first; the app keeps it locked while running.
func readCookieDB(path string, key []byte) (map[string]string, error) {
	srcData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cookies DB: %w", err)
	}
	tmpFile, err := os.CreateTemp("", "claude-cookies-*.db")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	if err := os.WriteFile(tmpPath, srcData, 0o600); err != nil {
		return nil, fmt.Errorf("writing temp cookies DB: %w", err)
	}

	db, err := sql.Open("sqlite3", tmpPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("opening cookies DB: %w", err)
	}
	defer db.Close()

	placeholders := make([]string, len(wantCookies))
	args := make([]any, len(wantCookies))
	for i, name := range wantCookies {
		placeholders[i] = "?"
		args[i] = name
	}
	query := fmt.Sprintf(
		"SELECT name, encrypted_value FROM cookies WHERE host_key LIKE '%%claude.ai%%' AND name IN (%s)",
		strings.Join(placeholders, ","),
	)
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying cookies: %w", err)
	}
	defer rows.Close()

	cookies := make(map[string]string)
	for rows.Next() {
		var name string
		var encValue []byte
		if err := rows.Scan(&name, &encValue); err != nil {
			continue
		}
		decrypted, err := decryptChromiumCookie(encValue, key)
		if err != nil {
			continue
		}
		cookies[name] = decrypted
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading cookie rows: %w", err)
	}
	if cookies[sessionCookie] == "" {
		return nil, fmt.Errorf("%w (Claude desktop app may not be logged in)", errNoSessionCookie)
	}
	return cookies, nil
}

// chromiumHostPrefixLen is the SHA-256 host digest newer Chromium versions
// prepend to the plaintext.
const chromiumHostPrefixLen = 32

func decryptChromiumCookie(encrypted []byte, key []byte) (string, error) {
	if len(encrypted) < 3 {
		return "", errors.New("encrypted value too short")
	}
	if prefix := string(encrypted[:3]); prefix != "v10" {
		return "", fmt.Errorf("unexpected cookie encryption version: %q", prefix)
	}
	ciphertext := encrypted[3:]
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", errors.New("ciphertext not aligned to block size")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("creating AES cipher: %w", err)
	}
	iv := []byte(strings.Repeat(" ", aes.BlockSize))
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	padLen := int(plaintext[len(plaintext)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(plaintext) {
		return "", errors.New("invalid PKCS7 padding")
	}
	plaintext = plaintext[:len(plaintext)-padLen]

	if len(plaintext) <= chromiumHostPrefixLen {
		return "", fmt.Errorf("decrypted value too short after padding removal (len=%d)", len(plaintext))
	}
	return string(plaintext[chromiumHostPrefixLen:]), nil
}
