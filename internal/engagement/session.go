package engagement

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	// SessionCookie carries the browser's session token.
	SessionCookie = "neuro-ai-session"
	tokenLength   = 13
	tokenAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

var tokenPattern = regexp.MustCompile(`^[0-9a-z]{1,32}$`)

// SessionContext is the local identity shared by every widget of one browser or CLI user.
type SessionContext struct {
	Token string
}

// VisitorID is the presence key: "ip-token" when the public address is known.
func (s SessionContext) VisitorID(ip string) string {
	if ip = strings.TrimSpace(ip); ip != "" {
		return ip + "-" + s.Token
	}
	return s.Token
}

// NewToken returns a random base36 token. It is not a secret.
func NewToken() (string, error) {
	max := big.NewInt(int64(len(tokenAlphabet)))
	b := make([]byte, tokenLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = tokenAlphabet[n.Int64()]
	}
	return string(b), nil
}

func ValidToken(token string) bool {
	return tokenPattern.MatchString(token)
}

// TokenStore persists the session token between runs.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
}

// LoadSession returns the stored session, creating and saving one on first use.
func LoadSession(store TokenStore) (SessionContext, error) {
	token, err := store.Load()
	if err == nil && ValidToken(token) {
		return SessionContext{Token: token}, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return SessionContext{}, fmt.Errorf("load session token: %w", err)
	}

	if token, err = NewToken(); err != nil {
		return SessionContext{}, err
	}
	if err := store.Save(token); err != nil {
		return SessionContext{}, fmt.Errorf("save session token: %w", err)
	}
	return SessionContext{Token: token}, nil
}

// FileTokenStore keeps the token in a small file, for the CLI.
type FileTokenStore struct {
	Path string
}

// DefaultTokenPath is ~/.config/neuro-ai/session, or a temp path without a config dir.
func DefaultTokenPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "neuro-ai", "session")
}

func (s FileTokenStore) Load() (string, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func (s FileTokenStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.Path, []byte(token+"\n"), 0o600)
}

// SessionFromRequest reads the session cookie, issuing a new one when it is
// missing or malformed.
func SessionFromRequest(w http.ResponseWriter, r *http.Request) (SessionContext, error) {
	if c, err := r.Cookie(SessionCookie); err == nil && ValidToken(c.Value) {
		return SessionContext{Token: c.Value}, nil
	}
	token, err := NewToken()
	if err != nil {
		return SessionContext{}, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().AddDate(1, 0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return SessionContext{Token: token}, nil
}
