package login

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/unirating/internal/models"
)

var ErrInvalidSession = errors.New("invalid session")

// MinSecretLength is the minimum session secret size for HMAC-SHA256.
const MinSecretLength = 32

// CookieOptions are the raw cookie settings read from configuration.
// Empty Secure and SameSite values are resolved from the deployment mode.
type CookieOptions struct {
	Name     string
	Mode     string
	Secure   string
	SameSite string
	Domain   string
	Secret   string
}

// CookieConfig is the resolved session cookie policy.
type CookieConfig struct {
	Name     string
	Secure   bool
	SameSite http.SameSite
	Domain   string
	secret   []byte
}

// ResolveCookieConfig applies the deployment mode defaults: production cookies
// are Secure with SameSite=None so a separately hosted client can send them,
// everything else is SameSite=Lax over plain HTTP.
func ResolveCookieConfig(opts CookieOptions) (CookieConfig, error) {
	if len(opts.Secret) < MinSecretLength {
		return CookieConfig{}, fmt.Errorf("session secret must be at least %d bytes", MinSecretLength)
	}

	production := opts.Mode == "production"

	cfg := CookieConfig{
		Name:     opts.Name,
		Secure:   production,
		SameSite: http.SameSiteLaxMode,
		Domain:   opts.Domain,
		secret:   []byte(opts.Secret),
	}
	if cfg.Name == "" {
		cfg.Name = "sid"
	}
	if production {
		cfg.SameSite = http.SameSiteNoneMode
	}

	switch strings.ToLower(opts.Secure) {
	case "":
	case "true":
		cfg.Secure = true
	case "false":
		cfg.Secure = false
	default:
		return CookieConfig{}, fmt.Errorf("invalid cookie secure value %q", opts.Secure)
	}

	switch strings.ToLower(opts.SameSite) {
	case "":
	case "lax":
		cfg.SameSite = http.SameSiteLaxMode
	case "strict":
		cfg.SameSite = http.SameSiteStrictMode
	case "none":
		cfg.SameSite = http.SameSiteNoneMode
	default:
		return CookieConfig{}, fmt.Errorf("invalid cookie same-site value %q", opts.SameSite)
	}

	if cfg.SameSite == http.SameSiteNoneMode && !cfg.Secure {
		log.Warn().Msg("SameSite=None cookies without Secure are rejected by browsers")
	}

	return cfg, nil
}

func (c CookieConfig) sign(sessionID string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(sessionID))
	return sessionID + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// verify returns the session id carried by a signed cookie value.
func (c CookieConfig) verify(value string) (string, error) {
	sessionID, encodedSig, ok := strings.Cut(value, ".")
	if !ok || sessionID == "" {
		return "", ErrInvalidSession
	}

	receivedSig, err := base64.RawURLEncoding.DecodeString(encodedSig)
	if err != nil {
		return "", ErrInvalidSession
	}

	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(sessionID))

	if !hmac.Equal(receivedSig, mac.Sum(nil)) {
		return "", ErrInvalidSession
	}

	return sessionID, nil
}

// SessionID returns the verified session id from the request cookie, or ""
// when there is no cookie or its signature does not match.
func (c CookieConfig) SessionID(r *http.Request) string {
	cookie, err := r.Cookie(c.Name)
	if err != nil {
		return ""
	}

	sessionID, err := c.verify(cookie.Value)
	if err != nil {
		log.Debug().Str("path", r.URL.Path).Msg("Session cookie signature validation failed")
		return ""
	}

	return sessionID
}

// Set writes the signed session cookie.
func (c CookieConfig) Set(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    c.sign(sessionID),
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
		MaxAge:   int(models.SessionTTL.Seconds()),
	})
}

// Clear expires the session cookie with matching scope attributes.
func (c CookieConfig) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
		MaxAge:   -1,
	})
}
