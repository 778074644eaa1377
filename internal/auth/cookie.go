package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// SessionCookieName is the cookie carrying the signed user id.
const SessionCookieName = "session"

const sessionTTL = 14 * 24 * time.Hour

var (
	ErrInvalidCookie    = errors.New("invalid cookie format")
	ErrInvalidSignature = errors.New("invalid signature")
)

// CookieSigner signs and verifies cookie values with HMAC-SHA256.
type CookieSigner struct {
	key []byte
}

func NewCookieSigner(secret string) *CookieSigner {
	return &CookieSigner{key: []byte(secret)}
}

// Sign returns value in the format "base64(value)|base64(signature)".
func (s *CookieSigner) Sign(value string) string {
	return fmt.Sprintf("%s|%s",
		base64.URLEncoding.EncodeToString([]byte(value)),
		base64.URLEncoding.EncodeToString(s.mac(value)))
}

// Verify checks a value produced by Sign and returns the original value.
func (s *CookieSigner) Verify(signedValue string) (string, error) {
	valueB64, sigB64, ok := strings.Cut(signedValue, "|")
	if !ok {
		return "", ErrInvalidCookie
	}
	valueBytes, err := base64.URLEncoding.DecodeString(valueB64)
	if err != nil {
		return "", ErrInvalidCookie
	}
	signature, err := base64.URLEncoding.DecodeString(sigB64)
	if err != nil {
		return "", ErrInvalidCookie
	}

	value := string(valueBytes)
	if !hmac.Equal(signature, s.mac(value)) {
		return "", ErrInvalidSignature
	}
	return value, nil
}

func (s *CookieSigner) mac(value string) []byte {
	m := hmac.New(sha256.New, s.key)
	m.Write([]byte(value))
	return m.Sum(nil)
}

// SessionCookie builds the cookie set on login.
func (s *CookieSigner) SessionCookie(userID int) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    s.Sign(strconv.Itoa(userID)),
		Path:     "/",
		Expires:  time.Now().Add(sessionTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// UserID extracts and verifies the session cookie of r.
func (s *CookieSigner) UserID(r *http.Request) (int, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return 0, err
	}
	value, err := s.Verify(cookie.Value)
	if err != nil {
		return 0, err
	}
	id, err := strconv.Atoi(value)
	if err != nil || id <= 0 {
		return 0, ErrInvalidCookie
	}
	return id, nil
}

// ClearedSessionCookie expires the session cookie.
func ClearedSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
	}
}
