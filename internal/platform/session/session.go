// Package session implements the portal's sign-in session: a signed cookie
// issued after the credential provider accepts the user, a revocation list
// consulted on every request, and the gate that keeps protected pages from
// rendering until the session status is known.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/chacha20poly1305"
)

// CookieName is the session cookie.
const CookieName = "kai_session"

const issuer = "kai-portal"

// ErrInvalid is returned for cookies that fail signature, expiry or shape
// checks.
var ErrInvalid = errors.New("session: invalid token")

// Session is an authenticated sign-in. AccessToken is the upstream bearer
// token obtained at sign-in.
type Session struct {
	ID          string
	UserID      string
	Name        string
	Email       string
	AccessToken string
	ExpiresAt   time.Time
}

// FirstName is the greeting name shown in the header.
func (s *Session) FirstName() string {
	for i, r := range s.Name {
		if r == ' ' {
			return s.Name[:i]
		}
	}
	return s.Name
}

// claims is the cookie payload. SealedToken is the upstream access token
// encrypted with the token key and bound to the JTI; the cookie is only
// signed, so nothing else in it is secret.
type claims struct {
	jwt.RegisteredClaims
	Name        string `json:"name"`
	Email       string `json:"email"`
	SealedToken string `json:"at"`
}

// Manager issues and verifies session cookies.
type Manager struct {
	secret   []byte
	tokenKey []byte
	ttl      time.Duration
	secure   bool
	now      func() time.Time
}

// NewManager signs cookies with secret and seals the upstream token under a
// key derived from it for PurposeAccessToken.
func NewManager(secret []byte, ttl time.Duration, secure bool) *Manager {
	tokenKey, _ := DeriveKey(secret, PurposeAccessToken)
	return &Manager{secret: secret, tokenKey: tokenKey, ttl: ttl, secure: secure, now: time.Now}
}

// seal encrypts token with XChaCha20-Poly1305 using jti as associated data,
// so a sealed token only opens inside the session it was issued for.
func (m *Manager) seal(token, jti string) (string, error) {
	aead, err := chacha20poly1305.NewX(m.tokenKey)
	if err != nil {
		return "", fmt.Errorf("token cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(token)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("token nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(token), []byte(jti))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (m *Manager) open(sealed, jti string) (string, error) {
	aead, err := chacha20poly1305.NewX(m.tokenKey)
	if err != nil {
		return "", fmt.Errorf("token cipher: %w", err)
	}
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrInvalid
	}
	nonce, ct := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ct, []byte(jti))
	if err != nil {
		return "", ErrInvalid
	}
	return string(plain), nil
}

// Issue creates a session and its signed token.
func (m *Manager) Issue(userID, name, email, accessToken string) (*Session, string, error) {
	now := m.now()
	s := &Session{
		ID:          uuid.New().String(),
		UserID:      userID,
		Name:        name,
		Email:       email,
		AccessToken: accessToken,
		ExpiresAt:   now.Add(m.ttl).Truncate(time.Second),
	}
	sealed, err := m.seal(accessToken, s.ID)
	if err != nil {
		return nil, "", err
	}
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.ID,
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
		Name:        name,
		Email:       email,
		SealedToken: sealed,
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		return nil, "", fmt.Errorf("sign session: %w", err)
	}
	return s, raw, nil
}

// Parse verifies raw and returns its session.
func (m *Manager) Parse(raw string) (*Session, error) {
	var c claims
	token, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.ID == "" || c.Subject == "" || c.SealedToken == "" {
		return nil, ErrInvalid
	}
	accessToken, err := m.open(c.SealedToken, c.ID)
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:          c.ID,
		UserID:      c.Subject,
		Name:        c.Name,
		Email:       c.Email,
		AccessToken: accessToken,
		ExpiresAt:   c.ExpiresAt.Time,
	}, nil
}

// SetCookie writes the session cookie.
func (m *Manager) SetCookie(c echo.Context, raw string, expires time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    raw,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func (m *Manager) ClearCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
