package http

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"golang.org/x/crypto/nacl/secretbox"

	"moneta/internal/backend"
)

const (
	sessionCookie = "moneta_session"
	themeCookie   = "moneta_theme"

	sessionMaxAge = 30 * 24 * time.Hour
	nonceSize     = 24
)

var errBadSession = errors.New("invalid session cookie")

// sessionCodec seals backend sessions into an encrypted cookie.
type sessionCodec struct {
	key    [32]byte
	secure bool
}

// newSessionCodec derives the sealing key from secret. An empty secret gets
// a random key, so sessions do not survive a restart.
func newSessionCodec(secret string, secure bool) (*sessionCodec, error) {
	c := &sessionCodec{secure: secure}
	if secret == "" {
		if _, err := io.ReadFull(rand.Reader, c.key[:]); err != nil {
			return nil, err
		}
		return c, nil
	}
	c.key = sha256.Sum256([]byte(secret))
	return c, nil
}

type sessionPayload struct {
	AccessToken  string `json:"at"`
	RefreshToken string `json:"rt"`
	ExpiresAt    int64  `json:"exp,omitempty"`
	UserID       string `json:"uid"`
	Email        string `json:"em"`
}

func (c *sessionCodec) encode(s backend.Session) (string, error) {
	p := sessionPayload{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		UserID:       s.User.ID,
		Email:        s.User.Email,
	}
	if !s.ExpiresAt.IsZero() {
		p.ExpiresAt = s.ExpiresAt.Unix()
	}
	plain, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	sealed := secretbox.Seal(nonce[:], plain, &nonce, &c.key)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (c *sessionCodec) decode(value string) (backend.Session, error) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return backend.Session{}, errBadSession
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &c.key)
	if !ok {
		return backend.Session{}, errBadSession
	}

	var p sessionPayload
	if err := json.Unmarshal(plain, &p); err != nil || p.AccessToken == "" || p.UserID == "" {
		return backend.Session{}, errBadSession
	}
	s := backend.Session{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		User:         backend.User{ID: p.UserID, Email: p.Email},
	}
	if p.ExpiresAt > 0 {
		s.ExpiresAt = time.Unix(p.ExpiresAt, 0)
	}
	return s, nil
}

// read returns the session stored in the request cookie.
func (c *sessionCodec) read(r *http.Request) (backend.Session, error) {
	ck, err := r.Cookie(sessionCookie)
	if err != nil {
		return backend.Session{}, errBadSession
	}
	return c.decode(ck.Value)
}

func (c *sessionCodec) write(w http.ResponseWriter, s backend.Session) error {
	value, err := c.encode(s)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   int(sessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (c *sessionCodec) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
