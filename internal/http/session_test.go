package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"moneta/internal/backend"
)

func TestSessionCodec(t *testing.T) {
	codec, err := newSessionCodec("a-very-long-session-secret", true)
	if err != nil {
		t.Fatal(err)
	}
	in := backend.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Unix(1716000000, 0),
		User:         backend.User{ID: "user-1", Email: "a@b.it"},
	}

	rr := httptest.NewRecorder()
	if err := codec.write(rr, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %d", len(cookies))
	}
	ck := cookies[0]
	if !ck.HttpOnly || !ck.Secure || ck.SameSite != http.SameSiteLaxMode {
		t.Errorf("cookie flags = %+v", ck)
	}
	if strings.Contains(ck.Value, "access") || strings.Contains(ck.Value, "a@b.it") {
		t.Error("cookie value is not sealed")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(ck)
	out, err := codec.read(req)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if out.AccessToken != in.AccessToken || out.RefreshToken != in.RefreshToken ||
		out.User != in.User || !out.ExpiresAt.Equal(in.ExpiresAt) {
		t.Errorf("session = %+v, want %+v", out, in)
	}
}

func TestSessionCodec_RejectsForeignKey(t *testing.T) {
	a, _ := newSessionCodec("first-secret-value-123", false)
	b, _ := newSessionCodec("second-secret-value-456", false)

	value, err := a.encode(backend.Session{AccessToken: "x", User: backend.User{ID: "u"}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.decode(value); err != errBadSession {
		t.Errorf("decode with other key: err = %v", err)
	}
	tampered := []byte(value)
	tampered[len(tampered)/2] ^= 0x01
	if _, err := a.decode(string(tampered)); err != errBadSession {
		t.Errorf("decode tampered: err = %v", err)
	}
	if _, err := a.decode("not base64!"); err != errBadSession {
		t.Errorf("decode garbage: err = %v", err)
	}
}

func TestSessionCodec_RandomKeyWhenNoSecret(t *testing.T) {
	a, _ := newSessionCodec("", false)
	b, _ := newSessionCodec("", false)
	if a.key == b.key {
		t.Fatal("random keys collided")
	}
}

func TestSessionCodec_Clear(t *testing.T) {
	codec, _ := newSessionCodec("", false)
	rr := httptest.NewRecorder()
	codec.clear(rr)
	ck := rr.Result().Cookies()[0]
	if ck.Name != sessionCookie || ck.MaxAge >= 0 {
		t.Errorf("clear cookie = %+v", ck)
	}
}
