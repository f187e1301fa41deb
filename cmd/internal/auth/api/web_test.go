package authapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func cookieHandler() *Handler {
	return &Handler{cfg: Config{
		RefreshCookieName: "refresh_token",
		CookiePath:        "/auth/refresh",
		CookieSecure:      true,
		CookieSameSite:    http.SameSiteNoneMode,
	}}
}

func TestSetRefreshCookieAttributes(t *testing.T) {
	h := cookieHandler()
	rec := httptest.NewRecorder()

	now := time.Now().UTC()
	h.setRefreshCookie(rec, "opaque-secret", now, now.Add(7*24*time.Hour))

	res := rec.Result()
	cookies := res.Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %d, want 1", len(cookies))
	}
	c := cookies[0]
	if c.Name != "refresh_token" || c.Value != "opaque-secret" {
		t.Fatalf("cookie = %s=%s", c.Name, c.Value)
	}
	if !c.HttpOnly || !c.Secure {
		t.Fatalf("cookie must be HttpOnly and Secure: %+v", c)
	}
	if c.Path != "/auth/refresh" {
		t.Fatalf("path = %q", c.Path)
	}
	if c.SameSite != http.SameSiteNoneMode {
		t.Fatalf("samesite = %v", c.SameSite)
	}
	if c.MaxAge != 7*24*60*60 {
		t.Fatalf("max-age = %d, want %d", c.MaxAge, 7*24*60*60)
	}
}

func TestClearRefreshCookie(t *testing.T) {
	h := cookieHandler()
	rec := httptest.NewRecorder()

	h.clearRefreshCookie(rec)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %d, want 1", len(cookies))
	}
	c := cookies[0]
	if c.Value != "" || c.MaxAge >= 0 {
		t.Fatalf("cookie not cleared: %+v", c)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"":                   "",
		"Bearer abc":         "abc",
		"bearer abc":         "abc",
		"Bearer   abc  ":     "abc",
		"Basic dXNlcjpwdw==": "",
		"abc":                "",
	}
	for header, want := range cases {
		r := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		if got := bearerToken(r); got != want {
			t.Fatalf("bearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}
