package authapi

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"parley/cmd/identity"
	"parley/cmd/internal/auth/session"
	"parley/cmd/security/password"
)

func testPasswordConfig() password.Config {
	// Minimal argon2 cost so handler tests stay fast.
	return password.Config{
		Params: password.Argon2idParams{
			MemoryKiB:   8 * 1024,
			Iterations:  1,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: password.Policy{MinLength: 8, MaxLength: 256},
	}
}

// testServer wires a full auth stack on in-memory stores behind the
// request authenticator, mirroring production composition.
func testServer(t *testing.T) *httptest.Server {
	t.Helper()

	sessCfg := session.DefaultConfig()
	sessCfg.SigningKey = []byte("0123456789abcdef0123456789abcdef")

	codec, err := session.NewAccessTokenCodec(sessCfg)
	if err != nil {
		t.Fatalf("NewAccessTokenCodec: %v", err)
	}

	users := identity.NewMemoryStore()
	store := session.NewMemoryStore(sessCfg)
	pwCfg := testPasswordConfig()

	svc := session.NewService(sessCfg, users, pwCfg, store, codec)

	apiCfg := LoadConfigFromEnv()
	apiCfg.CookieSecure = false // httptest serves plain HTTP

	h, err := NewHandler(slog.New(slog.DiscardHandler), apiCfg, users, svc, pwCfg)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(h.RequestAuthenticator(mux))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, client *http.Client, url string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func refreshCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == "refresh_token" {
			return c
		}
	}
	return nil
}

func TestRegisterLoginRefreshFlow(t *testing.T) {
	srv := testServer(t)
	client := srv.Client()

	// Register.
	resp := postJSON(t, client, srv.URL+"/auth/register", registerRequest{Username: "Mina", Password: "hunter22x"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	reg := decodeBody[registerResponse](t, resp)
	if reg.User.Username != "mina" {
		t.Fatalf("registered username = %q, want normalized mina", reg.User.Username)
	}
	if reg.User.Role != identity.RoleUser {
		t.Fatalf("role = %q", reg.User.Role)
	}

	// Duplicate register conflicts, even with different case.
	resp = postJSON(t, client, srv.URL+"/auth/register", registerRequest{Username: "MINA", Password: "hunter22x"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate register status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	// Login issues an access token and a scoped refresh cookie.
	resp = postJSON(t, client, srv.URL+"/auth/login", loginRequest{Username: "mina", Password: "hunter22x"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	cookie := refreshCookie(resp)
	if cookie == nil {
		t.Fatalf("login set no refresh cookie")
	}
	if !cookie.HttpOnly {
		t.Fatalf("refresh cookie must be HttpOnly")
	}
	if cookie.Path != "/auth/refresh" {
		t.Fatalf("cookie path = %q", cookie.Path)
	}
	login := decodeBody[loginResponse](t, resp)
	if login.Token.AccessToken == "" {
		t.Fatalf("login returned no access token")
	}

	// Refresh with the cookie rotates the secret.
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/auth/refresh", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: cookie.Value})
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d", resp.StatusCode)
	}
	rotated := refreshCookie(resp)
	if rotated == nil || rotated.Value == cookie.Value {
		t.Fatalf("refresh did not rotate the cookie")
	}
	refreshed := decodeBody[refreshResponse](t, resp)
	if refreshed.Token.AccessToken == "" {
		t.Fatalf("refresh returned no access token")
	}

	// The spent secret no longer works and the cookie gets cleared.
	req, err = http.NewRequest(http.MethodPost, srv.URL+"/auth/refresh", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: cookie.Value})
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("refresh (spent): %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("spent refresh status = %d, want 401", resp.StatusCode)
	}
	if c := refreshCookie(resp); c == nil || c.MaxAge >= 0 {
		t.Fatalf("spent refresh should clear the cookie")
	}
}

func TestLoginFailureIsUniform(t *testing.T) {
	srv := testServer(t)
	client := srv.Client()

	resp := postJSON(t, client, srv.URL+"/auth/register", registerRequest{Username: "omar", Password: "hunter22x"})
	resp.Body.Close()

	wrongPass := postJSON(t, client, srv.URL+"/auth/login", loginRequest{Username: "omar", Password: "wrongpass1"})
	noUser := postJSON(t, client, srv.URL+"/auth/login", loginRequest{Username: "nobody", Password: "whatever1"})

	if wrongPass.StatusCode != http.StatusUnauthorized || noUser.StatusCode != http.StatusUnauthorized {
		t.Fatalf("statuses = %d / %d, want 401 / 401", wrongPass.StatusCode, noUser.StatusCode)
	}

	a := decodeBody[errorResponse](t, wrongPass)
	b := decodeBody[errorResponse](t, noUser)
	// The two failure modes must be indistinguishable in the response body.
	if a != b {
		t.Fatalf("failure bodies differ: %+v vs %+v", a, b)
	}
}

func TestProtectedEndpoints(t *testing.T) {
	srv := testServer(t)
	client := srv.Client()

	resp := postJSON(t, client, srv.URL+"/auth/register", registerRequest{Username: "mina", Password: "hunter22x"})
	resp.Body.Close()
	resp = postJSON(t, client, srv.URL+"/auth/login", loginRequest{Username: "mina", Password: "hunter22x"})
	login := decodeBody[loginResponse](t, resp)

	// No token.
	r, _ := http.NewRequest(http.MethodGet, srv.URL+"/me", nil)
	resp, err := client.Do(r)
	if err != nil {
		t.Fatalf("GET /me: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated /me status = %d", resp.StatusCode)
	}

	// Bad token.
	r, _ = http.NewRequest(http.MethodGet, srv.URL+"/me", nil)
	r.Header.Set("Authorization", "Bearer not-a-token")
	resp, err = client.Do(r)
	if err != nil {
		t.Fatalf("GET /me: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad-token /me status = %d", resp.StatusCode)
	}

	// Valid token.
	r, _ = http.NewRequest(http.MethodGet, srv.URL+"/me", nil)
	r.Header.Set("Authorization", "Bearer "+login.Token.AccessToken)
	resp, err = client.Do(r)
	if err != nil {
		t.Fatalf("GET /me: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authenticated /me status = %d", resp.StatusCode)
	}
	me := decodeBody[meResponse](t, resp)
	if me.User.Username != "mina" {
		t.Fatalf("me = %q", me.User.Username)
	}

	// Directory listing requires auth too.
	r, _ = http.NewRequest(http.MethodGet, srv.URL+"/users", nil)
	r.Header.Set("Authorization", "Bearer "+login.Token.AccessToken)
	resp, err = client.Do(r)
	if err != nil {
		t.Fatalf("GET /users: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/users status = %d", resp.StatusCode)
	}
	users := decodeBody[usersResponse](t, resp)
	if len(users.Users) != 1 || users.Users[0].Username != "mina" {
		t.Fatalf("users = %+v", users.Users)
	}
}

func TestCheckUsername(t *testing.T) {
	srv := testServer(t)
	client := srv.Client()

	resp := postJSON(t, client, srv.URL+"/auth/register", registerRequest{Username: "mina", Password: "hunter22x"})
	resp.Body.Close()

	resp, err := client.Get(srv.URL + "/auth/check-username?username=Mina")
	if err != nil {
		t.Fatalf("GET check-username: %v", err)
	}
	if got := decodeBody[checkUsernameResponse](t, resp).Exists; !got {
		t.Fatalf("exists = false, want true")
	}

	resp, err = client.Get(srv.URL + "/auth/check-username?username=ghost")
	if err != nil {
		t.Fatalf("GET check-username: %v", err)
	}
	if got := decodeBody[checkUsernameResponse](t, resp).Exists; got {
		t.Fatalf("exists = true, want false")
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	srv := testServer(t)
	client := srv.Client()

	resp := postJSON(t, client, srv.URL+"/auth/logout", struct{}{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status = %d", resp.StatusCode)
	}
	c := refreshCookie(resp)
	if c == nil || c.MaxAge >= 0 || c.Value != "" {
		t.Fatalf("logout did not clear the refresh cookie: %+v", c)
	}
}

func TestRefreshRequiresCookie(t *testing.T) {
	srv := testServer(t)
	client := srv.Client()

	resp := postJSON(t, client, srv.URL+"/auth/register", registerRequest{Username: "mina", Password: "hunter22x"})
	resp.Body.Close()
	resp = postJSON(t, client, srv.URL+"/auth/login", loginRequest{Username: "mina", Password: "hunter22x"})
	cookie := refreshCookie(resp)
	resp.Body.Close()
	if cookie == nil {
		t.Fatalf("login set no refresh cookie")
	}

	// A valid secret in the request body is not a substitute for the cookie.
	resp = postJSON(t, client, srv.URL+"/auth/refresh", map[string]string{"refresh_token": cookie.Value})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("body-only refresh status = %d, want 401", resp.StatusCode)
	}

	// No cookie at all.
	resp = postJSON(t, client, srv.URL+"/auth/refresh", struct{}{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("cookieless refresh status = %d, want 401", resp.StatusCode)
	}

	// The cookie still works afterwards; the rejected attempts spent nothing.
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/auth/refresh", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: cookie.Value})
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cookie refresh status = %d", resp.StatusCode)
	}
}

func TestChangePassword(t *testing.T) {
	srv := testServer(t)
	client := srv.Client()

	resp := postJSON(t, client, srv.URL+"/auth/register", registerRequest{Username: "mina", Password: "hunter22x"})
	resp.Body.Close()
	resp = postJSON(t, client, srv.URL+"/auth/login", loginRequest{Username: "mina", Password: "hunter22x"})
	cookie := refreshCookie(resp)
	login := decodeBody[loginResponse](t, resp)
	if cookie == nil || login.Token.AccessToken == "" {
		t.Fatalf("login did not issue a full session")
	}

	postChange := func(token string, body changePasswordRequest) *http.Response {
		t.Helper()
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/auth/change-password", bytes.NewReader(buf))
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("POST change-password: %v", err)
		}
		return resp
	}

	// Requires authentication.
	resp = postChange("", changePasswordRequest{CurrentPassword: "hunter22x", NewPassword: "brandnew99"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated change status = %d, want 401", resp.StatusCode)
	}

	// Requires the current password.
	resp = postChange(login.Token.AccessToken, changePasswordRequest{CurrentPassword: "wrongpass1", NewPassword: "brandnew99"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("wrong-current change status = %d, want 400", resp.StatusCode)
	}

	// New password must meet the length policy.
	resp = postChange(login.Token.AccessToken, changePasswordRequest{CurrentPassword: "hunter22x", NewPassword: "short"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("short-new change status = %d, want 400", resp.StatusCode)
	}

	// The real change succeeds and clears the refresh cookie.
	resp = postChange(login.Token.AccessToken, changePasswordRequest{CurrentPassword: "hunter22x", NewPassword: "brandnew99"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("change status = %d, want 204", resp.StatusCode)
	}
	if c := refreshCookie(resp); c == nil || c.MaxAge >= 0 {
		t.Fatalf("change-password should clear the refresh cookie")
	}

	// The pre-change refresh session is revoked.
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/auth/refresh", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: cookie.Value})
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("old refresh after change status = %d, want 401", resp.StatusCode)
	}

	// Only the new password logs in now.
	resp = postJSON(t, client, srv.URL+"/auth/login", loginRequest{Username: "mina", Password: "hunter22x"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("old-password login status = %d, want 401", resp.StatusCode)
	}
	resp = postJSON(t, client, srv.URL+"/auth/login", loginRequest{Username: "mina", Password: "brandnew99"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("new-password login status = %d", resp.StatusCode)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	srv := testServer(t)
	client := srv.Client()

	cases := map[string]registerRequest{
		"short username": {Username: "ab", Password: "hunter22x"},
		"bad charset":    {Username: "bad name!", Password: "hunter22x"},
		"short password": {Username: "goodname", Password: "short"},
	}
	for name, req := range cases {
		resp := postJSON(t, client, srv.URL+"/auth/register", req)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", name, resp.StatusCode)
		}
	}
}
