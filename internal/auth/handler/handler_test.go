package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"stocktrack/backend/internal/auth/service"
	"stocktrack/backend/internal/security"
	sessiondomain "stocktrack/backend/internal/session/domain"
	tokendomain "stocktrack/backend/internal/token/domain"
	userdomain "stocktrack/backend/internal/user/domain"
)

// fakeStore backs the full stack for handler tests: user, session, and token
// storage in one lock.
type fakeStore struct {
	mu       sync.Mutex
	users    map[string]*userdomain.User
	sessions map[string]*sessiondomain.Session
	tokens   map[string]*tokendomain.EphemeralToken
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]*userdomain.User),
		sessions: make(map[string]*sessiondomain.Session),
		tokens:   make(map[string]*tokendomain.EphemeralToken),
	}
}

func (f *fakeStore) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeStore) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetByPhone(ctx context.Context, phone string) (*userdomain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Phone != "" && u.Phone == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) Create(ctx context.Context, u *userdomain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeStore) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[userID]; ok {
		u.PasswordHash = hash
	}
	return nil
}

// sessionStore implements service.SessionRepo and handler.SessionReader.
type sessionStore struct{ *fakeStore }

func (s sessionStore) Create(ctx context.Context, sess *sessiondomain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.UserID == sess.UserID && existing.Active {
			existing.Active = false
		}
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s sessionStore) GetByID(ctx context.Context, id string) (*sessiondomain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		cp := *sess
		return &cp, nil
	}
	return nil, nil
}

func (s sessionStore) FindLiveByTokenID(ctx context.Context, tokenID string) (*sessiondomain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, sess := range s.sessions {
		if sess.TokenID == tokenID && sess.Active && sess.ExpiresAt.After(now) {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, nil
}

func (s sessionStore) Touch(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.LastActivityAt = time.Now().UTC()
	}
	return nil
}

func (s sessionStore) Invalidate(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok && sess.Active {
		sess.Active = false
		return true, nil
	}
	return false, nil
}

func (s sessionStore) InvalidateAllForUserExcept(ctx context.Context, userID, keepID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.ID != keepID && sess.Active {
			sess.Active = false
			n++
		}
	}
	return n, nil
}

func (s sessionStore) ListActiveForUser(ctx context.Context, userID string) ([]*sessiondomain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	var out []*sessiondomain.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.Active && sess.ExpiresAt.After(now) {
			cp := *sess
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivityAt.After(out[j].LastActivityAt) })
	return out, nil
}

// tokenStore implements service.TokenRepo.
type tokenStore struct{ *fakeStore }

func (s tokenStore) Create(ctx context.Context, t *tokendomain.EphemeralToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tokens[t.ID] = &cp
	return nil
}

func (s tokenStore) ConsumeByTokenHash(ctx context.Context, hash string, purpose tokendomain.Purpose) (*tokendomain.EphemeralToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, t := range s.tokens {
		if t.TokenHash == hash && t.Purpose == purpose && !t.Used && t.ExpiresAt.After(now) {
			t.Used = true
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (s tokenStore) ConsumeByUserAndCodeHash(ctx context.Context, userID, codeHash string, purpose tokendomain.Purpose) (*tokendomain.EphemeralToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, t := range s.tokens {
		if t.UserID == userID && t.CodeHash != "" && t.CodeHash == codeHash && t.Purpose == purpose && !t.Used && t.ExpiresAt.After(now) {
			t.Used = true
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (s tokenStore) MarkAllUsedForUser(ctx context.Context, userID string, purpose tokendomain.Purpose) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, t := range s.tokens {
		if t.UserID == userID && t.Purpose == purpose && !t.Used {
			t.Used = true
			n++
		}
	}
	return n, nil
}

// capturingNotifier records bodies so tests can pull out OTPs.
type capturingNotifier struct {
	mu     sync.Mutex
	bodies []string
}

func (c *capturingNotifier) SendEmail(ctx context.Context, to, subject, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bodies = append(c.bodies, body)
	return nil
}

func (c *capturingNotifier) SendSMS(ctx context.Context, to, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bodies = append(c.bodies, body)
	return nil
}

func (c *capturingNotifier) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.bodies) == 0 {
		return ""
	}
	return c.bodies[len(c.bodies)-1]
}

type testServer struct {
	srv      *httptest.Server
	store    *fakeStore
	notifier *capturingNotifier
	hasher   *security.Hasher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := newFakeStore()
	notifier := &capturingNotifier{}
	hasher := security.NewHasher(4)
	tokens := security.NewTestTokenProvider()
	svc := service.NewAuthService(store, sessionStore{store}, tokenStore{store}, hasher, tokens, notifier, nil, nil, service.Config{
		SessionTTL:    time.Hour,
		OTPTTL:        5 * time.Minute,
		OfflinePinTTL: 24 * time.Hour,
		ResetTokenTTL: 30 * time.Minute,
	})
	h := New(svc, sessionStore{store}, tokens, nil)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, store: store, notifier: notifier, hasher: hasher}
}

func (ts *testServer) addUser(t *testing.T, email, password, phone string, twoFactor bool) *userdomain.User {
	t.Helper()
	hash, err := ts.hasher.Hash([]byte(password))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &userdomain.User{
		ID: "user-" + email, Email: email, PasswordHash: hash, Phone: phone,
		Role: userdomain.RoleEmployee, TwoFactorEnabled: twoFactor,
	}
	if err := ts.store.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
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

func (ts *testServer) login(t *testing.T, email, password string) sessionResponse {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/login", "", loginRequest{Email: email, Password: password})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	return decodeBody[sessionResponse](t, resp)
}

func TestRegister(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/register", "", registerRequest{Email: "a@x.com", Password: "password1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	got := decodeBody[registerResponse](t, resp)
	if got.User.Email != "a@x.com" {
		t.Errorf("email = %q", got.User.Email)
	}

	// Duplicate email.
	resp = ts.do(t, http.MethodPost, "/register", "", registerRequest{Email: "a@x.com", Password: "password1"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	// Bad password.
	resp = ts.do(t, http.MethodPost, "/register", "", registerRequest{Email: "b@x.com", Password: "short"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("weak password status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLogin_SessionIssued(t *testing.T) {
	ts := newTestServer(t)
	ts.addUser(t, "a@x.com", "password1", "", false)

	got := ts.login(t, "a@x.com", "password1")
	if got.Token == "" {
		t.Fatal("expected a session token")
	}
	if got.User.Email != "a@x.com" {
		t.Errorf("user email = %q", got.User.Email)
	}
	if got.Session.Type != string(sessiondomain.TypePassword) {
		t.Errorf("session type = %q, want password", got.Session.Type)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	ts := newTestServer(t)
	ts.addUser(t, "a@x.com", "password1", "", false)

	for _, req := range []loginRequest{
		{Email: "a@x.com", Password: "wrongpass1"},
		{Email: "nobody@x.com", Password: "password1"},
	} {
		resp := ts.do(t, http.MethodPost, "/login", "", req)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestLogin_ConflictThenForce(t *testing.T) {
	ts := newTestServer(t)
	ts.addUser(t, "a@x.com", "password1", "", false)

	first := ts.login(t, "a@x.com", "password1")

	resp := ts.do(t, http.MethodPost, "/login", "", loginRequest{Email: "a@x.com", Password: "password1"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	conflict := decodeBody[conflictResponse](t, resp)
	if conflict.ExistingSession.ID != first.Session.ID {
		t.Errorf("existing session id = %q, want %q", conflict.ExistingSession.ID, first.Session.ID)
	}

	resp = ts.do(t, http.MethodPost, "/login", "", loginRequest{Email: "a@x.com", Password: "password1", Force: true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("forced status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	// The first token no longer authorizes requests.
	resp = ts.do(t, http.MethodGet, "/sessions", first.Token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("superseded token status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLogin_TwoFactorChallenge(t *testing.T) {
	ts := newTestServer(t)
	ts.addUser(t, "b@x.com", "password1", "15551234567", true)

	resp := ts.do(t, http.MethodPost, "/login", "", loginRequest{Email: "b@x.com", Password: "password1"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	challenge := decodeBody[challengeResponse](t, resp)
	if !challenge.TwoFactorRequired || challenge.TempToken == "" || len(challenge.OfflinePin) != 6 {
		t.Fatalf("challenge = %+v", challenge)
	}

	// OTP arrives out-of-band; complete verification.
	body := ts.notifier.last()
	otp := body[strings.LastIndex(body, " ")+1:]
	resp = ts.do(t, http.MethodPost, "/verify-otp", "", verifyOTPRequest{TempToken: challenge.TempToken, OTP: otp})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify status = %d, want 200", resp.StatusCode)
	}
	got := decodeBody[sessionResponse](t, resp)
	if got.Session.Type != string(sessiondomain.TypeOTP) {
		t.Errorf("session type = %q, want otp", got.Session.Type)
	}

	// Replay fails generically.
	resp = ts.do(t, http.MethodPost, "/verify-otp", "", verifyOTPRequest{TempToken: challenge.TempToken, OTP: otp})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("replay status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestVerifyOffline(t *testing.T) {
	ts := newTestServer(t)
	ts.addUser(t, "b@x.com", "password1", "15551234567", true)

	resp := ts.do(t, http.MethodPost, "/login", "", loginRequest{Email: "b@x.com", Password: "password1"})
	challenge := decodeBody[challengeResponse](t, resp)

	resp = ts.do(t, http.MethodPost, "/verify-offline", "", verifyOfflineRequest{Email: "b@x.com", OfflinePin: challenge.OfflinePin})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	got := decodeBody[sessionResponse](t, resp)
	if got.Session.Type != string(sessiondomain.TypeOffline) {
		t.Errorf("session type = %q, want offline", got.Session.Type)
	}
}

func TestAuthMiddleware(t *testing.T) {
	ts := newTestServer(t)
	ts.addUser(t, "a@x.com", "password1", "", false)
	session := ts.login(t, "a@x.com", "password1")

	// No token.
	resp := ts.do(t, http.MethodGet, "/sessions", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()

	// Garbage token.
	resp = ts.do(t, http.MethodGet, "/sessions", "not-a-jwt", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()

	// Valid token.
	resp = ts.do(t, http.MethodGet, "/sessions", session.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("valid token status = %d, want 200", resp.StatusCode)
	}
	got := decodeBody[listSessionsResponse](t, resp)
	if len(got.Sessions) != 1 || got.Sessions[0].ID != session.Session.ID {
		t.Errorf("sessions = %+v", got.Sessions)
	}
}

func TestLogout_TokenStopsWorking(t *testing.T) {
	ts := newTestServer(t)
	ts.addUser(t, "a@x.com", "password1", "", false)
	session := ts.login(t, "a@x.com", "password1")

	resp := ts.do(t, http.MethodPost, "/logout", session.Token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status = %d, want 204", resp.StatusCode)
	}
	resp.Body.Close()

	// The signed token is still structurally valid, but the session is gone.
	resp = ts.do(t, http.MethodGet, "/sessions", session.Token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("post-logout status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRefresh(t *testing.T) {
	ts := newTestServer(t)
	ts.addUser(t, "a@x.com", "password1", "", false)
	session := ts.login(t, "a@x.com", "password1")

	resp := ts.do(t, http.MethodPost, "/refresh", session.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d, want 200", resp.StatusCode)
	}
	refreshed := decodeBody[sessionResponse](t, resp)
	if refreshed.Token == session.Token || refreshed.Session.ID == session.Session.ID {
		t.Error("refresh must rotate token and session")
	}

	// Old token is dead, new one works.
	resp = ts.do(t, http.MethodGet, "/sessions", session.Token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("old token status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()
	resp = ts.do(t, http.MethodGet, "/sessions", refreshed.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("new token status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestTerminateSessionByID(t *testing.T) {
	ts := newTestServer(t)
	ts.addUser(t, "a@x.com", "password1", "", false)
	session := ts.login(t, "a@x.com", "password1")

	// Unknown session id → 404.
	resp := ts.do(t, http.MethodDelete, "/sessions/does-not-exist", session.Token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	resp = ts.do(t, http.MethodDelete, "/sessions/"+session.Session.ID, session.Token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("own session status = %d, want 204", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestPasswordResetFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.addUser(t, "a@x.com", "oldpassword1", "", false)

	// Same acknowledgement for unknown and known emails.
	for _, email := range []string{"a@x.com", "nobody@x.com"} {
		resp := ts.do(t, http.MethodPost, "/password-reset/request", "", resetRequestRequest{Email: email})
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("request status = %d, want 202", resp.StatusCode)
		}
		resp.Body.Close()
	}

	body := ts.notifier.bodies[0] // reset email for the real account
	token := body[strings.LastIndex(body, " ")+1:]
	resp := ts.do(t, http.MethodPost, "/password-reset/confirm", "", resetConfirmRequest{Token: token, NewPassword: "newpassword2"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("confirm status = %d, want 204", resp.StatusCode)
	}
	resp.Body.Close()

	// Login with the new password works.
	ts.login(t, "a@x.com", "newpassword2")
}

func TestMalformedBody(t *testing.T) {
	ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodPost, ts.srv.URL+"/login", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
