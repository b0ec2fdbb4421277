package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"moneta/internal/analytics"
	"moneta/internal/backend"
	"moneta/internal/core"
)

var testNow = time.Date(2024, time.May, 15, 10, 0, 0, 0, time.UTC)

type fakeBackend struct {
	mu sync.Mutex

	accounts     []core.Account
	transactions []core.Transaction
	nextID       int

	pingErr    error
	listErr    error
	signInErr  error
	refreshed  backend.Session
	accountReq int
	txReq      int
}

func (f *fakeBackend) Ping(context.Context) error { return f.pingErr }

func (f *fakeBackend) SignIn(_ context.Context, email, password string) (backend.Session, error) {
	if f.signInErr != nil {
		return backend.Session{}, f.signInErr
	}
	if password != "secret123" {
		return backend.Session{}, backend.ErrUnauthorized
	}
	return backend.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    testNow.Add(time.Hour),
		User:         backend.User{ID: "user-1", Email: email},
	}, nil
}

func (f *fakeBackend) SignUp(_ context.Context, email, _ string) (backend.Session, error) {
	if email == "pending@example.com" {
		return backend.Session{}, backend.ErrConfirmationRequired
	}
	return backend.Session{AccessToken: "access", User: backend.User{ID: "user-2", Email: email}}, nil
}

func (f *fakeBackend) SignOut(context.Context, string) error { return nil }

func (f *fakeBackend) Refresh(context.Context, string) (backend.Session, error) {
	if f.refreshed.AccessToken == "" {
		return backend.Session{}, backend.ErrUnauthorized
	}
	return f.refreshed, nil
}

func (f *fakeBackend) ListAccounts(context.Context, string) ([]core.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accountReq++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]core.Account(nil), f.accounts...), nil
}

func (f *fakeBackend) CreateAccount(_ context.Context, _ string, a core.Account) (core.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	a.ID = fmt.Sprintf("acc-%d", f.nextID)
	f.accounts = append(f.accounts, a)
	return a, nil
}

func (f *fakeBackend) ListTransactions(_ context.Context, _ string, ym core.YearMonth) ([]core.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txReq++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []core.Transaction
	for _, t := range f.transactions {
		if core.CurrentMonth(t.Date) == ym {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeBackend) CreateTransaction(_ context.Context, _ string, t core.Transaction) (core.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	t.ID = fmt.Sprintf("tx-%d", f.nextID)
	f.transactions = append(f.transactions, t)
	return t, nil
}

func (f *fakeBackend) DeleteTransaction(_ context.Context, _ string, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.transactions {
		if t.ID == id {
			f.transactions = append(f.transactions[:i], f.transactions[i+1:]...)
			return nil
		}
	}
	return backend.ErrNotFound
}

func (f *fakeBackend) MonthOverview(ctx context.Context, token string, ym core.YearMonth) (core.MonthOverview, error) {
	txs, err := f.ListTransactions(ctx, token, ym)
	if err != nil {
		return core.MonthOverview{}, err
	}
	return core.Summarize(ym, txs), nil
}

func (f *fakeBackend) calls() (accounts, transactions int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accountReq, f.txReq
}

type recordingTracker struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingTracker) TrackPageView(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return nil
}

func (r *recordingTracker) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func newTestServer(t *testing.T, fb *fakeBackend, tracker analytics.Tracker) *Server {
	t.Helper()
	s, err := NewServer(":0", Deps{
		Backend:       fb,
		Listener:      analytics.NewListener(tracker, nil),
		SessionSecret: "test-secret-0123456789",
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if s.renderer == nil {
		t.Fatal("templates failed to load")
	}
	s.now = func() time.Time { return testNow }
	t.Cleanup(func() { s.limiter.Stop() })
	return s
}

func testSession() backend.Session {
	return backend.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    testNow.Add(time.Hour),
		User:         backend.User{ID: "user-1", Email: "ada@example.com"},
	}
}

func signedIn(t *testing.T, s *Server, r *http.Request, sess backend.Session) *http.Request {
	t.Helper()
	value, err := s.sessions.encode(sess)
	if err != nil {
		t.Fatalf("encode session: %v", err)
	}
	r.AddCookie(&http.Cookie{Name: sessionCookie, Value: value})
	return r
}

func serve(s *Server, r *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.Handler.ServeHTTP(rr, r)
	return rr
}

func postForm(target string, form url.Values) *http.Request {
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func responseCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func withAccount() *fakeBackend {
	return &fakeBackend{accounts: []core.Account{
		{ID: "acc-1", Name: "Main", Kind: core.Checking, Balance: core.Money{Cents: 150000}, Currency: "EUR"},
	}}
}

func TestHealthAndReady(t *testing.T) {
	fb := &fakeBackend{}
	s := newTestServer(t, fb, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := serve(s, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, rr.Code, rr.Body.String())
		}
	}

	fb.pingErr = errors.New("connection refused")
	rr := serve(s, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with backend down status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "connection refused") {
		t.Fatalf("readyz body missing backend error: %s", rr.Body.String())
	}
}

func TestMetricsExposesQueryCounters(t *testing.T) {
	s := newTestServer(t, withAccount(), nil)
	serve(s, signedIn(t, s, httptest.NewRequest(http.MethodGet, "/dashboard", nil), testSession()))

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rr.Code)
	}
	for _, want := range []string{"moneta_query_requests_total", "moneta_query_misses_total", "moneta_http_requests_total"} {
		if !strings.Contains(rr.Body.String(), want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}

func TestStaticAssets(t *testing.T) {
	s := newTestServer(t, &fakeBackend{}, nil)
	rr := serve(s, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("static status=%d", rr.Code)
	}
	if cc := rr.Header().Get("Cache-Control"); cc == "" {
		t.Fatal("static asset without Cache-Control")
	}
}

func TestProtectedPagesRequireSession(t *testing.T) {
	s := newTestServer(t, withAccount(), nil)

	for _, path := range []string{"/dashboard", "/accounts", "/transactions", "/onboarding"} {
		rr := serve(s, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/auth/login" {
			t.Errorf("%s: status=%d location=%q", path, rr.Code, rr.Header().Get("Location"))
		}
	}

	r := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	r.Header.Set("HX-Request", "true")
	rr := serve(s, r)
	if got := rr.Header().Get("HX-Redirect"); got != "/auth/login" {
		t.Fatalf("htmx request HX-Redirect=%q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	r.AddCookie(&http.Cookie{Name: sessionCookie, Value: "garbage"})
	if rr := serve(s, r); rr.Header().Get("Location") != "/auth/login" {
		t.Fatalf("garbage cookie location=%q", rr.Header().Get("Location"))
	}
}

func TestIndexRedirects(t *testing.T) {
	s := newTestServer(t, withAccount(), nil)

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Header().Get("Location") != "/auth/login" {
		t.Fatalf("anonymous index location=%q", rr.Header().Get("Location"))
	}
	rr = serve(s, signedIn(t, s, httptest.NewRequest(http.MethodGet, "/", nil), testSession()))
	if rr.Header().Get("Location") != "/dashboard" {
		t.Fatalf("signed-in index location=%q", rr.Header().Get("Location"))
	}
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name       string
		form       url.Values
		signInErr  error
		wantStatus int
		wantBody   string
	}{
		{"success", url.Values{"email": {"ada@example.com"}, "password": {"secret123"}}, nil, http.StatusSeeOther, ""},
		{"wrong password", url.Values{"email": {"ada@example.com"}, "password": {"nope-nope"}}, nil, http.StatusUnauthorized, "Invalid email or password"},
		{"invalid email", url.Values{"email": {"ada"}, "password": {"secret123"}}, nil, http.StatusUnprocessableEntity, "Enter a valid email address"},
		{"backend down", url.Values{"email": {"ada@example.com"}, "password": {"secret123"}}, errors.New("dial tcp: refused"), http.StatusServiceUnavailable, "service is unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeBackend{signInErr: tt.signInErr}, nil)
			rr := serve(s, postForm("/auth/login", tt.form))
			if rr.Code != tt.wantStatus {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantBody != "" && !strings.Contains(rr.Body.String(), tt.wantBody) {
				t.Fatalf("body missing %q", tt.wantBody)
			}
			ck := responseCookie(rr, sessionCookie)
			if tt.wantStatus == http.StatusSeeOther {
				if rr.Header().Get("Location") != "/dashboard" {
					t.Fatalf("location=%q", rr.Header().Get("Location"))
				}
				if ck == nil || !ck.HttpOnly {
					t.Fatalf("session cookie not set: %+v", ck)
				}
				sess, err := s.sessions.decode(ck.Value)
				if err != nil || sess.User.ID != "user-1" {
					t.Fatalf("cookie decodes to %+v, %v", sess, err)
				}
			} else if ck != nil {
				t.Fatalf("unexpected session cookie on failure")
			}
		})
	}
}

func TestSignup(t *testing.T) {
	s := newTestServer(t, &fakeBackend{}, nil)

	rr := serve(s, postForm("/auth/signup", url.Values{
		"email": {"new@example.com"}, "password": {"longenough"}, "confirm": {"longenough"},
	}))
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/onboarding" {
		t.Fatalf("signup status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}

	rr = serve(s, postForm("/auth/signup", url.Values{
		"email": {"pending@example.com"}, "password": {"longenough"}, "confirm": {"longenough"},
	}))
	if rr.Header().Get("Location") != "/auth/login?confirm=1" {
		t.Fatalf("confirmation location=%q", rr.Header().Get("Location"))
	}

	rr = serve(s, postForm("/auth/signup", url.Values{
		"email": {"new@example.com"}, "password": {"longenough"}, "confirm": {"different"},
	}))
	if rr.Code != http.StatusUnprocessableEntity || !strings.Contains(rr.Body.String(), "Passwords do not match") {
		t.Fatalf("mismatch status=%d", rr.Code)
	}
}

func TestLogoutClearsSession(t *testing.T) {
	s := newTestServer(t, withAccount(), nil)
	rr := serve(s, signedIn(t, s, postForm("/auth/logout", nil), testSession()))
	if rr.Header().Get("Location") != "/auth/login" {
		t.Fatalf("location=%q", rr.Header().Get("Location"))
	}
	ck := responseCookie(rr, sessionCookie)
	if ck == nil || ck.MaxAge >= 0 {
		t.Fatalf("session cookie not cleared: %+v", ck)
	}
}

func TestDashboardRendersAccountsAndOverview(t *testing.T) {
	fb := withAccount()
	fb.transactions = []core.Transaction{
		{ID: "tx-a", AccountID: "acc-1", Kind: core.Expense, CategoryID: "food", Description: "Market", Amount: core.Money{Cents: 2550}, Date: testNow},
	}
	s := newTestServer(t, fb, nil)

	rr := serve(s, signedIn(t, s, httptest.NewRequest(http.MethodGet, "/dashboard?month=2024-05", nil), testSession()))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{"Main", "€1500,00", "€25,50", "Food &amp; Groceries", "May 2024", `data-theme="light"`} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
}

func TestDashboardPartialForHTMX(t *testing.T) {
	s := newTestServer(t, withAccount(), nil)
	r := signedIn(t, s, httptest.NewRequest(http.MethodGet, "/dashboard?month=2024-05", nil), testSession())
	r.Header.Set("HX-Request", "true")

	rr := serve(s, r)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	if strings.Contains(body, "<html") {
		t.Fatal("partial response rendered the layout")
	}
	if !strings.Contains(body, `id="dashboard-body"`) {
		t.Fatalf("partial missing dashboard body: %s", body)
	}
}

func TestDashboardWithoutAccountsGoesToOnboarding(t *testing.T) {
	s := newTestServer(t, &fakeBackend{}, nil)
	rr := serve(s, signedIn(t, s, httptest.NewRequest(http.MethodGet, "/dashboard", nil), testSession()))
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/onboarding" {
		t.Fatalf("status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}
}

func TestOnboardingCreatesFirstAccount(t *testing.T) {
	fb := &fakeBackend{}
	s := newTestServer(t, fb, nil)
	sess := testSession()

	rr := serve(s, signedIn(t, s, httptest.NewRequest(http.MethodGet, "/onboarding", nil), sess))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `action="/onboarding"`) {
		t.Fatalf("onboarding page status=%d", rr.Code)
	}

	rr = serve(s, signedIn(t, s, postForm("/onboarding", url.Values{
		"name": {"Wallet"}, "kind": {"cash"}, "balance": {"40"},
	}), sess))
	if rr.Header().Get("Location") != "/dashboard" {
		t.Fatalf("onboarding post status=%d location=%q body=%s", rr.Code, rr.Header().Get("Location"), rr.Body.String())
	}

	rr = serve(s, signedIn(t, s, httptest.NewRequest(http.MethodGet, "/dashboard", nil), sess))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Wallet") {
		t.Fatalf("dashboard after onboarding status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}
}

func TestOnboardingRejectsInvalidAccount(t *testing.T) {
	s := newTestServer(t, &fakeBackend{}, nil)
	r := signedIn(t, s, postForm("/onboarding", url.Values{"name": {""}, "kind": {"cash"}}), testSession())
	r.Header.Set("HX-Request", "true")

	rr := serve(s, r)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d", rr.Code)
	}
	if rr.Header().Get("HX-Retarget") != "#form-errors" {
		t.Fatalf("HX-Retarget=%q", rr.Header().Get("HX-Retarget"))
	}
	if !strings.Contains(rr.Body.String(), "Name is required") {
		t.Fatalf("body=%s", rr.Body.String())
	}
}

func TestCreateTransactionShowsFreshData(t *testing.T) {
	fb := withAccount()
	s := newTestServer(t, fb, nil)
	sess := testSession()

	rr := serve(s, signedIn(t, s, httptest.NewRequest(http.MethodGet, "/transactions?month=2024-05", nil), sess))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "No transactions in May 2024") {
		t.Fatalf("initial list status=%d", rr.Code)
	}

	r := signedIn(t, s, postForm("/transactions", url.Values{
		"kind": {"expense"}, "account_id": {"acc-1"}, "category_id": {"food"},
		"description": {"Groceries"}, "amount": {"12,50"}, "date": {"2024-05-10"}, "month": {"2024-05"},
	}), sess)
	r.Header.Set("HX-Request", "true")
	rr = serve(s, r)
	if rr.Code != http.StatusOK {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	if !strings.Contains(body, "Groceries") || !strings.Contains(body, "-€12,50") {
		t.Fatalf("response does not show the new transaction: %s", body)
	}
	trigger := rr.Header().Get("HX-Trigger")
	for _, want := range []string{"transaction:created", "form:reset", "show-notification"} {
		if !strings.Contains(trigger, want) {
			t.Errorf("HX-Trigger %q missing %s", trigger, want)
		}
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	s := newTestServer(t, withAccount(), nil)
	r := signedIn(t, s, postForm("/transactions", url.Values{
		"kind": {"expense"}, "account_id": {"acc-1"}, "category_id": {"food"},
		"description": {"Groceries"}, "amount": {"abc"},
	}), testSession())
	r.Header.Set("HX-Request", "true")

	rr := serve(s, r)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Amount must be a positive amount") {
		t.Fatalf("body=%s", rr.Body.String())
	}
}

func TestDeleteTransaction(t *testing.T) {
	fb := withAccount()
	fb.transactions = []core.Transaction{
		{ID: "tx-a", AccountID: "acc-1", Kind: core.Expense, CategoryID: "food", Description: "Market", Amount: core.Money{Cents: 2550}, Date: testNow},
	}
	s := newTestServer(t, fb, nil)
	sess := testSession()

	serve(s, signedIn(t, s, httptest.NewRequest(http.MethodGet, "/transactions?month=2024-05", nil), sess))

	r := signedIn(t, s, postForm("/transactions/tx-a/delete", url.Values{"month": {"2024-05"}}), sess)
	r.Header.Set("HX-Request", "true")
	rr := serve(s, r)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "Market") {
		t.Fatal("deleted transaction still rendered")
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "transaction:deleted") {
		t.Fatalf("HX-Trigger=%q", rr.Header().Get("HX-Trigger"))
	}

	// Deleting again is not an error.
	r = signedIn(t, s, postForm("/transactions/tx-a/delete", url.Values{"month": {"2024-05"}}), sess)
	if rr := serve(s, r); rr.Code != http.StatusSeeOther {
		t.Fatalf("second delete status=%d", rr.Code)
	}
}

func TestBackendUnauthorizedEndsSession(t *testing.T) {
	fb := withAccount()
	fb.listErr = backend.ErrUnauthorized
	s := newTestServer(t, fb, nil)

	rr := serve(s, signedIn(t, s, httptest.NewRequest(http.MethodGet, "/accounts", nil), testSession()))
	if rr.Header().Get("Location") != "/auth/login" {
		t.Fatalf("location=%q", rr.Header().Get("Location"))
	}
	if ck := responseCookie(rr, sessionCookie); ck == nil || ck.MaxAge >= 0 {
		t.Fatalf("session cookie not cleared: %+v", ck)
	}
}

func TestLoadErrorIsRendered(t *testing.T) {
	fb := withAccount()
	fb.listErr = errors.New("backend: status 500")
	s := newTestServer(t, fb, nil)

	rr := serve(s, signedIn(t, s, httptest.NewRequest(http.MethodGet, "/accounts", nil), testSession()))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Couldn't refresh this data") {
		t.Fatalf("body missing load error: %s", rr.Body.String())
	}
}

func TestExpiredSessionIsRefreshed(t *testing.T) {
	fb := withAccount()
	fb.refreshed = backend.Session{
		AccessToken:  "access-2",
		RefreshToken: "refresh-2",
		ExpiresAt:    testNow.Add(time.Hour),
	}
	s := newTestServer(t, fb, nil)

	sess := testSession()
	sess.ExpiresAt = testNow.Add(-time.Minute)
	rr := serve(s, signedIn(t, s, httptest.NewRequest(http.MethodGet, "/accounts", nil), sess))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}
	ck := responseCookie(rr, sessionCookie)
	if ck == nil {
		t.Fatal("refreshed session not written")
	}
	got, err := s.sessions.decode(ck.Value)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.AccessToken != "access-2" || got.User.ID != "user-1" {
		t.Fatalf("refreshed session = %+v", got)
	}

	fb.refreshed = backend.Session{}
	rr = serve(s, signedIn(t, s, httptest.NewRequest(http.MethodGet, "/accounts", nil), sess))
	if rr.Header().Get("Location") != "/auth/login" {
		t.Fatalf("failed refresh location=%q", rr.Header().Get("Location"))
	}
}

func TestNavigationIsTracked(t *testing.T) {
	tracker := &recordingTracker{}
	s := newTestServer(t, withAccount(), tracker)
	sess := testSession()

	serve(s, signedIn(t, s, httptest.NewRequest(http.MethodGet, "/dashboard?month=2024-05", nil), sess))
	serve(s, signedIn(t, s, httptest.NewRequest(http.MethodGet, "/accounts", nil), sess))

	partialReq := signedIn(t, s, httptest.NewRequest(http.MethodGet, "/transactions", nil), sess)
	partialReq.Header.Set("HX-Request", "true")
	serve(s, partialReq)
	serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.listener.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	got := tracker.seen()
	want := map[string]bool{"/dashboard?month=2024-05": true, "/accounts": true}
	if len(got) != len(want) {
		t.Fatalf("tracked %v", got)
	}
	for _, id := range got {
		if !want[id] {
			t.Fatalf("unexpected page view %q in %v", id, got)
		}
	}
}

func TestWindowFocusDoesNotRefetch(t *testing.T) {
	fb := withAccount()
	s := newTestServer(t, fb, nil)
	sess := testSession()

	serve(s, signedIn(t, s, httptest.NewRequest(http.MethodGet, "/accounts", nil), sess))
	before, _ := fb.calls()

	rr := serve(s, signedIn(t, s, postForm("/ui/focus", nil), sess))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d", rr.Code)
	}
	if after, _ := fb.calls(); after != before {
		t.Fatalf("window focus refetched: %d -> %d", before, after)
	}
}

func TestThemeToggle(t *testing.T) {
	s := newTestServer(t, withAccount(), nil)

	r := postForm("/theme", nil)
	r.Header.Set("Referer", "http://example.com/accounts?x=1")
	rr := serve(s, r)
	if rr.Header().Get("Location") != "/accounts?x=1" {
		t.Fatalf("location=%q", rr.Header().Get("Location"))
	}
	ck := responseCookie(rr, themeCookie)
	if ck == nil || ck.Value != "dark" {
		t.Fatalf("theme cookie=%+v", ck)
	}

	r = postForm("/theme", nil)
	r.AddCookie(&http.Cookie{Name: themeCookie, Value: "dark"})
	r.Header.Set("Referer", "http://evil.example/phish")
	rr = serve(s, r)
	if rr.Header().Get("Location") != "/dashboard" {
		t.Fatalf("foreign referer location=%q", rr.Header().Get("Location"))
	}
	if ck := responseCookie(rr, themeCookie); ck == nil || ck.Value != "light" {
		t.Fatalf("theme cookie=%+v", ck)
	}

	r = signedIn(t, s, httptest.NewRequest(http.MethodGet, "/accounts", nil), testSession())
	r.AddCookie(&http.Cookie{Name: themeCookie, Value: "dark"})
	if rr := serve(s, r); !strings.Contains(rr.Body.String(), `data-theme="dark"`) {
		t.Fatal("dark theme not applied")
	}
}

func TestSecurityHeadersAndSuspiciousRequests(t *testing.T) {
	s := newTestServer(t, &fakeBackend{}, nil)

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("login page status=%d", rr.Code)
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing X-Content-Type-Options")
	}

	rr = serve(s, httptest.NewRequest(http.MethodGet, "/.env", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("suspicious request status=%d", rr.Code)
	}
}
