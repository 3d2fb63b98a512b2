package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	authdomain "github.com/reelcomic/reelcomic/internal/auth/domain"
	"github.com/reelcomic/reelcomic/internal/auth/oauth"
	"github.com/reelcomic/reelcomic/internal/auth/session"
	billingdomain "github.com/reelcomic/reelcomic/internal/billing/domain"
	"github.com/reelcomic/reelcomic/internal/config"
	"go.uber.org/zap"
)

const testToken = "raw-session-token"

type fakeAuthService struct {
	user *authdomain.User

	registerErr error
	loginErr    error
	authErr     error

	loggedOut  []string
	oauthCalls []authdomain.OAuthUserRequest
}

func (f *fakeAuthService) grant() *authdomain.SessionGrant {
	return &authdomain.SessionGrant{
		SessionID: snowflake.ID(99),
		RawToken:  testToken,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func (f *fakeAuthService) Register(ctx context.Context, req authdomain.RegisterRequest) (*authdomain.LoginResult, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return &authdomain.LoginResult{User: f.user, Grant: f.grant()}, nil
}

func (f *fakeAuthService) Login(ctx context.Context, req authdomain.LoginRequest) (*authdomain.LoginResult, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &authdomain.LoginResult{User: f.user, Grant: f.grant()}, nil
}

func (f *fakeAuthService) FindOrCreateOAuthUser(ctx context.Context, req authdomain.OAuthUserRequest) (*authdomain.User, error) {
	f.oauthCalls = append(f.oauthCalls, req)
	return f.user, nil
}

func (f *fakeAuthService) IssueSession(ctx context.Context, userID snowflake.ID, meta authdomain.SessionMeta) (*authdomain.SessionGrant, error) {
	return f.grant(), nil
}

func (f *fakeAuthService) Authenticate(ctx context.Context, rawToken string) (*authdomain.User, *authdomain.Session, error) {
	if f.authErr != nil {
		return nil, nil, f.authErr
	}
	if rawToken != testToken {
		return nil, nil, authdomain.ErrInvalidSession
	}
	return f.user, &authdomain.Session{ID: snowflake.ID(99), UserID: f.user.ID}, nil
}

func (f *fakeAuthService) Logout(ctx context.Context, rawToken string) error {
	f.loggedOut = append(f.loggedOut, rawToken)
	return nil
}

func (f *fakeAuthService) FindUserByID(ctx context.Context, id snowflake.ID) (*authdomain.User, error) {
	return f.user, nil
}

type fakeOAuthService struct {
	exchangeErr error
	identity    *oauth.Identity
}

func (f *fakeOAuthService) Enabled(provider string) bool {
	return provider == oauth.ProviderGoogle
}

func (f *fakeOAuthService) AuthCodeURL(provider, state string) (string, error) {
	return "https://provider.example/authorize?state=" + url.QueryEscape(state), nil
}

func (f *fakeOAuthService) Exchange(ctx context.Context, provider, code string) (*oauth.Identity, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return f.identity, nil
}

type fakeBillingService struct {
	ingestErr     error
	duplicate     bool
	checkout      *billingdomain.CheckoutResult
	checkoutPlans []string
	portalErr     error
}

func (f *fakeBillingService) ListPlans(ctx context.Context) ([]billingdomain.SubscriptionPlan, error) {
	return []billingdomain.SubscriptionPlan{
		{Code: billingdomain.PlanVIPMonthly, DisplayName: "ReelComic VIP Monthly", VIPTier: authdomain.TierVIPMonthly, AmountCents: 999, Currency: "usd", Interval: "month"},
		{Code: billingdomain.PlanVIPYearly, DisplayName: "ReelComic VIP Yearly", VIPTier: authdomain.TierVIPYearly, AmountCents: 9599, Currency: "usd", Interval: "year"},
	}, nil
}

func (f *fakeBillingService) GetBillingStatus(ctx context.Context, user *authdomain.User) (*billingdomain.BillingStatus, error) {
	return &billingdomain.BillingStatus{VIPTier: user.VIPTier, Payments: []billingdomain.PaymentView{}}, nil
}

func (f *fakeBillingService) CreateCheckout(ctx context.Context, user *authdomain.User, planCode string) (*billingdomain.CheckoutResult, error) {
	if planCode != billingdomain.PlanVIPMonthly && planCode != billingdomain.PlanVIPYearly {
		return nil, billingdomain.ErrUnknownPlan
	}
	f.checkoutPlans = append(f.checkoutPlans, planCode)
	return f.checkout, nil
}

func (f *fakeBillingService) CreatePortal(ctx context.Context, user *authdomain.User) (*billingdomain.PortalResult, error) {
	if f.portalErr != nil {
		return nil, f.portalErr
	}
	return &billingdomain.PortalResult{URL: "https://billing.stripe.com/p/session"}, nil
}

func (f *fakeBillingService) IngestWebhook(ctx context.Context, payload []byte, sig string) (*billingdomain.WebhookResult, error) {
	if f.ingestErr != nil {
		return nil, f.ingestErr
	}
	return &billingdomain.WebhookResult{EventID: "evt_1", EventType: "noop", Duplicate: f.duplicate}, nil
}

type serverFixture struct {
	srv     *Server
	auth    *fakeAuthService
	oauthFx *fakeOAuthService
	billing *fakeBillingService
}

func newTestServer(t *testing.T) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		AppBaseURL: "http://localhost:3000",
		ListenAddr: ":0",
	}

	authsvc := &fakeAuthService{
		user: &authdomain.User{
			ID:          snowflake.ID(1),
			ExternalID:  "3e7b3c9a-0000-4000-8000-000000000001",
			Email:       "viewer@example.com",
			DisplayName: "Viewer",
			Role:        authdomain.RoleUser,
			VIPTier:     authdomain.TierFree,
		},
	}
	oauthsvc := &fakeOAuthService{
		identity: &oauth.Identity{
			Provider:    oauth.ProviderGoogle,
			Subject:     "google-sub-1",
			Email:       "viewer@example.com",
			DisplayName: "Viewer",
		},
	}
	billingsvc := &fakeBillingService{
		checkout: &billingdomain.CheckoutResult{URL: "https://checkout.stripe.com/c/pay", SessionID: "cs_test_1"},
	}

	srv := NewServer(ServerParams{
		Gin:        NewEngine(zap.NewNop()),
		Cfg:        cfg,
		Log:        zap.NewNop(),
		Authsvc:    authsvc,
		OAuthsvc:   oauthsvc,
		Billingsvc: billingsvc,
		Sessions:   session.NewManager(cfg),
	})

	return &serverFixture{srv: srv, auth: authsvc, oauthFx: oauthsvc, billing: billingsvc}
}

func (f *serverFixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.srv.Engine().ServeHTTP(w, req)
	return w
}

func jsonBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v (%s)", err, w.Body.String())
	}
	return body
}

func withSession(req *http.Request) *http.Request {
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: testToken})
	return req
}

func TestRegisterSetsSessionCookie(t *testing.T) {
	f := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
		strings.NewReader(`{"email":"viewer@example.com","password":"longenough","displayName":"Viewer"}`))
	w := f.do(req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	body := jsonBody(t, w)
	if body["ok"] != true {
		t.Fatalf("ok = %v", body["ok"])
	}
	user, _ := body["user"].(map[string]any)
	if user["email"] != "viewer@example.com" {
		t.Fatalf("user = %v", body["user"])
	}

	var found bool
	for _, c := range w.Result().Cookies() {
		if c.Name == session.CookieName && c.Value != "" {
			found = true
			if !c.HttpOnly {
				t.Fatal("session cookie must be HttpOnly")
			}
		}
	}
	if !found {
		t.Fatal("session cookie not set")
	}
}

func TestRegisterDuplicateEmailConflict(t *testing.T) {
	f := newTestServer(t)
	f.auth.registerErr = authdomain.ErrUserExists

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
		strings.NewReader(`{"email":"viewer@example.com","password":"longenough","displayName":"Viewer"}`))
	w := f.do(req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", w.Code, w.Body.String())
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newTestServer(t)
	f.auth.loginErr = authdomain.ErrInvalidCredentials

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"viewer@example.com","password":"wrong"}`))
	w := f.do(req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401: %s", w.Code, w.Body.String())
	}
	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if resp.Error.Type != "unauthorized" {
		t.Fatalf("error type = %q", resp.Error.Type)
	}
}

func TestSessionAuthenticated(t *testing.T) {
	f := newTestServer(t)

	w := f.do(withSession(httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := jsonBody(t, w)
	if body["authenticated"] != true {
		t.Fatalf("authenticated = %v", body["authenticated"])
	}
}

func TestSessionDegradesToAnonymous(t *testing.T) {
	f := newTestServer(t)
	f.auth.authErr = authdomain.ErrSessionExpired

	w := f.do(withSession(httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 even for a dead session", w.Code)
	}
	body := jsonBody(t, w)
	if body["authenticated"] != false || body["user"] != nil {
		t.Fatalf("body = %v", body)
	}
}

func TestLogoutRevokesAndClearsCookie(t *testing.T) {
	f := newTestServer(t)

	w := f.do(withSession(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(f.auth.loggedOut) != 1 || f.auth.loggedOut[0] != testToken {
		t.Fatalf("loggedOut = %v", f.auth.loggedOut)
	}
	var cleared bool
	for _, c := range w.Result().Cookies() {
		if c.Name == session.CookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatal("session cookie not cleared")
	}
}

func TestOAuthStartRedirectsWithState(t *testing.T) {
	f := newTestServer(t)

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/auth/oauth/google/start?next=/library", nil))

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil || loc.Query().Get("state") == "" {
		t.Fatalf("location = %q", w.Header().Get("Location"))
	}

	var stateCookie bool
	for _, c := range w.Result().Cookies() {
		if strings.HasPrefix(c.Name, "reelcomic_oauth_state_") && c.Value != "" {
			stateCookie = true
		}
	}
	if !stateCookie {
		t.Fatal("state cookie not set")
	}
}

func TestOAuthStartUnknownProvider(t *testing.T) {
	f := newTestServer(t)

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/auth/oauth/github/start", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestOAuthCallbackRoundTrip(t *testing.T) {
	f := newTestServer(t)

	start := f.do(httptest.NewRequest(http.MethodGet, "/api/auth/oauth/google/start?next=/library", nil))
	loc, err := url.Parse(start.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse start redirect: %v", err)
	}
	state := loc.Query().Get("state")

	req := httptest.NewRequest(http.MethodGet,
		"/api/auth/oauth/google/callback?code=authcode&state="+url.QueryEscape(state), nil)
	for _, c := range start.Result().Cookies() {
		req.AddCookie(c)
	}
	w := f.do(req)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Location"); got != "http://localhost:3000/#/library" {
		t.Fatalf("redirect = %q", got)
	}
	if len(f.auth.oauthCalls) != 1 || f.auth.oauthCalls[0].Subject != "google-sub-1" {
		t.Fatalf("oauth calls = %+v", f.auth.oauthCalls)
	}

	var sessionCookie bool
	for _, c := range w.Result().Cookies() {
		if c.Name == session.CookieName && c.Value != "" {
			sessionCookie = true
		}
	}
	if !sessionCookie {
		t.Fatal("session cookie not set after callback")
	}
}

func TestOAuthCallbackRejectsForgedState(t *testing.T) {
	f := newTestServer(t)

	start := f.do(httptest.NewRequest(http.MethodGet, "/api/auth/oauth/google/start", nil))

	req := httptest.NewRequest(http.MethodGet,
		"/api/auth/oauth/google/callback?code=authcode&state=forged", nil)
	for _, c := range start.Result().Cookies() {
		req.AddCookie(c)
	}
	w := f.do(req)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if got := w.Header().Get("Location"); got != "http://localhost:3000/#/auth?error=google_state" {
		t.Fatalf("redirect = %q", got)
	}
	if len(f.auth.oauthCalls) != 0 {
		t.Fatal("user resolution must not run on forged state")
	}
}

func TestOAuthCallbackExchangeFailureRedirects(t *testing.T) {
	f := newTestServer(t)
	f.oauthFx.exchangeErr = oauth.ErrExchangeFailed

	start := f.do(httptest.NewRequest(http.MethodGet, "/api/auth/oauth/google/start", nil))
	loc, _ := url.Parse(start.Header().Get("Location"))

	req := httptest.NewRequest(http.MethodGet,
		"/api/auth/oauth/google/callback?code=authcode&state="+url.QueryEscape(loc.Query().Get("state")), nil)
	for _, c := range start.Result().Cookies() {
		req.AddCookie(c)
	}
	w := f.do(req)

	if got := w.Header().Get("Location"); got != "http://localhost:3000/#/auth?error=google_callback" {
		t.Fatalf("redirect = %q", got)
	}
}

func TestListPlans(t *testing.T) {
	f := newTestServer(t)

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/billing/plans", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := jsonBody(t, w)
	plans, _ := body["plans"].([]any)
	if len(plans) != 2 {
		t.Fatalf("plans = %v", body["plans"])
	}
}

func TestBillingStatusRequiresAuth(t *testing.T) {
	f := newTestServer(t)

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/billing/status", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestBillingStatusReportsTier(t *testing.T) {
	f := newTestServer(t)

	w := f.do(withSession(httptest.NewRequest(http.MethodGet, "/api/billing/status", nil)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	body := jsonBody(t, w)
	if body["vipTier"] != authdomain.TierFree {
		t.Fatalf("vipTier = %v", body["vipTier"])
	}
}

func TestCheckoutRequiresAuth(t *testing.T) {
	f := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/billing/checkout",
		strings.NewReader(`{"planCode":"vip_monthly"}`))
	w := f.do(req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestCheckoutReturnsURL(t *testing.T) {
	f := newTestServer(t)

	req := withSession(httptest.NewRequest(http.MethodPost, "/api/billing/checkout",
		strings.NewReader(`{"planCode":"vip_monthly"}`)))
	w := f.do(req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	body := jsonBody(t, w)
	if body["checkoutUrl"] != "https://checkout.stripe.com/c/pay" || body["sessionId"] != "cs_test_1" {
		t.Fatalf("body = %v", body)
	}
}

func TestCheckoutAcceptsCycle(t *testing.T) {
	f := newTestServer(t)

	for cycle, want := range map[string]string{
		"monthly": billingdomain.PlanVIPMonthly,
		"yearly":  billingdomain.PlanVIPYearly,
	} {
		req := withSession(httptest.NewRequest(http.MethodPost, "/api/billing/checkout",
			strings.NewReader(`{"cycle":"`+cycle+`"}`)))
		w := f.do(req)

		if w.Code != http.StatusOK {
			t.Fatalf("cycle %q: status = %d: %s", cycle, w.Code, w.Body.String())
		}
		if got := f.billing.checkoutPlans[len(f.billing.checkoutPlans)-1]; got != want {
			t.Fatalf("cycle %q resolved to %q, want %q", cycle, got, want)
		}
	}
}

func TestCheckoutUnknownCycle(t *testing.T) {
	f := newTestServer(t)

	req := withSession(httptest.NewRequest(http.MethodPost, "/api/billing/checkout",
		strings.NewReader(`{"cycle":"weekly"}`)))
	w := f.do(req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
}

func TestCheckoutPlanCodeWinsOverCycle(t *testing.T) {
	f := newTestServer(t)

	req := withSession(httptest.NewRequest(http.MethodPost, "/api/billing/checkout",
		strings.NewReader(`{"planCode":"vip_yearly","cycle":"monthly"}`)))
	w := f.do(req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if got := f.billing.checkoutPlans[len(f.billing.checkoutPlans)-1]; got != billingdomain.PlanVIPYearly {
		t.Fatalf("resolved to %q, want explicit plan code to win", got)
	}
}

func TestCheckoutUnknownPlan(t *testing.T) {
	f := newTestServer(t)

	req := withSession(httptest.NewRequest(http.MethodPost, "/api/billing/checkout",
		strings.NewReader(`{"planCode":"vip_lifetime"}`)))
	w := f.do(req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestPortalWithoutBillingAccount(t *testing.T) {
	f := newTestServer(t)
	f.billing.portalErr = billingdomain.ErrNoBillingAccount

	w := f.do(withSession(httptest.NewRequest(http.MethodPost, "/api/billing/portal", nil)))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestWebhookAck(t *testing.T) {
	f := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/billing/webhook", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=sig")
	w := f.do(req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body := jsonBody(t, w); body["received"] != true {
		t.Fatalf("body = %v", body)
	}
}

func TestWebhookDuplicateAck(t *testing.T) {
	f := newTestServer(t)
	f.billing.duplicate = true

	req := httptest.NewRequest(http.MethodPost, "/api/billing/webhook", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=sig")
	w := f.do(req)

	body := jsonBody(t, w)
	if w.Code != http.StatusOK || body["duplicate"] != true {
		t.Fatalf("status = %d body = %v", w.Code, body)
	}
}

func TestWebhookBadSignature(t *testing.T) {
	f := newTestServer(t)
	f.billing.ingestErr = billingdomain.ErrInvalidSignature

	req := httptest.NewRequest(http.MethodPost, "/api/billing/webhook", strings.NewReader(`{}`))
	w := f.do(req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
