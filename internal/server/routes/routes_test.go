package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/markbates/goth/gothic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fr0stylo/synclink/internal/app/domain"
	"github.com/fr0stylo/synclink/internal/oauth"
	"github.com/fr0stylo/synclink/internal/providers"
	"github.com/fr0stylo/synclink/internal/scheduler"
	"github.com/fr0stylo/synclink/internal/status"
	"github.com/fr0stylo/synclink/internal/webhooks"
)

var authStoreOnce sync.Once

func initAuthStoreForTests() {
	authStoreOnce.Do(func() {
		store := sessions.NewCookieStore([]byte("test-session-secret-32-bytes-long"))
		store.Options = &sessions.Options{Path: "/", MaxAge: 3600, HttpOnly: true, SameSite: http.SameSiteLaxMode}
		gothic.Store = store
	})
}

func sessionCookies(t *testing.T, tenantID string) []*http.Cookie {
	t.Helper()
	initAuthStoreForTests()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	session, err := gothic.Store.Get(req, authSessionName)
	require.NoError(t, err)
	session.Values[authSessionKey] = AuthUser{TenantID: tenantID, NickName: "tester"}
	require.NoError(t, session.Save(req, rec))
	return rec.Result().Cookies()
}

func serve(e *echo.Echo, method, target string, body io.Reader, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

type fakeManager struct {
	mu sync.Mutex

	authTenant string
	authParams url.Values
	authErr    error

	exchangeTenant string
	exchangeErr    error

	savedTenant string
	saveCalls   int

	disconnected bool
	testOK       bool
	testErr      error
}

func (m *fakeManager) Providers() []providers.Provider {
	return []providers.Provider{
		{Definition: providers.Definition{ID: "google", Name: "Google Calendar", Kind: providers.KindCalendar}},
		{Definition: providers.Definition{ID: "shopify", Name: "Shopify", Kind: providers.KindCommerce, RequiredParams: []string{"shop"}}, Settings: providers.Settings{ClientID: "id"}},
	}
}

func (m *fakeManager) BuildAuthorizationURL(_ context.Context, provider, tenantID string, extra url.Values) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.authErr != nil {
		return "", m.authErr
	}
	m.authTenant = tenantID
	m.authParams = extra
	return "https://provider.example.com/authorize?provider=" + provider, nil
}

func (m *fakeManager) ExchangeCode(_ context.Context, _, code, _ string) (domain.TokenSet, string, error) {
	if m.exchangeErr != nil {
		return domain.TokenSet{}, "", m.exchangeErr
	}
	return domain.TokenSet{AccessToken: "tok-" + code, ExpiresIn: 3600}, m.exchangeTenant, nil
}

func (m *fakeManager) SaveConnection(_ context.Context, tenantID, provider string, tokens domain.TokenSet) (domain.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	m.savedTenant = tenantID
	return domain.Connection{TenantID: tenantID, IntegrationID: provider, Status: domain.StatusConnected}, nil
}

func (m *fakeManager) Disconnect(context.Context, string, string) (bool, error) {
	return m.disconnected, nil
}

func (m *fakeManager) TestConnection(context.Context, string, string) (bool, error) {
	return m.testOK, m.testErr
}

type fakeStatus map[string]status.Entry

func (f fakeStatus) StatusMap(context.Context, string) (map[string]status.Entry, error) {
	return f, nil
}

func newIntegrationServer(manager *fakeManager) *echo.Echo {
	e := echo.New()
	NewIntegrationRoutes(manager, fakeStatus{}, nil, "/settings/integrations?tab=apps", nil).RegisterRoutes(e)
	return e
}

func TestConnectRedirectsToProviderForSessionTenant(t *testing.T) {
	t.Parallel()

	manager := &fakeManager{}
	e := newIntegrationServer(manager)

	rec := serve(e, http.MethodGet, "/integrations/shopify/connect?shop=acme", nil, sessionCookies(t, "github:101"))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://provider.example.com/authorize?provider=shopify", rec.Header().Get(echo.HeaderLocation))
	assert.Equal(t, "github:101", manager.authTenant)
	assert.Equal(t, "acme", manager.authParams.Get("shop"))
}

func TestIntegrationRoutesRequireSession(t *testing.T) {
	t.Parallel()
	initAuthStoreForTests()

	e := newIntegrationServer(&fakeManager{})

	rec := serve(e, http.MethodGet, "/integrations/hubspot/connect", nil, nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get(echo.HeaderLocation))

	rec = serve(e, http.MethodGet, "/api/integrations/status", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthorizeMapsManagerErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		err  error
		code int
		kind oauth.ErrorKind
	}{
		"missing shop":     {fmt.Errorf("%w: shop", oauth.ErrMissingParameter), http.StatusBadRequest, oauth.ErrorMissingParameter},
		"unknown provider": {fmt.Errorf("%w: %w acme", oauth.ErrConfiguration, providers.ErrUnknownProvider), http.StatusNotFound, oauth.ErrorConfiguration},
		"no client id":     {fmt.Errorf("%w: hubspot client id is not set", oauth.ErrConfiguration), http.StatusInternalServerError, oauth.ErrorConfiguration},
	}
	cookies := sessionCookies(t, "github:101")
	for name, tc := range cases {
		e := newIntegrationServer(&fakeManager{authErr: tc.err})
		rec := serve(e, http.MethodPost, "/api/integrations/hubspot/authorize", strings.NewReader(""), cookies)
		assert.Equal(t, tc.code, rec.Code, name)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), name)
		assert.Equal(t, string(tc.kind), body["error"], name)
	}
}

func TestAuthorizeReturnsURL(t *testing.T) {
	t.Parallel()

	manager := &fakeManager{}
	e := newIntegrationServer(manager)
	form := url.Values{"shop": {"acme.myshopify.com"}}

	rec := serve(e, http.MethodPost, "/api/integrations/shopify/authorize", strings.NewReader(form.Encode()), sessionCookies(t, "github:7"))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "https://provider.example.com/authorize?provider=shopify", body["url"])
	assert.Equal(t, "acme.myshopify.com", manager.authParams.Get("shop"))
}

func TestCallbackSavesConnectionForStateTenant(t *testing.T) {
	t.Parallel()
	initAuthStoreForTests()

	manager := &fakeManager{exchangeTenant: "github:101"}
	e := newIntegrationServer(manager)

	rec := serve(e, http.MethodGet, "/integrations/hubspot/callback?code=c1&state=s1", nil, nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/settings/integrations?success=hubspot&tab=apps", rec.Header().Get(echo.HeaderLocation))
	assert.Equal(t, "github:101", manager.savedTenant)
}

func TestCallbackFailureRedirects(t *testing.T) {
	t.Parallel()
	initAuthStoreForTests()

	denied := &fakeManager{}
	rec := serve(newIntegrationServer(denied), http.MethodGet, "/integrations/hubspot/callback?error=access_denied", nil, nil)
	assert.Equal(t, "/settings/integrations?error=access_denied&tab=apps", rec.Header().Get(echo.HeaderLocation))
	assert.Zero(t, denied.saveCalls)

	badState := &fakeManager{exchangeErr: fmt.Errorf("%w: state expired", oauth.ErrOAuthExchange)}
	rec = serve(newIntegrationServer(badState), http.MethodGet, "/integrations/hubspot/callback?code=c&state=old", nil, nil)
	assert.Equal(t, "/settings/integrations?error=exchange_failed&tab=apps", rec.Header().Get(echo.HeaderLocation))
	assert.Zero(t, badState.saveCalls)

	mismatch := &fakeManager{exchangeTenant: "github:101"}
	rec = serve(newIntegrationServer(mismatch), http.MethodGet, "/integrations/hubspot/callback?code=c&state=s", nil, sessionCookies(t, "github:202"))
	assert.Equal(t, "/settings/integrations?error=tenant_mismatch&tab=apps", rec.Header().Get(echo.HeaderLocation))
	assert.Zero(t, mismatch.saveCalls)
}

func TestDisconnectAndTestRoutes(t *testing.T) {
	t.Parallel()

	cookies := sessionCookies(t, "github:101")

	rec := serve(newIntegrationServer(&fakeManager{}), http.MethodDelete, "/api/integrations/hubspot", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"disconnected": false}`, rec.Body.String())

	rec = serve(newIntegrationServer(&fakeManager{testOK: true}), http.MethodPost, "/api/integrations/hubspot/test", strings.NewReader(""), cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok": true}`, rec.Body.String())

	rec = serve(newIntegrationServer(&fakeManager{testErr: domain.ErrNotConnected}), http.MethodPost, "/api/integrations/hubspot/test", strings.NewReader(""), cookies)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusAndProvidersRoutes(t *testing.T) {
	t.Parallel()

	lastSync := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	e := echo.New()
	NewIntegrationRoutes(&fakeManager{}, fakeStatus{
		"google-calendar": {Status: domain.StatusConnected, LastSync: &lastSync},
	}, nil, "", nil).RegisterRoutes(e)
	cookies := sessionCookies(t, "github:101")

	rec := serve(e, http.MethodGet, "/api/integrations/status", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"google-calendar": {"status": "connected", "last_sync": "2026-10-17T08:00:00Z"}}`, rec.Body.String())

	rec = serve(e, http.MethodGet, "/api/integrations/providers", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Providers []providerView `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Providers, 2)
	assert.Equal(t, "google-calendar", body.Providers[0].DisplayKey)
	assert.False(t, body.Providers[0].Configured)
	assert.Equal(t, []string{"shop"}, body.Providers[1].RequiredParams)
}

type fakeSync struct {
	mu      sync.Mutex
	running bool
	starts  int
	tenant  string
}

func (f *fakeSync) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		f.starts++
	}
	f.running = true
	return nil
}

func (f *fakeSync) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
}

func (f *fakeSync) RunSync(context.Context) (scheduler.RunSummary, error) {
	return scheduler.RunSummary{Dispatched: 3, InFlight: 1}, nil
}

func (f *fakeSync) RunConnection(_ context.Context, tenantID, provider string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if provider == "missing" {
		return false, domain.ErrNotConnected
	}
	f.tenant = tenantID
	return true, nil
}

func (f *fakeSync) Status() scheduler.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return scheduler.Status{Running: f.running, Interval: "15m0s", Recent: []scheduler.SyncRun{}}
}

func TestSyncRoutesAreIdempotent(t *testing.T) {
	t.Parallel()

	ctrl := &fakeSync{}
	e := echo.New()
	NewSyncRoutes(ctrl).RegisterRoutes(e)
	cookies := sessionCookies(t, "github:101")

	for i := 0; i < 2; i++ {
		rec := serve(e, http.MethodPost, "/api/sync/start", strings.NewReader(""), cookies)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 1, ctrl.starts)

	rec := serve(e, http.MethodGet, "/api/sync/status", nil, cookies)
	assert.JSONEq(t, `{"running": true, "interval": "15m0s", "in_flight": 0, "recent": []}`, rec.Body.String())

	for i := 0; i < 2; i++ {
		rec = serve(e, http.MethodPost, "/api/sync/stop", strings.NewReader(""), cookies)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec = serve(e, http.MethodPost, "/api/sync/run", strings.NewReader(""), cookies)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"dispatched": 3, "in_flight": 1, "disabled": 0}`, rec.Body.String())

	rec = serve(e, http.MethodPost, "/api/sync/run/hubspot", strings.NewReader(""), cookies)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "github:101", ctrl.tenant)

	rec = serve(e, http.MethodPost, "/api/sync/run/missing", strings.NewReader(""), cookies)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type fakeReceiver struct {
	got webhooks.Request
	ack webhooks.Ack
	err error
}

func (f *fakeReceiver) Receive(_ context.Context, req webhooks.Request) (webhooks.Ack, error) {
	f.got = req
	return f.ack, f.err
}

func TestWebhookRouteEchoesChallenge(t *testing.T) {
	t.Parallel()

	receiver := &fakeReceiver{ack: webhooks.Ack{Status: webhooks.AckChallenge, Challenge: "abc123"}}
	e := echo.New()
	NewWebhookRoutes(receiver, "https://synclink.example.com/").RegisterRoutes(e)

	rec := serve(e, http.MethodGet, "/webhooks/hubspot?hub.challenge=abc123", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc123", rec.Body.String())
	assert.Equal(t, "hubspot", receiver.got.Provider)
	assert.Equal(t, "abc123", receiver.got.Query.Get("hub.challenge"))
}

func TestWebhookRoutePassesSignedURLAndMapsErrors(t *testing.T) {
	t.Parallel()

	receiver := &fakeReceiver{err: fmt.Errorf("%w: bad digest", webhooks.ErrSignatureInvalid)}
	e := echo.New()
	NewWebhookRoutes(receiver, "https://synclink.example.com").RegisterRoutes(e)

	rec := serve(e, http.MethodPost, "/webhooks/hubspot?portal=1", strings.NewReader(`[{"eventId":1}]`), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "https://synclink.example.com/webhooks/hubspot?portal=1", receiver.got.URL)
	assert.Equal(t, `[{"eventId":1}]`, string(receiver.got.Body))

	receiver.err = nil
	receiver.ack = webhooks.Ack{Status: webhooks.AckDropped, Dropped: 1}
	rec = serve(e, http.MethodPost, "/webhooks/hubspot", strings.NewReader(`[]`), nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"status": "dropped", "accepted": 0, "duplicates": 0, "dropped": 1, "failed": 0}`, rec.Body.String())

	receiver.err = errors.New("database is locked")
	rec = serve(e, http.MethodPost, "/webhooks/hubspot", strings.NewReader(`[]`), nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "locked")
}

type failingPinger struct{ err error }

func (p failingPinger) Ping(context.Context) error { return p.err }

func TestHealthz(t *testing.T) {
	t.Parallel()

	e := echo.New()
	NewHealthRoutes(failingPinger{}).RegisterRoutes(e)
	rec := serve(e, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	e = echo.New()
	NewHealthRoutes(failingPinger{err: errors.New("closed")}).RegisterRoutes(e)
	rec = serve(e, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDevLoginStoresTenant(t *testing.T) {
	t.Parallel()
	initAuthStoreForTests()

	e := echo.New()
	NewAuthRoutes(true).RegisterRoutes(e)

	form := url.Values{"nickname": {"ana"}, "next": {"//evil.example.com"}}
	rec := serve(e, http.MethodPost, "/auth/dev/login", strings.NewReader(form.Encode()), nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get(echo.HeaderLocation))

	rec = serve(e, http.MethodGet, "/api/me", nil, rec.Result().Cookies())
	require.Equal(t, http.StatusOK, rec.Code)
	var me map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "dev:ana", me["tenant_id"])
}
