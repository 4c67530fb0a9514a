package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fr0stylo/synclink/internal/adapters/sqlstore"
	"github.com/fr0stylo/synclink/internal/app/domain"
	"github.com/fr0stylo/synclink/internal/app/ports"
	"github.com/fr0stylo/synclink/internal/config"
	"github.com/fr0stylo/synclink/internal/credentials"
	"github.com/fr0stylo/synclink/internal/db"
	"github.com/fr0stylo/synclink/internal/idempotency"
	"github.com/fr0stylo/synclink/internal/providers"
)

// fakeProvider is a HubSpot-shaped OAuth server with single-use refresh tokens.
type fakeProvider struct {
	server       *httptest.Server
	refreshCalls atomic.Int32
	refreshDelay atomic.Int64

	mu           sync.Mutex
	validRefresh map[string]bool
	validAccess  map[string]bool
	generation   int
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	fp := &fakeProvider{
		validRefresh: map[string]bool{},
		validAccess:  map[string]bool{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", fp.token)
	mux.HandleFunc("/oauth/v1/access-tokens/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"hub_id": 4455})
	})
	mux.HandleFunc("/crm/v3/objects/contacts", func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		fp.mu.Lock()
		ok := fp.validAccess[token]
		fp.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"status": "error"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": []any{map[string]any{"id": "1"}}})
	})
	fp.server = httptest.NewServer(mux)
	t.Cleanup(fp.server.Close)
	return fp
}

func (fp *fakeProvider) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_request"})
		return
	}
	if r.PostForm.Get("client_id") != "hub-client" || r.PostForm.Get("client_secret") != "hub-secret" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid_client"})
		return
	}
	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		if r.PostForm.Get("code") != "code1" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
			return
		}
		fp.mu.Lock()
		fp.validAccess["tok1"] = true
		fp.validRefresh["ref1"] = true
		fp.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "tok1",
			"refresh_token": "ref1",
			"token_type":    "bearer",
			"expires_in":    3600,
		})
	case "refresh_token":
		fp.refreshCalls.Add(1)
		if delay := time.Duration(fp.refreshDelay.Load()); delay > 0 {
			time.Sleep(delay)
		}
		presented := r.PostForm.Get("refresh_token")
		fp.mu.Lock()
		defer fp.mu.Unlock()
		if !fp.validRefresh[presented] {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
			return
		}
		delete(fp.validRefresh, presented)
		fp.generation++
		access := fmt.Sprintf("tok%d", fp.generation+1)
		refresh := fmt.Sprintf("ref%d", fp.generation+1)
		fp.validAccess[access] = true
		fp.validRefresh[refresh] = true
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  access,
			"refresh_token": refresh,
			"token_type":    "bearer",
			"expires_in":    7200,
		})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unsupported_grant_type"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type harness struct {
	manager  *Manager
	store    *sqlstore.Store
	provider *fakeProvider
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	fp := newFakeProvider(t)
	database, err := db.New(filepath.Join(t.TempDir(), "oauth-test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	codec, err := credentials.NewCodec("test-key")
	require.NoError(t, err)
	store := sqlstore.NewStore(database, codec)

	settings := map[string]providers.Settings{
		"hubspot": {
			ClientID:     "hub-client",
			ClientSecret: "hub-secret",
			AuthURL:      fp.server.URL + "/authorize",
			TokenURL:     fp.server.URL + "/token",
			APIBaseURL:   fp.server.URL,
		},
	}
	registry := providers.NewRegistry(settings, fp.server.Client())
	manager, err := NewManager(registry, Stores{Connections: store, Calendars: store, Subscriptions: store}, Config{
		PublicURL:   "https://app.example.com/",
		StateSecret: "state-secret",
		StateMaxAge: 10 * time.Minute,
		RefreshSkew: 2 * time.Minute,
		Codec:       codec,
	})
	require.NoError(t, err)
	return &harness{manager: manager, store: store, provider: fp}
}

func stateFromURL(t *testing.T, raw string) string {
	t.Helper()
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	return parsed.Query().Get("state")
}

func TestHubSpotConnectAndRefreshBeforeSync(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)

	authURL, err := h.manager.BuildAuthorizationURL(ctx, "hubspot", "t1:169900000:ab12", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(authURL, h.provider.server.URL+"/authorize?"))
	assert.Contains(t, authURL, url.QueryEscape("https://app.example.com/integrations/hubspot/callback"))

	tokens, tenantID, err := h.manager.ExchangeCode(ctx, "hubspot", "code1", stateFromURL(t, authURL))
	require.NoError(t, err)
	assert.Equal(t, "t1:169900000:ab12", tenantID)
	assert.Equal(t, "tok1", tokens.AccessToken)
	assert.EqualValues(t, 3600, tokens.ExpiresIn)

	saved, err := h.manager.SaveConnection(ctx, tenantID, "hubspot", tokens)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConnected, saved.Status)
	assert.False(t, saved.ConnectedAt.IsZero())
	assert.Equal(t, "tok1", saved.Credentials.AccessToken)
	assert.Equal(t, "4455", saved.Credentials.AccountID)

	mapped, err := h.store.ResolveTenant(ctx, "hubspot", "4455")
	require.NoError(t, err)
	assert.Equal(t, tenantID, mapped)

	h.manager.now = func() time.Time { return saved.Credentials.ExpiresAt.Add(-time.Second) }
	refreshed, err := h.manager.RefreshIfExpired(ctx, saved)
	require.NoError(t, err)
	assert.Equal(t, "tok2", refreshed.Credentials.AccessToken)
	assert.Equal(t, "ref2", refreshed.Credentials.RefreshToken)
	assert.Equal(t, saved.ConnectedAt, refreshed.ConnectedAt)
	assert.EqualValues(t, 1, h.provider.refreshCalls.Load())
}

func TestStateRoundTripsTenantForEveryProvider(t *testing.T) {
	t.Parallel()

	settings := map[string]providers.Settings{}
	for _, key := range config.ProviderKeys {
		settings[key] = providers.Settings{ClientID: key + "-id", ClientSecret: "secret"}
	}
	registry := providers.NewRegistry(settings, nil)
	manager, err := NewManager(registry, Stores{Connections: nopStore{}}, Config{StateSecret: "s", PublicURL: "https://app"})
	require.NoError(t, err)

	extra := url.Values{"shop": []string{"acme"}}
	for _, p := range registry.List() {
		for _, tenant := range []string{"t1", "t1:169900000:ab12", "tenant with spaces/and?chars"} {
			authURL, err := manager.BuildAuthorizationURL(context.Background(), p.ID, tenant, extra)
			require.NoError(t, err, p.ID)

			state, err := manager.state.Decode(stateFromURL(t, authURL))
			require.NoError(t, err, p.ID)
			assert.Equal(t, tenant, state.TenantID, p.ID)
			assert.Equal(t, p.ID, state.Provider)
			assert.NotEmpty(t, state.Nonce)
		}
	}
}

func TestBuildAuthorizationURLErrors(t *testing.T) {
	t.Parallel()

	registry := providers.NewRegistry(map[string]providers.Settings{"shopify": {ClientID: "id"}}, nil)
	manager, err := NewManager(registry, Stores{Connections: nopStore{}}, Config{StateSecret: "s"})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = manager.BuildAuthorizationURL(ctx, "hubspot", "t1", nil)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, ErrorConfiguration, ClassifyError(err))

	_, err = manager.BuildAuthorizationURL(ctx, "myspace", "t1", nil)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = manager.BuildAuthorizationURL(ctx, "shopify", "t1", nil)
	assert.ErrorIs(t, err, ErrMissingParameter)

	_, err = manager.BuildAuthorizationURL(ctx, "shopify", "t1", url.Values{"shop": []string{"evil.example.com"}})
	assert.ErrorIs(t, err, ErrMissingParameter)

	authURL, err := manager.BuildAuthorizationURL(ctx, "shopify", "t1", url.Values{"shop": []string{"acme"}})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(authURL, "https://acme.myshopify.com/admin/oauth/authorize?"))
}

func TestExchangeRejectsBadState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)

	_, _, err := h.manager.ExchangeCode(ctx, "hubspot", "code1", "not-a-state")
	assert.ErrorIs(t, err, ErrOAuthExchange)

	otherProvider, _, err := h.manager.state.Encode("t1", "salesforce", nil)
	require.NoError(t, err)
	_, _, err = h.manager.ExchangeCode(ctx, "hubspot", "code1", otherProvider)
	assert.ErrorIs(t, err, ErrOAuthExchange)

	forged, _, err := NewStateCodec("other-secret", time.Minute).Encode("t1", "hubspot", nil)
	require.NoError(t, err)
	_, _, err = h.manager.ExchangeCode(ctx, "hubspot", "code1", forged)
	assert.ErrorIs(t, err, ErrOAuthExchange)

	h.manager.state.now = func() time.Time { return time.Now().Add(-11 * time.Minute) }
	stale, _, err := h.manager.state.Encode("t1", "hubspot", nil)
	require.NoError(t, err)
	h.manager.state.now = time.Now
	_, _, err = h.manager.ExchangeCode(ctx, "hubspot", "code1", stale)
	assert.ErrorIs(t, err, ErrOAuthExchange)
	assert.ErrorIs(t, err, ErrStateExpired)

	valid, _, err := h.manager.state.Encode("t1", "hubspot", nil)
	require.NoError(t, err)
	_, _, err = h.manager.ExchangeCode(ctx, "hubspot", "wrong-code", valid)
	assert.ErrorIs(t, err, ErrOAuthExchange)
	_, err = h.store.GetConnection(ctx, "t1", "hubspot")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestExchangeRejectsReplayedState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)
	shared := idempotency.NewMemory()
	t.Cleanup(func() { _ = shared.Close() })
	h.manager.nonces = shared

	authURL, err := h.manager.BuildAuthorizationURL(ctx, "hubspot", "t1", nil)
	require.NoError(t, err)
	state := stateFromURL(t, authURL)

	tokens, tenantID, err := h.manager.ExchangeCode(ctx, "hubspot", "code1", state)
	require.NoError(t, err)
	assert.Equal(t, "t1", tenantID)
	assert.Equal(t, "tok1", tokens.AccessToken)

	_, _, err = h.manager.ExchangeCode(ctx, "hubspot", "code1", state)
	assert.ErrorIs(t, err, ErrOAuthExchange)
	assert.ErrorIs(t, err, ErrStateReplayed)
	assert.Equal(t, ErrorExchange, ClassifyError(err))

	// A second instance sharing the nonce store refuses the same state.
	peer, err := NewManager(h.manager.registry, Stores{Connections: nopStore{}}, Config{
		StateSecret: "state-secret",
		StateMaxAge: 10 * time.Minute,
		Nonces:      shared,
	})
	require.NoError(t, err)
	_, _, err = peer.ExchangeCode(ctx, "hubspot", "code1", state)
	assert.ErrorIs(t, err, ErrStateReplayed)

	fresh, err := h.manager.BuildAuthorizationURL(ctx, "hubspot", "t1", nil)
	require.NoError(t, err)
	_, _, err = h.manager.ExchangeCode(ctx, "hubspot", "code1", stateFromURL(t, fresh))
	require.NoError(t, err)
}

func TestRefreshMovesRotatedAPIDomainOntoCredentials(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/token" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("refresh_token") != "r1" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "new-access",
			"refresh_token": "r2",
			"token_type":    "bearer",
			"expires_in":    3599,
			"api_domain":    "https://acme-2.pipedrive.com",
		})
	}))
	t.Cleanup(srv.Close)

	database, err := db.New(filepath.Join(t.TempDir(), "pipedrive-test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	codec, err := credentials.NewCodec("test-key")
	require.NoError(t, err)
	store := sqlstore.NewStore(database, codec)

	registry := providers.NewRegistry(map[string]providers.Settings{
		"pipedrive": {ClientID: "pd-client", ClientSecret: "pd-secret", TokenURL: srv.URL + "/token"},
	}, srv.Client())
	manager, err := NewManager(registry, Stores{Connections: store}, Config{StateSecret: "s", Codec: codec})
	require.NoError(t, err)

	conn, err := store.UpsertConnection(ctx, domain.Connection{
		TenantID:      "t1",
		IntegrationID: "pipedrive",
		Credentials: domain.Credentials{
			AccessToken:  "old-access",
			RefreshToken: "r1",
			ExpiresAt:    time.Now().Add(30 * time.Second),
			APIDomain:    "https://acme.pipedrive.com",
		},
		Status: domain.StatusConnected,
	})
	require.NoError(t, err)

	refreshed, err := manager.RefreshIfExpired(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, "new-access", refreshed.Credentials.AccessToken)
	assert.Equal(t, "https://acme-2.pipedrive.com", refreshed.Credentials.APIDomain)
	assert.NotContains(t, refreshed.Credentials.Extras, "api_domain")

	stored, err := store.GetConnection(ctx, "t1", "pipedrive")
	require.NoError(t, err)
	assert.Equal(t, "https://acme-2.pipedrive.com", stored.Credentials.APIDomain)
	assert.Equal(t, "r2", stored.Credentials.RefreshToken)

	p, ok := registry.Lookup("pipedrive")
	require.True(t, ok)
	base, err := p.APIBase(stored.Credentials)
	require.NoError(t, err)
	assert.Equal(t, "https://acme-2.pipedrive.com/api/v1", base)
}

func TestConcurrentRefreshSpendsRefreshTokenOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)
	h.provider.refreshDelay.Store(int64(150 * time.Millisecond))
	h.provider.mu.Lock()
	h.provider.validRefresh["ref1"] = true
	h.provider.mu.Unlock()

	conn, err := h.store.UpsertConnection(ctx, domain.Connection{
		TenantID:      "t1",
		IntegrationID: "hubspot",
		Credentials:   domain.Credentials{AccessToken: "tok1", RefreshToken: "ref1", ExpiresAt: time.Now().Add(time.Second)},
		Status:        domain.StatusConnected,
	})
	require.NoError(t, err)

	const callers = 4
	var wg sync.WaitGroup
	results := make([]domain.Connection, callers)
	errs := make([]error, callers)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = h.manager.RefreshIfExpired(ctx, conn)
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "tok2", results[i].Credentials.AccessToken)
	}
	assert.EqualValues(t, 1, h.provider.refreshCalls.Load())

	stored, err := h.store.GetConnection(ctx, "t1", "hubspot")
	require.NoError(t, err)
	assert.Equal(t, "ref2", stored.Credentials.RefreshToken)
}

func TestRefreshWithRevokedTokenRequiresReauth(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)

	conn, err := h.store.UpsertConnection(ctx, domain.Connection{
		TenantID:      "t1",
		IntegrationID: "hubspot",
		Credentials:   domain.Credentials{AccessToken: "tok1", RefreshToken: "revoked", ExpiresAt: time.Now().Add(-time.Minute)},
		Status:        domain.StatusConnected,
	})
	require.NoError(t, err)

	_, err = h.manager.RefreshIfExpired(ctx, conn)
	assert.ErrorIs(t, err, domain.ErrReauthRequired)

	stored, err := h.store.GetConnection(ctx, "t1", "hubspot")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, stored.Status)
	assert.Equal(t, "revoked", stored.Credentials.RefreshToken)
}

func TestTestConnectionTransitions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)

	_, err := h.manager.TestConnection(ctx, "t1", "hubspot")
	assert.ErrorIs(t, err, domain.ErrNotConnected)

	_, err = h.store.UpsertConnection(ctx, domain.Connection{
		TenantID:      "t1",
		IntegrationID: "hubspot",
		Credentials:   domain.Credentials{AccessToken: "unknown"},
		Status:        domain.StatusConnected,
	})
	require.NoError(t, err)

	ok, err := h.manager.TestConnection(ctx, "t1", "hubspot")
	require.NoError(t, err)
	assert.False(t, ok)
	failed, err := h.store.GetConnection(ctx, "t1", "hubspot")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, failed.Status)
	assert.Equal(t, "unknown", failed.Credentials.AccessToken)
	assert.Nil(t, failed.LastSync)

	h.provider.mu.Lock()
	h.provider.validAccess["unknown"] = true
	h.provider.mu.Unlock()

	ok, err = h.manager.TestConnection(ctx, "t1", "hubspot")
	require.NoError(t, err)
	assert.True(t, ok)
	recovered, err := h.store.GetConnection(ctx, "t1", "hubspot")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConnected, recovered.Status)
	assert.NotNil(t, recovered.LastSync)
}

func TestDisconnect(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)

	deleted, err := h.manager.Disconnect(ctx, "t1", "hubspot")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = h.manager.SaveConnection(ctx, "t1", "hubspot", domain.TokenSet{AccessToken: "tok1", RefreshToken: "ref1", ExpiresIn: 3600})
	require.NoError(t, err)

	deleted, err = h.manager.Disconnect(ctx, "t1", "hubspot")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = h.manager.Connection(ctx, "t1", "hubspot")
	assert.True(t, errors.Is(err, domain.ErrNotConnected))
	_, err = h.store.ResolveTenant(ctx, "hubspot", "4455")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestSaveCalendarConnectionCreatesSyncRow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	database, err := db.New(filepath.Join(t.TempDir(), "calendar-test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	codec, err := credentials.NewCodec("")
	require.NoError(t, err)
	store := sqlstore.NewStore(database, codec)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "ops@example.com"})
	}))
	t.Cleanup(api.Close)
	registry := providers.NewRegistry(map[string]providers.Settings{"google": {ClientID: "g", APIBaseURL: api.URL}}, api.Client())
	manager, err := NewManager(registry, Stores{Connections: store, Calendars: store, Subscriptions: store}, Config{StateSecret: "s", Codec: codec})
	require.NoError(t, err)

	_, err = manager.SaveConnection(ctx, "t1", "google", domain.TokenSet{AccessToken: "ya29", RefreshToken: "1//r", ExpiresIn: 3600})
	require.NoError(t, err)

	row, err := store.GetCalendarSync(ctx, "t1", "google")
	require.NoError(t, err)
	assert.True(t, row.SyncEnabled)

	deleted, err := manager.Disconnect(ctx, "t1", "google")
	require.NoError(t, err)
	assert.True(t, deleted)
	_, err = store.GetCalendarSync(ctx, "t1", "google")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestSaveRejectsExpiredTokenWithoutRefresh(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.manager.SaveConnection(context.Background(), "t1", "hubspot", domain.TokenSet{
		AccessToken: "tok1",
		Expiry:      time.Now().Add(-time.Hour),
	})
	assert.ErrorIs(t, err, ErrOAuthExchange)
}

// nopStore satisfies ports.CredentialStore for tests that never persist.
type nopStore struct{ ports.CredentialStore }
