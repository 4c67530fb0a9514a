// Package oauth manages the OAuth connection lifecycle of tenant integrations.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/fr0stylo/synclink/internal/app/domain"
	"github.com/fr0stylo/synclink/internal/app/ports"
	"github.com/fr0stylo/synclink/internal/credentials"
	"github.com/fr0stylo/synclink/internal/idempotency"
	"github.com/fr0stylo/synclink/internal/providers"
)

// Stores groups the persistence ports the manager mutates.
type Stores struct {
	Connections   ports.CredentialStore
	Calendars     ports.CalendarSyncStore
	Subscriptions ports.SubscriptionStore
}

type Config struct {
	PublicURL   string
	StateSecret string
	StateMaxAge time.Duration
	RefreshSkew time.Duration
	Codec       *credentials.Codec
	// Nonces spends each state nonce once. Share a Redis store across instances.
	Nonces idempotency.Store
	Logger *slog.Logger
}

// Manager builds authorization URLs, exchanges codes and keeps tokens fresh.
type Manager struct {
	registry *providers.Registry
	stores   Stores
	codec    *credentials.Codec
	state    *StateCodec
	nonces   idempotency.Store
	cfg      Config
	log      *slog.Logger
	now      func() time.Time
	flights  singleflight.Group
}

func NewManager(registry *providers.Registry, stores Stores, cfg Config) (*Manager, error) {
	if registry == nil {
		return nil, errors.New("provider registry is required")
	}
	if stores.Connections == nil {
		return nil, errors.New("connection store is required")
	}
	if strings.TrimSpace(cfg.StateSecret) == "" {
		return nil, errors.New("state secret is required")
	}
	if cfg.RefreshSkew <= 0 {
		cfg.RefreshSkew = 2 * time.Minute
	}
	codec := cfg.Codec
	if codec == nil {
		var err error
		codec, err = credentials.NewCodec("")
		if err != nil {
			return nil, err
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nonces := cfg.Nonces
	if nonces == nil {
		nonces = idempotency.NewMemory()
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	return &Manager{
		registry: registry,
		stores:   stores,
		codec:    codec,
		state:    NewStateCodec(cfg.StateSecret, cfg.StateMaxAge),
		nonces:   nonces,
		cfg:      cfg,
		log:      logger,
		now:      time.Now,
	}, nil
}

// CallbackURL is the redirect URI registered with the provider.
func (m *Manager) CallbackURL(provider string) string {
	return m.cfg.PublicURL + "/integrations/" + provider + "/callback"
}

// Providers lists registry entries for display.
func (m *Manager) Providers() []providers.Provider {
	return m.registry.List()
}

// Connection returns the stored connection, or domain.ErrNotConnected.
func (m *Manager) Connection(ctx context.Context, tenantID, provider string) (domain.Connection, error) {
	conn, err := m.stores.Connections.GetConnection(ctx, tenantID, provider)
	if errors.Is(err, ports.ErrNotFound) {
		return domain.Connection{}, domain.ErrNotConnected
	}
	return conn, err
}

// BuildAuthorizationURL returns the provider consent URL carrying a signed state for tenantID.
func (m *Manager) BuildAuthorizationURL(ctx context.Context, provider, tenantID string, extra url.Values) (string, error) {
	p, err := m.configured(provider)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(tenantID) == "" {
		return "", fmt.Errorf("%w: tenant", ErrMissingParameter)
	}

	params := make(map[string]string, len(p.RequiredParams))
	for _, key := range p.RequiredParams {
		params[key] = strings.TrimSpace(extra.Get(key))
	}
	if missing := p.MissingParams(params); len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingParameter, strings.Join(missing, ", "))
	}
	if shop, ok := params["shop"]; ok {
		normalized, err := providers.NormalizeShop(shop)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrMissingParameter, err)
		}
		params["shop"] = normalized
	}

	oauthCfg, err := p.OAuthConfig(m.CallbackURL(p.ID), params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMissingParameter, err)
	}
	if len(params) == 0 {
		params = nil
	}
	state, _, err := m.state.Encode(tenantID, p.ID, params)
	if err != nil {
		return "", err
	}
	m.log.DebugContext(ctx, "oauth_authorize_url_built", "tenant_id", tenantID, "provider", p.ID)
	return oauthCfg.AuthCodeURL(state, p.AuthCodeOptions()...), nil
}

// ExchangeCode verifies state and trades code for tokens. It returns the tenant recovered from state.
func (m *Manager) ExchangeCode(ctx context.Context, provider, code, rawState string) (domain.TokenSet, string, error) {
	p, err := m.configured(provider)
	if err != nil {
		return domain.TokenSet{}, "", err
	}
	state, err := m.state.Decode(rawState)
	if err != nil {
		return domain.TokenSet{}, "", fmt.Errorf("%w: %w", ErrOAuthExchange, err)
	}
	if state.Provider != p.ID {
		return domain.TokenSet{}, "", fmt.Errorf("%w: state issued for %s", ErrOAuthExchange, state.Provider)
	}
	if strings.TrimSpace(code) == "" {
		return domain.TokenSet{}, "", fmt.Errorf("%w: missing code", ErrOAuthExchange)
	}
	if err := m.spendNonce(ctx, state); err != nil {
		m.log.WarnContext(ctx, "oauth_state_rejected", "tenant_id", state.TenantID, "provider", p.ID, "error", err)
		return domain.TokenSet{}, "", err
	}

	oauthCfg, err := p.OAuthConfig(m.CallbackURL(p.ID), state.Params)
	if err != nil {
		return domain.TokenSet{}, "", fmt.Errorf("%w: %v", ErrOAuthExchange, err)
	}
	tok, err := oauthCfg.Exchange(m.httpContext(ctx), code)
	if err != nil {
		return domain.TokenSet{}, "", fmt.Errorf("%w: %v", ErrOAuthExchange, err)
	}

	extras := p.TokenExtrasFrom(tok)
	for key, value := range state.Params {
		extras[key] = value
	}
	tokens := domain.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresIn:    tok.ExpiresIn,
		Expiry:       tok.Expiry,
		Extras:       extras,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		tokens.Scope = scope
	}
	return tokens, state.TenantID, nil
}

// spendNonce marks the state nonce used for the rest of the state's lifetime.
func (m *Manager) spendNonce(ctx context.Context, state State) error {
	fresh, err := m.nonces.MarkProcessed(ctx, "oauth_state/"+state.Nonce, m.state.maxAge)
	if err != nil {
		return fmt.Errorf("%w: record state nonce: %w", ErrOAuthExchange, err)
	}
	if !fresh {
		return fmt.Errorf("%w: %w", ErrOAuthExchange, ErrStateReplayed)
	}
	return nil
}

// SaveConnection stores tokens as the tenant's connected credentials.
// The first connect sets ConnectedAt; later saves keep it.
func (m *Manager) SaveConnection(ctx context.Context, tenantID, provider string, tokens domain.TokenSet) (domain.Connection, error) {
	p, ok := m.registry.Lookup(provider)
	if !ok {
		return domain.Connection{}, fmt.Errorf("%w: %s", ErrConfiguration, provider)
	}
	now := m.now()
	creds := credentialsFromTokens(tokens, now)
	if err := m.codec.ValidateConnectable(creds, now); err != nil {
		return domain.Connection{}, fmt.Errorf("%w: %v", ErrOAuthExchange, err)
	}

	if client, err := m.registry.Client(p.ID); err == nil {
		identity, err := client.Identify(ctx, creds)
		switch {
		case err == nil:
			creds.AccountID = identity.AccountID
			for key, value := range identity.Extras {
				if creds.Extras == nil {
					creds.Extras = make(map[string]string)
				}
				creds.Extras[key] = value
			}
		case errors.Is(err, providers.ErrNotSupported):
		default:
			m.log.WarnContext(ctx, "oauth_identify_failed", "tenant_id", tenantID, "provider", p.ID, "error", err)
		}
	}

	conn, err := m.stores.Connections.UpsertConnection(ctx, domain.Connection{
		TenantID:      tenantID,
		IntegrationID: p.ID,
		Credentials:   creds,
		Status:        domain.StatusConnected,
		ConnectedAt:   now,
	})
	if err != nil {
		return domain.Connection{}, fmt.Errorf("save connection: %w", err)
	}

	if creds.AccountID != "" && m.stores.Subscriptions != nil {
		if err := m.stores.Subscriptions.UpsertSubscription(ctx, domain.WebhookSubscription{
			IntegrationID: p.ID,
			AccountID:     creds.AccountID,
			TenantID:      tenantID,
		}); err != nil {
			m.log.WarnContext(ctx, "webhook_subscription_save_failed", "tenant_id", tenantID, "provider", p.ID, "error", err)
		}
	}
	if p.Calendar && m.stores.Calendars != nil {
		if _, err := m.stores.Calendars.UpsertCalendarSync(ctx, tenantID, p.ID, true); err != nil {
			return domain.Connection{}, fmt.Errorf("save calendar sync: %w", err)
		}
	}

	m.log.InfoContext(ctx, "integration_connected", "tenant_id", tenantID, "provider", p.ID, "account_id", creds.AccountID)
	return conn, nil
}

// Disconnect removes the connection and its calendar and webhook rows.
// It reports false when nothing was connected.
func (m *Manager) Disconnect(ctx context.Context, tenantID, provider string) (bool, error) {
	deleted, err := m.stores.Connections.DeleteConnection(ctx, tenantID, provider)
	if err != nil {
		return false, fmt.Errorf("delete connection: %w", err)
	}
	if m.stores.Calendars != nil {
		calendarDeleted, err := m.stores.Calendars.DeleteCalendarSync(ctx, tenantID, provider)
		if err != nil {
			return deleted, fmt.Errorf("delete calendar sync: %w", err)
		}
		deleted = deleted || calendarDeleted
	}
	if m.stores.Subscriptions != nil {
		if err := m.stores.Subscriptions.DeleteSubscriptions(ctx, tenantID, provider); err != nil {
			return deleted, fmt.Errorf("delete webhook subscriptions: %w", err)
		}
	}
	m.flights.Forget(domain.ConnectionKey(tenantID, provider))
	if deleted {
		m.log.InfoContext(ctx, "integration_disconnected", "tenant_id", tenantID, "provider", provider)
	}
	return deleted, nil
}

// TestConnection refreshes if needed and issues the provider's cheap authenticated call.
// Provider failures move the connection to error and report false without an error.
func (m *Manager) TestConnection(ctx context.Context, tenantID, provider string) (bool, error) {
	conn, err := m.Connection(ctx, tenantID, provider)
	if err != nil {
		return false, err
	}
	client, err := m.registry.Client(provider)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	conn, err = m.RefreshIfExpired(ctx, conn)
	if errors.Is(err, domain.ErrReauthRequired) {
		return false, nil
	}
	if err != nil {
		m.markError(ctx, conn, err)
		return false, nil
	}

	if err := client.Ping(ctx, conn.Credentials); err != nil {
		m.markError(ctx, conn, err)
		return false, nil
	}
	if err := m.stores.Connections.RecordSyncSuccess(ctx, tenantID, provider, m.now()); err != nil {
		return false, fmt.Errorf("record test success: %w", err)
	}
	return true, nil
}

func (m *Manager) markError(ctx context.Context, conn domain.Connection, cause error) {
	m.log.WarnContext(ctx, "integration_test_failed", "tenant_id", conn.TenantID, "provider", conn.IntegrationID, "error", cause)
	if !conn.Status.CanTransition(domain.StatusError) {
		return
	}
	if err := m.stores.Connections.SetStatus(ctx, conn.TenantID, conn.IntegrationID, domain.StatusError, cause.Error()); err != nil && !errors.Is(err, ports.ErrNotFound) {
		m.log.ErrorContext(ctx, "integration_status_update_failed", "tenant_id", conn.TenantID, "provider", conn.IntegrationID, "error", err)
	}
}

func (m *Manager) configured(provider string) (providers.Provider, error) {
	p, ok := m.registry.Lookup(provider)
	if !ok {
		return providers.Provider{}, fmt.Errorf("%w: %w %s", ErrConfiguration, providers.ErrUnknownProvider, provider)
	}
	if !p.Configured() {
		return providers.Provider{}, fmt.Errorf("%w: %s client id is not set", ErrConfiguration, p.ID)
	}
	return p, nil
}

func (m *Manager) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.registry.HTTPClient())
}

func credentialsFromTokens(tokens domain.TokenSet, now time.Time) domain.Credentials {
	creds := domain.Credentials{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    tokens.TokenType,
		ExpiresAt:    tokens.Expiry,
		Scopes:       splitScopes(tokens.Scope),
	}
	if creds.ExpiresAt.IsZero() && tokens.ExpiresIn > 0 {
		creds.ExpiresAt = now.Add(time.Duration(tokens.ExpiresIn) * time.Second)
	}
	applyTokenExtras(&creds, tokens.Extras)
	return creds
}

// applyTokenExtras moves well-known token fields onto their typed credential
// fields and keeps the rest in Extras.
func applyTokenExtras(creds *domain.Credentials, extras map[string]string) {
	for key, value := range extras {
		switch key {
		case "instance_url":
			creds.InstanceURL = value
		case "shop":
			creds.ShopDomain = value
		case "api_domain":
			creds.APIDomain = value
		default:
			if creds.Extras == nil {
				creds.Extras = make(map[string]string)
			}
			creds.Extras[key] = value
		}
	}
}

func splitScopes(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ' ' || r == ',' })
	if len(fields) == 0 {
		return nil
	}
	return fields
}
