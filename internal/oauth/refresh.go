package oauth

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"golang.org/x/oauth2"

	"github.com/fr0stylo/synclink/internal/app/domain"
	"github.com/fr0stylo/synclink/internal/app/ports"
)

var reauthErrorCodes = map[string]struct{}{
	"invalid_grant":       {},
	"invalid_token":       {},
	"unauthorized_client": {},
	"invalid_client":      {},
}

// RefreshIfExpired returns conn unchanged while its token is valid beyond the refresh skew.
// Otherwise it refreshes once per connection even under concurrent callers.
func (m *Manager) RefreshIfExpired(ctx context.Context, conn domain.Connection) (domain.Connection, error) {
	if !conn.Credentials.ExpiresWithin(m.now(), m.cfg.RefreshSkew) {
		return conn, nil
	}
	key := domain.ConnectionKey(conn.TenantID, conn.IntegrationID)
	result, err, _ := m.flights.Do(key, func() (any, error) {
		return m.refresh(context.WithoutCancel(ctx), conn.TenantID, conn.IntegrationID)
	})
	if err != nil {
		return conn, err
	}
	return result.(domain.Connection), nil
}

func (m *Manager) refresh(ctx context.Context, tenantID, provider string) (domain.Connection, error) {
	current, err := m.Connection(ctx, tenantID, provider)
	if err != nil {
		return domain.Connection{}, err
	}
	// Another process may have rotated the token since the caller read it.
	if !current.Credentials.ExpiresWithin(m.now(), m.cfg.RefreshSkew) {
		return current, nil
	}
	if !current.Credentials.Refreshable() {
		m.markReauth(ctx, current, "token expired without refresh token")
		return current, domain.ErrReauthRequired
	}

	p, err := m.configured(provider)
	if err != nil {
		return current, err
	}
	oauthCfg, err := p.OAuthConfig(m.CallbackURL(p.ID), map[string]string{"shop": current.Credentials.ShopDomain})
	if err != nil {
		return current, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	stale := &oauth2.Token{
		RefreshToken: current.Credentials.RefreshToken,
		Expiry:       time.Unix(1, 0),
	}
	tok, err := oauthCfg.TokenSource(m.httpContext(ctx), stale).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			if _, dead := reauthErrorCodes[retrieveErr.ErrorCode]; dead {
				m.markReauth(ctx, current, retrieveErr.ErrorCode)
				return current, fmt.Errorf("%w: %s", domain.ErrReauthRequired, retrieveErr.ErrorCode)
			}
		}
		return current, fmt.Errorf("refresh %s token: %w", provider, err)
	}

	next := current.Credentials
	next.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}
	if tok.TokenType != "" {
		next.TokenType = tok.TokenType
	}
	next.ExpiresAt = tok.Expiry
	if next.ExpiresAt.IsZero() && tok.ExpiresIn > 0 {
		next.ExpiresAt = m.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	next.Extras = maps.Clone(next.Extras)
	applyTokenExtras(&next, p.TokenExtrasFrom(tok))

	swapped, err := m.stores.Connections.SwapCredentials(ctx, tenantID, provider, current.RefreshGeneration, next)
	if errors.Is(err, ports.ErrConflict) {
		m.log.InfoContext(ctx, "token_refresh_lost_race", "tenant_id", tenantID, "provider", provider)
		return m.Connection(ctx, tenantID, provider)
	}
	if err != nil {
		return current, fmt.Errorf("store refreshed token: %w", err)
	}

	if swapped.Status == domain.StatusError {
		if err := m.stores.Connections.SetStatus(ctx, tenantID, provider, domain.StatusConnected, ""); err != nil {
			return swapped, fmt.Errorf("restore connected status: %w", err)
		}
		swapped.Status = domain.StatusConnected
		swapped.LastError = ""
	}
	m.log.InfoContext(ctx, "token_refreshed", "tenant_id", tenantID, "provider", provider, "generation", swapped.RefreshGeneration)
	return swapped, nil
}

func (m *Manager) markReauth(ctx context.Context, conn domain.Connection, reason string) {
	m.log.WarnContext(ctx, "token_refresh_rejected", "tenant_id", conn.TenantID, "provider", conn.IntegrationID, "reason", reason)
	if !conn.Status.CanTransition(domain.StatusError) {
		return
	}
	if err := m.stores.Connections.SetStatus(ctx, conn.TenantID, conn.IntegrationID, domain.StatusError, "reauthorization required: "+reason); err != nil {
		m.log.ErrorContext(ctx, "integration_status_update_failed", "tenant_id", conn.TenantID, "provider", conn.IntegrationID, "error", err)
	}
}
