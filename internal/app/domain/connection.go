package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrReauthRequired indicates the provider rejected the refresh token and the user must reconnect.
	ErrReauthRequired = errors.New("reauthorization required")
	// ErrNotConnected indicates no connection row exists for the tenant/provider pair.
	ErrNotConnected = errors.New("integration not connected")
)

// ConnectionStatus is the lifecycle state of one tenant/provider connection.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusError        ConnectionStatus = "error"
)

// Valid reports whether s is a known status.
func (s ConnectionStatus) Valid() bool {
	switch s {
	case StatusConnected, StatusDisconnected, StatusError:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a connection may move from s to next.
// A connection that was never established cannot enter the error state.
func (s ConnectionStatus) CanTransition(next ConnectionStatus) bool {
	switch s {
	case StatusDisconnected:
		return next == StatusConnected || next == StatusDisconnected
	case StatusConnected, StatusError:
		return next.Valid()
	default:
		return false
	}
}

// Credentials is the provider token material stored for a connection.
type Credentials struct {
	AccessToken  string            `json:"access_token" validate:"required"`
	RefreshToken string            `json:"refresh_token,omitempty"`
	TokenType    string            `json:"token_type,omitempty"`
	ExpiresAt    time.Time         `json:"expires_at,omitempty"`
	Scopes       []string          `json:"scopes,omitempty"`
	InstanceURL  string            `json:"instance_url,omitempty" validate:"omitempty,url"`
	ShopDomain   string            `json:"shop_domain,omitempty" validate:"omitempty,hostname"`
	APIDomain    string            `json:"api_domain,omitempty" validate:"omitempty,url"`
	AccountID    string            `json:"account_id,omitempty"`
	Extras       map[string]string `json:"extras,omitempty"`
}

// ExpiresWithin reports whether the access token expires before now+skew.
// Tokens without an expiry never expire.
func (c Credentials) ExpiresWithin(now time.Time, skew time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(c.ExpiresAt)
}

// Refreshable reports whether a refresh token is present.
func (c Credentials) Refreshable() bool {
	return strings.TrimSpace(c.RefreshToken) != ""
}

// Connection is one tenant's link to one provider.
type Connection struct {
	TenantID            string
	IntegrationID       string
	Credentials         Credentials
	Status              ConnectionStatus
	ConnectedAt         time.Time
	LastSync            *time.Time
	RefreshGeneration   int64
	ConsecutiveFailures int
	LastError           string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Key identifies the connection for in-process serialization.
func (c Connection) Key() string {
	return ConnectionKey(c.TenantID, c.IntegrationID)
}

// ConnectionKey builds the tenant/provider key.
func ConnectionKey(tenantID, integrationID string) string {
	return tenantID + "/" + integrationID
}

// TokenSet is a normalized token endpoint response.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresIn    int64
	Expiry       time.Time
	Extras       map[string]string
}

// CalendarSync tracks calendar synchronization for calendar-class providers.
type CalendarSync struct {
	TenantID     string
	Provider     string
	SyncEnabled  bool
	LastSyncedAt *time.Time
	CreatedAt    time.Time
}

// WebhookSubscription maps a provider-side account to the owning tenant.
type WebhookSubscription struct {
	IntegrationID string
	AccountID     string
	TenantID      string
	CreatedAt     time.Time
}

// WebhookEvent is one applied inbound provider event.
type WebhookEvent struct {
	IntegrationID string
	EventID       string
	TenantID      string
	EventType     string
	ObjectID      string
	OccurredAt    time.Time
	Payload       []byte
	ReceivedAt    time.Time
}
