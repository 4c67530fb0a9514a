package ports

import (
	"context"
	"errors"
	"time"

	"github.com/fr0stylo/synclink/internal/app/domain"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a compare-and-swap lost against a concurrent writer.
	ErrConflict = errors.New("conflict")
)

// CredentialStore persists tenant connections and their credentials.
type CredentialStore interface {
	GetConnection(ctx context.Context, tenantID, integrationID string) (domain.Connection, error)
	UpsertConnection(ctx context.Context, conn domain.Connection) (domain.Connection, error)
	DeleteConnection(ctx context.Context, tenantID, integrationID string) (bool, error)
	ListConnected(ctx context.Context) ([]domain.Connection, error)
	ListConnectionsByTenant(ctx context.Context, tenantID string) ([]domain.Connection, error)
	SwapCredentials(ctx context.Context, tenantID, integrationID string, expectedGeneration int64, creds domain.Credentials) (domain.Connection, error)
	RecordSyncSuccess(ctx context.Context, tenantID, integrationID string, at time.Time) error
	RecordSyncFailure(ctx context.Context, tenantID, integrationID, reason string) (int, error)
	SetStatus(ctx context.Context, tenantID, integrationID string, status domain.ConnectionStatus, reason string) error
}

// CalendarSyncStore persists calendar synchronization flags.
type CalendarSyncStore interface {
	UpsertCalendarSync(ctx context.Context, tenantID, provider string, enabled bool) (domain.CalendarSync, error)
	GetCalendarSync(ctx context.Context, tenantID, provider string) (domain.CalendarSync, error)
	SetCalendarSyncEnabled(ctx context.Context, tenantID, provider string, enabled bool) error
	TouchCalendarSync(ctx context.Context, tenantID, provider string, at time.Time) error
	DeleteCalendarSync(ctx context.Context, tenantID, provider string) (bool, error)
	ListCalendarSyncs(ctx context.Context, tenantID string) ([]domain.CalendarSync, error)
	ListEnabledCalendarSyncs(ctx context.Context) ([]domain.CalendarSync, error)
}

// SubscriptionStore maps provider accounts to tenants for webhook routing.
type SubscriptionStore interface {
	UpsertSubscription(ctx context.Context, sub domain.WebhookSubscription) error
	ResolveTenant(ctx context.Context, integrationID, accountID string) (string, error)
	DeleteSubscriptions(ctx context.Context, tenantID, integrationID string) error
}

// WebhookEventLog stores applied webhook events keyed by provider event id.
type WebhookEventLog interface {
	AppendWebhookEvent(ctx context.Context, event domain.WebhookEvent) (bool, error)
	ListWebhookEvents(ctx context.Context, tenantID string, limit int) ([]domain.WebhookEvent, error)
}

// ConnectionStatusReader is the read side used to build per-tenant status maps.
type ConnectionStatusReader interface {
	ListConnectionsByTenant(ctx context.Context, tenantID string) ([]domain.Connection, error)
	ListCalendarSyncs(ctx context.Context, tenantID string) ([]domain.CalendarSync, error)
}
