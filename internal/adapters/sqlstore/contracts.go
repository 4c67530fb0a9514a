package sqlstore

import (
	"context"

	"github.com/fr0stylo/synclink/internal/app/ports"
	"github.com/fr0stylo/synclink/internal/db/queries"
)

type storeDatabase interface {
	GetConnection(ctx context.Context, arg queries.GetConnectionParams) (queries.IntegrationConnection, error)
	UpsertConnection(ctx context.Context, arg queries.UpsertConnectionParams) (queries.IntegrationConnection, error)
	DeleteConnection(ctx context.Context, arg queries.DeleteConnectionParams) (int64, error)
	ListConnectionsByStatus(ctx context.Context, status string) ([]queries.IntegrationConnection, error)
	ListConnectionsByTenant(ctx context.Context, tenantID string) ([]queries.IntegrationConnection, error)
	SwapConnectionCredentials(ctx context.Context, arg queries.SwapConnectionCredentialsParams) (queries.IntegrationConnection, error)
	MarkConnectionSynced(ctx context.Context, arg queries.MarkConnectionSyncedParams) (int64, error)
	IncrementConnectionFailures(ctx context.Context, arg queries.IncrementConnectionFailuresParams) (int64, error)
	SetConnectionStatus(ctx context.Context, arg queries.SetConnectionStatusParams) (int64, error)

	UpsertCalendarSync(ctx context.Context, arg queries.UpsertCalendarSyncParams) (queries.CalendarSync, error)
	GetCalendarSync(ctx context.Context, arg queries.GetCalendarSyncParams) (queries.CalendarSync, error)
	SetCalendarSyncEnabled(ctx context.Context, arg queries.SetCalendarSyncEnabledParams) (int64, error)
	TouchCalendarSync(ctx context.Context, arg queries.TouchCalendarSyncParams) (int64, error)
	DeleteCalendarSync(ctx context.Context, arg queries.DeleteCalendarSyncParams) (int64, error)
	ListCalendarSyncsByTenant(ctx context.Context, tenantID string) ([]queries.CalendarSync, error)
	ListEnabledCalendarSyncs(ctx context.Context) ([]queries.CalendarSync, error)

	UpsertWebhookSubscription(ctx context.Context, arg queries.UpsertWebhookSubscriptionParams) error
	GetWebhookSubscriptionTenant(ctx context.Context, arg queries.GetWebhookSubscriptionTenantParams) (string, error)
	DeleteWebhookSubscriptions(ctx context.Context, arg queries.DeleteWebhookSubscriptionsParams) error
	InsertWebhookEvent(ctx context.Context, arg queries.InsertWebhookEventParams) (int64, error)
	ListWebhookEventsByTenant(ctx context.Context, arg queries.ListWebhookEventsByTenantParams) ([]queries.WebhookEvent, error)
}

var (
	_ ports.CredentialStore        = (*Store)(nil)
	_ ports.CalendarSyncStore      = (*Store)(nil)
	_ ports.SubscriptionStore      = (*Store)(nil)
	_ ports.WebhookEventLog        = (*Store)(nil)
	_ ports.ConnectionStatusReader = (*Store)(nil)
)
