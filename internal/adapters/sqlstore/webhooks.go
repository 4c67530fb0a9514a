package sqlstore

import (
	"context"
	"strings"

	"github.com/fr0stylo/synclink/internal/app/domain"
	"github.com/fr0stylo/synclink/internal/db/queries"
)

func (s *Store) UpsertSubscription(ctx context.Context, sub domain.WebhookSubscription) error {
	createdAt := sub.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	return s.db.UpsertWebhookSubscription(ctx, queries.UpsertWebhookSubscriptionParams{
		IntegrationID: sub.IntegrationID,
		AccountID:     strings.TrimSpace(sub.AccountID),
		TenantID:      sub.TenantID,
		CreatedAtMs:   createdAt.UnixMilli(),
	})
}

func (s *Store) ResolveTenant(ctx context.Context, integrationID, accountID string) (string, error) {
	tenantID, err := s.db.GetWebhookSubscriptionTenant(ctx, queries.GetWebhookSubscriptionTenantParams{
		IntegrationID: integrationID,
		AccountID:     strings.TrimSpace(accountID),
	})
	if err != nil {
		return "", mapNoRows(err)
	}
	return tenantID, nil
}

func (s *Store) DeleteSubscriptions(ctx context.Context, tenantID, integrationID string) error {
	return s.db.DeleteWebhookSubscriptions(ctx, queries.DeleteWebhookSubscriptionsParams{
		TenantID:      tenantID,
		IntegrationID: integrationID,
	})
}

// AppendWebhookEvent inserts the event once; a repeated event id reports false.
func (s *Store) AppendWebhookEvent(ctx context.Context, event domain.WebhookEvent) (bool, error) {
	receivedAt := event.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = receivedAt
	}
	affected, err := s.db.InsertWebhookEvent(ctx, queries.InsertWebhookEventParams{
		IntegrationID: event.IntegrationID,
		EventID:       event.EventID,
		TenantID:      event.TenantID,
		EventType:     event.EventType,
		ObjectID:      event.ObjectID,
		OccurredAtMs:  occurredAt.UnixMilli(),
		Payload:       string(event.Payload),
		ReceivedAtMs:  receivedAt.UnixMilli(),
	})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) ListWebhookEvents(ctx context.Context, tenantID string, limit int) ([]domain.WebhookEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.ListWebhookEventsByTenant(ctx, queries.ListWebhookEventsByTenantParams{
		TenantID: tenantID,
		Limit:    int64(limit),
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.WebhookEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.WebhookEvent{
			IntegrationID: row.IntegrationID,
			EventID:       row.EventID,
			TenantID:      row.TenantID,
			EventType:     row.EventType,
			ObjectID:      row.ObjectID,
			OccurredAt:    fromMillis(row.OccurredAtMs),
			Payload:       []byte(row.Payload),
			ReceivedAt:    fromMillis(row.ReceivedAtMs),
		})
	}
	return out, nil
}
