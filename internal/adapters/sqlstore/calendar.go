package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/fr0stylo/synclink/internal/app/domain"
	"github.com/fr0stylo/synclink/internal/app/ports"
	"github.com/fr0stylo/synclink/internal/db/queries"
)

func (s *Store) UpsertCalendarSync(ctx context.Context, tenantID, provider string, enabled bool) (domain.CalendarSync, error) {
	row, err := s.db.UpsertCalendarSync(ctx, queries.UpsertCalendarSyncParams{
		TenantID:    tenantID,
		Provider:    provider,
		SyncEnabled: boolToInt(enabled),
		CreatedAtMs: s.now().UnixMilli(),
	})
	if err != nil {
		return domain.CalendarSync{}, err
	}
	return toCalendarSync(row), nil
}

func (s *Store) GetCalendarSync(ctx context.Context, tenantID, provider string) (domain.CalendarSync, error) {
	row, err := s.db.GetCalendarSync(ctx, queries.GetCalendarSyncParams{TenantID: tenantID, Provider: provider})
	if err != nil {
		return domain.CalendarSync{}, mapNoRows(err)
	}
	return toCalendarSync(row), nil
}

func (s *Store) SetCalendarSyncEnabled(ctx context.Context, tenantID, provider string, enabled bool) error {
	affected, err := s.db.SetCalendarSyncEnabled(ctx, queries.SetCalendarSyncEnabledParams{
		SyncEnabled: boolToInt(enabled),
		TenantID:    tenantID,
		Provider:    provider,
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (s *Store) TouchCalendarSync(ctx context.Context, tenantID, provider string, at time.Time) error {
	_, err := s.db.TouchCalendarSync(ctx, queries.TouchCalendarSyncParams{
		LastSyncedAtMs: sql.NullInt64{Int64: at.UnixMilli(), Valid: true},
		TenantID:       tenantID,
		Provider:       provider,
	})
	return err
}

func (s *Store) DeleteCalendarSync(ctx context.Context, tenantID, provider string) (bool, error) {
	affected, err := s.db.DeleteCalendarSync(ctx, queries.DeleteCalendarSyncParams{TenantID: tenantID, Provider: provider})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) ListCalendarSyncs(ctx context.Context, tenantID string) ([]domain.CalendarSync, error) {
	rows, err := s.db.ListCalendarSyncsByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return toCalendarSyncs(rows), nil
}

func (s *Store) ListEnabledCalendarSyncs(ctx context.Context) ([]domain.CalendarSync, error) {
	rows, err := s.db.ListEnabledCalendarSyncs(ctx)
	if err != nil {
		return nil, err
	}
	return toCalendarSyncs(rows), nil
}

func toCalendarSyncs(rows []queries.CalendarSync) []domain.CalendarSync {
	out := make([]domain.CalendarSync, 0, len(rows))
	for _, row := range rows {
		out = append(out, toCalendarSync(row))
	}
	return out
}

func toCalendarSync(row queries.CalendarSync) domain.CalendarSync {
	return domain.CalendarSync{
		TenantID:     row.TenantID,
		Provider:     row.Provider,
		SyncEnabled:  row.SyncEnabled != 0,
		LastSyncedAt: fromNullMillis(row.LastSyncedAtMs),
		CreatedAt:    fromMillis(row.CreatedAtMs),
	}
}
