package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fr0stylo/synclink/internal/app/domain"
	"github.com/fr0stylo/synclink/internal/app/ports"
	"github.com/fr0stylo/synclink/internal/credentials"
	"github.com/fr0stylo/synclink/internal/db"
	"github.com/fr0stylo/synclink/internal/db/queries"
)

// Store adapts db.Database to app ports.
type Store struct {
	db    storeDatabase
	codec *credentials.Codec
	now   func() time.Time
}

// NewStore constructs a SQL-backed store over a SQLite or Postgres database.
func NewStore(database *db.Database, codec *credentials.Codec) *Store {
	return &Store{db: database, codec: codec, now: time.Now}
}

func (s *Store) GetConnection(ctx context.Context, tenantID, integrationID string) (domain.Connection, error) {
	row, err := s.db.GetConnection(ctx, queries.GetConnectionParams{TenantID: tenantID, IntegrationID: integrationID})
	if err != nil {
		return domain.Connection{}, mapNoRows(err)
	}
	return s.toConnection(row)
}

// UpsertConnection writes conn, keeping the original connected_at for an existing row.
func (s *Store) UpsertConnection(ctx context.Context, conn domain.Connection) (domain.Connection, error) {
	if !conn.Status.Valid() {
		return domain.Connection{}, fmt.Errorf("invalid status %q", conn.Status)
	}
	sealed, err := s.codec.Seal(conn.Credentials)
	if err != nil {
		return domain.Connection{}, err
	}
	nowMs := s.now().UnixMilli()
	connectedAt := conn.ConnectedAt
	if connectedAt.IsZero() {
		connectedAt = s.now()
	}
	row, err := s.db.UpsertConnection(ctx, queries.UpsertConnectionParams{
		TenantID:      conn.TenantID,
		IntegrationID: conn.IntegrationID,
		Credentials:   sealed,
		Status:        string(conn.Status),
		ConnectedAtMs: connectedAt.UnixMilli(),
		CreatedAtMs:   nowMs,
		UpdatedAtMs:   nowMs,
	})
	if err != nil {
		return domain.Connection{}, err
	}
	return s.toConnection(row)
}

func (s *Store) DeleteConnection(ctx context.Context, tenantID, integrationID string) (bool, error) {
	affected, err := s.db.DeleteConnection(ctx, queries.DeleteConnectionParams{TenantID: tenantID, IntegrationID: integrationID})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) ListConnected(ctx context.Context) ([]domain.Connection, error) {
	rows, err := s.db.ListConnectionsByStatus(ctx, string(domain.StatusConnected))
	if err != nil {
		return nil, err
	}
	return s.toConnections(rows)
}

func (s *Store) ListConnectionsByTenant(ctx context.Context, tenantID string) ([]domain.Connection, error) {
	rows, err := s.db.ListConnectionsByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return s.toConnections(rows)
}

// SwapCredentials replaces credentials only if the row is still at expectedGeneration.
func (s *Store) SwapCredentials(ctx context.Context, tenantID, integrationID string, expectedGeneration int64, creds domain.Credentials) (domain.Connection, error) {
	sealed, err := s.codec.Seal(creds)
	if err != nil {
		return domain.Connection{}, err
	}
	row, err := s.db.SwapConnectionCredentials(ctx, queries.SwapConnectionCredentialsParams{
		Credentials:       sealed,
		UpdatedAtMs:       s.now().UnixMilli(),
		TenantID:          tenantID,
		IntegrationID:     integrationID,
		RefreshGeneration: expectedGeneration,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Connection{}, ports.ErrConflict
	}
	if err != nil {
		return domain.Connection{}, err
	}
	return s.toConnection(row)
}

func (s *Store) RecordSyncSuccess(ctx context.Context, tenantID, integrationID string, at time.Time) error {
	affected, err := s.db.MarkConnectionSynced(ctx, queries.MarkConnectionSyncedParams{
		LastSyncMs:    sql.NullInt64{Int64: at.UnixMilli(), Valid: true},
		UpdatedAtMs:   s.now().UnixMilli(),
		TenantID:      tenantID,
		IntegrationID: integrationID,
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// RecordSyncFailure increments the failure streak and returns its new length.
func (s *Store) RecordSyncFailure(ctx context.Context, tenantID, integrationID, reason string) (int, error) {
	failures, err := s.db.IncrementConnectionFailures(ctx, queries.IncrementConnectionFailuresParams{
		LastError:     truncate(reason, 512),
		UpdatedAtMs:   s.now().UnixMilli(),
		TenantID:      tenantID,
		IntegrationID: integrationID,
	})
	if err != nil {
		return 0, mapNoRows(err)
	}
	return int(failures), nil
}

// SetStatus updates an existing row only; a missing row reports ports.ErrNotFound.
func (s *Store) SetStatus(ctx context.Context, tenantID, integrationID string, status domain.ConnectionStatus, reason string) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	affected, err := s.db.SetConnectionStatus(ctx, queries.SetConnectionStatusParams{
		Status:        string(status),
		LastError:     truncate(reason, 512),
		UpdatedAtMs:   s.now().UnixMilli(),
		TenantID:      tenantID,
		IntegrationID: integrationID,
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (s *Store) toConnections(rows []queries.IntegrationConnection) ([]domain.Connection, error) {
	out := make([]domain.Connection, 0, len(rows))
	for _, row := range rows {
		conn, err := s.toConnection(row)
		if err != nil {
			return nil, fmt.Errorf("decode connection %s/%s: %w", row.TenantID, row.IntegrationID, err)
		}
		out = append(out, conn)
	}
	return out, nil
}

func (s *Store) toConnection(row queries.IntegrationConnection) (domain.Connection, error) {
	creds, err := s.codec.Open(row.Credentials)
	if err != nil {
		return domain.Connection{}, err
	}
	return domain.Connection{
		TenantID:            row.TenantID,
		IntegrationID:       row.IntegrationID,
		Credentials:         creds,
		Status:              domain.ConnectionStatus(row.Status),
		ConnectedAt:         fromMillis(row.ConnectedAtMs),
		LastSync:            fromNullMillis(row.LastSyncMs),
		RefreshGeneration:   row.RefreshGeneration,
		ConsecutiveFailures: int(row.ConsecutiveFailures),
		LastError:           row.LastError,
		CreatedAt:           fromMillis(row.CreatedAtMs),
		UpdatedAt:           fromMillis(row.UpdatedAtMs),
	}, nil
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ports.ErrNotFound
	}
	return err
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

func boolToInt(value bool) int64 {
	if value {
		return 1
	}
	return 0
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
