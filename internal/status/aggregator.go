// Package status builds the per-tenant integration status map shown to clients.
package status

import (
	"context"
	"fmt"
	"time"

	"github.com/fr0stylo/synclink/internal/app/domain"
	"github.com/fr0stylo/synclink/internal/app/ports"
	"github.com/fr0stylo/synclink/internal/providers"
)

// Entry is one provider's status for a tenant.
type Entry struct {
	Status      domain.ConnectionStatus `json:"status"`
	LastSync    *time.Time              `json:"last_sync,omitempty"`
	ConnectedAt *time.Time              `json:"connected_at,omitempty"`
	LastError   string                  `json:"last_error,omitempty"`
	SyncEnabled *bool                   `json:"sync_enabled,omitempty"`
}

type Aggregator struct {
	reader ports.ConnectionStatusReader
}

func NewAggregator(reader ports.ConnectionStatusReader) *Aggregator {
	return &Aggregator{reader: reader}
}

// StatusMap merges connections and calendar sync rows, keyed by display key.
func (a *Aggregator) StatusMap(ctx context.Context, tenantID string) (map[string]Entry, error) {
	out := make(map[string]Entry)
	if tenantID == "" {
		return out, nil
	}

	conns, err := a.reader.ListConnectionsByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	for _, conn := range conns {
		entry := Entry{
			Status:    conn.Status,
			LastSync:  conn.LastSync,
			LastError: conn.LastError,
		}
		if !conn.ConnectedAt.IsZero() {
			connectedAt := conn.ConnectedAt
			entry.ConnectedAt = &connectedAt
		}
		out[providers.DisplayKey(conn.IntegrationID)] = entry
	}

	calendars, err := a.reader.ListCalendarSyncs(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list calendar syncs: %w", err)
	}
	for _, row := range calendars {
		key := providers.DisplayKey(row.Provider)
		enabled := row.SyncEnabled
		entry, ok := out[key]
		if !ok {
			entry = Entry{Status: domain.StatusDisconnected}
			if enabled {
				entry.Status = domain.StatusConnected
			}
		}
		entry.SyncEnabled = &enabled
		if row.LastSyncedAt != nil && (entry.LastSync == nil || row.LastSyncedAt.After(*entry.LastSync)) {
			entry.LastSync = row.LastSyncedAt
		}
		out[key] = entry
	}
	return out, nil
}
