package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fr0stylo/synclink/internal/app/domain"
	"github.com/fr0stylo/synclink/internal/app/ports"
	"github.com/fr0stylo/synclink/internal/providers"
)

type memoryStore struct {
	mu        sync.Mutex
	conns     map[string]domain.Connection
	calendars map[string]domain.CalendarSync
	touched   map[string]time.Time
}

func newMemoryStore(conns ...domain.Connection) *memoryStore {
	s := &memoryStore{
		conns:     make(map[string]domain.Connection),
		calendars: make(map[string]domain.CalendarSync),
		touched:   make(map[string]time.Time),
	}
	for _, conn := range conns {
		s.conns[conn.Key()] = conn
	}
	return s
}

func (s *memoryStore) get(tenantID, provider string) domain.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[domain.ConnectionKey(tenantID, provider)]
}

func (s *memoryStore) GetConnection(_ context.Context, tenantID, integrationID string) (domain.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.conns[domain.ConnectionKey(tenantID, integrationID)]
	if !ok {
		return domain.Connection{}, ports.ErrNotFound
	}
	return conn, nil
}

func (s *memoryStore) ListConnected(context.Context) ([]domain.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Connection, 0, len(s.conns))
	for _, conn := range s.conns {
		if conn.Status == domain.StatusConnected {
			out = append(out, conn)
		}
	}
	return out, nil
}

func (s *memoryStore) RecordSyncSuccess(_ context.Context, tenantID, integrationID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain.ConnectionKey(tenantID, integrationID)
	conn, ok := s.conns[key]
	if !ok {
		return ports.ErrNotFound
	}
	conn.LastSync = &at
	conn.ConsecutiveFailures = 0
	conn.LastError = ""
	conn.Status = domain.StatusConnected
	s.conns[key] = conn
	return nil
}

func (s *memoryStore) RecordSyncFailure(_ context.Context, tenantID, integrationID, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain.ConnectionKey(tenantID, integrationID)
	conn, ok := s.conns[key]
	if !ok {
		return 0, ports.ErrNotFound
	}
	conn.ConsecutiveFailures++
	conn.LastError = reason
	s.conns[key] = conn
	return conn.ConsecutiveFailures, nil
}

func (s *memoryStore) SetStatus(_ context.Context, tenantID, integrationID string, status domain.ConnectionStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain.ConnectionKey(tenantID, integrationID)
	conn, ok := s.conns[key]
	if !ok {
		return ports.ErrNotFound
	}
	conn.Status = status
	conn.LastError = reason
	s.conns[key] = conn
	return nil
}

func (s *memoryStore) GetCalendarSync(_ context.Context, tenantID, provider string) (domain.CalendarSync, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.calendars[domain.ConnectionKey(tenantID, provider)]
	if !ok {
		return domain.CalendarSync{}, ports.ErrNotFound
	}
	return row, nil
}

func (s *memoryStore) ListEnabledCalendarSyncs(context.Context) ([]domain.CalendarSync, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.CalendarSync
	for _, row := range s.calendars {
		if row.SyncEnabled {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *memoryStore) TouchCalendarSync(_ context.Context, tenantID, provider string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched[domain.ConnectionKey(tenantID, provider)] = at
	return nil
}

type syncFunc func(ctx context.Context, creds domain.Credentials) (providers.SyncResult, error)

func (f syncFunc) Sync(ctx context.Context, creds domain.Credentials) (providers.SyncResult, error) {
	return f(ctx, creds)
}

type fakeClients struct {
	calendar map[string]bool
	sync     syncFunc
}

func (c fakeClients) SyncClient(id string) (providers.SyncClient, error) {
	if c.sync == nil {
		return nil, providers.ErrNotSupported
	}
	return c.sync, nil
}

func (c fakeClients) IsCalendar(id string) bool {
	return c.calendar[id]
}

type refresherFunc func(ctx context.Context, conn domain.Connection) (domain.Connection, error)

func (f refresherFunc) RefreshIfExpired(ctx context.Context, conn domain.Connection) (domain.Connection, error) {
	return f(ctx, conn)
}

var passthrough = refresherFunc(func(_ context.Context, conn domain.Connection) (domain.Connection, error) {
	return conn, nil
})

func connected(tenantID, provider string) domain.Connection {
	return domain.Connection{
		TenantID:      tenantID,
		IntegrationID: provider,
		Status:        domain.StatusConnected,
		Credentials:   domain.Credentials{AccessToken: "tok-" + tenantID},
	}
}

func newTestScheduler(t *testing.T, store *memoryStore, refresher Refresher, clients fakeClients) *Scheduler {
	t.Helper()
	s, err := New(store, store, refresher, clients, Config{Interval: time.Hour, Workers: 4, FailureThreshold: 3, TaskTimeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func waitIdle(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}

func TestStartAndStopAreIdempotent(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, newMemoryStore(), passthrough, fakeClients{})

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	assert.True(t, s.Running())
	s.mu.Lock()
	jobs := s.cron.Len()
	s.mu.Unlock()
	assert.Equal(t, 1, jobs)

	s.Stop()
	s.Stop()
	assert.False(t, s.Running())
	assert.Nil(t, s.Status().NextRun)

	require.NoError(t, s.Start())
	assert.True(t, s.Running())
}

func TestSlowConnectionDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(connected("tenant-a", "hubspot"), connected("tenant-b", "hubspot"))
	release := make(chan struct{})
	synced := make(chan string, 2)
	clients := fakeClients{sync: func(ctx context.Context, creds domain.Credentials) (providers.SyncResult, error) {
		if creds.AccessToken == "tok-tenant-b" {
			<-release
		}
		synced <- creds.AccessToken
		return providers.SyncResult{Items: 1}, nil
	}}
	s := newTestScheduler(t, store, passthrough, clients)

	started, err := s.RunConnection(context.Background(), "tenant-b", "hubspot")
	require.NoError(t, err)
	require.True(t, started)
	started, err = s.RunConnection(context.Background(), "tenant-a", "hubspot")
	require.NoError(t, err)
	require.True(t, started)

	select {
	case token := <-synced:
		assert.Equal(t, "tok-tenant-a", token)
	case <-time.After(2 * time.Second):
		t.Fatal("tenant-a sync waited on tenant-b")
	}
	assert.Nil(t, store.get("tenant-b", "hubspot").LastSync)

	close(release)
	waitIdle(t, s)
	assert.NotNil(t, store.get("tenant-b", "hubspot").LastSync)
}

func TestRunConnectionWhileInFlightReturnsImmediately(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(connected("tenant-a", "hubspot"))
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	clients := fakeClients{sync: func(ctx context.Context, creds domain.Credentials) (providers.SyncResult, error) {
		entered <- struct{}{}
		<-release
		return providers.SyncResult{}, nil
	}}
	s := newTestScheduler(t, store, passthrough, clients)

	started, err := s.RunConnection(context.Background(), "tenant-a", "hubspot")
	require.NoError(t, err)
	require.True(t, started)
	<-entered

	begin := time.Now()
	again, err := s.RunConnection(context.Background(), "tenant-a", "hubspot")
	require.NoError(t, err)
	assert.False(t, again)
	assert.Less(t, time.Since(begin), time.Second)

	summary, err := s.RunSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunSummary{InFlight: 1}, summary)
	assert.Equal(t, 1, s.Status().InFlight)

	close(release)
	waitIdle(t, s)
	assert.Equal(t, 0, s.Status().InFlight)
}

func TestRunConnectionUnknownIsNotConnected(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, newMemoryStore(), passthrough, fakeClients{})
	_, err := s.RunConnection(context.Background(), "tenant-a", "hubspot")
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestFailuresFlipStatusAtThreshold(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(connected("tenant-a", "pipedrive"))
	clients := fakeClients{sync: func(context.Context, domain.Credentials) (providers.SyncResult, error) {
		return providers.SyncResult{}, errors.New("upstream 502")
	}}
	s := newTestScheduler(t, store, passthrough, clients)

	for i := 1; i <= 3; i++ {
		started, err := s.RunConnection(context.Background(), "tenant-a", "pipedrive")
		require.NoError(t, err)
		require.True(t, started)
		waitIdle(t, s)

		conn := store.get("tenant-a", "pipedrive")
		assert.Equal(t, i, conn.ConsecutiveFailures)
		assert.Nil(t, conn.LastSync)
		if i < 3 {
			assert.Equal(t, domain.StatusConnected, conn.Status, "after %d failures", i)
		} else {
			assert.Equal(t, domain.StatusError, conn.Status)
			assert.Contains(t, conn.LastError, "upstream 502")
		}
	}

	recent := s.Status().Recent
	require.Len(t, recent, 3)
	assert.Equal(t, OutcomeFailed, recent[0].Outcome)
	assert.NotEmpty(t, recent[0].ID)
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(connected("tenant-a", "hubspot"))
	fail := true
	var mu sync.Mutex
	clients := fakeClients{sync: func(context.Context, domain.Credentials) (providers.SyncResult, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return providers.SyncResult{}, errors.New("timeout")
		}
		return providers.SyncResult{Items: 7}, nil
	}}
	s := newTestScheduler(t, store, passthrough, clients)

	_, err := s.RunConnection(context.Background(), "tenant-a", "hubspot")
	require.NoError(t, err)
	waitIdle(t, s)
	require.Equal(t, 1, store.get("tenant-a", "hubspot").ConsecutiveFailures)

	mu.Lock()
	fail = false
	mu.Unlock()
	_, err = s.RunConnection(context.Background(), "tenant-a", "hubspot")
	require.NoError(t, err)
	waitIdle(t, s)

	conn := store.get("tenant-a", "hubspot")
	assert.Equal(t, 0, conn.ConsecutiveFailures)
	assert.NotNil(t, conn.LastSync)
	assert.Equal(t, 7, s.Status().Recent[0].Items)
}

func TestReauthRequiredSkipsSync(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(connected("tenant-a", "salesforce"))
	called := false
	clients := fakeClients{sync: func(context.Context, domain.Credentials) (providers.SyncResult, error) {
		called = true
		return providers.SyncResult{}, nil
	}}
	refresher := refresherFunc(func(_ context.Context, conn domain.Connection) (domain.Connection, error) {
		return conn, domain.ErrReauthRequired
	})
	s := newTestScheduler(t, store, refresher, clients)

	_, err := s.RunConnection(context.Background(), "tenant-a", "salesforce")
	require.NoError(t, err)
	waitIdle(t, s)

	assert.False(t, called)
	assert.Equal(t, OutcomeReauth, s.Status().Recent[0].Outcome)
	assert.Equal(t, 0, store.get("tenant-a", "salesforce").ConsecutiveFailures)
}

func TestExpiringTokenIsRefreshedBeforeSync(t *testing.T) {
	t.Parallel()

	conn := connected("tenant-a", "hubspot")
	conn.Credentials = domain.Credentials{
		AccessToken:  "tok1",
		RefreshToken: "ref1",
		ExpiresAt:    time.Now().Add(time.Second),
	}
	store := newMemoryStore(conn)

	var order []string
	var mu sync.Mutex
	refresher := refresherFunc(func(_ context.Context, conn domain.Connection) (domain.Connection, error) {
		mu.Lock()
		order = append(order, "refresh")
		mu.Unlock()
		if conn.Credentials.ExpiresWithin(time.Now(), 2*time.Minute) {
			conn.Credentials.AccessToken = "tok2"
			conn.Credentials.ExpiresAt = time.Now().Add(time.Hour)
		}
		return conn, nil
	})
	clients := fakeClients{sync: func(_ context.Context, creds domain.Credentials) (providers.SyncResult, error) {
		mu.Lock()
		order = append(order, "sync:"+creds.AccessToken)
		mu.Unlock()
		return providers.SyncResult{}, nil
	}}
	s := newTestScheduler(t, store, refresher, clients)

	summary, err := s.RunSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Dispatched)
	waitIdle(t, s)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"refresh", "sync:tok2"}, order)
}

func TestCalendarSyncRespectsEnabledFlag(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(connected("tenant-a", "google"), connected("tenant-b", "google"))
	store.calendars[domain.ConnectionKey("tenant-a", "google")] = domain.CalendarSync{TenantID: "tenant-a", Provider: "google", SyncEnabled: true}
	store.calendars[domain.ConnectionKey("tenant-b", "google")] = domain.CalendarSync{TenantID: "tenant-b", Provider: "google", SyncEnabled: false}
	clients := fakeClients{
		calendar: map[string]bool{"google": true},
		sync: func(context.Context, domain.Credentials) (providers.SyncResult, error) {
			return providers.SyncResult{Items: 2}, nil
		},
	}
	s := newTestScheduler(t, store, passthrough, clients)

	summary, err := s.RunSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunSummary{Dispatched: 1, Disabled: 1}, summary)

	started, err := s.RunConnection(context.Background(), "tenant-b", "google")
	require.NoError(t, err)
	assert.False(t, started)
	waitIdle(t, s)

	store.mu.Lock()
	_, touchedA := store.touched[domain.ConnectionKey("tenant-a", "google")]
	_, touchedB := store.touched[domain.ConnectionKey("tenant-b", "google")]
	store.mu.Unlock()
	assert.True(t, touchedA)
	assert.False(t, touchedB)
}

func TestPanickingSyncIsContained(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(connected("tenant-a", "slack"), connected("tenant-b", "slack"))
	clients := fakeClients{sync: func(_ context.Context, creds domain.Credentials) (providers.SyncResult, error) {
		if creds.AccessToken == "tok-tenant-a" {
			panic("boom")
		}
		return providers.SyncResult{}, nil
	}}
	s := newTestScheduler(t, store, passthrough, clients)

	_, err := s.RunSync(context.Background())
	require.NoError(t, err)
	waitIdle(t, s)

	assert.Equal(t, 1, store.get("tenant-a", "slack").ConsecutiveFailures)
	assert.NotNil(t, store.get("tenant-b", "slack").LastSync)
}
