// Package scheduler periodically syncs every connected integration.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/fr0stylo/synclink/internal/app/domain"
	"github.com/fr0stylo/synclink/internal/app/ports"
	"github.com/fr0stylo/synclink/internal/observability"
	"github.com/fr0stylo/synclink/internal/providers"
)

// ConnectionStore is the slice of the credential store the scheduler needs.
type ConnectionStore interface {
	GetConnection(ctx context.Context, tenantID, integrationID string) (domain.Connection, error)
	ListConnected(ctx context.Context) ([]domain.Connection, error)
	RecordSyncSuccess(ctx context.Context, tenantID, integrationID string, at time.Time) error
	RecordSyncFailure(ctx context.Context, tenantID, integrationID, reason string) (int, error)
	SetStatus(ctx context.Context, tenantID, integrationID string, status domain.ConnectionStatus, reason string) error
}

type CalendarStore interface {
	GetCalendarSync(ctx context.Context, tenantID, provider string) (domain.CalendarSync, error)
	ListEnabledCalendarSyncs(ctx context.Context) ([]domain.CalendarSync, error)
	TouchCalendarSync(ctx context.Context, tenantID, provider string, at time.Time) error
}

// Refresher renews tokens that are about to expire.
type Refresher interface {
	RefreshIfExpired(ctx context.Context, conn domain.Connection) (domain.Connection, error)
}

// ClientResolver selects the per-provider sync capability.
type ClientResolver interface {
	SyncClient(id string) (providers.SyncClient, error)
	IsCalendar(id string) bool
}

type Config struct {
	Interval         time.Duration
	Workers          int
	FailureThreshold int
	TaskTimeout      time.Duration
	HistorySize      int
	Logger           *slog.Logger
}

// Outcome is the result of one sync task.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeReauth  Outcome = "reauth_required"
)

const (
	TriggerTimer  = "timer"
	TriggerManual = "manual"
)

// ConnectionRef names one tenant/provider pair.
type ConnectionRef struct {
	TenantID      string `json:"tenant_id"`
	IntegrationID string `json:"integration_id"`
}

// SyncRun is the in-memory record of one sync task.
type SyncRun struct {
	ID         string        `json:"id"`
	Ref        ConnectionRef `json:"ref"`
	Trigger    string        `json:"trigger"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Outcome    Outcome       `json:"outcome"`
	Items      int           `json:"items"`
	Error      string        `json:"error,omitempty"`
}

// RunSummary counts what one RunSync pass did.
type RunSummary struct {
	Dispatched int `json:"dispatched"`
	InFlight   int `json:"in_flight"`
	Disabled   int `json:"disabled"`
}

type Status struct {
	Running  bool       `json:"running"`
	Interval string     `json:"interval"`
	NextRun  *time.Time `json:"next_run,omitempty"`
	InFlight int        `json:"in_flight"`
	Recent   []SyncRun  `json:"recent"`
}

// Scheduler owns the sync timer and the bounded pool of sync tasks.
type Scheduler struct {
	store     ConnectionStore
	calendars CalendarStore
	refresher Refresher
	clients   ClientResolver
	cfg       Config
	log       *slog.Logger
	metrics   syncMetrics
	sem       *semaphore.Weighted
	now       func() time.Time

	mu      sync.Mutex
	running bool
	cron    *gocron.Scheduler

	flightMu sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup

	historyMu sync.Mutex
	history   []SyncRun
}

func New(store ConnectionStore, calendars CalendarStore, refresher Refresher, clients ClientResolver, cfg Config) (*Scheduler, error) {
	if store == nil || refresher == nil || clients == nil {
		return nil, errors.New("scheduler requires a store, refresher and client resolver")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 20 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:     store,
		calendars: calendars,
		refresher: refresher,
		clients:   clients,
		cfg:       cfg,
		log:       logger,
		metrics:   newSyncMetrics(),
		sem:       semaphore.NewWeighted(int64(cfg.Workers)),
		now:       time.Now,
		inflight:  make(map[string]struct{}),
	}, nil
}

// Start begins periodic syncing. Starting a running scheduler is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll()
	if _, err := cron.Every(s.cfg.Interval).WaitForSchedule().Do(s.tick); err != nil {
		return fmt.Errorf("schedule sync job: %w", err)
	}
	cron.StartAsync()
	s.cron = cron
	s.running = true
	s.log.Info("sync_scheduler_started", "interval", s.cfg.Interval.String(), "workers", s.cfg.Workers)
	return nil
}

// Stop cancels future ticks. In-flight tasks keep running to completion.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cron.Stop()
	s.cron = nil
	s.running = false
	s.log.Info("sync_scheduler_stopped")
}

// Shutdown stops the timer and waits for in-flight tasks or ctx.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.Stop()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status reports lifecycle state and recent runs, newest first.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	status := Status{Running: s.running, Interval: s.cfg.Interval.String()}
	if s.cron != nil {
		if _, next := s.cron.NextRun(); !next.IsZero() {
			status.NextRun = &next
		}
	}
	s.mu.Unlock()

	s.flightMu.Lock()
	status.InFlight = len(s.inflight)
	s.flightMu.Unlock()

	s.historyMu.Lock()
	status.Recent = make([]SyncRun, 0, len(s.history))
	for i := len(s.history) - 1; i >= 0; i-- {
		status.Recent = append(status.Recent, s.history[i])
	}
	s.historyMu.Unlock()
	return status
}

func (s *Scheduler) tick() {
	summary := s.runAll(context.Background(), TriggerTimer)
	s.log.Info("sync_tick", "dispatched", summary.Dispatched, "in_flight", summary.InFlight, "disabled", summary.Disabled)
}

// RunSync dispatches a sync for every connected integration and returns without waiting.
func (s *Scheduler) RunSync(ctx context.Context) (RunSummary, error) {
	return s.runAll(ctx, TriggerManual), nil
}

func (s *Scheduler) runAll(ctx context.Context, trigger string) RunSummary {
	var summary RunSummary
	conns, err := s.store.ListConnected(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "sync_list_connections_failed", "error", err)
		return summary
	}
	enabled, err := s.enabledCalendars(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "sync_list_calendars_failed", "error", err)
	}

	for _, conn := range conns {
		if s.clients.IsCalendar(conn.IntegrationID) {
			if _, ok := enabled[conn.Key()]; !ok {
				summary.Disabled++
				continue
			}
		}
		if s.dispatch(conn, trigger) {
			summary.Dispatched++
		} else {
			summary.InFlight++
		}
	}
	return summary
}

// RunConnection dispatches one connection. It reports false without starting
// anything when that connection is already syncing or its calendar sync is off.
func (s *Scheduler) RunConnection(ctx context.Context, tenantID, provider string) (bool, error) {
	conn, err := s.store.GetConnection(ctx, tenantID, provider)
	if errors.Is(err, ports.ErrNotFound) {
		return false, domain.ErrNotConnected
	}
	if err != nil {
		return false, err
	}
	if s.clients.IsCalendar(provider) && s.calendars != nil {
		row, err := s.calendars.GetCalendarSync(ctx, tenantID, provider)
		if err != nil && !errors.Is(err, ports.ErrNotFound) {
			return false, err
		}
		if err != nil || !row.SyncEnabled {
			return false, nil
		}
	}
	return s.dispatch(conn, TriggerManual), nil
}

func (s *Scheduler) enabledCalendars(ctx context.Context) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	if s.calendars == nil {
		return out, nil
	}
	rows, err := s.calendars.ListEnabledCalendarSyncs(ctx)
	if err != nil {
		return out, err
	}
	for _, row := range rows {
		out[domain.ConnectionKey(row.TenantID, row.Provider)] = struct{}{}
	}
	return out, nil
}

func (s *Scheduler) dispatch(conn domain.Connection, trigger string) bool {
	key := conn.Key()
	s.flightMu.Lock()
	if _, busy := s.inflight[key]; busy {
		s.flightMu.Unlock()
		return false
	}
	s.inflight[key] = struct{}{}
	s.flightMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.flightMu.Lock()
			delete(s.inflight, key)
			s.flightMu.Unlock()
		}()
		if err := s.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer s.sem.Release(1)
		s.execute(conn, trigger)
	}()
	return true
}

func (s *Scheduler) execute(conn domain.Connection, trigger string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TaskTimeout)
	defer cancel()
	ctx = observability.WithTenant(ctx, conn.TenantID)

	run := SyncRun{
		ID:        uuid.NewString(),
		Ref:       ConnectionRef{TenantID: conn.TenantID, IntegrationID: conn.IntegrationID},
		Trigger:   trigger,
		StartedAt: s.now(),
	}
	ctx = observability.WithSyncRun(ctx, run.ID)
	defer func() {
		if recovered := recover(); recovered != nil {
			s.fail(ctx, conn, fmt.Errorf("sync panic: %v", recovered), &run)
		}
		run.FinishedAt = s.now()
		s.finish(ctx, run)
	}()

	refreshed, err := s.refresher.RefreshIfExpired(ctx, conn)
	if errors.Is(err, domain.ErrReauthRequired) {
		run.Outcome = OutcomeReauth
		run.Error = err.Error()
		return
	}
	if err != nil {
		s.fail(ctx, conn, fmt.Errorf("refresh: %w", err), &run)
		return
	}
	conn = refreshed

	client, err := s.clients.SyncClient(conn.IntegrationID)
	if err != nil {
		s.fail(ctx, conn, err, &run)
		return
	}
	result, err := client.Sync(ctx, conn.Credentials)
	if err != nil {
		s.fail(ctx, conn, err, &run)
		return
	}

	at := s.now()
	if err := s.store.RecordSyncSuccess(ctx, conn.TenantID, conn.IntegrationID, at); err != nil {
		s.log.ErrorContext(ctx, "sync_record_success_failed", "provider", conn.IntegrationID, "error", err)
	}
	if s.clients.IsCalendar(conn.IntegrationID) && s.calendars != nil {
		if err := s.calendars.TouchCalendarSync(ctx, conn.TenantID, conn.IntegrationID, at); err != nil {
			s.log.ErrorContext(ctx, "sync_touch_calendar_failed", "provider", conn.IntegrationID, "error", err)
		}
	}
	run.Outcome = OutcomeSuccess
	run.Items = result.Items
}

// fail counts the failure and flips the connection to error once the streak reaches the threshold.
func (s *Scheduler) fail(ctx context.Context, conn domain.Connection, cause error, run *SyncRun) {
	run.Outcome = OutcomeFailed
	run.Error = cause.Error()

	failures, err := s.store.RecordSyncFailure(ctx, conn.TenantID, conn.IntegrationID, cause.Error())
	if err != nil {
		s.log.ErrorContext(ctx, "sync_record_failure_failed", "provider", conn.IntegrationID, "error", err)
		return
	}
	s.log.WarnContext(ctx, "sync_task_failed", "provider", conn.IntegrationID, "failures", failures, "error", cause)
	if failures < s.cfg.FailureThreshold || conn.Status == domain.StatusError || !conn.Status.CanTransition(domain.StatusError) {
		return
	}
	if err := s.store.SetStatus(ctx, conn.TenantID, conn.IntegrationID, domain.StatusError, cause.Error()); err != nil {
		s.log.ErrorContext(ctx, "sync_set_error_status_failed", "provider", conn.IntegrationID, "error", err)
	}
}

func (s *Scheduler) finish(ctx context.Context, run SyncRun) {
	s.metrics.record(ctx, run)
	s.log.DebugContext(ctx, "sync_task_finished", "provider", run.Ref.IntegrationID, "outcome", run.Outcome, "items", run.Items, "duration_ms", run.FinishedAt.Sub(run.StartedAt).Milliseconds())

	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	s.history = append(s.history, run)
	if overflow := len(s.history) - s.cfg.HistorySize; overflow > 0 {
		s.history = append(s.history[:0:0], s.history[overflow:]...)
	}
}
