// Package webhooks verifies, normalizes and applies inbound provider webhooks.
package webhooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/fr0stylo/synclink/internal/app/ports"
	"github.com/fr0stylo/synclink/internal/idempotency"
	"github.com/fr0stylo/synclink/internal/observability"
)

const maxPayloadBytes = 1 << 20

var (
	ErrUnknownProvider  = errors.New("unknown webhook provider")
	ErrMethodNotAllowed = errors.New("method not allowed")
	ErrUnauthorized     = errors.New("webhook credentials missing")
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
	errTenantUnresolved = errors.New("tenant unresolved")
)

// HTTPStatus maps a Receive error to the response code returned to the provider.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnknownProvider):
		return http.StatusNotFound
	case errors.Is(err, ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrSignatureInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidPayload):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Request is one inbound delivery. URL is the absolute URL the provider called.
type Request struct {
	Provider string
	Method   string
	URL      string
	Headers  http.Header
	Query    url.Values
	Body     []byte
}

const (
	AckAccepted  = "accepted"
	AckDropped   = "dropped"
	AckIgnored   = "ignored"
	AckChallenge = "challenge"
)

// Ack summarizes how a delivery was applied. Challenge is echoed verbatim as the response body.
type Ack struct {
	Status     string `json:"status"`
	Accepted   int    `json:"accepted"`
	Duplicates int    `json:"duplicates"`
	Dropped    int    `json:"dropped"`
	Failed     int    `json:"failed"`
	Challenge  string `json:"-"`
}

// Adapter is the provider-specific half of webhook ingestion.
type Adapter interface {
	Verify(req Request, secret string, now time.Time) error
	Normalize(req Request) ([]Event, error)
}

// Challenger is implemented by adapters whose handshake arrives as a signed POST.
type Challenger interface {
	Challenge(req Request) (string, bool)
}

// Handler applies one normalized event.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// Disconnector removes a tenant's connection when the provider revokes access.
type Disconnector interface {
	Disconnect(ctx context.Context, tenantID, provider string) (bool, error)
}

type Config struct {
	// Secrets holds the webhook secret per provider; Pipedrive uses "user:password".
	Secrets     map[string]string
	VerifyToken string
	DedupeTTL   time.Duration
	Logger      *slog.Logger
}

type Router struct {
	adapters map[string]Adapter
	handlers map[string]Handler
	fallback Handler
	subs     ports.SubscriptionStore
	dedupe   idempotency.Store
	cfg      Config
	log      *slog.Logger
	metrics  ingestionMetrics
	now      func() time.Time
}

func NewRouter(subs ports.SubscriptionStore, events ports.WebhookEventLog, dedupe idempotency.Store, disconnector Disconnector, cfg Config) *Router {
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = 24 * time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		adapters: map[string]Adapter{
			"hubspot":   hubspotAdapter{},
			"pipedrive": pipedriveAdapter{},
			"shopify":   shopifyAdapter{},
			"slack":     slackAdapter{},
		},
		handlers: make(map[string]Handler),
		fallback: &recorder{events: events, disconnector: disconnector, log: logger},
		subs:     subs,
		dedupe:   dedupe,
		cfg:      cfg,
		log:      logger,
		metrics:  newIngestionMetrics(),
		now:      time.Now,
	}
}

// Register replaces the event handler for one provider.
func (r *Router) Register(provider string, handler Handler) {
	r.handlers[provider] = handler
}

// Providers lists the providers that accept webhooks.
func (r *Router) Providers() []string {
	return slices.Sorted(maps.Keys(r.adapters))
}

// Receive verifies and applies one delivery. Event handling failures are
// logged and counted but never returned, so providers do not retry them.
func (r *Router) Receive(ctx context.Context, req Request) (Ack, error) {
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	r.metrics.recordRequest(ctx, provider)

	adapter, ok := r.adapters[provider]
	if !ok {
		r.metrics.recordRejected(ctx, provider, "unknown_provider")
		return Ack{}, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	switch req.Method {
	case http.MethodGet:
		return r.challenge(ctx, provider, req)
	case http.MethodPost:
	default:
		r.metrics.recordRejected(ctx, provider, "method_not_allowed")
		return Ack{}, ErrMethodNotAllowed
	}

	if len(req.Body) > maxPayloadBytes {
		r.metrics.recordRejected(ctx, provider, "payload_too_large")
		return Ack{}, fmt.Errorf("%w: body exceeds %d bytes", ErrInvalidPayload, maxPayloadBytes)
	}
	secret := strings.TrimSpace(r.cfg.Secrets[provider])
	if secret == "" {
		r.log.WarnContext(ctx, "webhook_secret_missing", "provider", provider)
		r.metrics.recordRejected(ctx, provider, "not_configured")
		return Ack{}, fmt.Errorf("%w: no secret configured for %s", ErrUnauthorized, provider)
	}
	if err := adapter.Verify(req, secret, r.now()); err != nil {
		r.metrics.recordRejected(ctx, provider, rejectReason(err))
		return Ack{}, err
	}

	if challenger, ok := adapter.(Challenger); ok {
		if value, ok := challenger.Challenge(req); ok {
			return Ack{Status: AckChallenge, Challenge: value}, nil
		}
	}

	events, err := adapter.Normalize(req)
	if err != nil {
		r.metrics.recordRejected(ctx, provider, "invalid_payload")
		return Ack{}, err
	}

	ack := Ack{Status: AckIgnored}
	for _, event := range events {
		event.IntegrationID = provider
		switch err := r.apply(ctx, event); {
		case err == nil:
			ack.Accepted++
		case errors.Is(err, errDuplicate):
			ack.Duplicates++
		case errors.Is(err, errTenantUnresolved):
			ack.Dropped++
		default:
			ack.Failed++
		}
	}
	switch {
	case ack.Accepted > 0 || ack.Duplicates > 0 || ack.Failed > 0:
		ack.Status = AckAccepted
	case ack.Dropped > 0:
		ack.Status = AckDropped
	}
	if ack.Accepted > 0 {
		r.metrics.recordAccepted(ctx, provider)
	}
	return ack, nil
}

var errDuplicate = errors.New("duplicate event")

func (r *Router) apply(ctx context.Context, event Event) error {
	provider := event.IntegrationID
	tenantID, err := r.subs.ResolveTenant(ctx, provider, event.AccountID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			r.metrics.recordMapping(ctx, provider, "miss")
			r.log.WarnContext(ctx, "webhook_quarantined", "provider", provider, "account_id", event.AccountID, "event_id", event.ID, "event_type", event.EventType)
		} else {
			r.metrics.recordMapping(ctx, provider, "error")
			r.log.ErrorContext(ctx, "webhook_tenant_lookup_failed", "provider", provider, "account_id", event.AccountID, "error", err)
		}
		return errTenantUnresolved
	}
	r.metrics.recordMapping(ctx, provider, "hit")
	event.TenantID = tenantID
	ctx = observability.WithTenant(ctx, tenantID)

	key := provider + "/" + event.ID
	if r.dedupe != nil {
		fresh, err := r.dedupe.MarkProcessed(ctx, key, r.cfg.DedupeTTL)
		if err != nil {
			r.log.WarnContext(ctx, "webhook_dedupe_unavailable", "provider", provider, "event_id", event.ID, "error", err)
		} else if !fresh {
			return errDuplicate
		}
	}

	handler := r.handlers[provider]
	if handler == nil {
		handler = r.fallback
	}
	if err := r.safeHandle(ctx, handler, event); err != nil {
		if r.dedupe != nil {
			if releaseErr := r.dedupe.Release(ctx, key); releaseErr != nil {
				r.log.WarnContext(ctx, "webhook_dedupe_release_failed", "provider", provider, "event_id", event.ID, "error", releaseErr)
			}
		}
		r.metrics.recordRejected(ctx, provider, "handler_error")
		r.log.ErrorContext(ctx, "webhook_handler_failed", "tenant_id", tenantID, "provider", provider, "event_id", event.ID, "event_type", event.EventType, "error", err)
		return err
	}
	return nil
}

func (r *Router) safeHandle(ctx context.Context, handler Handler, event Event) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("webhook handler panic: %v", recovered)
		}
	}()
	return handler.Handle(ctx, event)
}

func (r *Router) challenge(ctx context.Context, provider string, req Request) (Ack, error) {
	value := req.Query.Get("hub.challenge")
	if value == "" {
		value = req.Query.Get("challenge")
	}
	if value == "" {
		r.metrics.recordRejected(ctx, provider, "method_not_allowed")
		return Ack{}, ErrMethodNotAllowed
	}
	if expected := strings.TrimSpace(r.cfg.VerifyToken); expected != "" && !constantTimeEqual(req.Query.Get("hub.verify_token"), expected) {
		r.metrics.recordRejected(ctx, provider, "verify_token_mismatch")
		return Ack{}, fmt.Errorf("%w: verify token mismatch", ErrSignatureInvalid)
	}
	return Ack{Status: AckChallenge, Challenge: value}, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrSignatureInvalid):
		return "invalid_signature"
	case errors.Is(err, ErrInvalidPayload):
		return "invalid_payload"
	default:
		return "internal_error"
	}
}
