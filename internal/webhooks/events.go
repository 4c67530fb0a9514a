package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	ceevent "github.com/cloudevents/sdk-go/v2/event"
	"github.com/google/uuid"

	"github.com/fr0stylo/synclink/internal/app/domain"
	"github.com/fr0stylo/synclink/internal/app/ports"
)

// Event is a provider delivery normalized to one remote change.
type Event struct {
	ID            string
	EventType     string
	ObjectID      string
	TenantID      string
	IntegrationID string
	AccountID     string
	Data          json.RawMessage
	Timestamp     time.Time
	// Revocation marks uninstall and token revocation events.
	Revocation bool
}

var eventNamespace = uuid.MustParse("6f1d3c0e-8b7a-4c55-9a51-1f8f3e2b7d10")

// fallbackID derives a stable id for deliveries that carry none.
func fallbackID(parts ...[]byte) string {
	return uuid.NewSHA1(eventNamespace, bytes.Join(parts, []byte{0})).String()
}

// CloudEvent wraps the event in the envelope stored in the event log.
func (e Event) CloudEvent() (ceevent.Event, error) {
	ce := ceevent.New()
	ce.SetID(e.ID)
	ce.SetSource("synclink/webhooks/" + e.IntegrationID)
	ce.SetType("synclink.webhook." + e.IntegrationID + "." + strings.ReplaceAll(e.EventType, "/", "."))
	if e.ObjectID != "" {
		ce.SetSubject(e.ObjectID)
	}
	if !e.Timestamp.IsZero() {
		ce.SetTime(e.Timestamp)
	}
	if e.TenantID != "" {
		ce.SetExtension("tenantid", e.TenantID)
	}
	if e.AccountID != "" {
		ce.SetExtension("accountid", e.AccountID)
	}
	if len(e.Data) > 0 {
		if err := ce.SetData(ceevent.ApplicationJSON, []byte(e.Data)); err != nil {
			return ce, fmt.Errorf("set event data: %w", err)
		}
	}
	if err := ce.Validate(); err != nil {
		return ce, fmt.Errorf("validate cloudevent: %w", err)
	}
	return ce, nil
}

// recorder is the default handler: it appends the event and disconnects on revocation.
type recorder struct {
	events       ports.WebhookEventLog
	disconnector Disconnector
	log          *slog.Logger
}

func (h *recorder) Handle(ctx context.Context, event Event) error {
	ce, err := event.CloudEvent()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(ce)
	if err != nil {
		return fmt.Errorf("encode cloudevent: %w", err)
	}

	inserted, err := h.events.AppendWebhookEvent(ctx, domain.WebhookEvent{
		IntegrationID: event.IntegrationID,
		EventID:       event.ID,
		TenantID:      event.TenantID,
		EventType:     event.EventType,
		ObjectID:      event.ObjectID,
		OccurredAt:    event.Timestamp,
		Payload:       payload,
	})
	if err != nil {
		return fmt.Errorf("append webhook event: %w", err)
	}
	if !inserted {
		h.log.DebugContext(ctx, "webhook_event_already_applied", "provider", event.IntegrationID, "event_id", event.ID)
		return nil
	}

	if event.Revocation && h.disconnector != nil {
		removed, err := h.disconnector.Disconnect(ctx, event.TenantID, event.IntegrationID)
		if err != nil {
			return fmt.Errorf("disconnect after %s: %w", event.EventType, err)
		}
		h.log.InfoContext(ctx, "integration_revoked_by_provider", "tenant_id", event.TenantID, "provider", event.IntegrationID, "event_type", event.EventType, "removed", removed)
	}
	return nil
}

// flexID accepts ids that providers send as either JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

func (f flexID) String() string {
	return string(f)
}

func unixMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func parseUnixSeconds(raw string) (time.Time, error) {
	secs, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0).UTC(), nil
}
