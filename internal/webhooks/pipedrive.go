package webhooks

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type pipedriveAdapter struct{}

// Verify checks the HTTP Basic credentials configured on the Pipedrive webhook.
// secret is "user:password".
func (pipedriveAdapter) Verify(req Request, secret string, _ time.Time) error {
	if strings.TrimSpace(req.Headers.Get("Authorization")) == "" {
		return fmt.Errorf("%w: missing basic credentials", ErrUnauthorized)
	}
	authReq := &http.Request{Header: req.Headers}
	user, pass, ok := authReq.BasicAuth()
	if !ok {
		return fmt.Errorf("%w: malformed basic credentials", ErrSignatureInvalid)
	}
	wantUser, wantPass, _ := strings.Cut(secret, ":")
	userOK := constantTimeEqual(user, wantUser)
	passOK := constantTimeEqual(pass, wantPass)
	if !userOK || !passOK {
		return ErrSignatureInvalid
	}
	return nil
}

type pipedriveMeta struct {
	ID        flexID `json:"id"`
	Action    string `json:"action"`
	Object    string `json:"object"`
	Entity    string `json:"entity"`
	EntityID  flexID `json:"entity_id"`
	CompanyID flexID `json:"company_id"`
	Timestamp string `json:"timestamp"`
}

type pipedrivePayload struct {
	Event   string          `json:"event"`
	Meta    pipedriveMeta   `json:"meta"`
	Current json.RawMessage `json:"current"`
	Data    json.RawMessage `json:"data"`
}

// Normalize accepts both the v1 (event/current) and v2 (meta.entity/data) payload shapes.
func (pipedriveAdapter) Normalize(req Request) ([]Event, error) {
	var payload pipedrivePayload
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	meta := payload.Meta
	if meta.CompanyID == "" {
		return nil, fmt.Errorf("%w: missing meta.company_id", ErrInvalidPayload)
	}

	entity := meta.Entity
	if entity == "" {
		entity = meta.Object
	}
	eventType := payload.Event
	if eventType == "" {
		eventType = meta.Action + "." + entity
	}
	if strings.Trim(eventType, ".") == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrInvalidPayload)
	}

	data := payload.Data
	if len(data) == 0 {
		data = payload.Current
	}
	objectID := meta.EntityID.String()
	if objectID == "" && len(data) > 0 {
		var body struct {
			ID flexID `json:"id"`
		}
		_ = json.Unmarshal(data, &body)
		objectID = body.ID.String()
	}

	id := meta.ID.String()
	if id == "" {
		id = fallbackID([]byte("pipedrive"), req.Body)
	}
	return []Event{{
		ID:        id,
		EventType: eventType,
		ObjectID:  objectID,
		AccountID: meta.CompanyID.String(),
		Data:      data,
		Timestamp: parsePipedriveTime(meta.Timestamp),
	}}, nil
}

func parsePipedriveTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return parsed.UTC()
	}
	if parsed, err := parseUnixSeconds(raw); err == nil {
		return parsed
	}
	return time.Time{}
}
