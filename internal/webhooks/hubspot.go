package webhooks

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

const (
	HubSpotSignatureHeader = "X-HubSpot-Signature-v3"
	HubSpotTimestampHeader = "X-HubSpot-Request-Timestamp"
)

type hubspotAdapter struct{}

// Verify checks the v3 signature: base64 HMAC-SHA256 over method, URL, body and timestamp.
func (hubspotAdapter) Verify(req Request, secret string, now time.Time) error {
	signature, err := requireHeader(req, HubSpotSignatureHeader)
	if err != nil {
		return err
	}
	rawTimestamp, err := requireHeader(req, HubSpotTimestampHeader)
	if err != nil {
		return err
	}
	ms, err := strconv.ParseInt(rawTimestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: malformed timestamp", ErrSignatureInvalid)
	}
	if err := checkWindow(time.UnixMilli(ms), now); err != nil {
		return err
	}
	expected := hmacSHA256(secret, []byte(req.Method), []byte(req.URL), req.Body, []byte(rawTimestamp))
	if !validBase64Signature(signature, expected) {
		return ErrSignatureInvalid
	}
	return nil
}

type hubspotEvent struct {
	EventID          flexID `json:"eventId"`
	SubscriptionType string `json:"subscriptionType"`
	PortalID         flexID `json:"portalId"`
	ObjectID         flexID `json:"objectId"`
	OccurredAt       int64  `json:"occurredAt"`
}

// Normalize splits the batched delivery into one event per entry.
func (hubspotAdapter) Normalize(req Request) ([]Event, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(req.Body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	events := make([]Event, 0, len(raw))
	for _, item := range raw {
		var entry hubspotEvent
		if err := json.Unmarshal(item, &entry); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if entry.SubscriptionType == "" || entry.PortalID == "" {
			return nil, fmt.Errorf("%w: event without subscriptionType or portalId", ErrInvalidPayload)
		}
		id := entry.EventID.String()
		if id == "" {
			id = fallbackID([]byte("hubspot"), item)
		}
		events = append(events, Event{
			ID:         id,
			EventType:  entry.SubscriptionType,
			ObjectID:   entry.ObjectID.String(),
			AccountID:  entry.PortalID.String(),
			Data:       item,
			Timestamp:  unixMillis(entry.OccurredAt),
			Revocation: entry.SubscriptionType == "app.uninstalled",
		})
	}
	return events, nil
}
