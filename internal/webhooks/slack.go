package webhooks

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	SlackSignatureHeader = "X-Slack-Signature"
	SlackTimestampHeader = "X-Slack-Request-Timestamp"
	slackSignatureScheme = "v0"
)

type slackAdapter struct{}

// Verify checks "v0=" + hex HMAC-SHA256 of "v0:<timestamp>:<body>".
func (slackAdapter) Verify(req Request, secret string, now time.Time) error {
	signature, err := requireHeader(req, SlackSignatureHeader)
	if err != nil {
		return err
	}
	rawTimestamp, err := requireHeader(req, SlackTimestampHeader)
	if err != nil {
		return err
	}
	signedAt, err := parseUnixSeconds(rawTimestamp)
	if err != nil {
		return fmt.Errorf("%w: malformed timestamp", ErrSignatureInvalid)
	}
	if err := checkWindow(signedAt, now); err != nil {
		return err
	}
	digest, ok := strings.CutPrefix(signature, slackSignatureScheme+"=")
	if !ok {
		return fmt.Errorf("%w: unsupported signature scheme", ErrSignatureInvalid)
	}
	expected := hmacSHA256(secret, []byte(slackSignatureScheme+":"+rawTimestamp+":"), req.Body)
	if !validHexSignature(digest, expected) {
		return ErrSignatureInvalid
	}
	return nil
}

type slackEnvelope struct {
	Type      string          `json:"type"`
	Challenge string          `json:"challenge"`
	TeamID    string          `json:"team_id"`
	EventID   string          `json:"event_id"`
	EventTime int64           `json:"event_time"`
	Event     json.RawMessage `json:"event"`
}

func (slackAdapter) Challenge(req Request) (string, bool) {
	var envelope slackEnvelope
	if err := json.Unmarshal(req.Body, &envelope); err != nil {
		return "", false
	}
	if envelope.Type != "url_verification" || envelope.Challenge == "" {
		return "", false
	}
	return envelope.Challenge, true
}

func (slackAdapter) Normalize(req Request) ([]Event, error) {
	var envelope slackEnvelope
	if err := json.Unmarshal(req.Body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if envelope.Type != "event_callback" {
		return nil, nil
	}
	if envelope.TeamID == "" || len(envelope.Event) == 0 {
		return nil, fmt.Errorf("%w: event_callback without team_id or event", ErrInvalidPayload)
	}

	var inner struct {
		Type    string `json:"type"`
		Channel string `json:"channel"`
		User    string `json:"user"`
	}
	if err := json.Unmarshal(envelope.Event, &inner); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	objectID := inner.Channel
	if objectID == "" {
		objectID = inner.User
	}
	id := envelope.EventID
	if id == "" {
		id = fallbackID([]byte("slack"), req.Body)
	}
	var occurredAt time.Time
	if envelope.EventTime > 0 {
		occurredAt = time.Unix(envelope.EventTime, 0).UTC()
	}

	return []Event{{
		ID:         id,
		EventType:  inner.Type,
		ObjectID:   objectID,
		AccountID:  envelope.TeamID,
		Data:       envelope.Event,
		Timestamp:  occurredAt,
		Revocation: inner.Type == "app_uninstalled" || inner.Type == "tokens_revoked",
	}}, nil
}
