package webhooks

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fr0stylo/synclink/internal/providers"
)

const (
	ShopifyHmacHeader        = "X-Shopify-Hmac-Sha256"
	ShopifyTopicHeader       = "X-Shopify-Topic"
	ShopifyShopDomainHeader  = "X-Shopify-Shop-Domain"
	ShopifyWebhookIDHeader   = "X-Shopify-Webhook-Id"
	ShopifyTriggeredAtHeader = "X-Shopify-Triggered-At"
)

type shopifyAdapter struct{}

func (shopifyAdapter) Verify(req Request, secret string, _ time.Time) error {
	signature, err := requireHeader(req, ShopifyHmacHeader)
	if err != nil {
		return err
	}
	if !validBase64Signature(signature, hmacSHA256(secret, req.Body)) {
		return ErrSignatureInvalid
	}
	return nil
}

func (shopifyAdapter) Normalize(req Request) ([]Event, error) {
	topic := strings.TrimSpace(req.Headers.Get(ShopifyTopicHeader))
	shop := strings.TrimSpace(req.Headers.Get(ShopifyShopDomainHeader))
	if topic == "" || shop == "" {
		return nil, fmt.Errorf("%w: missing topic or shop domain", ErrInvalidPayload)
	}
	if normalized, err := providers.NormalizeShop(shop); err == nil {
		shop = normalized
	}

	var body struct {
		ID flexID `json:"id"`
	}
	if err := json.Unmarshal(req.Body, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	id := strings.TrimSpace(req.Headers.Get(ShopifyWebhookIDHeader))
	if id == "" {
		id = fallbackID([]byte(topic), []byte(shop), req.Body)
	}
	var occurredAt time.Time
	if raw := strings.TrimSpace(req.Headers.Get(ShopifyTriggeredAtHeader)); raw != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			occurredAt = parsed.UTC()
		}
	}

	return []Event{{
		ID:         id,
		EventType:  topic,
		ObjectID:   body.ID.String(),
		AccountID:  shop,
		Data:       json.RawMessage(req.Body),
		Timestamp:  occurredAt,
		Revocation: topic == "app/uninstalled",
	}}, nil
}
