package main

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/fr0stylo/synclink/internal/webhooks"
)

var defaultEventTypes = map[string]string{
	"hubspot":   "contact.creation",
	"pipedrive": "added.deal",
	"shopify":   "orders/create",
	"slack":     "message",
}

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	interval, _ := time.ParseDuration(cfg.Interval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	client := &http.Client{Timeout: 10 * time.Second}
	for sent := 1; ; sent++ {
		if err := sendWebhook(ctx, client, cfg); err != nil {
			fmt.Fprintln(os.Stderr, "webhook error:", err)
		}
		if cfg.Count > 0 && sent >= cfg.Count {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func loadConfig(path string) (config, error) {
	if strings.TrimSpace(path) == "" {
		return config{}, fmt.Errorf("config path is required")
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return config{}, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return normalizeConfig(cfg)
}

func normalizeConfig(cfg config) (config, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	cfg.Secret = strings.TrimSpace(cfg.Secret)
	cfg.Account = strings.TrimSpace(cfg.Account)
	cfg.EventType = strings.TrimSpace(cfg.EventType)
	cfg.Interval = strings.TrimSpace(cfg.Interval)

	if cfg.BaseURL == "" || cfg.Provider == "" || cfg.Secret == "" || cfg.Account == "" {
		return config{}, fmt.Errorf("config must include base_url, provider, secret, account")
	}
	defaultType, ok := defaultEventTypes[cfg.Provider]
	if !ok {
		return config{}, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
	if cfg.EventType == "" {
		cfg.EventType = defaultType
	}
	if cfg.Interval == "" {
		return config{}, fmt.Errorf("interval must be provided")
	}
	parsed, err := time.ParseDuration(cfg.Interval)
	if err != nil {
		return config{}, fmt.Errorf("invalid interval duration: %w", err)
	}
	if parsed <= 0 {
		return config{}, fmt.Errorf("interval must be positive")
	}
	if cfg.Count < 0 {
		return config{}, fmt.Errorf("count must not be negative")
	}
	return cfg, nil
}

func sendWebhook(ctx context.Context, client *http.Client, cfg config) error {
	request, err := buildDelivery(ctx, cfg, time.Now())
	if err != nil {
		return err
	}

	resp, err := client.Do(request)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook failed: %s %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	fmt.Printf("Webhook status: %s %s\n", resp.Status, strings.TrimSpace(string(payload)))
	return nil
}

// buildDelivery produces a request shaped and signed the way the provider sends it.
func buildDelivery(ctx context.Context, cfg config, now time.Time) (*http.Request, error) {
	target := cfg.BaseURL + "/webhooks/" + cfg.Provider
	eventID := uuid.NewString()
	objectID := rand.Int64N(1_000_000) + 1

	var body any
	headers := http.Header{}
	switch cfg.Provider {
	case "hubspot":
		body = []map[string]any{{
			"eventId":          eventID,
			"subscriptionType": cfg.EventType,
			"portalId":         cfg.Account,
			"objectId":         objectID,
			"occurredAt":       now.UnixMilli(),
		}}
	case "shopify":
		body = map[string]any{"id": objectID, "created_at": now.UTC().Format(time.RFC3339)}
		headers.Set(webhooks.ShopifyTopicHeader, cfg.EventType)
		headers.Set(webhooks.ShopifyShopDomainHeader, cfg.Account)
		headers.Set(webhooks.ShopifyWebhookIDHeader, eventID)
		headers.Set(webhooks.ShopifyTriggeredAtHeader, now.UTC().Format(time.RFC3339Nano))
	case "slack":
		body = map[string]any{
			"type":       "event_callback",
			"team_id":    cfg.Account,
			"event_id":   eventID,
			"event_time": now.Unix(),
			"event": map[string]any{
				"type":    cfg.EventType,
				"channel": "C" + strconv.FormatInt(objectID, 10),
				"text":    "generated",
			},
		}
	case "pipedrive":
		body = map[string]any{
			"event":   cfg.EventType,
			"meta":    map[string]any{"id": eventID, "company_id": cfg.Account, "timestamp": now.UTC().Format(time.RFC3339)},
			"current": map[string]any{"id": objectID},
		}
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	request.Header = headers
	request.Header.Set("Content-Type", "application/json")
	sign(request, cfg, raw, now)
	return request, nil
}

func sign(request *http.Request, cfg config, body []byte, now time.Time) {
	switch cfg.Provider {
	case "hubspot":
		ts := strconv.FormatInt(now.UnixMilli(), 10)
		digest := hmacSHA256(cfg.Secret, []byte(request.Method), []byte(request.URL.String()), body, []byte(ts))
		request.Header.Set(webhooks.HubSpotSignatureHeader, base64.StdEncoding.EncodeToString(digest))
		request.Header.Set(webhooks.HubSpotTimestampHeader, ts)
	case "shopify":
		request.Header.Set(webhooks.ShopifyHmacHeader, base64.StdEncoding.EncodeToString(hmacSHA256(cfg.Secret, body)))
	case "slack":
		ts := strconv.FormatInt(now.Unix(), 10)
		digest := hmacSHA256(cfg.Secret, []byte("v0:"+ts+":"), body)
		request.Header.Set(webhooks.SlackSignatureHeader, "v0="+hex.EncodeToString(digest))
		request.Header.Set(webhooks.SlackTimestampHeader, ts)
	case "pipedrive":
		user, pass, _ := strings.Cut(cfg.Secret, ":")
		request.SetBasicAuth(user, pass)
	}
}

func hmacSHA256(secret string, parts ...[]byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	for _, part := range parts {
		mac.Write(part)
	}
	return mac.Sum(nil)
}
