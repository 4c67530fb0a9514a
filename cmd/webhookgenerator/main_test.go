package main

import (
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fr0stylo/synclink/internal/app/domain"
	"github.com/fr0stylo/synclink/internal/idempotency"
	"github.com/fr0stylo/synclink/internal/webhooks"
)

type staticSubscriptions struct {
	mu       sync.Mutex
	accounts []string
}

func (s *staticSubscriptions) UpsertSubscription(context.Context, domain.WebhookSubscription) error {
	return nil
}

func (s *staticSubscriptions) ResolveTenant(_ context.Context, _, accountID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = append(s.accounts, accountID)
	return "tenant-1", nil
}

func (s *staticSubscriptions) DeleteSubscriptions(context.Context, string, string) error {
	return nil
}

type capture struct {
	events []webhooks.Event
}

func (c *capture) Handle(_ context.Context, event webhooks.Event) error {
	c.events = append(c.events, event)
	return nil
}

func TestGeneratedDeliveriesVerify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		provider string
		secret   string
		account  string
	}{
		{"hubspot", "hub-secret", "6200"},
		{"shopify", "shop-secret", "acme.myshopify.com"},
		{"slack", "slack-secret", "T0001"},
		{"pipedrive", "hook:pass", "9001"},
	}
	for _, tc := range cases {
		t.Run(tc.provider, func(t *testing.T) {
			t.Parallel()

			cfg, err := normalizeConfig(config{
				BaseURL:  "https://synclink.example.com/",
				Provider: tc.provider,
				Secret:   tc.secret,
				Account:  tc.account,
				Interval: "1s",
			})
			require.NoError(t, err)

			request, err := buildDelivery(context.Background(), cfg, time.Now())
			require.NoError(t, err)
			body, err := io.ReadAll(request.Body)
			require.NoError(t, err)

			subs := &staticSubscriptions{}
			sink := &capture{}
			router := webhooks.NewRouter(subs, nil, idempotency.NewMemory(), nil, webhooks.Config{
				Secrets: map[string]string{tc.provider: tc.secret},
			})
			router.Register(tc.provider, sink)

			ack, err := router.Receive(context.Background(), webhooks.Request{
				Provider: tc.provider,
				Method:   request.Method,
				URL:      request.URL.String(),
				Headers:  request.Header,
				Query:    request.URL.Query(),
				Body:     body,
			})
			require.NoError(t, err)
			assert.Equal(t, 1, ack.Accepted)
			require.Len(t, sink.events, 1)
			assert.Equal(t, "tenant-1", sink.events[0].TenantID)
			assert.Equal(t, defaultEventTypes[tc.provider], sink.events[0].EventType)
			assert.Equal(t, []string{tc.account}, subs.accounts)
		})
	}
}

func TestNormalizeConfigRejectsIncomplete(t *testing.T) {
	t.Parallel()

	_, err := normalizeConfig(config{BaseURL: "http://localhost:8080", Provider: "hubspot", Secret: "s", Interval: "1s"})
	assert.Error(t, err)

	_, err = normalizeConfig(config{BaseURL: "http://localhost:8080", Provider: "zendesk", Secret: "s", Account: "a", Interval: "1s"})
	assert.Error(t, err)

	_, err = normalizeConfig(config{BaseURL: "http://localhost:8080", Provider: "slack", Secret: "s", Account: "a", Interval: "-1s"})
	assert.Error(t, err)

	cfg, err := normalizeConfig(config{BaseURL: "http://localhost:8080/", Provider: " Shopify ", Secret: "s", Account: "a", Interval: "1s"})
	require.NoError(t, err)
	assert.Equal(t, "shopify", cfg.Provider)
	assert.Equal(t, "orders/create", cfg.EventType)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
}

func TestBuildDeliveryTargetsProviderPath(t *testing.T) {
	t.Parallel()

	request, err := buildDelivery(context.Background(), config{
		BaseURL:   "http://localhost:8080",
		Provider:  "slack",
		Secret:    "s",
		Account:   "T1",
		EventType: "message",
	}, time.Unix(1_700_000_000, 0))
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, request.Method)
	assert.Equal(t, "http://localhost:8080/webhooks/slack", request.URL.String())
	assert.Equal(t, "1700000000", request.Header.Get(webhooks.SlackTimestampHeader))
}
