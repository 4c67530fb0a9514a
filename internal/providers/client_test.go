package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fr0stylo/synclink/internal/app/domain"
)

func newOverrideRegistry(t *testing.T, id string, handler http.HandlerFunc) *Registry {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewRegistry(map[string]Settings{id: {ClientID: "id", APIBaseURL: server.URL}}, server.Client())
}

func TestClientSyncCountsItems(t *testing.T) {
	t.Parallel()

	registry := newOverrideRegistry(t, "hubspot", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/crm/v3/objects/contacts" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"id":"1"},{"id":"2"},{"id":"3"}]}`))
	})

	client, err := registry.Client("hubspot")
	require.NoError(t, err)

	result, err := client.Sync(context.Background(), domain.Credentials{AccessToken: "tok1"})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Items)

	_, err = client.Sync(context.Background(), domain.Credentials{AccessToken: "stale"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Unauthorized())
}

func TestClientUsesProviderTokenHeader(t *testing.T) {
	t.Parallel()

	registry := newOverrideRegistry(t, "shopify", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Shopify-Access-Token") != "shpat" || r.Header.Get("Authorization") != "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"shop":{"id":1}}`))
	})
	client, err := registry.Client("shopify")
	require.NoError(t, err)
	require.NoError(t, client.Ping(context.Background(), domain.Credentials{AccessToken: "shpat", ShopDomain: "acme.myshopify.com"}))
}

func TestClientRejectsSlackNotOK(t *testing.T) {
	t.Parallel()

	registry := newOverrideRegistry(t, "slack", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error":"invalid_auth"}`))
	})
	client, err := registry.Client("slack")
	require.NoError(t, err)

	err = client.Ping(context.Background(), domain.Credentials{AccessToken: "xoxb"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "invalid_auth", apiErr.Body)
}

func TestClientIdentify(t *testing.T) {
	t.Parallel()

	registry := newOverrideRegistry(t, "hubspot", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth/v1/access-tokens/tok1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"hub_id":4455,"user":"ops@example.com"}`))
	})
	client, err := registry.Client("hubspot")
	require.NoError(t, err)

	identity, err := client.Identify(context.Background(), domain.Credentials{AccessToken: "tok1"})
	require.NoError(t, err)
	assert.Equal(t, "4455", identity.AccountID)
}

func TestClientIdentifyFromTokenExtras(t *testing.T) {
	t.Parallel()

	registry := newOverrideRegistry(t, "slack", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	})
	client, err := registry.Client("slack")
	require.NoError(t, err)

	identity, err := client.Identify(context.Background(), domain.Credentials{AccessToken: "xoxb", Extras: map[string]string{"team.id": "T42"}})
	require.NoError(t, err)
	assert.Equal(t, "T42", identity.AccountID)
}

func TestClientMailchimpMetadataFollowsOverride(t *testing.T) {
	t.Parallel()

	registry := newOverrideRegistry(t, "mailchimp", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "OAuth mc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"dc":"us6","user_id":991,"api_endpoint":"https://us6.api.mailchimp.com"}`))
	})
	client, err := registry.Client("mailchimp")
	require.NoError(t, err)

	identity, err := client.Identify(context.Background(), domain.Credentials{AccessToken: "mc"})
	require.NoError(t, err)
	assert.Equal(t, "991", identity.AccountID)
	assert.Equal(t, "https://us6.api.mailchimp.com", identity.Extras["api_endpoint"])
}

func TestUnknownProviderClient(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry(nil, nil).Client("myspace")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
