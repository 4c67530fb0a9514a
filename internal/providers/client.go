package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/fr0stylo/synclink/internal/app/domain"
)

const maxResponseBytes = 4 << 20

// ErrNotSupported indicates the provider has no endpoint for the requested call.
var ErrNotSupported = errors.New("operation not supported by provider")

// SyncResult summarizes one provider pull.
type SyncResult struct {
	Items int
}

// Identity is the remote account behind a token.
type Identity struct {
	AccountID string
	Extras    map[string]string
}

// SyncClient pulls fresh data for one connection.
type SyncClient interface {
	Sync(ctx context.Context, creds domain.Credentials) (SyncResult, error)
}

// APIError is a non-2xx provider response.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api: status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Unauthorized reports whether the provider rejected the access token.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Client performs authenticated REST calls against one provider.
type Client struct {
	provider Provider
	http     *http.Client
}

// Ping issues the provider's cheapest authenticated call.
func (c *Client) Ping(ctx context.Context, creds domain.Credentials) error {
	if c.provider.PingPath == "" {
		return ErrNotSupported
	}
	_, err := c.get(ctx, creds, c.provider.PingPath)
	return err
}

// Sync pulls the provider's primary collection and counts the returned items.
func (c *Client) Sync(ctx context.Context, creds domain.Credentials) (SyncResult, error) {
	if c.provider.SyncPath == "" {
		return SyncResult{}, ErrNotSupported
	}
	body, err := c.get(ctx, creds, c.provider.SyncPath)
	if err != nil {
		return SyncResult{}, err
	}
	if c.provider.ItemsKey == "" {
		return SyncResult{Items: 1}, nil
	}
	items, _ := lookupPath(body, c.provider.ItemsKey)
	list, _ := items.([]any)
	return SyncResult{Items: len(list)}, nil
}

// Identify resolves the remote account id behind creds.
func (c *Client) Identify(ctx context.Context, creds domain.Credentials) (Identity, error) {
	if creds.AccountID != "" {
		return Identity{AccountID: creds.AccountID}, nil
	}
	if accountID := c.provider.AccountID(flattenCredentials(creds)); accountID != "" {
		return Identity{AccountID: accountID}, nil
	}
	if c.provider.IdentifyPath == "" {
		return Identity{}, ErrNotSupported
	}
	path := strings.ReplaceAll(c.provider.IdentifyPath, "{token}", url.PathEscape(creds.AccessToken))
	body, err := c.get(ctx, creds, path)
	if err != nil {
		return Identity{}, err
	}
	identity := Identity{Extras: make(map[string]string)}
	if value, ok := lookupPath(body, c.provider.AccountField); ok {
		identity.AccountID = stringify(value)
	}
	for key, path := range c.provider.IdentityExtras {
		if value, ok := lookupPath(body, path); ok {
			identity.Extras[key] = stringify(value)
		}
	}
	if identity.AccountID == "" {
		return identity, fmt.Errorf("%s: account id missing from identity response", c.provider.ID)
	}
	return identity, nil
}

func (c *Client) get(ctx context.Context, creds domain.Credentials, path string) (any, error) {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		base, err := c.provider.APIBase(creds)
		if err != nil {
			return nil, err
		}
		target = base + path
	} else if override := strings.TrimRight(c.provider.Settings.APIBaseURL, "/"); override != "" {
		// Absolute identity endpoints follow the API override so test servers see them.
		if parsed, err := url.Parse(path); err == nil {
			target = override + parsed.RequestURI()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	header := c.provider.TokenHeader
	prefix := c.provider.TokenPrefix
	if header == "" {
		header = "Authorization"
		if prefix == "" {
			prefix = "Bearer "
		}
	}
	req.Header.Set(header, prefix+creds.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s api: %w", c.provider.ID, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s api: read body: %w", c.provider.ID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Provider: c.provider.ID, StatusCode: resp.StatusCode, Body: truncateBody(raw)}
	}

	var body any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("%s api: decode body: %w", c.provider.ID, err)
		}
	}
	if c.provider.OKField != "" {
		ok, _ := lookupPath(body, c.provider.OKField)
		if flag, isBool := ok.(bool); !isBool || !flag {
			reason, _ := lookupPath(body, "error")
			return nil, &APIError{Provider: c.provider.ID, StatusCode: resp.StatusCode, Body: stringify(reason)}
		}
	}
	return body, nil
}

func flattenCredentials(creds domain.Credentials) map[string]string {
	out := make(map[string]string, len(creds.Extras)+3)
	for key, value := range creds.Extras {
		out[key] = value
	}
	if creds.ShopDomain != "" {
		out["shop"] = creds.ShopDomain
	}
	if creds.InstanceURL != "" {
		out["instance_url"] = creds.InstanceURL
	}
	if creds.APIDomain != "" {
		out["api_domain"] = creds.APIDomain
	}
	return out
}

func lookupPath(value any, path string) (any, bool) {
	if path == "" {
		return value, value != nil
	}
	current := value
	for _, part := range strings.Split(path, ".") {
		object, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = object[part]
		if !ok {
			return nil, false
		}
	}
	return current, current != nil
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func truncateBody(raw []byte) string {
	const limit = 256
	text := strings.TrimSpace(string(raw))
	if len(text) > limit {
		return text[:limit]
	}
	return text
}
