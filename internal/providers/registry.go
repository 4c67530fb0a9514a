// Package providers holds the fixed provider table and a REST client for provider APIs.
package providers

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/oauth2"

	"github.com/fr0stylo/synclink/internal/app/domain"
)

var (
	// ErrUnknownProvider indicates the provider id is not in the registry.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrInvalidParameter indicates a provider-mandatory parameter is malformed.
	ErrInvalidParameter = errors.New("invalid provider parameter")
)

var shopDomainPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*\.myshopify\.com$`)

// Settings is the deployment-specific registration of a provider app.
type Settings struct {
	ClientID      string
	ClientSecret  string
	WebhookSecret string
	AuthURL       string
	TokenURL      string
	APIBaseURL    string
}

// Provider is a definition combined with its settings.
type Provider struct {
	Definition
	Settings Settings
}

// Configured reports whether the provider has an OAuth client id.
func (p Provider) Configured() bool {
	return strings.TrimSpace(p.Settings.ClientID) != ""
}

// OAuthConfig builds the x/oauth2 config, resolving per-tenant hosts from params.
func (p Provider) OAuthConfig(redirectURL string, params map[string]string) (*oauth2.Config, error) {
	authURL := firstNonEmpty(p.Settings.AuthURL, p.AuthURL)
	tokenURL := firstNonEmpty(p.Settings.TokenURL, p.TokenURL)
	if strings.Contains(authURL, "{shop}") || strings.Contains(tokenURL, "{shop}") {
		shop, err := NormalizeShop(params["shop"])
		if err != nil {
			return nil, err
		}
		authURL = strings.ReplaceAll(authURL, "{shop}", shop)
		tokenURL = strings.ReplaceAll(tokenURL, "{shop}", shop)
	}

	cfg := &oauth2.Config{
		ClientID:     p.Settings.ClientID,
		ClientSecret: p.Settings.ClientSecret,
		RedirectURL:  redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authURL,
			TokenURL:  tokenURL,
			AuthStyle: p.AuthStyle,
		},
	}
	if p.ScopeSeparator == "" {
		cfg.Scopes = append([]string(nil), p.Scopes...)
	}
	return cfg, nil
}

// AuthCodeOptions returns the provider's extra authorize parameters.
func (p Provider) AuthCodeOptions() []oauth2.AuthCodeOption {
	opts := make([]oauth2.AuthCodeOption, 0, len(p.AuthParams)+1)
	if p.ScopeSeparator != "" && len(p.Scopes) > 0 {
		opts = append(opts, oauth2.SetAuthURLParam("scope", strings.Join(p.Scopes, p.ScopeSeparator)))
	}
	keys := make([]string, 0, len(p.AuthParams))
	for key := range p.AuthParams {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		opts = append(opts, oauth2.SetAuthURLParam(key, p.AuthParams[key]))
	}
	return opts
}

// MissingParams returns required parameters absent from params.
func (p Provider) MissingParams(params map[string]string) []string {
	var missing []string
	for _, key := range p.RequiredParams {
		if strings.TrimSpace(params[key]) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// TokenExtrasFrom flattens the configured token response fields.
func (p Provider) TokenExtrasFrom(tok *oauth2.Token) map[string]string {
	out := make(map[string]string)
	for _, key := range p.TokenExtras {
		head, rest, nested := strings.Cut(key, ".")
		raw := tok.Extra(head)
		if nested {
			value, ok := lookupPath(raw, rest)
			if !ok {
				continue
			}
			raw = value
		}
		if value := stringify(raw); value != "" {
			out[key] = value
		}
	}
	return out
}

// AccountID resolves the remote account from token extras, if the provider supports it.
func (p Provider) AccountID(extras map[string]string) string {
	if p.AccountFromToken == nil {
		return ""
	}
	return strings.TrimSpace(p.AccountFromToken(extras))
}

// APIBase resolves the API root for a connection.
func (p Provider) APIBase(creds domain.Credentials) (string, error) {
	if override := strings.TrimRight(p.Settings.APIBaseURL, "/"); override != "" {
		return override, nil
	}
	var base string
	switch p.BaseFrom {
	case baseFromInstanceURL:
		base = creds.InstanceURL
	case baseFromAPIDomain:
		base = creds.APIDomain
	case baseFromAPIEndpoint:
		base = creds.Extras["api_endpoint"]
	case baseFromShop:
		if creds.ShopDomain != "" {
			base = "https://" + creds.ShopDomain
		}
	default:
		return strings.TrimRight(p.APIBaseURL, "/"), nil
	}
	if base == "" {
		return "", fmt.Errorf("%s: missing %s in credentials", p.ID, p.BaseFrom)
	}
	return strings.TrimRight(base, "/") + p.BasePath, nil
}

// Registry maps provider ids to providers.
type Registry struct {
	providers map[string]Provider
	client    *http.Client
}

// NewRegistry builds the registry over the built-in provider table.
func NewRegistry(settings map[string]Settings, client *http.Client) *Registry {
	if client == nil {
		client = http.DefaultClient
	}
	r := &Registry{providers: make(map[string]Provider), client: client}
	for _, def := range builtinDefinitions() {
		r.providers[def.ID] = Provider{Definition: def, Settings: settings[def.ID]}
	}
	return r
}

func (r *Registry) Lookup(id string) (Provider, bool) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(id))]
	return p, ok
}

// List returns all providers sorted by id.
func (r *Registry) List() []Provider {
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) IsCalendar(id string) bool {
	p, ok := r.Lookup(id)
	return ok && p.Calendar
}

// HTTPClient returns the instrumented client used for provider calls.
func (r *Registry) HTTPClient() *http.Client {
	return r.client
}

// Client returns the API client for a provider.
func (r *Registry) Client(id string) (*Client, error) {
	p, ok := r.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	return &Client{provider: p, http: r.client}, nil
}

// SyncClient returns the sync capability for a provider.
func (r *Registry) SyncClient(id string) (SyncClient, error) {
	return r.Client(id)
}

// DisplayKey maps a provider id to its status map key.
func DisplayKey(id string) string {
	switch id {
	case "google":
		return "google-calendar"
	case "outlook":
		return "outlook-calendar"
	default:
		return id
	}
}

// NormalizeShop validates a Shopify shop and returns its myshopify domain.
func NormalizeShop(shop string) (string, error) {
	shop = strings.ToLower(strings.TrimSpace(shop))
	shop = strings.TrimPrefix(shop, "https://")
	shop = strings.TrimSuffix(shop, "/")
	if shop == "" {
		return "", fmt.Errorf("%w: shop is required", ErrInvalidParameter)
	}
	if !strings.Contains(shop, ".") {
		shop += ".myshopify.com"
	}
	if !shopDomainPattern.MatchString(shop) {
		return "", fmt.Errorf("%w: shop %q", ErrInvalidParameter, shop)
	}
	return shop, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
