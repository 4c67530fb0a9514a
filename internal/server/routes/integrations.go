package routes

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/fr0stylo/synclink/internal/app/domain"
	"github.com/fr0stylo/synclink/internal/app/ports"
	"github.com/fr0stylo/synclink/internal/oauth"
	"github.com/fr0stylo/synclink/internal/providers"
	"github.com/fr0stylo/synclink/internal/status"
)

// ConnectionManager is the OAuth surface the integration routes drive.
type ConnectionManager interface {
	Providers() []providers.Provider
	BuildAuthorizationURL(ctx context.Context, provider, tenantID string, extra url.Values) (string, error)
	ExchangeCode(ctx context.Context, provider, code, rawState string) (domain.TokenSet, string, error)
	SaveConnection(ctx context.Context, tenantID, provider string, tokens domain.TokenSet) (domain.Connection, error)
	Disconnect(ctx context.Context, tenantID, provider string) (bool, error)
	TestConnection(ctx context.Context, tenantID, provider string) (bool, error)
}

type StatusMapper interface {
	StatusMap(ctx context.Context, tenantID string) (map[string]status.Entry, error)
}

// IntegrationRoutes exposes connect, callback, disconnect, test and status endpoints.
type IntegrationRoutes struct {
	manager     ConnectionManager
	status      StatusMapper
	events      ports.WebhookEventLog
	settingsURL string
	log         *slog.Logger
}

func NewIntegrationRoutes(manager ConnectionManager, statusMapper StatusMapper, events ports.WebhookEventLog, settingsURL string, log *slog.Logger) *IntegrationRoutes {
	if strings.TrimSpace(settingsURL) == "" {
		settingsURL = "/settings/integrations"
	}
	if log == nil {
		log = slog.Default()
	}
	return &IntegrationRoutes{
		manager:     manager,
		status:      statusMapper,
		events:      events,
		settingsURL: settingsURL,
		log:         log,
	}
}

func (r *IntegrationRoutes) RegisterRoutes(s *echo.Echo) {
	s.GET("/integrations/:provider/connect", r.handleConnect, RequireAuth)
	s.GET("/integrations/:provider/callback", r.handleCallback)

	api := s.Group("/api/integrations", RequireAuth)
	api.GET("/providers", r.handleProviders)
	api.GET("/status", r.handleStatus)
	api.GET("/events", r.handleEvents)
	api.POST("/:provider/authorize", r.handleAuthorize)
	api.POST("/:provider/test", r.handleTest)
	api.DELETE("/:provider", r.handleDisconnect)
}

type providerView struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Kind           string   `json:"kind"`
	DisplayKey     string   `json:"display_key"`
	Configured     bool     `json:"configured"`
	RequiredParams []string `json:"required_params,omitempty"`
}

func (r *IntegrationRoutes) handleProviders(c echo.Context) error {
	list := r.manager.Providers()
	out := make([]providerView, 0, len(list))
	for _, p := range list {
		out = append(out, providerView{
			ID:             p.ID,
			Name:           p.Name,
			Kind:           string(p.Kind),
			DisplayKey:     providers.DisplayKey(p.ID),
			Configured:     p.Configured(),
			RequiredParams: p.RequiredParams,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"providers": out})
}

func (r *IntegrationRoutes) handleConnect(c echo.Context) error {
	user, _ := GetAuthUser(c)
	authURL, err := r.manager.BuildAuthorizationURL(c.Request().Context(), c.Param("provider"), user.TenantID, c.QueryParams())
	if err != nil {
		return writeManagerError(c, err)
	}
	return c.Redirect(http.StatusFound, authURL)
}

func (r *IntegrationRoutes) handleAuthorize(c echo.Context) error {
	user, _ := GetAuthUser(c)
	params := c.QueryParams()
	if form, err := c.FormParams(); err == nil {
		for key, values := range form {
			params[key] = values
		}
	}
	authURL, err := r.manager.BuildAuthorizationURL(c.Request().Context(), c.Param("provider"), user.TenantID, params)
	if err != nil {
		return writeManagerError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"url": authURL})
}

// handleCallback completes the provider redirect. The tenant comes from the
// signed state, so the callback works without a session; when a session is
// present it must belong to the same tenant.
func (r *IntegrationRoutes) handleCallback(c echo.Context) error {
	provider := c.Param("provider")
	ctx := c.Request().Context()

	if denied := strings.TrimSpace(c.QueryParam("error")); denied != "" {
		r.log.InfoContext(ctx, "oauth_consent_denied", "provider", provider, "error", denied)
		return c.Redirect(http.StatusFound, r.settingsRedirect("error", denied))
	}

	tokens, tenantID, err := r.manager.ExchangeCode(ctx, provider, c.QueryParam("code"), c.QueryParam("state"))
	if err != nil {
		r.log.WarnContext(ctx, "oauth_callback_failed", "provider", provider, "error", err)
		return c.Redirect(http.StatusFound, r.settingsRedirect("error", string(oauth.ClassifyError(err))))
	}
	if user, ok := authUserFromSession(c); ok && user.TenantID != "" && user.TenantID != tenantID {
		r.log.WarnContext(ctx, "oauth_callback_tenant_mismatch", "provider", provider, "state_tenant", tenantID, "session_tenant", user.TenantID)
		return c.Redirect(http.StatusFound, r.settingsRedirect("error", "tenant_mismatch"))
	}

	if _, err := r.manager.SaveConnection(ctx, tenantID, provider, tokens); err != nil {
		r.log.ErrorContext(ctx, "oauth_save_connection_failed", "tenant_id", tenantID, "provider", provider, "error", err)
		return c.Redirect(http.StatusFound, r.settingsRedirect("error", string(oauth.ClassifyError(err))))
	}
	return c.Redirect(http.StatusFound, r.settingsRedirect("success", provider))
}

func (r *IntegrationRoutes) handleDisconnect(c echo.Context) error {
	user, _ := GetAuthUser(c)
	removed, err := r.manager.Disconnect(c.Request().Context(), user.TenantID, c.Param("provider"))
	if err != nil {
		return writeManagerError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"disconnected": removed})
}

func (r *IntegrationRoutes) handleTest(c echo.Context) error {
	user, _ := GetAuthUser(c)
	ok, err := r.manager.TestConnection(c.Request().Context(), user.TenantID, c.Param("provider"))
	if err != nil {
		return writeManagerError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": ok})
}

func (r *IntegrationRoutes) handleStatus(c echo.Context) error {
	user, _ := GetAuthUser(c)
	entries, err := r.status.StatusMap(c.Request().Context(), user.TenantID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}

type eventView struct {
	Provider   string `json:"provider"`
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	ObjectID   string `json:"object_id,omitempty"`
	OccurredAt string `json:"occurred_at"`
	ReceivedAt string `json:"received_at"`
}

func (r *IntegrationRoutes) handleEvents(c echo.Context) error {
	if r.events == nil {
		return c.JSON(http.StatusOK, map[string]any{"events": []eventView{}})
	}
	user, _ := GetAuthUser(c)
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	rows, err := r.events.ListWebhookEvents(c.Request().Context(), user.TenantID, limit)
	if err != nil {
		return err
	}
	out := make([]eventView, 0, len(rows))
	for _, row := range rows {
		out = append(out, eventView{
			Provider:   row.IntegrationID,
			EventID:    row.EventID,
			EventType:  row.EventType,
			ObjectID:   row.ObjectID,
			OccurredAt: row.OccurredAt.UTC().Format(timeLayout),
			ReceivedAt: row.ReceivedAt.UTC().Format(timeLayout),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"events": out})
}

func (r *IntegrationRoutes) settingsRedirect(key, value string) string {
	target, err := url.Parse(r.settingsURL)
	if err != nil {
		return "/?" + url.Values{key: {value}}.Encode()
	}
	query := target.Query()
	query.Set(key, value)
	target.RawQuery = query.Encode()
	return target.String()
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

// writeManagerError maps a classified manager error to a JSON response.
func writeManagerError(c echo.Context, err error) error {
	kind := oauth.ClassifyError(err)
	code := http.StatusInternalServerError
	switch kind {
	case oauth.ErrorMissingParameter:
		code = http.StatusBadRequest
	case oauth.ErrorNotConnected:
		code = http.StatusNotFound
	case oauth.ErrorExchange, oauth.ErrorReauthRequired:
		code = http.StatusConflict
	case oauth.ErrorConfiguration:
		if errors.Is(err, providers.ErrUnknownProvider) {
			code = http.StatusNotFound
		}
	}
	return c.JSON(code, map[string]string{"error": string(kind), "message": err.Error()})
}
