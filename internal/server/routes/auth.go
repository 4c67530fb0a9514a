package routes

import (
	"encoding/gob"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/github"

	"github.com/fr0stylo/synclink/internal/observability"
)

const (
	authSessionName = "synclink-auth"
	authSessionKey  = "user"
	authUserKey     = "authUser"
	githubProvider  = "github"
	gothSessionName = "_gothic_session"
)

// AuthConfig configures session and GitHub OAuth authentication.
type AuthConfig struct {
	SessionKey         string
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
	SecureCookies      bool
}

// AuthUser is the signed-in operator. TenantID scopes every integration call.
type AuthUser struct {
	TenantID  string
	Name      string
	NickName  string
	Email     string
	AvatarURL string
}

func init() {
	gob.Register(AuthUser{})
}

// ConfigureAuth initializes session store and GitHub OAuth provider.
func ConfigureAuth(config AuthConfig) {
	store := sessions.NewCookieStore([]byte(config.SessionKey))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int((7 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	gothic.Store = store

	goth.UseProviders(
		github.New(
			config.GitHubClientID,
			config.GitHubClientSecret,
			config.GitHubCallbackURL,
			"read:user",
			"user:email",
		),
	)
}

// AuthRoutes registers authentication endpoints.
type AuthRoutes struct {
	enableDevLogin bool
}

func NewAuthRoutes(enableDevLogin bool) *AuthRoutes {
	return &AuthRoutes{enableDevLogin: enableDevLogin}
}

func (a *AuthRoutes) RegisterRoutes(s *echo.Echo) {
	s.GET("/login", a.handleLogin)
	s.GET("/logout", a.handleLogout)
	s.GET("/auth/:provider", a.handleAuthBegin)
	s.GET("/auth/:provider/callback", a.handleAuthCallback)
	s.GET("/api/me", a.handleMe, RequireAuth)
	if a.enableDevLogin {
		s.GET("/auth/dev/login", a.handleDevLogin)
		s.POST("/auth/dev/login", a.handleDevLogin)
	}
}

// RequireAuth ensures a request has an authenticated session. API paths get a
// JSON 401, browser paths are redirected to the login flow.
func RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, ok := authUserFromSession(c)
		if !ok || user.TenantID == "" {
			if strings.HasPrefix(c.Request().URL.Path, "/api/") {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "authentication required"})
			}
			return c.Redirect(http.StatusFound, "/login")
		}
		ctx := observability.WithTenant(c.Request().Context(), user.TenantID)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Set(authUserKey, user)
		return next(c)
	}
}

// GetAuthUser returns the authenticated user placed on the context by RequireAuth.
func GetAuthUser(c echo.Context) (AuthUser, bool) {
	user, ok := c.Get(authUserKey).(AuthUser)
	return user, ok
}

func (a *AuthRoutes) handleLogin(c echo.Context) error {
	if _, ok := authUserFromSession(c); ok {
		return c.Redirect(http.StatusFound, "/")
	}
	return c.Redirect(http.StatusFound, "/auth/"+githubProvider)
}

func (a *AuthRoutes) handleMe(c echo.Context) error {
	user, _ := GetAuthUser(c)
	return c.JSON(http.StatusOK, map[string]string{
		"tenant_id":  user.TenantID,
		"name":       user.Name,
		"nickname":   user.NickName,
		"email":      user.Email,
		"avatar_url": user.AvatarURL,
	})
}

func (a *AuthRoutes) handleLogout(c echo.Context) error {
	session, err := gothic.Store.Get(c.Request(), authSessionName)
	if err != nil {
		if isInvalidSecureCookieError(err) {
			clearSessionCookie(c, authSessionName)
			clearSessionCookie(c, gothSessionName)
			return c.Redirect(http.StatusFound, "/login")
		}
		return err
	}
	delete(session.Values, authSessionKey)
	session.Options.MaxAge = -1
	if err := session.Save(c.Request(), c.Response()); err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, "/login")
}

func (a *AuthRoutes) handleAuthBegin(c echo.Context) error {
	provider := c.Param("provider")
	if provider != githubProvider {
		return c.NoContent(http.StatusNotFound)
	}
	request := addProviderParam(c.Request(), provider)
	gothic.BeginAuthHandler(c.Response(), request)
	return nil
}

func (a *AuthRoutes) handleAuthCallback(c echo.Context) error {
	provider := c.Param("provider")
	if provider != githubProvider {
		return c.NoContent(http.StatusNotFound)
	}
	request := addProviderParam(c.Request(), provider)
	user, err := gothic.CompleteUserAuth(c.Response(), request)
	if err != nil {
		if isInvalidSecureCookieError(err) {
			clearSessionCookie(c, authSessionName)
			clearSessionCookie(c, gothSessionName)
			return c.Redirect(http.StatusFound, "/login")
		}
		return err
	}

	nickname := strings.TrimSpace(user.NickName)
	email := strings.TrimSpace(user.Email)
	if email == "" {
		email = firstNonEmpty(nickname, "user") + "@local.invalid"
	}
	if nickname == "" {
		nickname = strings.Split(email, "@")[0]
	}
	if err := saveAuthUser(c, request, AuthUser{
		TenantID:  githubProvider + ":" + user.UserID,
		Name:      firstNonEmpty(user.Name, nickname),
		NickName:  nickname,
		Email:     email,
		AvatarURL: user.AvatarURL,
	}); err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, "/")
}

func (a *AuthRoutes) handleDevLogin(c echo.Context) error {
	if !a.enableDevLogin {
		return c.NoContent(http.StatusNotFound)
	}

	email := strings.TrimSpace(c.FormValue("email"))
	if email == "" {
		email = "dev-user@example.local"
	}
	nickname := strings.TrimSpace(c.FormValue("nickname"))
	if nickname == "" {
		nickname = strings.Split(email, "@")[0]
	}
	tenantID := strings.TrimSpace(c.FormValue("tenant_id"))
	if tenantID == "" {
		tenantID = "dev:" + nickname
	}
	if err := saveAuthUser(c, c.Request(), AuthUser{
		TenantID:  tenantID,
		Name:      firstNonEmpty(c.FormValue("name"), nickname),
		NickName:  nickname,
		Email:     email,
		AvatarURL: strings.TrimSpace(c.FormValue("avatar_url")),
	}); err != nil {
		return err
	}

	next := strings.TrimSpace(c.FormValue("next"))
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		next = "/"
	}
	return c.Redirect(http.StatusFound, next)
}

func saveAuthUser(c echo.Context, request *http.Request, user AuthUser) error {
	session, err := gothic.Store.Get(request, authSessionName)
	if err != nil {
		if !isInvalidSecureCookieError(err) {
			return err
		}
		clearSessionCookie(c, authSessionName)
	}
	session.Values[authSessionKey] = user
	return session.Save(request, c.Response())
}

func addProviderParam(request *http.Request, provider string) *http.Request {
	query := request.URL.Query()
	query.Set("provider", provider)
	request.URL.RawQuery = query.Encode()
	return request
}

func authUserFromSession(c echo.Context) (AuthUser, bool) {
	session, err := gothic.Store.Get(c.Request(), authSessionName)
	if err != nil {
		if isInvalidSecureCookieError(err) {
			clearSessionCookie(c, authSessionName)
			clearSessionCookie(c, gothSessionName)
		}
		return AuthUser{}, false
	}
	user, ok := session.Values[authSessionKey].(AuthUser)
	return user, ok
}

func isInvalidSecureCookieError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "securecookie") && strings.Contains(msg, "not valid")
}

func clearSessionCookie(c echo.Context, name string) {
	http.SetCookie(c.Response(), &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   c.Request().TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
