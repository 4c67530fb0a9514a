package routes

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fr0stylo/synclink/internal/scheduler"
)

// SyncController is the scheduler surface exposed over HTTP.
type SyncController interface {
	Start() error
	Stop()
	RunSync(ctx context.Context) (scheduler.RunSummary, error)
	RunConnection(ctx context.Context, tenantID, provider string) (bool, error)
	Status() scheduler.Status
}

type SyncRoutes struct {
	sync SyncController
}

func NewSyncRoutes(sync SyncController) *SyncRoutes {
	return &SyncRoutes{sync: sync}
}

func (r *SyncRoutes) RegisterRoutes(s *echo.Echo) {
	api := s.Group("/api/sync", RequireAuth)
	api.GET("/status", r.handleStatus)
	api.POST("/start", r.handleStart)
	api.POST("/stop", r.handleStop)
	api.POST("/run", r.handleRun)
	api.POST("/run/:provider", r.handleRunProvider)
}

func (r *SyncRoutes) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, r.sync.Status())
}

func (r *SyncRoutes) handleStart(c echo.Context) error {
	if err := r.sync.Start(); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"running": true})
}

func (r *SyncRoutes) handleStop(c echo.Context) error {
	r.sync.Stop()
	return c.JSON(http.StatusOK, map[string]bool{"running": false})
}

func (r *SyncRoutes) handleRun(c echo.Context) error {
	summary, err := r.sync.RunSync(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, summary)
}

// handleRunProvider syncs the caller's own connection for one provider.
func (r *SyncRoutes) handleRunProvider(c echo.Context) error {
	user, _ := GetAuthUser(c)
	started, err := r.sync.RunConnection(c.Request().Context(), user.TenantID, c.Param("provider"))
	if err != nil {
		return writeManagerError(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]bool{"started": started})
}
