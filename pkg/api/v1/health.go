package apiv1

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/volunteermatching/volops/pkg/common"
	"github.com/volunteermatching/volops/pkg/repository"
)

const healthCheckTimeout = 2 * time.Second

type HealthGroup struct {
	backend     repository.BackendRepository
	redisClient *common.RedisClient // nil in local mode
	routerGroup *echo.Group
}

func NewHealthGroup(g *echo.Group, backend repository.BackendRepository, rdb *common.RedisClient) *HealthGroup {
	group := &HealthGroup{routerGroup: g, backend: backend, redisClient: rdb}

	g.GET("", group.HealthCheck)

	return group
}

func (h *HealthGroup) HealthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
	defer cancel()

	if err := h.backend.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("health check failed: store")
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "not ok",
			"error":  err.Error(),
		})
	}

	if h.redisClient != nil {
		if err := h.redisClient.Ping(ctx).Err(); err != nil {
			log.Error().Err(err).Msg("health check failed: redis")
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "not ok",
				"error":  err.Error(),
			})
		}
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}
