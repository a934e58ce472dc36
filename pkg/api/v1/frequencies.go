package apiv1

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/volunteermatching/volops/pkg/auth"
	"github.com/volunteermatching/volops/pkg/repository"
	"github.com/volunteermatching/volops/pkg/types"
)

const (
	msgFrequencyFieldRequired = "must include frequency name field"
	msgFrequencyExists        = "this frequency already exists"
	msgFrequencyRename        = "please use a different frequency name"
	msgFrequencyMissing       = "this frequency does not exist"
)

type FrequencyRequest struct {
	Name *string `json:"name"`
}

type FrequencyResponse struct {
	Id        uint          `json:"id"`
	Name      string        `json:"name"`
	CreatedAt string        `json:"created_at"`
	UpdatedAt string        `json:"updated_at"`
	Links     ResourceLinks `json:"_links"`
}

func frequencyPath(id uint) string {
	return fmt.Sprintf("%s/frequencies/%d", HttpServerBaseRoute, id)
}

func newFrequencyResponse(f *types.Frequency) FrequencyResponse {
	return FrequencyResponse{
		Id:        f.Id,
		Name:      f.Name,
		CreatedAt: f.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: f.UpdatedAt.UTC().Format(time.RFC3339Nano),
		Links:     ResourceLinks{Self: frequencyPath(f.Id)},
	}
}

type FrequenciesGroup struct {
	routerGroup *echo.Group
	backend     repository.BackendRepository
}

func NewFrequenciesGroup(g *echo.Group, backend repository.BackendRepository) *FrequenciesGroup {
	group := &FrequenciesGroup{routerGroup: g, backend: backend}
	group.registerRoutes()
	return group
}

func (g *FrequenciesGroup) registerRoutes() {
	g.routerGroup.GET("", g.List)
	g.routerGroup.GET("/:id", g.Get)
	g.routerGroup.POST("", auth.WithAuth(g.Create))
	g.routerGroup.PUT("/:id", auth.WithAuth(g.Update))
	g.routerGroup.DELETE("/:id", auth.WithAuth(g.Delete))
}

func (g *FrequenciesGroup) List(c echo.Context) error {
	frequencies, err := g.backend.ListFrequencies(c.Request().Context())
	if err != nil {
		return InternalError(c, err, "failed to list frequencies")
	}

	names := make([]string, 0, len(frequencies))
	for _, f := range frequencies {
		names = append(names, f.Name)
	}

	return c.JSON(http.StatusOK, map[string][]string{"frequencies": names})
}

func (g *FrequenciesGroup) Get(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return NotFound(c, "frequency not found")
	}

	f, err := g.backend.GetFrequency(c.Request().Context(), id)
	if err != nil {
		if (&types.ErrFrequencyNotFound{}).From(err) {
			return NotFound(c, "frequency not found")
		}
		return InternalError(c, err, "failed to get frequency")
	}

	return c.JSON(http.StatusOK, newFrequencyResponse(f))
}

func (g *FrequenciesGroup) Create(c echo.Context) error {
	ctx := c.Request().Context()

	var req FrequencyRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest(c, msgInvalidBody)
	}
	if isBlank(req.Name) {
		return BadRequest(c, msgFrequencyFieldRequired)
	}
	name := strings.TrimSpace(*req.Name)

	tx, err := g.backend.Begin(ctx)
	if err != nil {
		return InternalError(c, err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.GetFrequencyByName(ctx, name); err == nil {
		return BadRequest(c, msgFrequencyExists)
	} else if !(&types.ErrFrequencyNotFound{}).From(err) {
		return InternalError(c, err, "failed to check frequency name")
	}

	f, err := tx.CreateFrequency(ctx, name)
	if err != nil {
		if (&types.ErrNameConflict{}).From(err) {
			return BadRequest(c, msgFrequencyExists)
		}
		return InternalError(c, err, "failed to create frequency")
	}

	if err := tx.Commit(); err != nil {
		if (&types.ErrNameConflict{}).From(err) {
			return BadRequest(c, msgFrequencyExists)
		}
		return InternalError(c, err, "failed to commit frequency")
	}

	c.Response().Header().Set(echo.HeaderLocation, frequencyPath(f.Id))
	return c.JSON(http.StatusCreated, newFrequencyResponse(f))
}

func (g *FrequenciesGroup) Update(c echo.Context) error {
	ctx := c.Request().Context()

	id, ok := parseID(c)
	if !ok {
		return NotFound(c, "frequency not found")
	}

	var req FrequencyRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest(c, msgInvalidBody)
	}

	tx, err := g.backend.Begin(ctx)
	if err != nil {
		return InternalError(c, err, "failed to begin transaction")
	}
	defer tx.Rollback()

	f, err := tx.GetFrequency(ctx, id)
	if err != nil {
		if (&types.ErrFrequencyNotFound{}).From(err) {
			return NotFound(c, "frequency not found")
		}
		return InternalError(c, err, "failed to get frequency")
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return BadRequest(c, msgFrequencyFieldRequired)
		}
		if name != f.Name {
			existing, err := tx.GetFrequencyByName(ctx, name)
			if err == nil && existing.Id != f.Id {
				return BadRequest(c, msgFrequencyRename)
			} else if err != nil && !(&types.ErrFrequencyNotFound{}).From(err) {
				return InternalError(c, err, "failed to check frequency name")
			}
		}
		f.Name = name
	}

	if err := tx.UpdateFrequency(ctx, f); err != nil {
		if (&types.ErrNameConflict{}).From(err) {
			return BadRequest(c, msgFrequencyRename)
		}
		return InternalError(c, err, "failed to update frequency")
	}

	if err := tx.Commit(); err != nil {
		if (&types.ErrNameConflict{}).From(err) {
			return BadRequest(c, msgFrequencyRename)
		}
		return InternalError(c, err, "failed to commit frequency")
	}

	return c.JSON(http.StatusOK, newFrequencyResponse(f))
}

func (g *FrequenciesGroup) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	id, ok := parseID(c)
	if !ok {
		return NotFound(c, "frequency not found")
	}

	tx, err := g.backend.Begin(ctx)
	if err != nil {
		return InternalError(c, err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := tx.DeleteFrequency(ctx, id); err != nil {
		if (&types.ErrFrequencyNotFound{}).From(err) {
			return BadRequest(c, msgFrequencyMissing)
		}
		return InternalError(c, err, "failed to delete frequency")
	}

	if err := tx.Commit(); err != nil {
		return InternalError(c, err, "failed to commit delete")
	}

	return c.NoContent(http.StatusNoContent)
}
