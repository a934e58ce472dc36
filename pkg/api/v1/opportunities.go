package apiv1

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/volunteermatching/volops/pkg/auth"
	"github.com/volunteermatching/volops/pkg/repository"
	"github.com/volunteermatching/volops/pkg/types"
)

const (
	msgOpportunityFieldsRequired = "must include opportunity and partner name field"
	msgOpportunityExists         = "this opportunity already exists"
	msgOpportunityRename         = "please use a different opportunity name"
	msgOpportunityMissing        = "this opportunity does not exist"
	msgPartnerMissing            = "this partner does not exist"
	msgInvalidBody               = "invalid request body"
)

// IndexSync keeps the search index in step with committed opportunities
type IndexSync interface {
	OnCreate(ctx context.Context, o *types.Opportunity) error
	OnUpdate(ctx context.Context, o *types.Opportunity) error
	OnDelete(ctx context.Context, opportunityID uint) error
	Search(ctx context.Context, query string) ([]uint, error)
}

// OpportunityRequest is the body of create and update. Nil fields were not
// supplied.
type OpportunityRequest struct {
	Name             *string  `json:"name"`
	PartnerName      *string  `json:"partner_name"`
	FrequencyName    *string  `json:"frequency_name"`
	Active           *bool    `json:"active"`
	Description      *string  `json:"description"`
	ShiftHours       *float64 `json:"shift_hours"`
	CommitmentLength *int     `json:"commitment_length"`
	LocationCity     *string  `json:"location_city"`
	LocationState    *string  `json:"location_state"`
	LocationZip      *string  `json:"location_zip"`
}

// apply copies the supplied plain fields onto o. References are resolved
// by the handler.
func (r *OpportunityRequest) apply(o *types.Opportunity) {
	if r.Name != nil {
		o.Name = strings.TrimSpace(*r.Name)
	}
	if r.Active != nil {
		o.Active = *r.Active
	}
	if r.Description != nil {
		o.Description = *r.Description
	}
	if r.ShiftHours != nil {
		o.ShiftHours = *r.ShiftHours
	}
	if r.CommitmentLength != nil {
		o.CommitmentLength = *r.CommitmentLength
	}
	if r.LocationCity != nil {
		o.LocationCity = *r.LocationCity
	}
	if r.LocationState != nil {
		o.LocationState = *r.LocationState
	}
	if r.LocationZip != nil {
		o.LocationZip = *r.LocationZip
	}
}

// OpportunityResponse is the representation of an opportunity
type OpportunityResponse struct {
	Id               uint          `json:"id"`
	Name             string        `json:"name"`
	Active           bool          `json:"active"`
	Description      string        `json:"description"`
	ShiftHours       float64       `json:"shift_hours"`
	CommitmentLength int           `json:"commitment_length"`
	LocationCity     string        `json:"location_city"`
	LocationState    string        `json:"location_state"`
	LocationZip      string        `json:"location_zip"`
	PartnerId        uint          `json:"partner_id"`
	PartnerName      string        `json:"partner_name"`
	PartnerString    string        `json:"partner_string"`
	TagString        string        `json:"tag_string"`
	FrequencyId      *uint         `json:"frequency_id"`
	CreatedAt        string        `json:"created_at"`
	UpdatedAt        string        `json:"updated_at"`
	Links            ResourceLinks `json:"_links"`
}

type ResourceLinks struct {
	Self string `json:"self"`
}

func opportunityPath(id uint) string {
	return fmt.Sprintf("%s/opportunities/%d", HttpServerBaseRoute, id)
}

func newOpportunityResponse(o *types.Opportunity) OpportunityResponse {
	return OpportunityResponse{
		Id:               o.Id,
		Name:             o.Name,
		Active:           o.Active,
		Description:      o.Description,
		ShiftHours:       o.ShiftHours,
		CommitmentLength: o.CommitmentLength,
		LocationCity:     o.LocationCity,
		LocationState:    o.LocationState,
		LocationZip:      o.LocationZip,
		PartnerId:        o.PartnerId,
		PartnerName:      o.PartnerString,
		PartnerString:    o.PartnerString,
		TagString:        o.TagString,
		FrequencyId:      o.FrequencyId,
		CreatedAt:        o.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:        o.UpdatedAt.UTC().Format(time.RFC3339Nano),
		Links:            ResourceLinks{Self: opportunityPath(o.Id)},
	}
}

// parseID reads the :id path parameter. A non-integer id is reported as
// not found, like an unmatched route.
func parseID(c echo.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

type OpportunitiesGroup struct {
	routerGroup *echo.Group
	backend     repository.BackendRepository
	index       IndexSync
	pagination  types.PaginationConfig
}

func NewOpportunitiesGroup(g *echo.Group, backend repository.BackendRepository, index IndexSync, pagination types.PaginationConfig) *OpportunitiesGroup {
	group := &OpportunitiesGroup{
		routerGroup: g,
		backend:     backend,
		index:       index,
		pagination:  pagination,
	}
	group.registerRoutes()
	return group
}

func (g *OpportunitiesGroup) registerRoutes() {
	g.routerGroup.GET("", g.List)
	g.routerGroup.GET("/:id", g.Get)
	g.routerGroup.POST("", auth.WithAuth(g.Create))
	g.routerGroup.PUT("/:id", auth.WithAuth(g.Update))
	g.routerGroup.DELETE("/:id", auth.WithAuth(g.Delete))
}

func (g *OpportunitiesGroup) Get(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return NotFound(c, "opportunity not found")
	}

	o, err := g.backend.GetOpportunity(c.Request().Context(), id)
	if err != nil {
		if (&types.ErrOpportunityNotFound{}).From(err) {
			return NotFound(c, "opportunity not found")
		}
		return InternalError(c, err, "failed to get opportunity")
	}

	return c.JSON(http.StatusOK, newOpportunityResponse(o))
}

func (g *OpportunitiesGroup) List(c echo.Context) error {
	ctx := c.Request().Context()
	page := parsePage(c, g.pagination)
	opts := types.ListOptions{Offset: page.Offset(), Limit: page.PerPage}

	extra := url.Values{}
	if search := strings.TrimSpace(c.QueryParam("search")); search != "" {
		ids, err := g.index.Search(ctx, search)
		if err != nil {
			return InternalError(c, err, "failed to search opportunities")
		}
		opts.Ids = ids
		extra.Set("search", search)
	}

	total, err := g.backend.CountOpportunities(ctx, opts)
	if err != nil {
		return InternalError(c, err, "failed to count opportunities")
	}

	// Pages past the end are empty without a store read
	var opportunities []*types.Opportunity
	if opts.Offset < total {
		opportunities, err = g.backend.ListOpportunities(ctx, opts)
		if err != nil {
			return InternalError(c, err, "failed to list opportunities")
		}
	}

	items := make([]OpportunityResponse, 0, len(opportunities))
	for _, o := range opportunities {
		items = append(items, newOpportunityResponse(o))
	}

	return c.JSON(http.StatusOK, newCollection(HttpServerBaseRoute+"/opportunities", items, page, total, extra))
}

func (g *OpportunitiesGroup) Create(c echo.Context) error {
	ctx := c.Request().Context()

	var req OpportunityRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest(c, msgInvalidBody)
	}
	if isBlank(req.Name) || isBlank(req.PartnerName) {
		return BadRequest(c, msgOpportunityFieldsRequired)
	}

	tx, err := g.backend.Begin(ctx)
	if err != nil {
		return InternalError(c, err, "failed to begin transaction")
	}
	defer tx.Rollback()

	name := strings.TrimSpace(*req.Name)
	if _, err := tx.GetOpportunityByName(ctx, name); err == nil {
		return BadRequest(c, msgOpportunityExists)
	} else if !(&types.ErrOpportunityNotFound{}).From(err) {
		return InternalError(c, err, "failed to check opportunity name")
	}

	partner, msg, err := resolvePartner(ctx, tx, *req.PartnerName)
	if err != nil {
		return InternalError(c, err, "failed to resolve partner")
	}
	if msg != "" {
		return BadRequest(c, msg)
	}

	o := &types.Opportunity{Active: true}
	req.apply(o)
	o.SetPartner(partner)

	if req.FrequencyName != nil {
		frequencyId, msg, err := resolveFrequency(ctx, tx, *req.FrequencyName)
		if err != nil {
			return InternalError(c, err, "failed to resolve frequency")
		}
		if msg != "" {
			return BadRequest(c, msg)
		}
		o.FrequencyId = frequencyId
	}

	if err := tx.CreateOpportunity(ctx, o); err != nil {
		if (&types.ErrNameConflict{}).From(err) {
			return BadRequest(c, msgOpportunityExists)
		}
		return InternalError(c, err, "failed to create opportunity")
	}

	if err := tx.Commit(); err != nil {
		if (&types.ErrNameConflict{}).From(err) {
			return BadRequest(c, msgOpportunityExists)
		}
		return InternalError(c, err, "failed to commit opportunity")
	}

	if err := g.index.OnCreate(ctx, o); err != nil {
		return InternalError(c, err, "failed to index opportunity")
	}

	c.Response().Header().Set(echo.HeaderLocation, opportunityPath(o.Id))
	return c.JSON(http.StatusCreated, newOpportunityResponse(o))
}

func (g *OpportunitiesGroup) Update(c echo.Context) error {
	ctx := c.Request().Context()

	id, ok := parseID(c)
	if !ok {
		return NotFound(c, "opportunity not found")
	}

	var req OpportunityRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest(c, msgInvalidBody)
	}

	tx, err := g.backend.Begin(ctx)
	if err != nil {
		return InternalError(c, err, "failed to begin transaction")
	}
	defer tx.Rollback()

	o, err := tx.GetOpportunity(ctx, id)
	if err != nil {
		if (&types.ErrOpportunityNotFound{}).From(err) {
			return NotFound(c, "opportunity not found")
		}
		return InternalError(c, err, "failed to get opportunity")
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return BadRequest(c, msgOpportunityFieldsRequired)
		}
		if name != o.Name {
			existing, err := tx.GetOpportunityByName(ctx, name)
			if err == nil && existing.Id != o.Id {
				return BadRequest(c, msgOpportunityRename)
			} else if err != nil && !(&types.ErrOpportunityNotFound{}).From(err) {
				return InternalError(c, err, "failed to check opportunity name")
			}
		}
	}

	var partner *types.Partner
	if req.PartnerName != nil {
		var msg string
		partner, msg, err = resolvePartner(ctx, tx, *req.PartnerName)
		if err != nil {
			return InternalError(c, err, "failed to resolve partner")
		}
		if msg != "" {
			return BadRequest(c, msg)
		}
	} else {
		partner, err = tx.GetPartner(ctx, o.PartnerId)
		if err != nil {
			return InternalError(c, err, "failed to get partner")
		}
	}

	if req.FrequencyName != nil {
		frequencyId, msg, err := resolveFrequency(ctx, tx, *req.FrequencyName)
		if err != nil {
			return InternalError(c, err, "failed to resolve frequency")
		}
		if msg != "" {
			return BadRequest(c, msg)
		}
		o.FrequencyId = frequencyId
	}

	req.apply(o)
	o.SetPartner(partner)

	if err := tx.UpdateOpportunity(ctx, o); err != nil {
		if (&types.ErrNameConflict{}).From(err) {
			return BadRequest(c, msgOpportunityRename)
		}
		return InternalError(c, err, "failed to update opportunity")
	}

	if err := tx.Commit(); err != nil {
		if (&types.ErrNameConflict{}).From(err) {
			return BadRequest(c, msgOpportunityRename)
		}
		return InternalError(c, err, "failed to commit opportunity")
	}

	if err := g.index.OnUpdate(ctx, o); err != nil {
		return InternalError(c, err, "failed to index opportunity")
	}

	return c.JSON(http.StatusOK, newOpportunityResponse(o))
}

func (g *OpportunitiesGroup) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	id, ok := parseID(c)
	if !ok {
		return NotFound(c, "opportunity not found")
	}

	tx, err := g.backend.Begin(ctx)
	if err != nil {
		return InternalError(c, err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.GetOpportunity(ctx, id); err != nil {
		if (&types.ErrOpportunityNotFound{}).From(err) {
			return BadRequest(c, msgOpportunityMissing)
		}
		return InternalError(c, err, "failed to get opportunity")
	}

	if err := tx.DeleteOpportunity(ctx, id); err != nil {
		if (&types.ErrOpportunityNotFound{}).From(err) {
			return BadRequest(c, msgOpportunityMissing)
		}
		return InternalError(c, err, "failed to delete opportunity")
	}

	if err := tx.Commit(); err != nil {
		return InternalError(c, err, "failed to commit delete")
	}

	if err := g.index.OnDelete(ctx, id); err != nil {
		return InternalError(c, err, "failed to remove opportunity from index")
	}

	return c.NoContent(http.StatusNoContent)
}

// resolvePartner looks up a partner by name. An unknown partner is reported
// as a validation message rather than an error.
func resolvePartner(ctx context.Context, tx repository.Tx, name string) (*types.Partner, string, error) {
	partner, err := tx.GetPartnerByName(ctx, strings.TrimSpace(name))
	if err != nil {
		if (&types.ErrPartnerNotFound{}).From(err) {
			return nil, msgPartnerMissing, nil
		}
		return nil, "", err
	}
	return partner, "", nil
}

// resolveFrequency looks up a frequency by name. An empty name clears the
// reference.
func resolveFrequency(ctx context.Context, tx repository.Tx, name string) (*uint, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", nil
	}

	frequency, err := tx.GetFrequencyByName(ctx, name)
	if err != nil {
		if (&types.ErrFrequencyNotFound{}).From(err) {
			return nil, msgFrequencyMissing, nil
		}
		return nil, "", err
	}
	return &frequency.Id, "", nil
}

func isBlank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}
