package apiv1

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/volunteermatching/volops/pkg/types"
)

const (
	defaultPerPage = 10
	maxPerPage     = 100
)

// Page is a resolved page request
type Page struct {
	Number  int
	PerPage int
}

// Offset returns the index of the first item on the page. It saturates at
// math.MaxInt, which is past the end of any collection.
func (p Page) Offset() int {
	if p.PerPage > 0 && p.Number-1 > math.MaxInt/p.PerPage {
		return math.MaxInt
	}
	return (p.Number - 1) * p.PerPage
}

// parsePage reads page and per_page. Unparsable values fall back to the
// defaults, page is at least 1 and per_page is clamped to the maximum. A page
// too large to represent is kept as math.MaxInt and yields an empty page.
func parsePage(c echo.Context, cfg types.PaginationConfig) Page {
	def := cfg.DefaultPerPage
	if def <= 0 {
		def = defaultPerPage
	}
	limit := cfg.MaxPerPage
	if limit <= 0 {
		limit = maxPerPage
	}

	page, err := strconv.Atoi(c.QueryParam("page"))
	switch {
	case errors.Is(err, strconv.ErrRange) && page > 0:
		page = math.MaxInt
	case err != nil || page < 1:
		page = 1
	}

	perPage, err := strconv.Atoi(c.QueryParam("per_page"))
	if err != nil || perPage < 1 {
		perPage = def
	}

	return Page{Number: page, PerPage: min(perPage, limit)}
}

// CollectionMeta describes the page returned in a collection response
type CollectionMeta struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
	TotalItems int `json:"total_items"`
}

// CollectionLinks point at neighbouring pages; absent neighbours are null
type CollectionLinks struct {
	Self string  `json:"self"`
	Next *string `json:"next"`
	Prev *string `json:"prev"`
}

// Collection is a paginated list response
type Collection[T any] struct {
	Items []T             `json:"items"`
	Meta  CollectionMeta  `json:"_meta"`
	Links CollectionLinks `json:"_links"`
}

// newCollection builds the response for items on page p out of total. extra
// query parameters (such as search) are carried into the links.
func newCollection[T any](path string, items []T, p Page, total int, extra url.Values) Collection[T] {
	totalPages := 0
	if total > 0 {
		totalPages = (total + p.PerPage - 1) / p.PerPage
	}

	link := func(n int) string {
		q := url.Values{}
		for k, v := range extra {
			q[k] = v
		}
		q.Set("page", strconv.Itoa(n))
		q.Set("per_page", strconv.Itoa(p.PerPage))
		return fmt.Sprintf("%s?%s", path, q.Encode())
	}

	links := CollectionLinks{Self: link(p.Number)}
	if p.Number < totalPages {
		next := link(p.Number + 1)
		links.Next = &next
	}
	if p.Number > 1 {
		prev := link(p.Number - 1)
		links.Prev = &prev
	}

	if items == nil {
		items = []T{}
	}

	return Collection[T]{
		Items: items,
		Meta: CollectionMeta{
			Page:       p.Number,
			PerPage:    p.PerPage,
			TotalPages: totalPages,
			TotalItems: total,
		},
		Links: links,
	}
}
