package index

import (
	"strings"
	"time"

	"github.com/volunteermatching/volops/pkg/types"
)

// IndexEntry is the searchable projection of one opportunity, keyed by the
// opportunity id. It is always rebuilt in full from the store record.
type IndexEntry struct {
	OpportunityID uint      `json:"opportunity_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Partner       string    `json:"partner"`
	Tags          string    `json:"tags"` // comma-joined partner tag names
	LocationCity  string    `json:"location_city"`
	LocationState string    `json:"location_state"`
	LocationZip   string    `json:"location_zip"`
	Active        bool      `json:"active"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// EntryFromOpportunity derives the index entry for o
func EntryFromOpportunity(o *types.Opportunity) *IndexEntry {
	return &IndexEntry{
		OpportunityID: o.Id,
		Name:          o.Name,
		Description:   o.Description,
		Partner:       o.PartnerString,
		Tags:          o.TagString,
		LocationCity:  o.LocationCity,
		LocationState: o.LocationState,
		LocationZip:   o.LocationZip,
		Active:        o.Active,
		UpdatedAt:     o.UpdatedAt,
	}
}

// TagList splits Tags back into individual tag names
func (e *IndexEntry) TagList() []string {
	if e.Tags == "" {
		return nil
	}
	return strings.Split(e.Tags, ",")
}

// SearchTerms splits a query into lowercase, de-duplicated terms. A document
// matches a query when it matches any of its terms.
func SearchTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, field := range strings.FieldsFunc(query, isTermSeparator) {
		term := strings.ToLower(field)
		if seen[term] {
			continue
		}
		seen[term] = true
		terms = append(terms, term)
	}
	return terms
}

func isTermSeparator(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', ',', ';', '"', '\'', '(', ')', '*', '+', '-', ':', '^':
		return true
	}
	return false
}
