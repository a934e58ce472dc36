package types

import (
	"sort"
	"strings"
	"time"
)

// Opportunity is a volunteer opportunity offered by a partner
type Opportunity struct {
	Id               uint      `json:"id" db:"id"`
	Name             string    `json:"name" db:"name"`
	Active           bool      `json:"active" db:"active"`
	Description      string    `json:"description" db:"description"`
	ShiftHours       float64   `json:"shift_hours" db:"shift_hours"`
	CommitmentLength int       `json:"commitment_length" db:"commitment_length"` // months
	LocationCity     string    `json:"location_city" db:"location_city"`
	LocationState    string    `json:"location_state" db:"location_state"`
	LocationZip      string    `json:"location_zip" db:"location_zip"`
	PartnerId        uint      `json:"partner_id" db:"partner_id"`
	FrequencyId      *uint     `json:"frequency_id" db:"frequency_id"`
	PartnerString    string    `json:"partner_string" db:"partner_string"` // cached partner.name
	TagString        string    `json:"tag_string" db:"tag_string"`         // cached partner tags
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// SetPartner points the opportunity at p and refreshes the cached partner
// fields. It must be called on every mutation that touches the partner.
func (o *Opportunity) SetPartner(p *Partner) {
	o.PartnerId = p.Id
	o.PartnerString = p.Name
	o.TagString = p.TagString()
}

// Partner is an organisation offering opportunities. Partners are
// provisioned out of band; the API only looks them up.
type Partner struct {
	Id        uint      `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TagString returns the partner's tags sorted and comma-joined
func (p *Partner) TagString() string {
	tags := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	sort.Strings(tags)
	return strings.Join(tags, ",")
}

// Frequency describes how often an opportunity recurs (e.g. "Weekly")
type Frequency struct {
	Id        uint      `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ListOptions selects a page of a collection. A zero Limit means no limit.
// When Ids is non-nil only those records are returned, in the order given.
type ListOptions struct {
	Offset int
	Limit  int
	Ids    []uint
}
