package types

import (
	"errors"
	"fmt"
)

// ErrOpportunityNotFound is returned when an opportunity does not exist
type ErrOpportunityNotFound struct {
	Id   uint
	Name string
}

func (e *ErrOpportunityNotFound) Error() string {
	if e.Name != "" {
		return "opportunity not found: " + e.Name
	}
	return fmt.Sprintf("opportunity not found: %d", e.Id)
}

// From checks if the given error is an ErrOpportunityNotFound
func (e *ErrOpportunityNotFound) From(err error) bool {
	var notFound *ErrOpportunityNotFound
	return errors.As(err, &notFound)
}

// ErrFrequencyNotFound is returned when a frequency does not exist
type ErrFrequencyNotFound struct {
	Id   uint
	Name string
}

func (e *ErrFrequencyNotFound) Error() string {
	if e.Name != "" {
		return "frequency not found: " + e.Name
	}
	return fmt.Sprintf("frequency not found: %d", e.Id)
}

// From checks if the given error is an ErrFrequencyNotFound
func (e *ErrFrequencyNotFound) From(err error) bool {
	var notFound *ErrFrequencyNotFound
	return errors.As(err, &notFound)
}

// ErrPartnerNotFound is returned when a partner reference cannot be resolved
type ErrPartnerNotFound struct {
	Id   uint
	Name string
}

func (e *ErrPartnerNotFound) Error() string {
	if e.Name != "" {
		return "partner not found: " + e.Name
	}
	return fmt.Sprintf("partner not found: %d", e.Id)
}

// From checks if the given error is an ErrPartnerNotFound
func (e *ErrPartnerNotFound) From(err error) bool {
	var notFound *ErrPartnerNotFound
	return errors.As(err, &notFound)
}

// ErrNameConflict is returned when a write would violate a unique name
type ErrNameConflict struct {
	Kind string // "opportunity", "frequency", "partner"
	Name string
}

func (e *ErrNameConflict) Error() string {
	return fmt.Sprintf("%s name already in use: %s", e.Kind, e.Name)
}

// From checks if the given error is an ErrNameConflict
func (e *ErrNameConflict) From(err error) bool {
	var conflict *ErrNameConflict
	return errors.As(err, &conflict)
}
