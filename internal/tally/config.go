// Package tally reduces a per-object classification table to per-group
// positive/negative counts and fractions.
package tally

import "errors"

var (
	// ErrMissingVariable is returned when a required column or dose value is absent.
	ErrMissingVariable = errors.New("missing variable")
	// ErrAmbiguousGrouping is returned when the grouping column cannot be chosen.
	ErrAmbiguousGrouping = errors.New("ambiguous grouping")
	// ErrZeroCountGroup is returned when an expected group has no objects.
	ErrZeroCountGroup = errors.New("group has no objects")
	// ErrConflictingDose is returned when rows of one group carry different doses.
	ErrConflictingDose = errors.New("conflicting dose values")
	// ErrInvalidValue is returned for cells that cannot be parsed.
	ErrInvalidValue = errors.New("invalid value")
)

// Config names the columns Aggregate reads. Explicit settings take priority over
// the alias lists, which are tried in order.
type Config struct {
	// Dose gives the dose of each group directly and overrides any column.
	Dose map[string]float64 `json:"dose,omitempty"`
	// DoseColumn names the dose column; it must exist when set.
	DoseColumn  string   `json:"dose_column,omitempty"`
	DoseAliases []string `json:"dose_aliases"`
	// RequireDose makes a missing dose source an error.
	RequireDose bool `json:"require_dose"`

	GroupBy      string   `json:"group_by,omitempty"`
	GroupAliases []string `json:"group_aliases"`

	// Param is the boolean column counted as positive.
	Param string `json:"param"`

	// Groups lists groups that must be present with at least one object.
	Groups []string `json:"groups,omitempty"`
}

// DefaultConfig returns the standard aliases: dose from "moi" then "x", groups
// from "well" or "file", scoring the "positive" column.
func DefaultConfig() Config {
	return Config{
		DoseAliases:  []string{"moi", "x"},
		RequireDose:  true,
		GroupAliases: []string{"well", "file"},
		Param:        "positive",
	}
}

// WithGroupBy returns a copy of cfg grouping by column.
func (c Config) WithGroupBy(column string) Config {
	c.GroupBy = column
	return c
}

// WithDose returns a copy of cfg using an explicit per-group dose map.
func (c Config) WithDose(dose map[string]float64) Config {
	c.Dose = dose
	return c
}

// WithGroups returns a copy of cfg expecting the given groups.
func (c Config) WithGroups(groups ...string) Config {
	c.Groups = groups
	return c
}
