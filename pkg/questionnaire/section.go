package questionnaire

import "errors"

// SectionStatus is the applicability of a section for the current project.
type SectionStatus string

const (
	StatusApplicable    SectionStatus = "applicable"
	StatusNotApplicable SectionStatus = "not_applicable"
	StatusUndetermined  SectionStatus = "undetermined"
)

func (s SectionStatus) Valid() bool {
	switch s {
	case StatusApplicable, StatusNotApplicable, StatusUndetermined:
		return true
	}
	return false
}

var (
	ErrUnknownSection       = errors.New("unknown section")
	ErrGeneralSectionLocked = errors.New("general information section is always applicable")
	ErrInvalidStatus        = errors.New("invalid section status")
)

// OrderRange is an inclusive range of question order values.
type OrderRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

func (r OrderRange) Contains(order float64) bool {
	return order >= r.Min && order <= r.Max
}

// Section groups questions by one or more order ranges.
type Section struct {
	ID          string       `json:"id" yaml:"id"`
	Title       string       `json:"title" yaml:"title"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Ranges      []OrderRange `json:"ranges" yaml:"ranges"`
	// General marks the "general information" section. It is always applicable.
	General bool `json:"general,omitempty" yaml:"general,omitempty"`
}

// Contains reports whether order falls in any of the section ranges.
func (s Section) Contains(order float64) bool {
	for _, r := range s.Ranges {
		if r.Contains(order) {
			return true
		}
	}
	return false
}

// Statuses maps a section id to its applicability.
type Statuses map[string]SectionStatus

// Of returns the status of sectionID, StatusUndetermined when unset.
func (s Statuses) Of(sectionID string) SectionStatus {
	if st, ok := s[sectionID]; ok {
		return st
	}
	return StatusUndetermined
}

func (s Statuses) Clone() Statuses {
	out := make(Statuses, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
