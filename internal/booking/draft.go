package booking

import (
	"strings"

	"cloud.google.com/go/civil"
)

// Draft is the user's booking selection. Version increases on every change so an
// intent can be tied to the exact draft it was created from.
type Draft struct {
	Date           *civil.Date `json:"date,omitempty"`
	Participants   int         `json:"participants"`
	NeedsTransport bool        `json:"needsTransport"`
	StructureSlug  string      `json:"structure,omitempty"`
	Version        uint64      `json:"version"`
}

// NewDraft returns an empty draft for one participant.
func NewDraft() Draft {
	return Draft{Participants: 1, Version: 1}
}

// Patch is a partial draft update; nil fields are left unchanged.
type Patch struct {
	Date           *civil.Date `json:"date,omitempty"`
	ClearDate      bool        `json:"clearDate,omitempty"`
	Participants   *int        `json:"participants,omitempty"`
	NeedsTransport *bool       `json:"needsTransport,omitempty"`
	StructureSlug  *string     `json:"structure,omitempty"`
}

// Empty reports whether the patch carries no field.
func (p Patch) Empty() bool {
	return p.Date == nil && !p.ClearDate && p.Participants == nil && p.NeedsTransport == nil && p.StructureSlug == nil
}

// Apply merges p into the draft and reports whether anything changed.
func (d *Draft) Apply(p Patch) bool {
	changed := false
	switch {
	case p.ClearDate && d.Date != nil:
		d.Date = nil
		changed = true
	case p.Date != nil && (d.Date == nil || *d.Date != *p.Date):
		day := *p.Date
		d.Date = &day
		changed = true
	}
	if p.Participants != nil && *p.Participants != d.Participants {
		d.Participants = *p.Participants
		changed = true
	}
	if p.NeedsTransport != nil && *p.NeedsTransport != d.NeedsTransport {
		d.NeedsTransport = *p.NeedsTransport
		changed = true
	}
	if p.StructureSlug != nil {
		slug := strings.TrimSpace(*p.StructureSlug)
		if slug != d.StructureSlug {
			d.StructureSlug = slug
			changed = true
		}
	}
	if changed {
		d.Version++
	}
	return changed
}

// Validate checks the draft can be turned into an intent request.
func (d Draft) Validate() error {
	if d.Date == nil || !d.Date.IsValid() {
		return &ValidationError{Field: FieldDate, Reason: "is required"}
	}
	if d.Participants <= 0 {
		return &ValidationError{Field: FieldParticipants, Reason: "must be at least 1"}
	}
	if d.NeedsTransport && strings.TrimSpace(d.StructureSlug) == "" {
		return &ValidationError{Field: FieldStructure, Reason: "is required when transport is requested"}
	}
	return nil
}
