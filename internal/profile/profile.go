// Package profile describes which parts of a form are change-tracked and
// when a freshly loaded form looks complete.
//
// Profiles are authored in CUE:
//
//	form: invoice: {
//		tracked:  ["number", "date", "client_id", "items", "discount", "total"]
//		required: ["number", "date", "client_id"]
//		line_items: {
//			field: "items"
//			refs:  ["tariff_id"]
//		}
//	}
//
// The tracked list is the projection applied to raw form data before it is
// snapshotted. The required list and the line-item references drive the
// "looks complete" predicate used by the quiescence detector.
package profile

import (
	"fmt"

	"github.com/roach88/navguard/internal/ir"
)

// Profile is the compiled tracking profile of one form kind.
type Profile struct {
	Name     string
	Tracked  []string
	Required []string

	// LineItems is nil when the form has no line items.
	LineItems *LineItems
}

// LineItems names the array field holding line items and the
// cross-reference keys every item must carry once related entities loaded.
type LineItems struct {
	Field string
	Refs  []string
}

// Project reduces raw form data to the tracked fields.
//
// Tracked fields missing from raw appear as null so that a field arriving
// later shows up as a change. An empty Tracked list keeps every field. The
// result never aliases raw.
func (p *Profile) Project(raw ir.IRObject) ir.IRObject {
	if len(p.Tracked) == 0 {
		return raw.Clone()
	}
	out := make(ir.IRObject, len(p.Tracked))
	for _, field := range p.Tracked {
		v, ok := raw[field]
		if !ok || v == nil {
			out[field] = ir.IRNull{}
			continue
		}
		out[field] = ir.CloneValue(v)
	}
	return out
}

// Missing lists what keeps snap from looking complete, e.g.
// "number" or "items[1].tariff_id". Line-item references are only checked
// for existing records: a new record's items are typed in by the user.
func (p *Profile) Missing(snap ir.IRObject, existing bool) []string {
	var missing []string
	for _, field := range p.Required {
		if ir.IsEmpty(snap[field]) {
			missing = append(missing, field)
		}
	}

	if !existing || p.LineItems == nil {
		return missing
	}

	items, ok := snap[p.LineItems.Field].(ir.IRArray)
	if !ok {
		if !ir.IsEmpty(snap[p.LineItems.Field]) {
			missing = append(missing, p.LineItems.Field)
		}
		return missing
	}
	for i, item := range items {
		obj, ok := item.(ir.IRObject)
		if !ok {
			missing = append(missing, fmt.Sprintf("%s[%d]", p.LineItems.Field, i))
			continue
		}
		for _, ref := range p.LineItems.Refs {
			if ir.IsEmpty(obj[ref]) {
				missing = append(missing, fmt.Sprintf("%s[%d].%s", p.LineItems.Field, i, ref))
			}
		}
	}
	return missing
}

// Complete returns the "looks complete" predicate for a form instance.
func (p *Profile) Complete(existing bool) func(ir.IRObject) bool {
	return func(snap ir.IRObject) bool {
		return len(p.Missing(snap, existing)) == 0
	}
}

// Set is a collection of profiles keyed by name.
type Set map[string]*Profile

// Get returns the named profile.
func (s Set) Get(name string) (*Profile, error) {
	p, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("profile %q not defined", name)
	}
	return p, nil
}
