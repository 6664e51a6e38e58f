// Package filter implements the fixed REQ filter shape: conjunctions of
// optional constraints combined by disjunction into a FilterGroup, matched
// directly against a nostr.PackedEvent without JSON reparsing.
package filter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nostrhub/nostrhub/internal/relay/nostr"
)

// Filter conjoins optional constraints; a present (non-nil/non-empty) field
// must hold for a match. Absent fields impose no constraint.
type Filter struct {
	IDs     []string            `json:"ids,omitempty"`
	Authors []string            `json:"authors,omitempty"`
	Kinds   []int               `json:"kinds,omitempty"`
	Tags    map[string][]string `json:"-"`
	Since   *int64              `json:"since,omitempty"`
	Until   *int64              `json:"until,omitempty"`
	Limit   *int                `json:"limit,omitempty"`
}

// UnmarshalJSON decodes a filter object, pulling "#<letter>" keys into Tags.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	type plain struct {
		IDs     []string `json:"ids,omitempty"`
		Authors []string `json:"authors,omitempty"`
		Kinds   []int    `json:"kinds,omitempty"`
		Since   *int64   `json:"since,omitempty"`
		Until   *int64   `json:"until,omitempty"`
		Limit   *int     `json:"limit,omitempty"`
	}
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	f.IDs, f.Authors, f.Kinds, f.Since, f.Until, f.Limit = p.IDs, p.Authors, p.Kinds, p.Since, p.Until, p.Limit

	for k, v := range raw {
		if !strings.HasPrefix(k, "#") || len(k) != 2 {
			continue
		}
		letter := k[1:]
		var values []string
		if err := json.Unmarshal(v, &values); err != nil {
			return fmt.Errorf("tag filter %q: %w", k, err)
		}
		if f.Tags == nil {
			f.Tags = map[string][]string{}
		}
		f.Tags[letter] = values
	}
	return nil
}

// MarshalJSON re-encodes the filter, including "#<letter>" tag keys.
func (f *Filter) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{}
	if len(f.IDs) > 0 {
		out["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		out["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		out["kinds"] = f.Kinds
	}
	if f.Since != nil {
		out["since"] = *f.Since
	}
	if f.Until != nil {
		out["until"] = *f.Until
	}
	if f.Limit != nil {
		out["limit"] = *f.Limit
	}
	for letter, values := range f.Tags {
		out["#"+letter] = values
	}
	return json.Marshal(out)
}

// StripTimeBounds clears Since/Until, used by the negentropy handler per
// spec.md §4.7 (the reconciliation protocol owns its own time bounds).
func (f *Filter) StripTimeBounds() {
	f.Since = nil
	f.Until = nil
}

func hasPrefix(candidates []string, full string) bool {
	for _, c := range candidates {
		if strings.HasPrefix(full, c) {
			return true
		}
	}
	return false
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// Match reports whether p satisfies every present constraint in f.
func (f *Filter) Match(p *nostr.PackedEvent) bool {
	if len(f.IDs) > 0 && !hasPrefix(f.IDs, p.IDHex()) {
		return false
	}
	if len(f.Authors) > 0 && !hasPrefix(f.Authors, p.PubkeyHex()) {
		return false
	}
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, int(p.Kind)) {
		return false
	}
	if f.Since != nil && p.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && p.CreatedAt > *f.Until {
		return false
	}
	for letter, values := range f.Tags {
		if !matchAnyTagValue(p, letter, values) {
			return false
		}
	}
	return true
}

func matchAnyTagValue(p *nostr.PackedEvent, letter string, values []string) bool {
	found := false
	p.WalkTags(func(l, v string) bool {
		if l != letter {
			return true
		}
		for _, want := range values {
			if v == want {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// AccessPath names the secondary index a Filter is best evaluated against,
// chosen per spec.md §4.5's priority: tag > author > kind > created_at.
type AccessPath struct {
	Kind   AccessPathKind
	Letter string // set only when Kind == AccessPathTag
}

// AccessPathKind enumerates the available secondary indices.
type AccessPathKind int

const (
	AccessPathCreatedAt AccessPathKind = iota
	AccessPathAuthor
	AccessPathKindIndex
	AccessPathTag
)

// ChooseAccessPath implements the priority order from spec.md §4.5.
func (f *Filter) ChooseAccessPath() AccessPath {
	for letter := range f.Tags {
		return AccessPath{Kind: AccessPathTag, Letter: letter}
	}
	if len(f.Authors) > 0 {
		return AccessPath{Kind: AccessPathAuthor}
	}
	if len(f.Kinds) > 0 {
		return AccessPath{Kind: AccessPathKindIndex}
	}
	return AccessPath{Kind: AccessPathCreatedAt}
}

// Group is a disjunction of filters: a packed event matches the group iff
// it matches any one filter.
type Group []Filter

// Match reports whether p matches at least one filter in the group.
func (g Group) Match(p *nostr.PackedEvent) bool {
	for i := range g {
		if g[i].Match(p) {
			return true
		}
	}
	return false
}

// StripTimeBounds clears Since/Until on every filter in the group.
func (g Group) StripTimeBounds() {
	for i := range g {
		g[i].StripTimeBounds()
	}
}
