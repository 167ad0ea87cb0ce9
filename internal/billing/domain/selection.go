package domain

import (
	"sort"
	"strings"
)

// Selection is a set of bundle ids kept sorted and free of duplicates, so
// two selections with the same members compare equal regardless of input
// order.
type Selection []string

// NewSelection normalizes ids into a Selection.
func NewSelection(ids ...string) Selection {
	seen := make(map[string]struct{}, len(ids))
	out := make(Selection, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ParseSelection reads a comma separated list.
func ParseSelection(csv string) Selection {
	if csv == "" {
		return Selection{}
	}
	return NewSelection(strings.Split(csv, ",")...)
}

func (s Selection) Len() int { return len(s) }

// Equal reports whether both selections hold the same ids.
func (s Selection) Equal(other Selection) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// String joins the ids with commas.
func (s Selection) String() string {
	return strings.Join(s, ",")
}

// Set returns a lookup set of the ids.
func (s Selection) Set() map[string]struct{} {
	set := make(map[string]struct{}, len(s))
	for _, id := range s {
		set[id] = struct{}{}
	}
	return set
}
