// Package catalog holds the canonical model types and the set-diff core:
// normalizing raw catalog payloads into (id, name) records and computing
// stable additions/removals against a previously observed snapshot.
package catalog

import "strings"

// Model is one entry of a remote catalog in canonical form.
//
// Identity is ID only. Name and Tag may change between polls without the
// model counting as added or removed.
type Model struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Tag  string `json:"tag,omitempty"`
}

// ChangeReport lists the membership changes of one polling cycle of one
// source. Added follows the order of the fetched catalog; Removed follows
// the insertion order of the prior snapshot.
type ChangeReport struct {
	Source  string
	Added   []Model
	Removed []Model
}

// Empty reports whether the cycle produced no membership change.
// Empty reports must never be delivered downstream.
func (r ChangeReport) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0
}

// Tags maps a model id or display name to operator-assigned tag text.
//
// The table lives outside snapshots so a tag survives a model's
// remove/re-add cycle.
type Tags map[string]string

// Lookup resolves the tag for a model: id first, then display name.
// Within each key, an exact match wins over a case-folded one.
func (t Tags) Lookup(m Model) string {
	if len(t) == 0 {
		return ""
	}
	if v := t.get(m.ID); v != "" {
		return v
	}
	return t.get(m.Name)
}

func (t Tags) get(key string) string {
	if key == "" {
		return ""
	}
	if v, ok := t[key]; ok {
		return v
	}
	for k, v := range t {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
