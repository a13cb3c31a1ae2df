package catalog

import (
	"reflect"
	"testing"
)

func mk(ids ...string) []Model {
	out := make([]Model, 0, len(ids))
	for _, id := range ids {
		out = append(out, Model{ID: id, Name: "Name of " + id})
	}
	return out
}

func ids(models []Model) []string {
	out := make([]string, 0, len(models))
	for _, m := range models {
		out = append(out, m.ID)
	}
	return out
}

func TestDiffAddedAndRemoved(t *testing.T) {
	prev := mk("a", "b", "c")
	cur := mk("b", "c", "d")

	r := Diff("src", prev, cur)
	if r.Source != "src" {
		t.Fatalf("source = %q", r.Source)
	}
	if got := ids(r.Added); !reflect.DeepEqual(got, []string{"d"}) {
		t.Fatalf("added = %v", got)
	}
	if got := ids(r.Removed); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("removed = %v", got)
	}
}

func TestDiffIdenticalSetsEmpty(t *testing.T) {
	prev := mk("a", "b")
	// Same ids, reordered and renamed: identity is id-based, renames silent.
	cur := []Model{
		{ID: "b", Name: "renamed b"},
		{ID: "a", Name: "renamed a"},
	}
	r := Diff("src", prev, cur)
	if !r.Empty() {
		t.Fatalf("expected empty report, got added=%v removed=%v", ids(r.Added), ids(r.Removed))
	}
}

func TestDiffOrderPreserved(t *testing.T) {
	prev := mk("x", "a", "y", "b", "z")
	cur := mk("n1", "a", "n2", "b", "n3")

	r := Diff("src", prev, cur)
	// Added keep current-fetch order, removed keep previous-snapshot order.
	if got := ids(r.Added); !reflect.DeepEqual(got, []string{"n1", "n2", "n3"}) {
		t.Fatalf("added = %v", got)
	}
	if got := ids(r.Removed); !reflect.DeepEqual(got, []string{"x", "y", "z"}) {
		t.Fatalf("removed = %v", got)
	}
}

func TestDiffFromEmptyPrevious(t *testing.T) {
	r := Diff("src", nil, mk("a", "b"))
	if len(r.Added) != 2 || len(r.Removed) != 0 {
		t.Fatalf("added=%d removed=%d", len(r.Added), len(r.Removed))
	}
}

func TestDiffDuplicateIDsReportedOnce(t *testing.T) {
	cur := []Model{{ID: "a"}, {ID: "a"}, {ID: "b"}}
	r := Diff("src", nil, cur)
	if got := ids(r.Added); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("added = %v", got)
	}
}

func TestWithTagsLookupPrecedence(t *testing.T) {
	tags := Tags{
		"model-1":    "by id",
		"fancy name": "by folded name",
		"Model-2":    "by folded id",
	}

	cases := []struct {
		name  string
		model Model
		want  string
	}{
		{"id exact wins", Model{ID: "model-1", Name: "Fancy Name"}, "by id"},
		{"id case-insensitive", Model{ID: "model-2", Name: "whatever"}, "by folded id"},
		{"name fallback", Model{ID: "unknown", Name: "Fancy Name"}, "by folded name"},
		{"no match", Model{ID: "nope", Name: "nope"}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tags.Lookup(tc.model); got != tc.want {
				t.Fatalf("Lookup(%+v) = %q; want %q", tc.model, got, tc.want)
			}
		})
	}
}

func TestWithTagsAttachesWithoutMutatingInput(t *testing.T) {
	added := mk("a", "b")
	r := ChangeReport{Source: "src", Added: added, Removed: mk("c")}
	tags := Tags{"a": "keeper", "Name of c": "gone"}

	tagged := r.WithTags(tags)
	if tagged.Added[0].Tag != "keeper" {
		t.Fatalf("added[0].Tag = %q", tagged.Added[0].Tag)
	}
	if tagged.Added[1].Tag != "" {
		t.Fatalf("added[1].Tag = %q", tagged.Added[1].Tag)
	}
	if tagged.Removed[0].Tag != "gone" {
		t.Fatalf("removed[0].Tag = %q", tagged.Removed[0].Tag)
	}
	// Input slices stay untouched.
	if added[0].Tag != "" {
		t.Fatalf("input mutated: %+v", added[0])
	}
}
