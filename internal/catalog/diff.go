package catalog

// Diff compares the previously persisted model set of a source against a
// freshly fetched one.
//
// Membership is id-based: a model whose id persists but whose display name
// changed is not reported (rename noise is deliberately silent). Added keeps
// the order models were encountered in current; Removed keeps the order they
// existed in previous.
func Diff(source string, previous, current []Model) ChangeReport {
	report := ChangeReport{Source: source}

	prevIDs := make(map[string]struct{}, len(previous))
	for _, m := range previous {
		prevIDs[m.ID] = struct{}{}
	}
	curIDs := make(map[string]struct{}, len(current))
	for _, m := range current {
		curIDs[m.ID] = struct{}{}
	}

	// Feeds occasionally repeat an id; report each membership change once.
	reported := map[string]struct{}{}
	for _, m := range current {
		if _, ok := prevIDs[m.ID]; ok {
			continue
		}
		if _, dup := reported[m.ID]; dup {
			continue
		}
		reported[m.ID] = struct{}{}
		report.Added = append(report.Added, m)
	}
	reported = map[string]struct{}{}
	for _, m := range previous {
		if _, ok := curIDs[m.ID]; ok {
			continue
		}
		if _, dup := reported[m.ID]; dup {
			continue
		}
		reported[m.ID] = struct{}{}
		report.Removed = append(report.Removed, m)
	}
	return report
}

// WithTags returns a copy of the report with each entry's Tag filled from
// the assignment table (id takes precedence over display name). Entries
// without a matching assignment keep an empty Tag.
func (r ChangeReport) WithTags(tags Tags) ChangeReport {
	if len(tags) == 0 {
		return r
	}
	out := ChangeReport{Source: r.Source}
	out.Added = attachTags(r.Added, tags)
	out.Removed = attachTags(r.Removed, tags)
	return out
}

func attachTags(models []Model, tags Tags) []Model {
	if len(models) == 0 {
		return nil
	}
	out := make([]Model, len(models))
	for i, m := range models {
		m.Tag = tags.Lookup(m)
		out[i] = m
	}
	return out
}
