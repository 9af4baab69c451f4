package core

// Results holds the matches of the last search for one session. Stored refs
// are never patched: they are re-checked against the store each time they
// are read and discarded wholesale after any mutation or reload.
type Results struct {
	generation string
	terms      []string
	refs       []MatchRef
}

// ValidatedResults is the live subset of the held matches.
type ValidatedResults struct {
	Terms []string   `json:"terms"`
	Refs  []MatchRef `json:"matches"`
	// Stale is set when matches were held but none survived validation.
	// The holder has been discarded and the caller should search again.
	Stale bool `json:"stale"`
}

// Set replaces the held matches with the output of a search run against the
// given store generation.
func (r *Results) Set(generation string, terms []string, refs []MatchRef) {
	r.generation = generation
	r.terms = append([]string(nil), terms...)
	r.refs = append([]MatchRef(nil), refs...)
}

// Discard drops every held match.
func (r *Results) Discard() {
	r.generation = ""
	r.terms = nil
	r.refs = nil
}

// Empty reports whether nothing is held.
func (r *Results) Empty() bool { return len(r.refs) == 0 }

// Validate returns the held refs that still point at live rows. A ref from
// another generation is never valid.
func (r *Results) Validate(store *Store) ValidatedResults {
	if len(r.refs) == 0 {
		return ValidatedResults{Terms: r.terms}
	}

	gen := store.Generation()
	live := make([]MatchRef, 0, len(r.refs))
	for _, ref := range r.refs {
		if r.generation == gen && refIsLive(store, ref) {
			live = append(live, ref)
		}
	}
	if len(live) == 0 {
		r.Discard()
		return ValidatedResults{Stale: true}
	}
	return ValidatedResults{Terms: r.terms, Refs: live}
}

// Filter returns the subset of targets that are both held and live. It is
// used to check client-supplied refs before a mutation.
func (r *Results) Filter(store *Store, targets []RowTarget) []RowTarget {
	v := r.Validate(store)
	held := make(map[RowTarget]struct{}, len(v.Refs))
	for _, ref := range v.Refs {
		held[RowTarget{Table: ref.Table, RowID: ref.RowID}] = struct{}{}
	}
	var out []RowTarget
	seen := make(map[RowTarget]struct{}, len(targets))
	for _, t := range targets {
		if _, ok := held[t]; !ok {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func refIsLive(store *Store, ref MatchRef) bool {
	t, err := store.Get(ref.Table)
	if err != nil {
		return false
	}
	return t.Has(ref.RowID)
}
