package revision

import (
	"fmt"
	"sort"
)

// History is a repository's revisions, used to resolve the selection
// grammar from spec.md §4.2 and to compute each revision's parent.
type History []*Revision

// Completed reports whether the revision finished successfully (duration
// is set once a backup completes; spec.md §3).
func (r *Revision) Completed() bool {
	return r.Duration > 0
}

// SortByTimestamp returns the history sorted ascending by timestamp,
// which is how backy computes each revision's parent (spec.md §9: "the
// parent link is computed by sorting by timestamp").
func (h History) SortByTimestamp() History {
	out := append(History(nil), h...)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// Completed returns only the completed revisions, oldest first.
func (h History) Completed() History {
	sorted := h.SortByTimestamp()
	out := make(History, 0, len(sorted))
	for _, r := range sorted {
		if r.Completed() {
			out = append(out, r)
		}
	}
	return out
}

// Newest returns the newest completed revision, or nil if there is none.
func (h History) Newest() *Revision {
	c := h.Completed()
	if len(c) == 0 {
		return nil
	}
	return c[len(c)-1]
}

// Parent returns the revision immediately preceding r by timestamp among
// completed revisions, or nil if r is the oldest (or not completed yet).
func (h History) Parent(r *Revision) *Revision {
	c := h.Completed()
	var prev *Revision
	for _, rev := range c {
		if rev.UUID == r.UUID {
			return prev
		}
		prev = rev
	}
	return nil
}

// NewestTagged returns the newest completed revision carrying tag, or nil.
func (h History) NewestTagged(tag string) *Revision {
	c := h.Completed()
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].HasTag(tag) {
			return c[i]
		}
	}
	return nil
}

// ErrNoMatch is returned by Select when no revision matches spec.
var ErrNoMatch = fmt.Errorf("revision: no matching revision")

// Select resolves the revision selection grammar from spec.md §4.2:
// full uuid; a non-negative integer N (0 = newest completed); the
// literal "latest"/"last"; a tag (newest revision bearing it); or "all",
// which this single-result form never matches (use SelectAll for it).
func (h History) Select(spec string) (*Revision, error) {
	if spec == "all" {
		return nil, fmt.Errorf("revision: %q selects multiple revisions, use SelectAll", spec)
	}
	if spec == "latest" || spec == "last" {
		if r := h.Newest(); r != nil {
			return r, nil
		}
		return nil, ErrNoMatch
	}
	if n, ok := parseNonNegativeInt(spec); ok {
		c := h.Completed()
		idx := len(c) - 1 - n
		if idx < 0 || idx >= len(c) {
			return nil, ErrNoMatch
		}
		return c[idx], nil
	}
	for _, r := range h {
		if r.UUID == spec {
			return r, nil
		}
	}
	if r := h.NewestTagged(spec); r != nil {
		return r, nil
	}
	return nil, ErrNoMatch
}

// SelectAll resolves spec to every matching revision: "all" returns every
// completed revision, newest first; anything else delegates to Select.
func (h History) SelectAll(spec string) (History, error) {
	if spec == "all" {
		c := h.Completed()
		out := make(History, len(c))
		for i, r := range c {
			out[len(c)-1-i] = r
		}
		return out, nil
	}
	r, err := h.Select(spec)
	if err != nil {
		return nil, err
	}
	return History{r}, nil
}

func parseNonNegativeInt(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
