// Package schedule implements backy's tag-based retention engine
// (spec.md §4.5): due-tag computation, expiry and SLA overdue checks.
package schedule

import (
	"sort"
	"strings"
	"time"

	"github.com/flyingcircusio/backy/internal/revision"
)

// TagPolicy is one entry of a schedule: how often a tag is due and how
// many tagged revisions to retain.
type TagPolicy struct {
	Interval time.Duration
	Keep     int
}

// Schedule is the declarative tag -> {interval, keep} mapping from
// spec.md §3. Iteration order matters for Due/NextDue determinism, so
// the ordered tag list is kept alongside the map.
type Schedule struct {
	order    []string
	policies map[string]TagPolicy
}

// New builds a Schedule from an ordered list of (tag, policy) pairs.
func New(order []string, policies map[string]TagPolicy) *Schedule {
	return &Schedule{order: append([]string(nil), order...), policies: policies}
}

// Tags returns the schedule's tags in declaration order.
func (s *Schedule) Tags() []string { return s.order }

// Policy returns the policy for tag, and whether it exists.
func (s *Schedule) Policy(tag string) (TagPolicy, bool) {
	p, ok := s.policies[tag]
	return p, ok
}

// isManual reports whether a tag is a manual, never-expired tag
// (spec.md §4.5: tags with prefix "manual:").
func isManual(tag string) bool {
	return strings.HasPrefix(tag, "manual:")
}

// dueAt returns the time tag t next fires, given the newest revision
// currently bearing it (nil if none).
func (s *Schedule) dueAt(tag string, newest *revision.Revision) time.Time {
	p := s.policies[tag]
	if newest == nil {
		return time.Time{} // due immediately
	}
	return newest.Timestamp.Add(p.Interval)
}

// NextDue returns the earliest fire time across all tags, given the
// repository's history.
func (s *Schedule) NextDue(h revision.History) time.Time {
	var earliest time.Time
	for i, tag := range s.order {
		due := s.dueAt(tag, h.NewestTagged(tag))
		if i == 0 || due.Before(earliest) {
			earliest = due
		}
	}
	return earliest
}

// DueTags returns the tags whose fire time is at or before now.
func (s *Schedule) DueTags(h revision.History, now time.Time) []string {
	var due []string
	for _, tag := range s.order {
		fire := s.dueAt(tag, h.NewestTagged(tag))
		if !fire.After(now) {
			due = append(due, tag)
		}
	}
	return due
}

// Overdue returns the tags that are SLA-overdue: now is more than
// 1.5x their interval past the newest revision bearing them (spec.md
// §4.5).
func (s *Schedule) Overdue(h revision.History, now time.Time) []string {
	var overdue []string
	for _, tag := range s.order {
		p := s.policies[tag]
		newest := h.NewestTagged(tag)
		if newest == nil {
			overdue = append(overdue, tag)
			continue
		}
		threshold := time.Duration(float64(p.Interval) * 1.5)
		if now.After(newest.Timestamp.Add(threshold)) {
			overdue = append(overdue, tag)
		}
	}
	return overdue
}

// Expire enforces each tag's keep count: for every tag, the keep most
// recent revisions bearing it retain the tag; older ones lose it.
// "manual:"-prefixed tags are never expired. A revision whose tag set
// becomes empty is returned for the caller to forget (spec.md §4.5).
func (s *Schedule) Expire(h revision.History) (removed revision.History, err error) {
	completed := h.Completed()
	dirty := make(map[string]bool)

	for _, tag := range s.order {
		if isManual(tag) {
			continue
		}
		p := s.policies[tag]
		tagged := make(revision.History, 0)
		for _, rev := range completed {
			if rev.HasTag(tag) {
				tagged = append(tagged, rev)
			}
		}
		sort.Slice(tagged, func(i, j int) bool { return tagged[i].Timestamp.After(tagged[j].Timestamp) })
		for i, rev := range tagged {
			if i >= p.Keep {
				rev.RemoveTag(tag)
				dirty[rev.UUID] = true
			}
		}
	}

	for _, rev := range completed {
		if dirty[rev.UUID] {
			if err := rev.SaveTags(); err != nil {
				return nil, err
			}
		}
		if len(rev.Tags) == 0 {
			removed = append(removed, rev)
		}
	}

	return removed, nil
}
