// Package rules resolves the effective severity of issues from per
// descriptor overrides.
package rules

import (
	"encoding/json"
	"sync"

	"github.com/panbanda/auger/pkg/descriptor"
	"github.com/panbanda/auger/pkg/models"
)

// Rule overrides the severity of a descriptor. An empty Filter applies to
// every context; otherwise it must equal the issue context exactly.
type Rule struct {
	ID       string          `json:"id" koanf:"id" toml:"id" yaml:"id"`
	Filter   string          `json:"filter,omitempty" koanf:"filter" toml:"filter,omitempty" yaml:"filter,omitempty"`
	Severity models.Severity `json:"severity" koanf:"severity" toml:"severity" yaml:"severity"`
}

// Set holds at most one rule per (id, filter) pair. It is safe for
// concurrent use.
type Set struct {
	mu    sync.Mutex
	rules []Rule
}

// NewSet builds a set from rules, applying Add to each in order.
func NewSet(rules ...Rule) *Set {
	s := &Set{}
	for _, r := range rules {
		s.Add(r)
	}
	return s
}

// Add inserts a rule. A rule without filter is canonical for its id and
// replaces every other rule for that id.
func (s *Set) Add(r Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Filter == "" {
		s.removeLocked(func(x Rule) bool { return x.ID == r.ID })
		s.rules = append(s.rules, r)
		return
	}
	s.upsertLocked(r)
}

// SetRule updates the rule for (id, filter) in place or appends it.
func (s *Set) SetRule(r Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertLocked(r)
}

func (s *Set) upsertLocked(r Rule) {
	for i := range s.rules {
		if s.rules[i].ID == r.ID && s.rules[i].Filter == r.Filter {
			s.rules[i].Severity = r.Severity
			return
		}
	}
	s.rules = append(s.rules, r)
}

// Get returns the rule for the exact (id, filter) pair.
func (s *Set) Get(id, filter string) (Rule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(id, filter)
}

func (s *Set) getLocked(id, filter string) (Rule, bool) {
	for _, r := range s.rules {
		if r.ID == id && r.Filter == filter {
			return r, true
		}
	}
	return Rule{}, false
}

// Clear removes the rule for (id, filter), if any.
func (s *Set) Clear(id, filter string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(func(x Rule) bool { return x.ID == id && x.Filter == filter })
}

// ClearAll removes every rule for id.
func (s *Set) ClearAll(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(func(x Rule) bool { return x.ID == id })
}

func (s *Set) removeLocked(match func(Rule) bool) {
	kept := s.rules[:0]
	for _, r := range s.rules {
		if !match(r) {
			kept = append(kept, r)
		}
	}
	clear(s.rules[len(kept):])
	s.rules = kept
}

// List returns a copy of the rules in insertion order.
func (s *Set) List() []Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Rule(nil), s.rules...)
}

// Len returns the number of rules.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rules)
}

// Clone returns an independent copy.
func (s *Set) Clone() *Set {
	return &Set{rules: s.List()}
}

// lookup applies the rule fallback order: exact context, then the
// filter-less rule.
func (s *Set) lookup(id, context string) (models.Severity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if context != "" {
		if r, ok := s.getLocked(id, context); ok {
			return r.Severity, true
		}
	}
	if r, ok := s.getLocked(id, ""); ok {
		return r.Severity, true
	}
	return models.SeverityDefault, false
}

// MarshalJSON writes the rule list.
func (s *Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.List())
}

// UnmarshalJSON rebuilds the set from a rule list.
func (s *Set) UnmarshalJSON(data []byte) error {
	var list []Rule
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	rebuilt := NewSet(list...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = rebuilt.rules
	return nil
}

// Resolver combines rules with descriptor defaults.
type Resolver struct {
	Rules   *Set
	Catalog *descriptor.Catalog
}

// Severity returns the severity for a descriptor in a context: a rule for
// the exact context, else the filter-less rule, else the descriptor
// default. Unknown descriptors without rules resolve to the default
// severity value.
func (r Resolver) Severity(id, context string) models.Severity {
	if r.Rules != nil {
		if sev, ok := r.Rules.lookup(id, context); ok {
			return sev
		}
	}
	if r.Catalog != nil {
		if d, ok := r.Catalog.Get(id); ok {
			return d.DefaultSeverity
		}
	}
	return models.SeverityDefault
}

// Effective returns the severity an issue is displayed with. Rules win,
// then the issue's own severity, then the descriptor default.
func (r Resolver) Effective(issue *models.Issue) models.Severity {
	if !issue.IsIssue() {
		return issue.Severity
	}
	if r.Rules != nil {
		if sev, ok := r.Rules.lookup(issue.DescriptorID, issue.Context()); ok {
			return sev
		}
	}
	if !issue.Severity.IsDefault() {
		return issue.Severity
	}
	return r.Severity(issue.DescriptorID, "")
}
