// Package report aggregates the issues of one analysis session.
//
// A Report is safe for concurrent use: every collection operation takes a
// single mutex for its own duration, and read accessors return copies.
package report

import (
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/panbanda/auger/pkg/descriptor"
	"github.com/panbanda/auger/pkg/models"
	"github.com/panbanda/auger/pkg/params"
	"github.com/panbanda/auger/pkg/rules"
)

// Outcome is the result of running one analyzer module.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailure   Outcome = "failure"
	OutcomeCancelled Outcome = "cancelled"
)

// ModuleInfo records one analyzer module run.
type ModuleInfo struct {
	Name       string            `json:"name"`
	Categories []models.Category `json:"categories"`
	StartTime  time.Time         `json:"start_time"`
	EndTime    time.Time         `json:"end_time"`
	Outcome    Outcome           `json:"outcome"`
	Error      string            `json:"error,omitempty"`
}

// Duration returns how long the module ran.
func (m ModuleInfo) Duration() time.Duration {
	return m.EndTime.Sub(m.StartTime)
}

// Session describes the environment a report was produced in.
type Session struct {
	ToolVersion    string          `json:"tool_version"`
	Hostname       string          `json:"hostname,omitempty"`
	OS             string          `json:"os"`
	Arch           string          `json:"arch"`
	Platform       models.Platform `json:"platform,omitempty"`
	RuntimeVersion string          `json:"runtime_version,omitempty"`
	Revision       string          `json:"revision,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Report is the aggregated, queryable result of an analysis session.
type Report struct {
	mu      sync.Mutex
	session Session
	issues  []*models.Issue
	modules []ModuleInfo

	catalog *descriptor.Catalog
	params  *params.Store
	rules   *rules.Set
}

// Option configures a Report.
type Option func(*Report)

// WithSession sets the session metadata.
func WithSession(s Session) Option {
	return func(r *Report) {
		r.session = s
	}
}

// WithCatalog sets the descriptors the report embeds and resolves
// severities against.
func WithCatalog(c *descriptor.Catalog) Option {
	return func(r *Report) {
		r.catalog = c
	}
}

// WithParams sets the parameter store snapshot saved with the report.
func WithParams(p *params.Store) Option {
	return func(r *Report) {
		r.params = p
	}
}

// WithRules sets the severity rules used for effective severities.
func WithRules(s *rules.Set) Option {
	return func(r *Report) {
		r.rules = s
	}
}

// New creates an empty report.
func New(opts ...Option) *Report {
	r := &Report{
		catalog: descriptor.NewCatalog(),
		params:  params.New(),
		rules:   rules.NewSet(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Session returns the session metadata.
func (r *Report) Session() Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// Catalog returns the embedded descriptor catalog.
func (r *Report) Catalog() *descriptor.Catalog {
	return r.catalog
}

// Params returns the parameter store.
func (r *Report) Params() *params.Store {
	return r.params
}

// Rules returns the severity rules.
func (r *Report) Rules() *rules.Set {
	return r.rules
}

// Descriptors returns the embedded descriptors sorted by id.
func (r *Report) Descriptors() []*descriptor.Descriptor {
	return r.catalog.List()
}

// AddIssues appends issues. Safe to call from several analyzers at once.
func (r *Report) AddIssues(batch ...*models.Issue) {
	if len(batch) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issues = append(r.issues, batch...)
}

// Add implements the analyzer sink.
func (r *Report) Add(issues ...*models.Issue) {
	r.AddIssues(issues...)
}

// AllIssues returns copies of every issue. The report's own issues change
// only through MarkFixed.
func (r *Report) AllIssues() []*models.Issue {
	return r.filter(func(*models.Issue) bool { return true })
}

// FindByCategory returns the issues of a category.
func (r *Report) FindByCategory(c models.Category) []*models.Issue {
	return r.filter(func(i *models.Issue) bool { return i.Category == c })
}

// FindByDescriptorID returns the issues raised for a descriptor.
func (r *Report) FindByDescriptorID(id string) []*models.Issue {
	return r.filter(func(i *models.Issue) bool { return i.DescriptorID == id })
}

func (r *Report) filter(keep func(*models.Issue) bool) []*models.Issue {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Issue
	for _, i := range r.issues {
		if keep(i) {
			c := *i
			out = append(out, &c)
		}
	}
	return out
}

// NumIssues returns the number of issues in a category.
func (r *Report) NumIssues(c models.Category) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, i := range r.issues {
		if i.Category == c {
			n++
		}
	}
	return n
}

// NumTotalIssues returns the number of issues in every category.
func (r *Report) NumTotalIssues() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.issues)
}

// ClearIssues removes the issues of a category and forgets that the
// category was analyzed, ready for re-analysis.
func (r *Report) ClearIssues(c models.Category) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.issues = slices.DeleteFunc(r.issues, func(i *models.Issue) bool { return i.Category == c })

	modules := r.modules[:0]
	for _, m := range r.modules {
		m.Categories = slices.DeleteFunc(slices.Clone(m.Categories), func(x models.Category) bool { return x == c })
		if len(m.Categories) > 0 {
			modules = append(modules, m)
		}
	}
	clear(r.modules[len(modules):])
	r.modules = modules
}

// MarkFixed flags an issue of this report as fixed. issue may be the
// report's own issue or a copy returned by a query; the copy is flagged too.
func (r *Report) MarkFixed(issue *models.Issue) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	var match *models.Issue
	for _, i := range r.issues {
		if i == issue {
			match = i
			break
		}
		if (match == nil || match.Fixed) && sameFinding(i, issue) {
			match = i
		}
	}
	if match == nil {
		return false
	}
	match.Fixed = true
	issue.Fixed = true
	return true
}

func sameFinding(a, b *models.Issue) bool {
	if a.Category != b.Category || a.DescriptorID != b.DescriptorID || a.Description != b.Description {
		return false
	}
	if (a.Location == nil) != (b.Location == nil) || (a.Location != nil && *a.Location != *b.Location) {
		return false
	}
	return a.Dependencies == b.Dependencies || a.Context() == b.Context()
}

// RecordModuleInfo records the outcome of an analyzer module run.
func (r *Report) RecordModuleInfo(info ModuleInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info.Categories = slices.Clone(info.Categories)
	r.modules = append(r.modules, info)
}

// Modules returns the recorded module runs.
func (r *Report) Modules() []ModuleInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ModuleInfo, len(r.modules))
	for i, m := range r.modules {
		m.Categories = slices.Clone(m.Categories)
		out[i] = m
	}
	return out
}

// HasCategory reports whether any module analyzed the category.
func (r *Report) HasCategory(c models.Category) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.modules {
		if slices.Contains(m.Categories, c) {
			return true
		}
	}
	return false
}

// Categories returns the analyzed categories, sorted.
func (r *Report) Categories() []models.Category {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Category
	for _, m := range r.modules {
		for _, c := range m.Categories {
			if !slices.Contains(out, c) {
				out = append(out, c)
			}
		}
	}
	slices.Sort(out)
	return out
}

// IsValid reports whether the report is complete: every issue has a
// description and no module run was cancelled.
func (r *Report) IsValid() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.issues {
		if i == nil || i.Description == "" {
			return false
		}
	}
	for _, m := range r.modules {
		if m.Outcome == OutcomeCancelled {
			return false
		}
	}
	return true
}

// Resolver returns the severity resolver for this report.
func (r *Report) Resolver() rules.Resolver {
	return rules.Resolver{Rules: r.rules, Catalog: r.catalog}
}

// EffectiveSeverity returns the severity the issue is displayed with.
func (r *Report) EffectiveSeverity(issue *models.Issue) models.Severity {
	return r.Resolver().Effective(issue)
}

// Summary counts issues.
type Summary struct {
	Total      int                     `json:"total"`
	Fixed      int                     `json:"fixed"`
	ByCategory map[models.Category]int `json:"by_category"`
	BySeverity map[models.Severity]int `json:"by_severity"`
	Failures   int                     `json:"failures"`
	Cancelled  int                     `json:"cancelled"`
}

// Summary counts issues by category and effective severity. Muted and
// hidden issues are counted in Total but not in BySeverity.
func (r *Report) Summary() Summary {
	issues := r.AllIssues()
	resolver := r.Resolver()
	s := Summary{
		Total:      len(issues),
		ByCategory: make(map[models.Category]int),
		BySeverity: make(map[models.Severity]int),
	}
	for _, i := range issues {
		s.ByCategory[i.Category]++
		if i.Fixed {
			s.Fixed++
		}
		if sev := resolver.Effective(i); sev.IsCounted() {
			s.BySeverity[sev]++
		}
	}
	for _, m := range r.Modules() {
		switch m.Outcome {
		case OutcomeFailure:
			s.Failures++
		case OutcomeCancelled:
			s.Cancelled++
		}
	}
	return s
}

// SortedIssues returns a snapshot ordered by effective severity (most
// severe first), then location, then description. Used for display only.
func (r *Report) SortedIssues(issues []*models.Issue) []*models.Issue {
	resolver := r.Resolver()
	out := slices.Clone(issues)
	sort.SliceStable(out, func(a, b int) bool {
		ra, rb := resolver.Effective(out[a]).Rank(), resolver.Effective(out[b]).Rank()
		if ra != rb {
			return ra > rb
		}
		la, lb := out[a].Location.String(), out[b].Location.String()
		if la != lb {
			return la < lb
		}
		return out[a].Description < out[b].Description
	})
	return out
}
