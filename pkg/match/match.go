// Package match decides whether a decoded instruction corresponds to a
// registered descriptor.
package match

import (
	"log/slog"

	"github.com/panbanda/auger/pkg/bytecode"
	"github.com/panbanda/auger/pkg/descriptor"
	"github.com/panbanda/auger/pkg/models"
	"github.com/panbanda/auger/pkg/scan"
)

type memberKey struct {
	typeName string
	member   string
}

// Matcher indexes the applicable descriptors of a catalog for fast
// per-instruction lookup. It is read-only after New and safe for
// concurrent use.
type Matcher struct {
	category  models.Category
	exact     map[memberKey]*descriptor.Descriptor
	wildcards map[string]*descriptor.Descriptor
	opcodes   map[bytecode.OpCode][]*descriptor.Descriptor
	logger    *slog.Logger

	platform models.Platform
	version  string
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithPlatform only indexes descriptors applicable to platform.
func WithPlatform(p models.Platform) Option {
	return func(m *Matcher) {
		m.platform = p
	}
}

// WithRuntimeVersion only indexes descriptors applicable to version.
func WithRuntimeVersion(v string) Option {
	return func(m *Matcher) {
		m.version = v
	}
}

// WithCategory sets the category of produced issues. Defaults to code.
func WithCategory(c models.Category) Option {
	return func(m *Matcher) {
		m.category = c
	}
}

// WithLogger sets the logger used for formatting failures.
func WithLogger(l *slog.Logger) Option {
	return func(m *Matcher) {
		m.logger = l
	}
}

// New builds a matcher over the descriptors of catalog that carry
// matching criteria.
func New(catalog *descriptor.Catalog, opts ...Option) *Matcher {
	m := &Matcher{
		category:  models.CategoryCode,
		exact:     make(map[memberKey]*descriptor.Descriptor),
		wildcards: make(map[string]*descriptor.Descriptor),
		opcodes:   make(map[bytecode.OpCode][]*descriptor.Descriptor),
		logger:    slog.Default().With(slog.String("component", "match")),
	}
	for _, opt := range opts {
		opt(m)
	}

	for _, d := range catalog.List() {
		if !descriptor.IsApplicable(d, m.platform, m.version) {
			continue
		}
		switch {
		case d.IsOpCodeOnly():
			op := bytecode.OpCode(d.OpCode)
			m.opcodes[op] = append(m.opcodes[op], d)
		case d.IsWildcard():
			m.wildcards[d.Type] = d
		case d.Type != "" && d.Method != "":
			m.exact[memberKey{d.Type, d.Method}] = d
		}
	}
	return m
}

// Len returns the number of indexed descriptors.
func (m *Matcher) Len() int {
	n := len(m.exact) + len(m.wildcards)
	for _, ds := range m.opcodes {
		n += len(ds)
	}
	return n
}

// Match returns the issue for in, if any.
func (m *Matcher) Match(in scan.Instruction) (*models.Issue, bool) {
	switch {
	case in.OpCode.IsCall() && in.Callee != nil:
		return m.matchCall(in)
	case in.OpCode.IsConversion():
		return m.matchConversion(in)
	}
	return nil, false
}

func (m *Matcher) matchCall(in scan.Instruction) (*models.Issue, bool) {
	callee := in.Callee
	typeName := callee.DeclaringType.FullName()

	d, ok := m.exact[memberKey{typeName, callee.Name}]
	if !ok && callee.IsGetter() {
		d, ok = m.exact[memberKey{typeName, callee.PropertyName()}]
	}
	if ok {
		return m.newIssue(in, d, m.describe(d, callee.PrettyName(), in.Caller.PrettyName())), true
	}

	// Namespace-wide rules name the API itself rather than formatting the
	// descriptor message.
	if d, ok := m.wildcards[callee.DeclaringType.TopNamespace()]; ok {
		return m.newIssue(in, d, callee.PrettyName()), true
	}
	return nil, false
}

func (m *Matcher) matchConversion(in scan.Instruction) (*models.Issue, bool) {
	ds := m.opcodes[in.OpCode]
	if len(ds) == 0 {
		return nil, false
	}
	typeName := ""
	if in.Operand != nil {
		// Boxing a type parameter that may be a reference type is a no-op.
		if in.OpCode == bytecode.OpBox && in.Operand.IsGenericParameter() &&
			!in.Operand.GenericParameter.IsValueType() {
			return nil, false
		}
		typeName = in.Operand.FullName()
	}
	d := ds[0]
	return m.newIssue(in, d, m.describe(d, typeName, in.Caller.PrettyName())), true
}

func (m *Matcher) describe(d *descriptor.Descriptor, args ...any) string {
	msg, ok := d.Message(args...)
	if !ok {
		m.logger.Warn("descriptor message does not fit its arguments",
			slog.String("descriptor", d.ID),
			slog.String("format", d.MessageFormat),
			slog.Int("args", len(args)))
	}
	return msg
}

func (m *Matcher) newIssue(in scan.Instruction, d *descriptor.Descriptor, description string) *models.Issue {
	issue := &models.Issue{
		Category:     m.category,
		Description:  description,
		DescriptorID: d.ID,
		Dependencies: in.CallNode(),
		Properties:   []string{in.Module},
	}
	if in.Location != nil {
		loc := *in.Location
		issue.Location = &loc
	}
	return issue
}
