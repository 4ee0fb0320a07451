// Package scan walks compiled modules and yields decoded instructions.
package scan

import (
	"iter"
	"log/slog"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/panbanda/auger/pkg/bytecode"
	"github.com/panbanda/auger/pkg/models"
)

// Instruction is one decoded instruction together with its context.
type Instruction struct {
	OpCode bytecode.OpCode
	Offset uint32
	Module string
	// Caller is the method containing the instruction.
	Caller bytecode.MethodRef
	// Callee is set for call instructions.
	Callee *bytecode.MethodRef
	// Operand is set for type instructions such as box.
	Operand *bytecode.TypeRef
	// Location is the nearest preceding source position, if any.
	Location *models.Location
}

// MethodID returns the identity of the containing method.
func (i Instruction) MethodID() string {
	return i.Caller.FullName()
}

// CallNode returns the call-site node for the instruction: the containing
// method, decorated with its type, module and the call-site location.
func (i Instruction) CallNode() *models.CallNode {
	var loc *models.Location
	if i.Location != nil {
		l := *i.Location
		loc = &l
	}
	return &models.CallNode{
		Name:     i.Caller.FullName(),
		Type:     i.Caller.DeclaringType.FullName(),
		Method:   i.Caller.Name,
		Module:   i.Module,
		Location: loc,
	}
}

// Stats records what a scanner skipped.
type Stats struct {
	mu      sync.Mutex
	skipped map[string]*roaring.Bitmap
}

// SkippedMethods returns the tokens of methods in module that were skipped
// for lack of debug information.
func (s *Stats) SkippedMethods(module string) *roaring.Bitmap {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bm, ok := s.skipped[module]; ok {
		return bm.Clone()
	}
	return roaring.New()
}

// SkippedCount returns the number of skipped methods across all modules.
func (s *Stats) SkippedCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n uint64
	for _, bm := range s.skipped {
		n += bm.GetCardinality()
	}
	return n
}

// Modules returns the names of modules with skipped methods, sorted.
func (s *Stats) Modules() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.skipped))
	for name := range s.skipped {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *Stats) skip(module string, token uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.skipped == nil {
		s.skipped = make(map[string]*roaring.Bitmap)
	}
	bm, ok := s.skipped[module]
	if !ok {
		bm = roaring.New()
		s.skipped[module] = bm
	}
	bm.Add(token)
}

// Scanner decodes instructions of interest from loaded modules.
type Scanner struct {
	all    bool
	logger *slog.Logger
	stats  *Stats
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithAllInstructions makes the scanner yield every instruction, not only
// calls and conversions. Used for dumping.
func WithAllInstructions() Option {
	return func(s *Scanner) {
		s.all = true
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = l
	}
}

// New creates a scanner.
func New(opts ...Option) *Scanner {
	s := &Scanner{
		logger: slog.Default().With(slog.String("component", "scan")),
		stats:  &Stats{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stats returns the scanner statistics.
func (s *Scanner) Stats() *Stats {
	return s.stats
}

// Instructions returns the instructions of interest in mod, in
// method-then-instruction order. The sequence can be ranged over more than
// once; each pass re-reads the module.
func (s *Scanner) Instructions(mod *bytecode.Module) iter.Seq[Instruction] {
	return func(yield func(Instruction) bool) {
		for i := range mod.Types {
			if !s.walkType(mod, &mod.Types[i], yield) {
				return
			}
		}
	}
}

// All chains the instruction sequences of several modules.
func (s *Scanner) All(mods []*bytecode.Module) iter.Seq[Instruction] {
	return func(yield func(Instruction) bool) {
		for _, mod := range mods {
			for in := range s.Instructions(mod) {
				if !yield(in) {
					return
				}
			}
		}
	}
}

func (s *Scanner) walkType(mod *bytecode.Module, t *bytecode.TypeDef, yield func(Instruction) bool) bool {
	for i := range t.Methods {
		if !s.walkMethod(mod, t, &t.Methods[i], yield) {
			return false
		}
	}
	for i := range t.NestedTypes {
		if !s.walkType(mod, &t.NestedTypes[i], yield) {
			return false
		}
	}
	return true
}

func (s *Scanner) walkMethod(mod *bytecode.Module, t *bytecode.TypeDef, m *bytecode.MethodDef, yield func(Instruction) bool) bool {
	if len(m.Body) == 0 {
		return true
	}
	if !mod.Symbols.HasMethod(m.Token) {
		s.stats.skip(mod.Name, m.Token)
		s.logger.Debug("skipping method without debug information",
			slog.String("module", mod.Name), slog.String("method", m.Name))
		return true
	}

	caller := m.Ref(t)
	caller.DeclaringType.Module = mod.Name
	for idx, raw := range m.Body {
		if !s.all && !raw.OpCode.IsOfInterest() {
			continue
		}
		in := Instruction{
			OpCode:   raw.OpCode,
			Offset:   raw.Offset,
			Module:   mod.Name,
			Caller:   caller,
			Callee:   raw.Method,
			Operand:  raw.Type,
			Location: nearestLocation(mod.Symbols, m, idx),
		}
		if !yield(in) {
			return false
		}
	}
	return true
}

// nearestLocation walks back from body[idx] to the closest instruction
// with a visible sequence point.
func nearestLocation(syms *bytecode.Symbols, m *bytecode.MethodDef, idx int) *models.Location {
	for i := idx; i >= 0; i-- {
		if sp, ok := syms.PointAt(m.Token, m.Body[i].Offset); ok {
			return &models.Location{Path: sp.Document, Line: sp.Line, Column: sp.Column}
		}
	}
	return nil
}
