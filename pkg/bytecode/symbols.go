package bytecode

import "slices"

// Symbols maps method tokens to their sequence points.
type Symbols struct {
	Module  string                     `msgpack:"module"`
	Methods map[uint32][]SequencePoint `msgpack:"methods"`
}

// NewSymbols creates an empty symbol table.
func NewSymbols(module string) *Symbols {
	return &Symbols{Module: module, Methods: make(map[uint32][]SequencePoint)}
}

// SequencePoint ties an instruction offset to a source position.
type SequencePoint struct {
	Offset   uint32 `msgpack:"offset"`
	Document string `msgpack:"doc"`
	Line     int    `msgpack:"line"`
	Column   int    `msgpack:"col,omitempty"`
	// Hidden marks compiler-generated code with no meaningful position.
	Hidden bool `msgpack:"hidden,omitempty"`
}

// Add records a sequence point for a method.
func (s *Symbols) Add(token uint32, sp SequencePoint) {
	if s.Methods == nil {
		s.Methods = make(map[uint32][]SequencePoint)
	}
	s.Methods[token] = append(s.Methods[token], sp)
}

// HasMethod reports whether the method has any debug information.
func (s *Symbols) HasMethod(token uint32) bool {
	if s == nil {
		return false
	}
	return len(s.Methods[token]) > 0
}

// PointAt returns the visible sequence point recorded exactly at offset.
func (s *Symbols) PointAt(token uint32, offset uint32) (SequencePoint, bool) {
	if s == nil {
		return SequencePoint{}, false
	}
	points := s.Methods[token]
	i, found := slices.BinarySearchFunc(points, offset, func(sp SequencePoint, off uint32) int {
		switch {
		case sp.Offset < off:
			return -1
		case sp.Offset > off:
			return 1
		}
		return 0
	})
	if !found || points[i].Hidden {
		return SequencePoint{}, false
	}
	return points[i], true
}

// normalize sorts every method's points by offset so PointAt can search.
func (s *Symbols) normalize() {
	if s == nil {
		return
	}
	for token, points := range s.Methods {
		slices.SortStableFunc(points, func(a, b SequencePoint) int {
			return int(int64(a.Offset) - int64(b.Offset))
		})
		s.Methods[token] = points
	}
}
