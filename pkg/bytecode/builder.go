package bytecode

import "strings"

const firstMethodToken = 0x06000001

// ModuleBuilder assembles modules in memory. It is used to produce fixtures
// and by tests that need small, precise instruction streams.
type ModuleBuilder struct {
	name           string
	version        string
	runtimeVersion string
	debugBuild     bool
	types          []*TypeBuilder
	nextToken      uint32
}

// NewBuilder starts a module with the given name.
func NewBuilder(name string) *ModuleBuilder {
	return &ModuleBuilder{name: name, version: "1.0.0", nextToken: firstMethodToken}
}

// Version sets the module version.
func (b *ModuleBuilder) Version(v string) *ModuleBuilder {
	b.version = v
	return b
}

// RuntimeVersion sets the runtime the module was compiled against.
func (b *ModuleBuilder) RuntimeVersion(v string) *ModuleBuilder {
	b.runtimeVersion = v
	return b
}

// DebugBuild marks the module as compiled without optimizations.
func (b *ModuleBuilder) DebugBuild() *ModuleBuilder {
	b.debugBuild = true
	return b
}

// Type declares a top-level type.
func (b *ModuleBuilder) Type(namespace, name string) *TypeBuilder {
	tb := &TypeBuilder{mb: b, def: TypeDef{Namespace: namespace, Name: name}}
	b.types = append(b.types, tb)
	return tb
}

// Build returns the module with symbols embedded. Symbols are omitted when
// no method recorded a line.
func (b *ModuleBuilder) Build() *Module {
	mod, syms := b.BuildSplit()
	if len(syms.Methods) > 0 {
		mod.Symbols = syms
	}
	return mod
}

// BuildSplit returns the module and its symbols separately, for writing a
// sidecar symbol file.
func (b *ModuleBuilder) BuildSplit() (*Module, *Symbols) {
	syms := NewSymbols(b.name)
	mod := &Module{
		FormatVersion:  FormatVersion,
		Name:           b.name,
		Version:        b.version,
		RuntimeVersion: b.runtimeVersion,
		DebugBuild:     b.debugBuild,
	}
	for _, tb := range b.types {
		mod.Types = append(mod.Types, tb.build(syms))
	}
	mod.link()
	return mod, syms
}

// TypeBuilder declares one type.
type TypeBuilder struct {
	mb      *ModuleBuilder
	parent  *TypeBuilder
	def     TypeDef
	methods []*MethodBuilder
	nested  []*TypeBuilder
}

// ValueType marks the type as a value type.
func (t *TypeBuilder) ValueType() *TypeBuilder {
	t.def.IsValueType = true
	return t
}

// GenericParam adds a type parameter to the type.
func (t *TypeBuilder) GenericParam(p GenericParam) *TypeBuilder {
	t.def.GenericParams = append(t.def.GenericParams, p)
	return t
}

// Nested declares a type nested in t.
func (t *TypeBuilder) Nested(name string) *TypeBuilder {
	nb := &TypeBuilder{mb: t.mb, parent: t, def: TypeDef{Name: name}}
	t.nested = append(t.nested, nb)
	return nb
}

// Method declares a method on the type.
func (t *TypeBuilder) Method(name string, params ...string) *MethodBuilder {
	m := &MethodBuilder{
		tb:  t,
		def: MethodDef{Token: t.mb.nextToken, Name: name, Parameters: params},
	}
	t.mb.nextToken++
	t.methods = append(t.methods, m)
	return m
}

// Ref returns a reference to the type.
func (t *TypeBuilder) Ref() TypeRef {
	ref := TypeRef{
		Namespace:   t.def.Namespace,
		Name:        t.def.Name,
		Module:      t.mb.name,
		IsValueType: t.def.IsValueType,
	}
	if t.parent != nil {
		decl := t.parent.Ref()
		ref.DeclaringType = &decl
	}
	return ref
}

func (t *TypeBuilder) build(syms *Symbols) TypeDef {
	def := t.def
	def.Methods = nil
	def.NestedTypes = nil
	for _, m := range t.methods {
		def.Methods = append(def.Methods, m.build(syms))
	}
	for _, n := range t.nested {
		def.NestedTypes = append(def.NestedTypes, n.build(syms))
	}
	return def
}

// MethodBuilder emits a method body instruction by instruction.
type MethodBuilder struct {
	tb      *TypeBuilder
	def     MethodDef
	offset  uint32
	pending *SequencePoint
	points  []SequencePoint
}

// Line attaches a source position to the next emitted instruction.
func (m *MethodBuilder) Line(document string, line int) *MethodBuilder {
	m.pending = &SequencePoint{Document: document, Line: line}
	return m
}

// Hidden attaches a compiler-generated marker to the next instruction.
func (m *MethodBuilder) Hidden() *MethodBuilder {
	m.pending = &SequencePoint{Hidden: true}
	return m
}

// GenericParam adds a method-level type parameter.
func (m *MethodBuilder) GenericParam(p GenericParam) *MethodBuilder {
	m.def.GenericParams = append(m.def.GenericParams, p)
	return m
}

// Returns sets the return type name.
func (m *MethodBuilder) Returns(typ string) *MethodBuilder {
	m.def.ReturnType = typ
	return m
}

// Op emits an instruction without operand.
func (m *MethodBuilder) Op(op OpCode) *MethodBuilder {
	return m.emit(Instruction{OpCode: op})
}

// Call emits a call.
func (m *MethodBuilder) Call(target MethodRef) *MethodBuilder {
	return m.emit(Instruction{OpCode: OpCall, Method: &target})
}

// CallVirt emits a virtual call.
func (m *MethodBuilder) CallVirt(target MethodRef) *MethodBuilder {
	return m.emit(Instruction{OpCode: OpCallvirt, Method: &target})
}

// NewObj emits a constructor call.
func (m *MethodBuilder) NewObj(ctor MethodRef) *MethodBuilder {
	return m.emit(Instruction{OpCode: OpNewobj, Method: &ctor})
}

// Box emits a box of typ.
func (m *MethodBuilder) Box(typ TypeRef) *MethodBuilder {
	return m.emit(Instruction{OpCode: OpBox, Type: &typ})
}

// UnboxAny emits an unbox.any of typ.
func (m *MethodBuilder) UnboxAny(typ TypeRef) *MethodBuilder {
	return m.emit(Instruction{OpCode: OpUnboxAny, Type: &typ})
}

// LdStr emits a string literal load.
func (m *MethodBuilder) LdStr(s string) *MethodBuilder {
	return m.emit(Instruction{OpCode: OpLdstr, String: s})
}

// LdcI4 emits an integer literal load.
func (m *MethodBuilder) LdcI4(v int64) *MethodBuilder {
	return m.emit(Instruction{OpCode: OpLdcI4, Int: v})
}

// Ref returns a reference to the method for use as a call target.
func (m *MethodBuilder) Ref() MethodRef {
	return MethodRef{
		DeclaringType: m.tb.Ref(),
		Name:          m.def.Name,
		Parameters:    m.def.Parameters,
		ReturnType:    m.def.ReturnType,
	}
}

// Token returns the method token.
func (m *MethodBuilder) Token() uint32 {
	return m.def.Token
}

// Type returns the declaring type builder, to continue declaring methods.
func (m *MethodBuilder) Type() *TypeBuilder {
	return m.tb
}

func (m *MethodBuilder) emit(in Instruction) *MethodBuilder {
	in.Offset = m.offset
	if m.pending != nil {
		sp := *m.pending
		sp.Offset = m.offset
		m.points = append(m.points, sp)
		m.pending = nil
	}
	m.def.Body = append(m.def.Body, in)
	m.offset += operandSize(in.OpCode)
	return m
}

func (m *MethodBuilder) build(syms *Symbols) MethodDef {
	def := m.def
	def.Body = append([]Instruction(nil), m.def.Body...)
	if len(m.points) > 0 {
		syms.Methods[def.Token] = append([]SequencePoint(nil), m.points...)
	}
	if len(def.Body) == 0 || def.Body[len(def.Body)-1].OpCode != OpRet {
		def.Body = append(def.Body, Instruction{Offset: m.offset, OpCode: OpRet})
	}
	return def
}

func operandSize(op OpCode) uint32 {
	switch op {
	case OpNop, OpRet, OpPop, OpLdarg, OpLdloc, OpStloc:
		return 1
	}
	return 5
}

// Method returns a reference to an external method. typeName is a full
// type name: "System.String", or "Outer/Inner" for nested types.
func Method(typeName, name string, params ...string) MethodRef {
	return MethodRef{DeclaringType: Type(typeName), Name: name, Parameters: params}
}

// Getter returns a reference to the getter of a property.
func Getter(typeName, property string) MethodRef {
	return Method(typeName, getterPrefix+property)
}

// Type returns a reference to an external reference type.
func Type(fullName string) TypeRef {
	if i := strings.LastIndex(fullName, "/"); i >= 0 {
		decl := Type(fullName[:i])
		return TypeRef{Name: fullName[i+1:], DeclaringType: &decl}
	}
	if i := strings.LastIndex(fullName, "."); i >= 0 {
		return TypeRef{Namespace: fullName[:i], Name: fullName[i+1:]}
	}
	return TypeRef{Name: fullName}
}

// ValueType returns a reference to an external value type.
func ValueType(fullName string) TypeRef {
	ref := Type(fullName)
	ref.IsValueType = true
	return ref
}

// GenericParamRef returns a reference naming a type parameter.
func GenericParamRef(p GenericParam) TypeRef {
	return TypeRef{Name: p.Name, GenericParameter: &p}
}
