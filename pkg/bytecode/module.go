package bytecode

import "strings"

// FormatVersion is the module schema version this package reads and writes.
const FormatVersion = 1

// Module is one compiled module.
type Module struct {
	FormatVersion  int       `msgpack:"format_version"`
	Name           string    `msgpack:"name"`
	Version        string    `msgpack:"version,omitempty"`
	RuntimeVersion string    `msgpack:"runtime_version,omitempty"`
	DebugBuild     bool      `msgpack:"debug_build,omitempty"`
	Types          []TypeDef `msgpack:"types"`
	Symbols        *Symbols  `msgpack:"symbols,omitempty"`

	// Path and Size are filled in by Load.
	Path string `msgpack:"-"`
	Size int64  `msgpack:"-"`
}

// HasSymbols reports whether any debug information is available.
func (m *Module) HasSymbols() bool {
	return m.Symbols != nil && len(m.Symbols.Methods) > 0
}

// MethodCount returns the number of methods, including nested types.
func (m *Module) MethodCount() int {
	n := 0
	m.WalkTypes(func(t *TypeDef) {
		n += len(t.Methods)
	})
	return n
}

// WalkTypes visits every type definition depth-first, nested types after
// their declaring type.
func (m *Module) WalkTypes(fn func(t *TypeDef)) {
	for i := range m.Types {
		walkType(&m.Types[i], fn)
	}
}

func walkType(t *TypeDef, fn func(t *TypeDef)) {
	fn(t)
	for i := range t.NestedTypes {
		walkType(&t.NestedTypes[i], fn)
	}
}

// TypeDef is a type declared in the module.
type TypeDef struct {
	Namespace     string         `msgpack:"ns,omitempty"`
	Name          string         `msgpack:"name"`
	IsValueType   bool           `msgpack:"value_type,omitempty"`
	GenericParams []GenericParam `msgpack:"generic_params,omitempty"`
	Methods       []MethodDef    `msgpack:"methods,omitempty"`
	NestedTypes   []TypeDef      `msgpack:"nested,omitempty"`

	// Declaring is set on nested types by Load; not persisted.
	Declaring *TypeDef `msgpack:"-"`
}

// Ref returns a reference to the type.
func (t *TypeDef) Ref() TypeRef {
	ref := TypeRef{Namespace: t.Namespace, Name: t.Name, IsValueType: t.IsValueType}
	if t.Declaring != nil {
		decl := t.Declaring.Ref()
		ref.DeclaringType = &decl
	}
	return ref
}

// FullName returns the namespace-qualified name.
func (t *TypeDef) FullName() string {
	ref := t.Ref()
	return ref.FullName()
}

// MethodDef is a method with its instruction body.
type MethodDef struct {
	Token         uint32         `msgpack:"token"`
	Name          string         `msgpack:"name"`
	Parameters    []string       `msgpack:"params,omitempty"`
	ReturnType    string         `msgpack:"returns,omitempty"`
	GenericParams []GenericParam `msgpack:"generic_params,omitempty"`
	Body          []Instruction  `msgpack:"body,omitempty"`
}

// Ref returns a reference to the method as declared on owner.
func (m *MethodDef) Ref(owner *TypeDef) MethodRef {
	return MethodRef{
		DeclaringType: owner.Ref(),
		Name:          m.Name,
		Parameters:    m.Parameters,
		ReturnType:    m.ReturnType,
	}
}

// Instruction is a single decoded instruction. Call instructions carry a
// Method operand, type instructions a Type operand.
type Instruction struct {
	Offset uint32     `msgpack:"offset"`
	OpCode OpCode     `msgpack:"op"`
	Method *MethodRef `msgpack:"method,omitempty"`
	Type   *TypeRef   `msgpack:"type,omitempty"`
	String string     `msgpack:"str,omitempty"`
	Int    int64      `msgpack:"int,omitempty"`
}

// TypeRef references a type, possibly in another module.
type TypeRef struct {
	Namespace     string   `msgpack:"ns,omitempty"`
	Name          string   `msgpack:"name"`
	Module        string   `msgpack:"module,omitempty"`
	IsValueType   bool     `msgpack:"value_type,omitempty"`
	DeclaringType *TypeRef `msgpack:"declaring,omitempty"`
	// GenericParameter is set when the reference names a type parameter
	// rather than a concrete type.
	GenericParameter *GenericParam `msgpack:"generic_param,omitempty"`
}

// FullName returns the namespace-qualified name; nested types use '/'.
func (t TypeRef) FullName() string {
	if t.DeclaringType != nil {
		return t.DeclaringType.FullName() + "/" + t.Name
	}
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// TopNamespace returns the namespace, following declaring types for nested
// references.
func (t TypeRef) TopNamespace() string {
	if t.DeclaringType != nil {
		return t.DeclaringType.TopNamespace()
	}
	return t.Namespace
}

// IsGenericParameter reports whether the reference names a type parameter.
func (t TypeRef) IsGenericParameter() bool {
	return t.GenericParameter != nil
}

// GenericParam is a type parameter declaration with its constraints.
type GenericParam struct {
	Name                    string    `msgpack:"name"`
	ReferenceTypeConstraint bool      `msgpack:"class,omitempty"`
	ValueTypeConstraint     bool      `msgpack:"struct,omitempty"`
	Constraints             []TypeRef `msgpack:"constraints,omitempty"`
}

// IsValueType reports whether every instantiation is provably a value type.
// An unconstrained parameter has an implicit object bound, which is a
// reference type.
func (g *GenericParam) IsValueType() bool {
	if g.ValueTypeConstraint {
		return true
	}
	if g.ReferenceTypeConstraint || len(g.Constraints) == 0 {
		return false
	}
	for _, c := range g.Constraints {
		if !c.IsValueType {
			return false
		}
	}
	return true
}

// MethodRef references a method, possibly in another module.
type MethodRef struct {
	DeclaringType TypeRef  `msgpack:"declaring"`
	Name          string   `msgpack:"name"`
	Parameters    []string `msgpack:"params,omitempty"`
	ReturnType    string   `msgpack:"returns,omitempty"`
}

const getterPrefix = "get_"

// IsGetter reports whether the method is a property getter accessor.
func (m MethodRef) IsGetter() bool {
	return strings.HasPrefix(m.Name, getterPrefix) && len(m.Name) > len(getterPrefix)
}

// PropertyName returns the property a getter reads, or "" for other methods.
func (m MethodRef) PropertyName() string {
	if !m.IsGetter() {
		return ""
	}
	return strings.TrimPrefix(m.Name, getterPrefix)
}

// FullName returns a unique identity: Type::Name(params).
func (m MethodRef) FullName() string {
	return m.DeclaringType.FullName() + "::" + m.Name + "(" + strings.Join(m.Parameters, ",") + ")"
}

// PrettyName returns Type.Member, using the property name for getters.
func (m MethodRef) PrettyName() string {
	name := m.Name
	if p := m.PropertyName(); p != "" {
		name = p
	}
	return m.DeclaringType.FullName() + "." + name
}
