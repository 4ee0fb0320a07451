package bytecode

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleModule() *ModuleBuilder {
	b := NewBuilder("Game").RuntimeVersion("6.0.2")
	player := b.Type("Game.Actors", "Player")
	player.Method("Update").
		Line("Player.cs", 10).Op(OpLdarg).
		Call(Method("System.String", "Concat", "string", "string")).
		Line("Player.cs", 11).Box(ValueType("System.Int32"))
	player.Nested("State").Method("Reset").Line("Player.cs", 40).Op(OpNop)
	return b
}

func TestTypeRefFullName(t *testing.T) {
	tests := []struct {
		ref  TypeRef
		want string
	}{
		{Type("System.String"), "System.String"},
		{Type("Object"), "Object"},
		{Type("Game.Player/State"), "Game.Player/State"},
		{Type("Game.Player/State/Inner"), "Game.Player/State/Inner"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ref.FullName())
		})
	}
	assert.Equal(t, "Game", Type("Game.Player/State").TopNamespace())
}

func TestMethodRefNames(t *testing.T) {
	m := Method("System.String", "Concat", "string", "string")
	assert.Equal(t, "System.String::Concat(string,string)", m.FullName())
	assert.Equal(t, "System.String.Concat", m.PrettyName())
	assert.False(t, m.IsGetter())
	assert.Empty(t, m.PropertyName())

	g := Getter("System.DateTime", "Now")
	assert.True(t, g.IsGetter())
	assert.Equal(t, "Now", g.PropertyName())
	assert.Equal(t, "System.DateTime.Now", g.PrettyName())

	assert.False(t, Method("X", "get_").IsGetter())
}

func TestGenericParamIsValueType(t *testing.T) {
	tests := []struct {
		name  string
		param GenericParam
		want  bool
	}{
		{"unconstrained", GenericParam{Name: "T"}, false},
		{"struct constraint", GenericParam{Name: "T", ValueTypeConstraint: true}, true},
		{"class constraint", GenericParam{Name: "T", ReferenceTypeConstraint: true}, false},
		{"value type constraints", GenericParam{Name: "T", Constraints: []TypeRef{ValueType("System.Int32")}}, true},
		{"interface constraint", GenericParam{Name: "T", Constraints: []TypeRef{Type("System.IDisposable")}}, false},
		{"mixed constraints", GenericParam{Name: "T", Constraints: []TypeRef{ValueType("System.Int32"), Type("System.IComparable")}}, false},
		{
			"class with value constraint list",
			GenericParam{Name: "T", ReferenceTypeConstraint: true, Constraints: []TypeRef{ValueType("System.Int32")}},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.param.IsValueType())
		})
	}
}

func TestBuilder(t *testing.T) {
	mod := sampleModule().Build()

	require.Len(t, mod.Types, 1)
	player := mod.Types[0]
	assert.Equal(t, "Game.Actors.Player", player.FullName())
	require.Len(t, player.NestedTypes, 1)
	assert.Equal(t, "Game.Actors.Player/State", player.NestedTypes[0].FullName())

	update := player.Methods[0]
	require.Len(t, update.Body, 4)
	assert.Equal(t, OpRet, update.Body[3].OpCode)
	assert.Equal(t, uint32(0), update.Body[0].Offset)
	assert.Equal(t, uint32(1), update.Body[1].Offset)
	assert.Equal(t, uint32(6), update.Body[2].Offset)

	require.True(t, mod.HasSymbols())
	sp, ok := mod.Symbols.PointAt(update.Token, 6)
	require.True(t, ok)
	assert.Equal(t, 11, sp.Line)
	_, ok = mod.Symbols.PointAt(update.Token, 1)
	assert.False(t, ok)
	assert.Equal(t, 2, mod.MethodCount())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Game"+ModuleExt)

	require.NoError(t, Save(path, sampleModule().Build()))

	mod, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Game", mod.Name)
	assert.Equal(t, "6.0.2", mod.RuntimeVersion)
	assert.Equal(t, path, mod.Path)
	assert.Positive(t, mod.Size)
	assert.True(t, mod.HasSymbols())

	nested := mod.Types[0].NestedTypes[0]
	require.NotNil(t, nested.Declaring)
	assert.Equal(t, "Game.Actors.Player/State", nested.FullName())
}

func TestLoadSidecarSymbols(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Game"+ModuleExt)

	mod, syms := sampleModule().BuildSplit()
	require.Nil(t, mod.Symbols)
	require.NoError(t, Save(path, mod))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.False(t, loaded.HasSymbols())

	require.NoError(t, SaveSymbols(SymbolsPath(path), syms))
	loaded, err = Load(path)
	require.NoError(t, err)
	assert.True(t, loaded.HasSymbols())
	assert.Equal(t, filepath.Join(dir, "Game.sym"), SymbolsPath(path))
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.bcm"))
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	corrupt := filepath.Join(dir, "corrupt.bcm")
	require.NoError(t, os.WriteFile(corrupt, []byte{0xc1, 0x00, 0x01}, 0o644))
	_, err = Load(corrupt)
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, corrupt, loadErr.Path)

	future := filepath.Join(dir, "future.bcm")
	mod := sampleModule().Build()
	mod.FormatVersion = FormatVersion + 1
	require.NoError(t, Save(future, mod))
	_, err = Load(future)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestOpCodePredicates(t *testing.T) {
	assert.True(t, OpCall.IsCall())
	assert.True(t, OpNewobj.IsCall())
	assert.False(t, OpBox.IsCall())
	assert.True(t, OpBox.IsConversion())
	assert.True(t, OpUnboxAny.IsOfInterest())
	assert.False(t, OpLdstr.IsOfInterest())
	assert.True(t, IsModulePath("a/b/Game.BCM"))
	assert.False(t, IsModulePath("a/b/Game.sym"))
}
