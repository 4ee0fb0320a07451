package bytecode

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	// ModuleExt is the extension of compiled module files.
	ModuleExt = ".bcm"
	// SymbolsExt is the extension of sidecar debug symbol files.
	SymbolsExt = ".sym"
)

// ErrUnsupportedFormat is returned for modules written by a newer format.
var ErrUnsupportedFormat = errors.New("unsupported module format version")

// LoadError is returned when a module cannot be read or decoded.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load module %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsModulePath reports whether path names a compiled module.
func IsModulePath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ModuleExt)
}

// SymbolsPath returns the sidecar symbol path for a module path.
func SymbolsPath(modulePath string) string {
	return strings.TrimSuffix(modulePath, filepath.Ext(modulePath)) + SymbolsExt
}

// Load reads a module from disk. Sidecar symbols are attached when the
// module carries none of its own.
func Load(path string) (*Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	mod, err := Decode(bufio.NewReader(f))
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	mod.Path = path
	mod.Size = info.Size()

	if mod.Symbols == nil {
		syms, err := LoadSymbols(SymbolsPath(path))
		switch {
		case err == nil:
			mod.Symbols = syms
		case !errors.Is(err, os.ErrNotExist):
			return nil, &LoadError{Path: path, Err: fmt.Errorf("symbols: %w", err)}
		}
	}
	mod.Symbols.normalize()
	return mod, nil
}

// LoadSymbols reads a sidecar symbol file.
func LoadSymbols(path string) (*Symbols, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var syms Symbols
	if err := msgpack.NewDecoder(bufio.NewReader(f)).Decode(&syms); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	syms.normalize()
	return &syms, nil
}

// Decode reads a module from r.
func Decode(r io.Reader) (*Module, error) {
	var mod Module
	if err := msgpack.NewDecoder(r).Decode(&mod); err != nil {
		return nil, fmt.Errorf("decode module: %w", err)
	}
	if mod.FormatVersion > FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFormat, mod.FormatVersion)
	}
	mod.link()
	return &mod, nil
}

// Encode writes a module to w.
func Encode(w io.Writer, mod *Module) error {
	if mod.FormatVersion == 0 {
		mod.FormatVersion = FormatVersion
	}
	return msgpack.NewEncoder(w).Encode(mod)
}

// Save writes a module atomically.
func Save(path string, mod *Module) error {
	return writeAtomic(path, func(w io.Writer) error {
		return Encode(w, mod)
	})
}

// SaveSymbols writes a sidecar symbol file atomically.
func SaveSymbols(path string, syms *Symbols) error {
	return writeAtomic(path, func(w io.Writer) error {
		return msgpack.NewEncoder(w).Encode(syms)
	})
}

func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// link restores the declaring-type back references of nested types.
func (m *Module) link() {
	for i := range m.Types {
		linkNested(&m.Types[i])
	}
}

func linkNested(t *TypeDef) {
	for i := range t.NestedTypes {
		t.NestedTypes[i].Declaring = t
		linkNested(&t.NestedTypes[i])
	}
}
