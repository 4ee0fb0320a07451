// Package params is the layered store of named integer thresholds consumed
// by analyzer modules. Layer 0 holds defaults; further layers override
// values per platform.
package params

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/panbanda/auger/pkg/models"
)

// ErrNotRegistered is matched by errors for parameters that were never
// registered.
var ErrNotRegistered = errors.New("parameter not registered")

// NotRegisteredError names the missing parameter.
type NotRegisteredError struct {
	Name string
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("parameter %q not registered", e.Name)
}

func (e *NotRegisteredError) Unwrap() error {
	return ErrNotRegistered
}

// Param is one name/value pair of the flattened form.
type Param struct {
	Name  string `json:"name" koanf:"name" toml:"name" yaml:"name"`
	Value int    `json:"value" koanf:"value" toml:"value" yaml:"value"`
}

// Layer is the flattened form of one platform's values.
type Layer struct {
	Platform models.Platform `json:"platform" koanf:"platform" toml:"platform" yaml:"platform"`
	Params   []Param         `json:"params" koanf:"params" toml:"params" yaml:"params"`
}

type layer struct {
	platform models.Platform
	values   map[string]int
}

// Store is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	layers   []*layer
	platform models.Platform
}

// New creates a store holding only the empty default layer.
func New() *Store {
	return &Store{layers: []*layer{{platform: models.PlatformDefault, values: make(map[string]int)}}}
}

// FromLayers rebuilds a store from its flattened form. The default layer is
// created when absent, and layers for the same platform are merged.
func FromLayers(layers []Layer) *Store {
	s := New()
	for _, l := range layers {
		dst := s.layerFor(models.ParsePlatform(string(l.Platform)), true)
		for _, p := range l.Params {
			dst.values[p.Name] = p.Value
		}
	}
	return s
}

// Register sets the default value of name. It is a no-op when name already
// has a default, so user edits survive.
func (s *Store) Register(name string, defaultValue int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defaults := s.layers[0]
	if _, ok := defaults.values[name]; !ok {
		defaults.values[name] = defaultValue
	}
}

// SetAnalysisPlatform selects the layer Get prefers.
func (s *Store) SetAnalysisPlatform(p models.Platform) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.platform = p
}

// AnalysisPlatform returns the platform Get prefers.
func (s *Store) AnalysisPlatform() models.Platform {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.platform
}

// Get returns the value for the analysis platform, falling back to the
// default layer.
func (s *Store) Get(name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(name, s.platform)
}

// GetFor returns the value for an explicit platform.
func (s *Store) GetFor(name string, p models.Platform) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(name, p)
}

// MustGet is Get for parameters the caller registered itself. Querying an
// unregistered parameter is a programming error and panics.
func (s *Store) MustGet(name string) int {
	v, err := s.Get(name)
	if err != nil {
		panic(err)
	}
	return v
}

func (s *Store) get(name string, p models.Platform) (int, error) {
	if p != models.PlatformDefault {
		if l := s.layerFor(p, false); l != nil {
			if v, ok := l.values[name]; ok {
				return v, nil
			}
		}
	}
	if v, ok := s.layers[0].values[name]; ok {
		return v, nil
	}
	return 0, &NotRegisteredError{Name: name}
}

// Set stores a value for a platform, creating the layer when needed. The
// default platform writes layer 0.
func (s *Store) Set(name string, value int, p models.Platform) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layerFor(p, true).values[name] = value
}

// Names returns every registered parameter name, sorted.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	for _, l := range s.layers {
		for name := range l.values {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Store) layerFor(p models.Platform, create bool) *layer {
	for _, l := range s.layers {
		if l.platform == p {
			return l
		}
	}
	if !create {
		return nil
	}
	l := &layer{platform: p, values: make(map[string]int)}
	s.layers = append(s.layers, l)
	return l
}

// Layers returns the flattened form: layers in creation order, default
// first, params sorted by name.
func (s *Store) Layers() []Layer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Layer, 0, len(s.layers))
	for _, l := range s.layers {
		flat := Layer{Platform: l.platform, Params: make([]Param, 0, len(l.values))}
		for name, v := range l.values {
			flat.Params = append(flat.Params, Param{Name: name, Value: v})
		}
		sort.Slice(flat.Params, func(i, j int) bool { return flat.Params[i].Name < flat.Params[j].Name })
		out = append(out, flat)
	}
	return out
}

// Clone returns an independent copy, including the analysis platform.
func (s *Store) Clone() *Store {
	c := FromLayers(s.Layers())
	c.platform = s.AnalysisPlatform()
	return c
}

// Fingerprint hashes the flattened form. Equal stores have equal
// fingerprints.
func (s *Store) Fingerprint() uint64 {
	h := xxhash.New()
	for _, l := range s.Layers() {
		_, _ = h.WriteString(string(l.Platform))
		_, _ = h.WriteString("\x00")
		for _, p := range l.Params {
			_, _ = h.WriteString(p.Name)
			_, _ = h.WriteString("=")
			_, _ = h.WriteString(strconv.Itoa(p.Value))
			_, _ = h.WriteString("\x00")
		}
	}
	return h.Sum64()
}

// MarshalJSON writes the flattened form.
func (s *Store) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Layers())
}

// UnmarshalJSON rebuilds the store from the flattened form.
func (s *Store) UnmarshalJSON(data []byte) error {
	var layers []Layer
	if err := json.Unmarshal(data, &layers); err != nil {
		return err
	}
	rebuilt := FromLayers(layers)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers = rebuilt.layers
	return nil
}
