package descriptor

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"
)

// suggestThreshold is the minimum Jaro-Winkler similarity for Suggest.
const suggestThreshold = 0.8

// Catalog is the registry of descriptors for one session. It is filled
// during module initialization and read-only afterwards.
type Catalog struct {
	byID map[string]*Descriptor
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{byID: make(map[string]*Descriptor)}
}

// Register adds a descriptor. Invalid and duplicate ids are rejected.
func (c *Catalog) Register(d *Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if _, exists := c.byID[d.ID]; exists {
		return &DuplicateError{ID: d.ID}
	}
	c.byID[d.ID] = d
	return nil
}

// RegisterAll registers every descriptor, stopping at the first error.
func (c *Catalog) RegisterAll(ds []*Descriptor) error {
	for _, d := range ds {
		if err := c.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the descriptor with the given id.
func (c *Catalog) Get(id string) (*Descriptor, bool) {
	d, ok := c.byID[id]
	return d, ok
}

// MustGet returns the descriptor or panics. Use only for ids registered by
// the caller itself.
func (c *Catalog) MustGet(id string) *Descriptor {
	d, ok := c.byID[id]
	if !ok {
		panic(fmt.Sprintf("descriptor %s is not registered", id))
	}
	return d
}

// Lookup returns the descriptor or a *NotFoundError carrying suggestions.
func (c *Catalog) Lookup(id string) (*Descriptor, error) {
	if d, ok := c.byID[id]; ok {
		return d, nil
	}
	return nil, &NotFoundError{ID: id, Suggestions: c.Suggest(id)}
}

// Len returns the number of registered descriptors.
func (c *Catalog) Len() int {
	return len(c.byID)
}

// List returns all descriptors sorted by id.
func (c *Catalog) List() []*Descriptor {
	out := make([]*Descriptor, 0, len(c.byID))
	for _, d := range c.byID {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindByCriteria returns descriptors whose matching criteria equal the
// given values. Empty arguments match descriptors with an empty criterion.
func (c *Catalog) FindByCriteria(typeName, method, opcode string) []*Descriptor {
	var out []*Descriptor
	for _, d := range c.List() {
		if d.Type == typeName && d.Method == method && d.OpCode == opcode {
			out = append(out, d)
		}
	}
	return out
}

// AttachFixer sets the fixer of a registered descriptor.
func (c *Catalog) AttachFixer(id string, fn Fixer) error {
	d, err := c.Lookup(id)
	if err != nil {
		return err
	}
	d.fixer = fn
	return nil
}

// Suggest returns registered ids similar to id, best first.
func (c *Catalog) Suggest(id string) []string {
	type scored struct {
		id    string
		score float32
	}
	needle := strings.ToUpper(id)
	var candidates []scored
	for known := range c.byID {
		score, err := edlib.StringsSimilarity(needle, known, edlib.JaroWinkler)
		if err != nil || score < suggestThreshold {
			continue
		}
		candidates = append(candidates, scored{known, score})
	}
	slices.SortFunc(candidates, func(a, b scored) int {
		if a.score != b.score {
			if a.score > b.score {
				return -1
			}
			return 1
		}
		return strings.Compare(a.id, b.id)
	})

	const maxSuggestions = 3
	out := make([]string, 0, maxSuggestions)
	for i := 0; i < len(candidates) && i < maxSuggestions; i++ {
		out = append(out, candidates[i].id)
	}
	return out
}
