package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/panbanda/auger/pkg/models"
)

type stubModule struct {
	name string
	cats []models.Category
}

func (s *stubModule) Name() string                                { return s.name }
func (s *stubModule) Categories() []models.Category               { return s.cats }
func (s *stubModule) Initialize(*Context) error                   { return nil }
func (s *stubModule) Audit(context.Context, *Request, Sink) error { return nil }

func TestRegistry(t *testing.T) {
	r := NewRegistry(func() Module { return &stubModule{name: "a", cats: []models.Category{models.CategoryCode}} })
	r.Register(func() Module { return &stubModule{name: "b", cats: []models.Category{models.CategorySettings}} })

	mods := r.New()
	assert.Len(t, r.Providers(), 2)
	assert.Equal(t, "a", mods[0].Name())
	assert.Equal(t, "b", mods[1].Name())

	// Providers build fresh instances.
	assert.NotSame(t, mods[0], r.New()[0])
}

func TestHandles(t *testing.T) {
	m := &stubModule{cats: []models.Category{models.CategoryCode, models.CategoryAssembly}}
	assert.True(t, Handles(m, nil))
	assert.True(t, Handles(m, []models.Category{models.CategoryAssembly}))
	assert.False(t, Handles(m, []models.Category{models.CategorySettings}))
}

func TestSinkFunc(t *testing.T) {
	var got []*models.Issue
	var sink Sink = SinkFunc(func(issues ...*models.Issue) { got = append(got, issues...) })
	sink.Add(&models.Issue{Description: "a"}, &models.Issue{Description: "b"})
	assert.Len(t, got, 2)
}
