package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/auger/pkg/analyzer"
	"github.com/panbanda/auger/pkg/descriptor"
	"github.com/panbanda/auger/pkg/models"
	"github.com/panbanda/auger/pkg/params"
)

func TestRegistry(t *testing.T) {
	mods := Registry().New()
	require.Len(t, mods, 3)

	var names []string
	var categories []models.Category
	for _, m := range mods {
		names = append(names, m.Name())
		categories = append(categories, m.Categories()...)
	}
	assert.Equal(t, []string{"code", "assembly", "settings"}, names)
	assert.ElementsMatch(t, []models.Category{
		models.CategoryCode, models.CategoryAssembly, models.CategorySettings,
	}, categories)
}

func TestDescriptorIDsDoNotCollide(t *testing.T) {
	ictx := &analyzer.Context{Catalog: descriptor.NewCatalog(), Params: params.New()}
	for _, m := range Registry().New() {
		require.NoError(t, m.Initialize(ictx), m.Name())
	}
	assert.Greater(t, ictx.Catalog.Len(), 10)
}
