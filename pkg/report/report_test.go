package report

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/panbanda/auger/pkg/descriptor"
	"github.com/panbanda/auger/pkg/models"
	"github.com/panbanda/auger/pkg/params"
	"github.com/panbanda/auger/pkg/rules"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func issue(cat models.Category, id, desc string) *models.Issue {
	return &models.Issue{Category: cat, DescriptorID: id, Description: desc}
}

func moduleInfo(name string, outcome Outcome, cats ...models.Category) ModuleInfo {
	now := time.Now()
	return ModuleInfo{Name: name, Categories: cats, StartTime: now, EndTime: now.Add(time.Second), Outcome: outcome}
}

func TestConcurrentAddIssues(t *testing.T) {
	for run := 0; run < 20; run++ {
		r := New()
		var wg sync.WaitGroup
		for a, cat := range []models.Category{models.CategoryCode, models.CategoryAssembly} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range 500 {
					r.AddIssues(issue(cat, "", fmt.Sprintf("analyzer %d issue %d", a, i)))
				}
			}()
		}
		wg.Wait()

		require.Equal(t, 1000, r.NumTotalIssues())
		assert.Equal(t, 500, r.NumIssues(models.CategoryCode))
		assert.Equal(t, 500, r.NumIssues(models.CategoryAssembly))

		seen := make(map[string]bool)
		for _, i := range r.AllIssues() {
			require.False(t, seen[i.Description], "duplicate %s", i.Description)
			seen[i.Description] = true
		}
	}
}

func TestQueries(t *testing.T) {
	r := New()
	r.AddIssues(
		issue(models.CategoryCode, "API0001", "a"),
		issue(models.CategoryCode, "API0002", "b"),
		issue(models.CategorySettings, "SET0001", "c"),
	)
	r.AddIssues()

	assert.Len(t, r.FindByCategory(models.CategoryCode), 2)
	assert.Len(t, r.FindByDescriptorID("SET0001"), 1)
	assert.Empty(t, r.FindByDescriptorID("API9999"))

	snapshot := r.AllIssues()
	snapshot[0] = nil
	assert.NotNil(t, r.AllIssues()[0])
}

func TestMarkFixedAndSnapshots(t *testing.T) {
	r := New()
	r.AddIssues(issue(models.CategoryCode, "API0001", "a"), issue(models.CategoryCode, "API0002", "b"))

	before := r.FindByDescriptorID("API0001")[0]
	copied := r.FindByDescriptorID("API0001")[0]
	require.True(t, r.MarkFixed(copied))
	assert.True(t, copied.Fixed)
	assert.False(t, before.Fixed, "earlier snapshots must not change")
	assert.True(t, r.FindByDescriptorID("API0001")[0].Fixed)
	assert.False(t, r.MarkFixed(issue(models.CategoryCode, "API9999", "a")))

	var wg sync.WaitGroup
	for _, i := range r.AllIssues() {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.MarkFixed(i)
		}()
		go func() {
			defer wg.Done()
			for _, snap := range r.AllIssues() {
				_ = snap.Fixed
			}
			_ = r.Summary()
		}()
	}
	wg.Wait()
	assert.Equal(t, 2, r.Summary().Fixed)
}

func TestClearIssuesPrunesCategory(t *testing.T) {
	r := New()
	r.RecordModuleInfo(moduleInfo("code", OutcomeSuccess, models.CategoryCode))
	r.RecordModuleInfo(moduleInfo("mixed", OutcomeSuccess, models.CategoryAssembly, models.CategorySettings))
	r.AddIssues(issue(models.CategoryCode, "API0001", "a"), issue(models.CategoryAssembly, "ASM0001", "b"))

	require.True(t, r.HasCategory(models.CategoryCode))
	r.ClearIssues(models.CategoryCode)
	assert.False(t, r.HasCategory(models.CategoryCode))
	assert.Zero(t, r.NumIssues(models.CategoryCode))
	assert.Equal(t, 1, r.NumTotalIssues())
	require.Len(t, r.Modules(), 1)

	r.ClearIssues(models.CategoryAssembly)
	assert.False(t, r.HasCategory(models.CategoryAssembly))
	assert.True(t, r.HasCategory(models.CategorySettings))
	assert.Equal(t, []models.Category{models.CategorySettings}, r.Categories())
}

func TestIsValid(t *testing.T) {
	r := New()
	assert.True(t, r.IsValid())

	r.RecordModuleInfo(moduleInfo("code", OutcomeFailure, models.CategoryCode))
	r.AddIssues(issue(models.CategoryCode, "API0001", "described"))
	assert.True(t, r.IsValid())

	r.AddIssues(issue(models.CategoryCode, "API0001", ""))
	assert.False(t, r.IsValid())
	r.ClearIssues(models.CategoryCode)
	assert.True(t, r.IsValid())

	r.RecordModuleInfo(moduleInfo("assembly", OutcomeCancelled, models.CategoryAssembly))
	assert.False(t, r.IsValid())
}

func testCatalog(t *testing.T) *descriptor.Catalog {
	t.Helper()
	c := descriptor.NewCatalog()
	require.NoError(t, c.RegisterAll([]*descriptor.Descriptor{
		{ID: "API0001", Title: "Concat", DefaultSeverity: models.SeverityModerate, Type: "System.String", Method: "Concat"},
		{ID: "SET0001", Title: "Timestep", DefaultSeverity: models.SeverityMajor},
	}))
	return c
}

func TestSummaryUsesEffectiveSeverity(t *testing.T) {
	rs := rules.NewSet(rules.Rule{ID: "SET0001", Severity: models.SeverityHidden})
	r := New(WithCatalog(testCatalog(t)), WithRules(rs))
	fixed := issue(models.CategoryCode, "API0001", "b")
	fixed.Fixed = true
	r.AddIssues(
		issue(models.CategoryCode, "API0001", "a"),
		fixed,
		issue(models.CategorySettings, "SET0001", "c"),
	)
	r.RecordModuleInfo(moduleInfo("settings", OutcomeFailure, models.CategorySettings))

	s := r.Summary()
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Fixed)
	assert.Equal(t, 2, s.ByCategory[models.CategoryCode])
	assert.Equal(t, 2, s.BySeverity[models.SeverityModerate])
	assert.Zero(t, s.BySeverity[models.SeverityHidden])
	assert.Equal(t, 1, s.Failures)

	assert.Equal(t, models.SeverityHidden, r.EffectiveSeverity(r.FindByDescriptorID("SET0001")[0]))
}

func TestSummarySkipsMutedIssues(t *testing.T) {
	rs := rules.NewSet(rules.Rule{ID: "SET0001", Severity: models.SeverityNone})
	r := New(WithCatalog(testCatalog(t)), WithRules(rs))
	r.AddIssues(
		issue(models.CategoryCode, "API0001", "a"),
		issue(models.CategorySettings, "SET0001", "c"),
	)

	s := r.Summary()
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.ByCategory[models.CategorySettings])
	assert.Equal(t, 1, s.BySeverity[models.SeverityModerate])
	_, muted := s.BySeverity[models.SeverityNone]
	assert.False(t, muted)
}

func TestSortedIssues(t *testing.T) {
	r := New(WithCatalog(testCatalog(t)))
	minor := issue(models.CategoryCode, "API0001", "z")
	minor.Severity = models.SeverityMinor
	r.AddIssues(minor, issue(models.CategorySettings, "SET0001", "y"), issue(models.CategoryCode, "API0001", "x"))

	sorted := r.SortedIssues(r.AllIssues())
	got := make([]string, 0, len(sorted))
	for _, i := range sorted {
		got = append(got, i.Description)
	}
	assert.Equal(t, []string{"y", "x", "z"}, got)
}

func populated(t *testing.T) *Report {
	t.Helper()
	ps := params.New()
	ps.Register("ModuleSizeLimitKB", 1024)
	ps.Register("FixedTimestepMinMs", 20)
	ps.Set("FixedTimestepMinMs", 33, models.PlatformAndroid)

	r := New(
		WithSession(Session{
			ToolVersion: "1.2.3", OS: "linux", Arch: "amd64",
			Platform: models.PlatformAndroid, Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		}),
		WithCatalog(testCatalog(t)),
		WithParams(ps),
		WithRules(rules.NewSet(rules.Rule{ID: "API0001", Filter: "Game.Player::Update()", Severity: models.SeverityNone})),
	)
	withTree := issue(models.CategoryCode, "API0001", "concat")
	withTree.Dependencies = &models.CallNode{
		Name:     "Game.Player::Update()",
		Location: &models.Location{Path: "Player.cs", Line: 3},
		Children: []*models.CallNode{{Name: "Game.Loop::Tick()", Truncated: true}},
	}
	fixed := issue(models.CategorySettings, "SET0001", "timestep")
	fixed.Fixed = true
	r.AddIssues(withTree, issue(models.CategoryCode, "", "informational"), fixed)
	r.RecordModuleInfo(moduleInfo("code", OutcomeSuccess, models.CategoryCode))
	r.RecordModuleInfo(moduleInfo("settings", OutcomeSuccess, models.CategorySettings))
	return r
}

func TestRoundTrip(t *testing.T) {
	r := populated(t)
	path := filepath.Join(t.TempDir(), "out", "report.json")
	require.NoError(t, r.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)

	for _, cat := range []models.Category{models.CategoryCode, models.CategorySettings, models.CategoryAssembly} {
		assert.Equal(t, r.NumIssues(cat), loaded.NumIssues(cat), "category %s", cat)
	}
	for _, name := range r.Params().Names() {
		for _, p := range append([]models.Platform{models.PlatformDefault}, models.KnownPlatforms...) {
			want, err := r.Params().GetFor(name, p)
			require.NoError(t, err)
			got, err := loaded.Params().GetFor(name, p)
			require.NoError(t, err)
			assert.Equal(t, want, got, "%s on %s", name, p)
		}
	}
	assert.Equal(t, 33, loaded.Params().MustGet("FixedTimestepMinMs"))
	assert.Equal(t, r.Rules().List(), loaded.Rules().List())
	assert.Equal(t, r.Session(), loaded.Session())
	assert.Equal(t, 2, loaded.Catalog().Len())
	assert.True(t, loaded.HasCategory(models.CategorySettings))

	concat := loaded.FindByDescriptorID("API0001")[0]
	assert.True(t, concat.Dependencies.Children[0].Truncated)
	assert.Equal(t, models.SeverityNone, loaded.EffectiveSeverity(concat))
	assert.True(t, loaded.FindByDescriptorID("SET0001")[0].Fixed)
}

func TestReadRejectsInvalidDocuments(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, populated(t).Write(&buf))
	valid := buf.String()

	tests := []struct {
		name string
		doc  string
	}{
		{"not json", "{"},
		{"missing sections", `{"format_version":"1.0"}`},
		{"bad outcome", strings.Replace(valid, `"outcome": "success"`, `"outcome": "maybe"`, 1)},
		{"bad version", strings.Replace(valid, `"format_version": "1.0"`, `"format_version": "2.0"`, 1)},
		{"bad severity", strings.Replace(valid, `"severity": "none"`, `"severity": "urgent"`, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotEqual(t, valid, tt.doc)
			_, err := Read(strings.NewReader(tt.doc))
			var schemaErr *SchemaError
			assert.ErrorAs(t, err, &schemaErr)
		})
	}

	assert.NoError(t, Validate([]byte(valid)))
}

func TestReadRejectsDuplicateDescriptors(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, populated(t).Write(&buf))
	doc := strings.Replace(buf.String(), `"id": "SET0001"`, `"id": "API0001"`, 1)

	_, err := Read(strings.NewReader(doc))
	var dup *descriptor.DuplicateError
	assert.ErrorAs(t, err, &dup)
}
