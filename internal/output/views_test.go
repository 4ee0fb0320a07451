package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/panbanda/auger/pkg/descriptor"
	"github.com/panbanda/auger/pkg/models"
	"github.com/panbanda/auger/pkg/report"
	"github.com/panbanda/auger/pkg/rules"
)

func testCatalog(t *testing.T) *descriptor.Catalog {
	t.Helper()
	c := descriptor.NewCatalog()
	err := c.RegisterAll([]*descriptor.Descriptor{
		{
			ID: "API0001", Title: "Reflection", DefaultSeverity: models.SeverityMajor,
			Type: "System.Reflection.MethodInfo", Method: "Invoke",
			Areas:          []models.Area{models.AreaCPU},
			Recommendation: "Cache a delegate instead.",
		},
		{
			ID: "MEM0001", Title: "Boxing", DefaultSeverity: models.SeverityModerate,
			OpCode: "box", Platforms: []models.Platform{models.PlatformAndroid},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func testReport(t *testing.T, rs ...rules.Rule) *report.Report {
	t.Helper()
	rep := report.New(report.WithCatalog(testCatalog(t)), report.WithRules(rules.NewSet(rs...)))
	rep.AddIssues(
		&models.Issue{
			Category: models.CategoryCode, DescriptorID: "MEM0001",
			Description: "Boxing in 'Game.Player.Update'",
			Location:    &models.Location{Path: "Player.cs", Line: 21},
		},
		&models.Issue{
			Category: models.CategoryCode, DescriptorID: "API0001",
			Description: "System.Reflection.MethodInfo.Invoke",
			Location:    &models.Location{Path: "Reflect.cs", Line: 4},
			Dependencies: &models.CallNode{
				Name: "Game.Reflect::Scan()",
				Children: []*models.CallNode{
					{Name: "Game.Loop::Tick()", Location: &models.Location{Path: "Loop.cs", Line: 5}, Truncated: true},
				},
			},
		},
		&models.Issue{Category: models.CategoryAssembly, Severity: models.SeverityInfo, Description: "Game.dll has no symbols"},
	)
	return rep
}

func TestIssuesViewOrdersBySeverity(t *testing.T) {
	rows := NewIssuesView(testReport(t)).Rows()
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	got := []string{rows[0].DescriptorID, rows[1].DescriptorID, rows[2].DescriptorID}
	want := []string{"API0001", "MEM0001", ""}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("order = %v, want %v", got, want)
			break
		}
	}
	if rows[1].Location != "Player.cs:21" {
		t.Errorf("Location = %q", rows[1].Location)
	}
}

func TestIssuesViewAppliesRules(t *testing.T) {
	rep := testReport(t,
		rules.Rule{ID: "MEM0001", Severity: models.SeverityCritical},
		rules.Rule{ID: "API0001", Severity: models.SeverityHidden},
	)
	rows := NewIssuesView(rep).Rows()
	if len(rows) != 2 {
		t.Fatalf("hidden issue should be dropped, rows = %d", len(rows))
	}
	if rows[0].DescriptorID != "MEM0001" || rows[0].Severity != models.SeverityCritical {
		t.Errorf("first row = %+v, want MEM0001 critical", rows[0])
	}
}

func TestIssuesViewMinSeverity(t *testing.T) {
	rows := NewIssuesView(testReport(t), WithMinSeverity(models.SeverityModerate)).Rows()
	if len(rows) != 2 {
		t.Errorf("rows = %d, want 2", len(rows))
	}

	rep := testReport(t)
	rows = NewIssuesView(rep, WithIssues(rep.FindByDescriptorID("MEM0001"))).Rows()
	if len(rows) != 1 {
		t.Errorf("subset rows = %d, want 1", len(rows))
	}
}

func TestIssuesViewRenderText(t *testing.T) {
	var buf bytes.Buffer
	if err := NewIssuesView(testReport(t), WithCallTrees()).RenderText(&buf, false); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"[major]     API0001  System.Reflection.MethodInfo.Invoke",
		"Reflect.cs:4",
		"└── Game.Loop::Tick() (Loop.cs:5) ...",
		"Summary",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := NewIssuesView(report.New()).RenderText(&buf, false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No issues found.") {
		t.Errorf("empty report output = %q", buf.String())
	}
}

func TestIssuesViewRenderData(t *testing.T) {
	data, ok := NewIssuesView(testReport(t)).RenderData().(IssuesData)
	if !ok {
		t.Fatal("RenderData() should return IssuesData")
	}
	if data.Summary.Total != 3 || len(data.Issues) != 3 {
		t.Errorf("summary total = %d, issues = %d", data.Summary.Total, len(data.Issues))
	}
	if data.Summary.BySeverity[models.SeverityMajor] != 1 {
		t.Errorf("BySeverity = %v", data.Summary.BySeverity)
	}
}

func TestIssuesViewRenderMarkdown(t *testing.T) {
	var buf bytes.Buffer
	if err := NewIssuesView(testReport(t)).RenderMarkdown(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "| moderate | MEM0001 | Boxing in 'Game.Player.Update' | Player.cs:21 |") {
		t.Errorf("markdown missing MEM0001 row:\n%s", out)
	}
	if !strings.Contains(out, "| total | 3 |") {
		t.Errorf("markdown missing summary footer:\n%s", out)
	}
}

func TestCallTree(t *testing.T) {
	root := &models.CallNode{
		Name: "Game.Player::Update()",
		Children: []*models.CallNode{
			{
				Name:     "Game.Loop::Tick()",
				Location: &models.Location{Path: "Loop.cs", Line: 5},
				Children: []*models.CallNode{{Name: "Game.Main::Main()"}},
			},
			{Name: "Game.Ai::Think()", Truncated: true},
		},
	}

	want := "Game.Player::Update()\n" +
		"├── Game.Loop::Tick() (Loop.cs:5)\n" +
		"│   └── Game.Main::Main()\n" +
		"└── Game.Ai::Think() ...\n"
	if got := CallTree(root); got != want {
		t.Errorf("CallTree() =\n%s\nwant\n%s", got, want)
	}
	if CallTree(nil) != "" {
		t.Error("CallTree(nil) should be empty")
	}
}

func TestDescriptorsTable(t *testing.T) {
	table := NewDescriptorsTable(testCatalog(t).List())
	if len(table.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(table.Rows))
	}
	byID := make(map[string][]string)
	for _, row := range table.Rows {
		byID[row[0]] = row
	}
	if got := byID["API0001"][3]; got != "System.Reflection.MethodInfo::Invoke" {
		t.Errorf("API0001 criteria = %q", got)
	}
	if got := byID["MEM0001"][3]; got != "box" {
		t.Errorf("MEM0001 criteria = %q", got)
	}
	if got := byID["MEM0001"][4]; got != "android" {
		t.Errorf("MEM0001 platforms = %q", got)
	}
}

func TestDescriptorView(t *testing.T) {
	d := testCatalog(t).MustGet("API0001")

	var buf bytes.Buffer
	if err := (DescriptorView{D: d}).RenderText(&buf, false); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"API0001 Reflection", "Severity: major", "Areas: cpu", "Cache a delegate instead."} {
		if !strings.Contains(out, want) {
			t.Errorf("descriptor output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Fixable") {
		t.Error("descriptor without fixer should not be fixable")
	}
	if (DescriptorView{D: d}).RenderData() != d {
		t.Error("RenderData() should return the descriptor")
	}
}

func TestModulesTable(t *testing.T) {
	now := time.Now()
	table := ModulesTable([]report.ModuleInfo{
		{Name: "code", Categories: []models.Category{models.CategoryCode}, StartTime: now, EndTime: now.Add(1500 * time.Millisecond), Outcome: report.OutcomeSuccess},
		{Name: "settings", Categories: []models.Category{models.CategorySettings}, StartTime: now, EndTime: now, Outcome: report.OutcomeFailure, Error: "boom"},
	}, false)

	if got := table.Rows[0][3]; got != "1.5s" {
		t.Errorf("duration = %q, want 1.5s", got)
	}
	if got := table.Rows[1]; got[2] != "failure" || got[4] != "boom" {
		t.Errorf("failure row = %v", got)
	}
}
