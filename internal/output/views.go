package output

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/fatih/color"

	"github.com/panbanda/auger/pkg/descriptor"
	"github.com/panbanda/auger/pkg/models"
	"github.com/panbanda/auger/pkg/report"
)

// IssueRow is the serialized form of one displayed issue.
type IssueRow struct {
	DescriptorID string           `json:"descriptor_id,omitempty" toon:"descriptor_id"`
	Severity     models.Severity  `json:"severity" toon:"severity"`
	Category     models.Category  `json:"category" toon:"category"`
	Description  string           `json:"description" toon:"description"`
	Location     string           `json:"location,omitempty" toon:"location"`
	Fixed        bool             `json:"fixed,omitempty" toon:"fixed"`
	Dependencies *models.CallNode `json:"dependencies,omitempty" toon:"-"`
}

// IssuesData is the serialized form of an IssuesView.
type IssuesData struct {
	Session report.Session `json:"session" toon:"session"`
	Summary report.Summary `json:"summary" toon:"summary"`
	Issues  []IssueRow     `json:"issues" toon:"issues"`
}

// IssuesView renders the issues of a report ordered by effective severity.
// Issues whose effective severity is not visible are left out.
type IssuesView struct {
	rep      *report.Report
	issues   []*models.Issue
	min      models.Severity
	showTree bool
}

// IssuesOption configures an IssuesView.
type IssuesOption func(*IssuesView)

// WithMinSeverity hides issues ranked below sev.
func WithMinSeverity(sev models.Severity) IssuesOption {
	return func(v *IssuesView) {
		v.min = sev
	}
}

// WithCallTrees prints the caller hierarchy under each issue.
func WithCallTrees() IssuesOption {
	return func(v *IssuesView) {
		v.showTree = true
	}
}

// WithIssues renders a subset of the report's issues.
func WithIssues(issues []*models.Issue) IssuesOption {
	return func(v *IssuesView) {
		v.issues = issues
	}
}

// NewIssuesView creates a view over rep.
func NewIssuesView(rep *report.Report, opts ...IssuesOption) *IssuesView {
	v := &IssuesView{rep: rep}
	for _, opt := range opts {
		opt(v)
	}
	if v.issues == nil {
		v.issues = rep.AllIssues()
	}
	return v
}

// Rows returns the visible issues, most severe first.
func (v *IssuesView) Rows() []IssueRow {
	var rows []IssueRow
	for _, i := range v.rep.SortedIssues(v.issues) {
		sev := v.rep.EffectiveSeverity(i)
		if !sev.IsVisible() || (v.min != models.SeverityDefault && sev.Rank() < v.min.Rank()) {
			continue
		}
		rows = append(rows, IssueRow{
			DescriptorID: i.DescriptorID,
			Severity:     sev,
			Category:     i.Category,
			Description:  i.Description,
			Location:     i.Location.String(),
			Fixed:        i.Fixed,
			Dependencies: i.Dependencies,
		})
	}
	return rows
}

func (v *IssuesView) RenderData() any {
	return IssuesData{
		Session: v.rep.Session(),
		Summary: v.rep.Summary(),
		Issues:  v.Rows(),
	}
}

func (v *IssuesView) RenderText(w io.Writer, colored bool) error {
	rows := v.Rows()
	if len(rows) == 0 {
		fmt.Fprintln(w, "No issues found.")
		return nil
	}

	for _, row := range rows {
		sev := fmt.Sprintf("%-11s", "["+string(row.Severity)+"]")
		if colored {
			sev = SeverityColor(row.Severity, sev)
		}
		id := row.DescriptorID
		if id == "" {
			id = "-"
		}
		fmt.Fprintf(w, "%s %-8s %s\n", sev, id, row.Description)
		if row.Location != "" {
			fmt.Fprintf(w, "%20s%s\n", "", row.Location)
		}
		if v.showTree && row.Dependencies.HasChildren() {
			writeTree(w, row.Dependencies, strings.Repeat(" ", 20))
		}
	}
	fmt.Fprintln(w)
	return NewSummaryTable(v.rep.Summary()).RenderText(w, colored)
}

func (v *IssuesView) RenderMarkdown(w io.Writer) error {
	rows := v.Rows()
	table := make([][]string, 0, len(rows))
	for _, row := range rows {
		table = append(table, []string{string(row.Severity), row.DescriptorID, row.Description, row.Location})
	}
	t := NewTable("Issues", []string{"Severity", "ID", "Description", "Location"}, table, nil, nil)
	if err := t.RenderMarkdown(w); err != nil {
		return err
	}
	return NewSummaryTable(v.rep.Summary()).RenderMarkdown(w)
}

// NewSummaryTable tabulates issue counts by severity.
func NewSummaryTable(s report.Summary) *Table {
	var rows [][]string
	for _, sev := range models.Severities {
		if n := s.BySeverity[sev]; n > 0 {
			rows = append(rows, []string{string(sev), fmt.Sprint(n)})
		}
	}
	footer := []string{"total", fmt.Sprint(s.Total)}
	return NewTable("Summary", []string{"Severity", "Issues"}, rows, footer, s).WithSeverityColumn(0)
}

// CallTree renders a caller hierarchy as an indented tree.
func CallTree(root *models.CallNode) string {
	if root == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(root.Name)
	b.WriteByte('\n')
	writeTree(&b, root, "")
	return b.String()
}

func writeTree(w io.Writer, n *models.CallNode, indent string) {
	for i, child := range n.Children {
		branch, next := "├── ", "│   "
		if i == len(n.Children)-1 {
			branch, next = "└── ", "    "
		}
		line := child.Name
		if child.Location != nil {
			line += " (" + child.Location.String() + ")"
		}
		if child.Truncated {
			line += " ..."
		}
		fmt.Fprintf(w, "%s%s%s\n", indent, branch, line)
		writeTree(w, child, indent+next)
	}
}

// NewDescriptorsTable lists descriptors.
func NewDescriptorsTable(ds []*descriptor.Descriptor) *Table {
	rows := make([][]string, 0, len(ds))
	for _, d := range ds {
		criteria := d.OpCode
		if d.Type != "" {
			criteria = d.Type + "::" + d.Method
		}
		platforms := make([]string, 0, len(d.Platforms))
		for _, p := range d.Platforms {
			platforms = append(platforms, p.String())
		}
		rows = append(rows, []string{
			d.ID,
			string(d.DefaultSeverity),
			d.Title,
			criteria,
			strings.Join(platforms, ","),
		})
	}
	return NewTable("Descriptors", []string{"ID", "Severity", "Title", "Matches", "Platforms"}, rows,
		[]string{"", "", fmt.Sprintf("%d descriptors", len(ds)), "", ""}, ds).WithSeverityColumn(1)
}

// DescriptorView renders one descriptor in full.
type DescriptorView struct {
	D *descriptor.Descriptor
}

func (v DescriptorView) RenderData() any {
	return v.D
}

func (v DescriptorView) section() *Section {
	d := v.D
	var details []string
	details = append(details, "Severity: "+string(d.DefaultSeverity))
	if len(d.Areas) > 0 {
		areas := make([]string, 0, len(d.Areas))
		for _, a := range d.Areas {
			areas = append(areas, a.String())
		}
		details = append(details, "Areas: "+strings.Join(areas, ", "))
	}
	if len(d.Platforms) > 0 {
		ps := make([]string, 0, len(d.Platforms))
		for _, p := range d.Platforms {
			ps = append(ps, p.String())
		}
		details = append(details, "Platforms: "+strings.Join(ps, ", "))
	}
	if d.MinVersion != "" || d.MaxVersion != "" {
		details = append(details, fmt.Sprintf("Versions: %s - %s", d.MinVersion, d.MaxVersion))
	}
	if d.CanFix() {
		details = append(details, "Fixable: yes")
	}

	s := &Section{
		Title:   d.ID + " " + d.Title,
		Content: strings.Join(details, "\n"),
	}
	if d.Description != "" {
		s.Sections = append(s.Sections, Section{Title: "Description", Content: d.Description})
	}
	if d.Recommendation != "" {
		s.Sections = append(s.Sections, Section{Title: "Recommendation", Content: d.Recommendation})
	}
	if d.DocumentationURL != "" {
		s.Sections = append(s.Sections, Section{Title: "Documentation", Content: d.DocumentationURL})
	}
	return s
}

func (v DescriptorView) RenderText(w io.Writer, colored bool) error {
	return v.section().RenderText(w, colored)
}

func (v DescriptorView) RenderMarkdown(w io.Writer) error {
	return v.section().RenderMarkdown(w)
}

// ModulesTable lists analyzer module runs of a report.
func ModulesTable(mods []report.ModuleInfo, colored bool) *Table {
	rows := make([][]string, 0, len(mods))
	for _, m := range mods {
		outcome := string(m.Outcome)
		if colored && m.Outcome != report.OutcomeSuccess {
			outcome = color.RedString(outcome)
		}
		cats := make([]string, 0, len(m.Categories))
		for _, c := range m.Categories {
			cats = append(cats, c.String())
		}
		slices.Sort(cats)
		rows = append(rows, []string{m.Name, strings.Join(cats, ","), outcome, m.Duration().Round(1e6).String(), m.Error})
	}
	return NewTable("Modules", []string{"Module", "Categories", "Outcome", "Duration", "Error"}, rows, nil, mods)
}
