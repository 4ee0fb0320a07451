package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/panbanda/auger/pkg/models"
)

func writeHeading(w io.Writer, title string, underline string, c *color.Color) {
	if c != nil {
		c.Fprintln(w, title)
	} else {
		fmt.Fprintln(w, title)
	}
	fmt.Fprintln(w, strings.Repeat(underline, len(title)))
}

func headingColor(colored bool, attrs ...color.Attribute) *color.Color {
	if !colored {
		return nil
	}
	return color.New(append([]color.Attribute{color.Bold}, attrs...)...)
}

// Table is a titled grid of cells. Data, when set, is what JSON and TOON
// output serialize instead of the cells.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
	Footer  []string
	Data    any

	// severityCol is the 1-based column holding severity names; 0 means none.
	severityCol int
}

// NewTable creates a table.
func NewTable(title string, headers []string, rows [][]string, footer []string, data any) *Table {
	return &Table{Title: title, Headers: headers, Rows: rows, Footer: footer, Data: data}
}

// WithSeverityColumn marks column col as holding severity names, which
// colored text output tints by severity.
func (t *Table) WithSeverityColumn(col int) *Table {
	t.severityCol = col + 1
	return t
}

func (t *Table) RenderData() any {
	if t.Data != nil {
		return t.Data
	}
	records := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]string, len(t.Headers))
		for j := 0; j < len(t.Headers) && j < len(row); j++ {
			rec[t.Headers[j]] = row[j]
		}
		records = append(records, rec)
	}
	return records
}

// cells returns row with the severity column tinted when colored.
func (t *Table) cells(row []string, colored bool) []string {
	col := t.severityCol - 1
	if !colored || col < 0 || col >= len(row) {
		return row
	}
	sev, err := models.ParseSeverity(row[col])
	if err != nil {
		return row
	}
	out := append([]string(nil), row...)
	out[col] = SeverityColor(sev, row[col])
	return out
}

func (t *Table) RenderText(w io.Writer, colored bool) error {
	if t.Title != "" {
		writeHeading(w, t.Title, "=", headingColor(colored))
		fmt.Fprintln(w)
	}

	left := tw.CellAlignment{Global: tw.AlignLeft}
	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{Alignment: left, Formatting: tw.CellFormatting{AutoFormat: tw.On}},
			Row:    tw.CellConfig{Alignment: left},
			Footer: tw.CellConfig{Alignment: left},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders:  tw.Border{Left: tw.Off, Right: tw.Off, Top: tw.Off, Bottom: tw.Off},
			Settings: tw.Settings{Separators: tw.Separators{BetweenColumns: tw.Off}},
		}),
	)
	table.Header(t.Headers)
	for _, row := range t.Rows {
		if err := table.Append(t.cells(row, colored)); err != nil {
			return err
		}
	}
	if len(t.Footer) > 0 {
		footer := make([]any, 0, len(t.Footer))
		for _, cell := range t.Footer {
			footer = append(footer, cell)
		}
		table.Footer(footer...)
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return nil
}

func (t *Table) RenderMarkdown(w io.Writer) error {
	if t.Title != "" {
		fmt.Fprintf(w, "## %s\n\n", t.Title)
	}
	line := func(cells []string) {
		fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
	}
	line(t.Headers)
	seps := make([]string, len(t.Headers))
	for i := range seps {
		seps[i] = "---"
	}
	line(seps)
	for _, row := range t.Rows {
		line(row)
	}
	if len(t.Footer) > 0 {
		line(t.Footer)
	}
	fmt.Fprintln(w)
	return nil
}

// Section is a titled block of text, an optional caller hierarchy and
// nested subsections.
type Section struct {
	Title    string           `json:"title,omitempty"`
	Content  string           `json:"content,omitempty"`
	Tree     *models.CallNode `json:"tree,omitempty"`
	Sections []Section        `json:"sections,omitempty"`
	Data     any              `json:"-"`
}

func (s *Section) RenderData() any {
	if s.Data != nil {
		return s.Data
	}
	return s
}

func (s *Section) RenderText(w io.Writer, colored bool) error {
	s.text(w, colored, 0)
	return nil
}

func (s *Section) text(w io.Writer, colored bool, depth int) {
	if s.Title != "" {
		underline := "-"
		if depth == 0 {
			underline = "="
		}
		writeHeading(w, s.Title, underline, headingColor(colored))
	}
	if s.Content != "" {
		fmt.Fprintln(w, s.Content)
	}
	if s.Tree != nil {
		io.WriteString(w, CallTree(s.Tree))
	}
	for i := range s.Sections {
		fmt.Fprintln(w)
		s.Sections[i].text(w, colored, depth+1)
	}
}

func (s *Section) RenderMarkdown(w io.Writer) error {
	s.markdown(w, 2)
	return nil
}

func (s *Section) markdown(w io.Writer, level int) {
	if s.Title != "" {
		fmt.Fprintf(w, "%s %s\n\n", strings.Repeat("#", level), s.Title)
	}
	if s.Content != "" {
		fmt.Fprintf(w, "%s\n\n", s.Content)
	}
	if s.Tree != nil {
		fmt.Fprintf(w, "```\n%s```\n\n", CallTree(s.Tree))
	}
	for i := range s.Sections {
		s.Sections[i].markdown(w, level+1)
	}
}

// Document is a titled sequence of views.
type Document struct {
	Title    string
	Sections []Renderable
	Data     any
}

func (d *Document) RenderData() any {
	if d.Data != nil {
		return d.Data
	}
	parts := make([]any, 0, len(d.Sections))
	for _, s := range d.Sections {
		parts = append(parts, s.RenderData())
	}
	return map[string]any{"title": d.Title, "sections": parts}
}

func (d *Document) RenderText(w io.Writer, colored bool) error {
	if d.Title != "" {
		writeHeading(w, d.Title, "=", headingColor(colored, color.FgCyan))
		fmt.Fprintln(w)
	}
	for i, s := range d.Sections {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if err := s.RenderText(w, colored); err != nil {
			return err
		}
	}
	return nil
}

func (d *Document) RenderMarkdown(w io.Writer) error {
	if d.Title != "" {
		fmt.Fprintf(w, "# %s\n\n", d.Title)
	}
	for _, s := range d.Sections {
		if err := s.RenderMarkdown(w); err != nil {
			return err
		}
	}
	return nil
}

// SeverityColor tints text by severity.
func SeverityColor(severity models.Severity, text string) string {
	switch severity {
	case models.SeverityCritical, models.SeverityMajor:
		return color.RedString(text)
	case models.SeverityModerate:
		return color.YellowString(text)
	case models.SeverityMinor:
		return color.CyanString(text)
	case models.SeverityInfo, models.SeverityNone:
		return color.HiBlackString(text)
	default:
		return text
	}
}
