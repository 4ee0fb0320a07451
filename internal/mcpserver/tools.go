package mcpserver

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	toon "github.com/toon-format/toon-go"

	"github.com/panbanda/auger/internal/output"
	"github.com/panbanda/auger/pkg/descriptor"
	"github.com/panbanda/auger/pkg/models"
	"github.com/panbanda/auger/pkg/scan"
)

// AuditInput selects the modules and options of an audit.
type AuditInput struct {
	Paths          []string `json:"paths,omitempty" jsonschema:"Module files or directories to audit. Defaults to current directory if empty."`
	Platform       string   `json:"platform,omitempty" jsonschema:"Target platform: windows, macos, linux, android, ios or webgl. Defaults to the configured platform."`
	RuntimeVersion string   `json:"runtime_version,omitempty" jsonschema:"Runtime version used to filter descriptors, e.g. 2022.3."`
	Settings       string   `json:"settings,omitempty" jsonschema:"Project settings file (YAML, TOML or JSON) checked by the settings module."`
	Categories     []string `json:"categories,omitempty" jsonschema:"Limit the audit to these categories: code, assembly, settings."`
	MinSeverity    string   `json:"min_severity,omitempty" jsonschema:"Drop issues below this severity: critical, major, moderate, minor or info."`
	Format         string   `json:"format,omitempty" jsonschema:"Output format: toon (default), json, or markdown."`
}

// ListDescriptorsInput filters the descriptor catalog.
type ListDescriptorsInput struct {
	Area     string `json:"area,omitempty" jsonschema:"Only list descriptors tagged with this area, e.g. memory or cpu."`
	Platform string `json:"platform,omitempty" jsonschema:"Only list descriptors applicable to this platform."`
	Format   string `json:"format,omitempty" jsonschema:"Output format: toon (default), json, or markdown."`
}

// DescribeDescriptorInput names one descriptor.
type DescribeDescriptorInput struct {
	ID     string `json:"id" jsonschema:"Descriptor id, e.g. API0001."`
	Format string `json:"format,omitempty" jsonschema:"Output format: toon (default), json, or markdown."`
}

func getPaths(paths []string) []string {
	if len(paths) == 0 {
		return []string{"."}
	}
	return paths
}

func getFormat(format string) output.Format {
	switch format {
	case "json":
		return output.FormatJSON
	case "markdown", "md":
		return output.FormatMarkdown
	default:
		return output.FormatTOON
	}
}

func formatOutput(data any, format output.Format) (string, error) {
	out, err := toon.Marshal(data, toon.WithIndent(2))
	if err != nil {
		return "", err
	}
	if format == output.FormatMarkdown {
		return "```\n" + string(out) + "\n```", nil
	}
	return string(out), nil
}

func toolResult(data any, format output.Format) (*mcp.CallToolResult, any, error) {
	text, err := formatOutput(data, format)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}, nil, nil
}

func toolError(msg string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "Error: " + msg},
		},
		IsError: true,
	}, nil, nil
}

func (s *Server) handleAudit(ctx context.Context, req *mcp.CallToolRequest, input AuditInput) (*mcp.CallToolResult, any, error) {
	format := getFormat(input.Format)

	var minSeverity models.Severity
	if input.MinSeverity != "" {
		sev, err := models.ParseSeverity(input.MinSeverity)
		if err != nil {
			return toolError(err.Error())
		}
		minSeverity = sev
	}

	cfg := s.cfg.Clone()
	modules, err := scan.Discover(getPaths(input.Paths), cfg.Modules.Include, cfg.Modules.Exclude)
	if err != nil {
		return toolError(err.Error())
	}
	if len(modules) == 0 && input.Settings == "" {
		return toolError("no modules found")
	}

	a, err := s.newAuditor()
	if err != nil {
		return toolError(err.Error())
	}
	p := a.DefaultParams(modules)
	if input.Platform != "" {
		p.Platform = models.ParsePlatform(input.Platform)
	}
	if input.RuntimeVersion != "" {
		p.RuntimeVersion = input.RuntimeVersion
	}
	if input.Settings != "" {
		p.SettingsPath = input.Settings
	}
	if len(input.Categories) > 0 {
		p.Categories = nil
		for _, c := range input.Categories {
			p.Categories = append(p.Categories, models.Category(strings.ToLower(c)))
		}
	}

	rep, err := a.Audit(ctx, p)
	if err != nil {
		return toolError(err.Error())
	}
	view := output.NewIssuesView(rep, output.WithMinSeverity(minSeverity))
	return toolResult(view.RenderData(), format)
}

// descriptorSummary is the catalog listing entry.
type descriptorSummary struct {
	ID        string          `json:"id" toon:"id"`
	Title     string          `json:"title" toon:"title"`
	Severity  models.Severity `json:"severity" toon:"severity"`
	Areas     string          `json:"areas,omitempty" toon:"areas"`
	Platforms string          `json:"platforms,omitempty" toon:"platforms"`
	Fixable   bool            `json:"fixable,omitempty" toon:"fixable"`
}

func (s *Server) handleListDescriptors(ctx context.Context, req *mcp.CallToolRequest, input ListDescriptorsInput) (*mcp.CallToolResult, any, error) {
	a, err := s.newAuditor()
	if err != nil {
		return toolError(err.Error())
	}
	platform := models.ParsePlatform(input.Platform)

	var out []descriptorSummary
	for _, d := range a.Catalog().List() {
		if input.Area != "" && !d.HasArea(models.Area(input.Area)) {
			continue
		}
		if !descriptor.IsApplicable(d, platform, "") {
			continue
		}
		out = append(out, descriptorSummary{
			ID:        d.ID,
			Title:     d.Title,
			Severity:  d.DefaultSeverity,
			Areas:     joinStrings(d.Areas),
			Platforms: joinStrings(d.Platforms),
			Fixable:   d.CanFix(),
		})
	}
	return toolResult(out, getFormat(input.Format))
}

func (s *Server) handleDescribeDescriptor(ctx context.Context, req *mcp.CallToolRequest, input DescribeDescriptorInput) (*mcp.CallToolResult, any, error) {
	if input.ID == "" {
		return toolError("id is required")
	}
	a, err := s.newAuditor()
	if err != nil {
		return toolError(err.Error())
	}
	d, err := a.Catalog().Lookup(strings.ToUpper(input.ID))
	if err != nil {
		return toolError(err.Error())
	}
	return toolResult(d, getFormat(input.Format))
}

func joinStrings[T fmt.Stringer](vs []T) string {
	parts := make([]string, 0, len(vs))
	for _, v := range vs {
		parts = append(parts, v.String())
	}
	slices.Sort(parts)
	return strings.Join(parts, ",")
}
