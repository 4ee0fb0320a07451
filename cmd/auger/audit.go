package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/auger/internal/output"
	"github.com/panbanda/auger/internal/progress"
	"github.com/panbanda/auger/pkg/analyzer"
	"github.com/panbanda/auger/pkg/auditor"
	"github.com/panbanda/auger/pkg/models"
	"github.com/panbanda/auger/pkg/report"
)

// errIssuesFound fails the command when --fail-on is met.
var errIssuesFound = errors.New("issues at or above the failure severity were found")

func auditCmd() *cli.Command {
	return &cli.Command{
		Name:      "audit",
		Usage:     "Audit bytecode modules and project settings",
		ArgsUsage: "[path...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "platform",
				Aliases: []string{"p"},
				Usage:   "Target platform: windows, macos, linux, android, ios, webgl",
			},
			&cli.StringFlag{
				Name:  "runtime-version",
				Usage: "Runtime version used to filter descriptors",
			},
			&cli.StringFlag{
				Name:  "settings",
				Usage: "Project settings file to check (YAML, TOML, or JSON)",
			},
			&cli.StringSliceFlag{
				Name:  "category",
				Usage: "Only run modules producing these categories: code, assembly, settings",
			},
			&cli.BoolFlag{
				Name:  "parallel",
				Usage: "Run analyzer modules concurrently",
			},
			&cli.StringFlag{
				Name:  "min-severity",
				Usage: "Hide issues below this severity",
			},
			&cli.StringFlag{
				Name:  "fail-on",
				Usage: "Exit with an error when an issue at or above this severity is found",
			},
			&cli.BoolFlag{
				Name:  "tree",
				Usage: "Show the call paths reaching each issue",
			},
			&cli.StringFlag{
				Name:  "save",
				Usage: "Save the full report as JSON to this file",
			},
			&cli.BoolFlag{
				Name:  "fix",
				Usage: "Apply automatic fixes for fixable issues",
			},
		},
		Action: runAuditCmd,
	}
}

func runAuditCmd(c *cli.Context) error {
	loaded, err := loadConfig(c)
	if err != nil {
		return err
	}
	cfg := loaded.Config
	if c.IsSet("parallel") {
		cfg.Analysis.Parallel = c.Bool("parallel")
	}
	minSeverity, err := parseMinSeverity(c.String("min-severity"))
	if err != nil {
		return err
	}
	failOn, err := parseMinSeverity(c.String("fail-on"))
	if err != nil {
		return err
	}

	paths := c.Args().Slice()
	if len(paths) == 0 {
		paths = cfg.Modules.Paths
	}
	if len(paths) == 0 {
		paths = []string{"."}
	}
	modules, err := discover(cfg, paths)
	if err != nil {
		return err
	}

	a, err := newAuditor(cfg)
	if err != nil {
		return err
	}
	p := a.DefaultParams(modules)
	if v := c.String("platform"); v != "" {
		p.Platform = models.ParsePlatform(v)
	}
	if v := c.String("runtime-version"); v != "" {
		p.RuntimeVersion = v
	}
	if v := c.String("settings"); v != "" {
		p.SettingsPath = v
	}
	if cats := c.StringSlice("category"); len(cats) > 0 {
		p.Categories = nil
		for _, cat := range cats {
			p.Categories = append(p.Categories, models.Category(cat))
		}
	}
	formatter, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()

	if len(modules) == 0 && p.SettingsPath == "" {
		formatter.Notify(output.ToneWarning, "No modules found")
		return nil
	}

	bar := progress.NewBar("Auditing")
	ctx := analyzer.WithTracker(c.Context, bar.Tracker())
	rep, err := a.Audit(ctx, p)
	if err != nil {
		bar.FinishError(err)
		return fmt.Errorf("audit failed: %w", err)
	}
	bar.FinishSuccess()

	if c.Bool("fix") {
		applyFixes(c, formatter, a, rep)
	}

	if path := c.String("save"); path != "" {
		if err := rep.Save(path); err != nil {
			return fmt.Errorf("saving report: %w", err)
		}
	}

	opts := []output.IssuesOption{output.WithMinSeverity(minSeverity)}
	if c.Bool("tree") {
		opts = append(opts, output.WithCallTrees())
	}
	if err := formatter.Output(output.NewIssuesView(rep, opts...)); err != nil {
		return err
	}
	if cfg.Output.Verbose && formatter.Format() == output.FormatText {
		if err := formatter.Output(output.ModulesTable(rep.Modules(), formatter.Colored())); err != nil {
			return err
		}
	}
	reportFailures(formatter, rep)

	if failOn != models.SeverityDefault && hasIssuesAtLeast(rep, failOn) {
		return errIssuesFound
	}
	return nil
}

// applyFixes runs the fixer of every unfixed issue that has one.
func applyFixes(c *cli.Context, f *output.Formatter, a *auditor.Auditor, rep *report.Report) {
	fixed := 0
	for _, issue := range rep.AllIssues() {
		if issue.Fixed {
			continue
		}
		d, ok := a.Catalog().Get(issue.DescriptorID)
		if !ok || !d.CanFix() {
			continue
		}
		if err := a.Fix(c.Context, rep, issue); err != nil {
			f.Notify(output.ToneError, "Fixing %s failed: %v", issue.DescriptorID, err)
			continue
		}
		fixed++
	}
	if fixed > 0 {
		f.Notify(output.ToneSuccess, "Fixed %d issue(s)", fixed)
	}
}

func reportFailures(f *output.Formatter, rep *report.Report) {
	for _, m := range rep.Modules() {
		switch m.Outcome {
		case report.OutcomeFailure:
			f.Notify(output.ToneError, "Module %s failed: %s", m.Name, m.Error)
		case report.OutcomeCancelled:
			f.Notify(output.ToneWarning, "Module %s was cancelled", m.Name)
		}
	}
}

func hasIssuesAtLeast(rep *report.Report, sev models.Severity) bool {
	for _, issue := range rep.AllIssues() {
		if issue.Fixed {
			continue
		}
		eff := rep.EffectiveSeverity(issue)
		if eff.IsCounted() && eff.Rank() >= sev.Rank() {
			return true
		}
	}
	return false
}
