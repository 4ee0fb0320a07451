package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/auger/internal/output"
	"github.com/panbanda/auger/pkg/models"
	"github.com/panbanda/auger/pkg/report"
)

func reportCmd() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Work with saved audit reports",
		Subcommands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Display a saved report",
				ArgsUsage: "<report.json>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "min-severity",
						Usage: "Hide issues below this severity",
					},
					&cli.StringFlag{
						Name:  "category",
						Usage: "Only show issues of this category",
					},
					&cli.StringFlag{
						Name:  "id",
						Usage: "Only show issues of this descriptor",
					},
					&cli.BoolFlag{
						Name:  "tree",
						Usage: "Show the call paths reaching each issue",
					},
				},
				Action: runReportShowCmd,
			},
			{
				Name:      "validate",
				Usage:     "Check a saved report against the report schema",
				ArgsUsage: "<report.json>",
				Action:    runReportValidateCmd,
			},
		},
	}
}

func runReportShowCmd(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("report path is required")
	}
	minSeverity, err := parseMinSeverity(c.String("min-severity"))
	if err != nil {
		return err
	}
	rep, err := report.Load(path)
	if err != nil {
		return err
	}
	loaded, err := loadConfig(c)
	if err != nil {
		return err
	}

	opts := []output.IssuesOption{output.WithMinSeverity(minSeverity)}
	switch {
	case c.String("id") != "":
		opts = append(opts, output.WithIssues(rep.FindByDescriptorID(c.String("id"))))
	case c.String("category") != "":
		opts = append(opts, output.WithIssues(rep.FindByCategory(models.Category(c.String("category")))))
	}
	if c.Bool("tree") {
		opts = append(opts, output.WithCallTrees())
	}

	formatter, err := newFormatter(c, loaded.Config)
	if err != nil {
		return err
	}
	defer formatter.Close()
	if !rep.IsValid() {
		formatter.Notify(output.ToneWarning, "Report is incomplete: some modules failed or were cancelled")
	}
	return formatter.Output(output.NewIssuesView(rep, opts...))
}

func runReportValidateCmd(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("report path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := report.Validate(data); err != nil {
		color.Red("Report validation failed:")
		fmt.Printf("  - %s\n", err)
		return err
	}
	color.Green("Report valid: %s", path)
	return nil
}
