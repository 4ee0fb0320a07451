package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/auger/internal/output"
	"github.com/panbanda/auger/pkg/analyzer/code"
)

func graphCmd() *cli.Command {
	return &cli.Command{
		Name:      "graph",
		Usage:     "Summarize the call graph, or show the callers of one method",
		ArgsUsage: "[path...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "method",
				Aliases: []string{"m"},
				Usage:   "Show the caller tree of this method, e.g. 'Game.Player::Update()'",
			},
			&cli.IntFlag{
				Name:  "depth",
				Usage: "Maximum caller depth (defaults to analysis.call_depth)",
			},
		},
		Action: runGraphCmd,
	}
}

func runGraphCmd(c *cli.Context) error {
	loaded, err := loadConfig(c)
	if err != nil {
		return err
	}
	cfg := loaded.Config
	modules, err := discover(cfg, getPaths(c))
	if err != nil {
		return err
	}
	formatter, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()
	if len(modules) == 0 {
		formatter.Notify(output.ToneWarning, "No modules found")
		return nil
	}

	graph, failures, err := code.CallGraph(c.Context, modules)
	if err != nil {
		return fmt.Errorf("building call graph: %w", err)
	}
	for _, f := range failures {
		formatter.Notify(output.ToneWarning, "Skipped %s: %v", f.Path, f.Err)
	}

	if method := c.String("method"); method != "" {
		depth := c.Int("depth")
		if depth <= 0 {
			depth = cfg.Analysis.CallDepth
		}
		root := graph.Hierarchy(method, depth)
		if !root.HasChildren() {
			formatter.Notify(output.ToneWarning, "No callers of %s", method)
		}
		return formatter.Output(&output.Section{Title: "Callers of " + method, Tree: root, Data: root})
	}

	stats := graph.Stats()
	summary := output.NewTable("Call graph", []string{"Metric", "Value"}, [][]string{
		{"Methods", fmt.Sprint(stats.Methods)},
		{"Call edges", fmt.Sprint(stats.Edges)},
		{"Entry points", fmt.Sprint(stats.Roots)},
		{"Recursive methods", fmt.Sprint(stats.SelfCalls)},
		{"Cycles", fmt.Sprint(len(stats.Cycles))},
	}, nil, nil)
	doc := &output.Document{Sections: []output.Renderable{summary}, Data: stats}
	if len(stats.Cycles) > 0 {
		cycles := make([]string, 0, len(stats.Cycles))
		for _, cycle := range stats.Cycles {
			cycles = append(cycles, "- "+strings.Join(cycle, " -> "))
		}
		doc.Sections = append(doc.Sections, &output.Section{Title: "Cycles", Content: strings.Join(cycles, "\n")})
	}
	return formatter.Output(doc)
}
