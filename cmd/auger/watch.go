package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/auger/internal/output"
	"github.com/panbanda/auger/pkg/models"
	"github.com/panbanda/auger/pkg/report"
	"github.com/panbanda/auger/pkg/watch"
)

func watchCmd() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Audit modules and re-audit whenever they are rebuilt",
		ArgsUsage: "[path...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "platform",
				Aliases: []string{"p"},
				Usage:   "Target platform",
			},
			&cli.StringFlag{
				Name:  "settings",
				Usage: "Project settings file to check and watch",
			},
			&cli.DurationFlag{
				Name:  "debounce",
				Usage: "Quiet period after the last change before re-auditing",
				Value: watch.DefaultDebounce,
			},
			&cli.StringFlag{
				Name:  "min-severity",
				Usage: "Hide issues below this severity",
			},
		},
		Action: runWatchCmd,
	}
}

func runWatchCmd(c *cli.Context) error {
	loaded, err := loadConfig(c)
	if err != nil {
		return err
	}
	cfg := loaded.Config
	minSeverity, err := parseMinSeverity(c.String("min-severity"))
	if err != nil {
		return err
	}

	roots := make([]string, 0, c.Args().Len())
	for _, p := range getPaths(c) {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("invalid path %s: %w", p, err)
		}
		roots = append(roots, abs)
	}
	modules, err := discover(cfg, roots)
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
	if v := c.String("settings"); v != "" {
		abs, err := filepath.Abs(v)
		if err != nil {
			return err
		}
		p.SettingsPath = abs
	}

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rep, err := a.Audit(ctx, p)
	if err != nil {
		return fmt.Errorf("audit failed: %w", err)
	}

	formatter, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()

	show := func(rep *report.Report) {
		if err := formatter.Output(output.NewIssuesView(rep, output.WithMinSeverity(minSeverity))); err != nil {
			formatter.Notify(output.ToneError, "Rendering report: %v", err)
		}
	}
	show(rep)

	w, err := watch.NewWatcher(a, rep, p, roots, c.Duration("debounce"))
	if err != nil {
		return err
	}
	defer w.Stop()
	w.SetCallback(func(rep *report.Report, changed []string, err error) {
		if err != nil {
			formatter.Notify(output.ToneError, "Re-audit failed: %v", err)
			return
		}
		formatter.Notify(output.ToneInfo, "\nChanged: %d file(s), re-audited", len(changed))
		show(rep)
	})

	formatter.Notify(output.ToneInfo, "Watching %s (Ctrl+C to stop)", strings.Join(roots, ", "))
	if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
