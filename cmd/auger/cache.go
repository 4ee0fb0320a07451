package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/auger/internal/cache"
	"github.com/panbanda/auger/internal/output"
	"github.com/panbanda/auger/pkg/analyzer/code"
	"github.com/panbanda/auger/pkg/config"
)

func cacheCmd() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect or clear cached module scans",
		Subcommands: []*cli.Command{
			{
				Name:   "stats",
				Usage:  "Show the number, size and age of cached scans",
				Action: runCacheStatsCmd,
			},
			{
				Name:   "clear",
				Usage:  "Remove every cached scan",
				Action: runCacheClearCmd,
			},
			{
				Name:      "invalidate",
				Usage:     "Drop the cached scans of the given modules",
				ArgsUsage: "[path...]",
				Action:    runCacheInvalidateCmd,
			},
		},
	}
}

// openCache opens the configured cache directory. It ignores --no-cache and
// cache.enabled since these commands manage the directory itself.
func openCache(cfg *config.Config) (*cache.Cache, error) {
	return cache.New(cfg.Cache.Dir, cfg.Cache.TTL, true)
}

func runCacheStatsCmd(c *cli.Context) error {
	loaded, err := loadConfig(c)
	if err != nil {
		return err
	}
	cfg := loaded.Config
	store, err := openCache(cfg)
	if err != nil {
		return err
	}
	stats, err := store.GetStats()
	if err != nil {
		return fmt.Errorf("reading cache: %w", err)
	}

	formatter, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()

	rows := [][]string{
		{"Directory", cfg.Cache.Dir},
		{"Entries", fmt.Sprint(stats.Entries)},
		{"Size", fmt.Sprintf("%d bytes", stats.TotalSize)},
	}
	if stats.Entries > 0 {
		rows = append(rows,
			[]string{"Oldest", stats.OldestAge.Round(time.Second).String()},
			[]string{"Newest", stats.NewestAge.Round(time.Second).String()},
		)
	}
	return formatter.Output(output.NewTable("Cache", []string{"Metric", "Value"}, rows, nil, stats))
}

func runCacheClearCmd(c *cli.Context) error {
	loaded, err := loadConfig(c)
	if err != nil {
		return err
	}
	cfg := loaded.Config
	store, err := openCache(cfg)
	if err != nil {
		return err
	}
	stats, err := store.GetStats()
	if err != nil {
		return fmt.Errorf("reading cache: %w", err)
	}
	if err := store.Clear(); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}

	formatter, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()
	formatter.Notify(output.ToneSuccess, "Removed %d cached scan(s) from %s", stats.Entries, cfg.Cache.Dir)
	return nil
}

func runCacheInvalidateCmd(c *cli.Context) error {
	loaded, err := loadConfig(c)
	if err != nil {
		return err
	}
	cfg := loaded.Config
	modules, err := discover(cfg, getPaths(c))
	if err != nil {
		return err
	}
	store, err := openCache(cfg)
	if err != nil {
		return err
	}
	for _, m := range modules {
		if err := store.Invalidate(code.CacheKey(m)); err != nil {
			return fmt.Errorf("invalidating %s: %w", m, err)
		}
	}

	formatter, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()
	formatter.Notify(output.ToneSuccess, "Invalidated %d module(s)", len(modules))
	return nil
}
