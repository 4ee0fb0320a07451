package main

import (
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/auger/internal/output"
	"github.com/panbanda/auger/pkg/analyzer/builtin"
	"github.com/panbanda/auger/pkg/auditor"
	"github.com/panbanda/auger/pkg/config"
	"github.com/panbanda/auger/pkg/models"
	"github.com/panbanda/auger/pkg/scan"
)

// getPaths returns paths from positional args, defaulting to ["."]
func getPaths(c *cli.Context) []string {
	if c.Args().Len() > 0 {
		return c.Args().Slice()
	}
	return []string{"."}
}

// loadConfig loads the config named by --config, or the one found in the
// working directory, and applies global flag overrides.
func loadConfig(c *cli.Context) (*config.LoadResult, error) {
	var opts []config.LoadOption
	if path := c.String("config"); path != "" {
		opts = append(opts, config.WithPath(path))
	}
	result, err := config.LoadConfig(opts...)
	if err != nil {
		return nil, err
	}
	if c.Bool("no-cache") {
		result.Config.Cache.Enabled = false
	}
	if f := c.String("format"); f != "" {
		result.Config.Output.Format = f
	}
	if c.Bool("verbose") {
		result.Config.Output.Verbose = true
	}
	return result, nil
}

// newFormatter creates the formatter for the global output flags.
func newFormatter(c *cli.Context, cfg *config.Config) (*output.Formatter, error) {
	colored := cfg.Output.Color && !c.Bool("no-color")
	f, err := output.NewFormatter(output.ParseFormat(cfg.Output.Format), c.String("output"), colored)
	if err != nil {
		return nil, err
	}
	if c.App.ErrWriter != nil {
		f.SetStatusWriter(c.App.ErrWriter)
	}
	return f, nil
}

func newAuditor(cfg *config.Config) (*auditor.Auditor, error) {
	return auditor.New(cfg, builtin.Registry(), auditor.WithToolVersion(version))
}

// discover expands paths into absolute module paths using the config's
// include and exclude globs.
func discover(cfg *config.Config, paths []string) ([]string, error) {
	abs := make([]string, 0, len(paths))
	for _, p := range paths {
		a, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("invalid path %s: %w", p, err)
		}
		abs = append(abs, a)
	}
	return scan.Discover(abs, cfg.Modules.Include, cfg.Modules.Exclude)
}

func parseMinSeverity(s string) (models.Severity, error) {
	if s == "" {
		return models.SeverityDefault, nil
	}
	return models.ParseSeverity(s)
}
