// Package settings checks the project settings file against parameter
// thresholds and can rewrite offending values.
package settings

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/panbanda/auger/pkg/analyzer"
	"github.com/panbanda/auger/pkg/descriptor"
	"github.com/panbanda/auger/pkg/models"
)

// Name is the module name.
const Name = "settings"

// Descriptor ids.
const (
	FixedTimestepID   = "SET0001"
	StripEngineCodeID = "SET0002"
	IncrementalGCID   = "SET0003"
	TextureQualityID  = "SET0004"
)

// Parameters.
const (
	FixedTimestepMinMs     = "FixedTimestepMinMs"
	MaxTextureQualityLevel = "MaxTextureQualityLevel"
)

// Settings keys.
const (
	keyFixedTimestep   = "time.fixed_timestep_ms"
	keyStripEngineCode = "build.strip_engine_code"
	keyIncrementalGC   = "gc.incremental"
	keyTextureQuality  = "quality.max_texture_quality_level"
)

//go:embed descriptors.yaml
var descriptorsYAML []byte

// Descriptors returns the descriptors the module registers.
func Descriptors() []*descriptor.Descriptor {
	return descriptor.MustLoadYAML(descriptorsYAML)
}

// check is one rule over the loaded settings. It returns the message
// arguments and the value a fix writes, or ok=false when the setting is
// fine or absent.
type check struct {
	id    string
	key   string
	param string
	eval  func(k *koanf.Koanf, key string, threshold int) (args []any, fix string, ok bool)
}

var checks = []check{
	{id: FixedTimestepID, key: keyFixedTimestep, param: FixedTimestepMinMs, eval: below},
	{id: StripEngineCodeID, key: keyStripEngineCode, eval: disabled},
	{id: IncrementalGCID, key: keyIncrementalGC, eval: disabled},
	{id: TextureQualityID, key: keyTextureQuality, param: MaxTextureQualityLevel, eval: above},
}

func below(k *koanf.Koanf, key string, limit int) ([]any, string, bool) {
	if v := k.Int(key); v < limit {
		return []any{v, limit}, strconv.Itoa(limit), true
	}
	return nil, "", false
}

func above(k *koanf.Koanf, key string, limit int) ([]any, string, bool) {
	if v := k.Int(key); v > limit {
		return []any{v, limit}, strconv.Itoa(limit), true
	}
	return nil, "", false
}

func disabled(k *koanf.Koanf, key string, _ int) ([]any, string, bool) {
	if !k.Bool(key) {
		return nil, "true", true
	}
	return nil, "", false
}

// Module implements analyzer.Module.
type Module struct {
	logger *slog.Logger
}

// New creates the module.
func New() analyzer.Module {
	return &Module{logger: slog.Default().With(slog.String("component", Name))}
}

func (m *Module) Name() string { return Name }

func (m *Module) Categories() []models.Category {
	return []models.Category{models.CategorySettings}
}

// Initialize registers descriptors and thresholds and attaches the fixers.
func (m *Module) Initialize(ictx *analyzer.Context) error {
	if ictx.Logger != nil {
		m.logger = ictx.Logger.With(slog.String("component", Name))
	}
	ictx.Params.Register(FixedTimestepMinMs, 20)
	ictx.Params.Register(MaxTextureQualityLevel, 1)
	if err := ictx.Catalog.RegisterAll(Descriptors()); err != nil {
		return err
	}
	for _, c := range checks {
		if err := ictx.Catalog.AttachFixer(c.id, Fix); err != nil {
			return err
		}
	}
	return nil
}

// Audit loads the settings file of the request and runs every applicable
// check. A request without a settings file produces nothing.
func (m *Module) Audit(ctx context.Context, req *analyzer.Request, sink analyzer.Sink) error {
	if req.SettingsPath == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	k, err := Read(req.SettingsPath)
	if err != nil {
		return err
	}
	lines := keyLines(req.SettingsPath)

	var issues []*models.Issue
	for _, c := range checks {
		d, ok := req.Catalog.Get(c.id)
		if !ok || !descriptor.IsApplicable(d, req.Platform, req.RuntimeVersion) {
			continue
		}
		if !k.Exists(c.key) {
			continue
		}
		threshold := 0
		if c.param != "" {
			if threshold, err = req.Params.GetFor(c.param, req.Platform); err != nil {
				return err
			}
		}
		args, fix, hit := c.eval(k, c.key, threshold)
		if !hit {
			continue
		}
		msg, fits := d.Message(args...)
		if !fits {
			m.logger.Warn("descriptor message does not fit its arguments", slog.String("descriptor", c.id))
		}
		issues = append(issues, &models.Issue{
			Category:     models.CategorySettings,
			Description:  msg,
			DescriptorID: c.id,
			Location:     &models.Location{Path: req.SettingsPath, Line: lines[c.key]},
			Properties:   []string{c.key, k.String(c.key), fix},
		})
	}
	m.logger.Debug("settings checked", slog.String("path", req.SettingsPath), slog.Int("issues", len(issues)))
	sink.Add(issues...)
	return nil
}

// Read loads a settings file, picking the parser from its extension.
func Read(path string) (*koanf.Koanf, error) {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".toml":
		parser = toml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("reading settings %s: %w", path, err)
	}
	return k, nil
}
