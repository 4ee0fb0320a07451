// Package descriptor holds the catalog of diagnostic rule definitions.
package descriptor

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/panbanda/auger/pkg/models"
)

// Wildcard is the member criterion matching every member of a namespace.
const Wildcard = "*"

var idPattern = regexp.MustCompile(`^[A-Z]{3}[0-9]{4}$`)

// Fixer applies an automatic fix for an issue. Fixers are attached per
// session and never persisted.
type Fixer func(ctx context.Context, issue *models.Issue) error

// Descriptor describes one kind of diagnosable issue.
type Descriptor struct {
	ID               string            `json:"id" yaml:"id"`
	Title            string            `json:"title" yaml:"title"`
	MessageFormat    string            `json:"message_format,omitempty" yaml:"message,omitempty"`
	DefaultSeverity  models.Severity   `json:"default_severity" yaml:"severity"`
	Areas            []models.Area     `json:"areas,omitempty" yaml:"areas,omitempty"`
	Platforms        []models.Platform `json:"platforms,omitempty" yaml:"platforms,omitempty"`
	MinVersion       string            `json:"min_version,omitempty" yaml:"min_version,omitempty"`
	MaxVersion       string            `json:"max_version,omitempty" yaml:"max_version,omitempty"`
	Description      string            `json:"description,omitempty" yaml:"description,omitempty"`
	Recommendation   string            `json:"recommendation,omitempty" yaml:"recommendation,omitempty"`
	DocumentationURL string            `json:"documentation_url,omitempty" yaml:"documentation_url,omitempty"`

	// Matching criteria. Type is a full type name, or a namespace when
	// Method is Wildcard. OpCode matches conversion instructions.
	Type   string `json:"type,omitempty" yaml:"type,omitempty"`
	Method string `json:"method,omitempty" yaml:"method,omitempty"`
	OpCode string `json:"opcode,omitempty" yaml:"opcode,omitempty"`

	fixer Fixer
}

// Equal reports whether both descriptors share an id.
func (d *Descriptor) Equal(other *Descriptor) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.ID == other.ID
}

// Fixer returns the attached fixer, or nil.
func (d *Descriptor) Fixer() Fixer {
	return d.fixer
}

// CanFix reports whether a fixer is attached.
func (d *Descriptor) CanFix() bool {
	return d.fixer != nil
}

// IsWildcard reports whether the descriptor matches a whole namespace.
func (d *Descriptor) IsWildcard() bool {
	return d.Method == Wildcard
}

// IsOpCodeOnly reports whether the descriptor matches on opcode alone.
func (d *Descriptor) IsOpCodeOnly() bool {
	return d.OpCode != "" && d.Type == "" && d.Method == ""
}

// HasArea reports whether the descriptor is tagged with area.
func (d *Descriptor) HasArea(area models.Area) bool {
	return slices.Contains(d.Areas, area)
}

// Message formats the descriptor message with args. ok is false when the
// template does not fit the arguments, in which case the title is returned.
func (d *Descriptor) Message(args ...any) (msg string, ok bool) {
	if d.MessageFormat == "" {
		return d.Title, true
	}
	// fmt reports mismatches inline as %!verb(...). Formatting stand-ins
	// first keeps argument text that happens to contain "%!" out of the check.
	bad := false
	checks := make([]any, len(args))
	for i, arg := range args {
		checks[i] = verbCheck{arg: arg, bad: &bad}
	}
	if strings.Contains(fmt.Sprintf(d.MessageFormat, checks...), "%!") || bad {
		return d.Title, false
	}
	return fmt.Sprintf(d.MessageFormat, args...), true
}

// verbCheck stands in for a message argument. It writes nothing and records
// whether fmt rejects the verb for the argument's type.
type verbCheck struct {
	arg any
	bad *bool
}

func (c verbCheck) Format(f fmt.State, verb rune) {
	rejected := fmt.Sprintf("%%!%c(%T=", verb, c.arg)
	if c.arg == nil {
		rejected = fmt.Sprintf("%%!%c(<nil>)", verb)
	}
	if strings.HasPrefix(fmt.Sprintf(fmt.FormatString(f, verb), c.arg), rejected) {
		*c.bad = true
	}
}

// Validate checks the descriptor's own fields.
func (d *Descriptor) Validate() error {
	if !idPattern.MatchString(d.ID) {
		return &InvalidIDError{ID: d.ID}
	}
	if d.Title == "" {
		return fmt.Errorf("descriptor %s: title is required", d.ID)
	}
	if _, err := models.ParseSeverity(string(d.DefaultSeverity)); err != nil {
		return fmt.Errorf("descriptor %s: %w", d.ID, err)
	}
	if d.Method == "" && d.Type != "" {
		return fmt.Errorf("descriptor %s: type criterion %q needs a method", d.ID, d.Type)
	}
	return nil
}

// IsApplicable reports whether d applies to a platform and runtime version.
// An empty platform or version matches everything.
func IsApplicable(d *Descriptor, platform models.Platform, version string) bool {
	if platform != models.PlatformDefault && len(d.Platforms) > 0 && !slices.Contains(d.Platforms, platform) {
		return false
	}
	if version == "" {
		return true
	}
	if d.MinVersion != "" && CompareVersions(version, d.MinVersion) < 0 {
		return false
	}
	if d.MaxVersion != "" && CompareVersions(version, d.MaxVersion) > 0 {
		return false
	}
	return true
}
