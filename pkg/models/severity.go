package models

import (
	"fmt"
	"strings"
)

// Severity classifies how important an issue is.
// The zero value means "use the descriptor default".
type Severity string

const (
	SeverityDefault  Severity = ""
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityModerate Severity = "moderate"
	SeverityMinor    Severity = "minor"
	SeverityInfo     Severity = "info"
	// SeverityNone mutes an issue: it is still reported but never counted.
	SeverityNone Severity = "none"
	// SeverityHidden removes an issue from every view.
	SeverityHidden Severity = "hidden"
)

// Severities lists the concrete severities from most to least important.
var Severities = []Severity{
	SeverityCritical,
	SeverityMajor,
	SeverityModerate,
	SeverityMinor,
	SeverityInfo,
	SeverityNone,
	SeverityHidden,
}

// Rank orders severities; higher is more important. Default ranks lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 6
	case SeverityMajor:
		return 5
	case SeverityModerate:
		return 4
	case SeverityMinor:
		return 3
	case SeverityInfo:
		return 2
	case SeverityNone:
		return 1
	default:
		return 0
	}
}

// IsDefault reports whether the severity defers to the descriptor default.
func (s Severity) IsDefault() bool {
	return s == SeverityDefault
}

// IsVisible reports whether issues with this severity should be shown.
func (s Severity) IsVisible() bool {
	return s != SeverityHidden
}

// IsCounted reports whether issues with this severity enter per-severity
// totals and failure thresholds.
func (s Severity) IsCounted() bool {
	return s.IsVisible() && s != SeverityNone
}

// String returns the string representation.
func (s Severity) String() string {
	if s == SeverityDefault {
		return "default"
	}
	return string(s)
}

// ParseSeverity converts a case-insensitive name to a Severity.
func ParseSeverity(s string) (Severity, error) {
	v := Severity(strings.ToLower(strings.TrimSpace(s)))
	if v == "default" || v == "" {
		return SeverityDefault, nil
	}
	for _, known := range Severities {
		if v == known {
			return v, nil
		}
	}
	return SeverityDefault, fmt.Errorf("unknown severity %q", s)
}
