package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	toon "github.com/toon-format/toon-go"
)

// Format represents an output format.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatTOON     Format = "toon"
)

// ParseFormat converts a string to Format, defaulting to text.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	case "markdown", "md":
		return FormatMarkdown
	case "toon":
		return FormatTOON
	default:
		return FormatText
	}
}

// Renderable is a view that knows how to print itself as text or markdown
// and which value stands for it in JSON and TOON.
type Renderable interface {
	RenderText(w io.Writer, colored bool) error
	RenderMarkdown(w io.Writer) error
	RenderData() any
}

// Tone classifies a status line.
type Tone int

const (
	ToneInfo Tone = iota
	ToneSuccess
	ToneWarning
	ToneError
)

func (t Tone) style() (prefix string, attr color.Attribute) {
	switch t {
	case ToneSuccess:
		return "", color.FgGreen
	case ToneWarning:
		return "warning: ", color.FgYellow
	case ToneError:
		return "error: ", color.FgRed
	default:
		return "", color.FgCyan
	}
}

// Formatter writes audit results in one format. Results go to stdout or a
// file; status lines go to a separate writer so that piped JSON stays clean.
type Formatter struct {
	format  Format
	out     io.Writer
	status  io.Writer
	file    *os.File
	colored bool
}

// NewFormatter creates a formatter writing to path, or to stdout when path
// is empty. Output written to a file is never colored.
func NewFormatter(format Format, path string, colored bool) (*Formatter, error) {
	f := &Formatter{format: format, out: os.Stdout, status: os.Stderr, colored: colored}
	if path == "" {
		return f, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	f.out, f.file, f.colored = file, file, false
	return f, nil
}

// SetStatusWriter redirects status lines.
func (f *Formatter) SetStatusWriter(w io.Writer) {
	f.status = w
}

// Close closes the output file, if any.
func (f *Formatter) Close() error {
	if f.file == nil {
		return nil
	}
	return f.file.Close()
}

func (f *Formatter) Format() Format {
	return f.format
}

func (f *Formatter) Colored() bool {
	return f.colored
}

// Output writes v in the configured format. Values that are not Renderable
// are encoded as JSON in text mode and fenced JSON in markdown.
func (f *Formatter) Output(v any) error {
	r, renderable := v.(Renderable)
	if renderable {
		v = r.RenderData()
	}
	switch f.format {
	case FormatJSON, FormatTOON:
		return f.encode(f.format, v)
	case FormatMarkdown:
		if renderable {
			return r.RenderMarkdown(f.out)
		}
		fmt.Fprintln(f.out, "```json")
		if err := f.encode(FormatJSON, v); err != nil {
			return err
		}
		_, err := fmt.Fprintln(f.out, "```")
		return err
	default:
		if renderable {
			return r.RenderText(f.out, f.colored)
		}
		return f.encode(FormatJSON, v)
	}
}

func (f *Formatter) encode(format Format, v any) error {
	if format == FormatTOON {
		data, err := toon.Marshal(v, toon.WithIndent(2))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(f.out, string(data))
		return err
	}
	enc := json.NewEncoder(f.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Notify writes one status line. Colored formatters tint the line by tone;
// plain ones prefix warnings and errors instead.
func (f *Formatter) Notify(tone Tone, format string, args ...any) {
	prefix, attr := tone.style()
	if f.colored {
		color.New(attr).Fprintf(f.status, format+"\n", args...)
		return
	}
	fmt.Fprintf(f.status, prefix+format+"\n", args...)
}
