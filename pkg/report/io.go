package report

import (
	"bufio"
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/panbanda/auger/pkg/descriptor"
	"github.com/panbanda/auger/pkg/models"
	"github.com/panbanda/auger/pkg/params"
	"github.com/panbanda/auger/pkg/rules"
)

// FormatVersion is written to every saved report.
const FormatVersion = "1.0"

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "https://auger.dev/schemas/report.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			schemaErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// SchemaError is returned when a report document does not match the
// report schema.
type SchemaError struct {
	Err error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("invalid report document: %v", e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

type document struct {
	FormatVersion string                   `json:"format_version"`
	Session       Session                  `json:"session"`
	Descriptors   []*descriptor.Descriptor `json:"descriptors"`
	Settings      settings                 `json:"settings"`
	Modules       []ModuleInfo             `json:"modules"`
	Issues        issueSets                `json:"issues"`
}

type settings struct {
	Params []params.Layer `json:"params"`
	Rules  []rules.Rule   `json:"rules"`
}

type issueSets struct {
	Unfixed []*models.Issue `json:"unfixed"`
	Fixed   []*models.Issue `json:"fixed"`
}

func (r *Report) document() document {
	doc := document{
		FormatVersion: FormatVersion,
		Session:       r.Session(),
		Descriptors:   r.Descriptors(),
		Settings: settings{
			Params: r.params.Layers(),
			Rules:  r.rules.List(),
		},
		Modules: r.Modules(),
		Issues: issueSets{
			Unfixed: []*models.Issue{},
			Fixed:   []*models.Issue{},
		},
	}
	for _, i := range r.AllIssues() {
		if i.Fixed {
			doc.Issues.Fixed = append(doc.Issues.Fixed, i)
		} else {
			doc.Issues.Unfixed = append(doc.Issues.Unfixed, i)
		}
	}
	if doc.Modules == nil {
		doc.Modules = []ModuleInfo{}
	}
	if doc.Settings.Rules == nil {
		doc.Settings.Rules = []rules.Rule{}
	}
	return doc
}

// Write encodes the report as indented JSON.
func (r *Report) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r.document())
}

// Save writes the report to path atomically.
func (r *Report) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".report-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	bw := bufio.NewWriter(f)
	if err := r.Write(bw); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Validate checks a report document against the schema without loading it.
func Validate(data []byte) error {
	sch, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile report schema: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return &SchemaError{Err: err}
	}
	if err := sch.Validate(inst); err != nil {
		return &SchemaError{Err: err}
	}
	return nil
}

// Read decodes and validates a report. Parameters and rules are rebuilt
// from their flattened forms; fixers are not restored.
func Read(rd io.Reader) (*Report, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}
	if err := Validate(data); err != nil {
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}

	catalog := descriptor.NewCatalog()
	if err := catalog.RegisterAll(doc.Descriptors); err != nil {
		return nil, fmt.Errorf("report descriptors: %w", err)
	}

	r := New(
		WithSession(doc.Session),
		WithCatalog(catalog),
		WithParams(params.FromLayers(doc.Settings.Params)),
		WithRules(rules.NewSet(doc.Settings.Rules...)),
	)
	r.params.SetAnalysisPlatform(doc.Session.Platform)
	r.AddIssues(doc.Issues.Unfixed...)
	r.AddIssues(doc.Issues.Fixed...)
	for _, m := range doc.Modules {
		r.RecordModuleInfo(m)
	}
	return r, nil
}

// Load reads a report from path.
func Load(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := Read(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}
