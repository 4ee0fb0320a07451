package descriptor

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// DatabaseVersion is the descriptor database schema this package reads.
const DatabaseVersion = 1

// Database is a versioned YAML descriptor document.
type Database struct {
	Version     int           `yaml:"version"`
	Descriptors []*Descriptor `yaml:"descriptors"`
}

// LoadYAML parses a descriptor database.
func LoadYAML(r io.Reader) ([]*Descriptor, error) {
	var db Database
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&db); err != nil {
		return nil, fmt.Errorf("parse descriptor database: %w", err)
	}
	if db.Version != DatabaseVersion {
		return nil, fmt.Errorf("unsupported descriptor database version %d", db.Version)
	}
	for _, d := range db.Descriptors {
		if err := d.Validate(); err != nil {
			return nil, err
		}
	}
	return db.Descriptors, nil
}

// LoadYAMLFile parses a descriptor database from disk.
func LoadYAMLFile(path string) ([]*Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ds, err := LoadYAML(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// MustLoadYAML parses an embedded database and panics on error.
func MustLoadYAML(data []byte) []*Descriptor {
	ds, err := LoadYAML(bytes.NewReader(data))
	if err != nil {
		panic(err)
	}
	return ds
}
