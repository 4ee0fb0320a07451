package mcpserver

import (
	"encoding/json"
)

const manifestSchema = "https://static.modelcontextprotocol.io/schemas/2025-10-17/server.schema.json"

// Manifest is the registry entry (server.json) for the auger server.
type Manifest struct {
	Schema      string      `json:"$schema"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Version     string      `json:"version"`
	Repository  *Repository `json:"repository,omitempty"`
	Packages    []Package   `json:"packages,omitempty"`
}

// Repository locates the server's source.
type Repository struct {
	URL    string `json:"url"`
	Source string `json:"source"`
}

// Package tells a client how to launch the server.
type Package struct {
	RegistryType     string     `json:"registryType"`
	Identifier       string     `json:"identifier"`
	PackageArguments []Argument `json:"packageArguments,omitempty"`
	Transport        Transport  `json:"transport"`
}

// Argument is a command-line argument passed at launch.
type Argument struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

// Transport names the wire transport.
type Transport struct {
	Type string `json:"type"`
}

// GenerateManifest renders server.json for version. The image runs
// "auger mcp" over stdio.
func GenerateManifest(version string) ([]byte, error) {
	if version == "" || version == "dev" {
		version = "0.0.0"
	}
	m := Manifest{
		Schema:      manifestSchema,
		Name:        "io.github.panbanda/auger",
		Description: "Bytecode diagnostics for expensive API usage, build configuration and project settings",
		Version:     version,
		Repository:  &Repository{URL: "https://github.com/panbanda/auger", Source: "github"},
		Packages: []Package{{
			RegistryType:     "oci",
			Identifier:       "ghcr.io/panbanda/auger:" + version,
			PackageArguments: []Argument{{Type: "positional", Value: "mcp"}},
			Transport:        Transport{Type: "stdio"},
		}},
	}
	return json.MarshalIndent(m, "", "  ")
}
