// Package mcpserver exposes audits and the descriptor catalog over the
// Model Context Protocol.
package mcpserver

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/panbanda/auger/pkg/analyzer"
	"github.com/panbanda/auger/pkg/auditor"
	"github.com/panbanda/auger/pkg/config"
)

// Server wraps the MCP server and registers the auger tools.
type Server struct {
	server   *mcp.Server
	cfg      *config.Config
	registry *analyzer.Registry
	version  string
	logger   *slog.Logger
}

// NewServer creates a new MCP server auditing with cfg and the modules of
// registry.
func NewServer(version string, cfg *config.Config, registry *analyzer.Registry) *Server {
	if version == "" {
		version = "dev"
	}
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "auger",
			Version: version,
		},
		nil,
	)

	s := &Server{
		server:   server,
		cfg:      cfg,
		registry: registry,
		version:  version,
		logger:   slog.Default().With(slog.String("component", "mcp")),
	}
	s.registerTools()
	s.registerPrompts()
	return s
}

// Run starts the MCP server over stdio transport.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "audit",
		Description: describeAudit(),
	}, s.handleAudit)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_descriptors",
		Description: describeListDescriptors(),
	}, s.handleListDescriptors)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "describe_descriptor",
		Description: describeDescriptor(),
	}, s.handleDescribeDescriptor)
}

// newAuditor builds a fresh auditor so each call sees a clean catalog.
func (s *Server) newAuditor() (*auditor.Auditor, error) {
	return auditor.New(s.cfg, s.registry,
		auditor.WithToolVersion(s.version),
		auditor.WithLogger(s.logger),
	)
}
