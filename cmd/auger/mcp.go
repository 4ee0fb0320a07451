package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/auger/internal/mcpserver"
	"github.com/panbanda/auger/pkg/analyzer/builtin"
)

func mcpCmd() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Start MCP (Model Context Protocol) server for LLM tool integration",
		Description: `Starts an MCP server over stdio transport that exposes auger's audits
as tools that LLMs can invoke.

To use with Claude Desktop, add to your config:
  {
    "mcpServers": {
      "auger": {
        "command": "auger",
        "args": ["mcp"]
      }
    }
  }

Available tools:
  - audit                Audit modules and settings for a platform
  - list_descriptors     List the diagnostics auger can report
  - describe_descriptor  Full description of one diagnostic`,
		Action: runMCPCmd,
		Subcommands: []*cli.Command{
			{
				Name:   "manifest",
				Usage:  "Print the MCP registry server.json",
				Action: runMCPManifestCmd,
			},
		},
	}
}

func runMCPCmd(c *cli.Context) error {
	loaded, err := loadConfig(c)
	if err != nil {
		return err
	}
	server := mcpserver.NewServer(version, loaded.Config, builtin.Registry())
	return server.Run(c.Context)
}

func runMCPManifestCmd(c *cli.Context) error {
	data, err := mcpserver.GenerateManifest(version)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(data))
	return nil
}
