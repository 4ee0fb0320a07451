package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/auger/pkg/bytecode"
	"github.com/panbanda/auger/pkg/scan"
)

func dumpCmd() *cli.Command {
	return &cli.Command{
		Name:      "dump",
		Usage:     "Print the types, methods and instructions of a module",
		ArgsUsage: "<module.bcm>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "calls-only",
				Usage: "Only print calls and conversions",
			},
		},
		Action: runDumpCmd,
	}
}

func runDumpCmd(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("module path is required")
	}
	mod, err := bytecode.Load(path)
	if err != nil {
		return err
	}
	loaded, err := loadConfig(c)
	if err != nil {
		return err
	}
	formatter, err := newFormatter(c, loaded.Config)
	if err != nil {
		return err
	}
	defer formatter.Close()
	return formatter.Output(moduleDump{mod: mod, callsOnly: c.Bool("calls-only")})
}

// moduleDump renders a module listing.
type moduleDump struct {
	mod       *bytecode.Module
	callsOnly bool
}

// dumpLine is one instruction of the serialized listing.
type dumpLine struct {
	Method   string `json:"method" toon:"method"`
	Offset   uint32 `json:"offset" toon:"offset"`
	OpCode   string `json:"opcode" toon:"opcode"`
	Operand  string `json:"operand,omitempty" toon:"operand"`
	Location string `json:"location,omitempty" toon:"location"`
}

func (d moduleDump) lines() []dumpLine {
	var opts []scan.Option
	if !d.callsOnly {
		opts = append(opts, scan.WithAllInstructions())
	}
	var out []dumpLine
	for in := range scan.New(opts...).Instructions(d.mod) {
		line := dumpLine{
			Method:   in.MethodID(),
			Offset:   in.Offset,
			OpCode:   in.OpCode.String(),
			Location: in.Location.String(),
		}
		switch {
		case in.Callee != nil:
			line.Operand = in.Callee.FullName()
		case in.Operand != nil:
			line.Operand = in.Operand.FullName()
		}
		out = append(out, line)
	}
	return out
}

func (d moduleDump) RenderData() any {
	return struct {
		Name         string     `json:"name" toon:"name"`
		Version      string     `json:"version,omitempty" toon:"version"`
		Runtime      string     `json:"runtime_version,omitempty" toon:"runtime_version"`
		DebugBuild   bool       `json:"debug_build" toon:"debug_build"`
		HasSymbols   bool       `json:"has_symbols" toon:"has_symbols"`
		Methods      int        `json:"methods" toon:"methods"`
		Instructions []dumpLine `json:"instructions" toon:"instructions"`
	}{
		Name:         d.mod.Name,
		Version:      d.mod.Version,
		Runtime:      d.mod.RuntimeVersion,
		DebugBuild:   d.mod.DebugBuild,
		HasSymbols:   d.mod.HasSymbols(),
		Methods:      d.mod.MethodCount(),
		Instructions: d.lines(),
	}
}

func (d moduleDump) RenderText(w io.Writer, colored bool) error {
	fmt.Fprintf(w, "module %s", d.mod.Name)
	if d.mod.Version != "" {
		fmt.Fprintf(w, " %s", d.mod.Version)
	}
	fmt.Fprintf(w, " (%d methods", d.mod.MethodCount())
	if d.mod.DebugBuild {
		fmt.Fprint(w, ", debug")
	}
	if !d.mod.HasSymbols() {
		fmt.Fprint(w, ", no symbols")
	}
	fmt.Fprintln(w, ")")

	method := ""
	for _, l := range d.lines() {
		if l.Method != method {
			method = l.Method
			fmt.Fprintf(w, "\n%s\n", method)
		}
		fmt.Fprintf(w, "  IL_%04x  %-10s %s", l.Offset, l.OpCode, l.Operand)
		if l.Location != "" {
			fmt.Fprintf(w, "  // %s", l.Location)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func (d moduleDump) RenderMarkdown(w io.Writer) error {
	fmt.Fprintf(w, "## %s\n\n", d.mod.Name)
	fmt.Fprintln(w, "| Method | Offset | OpCode | Operand | Location |")
	fmt.Fprintln(w, "| --- | --- | --- | --- | --- |")
	for _, l := range d.lines() {
		fmt.Fprintf(w, "| %s |\n", strings.Join([]string{
			l.Method, fmt.Sprintf("IL_%04x", l.Offset), l.OpCode, l.Operand, l.Location,
		}, " | "))
	}
	fmt.Fprintln(w)
	return nil
}
