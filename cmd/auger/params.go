package main

import (
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/auger/internal/output"
	"github.com/panbanda/auger/pkg/models"
)

func paramsCmd() *cli.Command {
	return &cli.Command{
		Name:  "params",
		Usage: "List diagnostic parameters and their per-platform values",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "platform",
				Aliases: []string{"p"},
				Usage:   "Show the values that apply to this platform",
			},
		},
		Action: runParamsCmd,
	}
}

func runParamsCmd(c *cli.Context) error {
	loaded, err := loadConfig(c)
	if err != nil {
		return err
	}
	cfg := loaded.Config
	a, err := newAuditor(cfg)
	if err != nil {
		return err
	}
	store := a.Params()

	formatter, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()

	if v := c.String("platform"); v != "" {
		p := models.ParsePlatform(v)
		if !p.IsKnown() {
			return fmt.Errorf("unknown platform %q", v)
		}
		var rows [][]string
		values := make(map[string]int)
		for _, name := range store.Names() {
			value, err := store.GetFor(name, p)
			if err != nil {
				return err
			}
			values[name] = value
			rows = append(rows, []string{name, strconv.Itoa(value)})
		}
		return formatter.Output(output.NewTable("Parameters for "+p.String(), []string{"Name", "Value"}, rows, nil, values))
	}

	var rows [][]string
	layers := store.Layers()
	for _, l := range layers {
		for _, param := range l.Params {
			rows = append(rows, []string{param.Name, l.Platform.String(), strconv.Itoa(param.Value)})
		}
	}
	return formatter.Output(output.NewTable("Parameters", []string{"Name", "Platform", "Value"}, rows,
		[]string{fmt.Sprintf("%d parameters", len(store.Names())), "", ""}, layers))
}
