package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/auger/internal/output"
	"github.com/panbanda/auger/pkg/descriptor"
	"github.com/panbanda/auger/pkg/models"
)

func descriptorsCmd() *cli.Command {
	return &cli.Command{
		Name:    "descriptors",
		Aliases: []string{"desc"},
		Usage:   "Inspect the diagnostic descriptors",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List registered descriptors",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "area",
						Usage: "Only list descriptors tagged with this area",
					},
					&cli.StringFlag{
						Name:  "platform",
						Usage: "Only list descriptors applicable to this platform",
					},
					&cli.StringFlag{
						Name:  "runtime-version",
						Usage: "Only list descriptors applicable to this runtime version",
					},
				},
				Action: runDescriptorsListCmd,
			},
			{
				Name:      "show",
				Usage:     "Show one descriptor in full",
				ArgsUsage: "<id>",
				Action:    runDescriptorsShowCmd,
			},
		},
	}
}

func runDescriptorsListCmd(c *cli.Context) error {
	loaded, err := loadConfig(c)
	if err != nil {
		return err
	}
	a, err := newAuditor(loaded.Config)
	if err != nil {
		return err
	}

	platform := models.ParsePlatform(c.String("platform"))
	var ds []*descriptor.Descriptor
	for _, d := range a.Catalog().List() {
		if area := c.String("area"); area != "" && !d.HasArea(models.Area(area)) {
			continue
		}
		if !descriptor.IsApplicable(d, platform, c.String("runtime-version")) {
			continue
		}
		ds = append(ds, d)
	}

	formatter, err := newFormatter(c, loaded.Config)
	if err != nil {
		return err
	}
	defer formatter.Close()
	return formatter.Output(output.NewDescriptorsTable(ds))
}

func runDescriptorsShowCmd(c *cli.Context) error {
	id := strings.ToUpper(c.Args().First())
	if id == "" {
		return fmt.Errorf("descriptor id is required")
	}
	loaded, err := loadConfig(c)
	if err != nil {
		return err
	}
	a, err := newAuditor(loaded.Config)
	if err != nil {
		return err
	}
	d, err := a.Catalog().Lookup(id)
	if err != nil {
		return err
	}

	formatter, err := newFormatter(c, loaded.Config)
	if err != nil {
		return err
	}
	defer formatter.Close()
	return formatter.Output(output.DescriptorView{D: d})
}
