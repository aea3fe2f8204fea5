package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/shibukawa/snapodata"
)

// MetadataCmd represents the metadata command
type MetadataCmd struct {
	Path       string `arg:"" optional:"" help:"CSDL document, defaults to metadata.path" type:"path"`
	Properties bool   `short:"p" long:"properties" help:"List entity type properties"`
}

// Run executes the metadata command
func (m *MetadataCmd) Run(ctx *Context) error {
	config, err := snapodata.LoadConfig(ctx.Config)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	schema, err := loadModel(config, m.Path)
	if err != nil {
		return err
	}

	if !ctx.Quiet {
		color.New(color.FgCyan).Fprintf(ctx.Stdout, "OData %s\n", schema.MaxProtocolVersion())
	}

	for _, res := range schema.Resources() {
		kind := "EntitySet"
		if res.Singleton {
			kind = "Singleton"
		}

		color.New(color.FgGreen).Fprintf(ctx.Stdout, "%-10s", kind)
		fmt.Fprintf(ctx.Stdout, " %s (%s)\n", res.Name, res.EntityType.Name)

		if !m.Properties {
			continue
		}

		for _, p := range res.EntityType.Properties {
			fmt.Fprintf(ctx.Stdout, "    %-24s %s\n", p.Name, p.Type)
		}
	}

	return nil
}
