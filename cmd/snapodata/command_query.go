package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/shibukawa/snapodata"
	"github.com/shibukawa/snapodata/client"
	"github.com/shibukawa/snapodata/expr"
	"github.com/shibukawa/snapodata/translate"
	"github.com/shopspring/decimal"
)

// QueryCmd represents the query command
type QueryCmd struct {
	File     string `arg:"" help:"Query file (YAML)" type:"path"`
	Metadata string `long:"metadata" help:"CSDL metadata document, overrides metadata.path" type:"path"`
	BaseURL  string `long:"base-url" help:"Service root, overrides service.base_url"`
	Execute  bool   `short:"x" long:"execute" help:"Send the query to the service"`
	Format   string `long:"format" help:"Output format for results (json, text)" default:"text"`
}

// Run executes the query command
func (q *QueryCmd) Run(ctx *Context) error {
	config, err := snapodata.LoadConfig(ctx.Config)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if q.BaseURL != "" {
		config.Service.BaseURL = q.BaseURL
	}

	if q.Format != "json" && q.Format != "text" {
		return fmt.Errorf("%w: %s", ErrInvalidFormat, q.Format)
	}

	model, err := loadModel(config, q.Metadata)
	if err != nil {
		return err
	}

	qf, err := LoadQueryFile(q.File)
	if err != nil {
		return err
	}

	node, err := qf.Build(model)
	if err != nil {
		return err
	}

	c, err := client.New(config, model, nil)
	if err != nil {
		return err
	}

	qc, err := c.Translate(node)
	if err != nil {
		return fmt.Errorf("failed to translate %s: %w", q.File, err)
	}

	if !q.Execute {
		return q.printComponents(ctx, node, qc)
	}

	runCtx := context.Background()
	if ctx.Verbose {
		logger := client.NewSlogLogger(os.Stderr, config.Logging)
		runCtx = client.WithLogger(runCtx, client.SlogSink(logger), client.LoggerOptFromConfig(config.Logging))
	}

	return q.execute(runCtx, ctx.Stdout, c, node, qc)
}

func (q *QueryCmd) printComponents(ctx *Context, node expr.Node, qc *translate.QueryComponents) error {
	if q.Format == "json" {
		return writeJSON(ctx.Stdout, map[string]any{
			"uri":      qc.URI,
			"version":  qc.Version.String(),
			"terminal": qc.Terminal.String(),
			"result":   qc.ResultType.String(),
			"alias":    qc.Alias,
		})
	}

	label := color.New(color.FgCyan)

	if ctx.Verbose {
		label.Fprint(ctx.Stdout, "Expression: ")
		fmt.Fprintln(ctx.Stdout, expr.String(node))
	}

	label.Fprint(ctx.Stdout, "URI:        ")
	color.New(color.FgGreen).Fprintln(ctx.Stdout, qc.URI)
	label.Fprint(ctx.Stdout, "Version:    ")
	fmt.Fprintln(ctx.Stdout, qc.Version)
	label.Fprint(ctx.Stdout, "Result:     ")
	fmt.Fprintln(ctx.Stdout, qc.ResultType)

	if qc.Terminal != translate.TerminalNone {
		label.Fprint(ctx.Stdout, "Terminal:   ")
		fmt.Fprintln(ctx.Stdout, qc.Terminal)
	}

	if qc.Projection != nil {
		label.Fprint(ctx.Stdout, "Projection: ")
		fmt.Fprintln(ctx.Stdout, expr.String(qc.Projection))
	}

	if ctx.Verbose {
		for _, r := range qc.Rewrites.Entries() {
			color.New(color.FgYellow).Fprintf(ctx.Stdout, "  %-9s ", r.Stage)
			fmt.Fprintf(ctx.Stdout, "%s => %s\n", expr.String(r.Original), expr.String(r.Replacement))
		}
	}

	return nil
}

func (q *QueryCmd) execute(ctx context.Context, w io.Writer, c *client.Client, node expr.Node, qc *translate.QueryComponents) error {
	switch {
	case qc.Terminal.IsScalar():
		value, err := c.ExecuteScalar(ctx, node)
		if err != nil {
			return err
		}

		return q.writeValue(w, scalarValue(value))
	case qc.Terminal.IsSingle() || qc.ResultType.Kind != expr.KindSequence:
		entry, err := c.ExecuteSingle(ctx, node)
		if err != nil {
			return err
		}

		if entry == nil {
			return q.writeValue(w, nil)
		}

		return q.writeValue(w, entry)
	default:
		feed, err := c.Execute(ctx, node)
		if err != nil {
			return err
		}

		if q.Format == "json" {
			return writeJSON(w, feed)
		}

		for _, entry := range feed.Entries {
			fmt.Fprintln(w, string(entry))
		}

		if feed.Count != nil {
			color.New(color.FgCyan).Fprintf(w, "count: %d\n", *feed.Count)
		}

		if feed.NextLink != "" {
			color.New(color.FgCyan).Fprintf(w, "next: %s\n", feed.NextLink)
		}

		return nil
	}
}

func (q *QueryCmd) writeValue(w io.Writer, v any) error {
	if q.Format == "json" {
		return writeJSON(w, v)
	}

	if raw, ok := v.(json.RawMessage); ok {
		fmt.Fprintln(w, string(raw))
		return nil
	}

	if v == nil {
		fmt.Fprintln(w, "null")
		return nil
	}

	fmt.Fprintln(w, v)

	return nil
}

// scalarValue dereferences nullable scalars for printing.
func scalarValue(v any) any {
	switch x := v.(type) {
	case *int32:
		if x != nil {
			return *x
		}
	case *int64:
		if x != nil {
			return *x
		}
	case *float32:
		if x != nil {
			return *x
		}
	case *float64:
		if x != nil {
			return *x
		}
	case *decimal.Decimal:
		if x != nil {
			return x.String()
		}
	case decimal.Decimal:
		return x.String()
	default:
		return v
	}

	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
