package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/shibukawa/snapodata"
	"github.com/shibukawa/snapodata/batch"
)

// BatchCmd represents the batch command
type BatchCmd struct {
	File        string `arg:"" help:"Multipart payload file" type:"path"`
	ContentType string `long:"content-type" help:"Media type of the payload, e.g. 'multipart/mixed; boundary=batch_1'"`
	Boundary    string `long:"boundary" help:"Batch boundary, taken from the first delimiter line when omitted"`
	Charset     string `long:"charset" help:"Charset of part headers"`
	Response    bool   `long:"response" help:"Parse response parts instead of requests"`
	Body        bool   `long:"body" help:"Print part bodies"`
}

// Run executes the batch command
func (b *BatchCmd) Run(ctx *Context) error {
	data, err := os.ReadFile(b.File)
	if err != nil {
		return fmt.Errorf("failed to read batch payload: %w", err)
	}

	var opts []batch.ReaderOption

	boundary := b.Boundary
	if boundary == "" && b.ContentType == "" {
		boundary = detectBoundary(data)
	}

	if boundary != "" {
		opts = append(opts, batch.WithBoundary(boundary))
	}

	if b.Charset != "" {
		opts = append(opts, batch.WithEncoding(b.Charset))
	}

	if b.Response {
		opts = append(opts, batch.WithResponseMode())
	}

	reader, err := batch.NewReader(bytes.NewReader(data), b.ContentType, opts...)
	if err != nil {
		return err
	}

	return b.inspect(context.Background(), ctx.Stdout, reader)
}

func (b *BatchCmd) inspect(ctx context.Context, w io.Writer, reader *batch.Reader) error {
	stateColor := color.New(color.FgCyan)
	operations := 0
	depth := 0

	for state, err := range reader.All(ctx) {
		if err != nil {
			color.New(color.FgRed).Fprintf(w, "%s\n", state)
			return err
		}

		if state == batch.StateChangesetEnd {
			depth--
		}

		indent := strings.Repeat("  ", depth)

		switch state {
		case batch.StateOperation:
			operations++

			stateColor.Fprintf(w, "%s%s ", indent, state)

			body, err := b.describePart(w, reader)
			if err != nil {
				return err
			}

			if b.Body && len(body) > 0 {
				for _, line := range strings.Split(string(body), "\n") {
					fmt.Fprintf(w, "%s    %s\n", indent, strings.TrimRight(line, "\r"))
				}
			}
		default:
			stateColor.Fprintf(w, "%s%s\n", indent, state)
		}

		if state == batch.StateChangesetStart {
			depth++
		}
	}

	color.New(color.FgGreen).Fprintf(w, "%d operations\n", operations)

	return nil
}

// describePart prints the start line of the current part and returns its body.
func (b *BatchCmd) describePart(w io.Writer, reader *batch.Reader) ([]byte, error) {
	var (
		line      string
		contentID string
		body      io.Reader
	)

	if req := reader.Request(); req != nil {
		line = req.Method + " " + req.URI
		contentID = req.ContentID
		body = req.Body
	} else if resp := reader.Response(); resp != nil {
		line = fmt.Sprintf("%d %s", resp.StatusCode, resp.Reason)
		contentID = resp.ContentID
		body = resp.Body
	} else {
		return nil, fmt.Errorf("%w: operation without part", snapodata.ErrInternal)
	}

	fmt.Fprint(w, line)

	if contentID != "" {
		color.New(color.FgYellow).Fprintf(w, " [Content-ID %s]", contentID)
	}

	fmt.Fprintln(w)

	if !b.Body {
		return nil, nil
	}

	return io.ReadAll(body)
}

// detectBoundary returns the boundary of the first "--" line of data.
func detectBoundary(data []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(data))

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "--") {
			return strings.TrimSuffix(strings.TrimPrefix(line, "--"), "--")
		}

		return ""
	}

	return ""
}
