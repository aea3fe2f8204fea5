package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shibukawa/snapodata"
	"github.com/shibukawa/snapodata/batch"
)

// BatchOperation is one request of a $batch.
type BatchOperation struct {
	Method    string
	URI       string
	Header    batch.Header
	Body      []byte
	ContentID string
}

type batchItem struct {
	op        *BatchOperation
	changeset []BatchOperation
}

// BatchRequest collects operations and changesets in send order.
type BatchRequest struct {
	items []batchItem
}

// NewBatchRequest creates an empty batch.
func NewBatchRequest() *BatchRequest {
	return &BatchRequest{}
}

// Add appends a top-level operation.
func (b *BatchRequest) Add(op BatchOperation) *BatchRequest {
	b.items = append(b.items, batchItem{op: &op})
	return b
}

// AddChangeset appends a changeset. Its operations are applied atomically
// by the service and must not be queries.
func (b *BatchRequest) AddChangeset(ops ...BatchOperation) *BatchRequest {
	b.items = append(b.items, batchItem{changeset: ops})
	return b
}

// Len returns the number of top-level items.
func (b *BatchRequest) Len() int {
	return len(b.items)
}

// BatchResult is one response part. Body is copied out of the stream.
type BatchResult struct {
	StatusCode  int
	Reason      string
	Header      batch.Header
	ContentID   string
	Body        []byte
	InChangeset bool
}

// BatchResponse holds the response parts in the order they were received.
type BatchResponse struct {
	Results []BatchResult
}

// Encode writes the batch and returns the content type to send with it.
func (b *BatchRequest) Encode(w io.Writer, prefix string) (string, error) {
	var opts []batch.WriterOption
	if prefix != "" {
		opts = append(opts, batch.WithBoundaryPrefix(prefix))
	}

	writer := batch.NewWriter(w, opts...)

	for _, item := range b.items {
		if item.op != nil {
			if err := writeOperation(writer, item.op); err != nil {
				return "", err
			}

			continue
		}

		if err := writer.BeginChangeset(); err != nil {
			return "", err
		}

		for i := range item.changeset {
			op := &item.changeset[i]
			if isQueryMethod(op.Method) {
				return "", fmt.Errorf("%w: %s %s", snapodata.ErrInvalidMethodForChangeset, op.Method, op.URI)
			}

			if err := writeOperation(writer, op); err != nil {
				return "", err
			}
		}

		if err := writer.EndChangeset(); err != nil {
			return "", err
		}
	}

	if err := writer.Close(); err != nil {
		return "", err
	}

	return writer.ContentType(), nil
}

func writeOperation(w *batch.Writer, op *BatchOperation) error {
	req := &batch.Request{
		Method:    strings.ToUpper(op.Method),
		URI:       op.URI,
		Header:    op.Header,
		ContentID: op.ContentID,
	}

	if len(op.Body) > 0 {
		req.Body = bytes.NewReader(op.Body)
	}

	_, err := w.WriteRequest(req)

	return err
}

func isQueryMethod(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// ExecuteBatch sends b to the $batch endpoint and reads the multipart
// response.
func (c *Client) ExecuteBatch(ctx context.Context, b *BatchRequest) (*BatchResponse, error) {
	var payload bytes.Buffer

	contentType, err := b.Encode(&payload, c.cfg.Batch.BoundaryPrefix)
	if err != nil {
		return nil, err
	}

	req := &Request{
		Method: http.MethodPost,
		URI:    strings.TrimSuffix(c.cfg.Service.BaseURL, "/") + "/$batch",
		Header: http.Header{"Content-Type": []string{contentType}},
		Body:   &payload,
	}

	resp, body, err := c.send(ctx, req, snapodata.Version40)
	if err != nil {
		return nil, err
	}

	responseType := resp.Header.Get("Content-Type")

	opts := []batch.ReaderOption{batch.WithResponseMode()}
	if c.cfg.Batch.Charset != "" && !strings.Contains(strings.ToLower(responseType), "charset=") {
		opts = append(opts, batch.WithEncoding(c.cfg.Batch.Charset))
	}

	reader, err := batch.NewReader(bytes.NewReader(body), responseType, opts...)
	if err != nil {
		return nil, err
	}

	return readBatchResponse(ctx, reader)
}

func readBatchResponse(ctx context.Context, reader *batch.Reader) (*BatchResponse, error) {
	result := &BatchResponse{}
	inChangeset := false

	for state, err := range reader.All(ctx) {
		if err != nil {
			return nil, err
		}

		switch state {
		case batch.StateChangesetStart:
			inChangeset = true
		case batch.StateChangesetEnd:
			inChangeset = false
		case batch.StateOperation:
			part := reader.Response()

			body, err := io.ReadAll(part.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to read batch part body: %w", err)
			}

			result.Results = append(result.Results, BatchResult{
				StatusCode:  part.StatusCode,
				Reason:      part.Reason,
				Header:      part.Header.Clone(),
				ContentID:   part.ContentID,
				Body:        body,
				InChangeset: inChangeset,
			})
		}
	}

	return result, nil
}
