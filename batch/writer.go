package batch

import (
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"
)

const (
	DefaultBoundaryPrefix   = "batch_"
	changesetBoundaryPrefix = "changeset_"
	crlf                    = "\r\n"
)

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithBoundaryPrefix replaces the "batch_" prefix of the generated boundary.
func WithBoundaryPrefix(prefix string) WriterOption {
	return func(w *Writer) {
		w.boundary = prefix + uuid.NewString()
	}
}

// Writer produces a multipart/mixed batch payload.
type Writer struct {
	w        io.Writer
	boundary string

	changeset     string
	nextContentID int

	started bool
	closed  bool
	err     error
}

func NewWriter(w io.Writer, opts ...WriterOption) *Writer {
	writer := &Writer{
		w:        w,
		boundary: DefaultBoundaryPrefix + uuid.NewString(),
	}

	for _, opt := range opts {
		opt(writer)
	}

	return writer
}

// Boundary returns the batch boundary.
func (w *Writer) Boundary() string {
	return w.boundary
}

// ContentType returns the media type to send with the payload.
func (w *Writer) ContentType() string {
	return "multipart/mixed; boundary=" + w.boundary
}

// BeginChangeset opens a changeset. Requests written until EndChangeset
// belong to it.
func (w *Writer) BeginChangeset() error {
	if err := w.check(); err != nil {
		return err
	}

	if w.changeset != "" {
		return fmt.Errorf("changeset %s is already open", w.changeset)
	}

	w.changeset = changesetBoundaryPrefix + uuid.NewString()

	w.delimiter(w.boundary, false)
	w.printf("Content-Type: multipart/mixed; boundary=%s%s%s", w.changeset, crlf, crlf)

	return w.err
}

// EndChangeset closes the open changeset.
func (w *Writer) EndChangeset() error {
	if err := w.check(); err != nil {
		return err
	}

	if w.changeset == "" {
		return ErrNoChangeset
	}

	w.delimiter(w.changeset, true)
	w.changeset = ""

	return w.err
}

// WriteRequest writes one request part and returns its Content-ID. Inside
// a changeset a Content-ID is assigned when req has none.
func (w *Writer) WriteRequest(req *Request) (string, error) {
	if err := w.check(); err != nil {
		return "", err
	}

	id := req.ContentID
	if id == "" && w.changeset != "" {
		w.nextContentID++
		id = strconv.Itoa(w.nextContentID)
	}

	version := req.Version
	if version == "" {
		version = HTTPVersion
	}

	w.partHeader(id)
	w.printf("%s %s %s%s", req.Method, req.URI, version, crlf)
	w.header(req.Header)
	w.body(req.Body)

	return id, w.err
}

// WriteResponse writes one response part.
func (w *Writer) WriteResponse(resp *Response) error {
	if err := w.check(); err != nil {
		return err
	}

	version := resp.Version
	if version == "" {
		version = HTTPVersion
	}

	w.partHeader(resp.ContentID)
	w.printf("%s %d %s%s", version, resp.StatusCode, resp.Reason, crlf)
	w.header(resp.Header)
	w.body(resp.Body)

	return w.err
}

// Close writes the closing delimiter. An open changeset is closed first.
func (w *Writer) Close() error {
	if w.closed {
		return w.err
	}

	if w.changeset != "" {
		if err := w.EndChangeset(); err != nil {
			return err
		}
	}

	w.delimiter(w.boundary, true)
	w.closed = true

	return w.err
}

func (w *Writer) check() error {
	if w.err != nil {
		return w.err
	}

	if w.closed {
		return ErrWriterClosed
	}

	return nil
}

func (w *Writer) partHeader(contentID string) {
	boundary := w.boundary
	if w.changeset != "" {
		boundary = w.changeset
	}

	w.delimiter(boundary, false)
	w.printf("Content-Type: application/http%s", crlf)
	w.printf("Content-Transfer-Encoding: binary%s", crlf)

	if contentID != "" {
		w.printf("Content-ID: %s%s", contentID, crlf)
	}

	w.printf("%s", crlf)
}

// delimiter writes a boundary line. Every delimiter but the first is
// preceded by a line break.
func (w *Writer) delimiter(boundary string, end bool) {
	if w.started {
		w.printf("%s", crlf)
	}

	w.started = true

	if end {
		w.printf("--%s--%s", boundary, crlf)
		return
	}

	w.printf("--%s%s", boundary, crlf)
}

func (w *Writer) header(h Header) {
	for _, f := range h.fields {
		w.printf("%s: %s%s", f.Name, f.Value, crlf)
	}

	w.printf("%s", crlf)
}

func (w *Writer) body(r io.Reader) {
	if r == nil || w.err != nil {
		return
	}

	_, w.err = io.Copy(w.w, r)
}

func (w *Writer) printf(format string, args ...any) {
	if w.err != nil {
		return
	}

	_, w.err = fmt.Fprintf(w.w, format, args...)
}
