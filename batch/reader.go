package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"maps"
	"mime"
	"strings"

	"github.com/shibukawa/snapodata"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// ReaderOption configures a Reader.
type ReaderOption func(*Reader) error

// WithBoundary sets the batch boundary, overriding the content type.
func WithBoundary(boundary string) ReaderOption {
	return func(r *Reader) error {
		r.boundary = boundary
		return nil
	}
}

// WithResponseMode makes the reader parse status lines instead of request lines.
func WithResponseMode() ReaderOption {
	return func(r *Reader) error {
		r.responseMode = true
		return nil
	}
}

// WithEncoding sets the charset of header blocks, overriding the content type.
func WithEncoding(charset string) ReaderOption {
	return func(r *Reader) error {
		return r.setCharset(charset)
	}
}

// Reader is a pull parser for multipart/mixed batch payloads. It is not
// safe for concurrent use.
type Reader struct {
	src          *lineSource
	boundary     string
	responseMode bool
	decoder      *encoding.Decoder

	state State
	err   error

	// changeset is the boundary of the open changeset, or empty.
	changeset  string
	contentIDs map[string]string

	part       *Part
	body       *bodyReader
	generation uint64
}

// NewReader creates a reader over r. contentType is the media type of the
// payload, e.g. "multipart/mixed; boundary=batch_1"; it may be empty when
// WithBoundary is given.
func NewReader(r io.Reader, contentType string, opts ...ReaderOption) (*Reader, error) {
	reader := &Reader{
		src:        newLineSource(r),
		state:      StateInitial,
		contentIDs: map[string]string{},
	}

	if contentType != "" {
		mediaType, params, err := mime.ParseMediaType(contentType)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid content type %q: %w", snapodata.ErrProtocolFormat, contentType, err)
		}

		if !strings.HasPrefix(mediaType, "multipart/") {
			return nil, fmt.Errorf("%w: content type %q is not multipart", snapodata.ErrProtocolFormat, mediaType)
		}

		reader.boundary = params["boundary"]

		if charset := params["charset"]; charset != "" {
			if err := reader.setCharset(charset); err != nil {
				return nil, err
			}
		}
	}

	for _, opt := range opts {
		if err := opt(reader); err != nil {
			return nil, err
		}
	}

	if reader.boundary == "" {
		return nil, fmt.Errorf("%w: missing boundary", snapodata.ErrProtocolFormat)
	}

	return reader, nil
}

func (r *Reader) setCharset(charset string) error {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return fmt.Errorf("%w: unsupported charset %q", snapodata.ErrProtocolFormat, charset)
	}

	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		r.decoder = nil
		return nil
	}

	r.decoder = enc.NewDecoder()

	return nil
}

// State returns the current state.
func (r *Reader) State() State {
	return r.state
}

// Part returns the current part, or nil outside the Operation state.
func (r *Reader) Part() *Part {
	return r.part
}

// Request returns the current request part, or nil.
func (r *Reader) Request() *Request {
	if r.part == nil {
		return nil
	}

	return r.part.Request
}

// Response returns the current response part, or nil.
func (r *Reader) Response() *Response {
	if r.part == nil {
		return nil
	}

	return r.part.Response
}

// ContentIDs returns the Content-ID to URI registrations of the open changeset.
func (r *Reader) ContentIDs() map[string]string {
	return maps.Clone(r.contentIDs)
}

// Read advances to the next state. The body of the previous part is
// skipped if it was not fully read. After Completed, Read returns io.EOF.
// After a failure the reader stays in Exception and Read returns
// ErrReaderFailed.
func (r *Reader) Read(ctx context.Context) (State, error) {
	switch r.state {
	case StateCompleted:
		return r.state, io.EOF
	case StateException:
		return r.state, fmt.Errorf("%w: %w", ErrReaderFailed, r.err)
	}

	r.src.setContext(ctx)
	defer r.src.setContext(nil)

	next, err := r.advance()
	if err != nil {
		r.fail(err)
		return r.state, err
	}

	r.state = next

	return next, nil
}

// All iterates over the states of the stream up to and including
// Completed. On failure it yields Exception with the error and stops.
func (r *Reader) All(ctx context.Context) iter.Seq2[State, error] {
	return func(yield func(State, error) bool) {
		for !r.state.Terminal() {
			state, err := r.Read(ctx)
			if !yield(state, err) || err != nil {
				return
			}
		}
	}
}

func (r *Reader) fail(err error) {
	r.state = StateException
	r.err = err
	r.part = nil
	r.body = nil
	r.generation++
}

func (r *Reader) advance() (State, error) {
	if r.body != nil {
		if _, err := io.Copy(io.Discard, r.body); err != nil {
			return StateException, err
		}
	}

	r.generation++
	r.part = nil
	r.body = nil

	d, found, err := r.nextDelimiter()
	if err != nil {
		return StateException, err
	}

	if !found {
		if r.state == StateInitial {
			return StateCompleted, nil
		}

		return StateException, r.formatError(snapodata.ErrProtocolFormat, "missing closing boundary")
	}

	inChangeset := r.changeset != ""

	if d.changeset != inChangeset {
		return StateException, r.formatError(snapodata.ErrProtocolFormat, "batch boundary inside an open changeset")
	}

	if d.end {
		next, ok := resolveEndBoundary(r.state, inChangeset)
		if !ok {
			return StateException, fmt.Errorf("%w: end boundary resolved in state %s", snapodata.ErrInternal, r.state)
		}

		if next == StateChangesetEnd {
			r.changeset = ""
			r.contentIDs = map[string]string{}
		}

		return next, nil
	}

	header, err := r.readHeader()
	if err != nil {
		return StateException, err
	}

	if !inChangeset {
		if boundary, ok, err := r.changesetBoundary(header); err != nil {
			return StateException, err
		} else if ok {
			r.changeset = boundary
			return StateChangesetStart, nil
		}
	}

	if err := r.readOperation(header, inChangeset); err != nil {
		return StateException, err
	}

	return StateOperation, nil
}

type delimiter struct {
	changeset bool
	end       bool
}

// nextDelimiter skips lines up to the next boundary delimiter. found is
// false when the stream ends first.
func (r *Reader) nextDelimiter() (delimiter, bool, error) {
	for {
		line, _, err := r.src.next()
		if errors.Is(err, io.EOF) {
			return delimiter{}, false, nil
		}

		if err != nil {
			return delimiter{}, false, err
		}

		if d, ok := r.matchDelimiter(line); ok {
			return d, true, nil
		}
	}
}

func (r *Reader) matchDelimiter(line []byte) (delimiter, bool) {
	line = bytes.TrimRight(line, " \t")
	if !bytes.HasPrefix(line, []byte("--")) {
		return delimiter{}, false
	}

	rest := line[2:]

	if r.changeset != "" {
		if d, ok := matchBoundary(rest, r.changeset); ok {
			d.changeset = true
			return d, true
		}
	}

	return matchBoundary(rest, r.boundary)
}

func matchBoundary(rest []byte, boundary string) (delimiter, bool) {
	if !bytes.HasPrefix(rest, []byte(boundary)) {
		return delimiter{}, false
	}

	switch tail := rest[len(boundary):]; {
	case len(tail) == 0:
		return delimiter{}, true
	case string(tail) == "--":
		return delimiter{end: true}, true
	default:
		return delimiter{}, false
	}
}

// readLine reads one line of a header block, decoded with the configured charset.
func (r *Reader) readLine() (string, error) {
	line, _, err := r.src.next()
	if errors.Is(err, io.EOF) {
		return "", r.formatError(snapodata.ErrProtocolFormat, "unexpected end of stream")
	}

	if err != nil {
		return "", err
	}

	if r.decoder == nil {
		return string(line), nil
	}

	decoded, err := r.decoder.Bytes(line)
	if err != nil {
		return "", r.formatError(snapodata.ErrProtocolFormat, fmt.Sprintf("cannot decode line: %v", err))
	}

	return string(decoded), nil
}

// readHeader reads header lines up to the blank line. Folded continuation
// lines are appended to the previous value.
func (r *Reader) readHeader() (Header, error) {
	var header Header

	for {
		line, err := r.readLine()
		if err != nil {
			return Header{}, err
		}

		if line == "" {
			return header, nil
		}

		if isContinuation(line) {
			if header.Len() == 0 {
				return Header{}, r.formatError(snapodata.ErrProtocolFormat, "continuation line without a header")
			}

			last := &header.fields[header.Len()-1]
			last.Value += " " + strings.TrimSpace(line)

			continue
		}

		name, value, err := parseHeaderLine(line)
		if err != nil {
			return Header{}, r.formatError(snapodata.ErrProtocolFormat, err.Error())
		}

		header.Add(name, value)
	}
}

// changesetBoundary reports whether a part with the given MIME header
// starts a changeset, and returns its boundary.
func (r *Reader) changesetBoundary(header Header) (string, bool, error) {
	contentType := header.Get("Content-Type")
	if contentType == "" {
		return "", false, nil
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false, r.formatError(snapodata.ErrProtocolFormat, fmt.Sprintf("invalid content type %q", contentType))
	}

	if mediaType != "multipart/mixed" {
		return "", false, nil
	}

	boundary := params["boundary"]
	if boundary == "" {
		return "", false, r.formatError(snapodata.ErrProtocolFormat, "changeset without boundary")
	}

	return boundary, true, nil
}

func (r *Reader) readOperation(mimeHeader Header, inChangeset bool) error {
	line, err := r.readLine()
	if err != nil {
		return err
	}

	lineNo := r.src.line

	part := &Part{Header: mimeHeader}
	body := &bodyReader{reader: r, generation: r.generation}

	if r.responseMode {
		version, status, reason, err := parseStatusLine(line)
		if err != nil {
			return r.formatErrorAt(lineNo, snapodata.ErrProtocolFormat, err.Error())
		}

		header, err := r.readHeader()
		if err != nil {
			return err
		}

		part.Response = &Response{
			Version:    version,
			StatusCode: status,
			Reason:     reason,
			Header:     header,
			ContentID:  contentID(mimeHeader, header),
			Body:       body,
		}
	} else {
		method, uri, version, err := parseRequestLine(line)
		if err != nil {
			return r.formatErrorAt(lineNo, snapodata.ErrProtocolFormat, err.Error())
		}

		if inChangeset && queryMethods[method] {
			return r.formatErrorAt(lineNo, snapodata.ErrInvalidMethodForChangeset, fmt.Sprintf("%s %s", method, uri))
		}

		header, err := r.readHeader()
		if err != nil {
			return err
		}

		id := contentID(mimeHeader, header)

		if inChangeset && id != "" {
			if _, exists := r.contentIDs[id]; exists {
				return r.formatErrorAt(lineNo, snapodata.ErrContentIDConflict, fmt.Sprintf("Content-ID %s", id))
			}

			r.contentIDs[id] = uri
		}

		part.Request = &Request{
			Method:    method,
			URI:       uri,
			Version:   version,
			Header:    header,
			ContentID: id,
			Body:      body,
		}
	}

	r.part = part
	r.body = body

	return nil
}

func contentID(mimeHeader, header Header) string {
	if id := mimeHeader.Get("Content-ID"); id != "" {
		return id
	}

	return header.Get("Content-ID")
}

func (r *Reader) formatError(sentinel error, reason string) error {
	return r.formatErrorAt(r.src.line, sentinel, reason)
}

func (r *Reader) formatErrorAt(line int, sentinel error, reason string) error {
	return &FormatError{Line: line, Reason: reason, Err: sentinel}
}

// bodyReader streams the body of one part up to the next delimiter. The
// line break before a delimiter belongs to the delimiter.
type bodyReader struct {
	reader     *Reader
	generation uint64

	pending []byte
	term    []byte
	done    bool
}

func (b *bodyReader) Read(p []byte) (int, error) {
	if b.generation != b.reader.generation {
		return 0, ErrBodyExpired
	}

	for len(b.pending) == 0 {
		if b.done {
			return 0, io.EOF
		}

		line, term, err := b.reader.src.next()
		if errors.Is(err, io.EOF) {
			b.done = true
			continue
		}

		if err != nil {
			return 0, err
		}

		if _, ok := b.reader.matchDelimiter(line); ok {
			b.reader.src.unread(line, term)
			b.done = true

			continue
		}

		b.pending = append(append(b.pending[:0], b.term...), line...)
		b.term = append(b.term[:0], term...)
	}

	n := copy(p, b.pending)
	b.pending = b.pending[n:]

	return n, nil
}
