package batch

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
)

// contextReader checks its context before every read from the wrapped
// stream. Behind a bufio.Reader that only happens on buffer refill.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if c.ctx != nil {
		if err := c.ctx.Err(); err != nil {
			return 0, err
		}
	}

	return c.r.Read(p)
}

// lineSource splits a byte stream into lines, keeping the terminator of
// each line separately. One line can be pushed back.
type lineSource struct {
	in *contextReader
	br *bufio.Reader

	pushed     bool
	pushedLine []byte
	pushedTerm []byte

	// line is the number of the most recently returned line, starting at 1.
	line int
}

func newLineSource(r io.Reader) *lineSource {
	in := &contextReader{r: r}
	return &lineSource{in: in, br: bufio.NewReader(in)}
}

func (s *lineSource) setContext(ctx context.Context) {
	s.in.ctx = ctx
}

// next returns the next line without its terminator. The terminator is
// "\r\n", "\n" or empty for a final unterminated line. io.EOF is returned
// only when no bytes remain.
func (s *lineSource) next() ([]byte, []byte, error) {
	if s.pushed {
		s.pushed = false
		s.line++

		return s.pushedLine, s.pushedTerm, nil
	}

	raw, err := s.br.ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, err
	}

	if len(raw) == 0 {
		return nil, nil, io.EOF
	}

	s.line++

	switch {
	case bytes.HasSuffix(raw, []byte("\r\n")):
		return raw[:len(raw)-2], raw[len(raw)-2:], nil
	case bytes.HasSuffix(raw, []byte("\n")):
		return raw[:len(raw)-1], raw[len(raw)-1:], nil
	default:
		return raw, nil, nil
	}
}

// unread pushes back the line most recently returned by next.
func (s *lineSource) unread(line, term []byte) {
	s.pushed = true
	s.pushedLine = line
	s.pushedTerm = term
	s.line--
}
