package batch

import (
	"errors"
	"fmt"
)

var (
	// ErrReaderFailed is returned by Read once the reader is in the Exception state.
	ErrReaderFailed = errors.New("batch reader failed")
	// ErrBodyExpired is returned when a part body is read after the reader moved on.
	ErrBodyExpired  = errors.New("part body is no longer valid")
	ErrWriterClosed = errors.New("batch writer is closed")
	ErrNoChangeset  = errors.New("no changeset is open")
)

// FormatError reports a malformed batch stream. Err is one of the
// protocol sentinels (ErrProtocolFormat, ErrInvalidMethodForChangeset,
// ErrContentIDConflict).
type FormatError struct {
	Line   int
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%v at line %d: %s", e.Err, e.Line, e.Reason)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}
