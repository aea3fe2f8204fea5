package snapodata

import (
	"errors"
	"fmt"
)

// Common errors used throughout the SnapOData packages
var (
	// Translation errors
	ErrUnsupportedQueryShape = errors.New("unsupported query shape")
	// ErrMethodNotSupported indicates a call site that matches no known query operator.
	ErrMethodNotSupported = fmt.Errorf("%w: method not supported", ErrUnsupportedQueryShape)
	ErrEvaluation         = errors.New("failed to evaluate closed expression")
	// ErrProtocolVersion indicates the query needs a newer protocol version than the service allows.
	ErrProtocolVersion = errors.New("query requires a newer protocol version")

	// Batch errors
	ErrProtocolFormat            = errors.New("malformed batch payload")
	ErrInvalidMethodForChangeset = fmt.Errorf("%w: method not allowed inside a changeset", ErrProtocolFormat)
	ErrContentIDConflict         = errors.New("duplicate Content-ID within changeset")

	// Execution errors
	ErrScalarConversion = errors.New("failed to convert scalar response")
	ErrResourceNotFound = errors.New("resource not found")

	ErrInternal = errors.New("internal error")
)
