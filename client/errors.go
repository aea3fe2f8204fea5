package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shibukawa/snapodata"
	"github.com/shibukawa/snapodata/expr"
)

var (
	ErrRequestFailed      = errors.New("request failed")
	ErrNoElements         = errors.New("sequence contains no elements")
	ErrMoreThanOneElement = errors.New("sequence contains more than one element")
	ErrNotASequence       = errors.New("query does not produce a sequence")
)

// StatusError reports a non-2xx response. It matches ErrRequestFailed,
// and ErrResourceNotFound for 404.
type StatusError struct {
	Method     string
	URI        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d %s", e.Method, e.URI, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *StatusError) Unwrap() []error {
	if e.StatusCode == http.StatusNotFound {
		return []error{ErrRequestFailed, snapodata.ErrResourceNotFound}
	}

	return []error{ErrRequestFailed}
}

// ScalarConversionError reports a scalar response that cannot be
// converted to the static result type of the query.
type ScalarConversionError struct {
	Response *Response
	Body     []byte
	Target   expr.Type
	Reason   string
}

func (e *ScalarConversionError) Error() string {
	return fmt.Sprintf("%v to %s: %s", snapodata.ErrScalarConversion, e.Target, e.Reason)
}

func (e *ScalarConversionError) Unwrap() error {
	return snapodata.ErrScalarConversion
}
