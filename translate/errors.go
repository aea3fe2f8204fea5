package translate

import (
	"fmt"

	"github.com/shibukawa/snapodata"
)

// MethodError reports a call that is not a recognized operator or function.
type MethodError struct {
	Method string
	Expr   string
}

func (e *MethodError) Error() string {
	return fmt.Sprintf("method %s is not supported: %s", e.Method, e.Expr)
}

func (e *MethodError) Unwrap() error {
	return snapodata.ErrMethodNotSupported
}

// ShapeError reports an operator used in a position the resource query
// model cannot express.
type ShapeError struct {
	Method string
	Reason string
}

func (e *ShapeError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("%s: %s", snapodata.ErrUnsupportedQueryShape, e.Reason)
	}

	return fmt.Sprintf("%s: %s: %s", snapodata.ErrUnsupportedQueryShape, e.Method, e.Reason)
}

func (e *ShapeError) Unwrap() error {
	return snapodata.ErrUnsupportedQueryShape
}

func shapeError(method, format string, args ...any) error {
	return &ShapeError{Method: method, Reason: fmt.Sprintf(format, args...)}
}
