package testhelper

import (
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
)

// Caller returns "(file:line)" of the caller, for table entries that
// need to point back at their definition.
func Caller(t *testing.T) string {
	t.Helper()

	_, file, line, ok := runtime.Caller(1)
	if !ok {
		return "unknown"
	}

	return fmt.Sprintf("(%s:%d)", filepath.Base(file), line)
}
