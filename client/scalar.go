package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shibukawa/snapodata/expr"
	"github.com/shopspring/decimal"
)

// AliasFromContext extracts the aggregate alias from an @odata.context
// value such as "$metadata#Documents(SumIntProp)": the text between the
// last '(' and the last ')'.
func AliasFromContext(context string) string {
	open := strings.LastIndexByte(context, '(')
	closing := strings.LastIndexByte(context, ')')

	if open < 0 || closing <= open {
		return ""
	}

	return context[open+1 : closing]
}

type aggregateEnvelope struct {
	Context string                       `json:"@odata.context"`
	Value   []map[string]json.RawMessage `json:"value"`
}

// ParseAggregateEnvelope returns the raw JSON value of the aggregate in an
// $apply response, and the alias it was found under. The alias comes from
// @odata.context, or fallback when the context names none. A missing value
// is returned as nil.
func ParseAggregateEnvelope(body []byte, fallback string) (json.RawMessage, string, error) {
	var envelope aggregateEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, "", fmt.Errorf("invalid aggregate envelope: %w", err)
	}

	alias := AliasFromContext(envelope.Context)
	if alias == "" {
		alias = fallback
	}

	if len(envelope.Value) == 0 {
		return nil, alias, nil
	}

	raw, ok := envelope.Value[0][alias]
	if !ok {
		return nil, alias, nil
	}

	return raw, alias, nil
}

// ParseCountBody returns the text of a /$count response.
func ParseCountBody(body []byte) string {
	return string(bytes.TrimSpace(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))))
}

// convertScalar converts the text or raw JSON of a scalar to target. Null
// or missing values are only accepted for nullable targets, which are
// returned as pointers.
func convertScalar(raw []byte, target expr.Type) (any, error) {
	text, isNull, err := scalarText(raw)
	if err != nil {
		return nil, err
	}

	if isNull {
		if !target.Nullable {
			return nil, fmt.Errorf("null value for non-nullable %s", target)
		}

		return nullPointer(target)
	}

	var value any

	switch target.Kind {
	case expr.KindInt32, expr.KindInt64:
		d, err := decimal.NewFromString(text)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", text)
		}

		if !d.IsInteger() {
			return nil, fmt.Errorf("%q is not an integer", text)
		}

		if !d.BigInt().IsInt64() {
			return nil, fmt.Errorf("%q overflows int64", text)
		}

		n := d.IntPart()

		if target.Kind == expr.KindInt64 {
			value = n
			break
		}

		if n != int64(int32(n)) {
			return nil, fmt.Errorf("%q overflows int32", text)
		}

		value = int32(n)
	case expr.KindSingle:
		f, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid single %q", text)
		}

		value = float32(f)
	case expr.KindDouble:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid double %q", text)
		}

		value = f
	case expr.KindDecimal:
		d, err := decimal.NewFromString(text)
		if err != nil {
			return nil, fmt.Errorf("invalid decimal %q", text)
		}

		value = d
	default:
		return nil, fmt.Errorf("%s is not a scalar result type", target)
	}

	if target.Nullable {
		return pointerTo(value), nil
	}

	return value, nil
}

// scalarText unwraps a JSON string or passes through a bare token.
func scalarText(raw []byte) (string, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return "", true, nil
	}

	if trimmed[0] != '"' {
		return string(trimmed), false, nil
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return "", false, fmt.Errorf("invalid string value: %w", err)
	}

	return s, false, nil
}

func pointerTo(v any) any {
	switch x := v.(type) {
	case int32:
		return &x
	case int64:
		return &x
	case float32:
		return &x
	case float64:
		return &x
	case decimal.Decimal:
		return &x
	default:
		return v
	}
}

func nullPointer(target expr.Type) (any, error) {
	switch target.Kind {
	case expr.KindInt32:
		return (*int32)(nil), nil
	case expr.KindInt64:
		return (*int64)(nil), nil
	case expr.KindSingle:
		return (*float32)(nil), nil
	case expr.KindDouble:
		return (*float64)(nil), nil
	case expr.KindDecimal:
		return (*decimal.Decimal)(nil), nil
	default:
		return nil, fmt.Errorf("%s is not a scalar result type", target)
	}
}
