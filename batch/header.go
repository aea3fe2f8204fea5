package batch

import (
	"strings"
)

// HeaderField is one header line.
type HeaderField struct {
	Name  string
	Value string
}

// Header is an ordered header block with case-insensitive lookup.
type Header struct {
	fields []HeaderField
}

// Add appends a field, keeping any existing fields of the same name.
func (h *Header) Add(name, value string) {
	h.fields = append(h.fields, HeaderField{Name: name, Value: value})
}

// Set replaces all fields named name with a single field at the position
// of the first one, or appends it.
func (h *Header) Set(name, value string) {
	for i, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			h.fields[i].Value = value
			h.fields = append(h.fields[:i+1], removeNamed(h.fields[i+1:], name)...)

			return
		}
	}

	h.Add(name, value)
}

func removeNamed(fields []HeaderField, name string) []HeaderField {
	kept := fields[:0]

	for _, f := range fields {
		if !strings.EqualFold(f.Name, name) {
			kept = append(kept, f)
		}
	}

	return kept
}

// Get returns the value of the first field named name.
func (h Header) Get(name string) string {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}

	return ""
}

// Values returns the values of every field named name, in order.
func (h Header) Values(name string) []string {
	var values []string

	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			values = append(values, f.Value)
		}
	}

	return values
}

// Has reports whether a field named name is present.
func (h Header) Has(name string) bool {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return true
		}
	}

	return false
}

// Fields returns a copy of the fields in wire order.
func (h Header) Fields() []HeaderField {
	return append([]HeaderField(nil), h.fields...)
}

func (h Header) Len() int {
	return len(h.fields)
}

func (h Header) Clone() Header {
	return Header{fields: h.Fields()}
}
