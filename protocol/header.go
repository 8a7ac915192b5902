package protocol

import "strings"

// headerField is one name/value pair, case preserved, in arrival order.
type headerField struct {
	name  string
	value string
}

// Header is an ordered, case-insensitive multimap. Lookups fold case;
// iteration (Fields) preserves insertion order and duplicate entries.
type Header struct {
	fields []headerField
}

// NewHeader returns an empty Header ready for use.
func NewHeader() Header { return Header{} }

// Add appends a value for name without removing existing entries for the
// same (case-insensitively compared) name.
func (h *Header) Add(name, value string) {
	h.fields = append(h.fields, headerField{name: name, value: value})
}

// Set removes any existing entries for name and inserts a single new one.
func (h *Header) Set(name, value string) {
	h.Del(name)
	h.Add(name, value)
}

// Get returns the first value stored for name, or "" if absent.
func (h *Header) Get(name string) string {
	for _, f := range h.fields {
		if strings.EqualFold(f.name, name) {
			return f.value
		}
	}
	return ""
}

// Has reports whether any entry exists for name.
func (h *Header) Has(name string) bool {
	for _, f := range h.fields {
		if strings.EqualFold(f.name, name) {
			return true
		}
	}
	return false
}

// Values returns all values stored for name, in insertion order.
func (h *Header) Values(name string) []string {
	var out []string
	for _, f := range h.fields {
		if strings.EqualFold(f.name, name) {
			out = append(out, f.value)
		}
	}
	return out
}

// Del removes every entry for name.
func (h *Header) Del(name string) {
	kept := h.fields[:0]
	for _, f := range h.fields {
		if !strings.EqualFold(f.name, name) {
			kept = append(kept, f)
		}
	}
	h.fields = kept
}

// Fields returns the header entries in insertion order, case preserved.
// Callers must not mutate the returned slice's backing array.
func (h *Header) Fields() []struct{ Name, Value string } {
	out := make([]struct{ Name, Value string }, len(h.fields))
	for i, f := range h.fields {
		out[i] = struct{ Name, Value string }{f.name, f.value}
	}
	return out
}

// Len returns the number of stored fields, including duplicates.
func (h *Header) Len() int { return len(h.fields) }
