// Package layering holds the document model used when composing definition
// layers: an insertion-ordered key/value document and the deep-merge that
// folds an inheritance chain into a single resolved document.
package layering

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Document is a JSON object that preserves key insertion order. Nested
// objects are themselves *Document values; arrays are []any.
type Document struct {
	keys   []string
	values map[string]any
}

// NewDocument constructs an empty document.
func NewDocument() *Document {
	return &Document{values: map[string]any{}}
}

// ParseJSON parses raw as a JSON object into a Document, keeping the key
// order of the source text.
func ParseJSON(raw string) (*Document, error) {
	parsed := gjson.Parse(raw)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("layering: document root must be a JSON object")
	}
	return fromResult(parsed), nil
}

func fromResult(result gjson.Result) *Document {
	doc := NewDocument()
	result.ForEach(func(key, value gjson.Result) bool {
		doc.Set(key.String(), convertResult(value))
		return true
	})
	return doc
}

func convertResult(result gjson.Result) any {
	switch {
	case result.IsObject():
		return fromResult(result)
	case result.IsArray():
		items := result.Array()
		out := make([]any, 0, len(items))
		for _, item := range items {
			out = append(out, convertResult(item))
		}
		return out
	case result.Type == gjson.Number:
		// Keep integers integral; gjson reports every number as float64.
		if !strings.ContainsAny(result.Raw, ".eE") {
			return int(result.Int())
		}
		return result.Float()
	case result.Type == gjson.String:
		return result.String()
	case result.Type == gjson.True:
		return true
	case result.Type == gjson.False:
		return false
	default:
		return nil
	}
}

// Get returns the value stored under key.
func (d *Document) Get(key string) (any, bool) {
	value, ok := d.values[key]
	return value, ok
}

// Set stores value under key, appending the key when it is new.
func (d *Document) Set(key string, value any) {
	if _, exists := d.values[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
}

// Has reports whether key is present.
func (d *Document) Has(key string) bool {
	_, ok := d.values[key]
	return ok
}

// Keys returns the keys in insertion order.
func (d *Document) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Len returns the number of entries.
func (d *Document) Len() int {
	return len(d.keys)
}

// Document returns the nested document stored under key, when present.
func (d *Document) Document(key string) (*Document, bool) {
	nested, ok := d.values[key].(*Document)
	return nested, ok
}

// String returns the string form of the value under key, when present.
func (d *Document) String(key string) (string, bool) {
	value, ok := d.values[key]
	if !ok {
		return "", false
	}
	if s, ok := value.(string); ok {
		return s, true
	}
	return fmt.Sprint(value), true
}

// Int returns the value under key as an int when it carries one.
func (d *Document) Int(key string) (int, bool) {
	switch v := d.values[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	clone := NewDocument()
	for _, key := range d.keys {
		clone.Set(key, cloneValue(d.values[key]))
	}
	return clone
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case *Document:
		return v.Clone()
	case []any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = cloneValue(v[i])
		}
		return out
	default:
		return v
	}
}
