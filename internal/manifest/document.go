package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// Document is a JSON object that remembers key order. Nested objects are
// *Document, arrays are []any and numbers are json.Number, so a parse and
// re-encode leaves an untouched manifest byte-for-byte stable apart from
// whitespace.
type Document struct {
	keys   []string
	values map[string]any
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{values: map[string]any{}}
}

// Len returns the number of keys.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Keys returns the keys in document order.
func (d *Document) Keys() []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Has reports whether key is present.
func (d *Document) Has(key string) bool {
	if d == nil {
		return false
	}
	_, ok := d.values[key]
	return ok
}

// Get returns the value stored under key.
func (d *Document) Get(key string) (any, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d.values[key]
	return v, ok
}

// GetString returns the value under key when it is a string.
func (d *Document) GetString(key string) (string, bool) {
	v, ok := d.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Object returns the nested object under key.
func (d *Document) Object(key string) (*Document, bool) {
	v, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	obj, ok := v.(*Document)
	return obj, ok
}

// Set stores value under key. New keys are appended; existing keys keep
// their position.
func (d *Document) Set(key string, value any) {
	if d.values == nil {
		d.values = map[string]any{}
	}
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
}

// Delete removes key if present.
func (d *Document) Delete(key string) {
	if _, ok := d.values[key]; !ok {
		return
	}
	delete(d.values, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

// Clone returns a shallow copy: the key list and top-level map are new,
// nested values are shared.
func (d *Document) Clone() *Document {
	out := NewDocument()
	if d == nil {
		return out
	}
	for _, k := range d.keys {
		out.Set(k, d.values[k])
	}
	return out
}

// Parse decodes a JSON object.
func Parse(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("empty document")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	doc, ok := v.(*Document)
	if !ok {
		return nil, fmt.Errorf("parsing JSON: top-level value is %T, want object", v)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("parsing JSON: trailing data after object")
	}
	return doc, nil
}

// ParseLenient decodes data, substituting an empty document when it cannot
// be parsed. The parse error is still returned so callers can report it.
func ParseLenient(data []byte) (*Document, error) {
	doc, err := Parse(data)
	if err != nil {
		return NewDocument(), err
	}
	return doc, nil
}

// ReadFile parses the JSON object stored at path.
func ReadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// WriteFile encodes doc to path, keeping the file mode of an existing file.
func WriteFile(path string, doc *Document) error {
	data, err := doc.Encode()
	if err != nil {
		return err
	}
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Encode renders the document with two-space indentation and a trailing
// newline, the layout npm writes.
func (d *Document) Encode() ([]byte, error) {
	raw, err := d.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, fmt.Errorf("indenting JSON: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler, preserving key order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Document) UnmarshalJSON(data []byte) error {
	doc, err := Parse(data)
	if err != nil {
		return err
	}
	*d = *doc
	return nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		doc := NewDocument()
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("object key is %T, want string", keyTok)
			}
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			doc.Set(key, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return doc, nil
	case '[':
		arr := []any{}
		for dec.More() {
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %q", delim)
	}
}

// writeValue encodes v without HTML escaping so "<" and "&" in manifest
// strings survive a rewrite unchanged.
func writeValue(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case *Document:
		if val == nil {
			buf.WriteString("null")
			return nil
		}
		buf.WriteByte('{')
		for i, k := range val.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeScalar(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeValue(buf, val.values[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		return writeScalar(buf, val)
	}
	return nil
}

func writeScalar(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON value: %w", err)
	}
	// Encoder.Encode appends a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}
