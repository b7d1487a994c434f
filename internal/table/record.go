package table

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotRecords is returned when JSON input is not an array of objects
var ErrNotRecords = errors.New("expected a JSON array of objects")

// Record is one extracted line item: an ordered mapping from field name to text value.
// Records are immutable through their exported API; updates return a copy.
type Record struct {
	keys   []string
	values map[string]string
}

// NewRecord builds a record from alternating field names and values
func NewRecord(kv ...string) Record {
	r := Record{values: make(map[string]string, len(kv)/2)}
	for i := 0; i < len(kv); i += 2 {
		value := ""
		if i+1 < len(kv) {
			value = kv[i+1]
		}
		r.put(kv[i], value)
	}
	return r
}

// put writes in place; only used while a record is still being built
func (r *Record) put(key, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value of a field and whether the field is present
func (r Record) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Value returns the value of a field, or "" when absent
func (r Record) Value(key string) string {
	return r.values[key]
}

// Keys returns the field names in insertion order
func (r Record) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Len returns the number of fields
func (r Record) Len() int {
	return len(r.keys)
}

// With returns a copy of the record with key set to value
func (r Record) With(key, value string) Record {
	out := r.Clone()
	out.put(key, value)
	return out
}

// Clone returns a deep copy
func (r Record) Clone() Record {
	out := Record{
		keys:   append([]string(nil), r.keys...),
		values: make(map[string]string, len(r.values)),
	}
	for k, v := range r.values {
		out.values[k] = v
	}
	return out
}

// Equal reports whether both records hold the same fields in the same order
func (r Record) Equal(other Record) bool {
	if len(r.keys) != len(other.keys) {
		return false
	}
	for i, k := range r.keys {
		if other.keys[i] != k || other.values[k] != r.values[k] {
			return false
		}
	}
	return true
}

// MarshalJSON writes the record as a JSON object preserving field order
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, keeping the order of its keys.
// Every value is converted to text: strings as-is, numbers by their literal,
// null as "", nested objects and arrays as compact JSON.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("reading record: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return ErrNotRecords
	}

	out := Record{values: make(map[string]string)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("reading field name: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v in record", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("reading field %q: %w", key, err)
		}
		value, err := textValue(raw)
		if err != nil {
			return fmt.Errorf("converting field %q: %w", key, err)
		}
		out.put(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("closing record: %w", err)
	}

	*r = out
	return nil
}

func textValue(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case 'n':
		return "", nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return "", err
		}
		return buf.String(), nil
	default:
		// numbers and booleans keep their literal text
		return string(raw), nil
	}
}

// DecodeRecords parses a JSON array of objects into records
func DecodeRecords(data []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrNotRecords
	}
	var records []Record
	if err := json.Unmarshal(trimmed, &records); err != nil {
		if errors.Is(err, ErrNotRecords) {
			return nil, ErrNotRecords
		}
		return nil, fmt.Errorf("decoding records: %w", err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}
