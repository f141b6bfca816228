package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// ── Record ─────────────────────────────────────────────────
// Common unit of exportable data.
// Records have no fixed schema: field sets vary per record and per
// entity kind. Field order is significant — it decides tabular column
// order, projection order, and the key order of structured output —
// so a Record carries an ordered field list alongside its value map.
//
// Values are the JSON scalar types (string, float64, bool, nil) plus
// nested map[string]any / []any.

// Record is a single exportable row with an ordered, open field set.
type Record struct {
	fields []string
	values map[string]any
}

// NewRecord returns an empty Record ready for Set calls.
func NewRecord() Record {
	return Record{values: make(map[string]any)}
}

// Set stores a value under field. New fields are appended to the field
// order; setting an existing field overwrites in place, keeping its position.
func (r *Record) Set(field string, v any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[field]; !ok {
		r.fields = append(r.fields, field)
	}
	r.values[field] = v
}

// Get returns the value stored under field and whether it is present.
func (r Record) Get(field string) (any, bool) {
	v, ok := r.values[field]
	return v, ok
}

// Fields returns the record's field names in insertion order.
func (r Record) Fields() []string {
	out := make([]string, len(r.fields))
	copy(out, r.fields)
	return out
}

// Len returns the number of fields in the record.
func (r Record) Len() int {
	return len(r.fields)
}

// clone returns an independent copy; used by pipeline steps that add
// fields so the caller's record is never mutated.
func (r Record) clone() Record {
	out := Record{
		fields: make([]string, len(r.fields)),
		values: make(map[string]any, len(r.values)),
	}
	copy(out.fields, r.fields)
	for k, v := range r.values {
		out.values[k] = v
	}
	return out
}

// ── JSON codec ─────────────────────────────────────────────
// Stock encoding/json would lose field order through map round-trips,
// so Record marshals its object keys in field order and unmarshals by
// walking the decoder's token stream. Nested objects decode to plain
// map[string]any; only the record's own field order is tracked.

// MarshalJSON writes the record as a JSON object with keys in field order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.values[f])
		if err != nil {
			return nil, fmt.Errorf("marshal field %q: %w", f, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, preserving its key order.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("record must be a JSON object, got %v", tok)
	}

	*r = NewRecord()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected object key token: %v", keyTok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("decode field %q: %w", key, err)
		}
		r.Set(key, v)
	}

	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// DecodeRecords reads a JSON array of objects into an ordered collection.
// This is the input format the job runner and CLI accept: the collection
// arrives already resolved, this layer never queries a data source.
func DecodeRecords(rd io.Reader) ([]Record, error) {
	dec := json.NewDecoder(rd)
	var recs []Record
	if err := dec.Decode(&recs); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("decode records: unexpected content after the record array")
	}
	return recs, nil
}
