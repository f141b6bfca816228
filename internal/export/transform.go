package export

import (
	"reflect"
	"time"
)

// ── Transform Pipeline ─────────────────────────────────────
// Shared preprocessing every encoder runs before serializing:
// filter → project → annotate, each step applied only when configured.
// Pure function — no I/O, no mutation of the input records.

// Reserved metadata fields stamped by the annotate step. They overwrite
// same-named fields on incoming records.
const (
	MetaFieldExportedAt = "_exported_at"
	MetaFieldVersion    = "_format_version"

	// FormatVersion marks the export format generation, both as the
	// per-record annotation and in the structured envelope.
	FormatVersion = "1.0"
)

// Options is the export configuration shared by all encoders.
type Options struct {
	// IncludeMetadata stamps the reserved metadata fields on every record.
	IncludeMetadata bool `json:"includeMetadata"`

	// Fields, when non-empty, projects each record down to exactly these
	// fields, in this order. Fields absent from a record are omitted.
	Fields []string `json:"fields,omitempty"`

	// Filter keeps a record only if every entry matches the record's
	// value at that field exactly. No coercion: a string "1" does not
	// match the number 1. Records missing a filtered field are dropped.
	Filter map[string]any `json:"filter,omitempty"`

	// Timestamp is the injected metadata timestamp. Zero means "capture
	// once at pipeline start"; tests and multi-format fan-outs set it so
	// every artifact of one call carries the same literal value.
	Timestamp time.Time `json:"-"`
}

// Transform applies filter → project → annotate to the collection and
// returns the result as a new slice. Empty in, empty out.
func Transform(recs []Record, opts Options) []Record {
	stamp := opts.Timestamp
	if stamp.IsZero() {
		stamp = time.Now()
	}
	stampText := stamp.UTC().Format(time.RFC3339)

	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		if !matchesFilter(rec, opts.Filter) {
			continue
		}
		if len(opts.Fields) > 0 {
			rec = projectRecord(rec, opts.Fields)
		}
		if opts.IncludeMetadata {
			rec = annotateRecord(rec, stampText)
		}
		out = append(out, rec)
	}
	return out
}

func matchesFilter(r Record, filter map[string]any) bool {
	for field, want := range filter {
		got, ok := r.Get(field)
		if !ok {
			return false
		}
		if !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

func projectRecord(r Record, fields []string) Record {
	out := NewRecord()
	for _, f := range fields {
		if v, ok := r.Get(f); ok {
			out.Set(f, v)
		}
	}
	return out
}

func annotateRecord(r Record, stampText string) Record {
	out := r.clone()
	out.Set(MetaFieldExportedAt, stampText)
	out.Set(MetaFieldVersion, FormatVersion)
	return out
}
