package encoders

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"exporter/internal/export"
)

// ── JSON Encoder ────────────────────────────────────────────
// Structured output: the transformed collection wrapped in an envelope
// with a metadata block. Per-record key order follows each record's own
// field order, so two exports of the same collection with the same
// injected timestamp are byte-identical.

// Envelope is the top-level shape of the structured artifact.
type Envelope struct {
	Metadata EnvelopeMeta    `json:"metadata"`
	Data     []export.Record `json:"data"`
}

// EnvelopeMeta describes the export itself. RecordCount counts the
// transformed collection, not the raw input.
type EnvelopeMeta struct {
	ExportedAt    string `json:"exported_at"`
	RecordCount   int    `json:"record_count"`
	FormatVersion string `json:"format_version"`
}

type jsonEncoder struct{}

func init() { export.RegisterEncoder(&jsonEncoder{}) }

func (e *jsonEncoder) Spec() export.EncoderSpec {
	return export.EncoderSpec{Kind: "json", Label: "Structured (JSON)"}
}

func (e *jsonEncoder) Export(ctx context.Context, recs []export.Record, target string, opts export.Options) (bool, error) {
	// The envelope timestamp and the annotate step must agree, so pin
	// the stamp before transforming.
	if opts.Timestamp.IsZero() {
		opts.Timestamp = time.Now()
	}

	rows := export.Transform(recs, opts)
	if len(rows) == 0 {
		log.Printf("json export: no records after transform, skipping %q", target)
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	f, err := createTarget(target)
	if err != nil {
		return false, err
	}

	env := Envelope{
		Metadata: EnvelopeMeta{
			ExportedAt:    opts.Timestamp.UTC().Format(time.RFC3339),
			RecordCount:   len(rows),
			FormatVersion: export.FormatVersion,
		},
		Data: rows,
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&env); err != nil {
		discardTarget(f, target)
		return false, err
	}
	if err := closeTarget(f, target); err != nil {
		return false, err
	}
	return true, nil
}
