package encoders

import (
	"bufio"
	"context"
	"log"
	"os"
	"strings"

	"exporter/internal/export"
)

// ── CSV Encoder ─────────────────────────────────────────────
// Tabular output. Columns come from the first record's own field order;
// records with extra fields lose them, records with missing fields get
// empty cells. Quoting is fixed by the format contract rather than by
// content: text and nested values are always quoted (inner quotes
// doubled), other scalars are never quoted. encoding/csv quotes
// conditionally, so cells are written by hand.

type csvEncoder struct{}

func init() { export.RegisterEncoder(&csvEncoder{}) }

func (e *csvEncoder) Spec() export.EncoderSpec {
	return export.EncoderSpec{Kind: "csv", Label: "Tabular (CSV)"}
}

func (e *csvEncoder) Export(ctx context.Context, recs []export.Record, target string, opts export.Options) (bool, error) {
	rows := export.Transform(recs, opts)
	if len(rows) == 0 {
		log.Printf("csv export: no records after transform, skipping %q", target)
		return false, nil
	}

	f, err := createTarget(target)
	if err != nil {
		return false, err
	}
	if err := writeTable(ctx, f, rows); err != nil {
		discardTarget(f, target)
		return false, err
	}
	if err := closeTarget(f, target); err != nil {
		return false, err
	}
	return true, nil
}

func writeTable(ctx context.Context, f *os.File, rows []export.Record) error {
	w := bufio.NewWriter(f)

	// Header row: first record's field names, comma-joined, unquoted.
	headers := rows[0].Fields()
	w.WriteString(strings.Join(headers, ","))
	w.WriteByte('\n')

	for _, rec := range rows {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		for i, h := range headers {
			if i > 0 {
				w.WriteByte(',')
			}
			cell, err := formatCell(rec, h)
			if err != nil {
				return err
			}
			w.WriteString(cell)
		}
		w.WriteByte('\n')
	}

	return w.Flush()
}

// formatCell renders one cell for the column h.
func formatCell(rec export.Record, h string) (string, error) {
	v, ok := rec.Get(h)
	if !ok || v == nil {
		return "", nil
	}
	if s, isText := v.(string); isText {
		return quoteCell(s), nil
	}
	if isComposite(v) {
		token, err := compositeToken(v)
		if err != nil {
			return "", err
		}
		return quoteCell(token), nil
	}
	return scalarText(v), nil
}

// quoteCell wraps s in quotes, doubling any embedded quote characters.
func quoteCell(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
