package encoders

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"exporter/internal/export"
)

// ── Document Encoder ────────────────────────────────────────
// Paginated human-readable document: one block per record with
// label/value lines, a fixed number of records per page, form-feed
// page breaks. Rendering streams through a buffered writer so large
// collections never hold the whole document in memory.

const docRecordsPerPage = 25

type docEncoder struct{}

func init() { export.RegisterEncoder(&docEncoder{}) }

func (e *docEncoder) Spec() export.EncoderSpec {
	return export.EncoderSpec{Kind: "doc", Label: "Document (paginated text)"}
}

func (e *docEncoder) Export(ctx context.Context, recs []export.Record, target string, opts export.Options) (bool, error) {
	if opts.Timestamp.IsZero() {
		opts.Timestamp = time.Now()
	}

	rows := export.Transform(recs, opts)
	if len(rows) == 0 {
		log.Printf("doc export: no records after transform, skipping %q", target)
		return false, nil
	}

	f, err := createTarget(target)
	if err != nil {
		return false, err
	}
	stamp := opts.Timestamp.UTC().Format(time.RFC3339)
	if err := writeDocument(ctx, f, rows, stamp); err != nil {
		discardTarget(f, target)
		return false, err
	}
	if err := closeTarget(f, target); err != nil {
		return false, err
	}
	return true, nil
}

func writeDocument(ctx context.Context, f *os.File, rows []export.Record, stamp string) error {
	w := bufio.NewWriter(f)
	pages := (len(rows) + docRecordsPerPage - 1) / docRecordsPerPage

	writePageHeader(w, 1, pages, stamp)
	for i, rec := range rows {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if i > 0 && i%docRecordsPerPage == 0 {
			w.WriteByte('\f')
			writePageHeader(w, i/docRecordsPerPage+1, pages, stamp)
		}
		if err := writeRecordBlock(w, i+1, rec); err != nil {
			return err
		}
	}

	return w.Flush()
}

func writePageHeader(w *bufio.Writer, page, pages int, stamp string) {
	fmt.Fprintf(w, "Export Report (generated %s)\n", stamp)
	fmt.Fprintf(w, "Page %d of %d\n\n", page, pages)
}

func writeRecordBlock(w *bufio.Writer, n int, rec export.Record) error {
	fmt.Fprintf(w, "Record %d\n", n)
	for _, field := range rec.Fields() {
		v, _ := rec.Get(field)
		text, err := labelValueText(v)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s: %s\n", field, text)
	}
	w.WriteByte('\n')
	return nil
}

func labelValueText(v any) (string, error) {
	switch {
	case v == nil:
		return "", nil
	case isComposite(v):
		return compositeToken(v)
	default:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return scalarText(v), nil
	}
}
