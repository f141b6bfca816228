package export

import (
	"context"
	"log"
	"time"
)

// ── Engine ─────────────────────────────────────────────────
// The Engine dispatches export requests to registered encoders.
// It is the boundary where faults stop: encoder errors are logged and
// downgraded to a failed Outcome, so callers never see a raised error —
// a false outcome with a diagnostic is the whole contract.

// Request is one export call: a resolved collection, a target location,
// and the output kind plus transform options.
type Request struct {
	Kind    string
	Target  string
	Records []Record
	Options Options
}

// Outcome is the result of one export attempt. Empty-collection no-ops
// and real faults both surface as Succeeded=false; only the diagnostic
// text tells them apart.
type Outcome struct {
	Succeeded  bool   `json:"succeeded"`
	Artifact   string `json:"artifact,omitempty"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// Engine routes export requests to encoders.
type Engine struct{}

// Export validates the request, delegates to the encoder for the
// requested kind, and reports the result. It never returns an error:
// configuration problems, empty collections and encoder faults all
// come back as a false Outcome with a logged reason.
func (e *Engine) Export(ctx context.Context, req Request) *Outcome {
	if len(req.Records) == 0 {
		log.Printf("export: nothing to export to %q (empty input collection)", req.Target)
		return &Outcome{Diagnostic: "empty input collection"}
	}
	if req.Options.Fields != nil && len(req.Options.Fields) == 0 {
		log.Printf("export: invalid configuration for %q: field selection is empty", req.Target)
		return &Outcome{Diagnostic: "field selection must not be empty"}
	}

	enc, err := GetEncoder(req.Kind)
	if err != nil {
		log.Printf("export: %v", err)
		return &Outcome{Diagnostic: err.Error()}
	}

	ok, err := enc.Export(ctx, req.Records, req.Target, req.Options)
	if err != nil {
		log.Printf("export: %s encoder failed for %q: %v", req.Kind, req.Target, err)
		return &Outcome{Diagnostic: err.Error()}
	}
	if !ok {
		log.Printf("export: %s produced no records for %q", req.Kind, req.Target)
		return &Outcome{Diagnostic: "no records after transform"}
	}
	return &Outcome{Succeeded: true, Artifact: req.Target}
}

// ExportMultiple fans the same collection out to several kinds,
// strictly in the order given. The target for each kind is
// basePrefix + "." + kind. Kinds fail independently: one failure never
// aborts the rest. Results are keyed by kind.
func (e *Engine) ExportMultiple(ctx context.Context, recs []Record, basePrefix string, kinds []string, opts Options) map[string]bool {
	// Pin the metadata timestamp so every artifact of this fan-out
	// carries the same literal value.
	if opts.Timestamp.IsZero() {
		opts.Timestamp = time.Now()
	}

	results := make(map[string]bool, len(kinds))
	for _, kind := range kinds {
		out := e.Export(ctx, Request{
			Kind:    kind,
			Target:  basePrefix + "." + kind,
			Records: recs,
			Options: opts,
		})
		results[kind] = out.Succeeded
	}
	return results
}
