package export_test

import (
	"context"
	"errors"
	"testing"

	"exporter/internal/export"
)

// ─────────────────────────────────────────────────────────────
// Engine (dispatcher) tests — stub encoders stand in for the
// real formats so only dispatch semantics are under test.
// ─────────────────────────────────────────────────────────────

// stubEncoder records invocations and returns canned results.
type stubEncoder struct {
	kind    string
	ok      bool
	err     error
	calls   int
	targets []string
}

func (s *stubEncoder) Spec() export.EncoderSpec {
	return export.EncoderSpec{Kind: s.kind, Label: "stub"}
}

func (s *stubEncoder) Export(_ context.Context, _ []export.Record, target string, _ export.Options) (bool, error) {
	s.calls++
	s.targets = append(s.targets, target)
	return s.ok, s.err
}

func oneRecord() []export.Record {
	r := export.NewRecord()
	r.Set("id", float64(1))
	return []export.Record{r}
}

func TestEngine_EmptyInputShortCircuits(t *testing.T) {
	stub := &stubEncoder{kind: "stub-empty-input", ok: true}
	export.RegisterEncoder(stub)

	engine := &export.Engine{}
	out := engine.Export(context.Background(), export.Request{
		Kind:   "stub-empty-input",
		Target: "/tmp/never-written",
	})

	if out.Succeeded {
		t.Error("expected false outcome for empty input collection")
	}
	if stub.calls != 0 {
		t.Error("encoder must not run for an empty input collection")
	}
	if out.Diagnostic == "" {
		t.Error("expected a diagnostic")
	}
}

func TestEngine_UnregisteredKind(t *testing.T) {
	engine := &export.Engine{}
	out := engine.Export(context.Background(), export.Request{
		Kind:    "no-such-kind",
		Target:  "/tmp/never-written",
		Records: oneRecord(),
	})

	if out.Succeeded {
		t.Error("expected false outcome for unregistered kind")
	}
	if out.Diagnostic == "" {
		t.Error("expected a diagnostic naming the unknown kind")
	}
}

func TestEngine_EmptyFieldSelectionRejected(t *testing.T) {
	stub := &stubEncoder{kind: "stub-empty-fields", ok: true}
	export.RegisterEncoder(stub)

	engine := &export.Engine{}
	out := engine.Export(context.Background(), export.Request{
		Kind:    "stub-empty-fields",
		Target:  "/tmp/never-written",
		Records: oneRecord(),
		Options: export.Options{Fields: []string{}},
	})

	if out.Succeeded || stub.calls != 0 {
		t.Error("empty (non-nil) field selection must be rejected before dispatch")
	}
}

func TestEngine_EncoderFaultDowngraded(t *testing.T) {
	stub := &stubEncoder{kind: "stub-faulty", err: errors.New("disk full")}
	export.RegisterEncoder(stub)

	engine := &export.Engine{}
	out := engine.Export(context.Background(), export.Request{
		Kind:    "stub-faulty",
		Target:  "/tmp/never-written",
		Records: oneRecord(),
	})

	if out.Succeeded {
		t.Error("expected false outcome for encoder fault")
	}
	if out.Diagnostic != "disk full" {
		t.Errorf("expected fault diagnostic, got %q", out.Diagnostic)
	}
}

func TestEngine_SuccessReportsArtifact(t *testing.T) {
	stub := &stubEncoder{kind: "stub-ok", ok: true}
	export.RegisterEncoder(stub)

	engine := &export.Engine{}
	out := engine.Export(context.Background(), export.Request{
		Kind:    "stub-ok",
		Target:  "/tmp/artifact.stub-ok",
		Records: oneRecord(),
	})

	if !out.Succeeded || out.Artifact != "/tmp/artifact.stub-ok" {
		t.Errorf("unexpected outcome: %+v", out)
	}
}

func TestEngine_ExportMultiple_IndependentResults(t *testing.T) {
	stub := &stubEncoder{kind: "stub-multi", ok: true}
	export.RegisterEncoder(stub)

	engine := &export.Engine{}
	results := engine.ExportMultiple(context.Background(), oneRecord(),
		"/tmp/report", []string{"stub-multi", "missing-kind"}, export.Options{})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results["stub-multi"] {
		t.Error("registered kind should succeed")
	}
	if results["missing-kind"] {
		t.Error("unregistered kind should fail without blocking the other")
	}
	if len(stub.targets) != 1 || stub.targets[0] != "/tmp/report.stub-multi" {
		t.Errorf("target suffix convention broken: %v", stub.targets)
	}
}

func TestRegisterEncoder_LastRegistrationWins(t *testing.T) {
	first := &stubEncoder{kind: "stub-override"}
	second := &stubEncoder{kind: "stub-override", ok: true}
	export.RegisterEncoder(first)
	export.RegisterEncoder(second)

	enc, err := export.GetEncoder("stub-override")
	if err != nil {
		t.Fatal(err)
	}
	if enc != second {
		t.Error("re-registration did not overwrite the previous encoder")
	}
}
