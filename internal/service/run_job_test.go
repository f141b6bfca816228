package service_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"exporter/internal/export"
	_ "exporter/internal/export/encoders"
	"exporter/internal/service"
	"exporter/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Store-backed ExportService tests — job lifecycle, RunJob,
// run logs, and event emission
// ─────────────────────────────────────────────────────────────

func newTestService(t *testing.T) (*service.ExportService, *service.MockEmitter, *storage.ExportStore) {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	store := storage.NewExportStore(db)
	emitter := &service.MockEmitter{}
	svc := service.NewExportService(store, emitter)
	t.Cleanup(svc.Stop)
	return svc, emitter, store
}

func writeInputFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExportService_RunJob_Success(t *testing.T) {
	svc, emitter, store := newTestService(t)
	ctx := context.Background()

	input := writeInputFile(t,
		`[{"id":1,"name":"Alice","status":"active"},{"id":2,"name":"Bob","status":"inactive"}]`)
	outDir := t.TempDir()

	job, err := svc.CreateJob(ctx, service.CreateJobInput{
		Name:      "Active Users",
		InputPath: input,
		OutputDir: outDir,
		Kinds:     []string{"csv", "json"},
		Options:   export.Options{Filter: map[string]any{"status": "active"}},
		Enabled:   true,
	})
	if err != nil {
		t.Fatal(err)
	}

	runLog, err := svc.RunJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}

	if runLog.Status != "success" {
		t.Errorf("expected status success, got %q (%s)", runLog.Status, runLog.Error)
	}
	if runLog.RecordsIn != 2 || runLog.RecordsOut != 1 {
		t.Errorf("expected 2 in / 1 out, got %d / %d", runLog.RecordsIn, runLog.RecordsOut)
	}
	if !runLog.Results["csv"] || !runLog.Results["json"] {
		t.Errorf("expected every kind to succeed: %v", runLog.Results)
	}

	// Artifacts land under the job's output dir with a slugged per-run prefix.
	if !strings.HasPrefix(runLog.Artifact, outDir) {
		t.Errorf("artifact prefix %q not under output dir %q", runLog.Artifact, outDir)
	}
	if !strings.HasPrefix(filepath.Base(runLog.Artifact), "active-users-") {
		t.Errorf("artifact prefix %q not derived from job name", runLog.Artifact)
	}
	for _, kind := range []string{"csv", "json"} {
		info, err := os.Stat(runLog.Artifact + "." + kind)
		if err != nil {
			t.Fatalf("missing %s artifact: %v", kind, err)
		}
		if info.Size() == 0 {
			t.Errorf("%s artifact is empty", kind)
		}
	}

	// The run is recorded and the job's status updated.
	stored, err := store.GetJob(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.LastStatus != "success" {
		t.Errorf("expected job status success, got %q", stored.LastStatus)
	}
	logs, err := svc.ListRunLogs(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || logs[0].Status != "success" {
		t.Fatalf("expected one successful run log, got %+v", logs)
	}

	// A completed run notifies listeners.
	if len(emitter.Events) != 1 || emitter.Events[0].Event != "export:completed" {
		t.Fatalf("expected one export:completed event, got %+v", emitter.Events)
	}
	data, ok := emitter.Events[0].Data.(map[string]any)
	if !ok {
		t.Fatalf("unexpected event payload: %T", emitter.Events[0].Data)
	}
	if data["jobId"] != job.ID || data["artifact"] != runLog.Artifact {
		t.Errorf("event payload mismatch: %v", data)
	}
}

func TestExportService_RunJob_InputMissing(t *testing.T) {
	svc, emitter, store := newTestService(t)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, service.CreateJobInput{
		Name:      "Broken",
		InputPath: filepath.Join(t.TempDir(), "does-not-exist.json"),
		OutputDir: t.TempDir(),
		Kinds:     []string{"csv"},
	})
	if err != nil {
		t.Fatal(err)
	}

	runLog, err := svc.RunJob(ctx, job.ID)
	if err == nil {
		t.Fatal("expected error for missing input file")
	}
	if runLog == nil || runLog.Status != "error" || runLog.Error == "" {
		t.Fatalf("expected error run log, got %+v", runLog)
	}

	stored, err := store.GetJob(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.LastStatus != "error" || stored.LastError == "" {
		t.Errorf("expected job marked as errored, got %q / %q", stored.LastStatus, stored.LastError)
	}

	// The failed run still leaves a trace, but no completion event.
	logs, err := svc.ListRunLogs(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || logs[0].Status != "error" {
		t.Fatalf("expected one errored run log, got %+v", logs)
	}
	if len(emitter.Events) != 0 {
		t.Errorf("no event must be emitted for a failed run, got %+v", emitter.Events)
	}
}

func TestExportService_RunJob_PartialWhenKindVanishes(t *testing.T) {
	svc, emitter, store := newTestService(t)
	ctx := context.Background()

	// Insert directly so the job carries a kind with no registered encoder,
	// as happens when a stored job outlives an output kind.
	job := &export.Job{
		Name:        "Mixed",
		InputPath:   writeInputFile(t, `[{"id":1,"name":"Alice"}]`),
		OutputDir:   t.TempDir(),
		Kinds:       []string{"csv", "parquet"},
		TriggerType: export.TriggerManual,
		Enabled:     true,
	}
	if err := store.CreateJob(job); err != nil {
		t.Fatal(err)
	}

	runLog, err := svc.RunJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if runLog.Status != "partial" {
		t.Errorf("expected partial status, got %q", runLog.Status)
	}
	if !runLog.Results["csv"] || runLog.Results["parquet"] {
		t.Errorf("expected csv to succeed and parquet to fail: %v", runLog.Results)
	}

	// Partial completion still notifies listeners.
	if len(emitter.Events) != 1 || emitter.Events[0].Event != "export:completed" {
		t.Fatalf("expected one export:completed event, got %+v", emitter.Events)
	}
}

func TestExportService_CreateJob_Validation(t *testing.T) {
	// Kind validation runs before the store is touched.
	svc := service.NewExportService(nil, &service.MockEmitter{})
	ctx := context.Background()

	if _, err := svc.CreateJob(ctx, service.CreateJobInput{
		Name:  "No Kinds",
		Kinds: nil,
	}); err == nil {
		t.Error("expected error for a job with no output kinds")
	}

	if _, err := svc.CreateJob(ctx, service.CreateJobInput{
		Name:  "Bad Kind",
		Kinds: []string{"parquet"},
	}); err == nil {
		t.Error("expected error for an unregistered output kind")
	}
}

func TestExportService_UpdateJob_RejectsEmptyKinds(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, service.CreateJobInput{
		Name:      "Keep Kinds",
		InputPath: "/data/in.json",
		OutputDir: "/data/out",
		Kinds:     []string{"csv"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.UpdateJob(ctx, job.ID, service.CreateJobInput{Name: "Cleared"}); err == nil {
		t.Fatal("expected error when clearing all output kinds")
	}
	got, err := store.GetJob(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Keep Kinds" || len(got.Kinds) != 1 {
		t.Errorf("rejected update must leave the job untouched: %+v", got)
	}
}

func TestExportService_UpdateAndDeleteJob(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, service.CreateJobInput{
		Name:      "Original",
		InputPath: "/data/in.json",
		OutputDir: "/data/out",
		Kinds:     []string{"csv"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if job.TriggerType != export.TriggerManual {
		t.Errorf("expected default manual trigger, got %q", job.TriggerType)
	}

	err = svc.UpdateJob(ctx, job.ID, service.CreateJobInput{
		Name:      "Renamed",
		InputPath: "/data/in.json",
		OutputDir: "/data/out",
		Kinds:     []string{"json", "doc"},
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := store.GetJob(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Renamed" || len(got.Kinds) != 2 {
		t.Errorf("update not persisted: %+v", got)
	}

	if err := svc.DeleteJob(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetJob(job.ID); err == nil {
		t.Error("expected deleted job to be gone")
	}
}
