package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"exporter/internal/export"
	"exporter/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Export Service — business logic for export jobs
// ─────────────────────────────────────────────────────────────

// ExportService manages export jobs, scheduling, and input-file
// watching. It is decoupled from any delivery surface via the
// EventEmitter interface.
type ExportService struct {
	store       *storage.ExportStore
	emitter     EventEmitter
	runningJobs runningJobsGuard

	// watcher / cron lifecycle
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewExportService creates an ExportService ready for use.
func NewExportService(store *storage.ExportStore, emitter EventEmitter) *ExportService {
	return &ExportService{
		store:   store,
		emitter: emitter,
	}
}

// ── Job CRUD ───────────────────────────────────────────────

type CreateJobInput struct {
	Name          string         `json:"name"`
	InputPath     string         `json:"inputPath"`
	OutputDir     string         `json:"outputDir"`
	Kinds         []string       `json:"kinds"`
	Options       export.Options `json:"options"`
	TriggerType   string         `json:"triggerType"`
	TriggerConfig string         `json:"triggerConfig"`
	Enabled       bool           `json:"enabled"`
}

func (s *ExportService) CreateJob(ctx context.Context, input CreateJobInput) (*export.Job, error) {
	if len(input.Kinds) == 0 {
		return nil, fmt.Errorf("job needs at least one output kind")
	}
	for _, kind := range input.Kinds {
		if _, err := export.GetEncoder(kind); err != nil {
			return nil, err
		}
	}

	job := &export.Job{
		Name:          input.Name,
		InputPath:     input.InputPath,
		OutputDir:     input.OutputDir,
		Kinds:         input.Kinds,
		Options:       input.Options,
		TriggerType:   input.TriggerType,
		TriggerConfig: input.TriggerConfig,
		Enabled:       input.Enabled,
	}
	if job.TriggerType == "" {
		job.TriggerType = export.TriggerManual
	}

	if err := s.store.CreateJob(job); err != nil {
		return nil, fmt.Errorf("create export job: %w", err)
	}
	s.RestartWatchers(ctx)
	return job, nil
}

func (s *ExportService) GetJob(id string) (*export.Job, error) {
	return s.store.GetJob(id)
}

func (s *ExportService) ListJobs() ([]export.Job, error) {
	return s.store.ListJobs()
}

func (s *ExportService) UpdateJob(ctx context.Context, id string, input CreateJobInput) error {
	if len(input.Kinds) == 0 {
		return fmt.Errorf("job needs at least one output kind")
	}
	job, err := s.store.GetJob(id)
	if err != nil {
		return err
	}
	for _, kind := range input.Kinds {
		if _, err := export.GetEncoder(kind); err != nil {
			return err
		}
	}
	job.Name = input.Name
	job.InputPath = input.InputPath
	job.OutputDir = input.OutputDir
	job.Kinds = input.Kinds
	job.Options = input.Options
	job.TriggerType = input.TriggerType
	job.TriggerConfig = input.TriggerConfig
	job.Enabled = input.Enabled

	if err := s.store.UpdateJob(job); err != nil {
		return err
	}
	s.RestartWatchers(ctx)
	return nil
}

func (s *ExportService) DeleteJob(ctx context.Context, id string) error {
	err := s.store.DeleteJob(id)
	if err == nil {
		s.RestartWatchers(ctx)
	}
	return err
}

// ── Run ────────────────────────────────────────────────────

// RunJob executes a single export job synchronously: load the resolved
// record collection from the job's input file, fan it out to every
// configured kind, record the run. Emits an event when any kind succeeds.
func (s *ExportService) RunJob(ctx context.Context, id string) (*export.RunLog, error) {
	// Prevent concurrent execution of the same job.
	if !s.runningJobs.TryLock(id) {
		return nil, fmt.Errorf("job %s is already running", id)
	}
	defer s.runningJobs.Unlock(id)

	job, err := s.store.GetJob(id)
	if err != nil {
		return nil, err
	}

	s.store.UpdateJobStatus(id, "running", "")

	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	start := time.Now()
	runLog := &export.RunLog{JobID: id, StartedAt: start}

	recs, runErr := loadRecords(job.InputPath)
	if runErr == nil {
		runLog.RecordsIn = len(recs)

		// Per-run prefix keeps concurrent and historical artifacts apart.
		prefix := filepath.Join(job.OutputDir, slugify(job.Name)+"-"+uuid.New().String())
		runLog.Artifact = prefix

		opts := job.Options
		opts.Timestamp = start
		runLog.RecordsOut = len(export.Transform(recs, opts))

		engine := &export.Engine{}
		runLog.Results = engine.ExportMultiple(runCtx, recs, prefix, job.Kinds, opts)
		runLog.Status = summarizeResults(runLog.Results)
	} else {
		runLog.Status = "error"
		runLog.Error = runErr.Error()
	}
	runLog.FinishedAt = time.Now()

	s.store.CreateRunLog(runLog)
	s.store.UpdateJobStatus(id, runLog.Status, runLog.Error)

	if runLog.Status != "error" {
		s.emitter.Emit(ctx, "export:completed", map[string]any{
			"jobId":    id,
			"artifact": runLog.Artifact,
			"results":  runLog.Results,
		})
	}

	return runLog, runErr
}

// ListEncoders returns the available output kind descriptors.
func (s *ExportService) ListEncoders() []export.EncoderSpec {
	return export.ListEncoders()
}

// ListRunLogs returns the last 50 run logs for a job.
func (s *ExportService) ListRunLogs(jobID string) ([]export.RunLog, error) {
	return s.store.ListRunLogs(jobID, 50)
}

// loadRecords reads the resolved record collection from a JSON file.
// This plays the data-fetch collaborator role for stored jobs.
func loadRecords(path string) ([]export.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	recs, err := export.DecodeRecords(f)
	if err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}
	return recs, nil
}

// summarizeResults collapses per-kind outcomes into a run status.
func summarizeResults(results map[string]bool) string {
	succeeded := 0
	for _, ok := range results {
		if ok {
			succeeded++
		}
	}
	switch {
	case len(results) == 0 || succeeded == 0:
		return "error"
	case succeeded < len(results):
		return "partial"
	default:
		return "success"
	}
}

// slugify reduces a job name to a filesystem-safe prefix component.
func slugify(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "export"
	}
	return slug
}

// ── Watchers (cron + file_watch) ──────────────────────────

// RestartWatchers tears down the current watcher/cron and rebuilds them from scratch.
func (s *ExportService) RestartWatchers(ctx context.Context) {
	s.stopWatchers()

	jobs, err := s.store.ListEnabledTriggeredJobs()
	if err != nil {
		log.Printf("export watcher: failed to list jobs: %v", err)
		return
	}

	// ── Cron jobs ──
	var cronJobs []struct {
		jobID string
		expr  string
	}
	for _, j := range jobs {
		if j.TriggerType == export.TriggerSchedule && j.TriggerConfig != "" {
			cronJobs = append(cronJobs, struct {
				jobID string
				expr  string
			}{jobID: j.ID, expr: j.TriggerConfig})
		}
	}

	if len(cronJobs) > 0 {
		c := cron.New()
		for _, cj := range cronJobs {
			jid := cj.jobID
			_, err := c.AddFunc(cj.expr, func() {
				log.Printf("export cron: running job %s", jid)
				if _, err := s.RunJob(ctx, jid); err != nil {
					log.Printf("export cron: job %s failed: %v", jid, err)
				}
			})
			if err != nil {
				log.Printf("export cron: invalid expression %q for job %s: %v", cj.expr, cj.jobID, err)
			}
		}
		c.Start()
		s.cronSched = c
		log.Printf("export cron: scheduled %d job(s)", len(cronJobs))
	}

	// ── File watchers ──
	// A file_watch job re-exports whenever its watched input changes.
	type watchEntry struct {
		jobID string
		path  string
	}
	var entries []watchEntry
	for _, j := range jobs {
		if j.TriggerType == export.TriggerFileWatch {
			path := j.TriggerConfig
			if path == "" {
				path = j.InputPath
			}
			entries = append(entries, watchEntry{jobID: j.ID, path: path})
		}
	}

	if len(entries) == 0 {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("export watcher: failed to create watcher: %v", err)
		return
	}
	s.watcher = watcher

	pathToJob := make(map[string]string)
	watchedDirs := make(map[string]bool)
	for _, e := range entries {
		absPath, err := filepath.Abs(e.path)
		if err != nil {
			log.Printf("export watcher: bad path %q: %v", e.path, err)
			continue
		}
		pathToJob[absPath] = e.jobID

		dir := filepath.Dir(absPath)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				log.Printf("export watcher: failed to watch dir %q: %v", dir, err)
			} else {
				watchedDirs[dir] = true
			}
		}
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel

	go func() {
		timers := make(map[string]*time.Timer)
		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				absPath, _ := filepath.Abs(event.Name)
				jobID, ok := pathToJob[absPath]
				if !ok {
					continue
				}
				// Debounce bursts of writes to the same file.
				if t, exists := timers[jobID]; exists {
					t.Stop()
				}
				jid := jobID
				timers[jobID] = time.AfterFunc(500*time.Millisecond, func() {
					log.Printf("export watcher: input changed %q, running job %s", absPath, jid)
					if _, err := s.RunJob(ctx, jid); err != nil {
						log.Printf("export watcher: run failed for job %s: %v", jid, err)
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("export watcher: error: %v", err)
			}
		}
	}()

	log.Printf("export watcher: watching %d file(s)", len(pathToJob))
}

// WaitRunning blocks until all running jobs finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *ExportService) WaitRunning(ctx context.Context) {
	s.runningJobs.WaitAll(ctx)
}

// Stop tears down all watchers and schedulers.
func (s *ExportService) Stop() {
	s.stopWatchers()
}

func (s *ExportService) stopWatchers() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}
