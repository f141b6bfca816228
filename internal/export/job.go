package export

import "time"

// ── Export Jobs ────────────────────────────────────────────
// A Job is a stored export definition: where the resolved records come
// from, which kinds to produce, and what triggers a run. The core
// pipeline stays stateless; jobs exist so exports can be re-run on a
// schedule or whenever the input file changes.

// Trigger types for a Job.
const (
	TriggerManual    = "manual"
	TriggerSchedule  = "schedule"   // TriggerConfig holds a cron expression
	TriggerFileWatch = "file_watch" // TriggerConfig holds a path to watch
)

// Job holds the configuration for a recurring or on-demand export.
type Job struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	InputPath     string    `json:"inputPath"` // JSON array of records
	OutputDir     string    `json:"outputDir"`
	Kinds         []string  `json:"kinds"`
	Options       Options   `json:"options"`
	TriggerType   string    `json:"triggerType"`
	TriggerConfig string    `json:"triggerConfig"`
	Enabled       bool      `json:"enabled"`
	LastRunAt     time.Time `json:"lastRunAt"`
	LastStatus    string    `json:"lastStatus"` // "success" | "partial" | "error" | "running" | ""
	LastError     string    `json:"lastError"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// RunLog is a historical record of one job run.
type RunLog struct {
	ID         string          `json:"id"`
	JobID      string          `json:"jobId"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
	Status     string          `json:"status"`
	RecordsIn  int             `json:"recordsIn"`
	RecordsOut int             `json:"recordsOut"` // after the transform pipeline
	Results    map[string]bool `json:"results"`    // per-kind outcome
	Artifact   string          `json:"artifact"`   // base prefix of this run's artifacts
	Error      string          `json:"error,omitempty"`
}
