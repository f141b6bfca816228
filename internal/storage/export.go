package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"exporter/internal/export"

	"github.com/google/uuid"
)

// ExportStore implements persistence for export jobs and run logs.
type ExportStore struct {
	db *DB
}

// NewExportStore creates a new ExportStore.
func NewExportStore(db *DB) *ExportStore {
	return &ExportStore{db: db}
}

// ── Job CRUD ───────────────────────────────────────────────

func (s *ExportStore) CreateJob(job *export.Job) error {
	now := time.Now()
	job.ID = uuid.New().String()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.LastRunAt.IsZero() {
		job.LastRunAt = now
	}

	kinds, _ := json.Marshal(job.Kinds)
	options, _ := json.Marshal(job.Options)

	_, err := s.db.conn.Exec(
		`INSERT INTO export_jobs (id, name, input_path, output_dir, kinds, options,
		 trigger_type, trigger_config, enabled, last_run_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Name, job.InputPath, job.OutputDir, string(kinds), string(options),
		job.TriggerType, job.TriggerConfig, job.Enabled,
		job.LastRunAt, job.CreatedAt, job.UpdatedAt,
	)
	return err
}

func (s *ExportStore) GetJob(id string) (*export.Job, error) {
	job := &export.Job{}
	var kinds, options string

	err := s.db.conn.QueryRow(
		`SELECT id, name, input_path, output_dir, kinds, options,
		 trigger_type, trigger_config, enabled,
		 last_run_at, last_status, last_error, created_at, updated_at
		 FROM export_jobs WHERE id = ?`, id,
	).Scan(
		&job.ID, &job.Name, &job.InputPath, &job.OutputDir, &kinds, &options,
		&job.TriggerType, &job.TriggerConfig, &job.Enabled,
		&job.LastRunAt, &job.LastStatus, &job.LastError,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("export job not found: %s", id)
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(kinds), &job.Kinds)
	json.Unmarshal([]byte(options), &job.Options)
	return job, nil
}

func (s *ExportStore) UpdateJob(job *export.Job) error {
	job.UpdatedAt = time.Now()
	kinds, _ := json.Marshal(job.Kinds)
	options, _ := json.Marshal(job.Options)

	_, err := s.db.conn.Exec(
		`UPDATE export_jobs SET name=?, input_path=?, output_dir=?, kinds=?, options=?,
		 trigger_type=?, trigger_config=?, enabled=?, updated_at=? WHERE id=?`,
		job.Name, job.InputPath, job.OutputDir, string(kinds), string(options),
		job.TriggerType, job.TriggerConfig, job.Enabled,
		job.UpdatedAt, job.ID,
	)
	return err
}

func (s *ExportStore) UpdateJobStatus(id, status, errMsg string) error {
	_, err := s.db.conn.Exec(
		`UPDATE export_jobs SET last_run_at=?, last_status=?, last_error=?, updated_at=? WHERE id=?`,
		time.Now(), status, errMsg, time.Now(), id,
	)
	return err
}

func (s *ExportStore) DeleteJob(id string) error {
	// Delete run logs first.
	if _, err := s.db.conn.Exec(`DELETE FROM export_run_logs WHERE job_id = ?`, id); err != nil {
		return err
	}
	_, err := s.db.conn.Exec(`DELETE FROM export_jobs WHERE id = ?`, id)
	return err
}

func (s *ExportStore) ListJobs() ([]export.Job, error) {
	return s.queryJobs(
		`SELECT id, name, input_path, output_dir, kinds, options,
		 trigger_type, trigger_config, enabled,
		 last_run_at, last_status, last_error, created_at, updated_at
		 FROM export_jobs ORDER BY created_at ASC`,
	)
}

// ListEnabledTriggeredJobs returns enabled jobs with a schedule or
// file_watch trigger.
func (s *ExportStore) ListEnabledTriggeredJobs() ([]export.Job, error) {
	return s.queryJobs(
		`SELECT id, name, input_path, output_dir, kinds, options,
		 trigger_type, trigger_config, enabled,
		 last_run_at, last_status, last_error, created_at, updated_at
		 FROM export_jobs WHERE enabled = 1 AND trigger_type IN ('schedule', 'file_watch')
		 ORDER BY created_at ASC`,
	)
}

func (s *ExportStore) queryJobs(query string) ([]export.Job, error) {
	rows, err := s.db.conn.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []export.Job
	for rows.Next() {
		var job export.Job
		var kinds, options string
		if err := rows.Scan(
			&job.ID, &job.Name, &job.InputPath, &job.OutputDir, &kinds, &options,
			&job.TriggerType, &job.TriggerConfig, &job.Enabled,
			&job.LastRunAt, &job.LastStatus, &job.LastError,
			&job.CreatedAt, &job.UpdatedAt,
		); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(kinds), &job.Kinds)
		json.Unmarshal([]byte(options), &job.Options)
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ── Run Logs ───────────────────────────────────────────────

func (s *ExportStore) CreateRunLog(log *export.RunLog) error {
	log.ID = uuid.New().String()
	results, _ := json.Marshal(log.Results)
	_, err := s.db.conn.Exec(
		`INSERT INTO export_run_logs (id, job_id, started_at, finished_at, status,
		 records_in, records_out, results, artifact, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.JobID, log.StartedAt, log.FinishedAt, log.Status,
		log.RecordsIn, log.RecordsOut, string(results), log.Artifact, log.Error,
	)
	return err
}

func (s *ExportStore) ListRunLogs(jobID string, limit int) ([]export.RunLog, error) {
	rows, err := s.db.conn.Query(
		`SELECT id, job_id, started_at, finished_at, status, records_in, records_out, results, artifact, error
		 FROM export_run_logs WHERE job_id = ? ORDER BY started_at DESC LIMIT ?`,
		jobID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []export.RunLog
	for rows.Next() {
		var l export.RunLog
		var results string
		if err := rows.Scan(&l.ID, &l.JobID, &l.StartedAt, &l.FinishedAt, &l.Status,
			&l.RecordsIn, &l.RecordsOut, &results, &l.Artifact, &l.Error); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(results), &l.Results)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
