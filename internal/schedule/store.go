package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"perch/internal/config"
)

// Store manages job, instance, and system config persistence backed by
// SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the schedule database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.LogDir, "schedule.db"))
}

// OpenPath connects to the schedule database at an explicit path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// InsertJob persists a new job and returns it with its assigned ID.
func (s *Store) InsertJob(ctx context.Context, job *Job) (*Job, error) {
	if job == nil {
		return nil, errors.New("job is nil")
	}
	patternJSON, err := encodePattern(job.Pattern)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	if job.Status == "" {
		job.Status = StatusPending
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
            name, duration_seconds, notes, is_recurring, pattern_json,
            allow_override, capture_video, status, created_at, start_at,
            completed_at, last_executed_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.Name,
		job.DurationSeconds,
		nullableString(job.Notes),
		boolToInt(job.IsRecurring),
		nullableString(patternJSON),
		boolToInt(job.AllowOverride),
		boolToInt(job.CaptureVideo),
		job.Status,
		now.Format(time.RFC3339Nano),
		nullableTime(job.StartAt),
		nullableTime(job.CompletedAt),
		nullableTime(job.LastExecutedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetJob(ctx, id)
}

// GetJob fetches a job by identifier. A missing job returns (nil, nil).
func (s *Store) GetJob(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	patternJSON, err := encodePattern(job.Pattern)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET name = ?, duration_seconds = ?, notes = ?, is_recurring = ?,
             pattern_json = ?, allow_override = ?, capture_video = ?,
             status = ?, start_at = ?, completed_at = ?, last_executed_at = ?
         WHERE id = ?`,
		job.Name,
		job.DurationSeconds,
		nullableString(job.Notes),
		boolToInt(job.IsRecurring),
		nullableString(patternJSON),
		boolToInt(job.AllowOverride),
		boolToInt(job.CaptureVideo),
		job.Status,
		nullableTime(job.StartAt),
		nullableTime(job.CompletedAt),
		nullableTime(job.LastExecutedAt),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// MarkJobStatus transitions a one-time job to a terminal status only when
// it is still pending, so repeated recovery passes are no-ops. It reports
// whether a row changed.
func (s *Store) MarkJobStatus(ctx context.Context, id int64, status Status) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, completed_at = ? WHERE id = ? AND status = ?`,
		status,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("mark job status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// TouchLastExecuted records the moment a job's capture last ran.
func (s *Store) TouchLastExecuted(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET last_executed_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("touch last executed: %w", err)
	}
	return nil
}

// DeleteJob removes a job by identifier. Historical instances are kept as
// an audit trail.
func (s *Store) DeleteJob(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListJobs returns all jobs ordered by creation time.
func (s *Store) ListJobs(ctx context.Context) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// PendingJobs returns jobs that still need trigger registration: every
// recurring job plus one-time jobs whose status is pending.
func (s *Store) PendingJobs(ctx context.Context) ([]*Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE is_recurring = 1 OR status = ? ORDER BY id`,
		StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("pending jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// UpsertInstance inserts or overwrites the instance for (job, date).
// Creating the same instance twice is a no-op overwrite, never a
// duplicate.
func (s *Store) UpsertInstance(ctx context.Context, inst *Instance) (*Instance, error) {
	if inst == nil {
		return nil, errors.New("instance is nil")
	}
	if inst.Status == "" {
		inst.Status = StatusPending
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO recording_instances (
            job_id, occurrence_date, status, started_at, completed_at, notes
        ) VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(job_id, occurrence_date) DO UPDATE SET
            status = excluded.status,
            started_at = excluded.started_at,
            completed_at = excluded.completed_at,
            notes = excluded.notes`,
		inst.JobID,
		inst.Date,
		inst.Status,
		nullableTime(inst.StartedAt),
		nullableTime(inst.CompletedAt),
		nullableString(inst.Notes),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert instance: %w", err)
	}
	return s.GetInstance(ctx, inst.JobID, inst.Date)
}

// GetInstance fetches the instance for (job, date). A missing instance
// returns (nil, nil).
func (s *Store) GetInstance(ctx context.Context, jobID int64, date string) (*Instance, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+instanceColumns+` FROM recording_instances WHERE job_id = ? AND occurrence_date = ?`,
		jobID, date,
	)
	inst, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get instance: %w", err)
	}
	return inst, nil
}

// InstancesForRange returns instances whose occurrence date falls within
// [start, end], ordered by date then job.
func (s *Store) InstancesForRange(ctx context.Context, start, end string) ([]*Instance, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+instanceColumns+` FROM recording_instances
         WHERE occurrence_date >= ? AND occurrence_date <= ?
         ORDER BY occurrence_date, job_id`,
		start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("instances for range: %w", err)
	}
	defer rows.Close()

	var instances []*Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

// GetConfig returns the system config value for key, or fallback when the
// key is absent. Values are opaque strings; the core never interprets
// them.
func (s *Store) GetConfig(ctx context.Context, key, fallback string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM system_config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("get config %q: %w", key, err)
	}
	return value, nil
}

// SetConfig stores a system config value.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO system_config (key, value) VALUES (?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set config %q: %w", key, err)
	}
	return nil
}

// AllConfig returns the full system config map.
func (s *Store) AllConfig(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM system_config ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("all config: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, rows.Err()
}

const jobColumns = "id, name, duration_seconds, notes, is_recurring, pattern_json, allow_override, capture_video, status, created_at, start_at, completed_at, last_executed_at"

const instanceColumns = "id, job_id, occurrence_date, status, started_at, completed_at, notes"

func collectJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id              int64
		name            string
		duration        int
		notes           sql.NullString
		isRecurring     int
		patternJSON     sql.NullString
		allowOverride   int
		captureVideo    int
		statusStr       string
		createdRaw      string
		startRaw        sql.NullString
		completedRaw    sql.NullString
		lastExecutedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&name,
		&duration,
		&notes,
		&isRecurring,
		&patternJSON,
		&allowOverride,
		&captureVideo,
		&statusStr,
		&createdRaw,
		&startRaw,
		&completedRaw,
		&lastExecutedRaw,
	); err != nil {
		return nil, err
	}

	pattern, err := decodePattern(patternJSON.String)
	if err != nil {
		return nil, err
	}

	job := &Job{
		ID:              id,
		Name:            name,
		DurationSeconds: duration,
		Notes:           notes.String,
		IsRecurring:     isRecurring != 0,
		Pattern:         pattern,
		AllowOverride:   allowOverride != 0,
		CaptureVideo:    captureVideo != 0,
		Status:          Status(statusStr),
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	job.StartAt = parseNullableTime(startRaw)
	job.CompletedAt = parseNullableTime(completedRaw)
	job.LastExecutedAt = parseNullableTime(lastExecutedRaw)
	return job, nil
}

func scanInstance(scanner interface{ Scan(dest ...any) error }) (*Instance, error) {
	var (
		id           int64
		jobID        int64
		date         string
		statusStr    string
		startedRaw   sql.NullString
		completedRaw sql.NullString
		notes        sql.NullString
	)
	if err := scanner.Scan(&id, &jobID, &date, &statusStr, &startedRaw, &completedRaw, &notes); err != nil {
		return nil, err
	}
	inst := &Instance{
		ID:     id,
		JobID:  jobID,
		Date:   date,
		Status: Status(statusStr),
		Notes:  notes.String,
	}
	inst.StartedAt = parseNullableTime(startedRaw)
	inst.CompletedAt = parseNullableTime(completedRaw)
	return inst, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &t
}
