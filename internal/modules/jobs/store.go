package jobs

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store is the durable job record store. Each job row is single-writer
// (its owning runner); pollers always read a complete, previously
// committed snapshot because every mutation replaces whole columns in
// one statement.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStore creates a new job store
func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("repo", "jobs").Logger(),
	}
}

// Filter narrows List results
type Filter struct {
	Status Status
	Type   Type
	Limit  int
}

// Create inserts a new job in pending state
func (s *Store) Create(jobType Type, targets Targets, opts Options) (*Job, error) {
	if jobType == "" {
		jobType = TypeFetchTranscripts
	}
	if jobType != TypeFetchTranscripts && jobType != TypeGenerateSummaries {
		return nil, &ValidationError{Msg: fmt.Sprintf("unknown job type %q", jobType)}
	}
	if jobType == TypeFetchTranscripts && len(targets.Tickers) == 0 {
		return nil, &ValidationError{Msg: "at least one ticker is required"}
	}
	for _, q := range targets.Quarters {
		if q.Quarter < 1 || q.Quarter > 4 {
			return nil, &ValidationError{Msg: fmt.Sprintf("quarter must be 1-4, got %d", q.Quarter)}
		}
		if q.Year < 1990 || q.Year > 2100 {
			return nil, &ValidationError{Msg: fmt.Sprintf("year %d is out of range", q.Year)}
		}
	}
	if targets.QuarterCount < 0 || targets.QuarterCount > MaxQuarterLookback {
		return nil, &ValidationError{Msg: fmt.Sprintf("quarterCount must be 0-%d", MaxQuarterLookback)}
	}

	job := &Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Status:    StatusPending,
		Targets:   targets,
		Options:   opts,
		Progress:  NewProgress(),
		CreatedAt: time.Now().UTC(),
	}

	targetsJSON, optionsJSON, progressJSON, err := marshalJobColumns(job)
	if err != nil {
		return nil, err
	}

	_, err = s.db.Exec(`INSERT INTO jobs
		(id, type, status, signal, targets, options, progress, error, created_at)
		VALUES (?, ?, ?, '', ?, ?, ?, '', ?)`,
		job.ID, string(job.Type), string(job.Status),
		targetsJSON, optionsJSON, progressJSON,
		formatTime(job.CreatedAt))
	if err != nil {
		return nil, &PersistenceError{Op: "create job", Err: err}
	}

	s.log.Info().Str("job", job.ID).Str("type", string(jobType)).Msg("Job created")
	return job, nil
}

// Get returns a job by id
func (s *Store) Get(id string) (*Job, error) {
	rows, err := s.db.Query(jobSelect+" WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query job: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ErrNotFound
	}

	return scanJob(rows)
}

// List returns jobs matching the filter, newest first
func (s *Store) List(f Filter) ([]*Job, error) {
	query := jobSelect
	var conds []string
	var args []interface{}

	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(f.Type))
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}

	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

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

// Transition applies one legal state machine step
func (s *Store) Transition(id string, ev Event) (*Job, error) {
	return s.transition(id, ev, "")
}

// Fail moves a running job to failed, recording the fatal error
func (s *Store) Fail(id string, errMsg string) (*Job, error) {
	return s.transition(id, EventFail, errMsg)
}

func (s *Store) transition(id string, ev Event, errMsg string) (*Job, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, &PersistenceError{Op: "begin transition", Err: err}
	}
	defer tx.Rollback()

	var current string
	if err := tx.QueryRow("SELECT status FROM jobs WHERE id = ?", id).Scan(&current); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read job status: %w", err)
	}

	next, err := NextStatus(Status(current), ev)
	if err != nil {
		return nil, err
	}

	now := formatTime(time.Now().UTC())

	// consume any pending signal on every committed transition
	query := "UPDATE jobs SET status = ?, signal = ''"
	args := []interface{}{string(next)}

	// resume also restarts the clock so time spent paused never feeds
	// the remaining-time estimate
	if next == StatusRunning {
		query += ", started_at = ?"
		args = append(args, now)
	}
	if next.Terminal() {
		query += ", completed_at = ?"
		args = append(args, now)
	}
	if errMsg != "" {
		query += ", error = ?"
		args = append(args, errMsg)
	}

	query += " WHERE id = ? AND status = ?"
	args = append(args, id, current)

	res, err := tx.Exec(query, args...)
	if err != nil {
		return nil, &PersistenceError{Op: "transition job", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &InvalidTransitionError{From: Status(current), Event: ev}
	}

	if err := tx.Commit(); err != nil {
		return nil, &PersistenceError{Op: "commit transition", Err: err}
	}

	s.log.Info().
		Str("job", id).
		Str("from", current).
		Str("to", string(next)).
		Msg("Job transitioned")

	return s.Get(id)
}

// UpdateProgress atomically replaces the persisted snapshot. The single
// UPDATE is the write-new-then-swap: a reader sees the old snapshot or
// the new one, never a blend.
func (s *Store) UpdateProgress(id string, p Progress) error {
	progressJSON, err := json.Marshal(p)
	if err != nil {
		return &PersistenceError{Op: "encode progress", Err: err}
	}

	res, err := s.db.Exec("UPDATE jobs SET progress = ? WHERE id = ?", string(progressJSON), id)
	if err != nil {
		return &PersistenceError{Op: "update progress", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	return nil
}

// RequestSignal records a cooperative pause/cancel request. The owning
// runner observes it before the next dispatch, drains in-flight items and
// then commits the transition itself. Cancelling a paused job (no live
// runner to drain) transitions immediately.
func (s *Store) RequestSignal(id string, ev Event) (*Job, error) {
	if ev != EventPause && ev != EventCancel {
		return nil, fmt.Errorf("%q is not a signalable event", ev)
	}

	job, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	// The request must be legal from where the job is right now
	if _, err := NextStatus(job.Status, ev); err != nil {
		return nil, err
	}

	if job.Status == StatusPaused && ev == EventCancel {
		return s.Transition(id, EventCancel)
	}

	if err := s.storeSignal(id, ev, job.Status); err != nil {
		return nil, err
	}

	s.log.Info().Str("job", id).Str("signal", string(ev)).Msg("Control signal requested")
	return s.Get(id)
}

// storeSignal writes the signal only if the job is still in the status it
// was read at. Zero rows means the job moved on, typically to a terminal
// state, and the request is rejected rather than silently dropped.
func (s *Store) storeSignal(id string, ev Event, from Status) error {
	res, err := s.db.Exec("UPDATE jobs SET signal = ? WHERE id = ? AND status = ?",
		string(ev), id, string(from))
	if err != nil {
		return &PersistenceError{Op: "request signal", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		cur, err := s.Get(id)
		if err != nil {
			return err
		}
		return &InvalidTransitionError{From: cur.Status, Event: ev}
	}
	return nil
}

// Signal reads the pending control signal, if any
func (s *Store) Signal(id string) (Event, error) {
	var sig string
	if err := s.db.QueryRow("SELECT signal FROM jobs WHERE id = ?", id).Scan(&sig); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to read job signal: %w", err)
	}
	return Event(sig), nil
}

const jobSelect = `SELECT id, type, status, targets, options, progress, error,
	created_at, started_at, completed_at FROM jobs`

func scanJob(rows *sql.Rows) (*Job, error) {
	var job Job
	var jobType, status, targetsJSON, optionsJSON, progressJSON, createdAt string
	var startedAt, completedAt sql.NullString

	err := rows.Scan(&job.ID, &jobType, &status, &targetsJSON, &optionsJSON,
		&progressJSON, &job.Error, &createdAt, &startedAt, &completedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job.Type = Type(jobType)
	job.Status = Status(status)
	job.CreatedAt = parseTime(createdAt)
	job.StartedAt = parseNullableTime(startedAt)
	job.CompletedAt = parseNullableTime(completedAt)

	if err := json.Unmarshal([]byte(targetsJSON), &job.Targets); err != nil {
		return nil, fmt.Errorf("failed to decode job targets: %w", err)
	}
	if err := json.Unmarshal([]byte(optionsJSON), &job.Options); err != nil {
		return nil, fmt.Errorf("failed to decode job options: %w", err)
	}
	if err := json.Unmarshal([]byte(progressJSON), &job.Progress); err != nil {
		return nil, fmt.Errorf("failed to decode job progress: %w", err)
	}

	return &job, nil
}

func marshalJobColumns(job *Job) (string, string, string, error) {
	targetsJSON, err := json.Marshal(job.Targets)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode targets: %w", err)
	}
	optionsJSON, err := json.Marshal(job.Options)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode options: %w", err)
	}
	progressJSON, err := json.Marshal(job.Progress)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode progress: %w", err)
	}
	return string(targetsJSON), string(optionsJSON), string(progressJSON), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
