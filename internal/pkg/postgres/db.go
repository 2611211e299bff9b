package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vocalalchemy/forge/internal/pkg/api"
	"github.com/vocalalchemy/forge/internal/pkg/persistence"
	"github.com/vocalalchemy/forge/internal/pkg/status"
)

// DB provides operations with postgresql
type DB struct {
	pool *pgxpool.Pool
}

// NewDB creates DB instance
func NewDB(pool *pgxpool.Pool) (*DB, error) {
	res := &DB{pool: pool}
	return res, nil
}

const jobFields = `id, name, language, email, status, progress, current_step, params,
	file_names, error, error_code, cancel_requested, acoustic_model, prosody_model,
	trainer, created, started, completed, version`

// InsertJob inserts job into DB
func (db *DB) InsertJob(ctx context.Context, job *persistence.Job) error {
	params, err := marshalParams(job.Params)
	if err != nil {
		return err
	}
	rows, err := db.pool.Query(ctx, `INSERT INTO jobs(id, name, language, email, status, params, file_names, created)
	VALUES($1, $2, $3, $4, $5, $6, $7, $8)`, job.ID, job.Name, job.Language, job.Email,
		job.Status, params, job.FileNames, job.Created)
	if err != nil {
		if isUniqueViolation(err) {
			return &api.ErrDuplicate{Name: job.Name}
		}
		return fmt.Errorf("can't insert job: %w", err)
	}
	defer rows.Close()
	return nil
}

// LoadJob loads job from DB
func (db *DB) LoadJob(ctx context.Context, id string) (*persistence.Job, error) {
	res, err := scanJob(db.pool.QueryRow(ctx, `SELECT `+jobFields+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, api.NewErrNotFound("job", id)
		}
		return nil, fmt.Errorf("can't load job: %w", err)
	}
	return res, nil
}

// ListJobs loads all jobs ordered by creation time
func (db *DB) ListJobs(ctx context.Context) ([]*persistence.Job, error) {
	rows, err := db.pool.Query(ctx, `SELECT `+jobFields+` FROM jobs ORDER BY created`)
	if err != nil {
		return nil, fmt.Errorf("can't select jobs: %w", err)
	}
	defer rows.Close()
	res := []*persistence.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("can't scan job: %w", err)
		}
		res = append(res, job)
	}
	return res, nil
}

// UpdateStatus updates job's pipeline state under optimistic version check.
// progress may only grow - a re-run stage never moves it back
func (db *DB) UpdateStatus(ctx context.Context, job *persistence.Job) error {
	rows, err := db.pool.Exec(ctx, `UPDATE jobs SET
	status = $3,
	progress = GREATEST(progress, $4),
	current_step = $5,
	error = $6,
	error_code = $7,
	started = $8,
	completed = $9,
	acoustic_model = $10,
	prosody_model = $11,
	trainer = $12,
	updated = $13,
	version = $2 + 1
	WHERE id = $1 and version = $2`, job.ID, job.Version, job.Status, job.Progress,
		job.CurrentStep, job.Error, job.ErrorCode, job.Started, job.Completed,
		job.AcousticModel, job.ProsodyModel, job.Trainer, time.Now())
	if err != nil {
		return fmt.Errorf("can't update job: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return api.NewErrConflict(fmt.Sprintf("job '%s' changed concurrently", job.ID))
	}
	job.Version++
	return nil
}

// UpdateProgress bumps progress without a version check. A tick is
// advisory, losing one to a concurrent update is fine
func (db *DB) UpdateProgress(ctx context.Context, id string, progress int32) error {
	rows, err := db.pool.Exec(ctx, `UPDATE jobs SET progress = GREATEST(progress, $2), updated = $3 WHERE id = $1`,
		id, progress, time.Now())
	if err != nil {
		return fmt.Errorf("can't update progress: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return api.NewErrNotFound("job", id)
	}
	return nil
}

// ListInterrupted returns jobs left in a worker driven state,
// used by the resume sweep on worker start
func (db *DB) ListInterrupted(ctx context.Context) ([]*persistence.Job, error) {
	sts := []string{}
	for _, st := range []status.Status{status.SeparatingVocals, status.Denoising, status.Slicing,
		status.Transcribing, status.Preparing, status.TrainingAcoustic, status.TrainingProsody} {
		sts = append(sts, st.String())
	}
	rows, err := db.pool.Query(ctx, `SELECT `+jobFields+` FROM jobs WHERE status = ANY($1) ORDER BY created`, sts)
	if err != nil {
		return nil, fmt.Errorf("can't select jobs: %w", err)
	}
	defer rows.Close()
	res := []*persistence.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("can't scan job: %w", err)
		}
		res = append(res, job)
	}
	return res, nil
}

// HasQueuedMessage checks if a message for the job is already waiting in the
// queue. Keeps the resume sweep from double enqueueing a job whose message
// survived the crash
func (db *DB) HasQueuedMessage(ctx context.Context, queue, id string) (bool, error) {
	var res bool
	err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM gue_jobs
	WHERE queue = $1 AND convert_from(args, 'UTF8')::jsonb->>'id' = $2)`, queue, id).Scan(&res)
	if err != nil {
		return false, fmt.Errorf("can't check queue: %w", err)
	}
	return res, nil
}

// UpdateFileNames stores uploaded file list
func (db *DB) UpdateFileNames(ctx context.Context, id string, fileNames []string) error {
	rows, err := db.pool.Exec(ctx, `UPDATE jobs SET file_names = $2, updated = $3 WHERE id = $1`,
		id, fileNames, time.Now())
	if err != nil {
		return fmt.Errorf("can't update file names: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return api.NewErrNotFound("job", id)
	}
	return nil
}

// RequestCancel raises the job's cancellation flag
func (db *DB) RequestCancel(ctx context.Context, id string) error {
	rows, err := db.pool.Exec(ctx, `UPDATE jobs SET cancel_requested = TRUE, updated = $2 WHERE id = $1`,
		id, time.Now())
	if err != nil {
		return fmt.Errorf("can't request cancel: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return api.NewErrNotFound("job", id)
	}
	return nil
}

// CancelRequested checks the job's cancellation flag
func (db *DB) CancelRequested(ctx context.Context, id string) (bool, error) {
	var res bool
	err := db.pool.QueryRow(ctx, `SELECT cancel_requested FROM jobs WHERE id = $1`, id).Scan(&res)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, api.NewErrNotFound("job", id)
		}
		return false, fmt.Errorf("can't load cancel flag: %w", err)
	}
	return res, nil
}

// DeleteJob removes the job, segments go with it (FK cascade)
func (db *DB) DeleteJob(ctx context.Context, id string) error {
	rows, err := db.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("can't delete job: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return api.NewErrNotFound("job", id)
	}
	return nil
}

const segmentFields = `id, job_id, file, text, language, duration_secs, created, updated`

// ListSegments loads all segments of a job
func (db *DB) ListSegments(ctx context.Context, jobID string) ([]*persistence.Segment, error) {
	rows, err := db.pool.Query(ctx, `SELECT `+segmentFields+` FROM segments WHERE job_id = $1 ORDER BY file`, jobID)
	if err != nil {
		return nil, fmt.Errorf("can't select segments: %w", err)
	}
	defer rows.Close()
	res := []*persistence.Segment{}
	for rows.Next() {
		var s persistence.Segment
		if err := rows.Scan(&s.ID, &s.JobID, &s.File, &s.Text, &s.Language,
			&s.DurationSecs, &s.Created, &s.Updated); err != nil {
			return nil, fmt.Errorf("can't scan segment: %w", err)
		}
		res = append(res, &s)
	}
	return res, nil
}

// LoadSegment loads one segment of a job
func (db *DB) LoadSegment(ctx context.Context, jobID, segmentID string) (*persistence.Segment, error) {
	var s persistence.Segment
	err := db.pool.QueryRow(ctx, `SELECT `+segmentFields+` FROM segments WHERE job_id = $1 AND id = $2`,
		jobID, segmentID).Scan(&s.ID, &s.JobID, &s.File, &s.Text, &s.Language,
		&s.DurationSecs, &s.Created, &s.Updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, api.NewErrNotFound("segment", segmentID)
		}
		return nil, fmt.Errorf("can't load segment: %w", err)
	}
	return &s, nil
}

// ReplaceSegments atomically overwrites the job's segments and persists the
// passed status transition. Re-running an interrupted transcription stage
// must never leave a half written segment list behind
func (db *DB) ReplaceSegments(ctx context.Context, job *persistence.Job, segments []*persistence.Segment) error {
	return db.inJobTx(ctx, job.ID, func(tx pgx.Tx, st status.Status) error {
		if _, err := tx.Exec(ctx, `DELETE FROM segments WHERE job_id = $1`, job.ID); err != nil {
			return fmt.Errorf("can't delete segments: %w", err)
		}
		for _, s := range segments {
			if _, err := tx.Exec(ctx, `INSERT INTO segments(id, job_id, file, text, language, duration_secs, created)
			VALUES($1, $2, $3, $4, $5, $6, $7)`, s.ID, job.ID, s.File, s.Text, s.Language,
				s.DurationSecs, s.Created); err != nil {
				return fmt.Errorf("can't insert segment: %w", err)
			}
		}
		return updateStatusTx(ctx, tx, job)
	})
}

// UpdateSegment patches one segment's transcript, only while the job is in labeling
func (db *DB) UpdateSegment(ctx context.Context, jobID, segmentID, text, language string) error {
	return db.inJobTx(ctx, jobID, func(tx pgx.Tx, st status.Status) error {
		if st != status.Labeling {
			return api.NewErrWrongState("edit segments", st.String())
		}
		return updateSegmentTx(ctx, tx, jobID, segmentID, text, language)
	})
}

// BatchUpdateSegments applies several transcript patches in one transaction.
// Mixed with single updates it never interleaves partially
func (db *DB) BatchUpdateSegments(ctx context.Context, jobID string, patches []*persistence.Segment) error {
	return db.inJobTx(ctx, jobID, func(tx pgx.Tx, st status.Status) error {
		if st != status.Labeling {
			return api.NewErrWrongState("edit segments", st.String())
		}
		for _, p := range patches {
			if err := updateSegmentTx(ctx, tx, jobID, p.ID, p.Text, p.Language); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteSegment drops a bad segment, only while the job is in labeling
func (db *DB) DeleteSegment(ctx context.Context, jobID, segmentID string) error {
	return db.inJobTx(ctx, jobID, func(tx pgx.Tx, st status.Status) error {
		if st != status.Labeling {
			return api.NewErrWrongState("delete segments", st.String())
		}
		rows, err := tx.Exec(ctx, `DELETE FROM segments WHERE job_id = $1 AND id = $2`, jobID, segmentID)
		if err != nil {
			return fmt.Errorf("can't delete segment: %w", err)
		}
		if rows.RowsAffected() != 1 {
			return api.NewErrNotFound("segment", segmentID)
		}
		return nil
	})
}

// CommitTraining validates transcripts and flips the job from labeling to
// preparing, applying the optional hyperparameter override. Idempotent: a
// repeated call on an already committed job returns the current snapshot
// with committed false, so the caller knows not to enqueue it again
func (db *DB) CommitTraining(ctx context.Context, jobID string, override func(*persistence.Params)) (*persistence.Job, bool, error) {
	var res *persistence.Job
	committed := false
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		job, err := lockJob(ctx, tx, jobID)
		if err != nil {
			return err
		}
		st := status.From(job.Status)
		if st.Training() || st == status.Completed {
			res = job // already committed, retry after a network timeout
			return nil
		}
		if st != status.Labeling {
			return api.NewErrWrongState("start training", job.Status)
		}
		var empty []string
		rows, err := tx.Query(ctx, `SELECT id FROM segments WHERE job_id = $1 AND trim(text) = '' ORDER BY file`, jobID)
		if err != nil {
			return fmt.Errorf("can't check segments: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return fmt.Errorf("can't scan segment id: %w", err)
			}
			empty = append(empty, id)
		}
		if len(empty) > 0 {
			return &api.ErrValidation{Msg: "segments with empty transcript", SegmentIDs: empty}
		}
		if override != nil {
			override(job.Params)
		}
		params, err := marshalParams(job.Params)
		if err != nil {
			return err
		}
		job.Status = status.Preparing.String()
		job.Progress = status.Progress(status.Labeling, 1)
		if _, err := tx.Exec(ctx, `UPDATE jobs SET status = $2, progress = GREATEST(progress, $3),
		params = $4, updated = $5, version = version + 1 WHERE id = $1`,
			jobID, job.Status, job.Progress, params, time.Now()); err != nil {
			return fmt.Errorf("can't update job: %w", err)
		}
		job.Version++
		res = job
		committed = true
		return nil
	})
	return res, committed, err
}

// ResetToLabeling moves a job failed during training back to labeling,
// keeping its segments so transcription work is not lost
func (db *DB) ResetToLabeling(ctx context.Context, jobID string) (*persistence.Job, error) {
	var res *persistence.Job
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		job, err := lockJob(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if status.From(job.Status) != status.Failed || job.Progress < status.Progress(status.Labeling, 0) {
			return api.NewErrWrongState("reset to labeling", job.Status)
		}
		job.Status = status.Labeling.String()
		job.Error = sql.NullString{}
		job.ErrorCode = sql.NullString{}
		if _, err := tx.Exec(ctx, `UPDATE jobs SET status = $2, error = NULL, error_code = NULL,
		cancel_requested = FALSE, updated = $3, version = version + 1 WHERE id = $1`,
			jobID, job.Status, time.Now()); err != nil {
			return fmt.Errorf("can't update job: %w", err)
		}
		job.Version++
		res = job
		return nil
	})
	return res, err
}

// InsertCharacter inserts character into DB
func (db *DB) InsertCharacter(ctx context.Context, ch *persistence.Character) error {
	rows, err := db.pool.Query(ctx, `INSERT INTO characters(id, name, language, acoustic_model, prosody_model, created)
	VALUES($1, $2, $3, $4, $5, $6)`, ch.ID, ch.Name, ch.Language, ch.AcousticModel, ch.ProsodyModel, ch.Created)
	if err != nil {
		if isUniqueViolation(err) {
			return &api.ErrDuplicate{Name: ch.Name}
		}
		return fmt.Errorf("can't insert character: %w", err)
	}
	defer rows.Close()
	return nil
}

// LoadCharacter loads character from DB
func (db *DB) LoadCharacter(ctx context.Context, id string) (*persistence.Character, error) {
	var res persistence.Character
	err := db.pool.QueryRow(ctx, `SELECT id, name, language, acoustic_model, prosody_model, created
	FROM characters WHERE id = $1`, id).Scan(&res.ID, &res.Name, &res.Language,
		&res.AcousticModel, &res.ProsodyModel, &res.Created)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, api.NewErrNotFound("character", id)
		}
		return nil, fmt.Errorf("can't load character: %w", err)
	}
	return &res, nil
}

// ListCharacters loads all trained characters
func (db *DB) ListCharacters(ctx context.Context) ([]*persistence.Character, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, name, language, acoustic_model, prosody_model, created
	FROM characters ORDER BY created`)
	if err != nil {
		return nil, fmt.Errorf("can't select characters: %w", err)
	}
	defer rows.Close()
	res := []*persistence.Character{}
	for rows.Next() {
		var ch persistence.Character
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Language, &ch.AcousticModel,
			&ch.ProsodyModel, &ch.Created); err != nil {
			return nil, fmt.Errorf("can't scan character: %w", err)
		}
		res = append(res, &ch)
	}
	return res, nil
}

// LockEmailTable marks an email of (job, msgType) as being sent.
// Fails if it was sent already, so a retried handler can't mail twice
func (db *DB) LockEmailTable(ctx context.Context, id, msgType string) error {
	tag, err := db.pool.Exec(ctx, `INSERT INTO email_lock(id, msg_type, status) VALUES($1, $2, 1)
		ON CONFLICT (id, msg_type) DO UPDATE SET status = 1 WHERE email_lock.status = 0`, id, msgType)
	if err != nil {
		return fmt.Errorf("can't lock email table: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("email already sent for '%s'/%s", id, msgType)
	}
	return nil
}

// UnLockEmailTable releases the lock: 2 - sent, 0 - failed, may retry
func (db *DB) UnLockEmailTable(ctx context.Context, id, msgType string, value *int) error {
	_, err := db.pool.Exec(ctx, `UPDATE email_lock SET status = $3 WHERE id = $1 AND msg_type = $2`,
		id, msgType, *value)
	if err != nil {
		return fmt.Errorf("can't unlock email table: %w", err)
	}
	return nil
}

// Live returns no error if db is reachable and initialized
func (db *DB) Live(ctx context.Context) error {
	var exists bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT FROM pg_tables WHERE tablename = 'gue_jobs')`).Scan(&exists); err != nil {
		return fmt.Errorf("can't check table: %w", err)
	}
	if !exists {
		return fmt.Errorf("no migration done")
	}
	return nil
}

func (db *DB) inTx(ctx context.Context, f func(tx pgx.Tx) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("can't begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := f(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}
	return nil
}

// inJobTx serializes mutations per job by locking its row for the
// duration of the transaction
func (db *DB) inJobTx(ctx context.Context, jobID string, f func(tx pgx.Tx, st status.Status) error) error {
	return db.inTx(ctx, func(tx pgx.Tx) error {
		var st string
		err := tx.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, jobID).Scan(&st)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return api.NewErrNotFound("job", jobID)
			}
			return fmt.Errorf("can't lock job: %w", err)
		}
		return f(tx, status.From(st))
	})
}

func lockJob(ctx context.Context, tx pgx.Tx, id string) (*persistence.Job, error) {
	res, err := scanJob(tx.QueryRow(ctx, `SELECT `+jobFields+` FROM jobs WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, api.NewErrNotFound("job", id)
		}
		return nil, fmt.Errorf("can't lock job: %w", err)
	}
	return res, nil
}

func updateStatusTx(ctx context.Context, tx pgx.Tx, job *persistence.Job) error {
	rows, err := tx.Exec(ctx, `UPDATE jobs SET status = $3, progress = GREATEST(progress, $4),
	current_step = $5, updated = $6, version = $2 + 1 WHERE id = $1 and version = $2`,
		job.ID, job.Version, job.Status, job.Progress, job.CurrentStep, time.Now())
	if err != nil {
		return fmt.Errorf("can't update job: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return api.NewErrConflict(fmt.Sprintf("job '%s' changed concurrently", job.ID))
	}
	job.Version++
	return nil
}

func updateSegmentTx(ctx context.Context, tx pgx.Tx, jobID, segmentID, text, language string) error {
	rows, err := tx.Exec(ctx, `UPDATE segments SET text = $3,
	language = COALESCE(NULLIF($4, ''), language), updated = $5 WHERE job_id = $1 AND id = $2`,
		jobID, segmentID, text, language, time.Now())
	if err != nil {
		return fmt.Errorf("can't update segment: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return api.NewErrNotFound("segment", segmentID)
	}
	return nil
}

func scanJob(row pgx.Row) (*persistence.Job, error) {
	var res persistence.Job
	var params []byte
	err := row.Scan(&res.ID, &res.Name, &res.Language, &res.Email, &res.Status,
		&res.Progress, &res.CurrentStep, &params, &res.FileNames, &res.Error,
		&res.ErrorCode, &res.CancelRequested, &res.AcousticModel, &res.ProsodyModel,
		&res.Trainer, &res.Created, &res.Started, &res.Completed, &res.Version)
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		res.Params = &persistence.Params{}
		if err := json.Unmarshal(params, res.Params); err != nil {
			return nil, fmt.Errorf("can't unmarshal params: %w", err)
		}
	}
	return &res, nil
}

func marshalParams(p *persistence.Params) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	res, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("can't marshal params: %w", err)
	}
	return res, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
