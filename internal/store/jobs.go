package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"uho/internal/models"
)

const jobColumns = `id, action, status, date_created, date_completed`

// Enqueue inserts one waiting job per action in a single transaction.
func (s *Store) Enqueue(ctx context.Context, actions ...string) ([]models.Job, error) {
	if len(actions) == 0 {
		return nil, nil
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	jobs := make([]models.Job, 0, len(actions))
	for _, action := range actions {
		row := tx.QueryRow(ctx, `
			INSERT INTO jobs (action, status, date_created)
			VALUES ($1, $2, NOW())
			RETURNING `+jobColumns,
			action, models.StatusWaiting)
		job, err := scanJob(row)
		if err != nil {
			return nil, fmt.Errorf("insert job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return jobs, nil
}

// ClaimNext leases the oldest waiting job. The job keeps status waiting; the
// lease only hides it from concurrent pollers until it expires. Lease times
// come from the database clock, the same one the expiry check reads.
func (s *Store) ClaimNext(ctx context.Context) (models.Job, bool, error) {
	leaseMs := s.lease.Milliseconds()
	if leaseMs < 1 {
		leaseMs = 1
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE jobs SET claimed_until = NOW() + ($2::bigint * INTERVAL '1 millisecond')
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = $1 AND (claimed_until IS NULL OR claimed_until <= NOW())
			ORDER BY date_created, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		models.StatusWaiting, leaseMs)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, false, nil
	}
	if err != nil {
		return models.Job{}, false, fmt.Errorf("claim job: %w", err)
	}
	return job, true, nil
}

// SetStatus moves a waiting job to a terminal status and stamps its
// completion time.
func (s *Store) SetStatus(ctx context.Context, id int64, status string) error {
	if !models.IsTerminal(status) {
		return fmt.Errorf("%w: %q", models.ErrInvalidStatus, status)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, date_completed = NOW(), claimed_until = NULL
		WHERE id = $1 AND status = $3
	`, id, status, models.StatusWaiting)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return models.ErrJobFinished
}

// Repeat copies the action of an existing job into a new waiting job.
func (s *Store) Repeat(ctx context.Context, id int64) (models.Job, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO jobs (action, status, date_created)
		SELECT action, $2, NOW() FROM jobs WHERE id = $1
		RETURNING `+jobColumns,
		id, models.StatusWaiting)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, models.ErrJobNotFound
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("repeat job: %w", err)
	}
	return job, nil
}

// Get fetches a job by id.
func (s *Store) Get(ctx context.Context, id int64) (models.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, models.ErrJobNotFound
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("scan job: %w", err)
	}
	return job, nil
}

// List returns the most recent jobs, optionally filtered by status.
func (s *Store) List(ctx context.Context, status string, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE $1 = '' OR status = $1
		ORDER BY date_created DESC, id DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CountWaiting returns the number of jobs still waiting, leased or not.
func (s *Store) CountWaiting(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM jobs WHERE status = $1
	`, models.StatusWaiting).Scan(&n); err != nil {
		return 0, fmt.Errorf("count waiting jobs: %w", err)
	}
	return n, nil
}

// CountCompletedToday returns the number of jobs finished since local midnight.
func (s *Store) CountCompletedToday(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM jobs WHERE date_completed >= $1
	`, startOfDay(time.Now(), s.loc)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count completed jobs: %w", err)
	}
	return n, nil
}

func scanJob(row pgx.Row) (models.Job, error) {
	var job models.Job
	var completed pgtype.Timestamptz
	if err := row.Scan(&job.ID, &job.Action, &job.Status, &job.DateCreated, &completed); err != nil {
		return models.Job{}, err
	}
	if completed.Valid {
		t := completed.Time
		job.DateCompleted = &t
	}
	return job, nil
}
