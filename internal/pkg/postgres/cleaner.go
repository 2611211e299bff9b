package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vocalalchemy/forge/internal/pkg/status"
)

// Cleaner removes all db records related with a job ID.
// Characters stay - a trained voice outlives its job
type Cleaner struct {
	pool   *pgxpool.Pool
	tables []string
}

// NewCleaner creates db cleaner instance
func NewCleaner(pool *pgxpool.Pool) (*Cleaner, error) {
	res := &Cleaner{pool: pool, tables: []string{"email_lock", "jobs"}}
	return res, nil
}

// Clean deletes job rows, segments go with the jobs row by cascade
func (db *Cleaner) Clean(ctx context.Context, id string) error {
	for _, t := range db.tables {
		cmd, err := db.pool.Exec(ctx, `DELETE FROM `+t+` WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("can't delete %s(%s): %w", id, t, err)
		}
		goapp.Log.Info().Str("ID", id).Str("table", t).Int64("rows", cmd.RowsAffected()).Msg("deleted")
	}
	return nil
}

// DBIdsProvider provides expired terminal job IDs from postgresql
type DBIdsProvider struct {
	pool         *pgxpool.Pool
	expiresAfter time.Duration
}

// NewDBIdsProvider creates expired job provider instance.
// Only terminal jobs are offered - labeling or queued jobs wait
// for the user no matter how old they are
func NewDBIdsProvider(pool *pgxpool.Pool, expiresAfter time.Duration) (*DBIdsProvider, error) {
	if expiresAfter <= 0 {
		return nil, fmt.Errorf("wrong expiresAfter %v", expiresAfter)
	}
	res := &DBIdsProvider{pool: pool, expiresAfter: expiresAfter}
	return res, nil
}

// GetExpired returns terminal jobs older than the retention period
func (db *DBIdsProvider) GetExpired(ctx context.Context) ([]string, error) {
	exp := time.Now().Add(-db.expiresAfter)
	goapp.Log.Info().Time("older than", exp).Msg("selecting old records...")
	rows, err := db.pool.Query(ctx, `SELECT id FROM jobs WHERE created < $1 AND status = ANY($2)`,
		exp, []string{status.Completed.String(), status.Failed.String(), status.Cancelled.String()})
	if err != nil {
		return nil, fmt.Errorf("can't select IDs: %w", err)
	}
	defer rows.Close()

	res := []string{}
	for rows.Next() {
		var id string
		err := rows.Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("can't retrieve IDs: %w", err)
		}
		res = append(res, id)
	}

	return res, nil
}
