package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/r3e-network/vinylwatch/internal/app/domain/importjob"
)

const importJobColumns = `id, user_id, external_account_link_id, provider, import_scope, status, cursor,
	 page, processed, imported, created, updated, error_count, errors, started_at, completed_at,
	 created_at, updated_at`

func (s *Store) CreateJobIfAbsent(ctx context.Context, j importjob.ImportJob) (importjob.ImportJob, bool, error) {
	existing, err := s.findInFlightJob(ctx, j.UserID, j.Provider, string(j.ImportScope))
	if err == nil {
		return existing, false, nil
	}
	if err != sql.ErrNoRows {
		return importjob.ImportJob{}, false, err
	}

	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	j.CreatedAt, j.UpdatedAt = now, now
	if j.Status == "" {
		j.Status = importjob.StatusPending
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO import_jobs (`+importJobColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (user_id, provider, import_scope) WHERE status IN ('pending','running') DO NOTHING
	`, j.ID, j.UserID, toNullString(derefString(j.ExternalAccountLinkID)), j.Provider, string(j.ImportScope),
		string(j.Status), j.Cursor, j.Page, j.Processed, j.Imported, j.Created, j.Updated, j.ErrorCount,
		pq.Array(j.Errors), toNullTime(j.StartedAt), toNullTime(j.CompletedAt), j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return importjob.ImportJob{}, false, err
	}

	created, err := s.findInFlightJob(ctx, j.UserID, j.Provider, string(j.ImportScope))
	if err != nil {
		return importjob.ImportJob{}, false, err
	}
	return created, created.ID == j.ID, nil
}

func (s *Store) findInFlightJob(ctx context.Context, userID, provider, scope string) (importjob.ImportJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+importJobColumns+` FROM import_jobs
		WHERE user_id = $1 AND provider = $2 AND import_scope = $3 AND status IN ('pending','running')
	`, userID, provider, scope)
	return scanImportJob(row)
}

func (s *Store) GetJob(ctx context.Context, id string) (importjob.ImportJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+importJobColumns+` FROM import_jobs WHERE id = $1`, id)
	return scanImportJob(row)
}

func (s *Store) UpdateJob(ctx context.Context, j importjob.ImportJob) (importjob.ImportJob, error) {
	existing, err := s.GetJob(ctx, j.ID)
	if err != nil {
		return importjob.ImportJob{}, err
	}
	j.CreatedAt = existing.CreatedAt
	j.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE import_jobs
		SET status=$2, cursor=$3, page=$4, processed=$5, imported=$6, created=$7, updated=$8,
		    error_count=$9, errors=$10, started_at=$11, completed_at=$12, updated_at=$13
		WHERE id = $1
	`, j.ID, string(j.Status), j.Cursor, j.Page, j.Processed, j.Imported, j.Created, j.Updated,
		j.ErrorCount, pq.Array(j.Errors), toNullTime(j.StartedAt), toNullTime(j.CompletedAt), j.UpdatedAt)
	if err != nil {
		return importjob.ImportJob{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return importjob.ImportJob{}, sql.ErrNoRows
	}
	return j, nil
}

func (s *Store) DeleteJob(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM import_jobs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) FindRecentCompletedJob(ctx context.Context, userID, provider string, scope string, since time.Time) (importjob.ImportJob, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+importJobColumns+` FROM import_jobs
		WHERE user_id = $1 AND provider = $2 AND import_scope = $3 AND status = 'completed' AND completed_at >= $4
		ORDER BY completed_at DESC LIMIT 1
	`, userID, provider, scope, since)
	j, err := scanImportJob(row)
	if err == sql.ErrNoRows {
		return importjob.ImportJob{}, false, nil
	}
	if err != nil {
		return importjob.ImportJob{}, false, err
	}
	return j, true, nil
}

func (s *Store) ListJobs(ctx context.Context, userID string) ([]importjob.ImportJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+importJobColumns+` FROM import_jobs WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []importjob.ImportJob
	for rows.Next() {
		j, err := scanImportJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func scanImportJob(row rowScanner) (importjob.ImportJob, error) {
	var (
		j           importjob.ImportJob
		linkID      sql.NullString
		scope       string
		status      string
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)
	if err := row.Scan(&j.ID, &j.UserID, &linkID, &j.Provider, &scope, &status, &j.Cursor,
		&j.Page, &j.Processed, &j.Imported, &j.Created, &j.Updated, &j.ErrorCount, pq.Array(&j.Errors),
		&startedAt, &completedAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return importjob.ImportJob{}, err
	}
	j.ExternalAccountLinkID = nullStringPtr(linkID)
	j.ImportScope = importjob.Scope(scope)
	j.Status = importjob.Status(status)
	j.StartedAt = fromNullTime(startedAt)
	j.CompletedAt = fromNullTime(completedAt)
	return j, nil
}
