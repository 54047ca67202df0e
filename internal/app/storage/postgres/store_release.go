package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-network/vinylwatch/internal/app/domain/release"
)

func (s *Store) CreateRelease(ctx context.Context, r release.WatchRelease) (release.WatchRelease, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	if r.Currency == "" {
		r.Currency = release.DefaultCurrency
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watch_releases
			(id, user_id, discogs_release_id, discogs_master_id, match_mode, title, artist, year,
			 target_price, currency, min_condition, is_active, imported_from_wantlist, imported_from_collection,
			 created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, r.ID, r.UserID, r.DiscogsReleaseID, toNullInt(r.DiscogsMasterID), string(r.MatchMode), r.Title,
		toNullString(r.Artist), toNullInt(r.Year), toNullFloat(r.TargetPrice), r.Currency,
		toNullString(r.MinCondition), r.IsActive, r.ImportedFromWantlist, r.ImportedFromCollection,
		r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return release.WatchRelease{}, err
	}
	return r, nil
}

func (s *Store) UpdateRelease(ctx context.Context, r release.WatchRelease) (release.WatchRelease, error) {
	existing, err := s.GetRelease(ctx, r.ID)
	if err != nil {
		return release.WatchRelease{}, err
	}
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE watch_releases
		SET discogs_release_id=$2, discogs_master_id=$3, match_mode=$4, title=$5, artist=$6, year=$7,
		    target_price=$8, currency=$9, min_condition=$10, is_active=$11,
		    imported_from_wantlist=$12, imported_from_collection=$13, updated_at=$14
		WHERE id = $1
	`, r.ID, r.DiscogsReleaseID, toNullInt(r.DiscogsMasterID), string(r.MatchMode), r.Title,
		toNullString(r.Artist), toNullInt(r.Year), toNullFloat(r.TargetPrice), r.Currency,
		toNullString(r.MinCondition), r.IsActive, r.ImportedFromWantlist, r.ImportedFromCollection, r.UpdatedAt)
	if err != nil {
		return release.WatchRelease{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return release.WatchRelease{}, sql.ErrNoRows
	}
	return r, nil
}

const releaseColumns = `id, user_id, discogs_release_id, discogs_master_id, match_mode, title, artist, year,
	 target_price, currency, min_condition, is_active, imported_from_wantlist, imported_from_collection,
	 created_at, updated_at`

func (s *Store) GetRelease(ctx context.Context, id string) (release.WatchRelease, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+releaseColumns+` FROM watch_releases WHERE id = $1`, id)
	return scanRelease(row)
}

func (s *Store) ListReleases(ctx context.Context, userID string) ([]release.WatchRelease, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+releaseColumns+` FROM watch_releases WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReleases(rows)
}

func (s *Store) ListActiveReleases(ctx context.Context, userID string) ([]release.WatchRelease, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+releaseColumns+` FROM watch_releases WHERE user_id = $1 AND is_active = true ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReleases(rows)
}

func (s *Store) FindReleaseByDiscogsReleaseID(ctx context.Context, userID string, discogsReleaseID int) (release.WatchRelease, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+releaseColumns+` FROM watch_releases
		WHERE user_id = $1 AND match_mode = 'exact_release' AND discogs_release_id = $2
	`, userID, discogsReleaseID)
	r, err := scanRelease(row)
	if err == sql.ErrNoRows {
		return release.WatchRelease{}, false, nil
	}
	if err != nil {
		return release.WatchRelease{}, false, err
	}
	return r, true, nil
}

func (s *Store) FindReleaseByDiscogsMasterID(ctx context.Context, userID string, discogsMasterID int) (release.WatchRelease, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+releaseColumns+` FROM watch_releases
		WHERE user_id = $1 AND match_mode = 'master_release' AND discogs_master_id = $2
	`, userID, discogsMasterID)
	r, err := scanRelease(row)
	if err == sql.ErrNoRows {
		return release.WatchRelease{}, false, nil
	}
	if err != nil {
		return release.WatchRelease{}, false, err
	}
	return r, true, nil
}

func collectReleases(rows *sql.Rows) ([]release.WatchRelease, error) {
	var out []release.WatchRelease
	for rows.Next() {
		r, err := scanRelease(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRelease(row rowScanner) (release.WatchRelease, error) {
	var (
		r         release.WatchRelease
		masterID  sql.NullInt64
		artist    sql.NullString
		year      sql.NullInt64
		target    sql.NullFloat64
		condition sql.NullString
		matchMode string
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.DiscogsReleaseID, &masterID, &matchMode, &r.Title, &artist, &year,
		&target, &r.Currency, &condition, &r.IsActive, &r.ImportedFromWantlist, &r.ImportedFromCollection,
		&r.CreatedAt, &r.UpdatedAt); err != nil {
		return release.WatchRelease{}, err
	}
	r.MatchMode = release.MatchMode(matchMode)
	r.DiscogsMasterID = fromNullInt(masterID)
	r.Artist = fromNullString(artist)
	r.Year = fromNullInt(year)
	r.TargetPrice = fromNullFloat(target)
	r.MinCondition = fromNullString(condition)
	return r, nil
}
