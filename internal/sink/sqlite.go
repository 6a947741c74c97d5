package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/linkage"
)

// SQLite stores runs and their flat output in a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLite{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	stats      TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS matches (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	seq          INTEGER NOT NULL,
	feature      TEXT NOT NULL,
	matched      INTEGER NOT NULL,
	geo_distance REAL,
	match_score  REAL,
	x            REAL,
	y            REAL,
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_matches_matched ON matches(run_id, matched);
`

// Migrate creates the tables if they do not exist.
func (s *SQLite) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Write implements Sink. The run and its rows are stored in one transaction.
func (s *SQLite) Write(ctx context.Context, runID string, out *linkage.Output) error {
	recs, err := records(out)
	if err != nil {
		return err
	}
	stats, err := json.Marshal(out.Stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, stats, created_at) VALUES (?, ?, ?)`,
		runID, string(stats), time.Now().UTC(),
	); err != nil {
		return eris.Wrapf(err, "sqlite: insert run %s", runID)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO matches (run_id, seq, feature, matched, geo_distance, match_score, x, y) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, r := range recs {
		var x, y sql.NullFloat64
		if r.Point != nil {
			x = sql.NullFloat64{Float64: r.Point.X(), Valid: true}
			y = sql.NullFloat64{Float64: r.Point.Y(), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			runID, r.Seq, string(r.Feature), r.Matched, r.GeoDistance, r.MatchScore, x, y,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert match %d", r.Seq)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit")
	}
	zap.L().Info("sink: stored run", zap.String("run_id", runID), zap.Int("rows", len(recs)))
	return nil
}

// RunStats returns the stats stored for a run.
func (s *SQLite) RunStats(ctx context.Context, runID string) (*linkage.Stats, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT stats FROM runs WHERE id = ?`, runID).Scan(&raw)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	var stats linkage.Stats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal stats")
	}
	return &stats, nil
}

// CountMatches returns the number of stored rows of a run and how many of
// them were matched.
func (s *SQLite) CountMatches(ctx context.Context, runID string) (total, matched int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(matched), 0) FROM matches WHERE run_id = ?`, runID,
	).Scan(&total, &matched)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "sqlite: count matches %s", runID)
	}
	return total, matched, nil
}
