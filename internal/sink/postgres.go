package sink

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/linkage"
	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/resilience"
)

// SRID of stored representative points.
const SRID = 4326

// Pool is the subset of pgxpool.Pool used by the Postgres sink.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

var matchColumns = []string{"run_id", "seq", "feature", "matched", "geo_distance", "match_score", "rep_point"}

// Postgres bulk-loads the flat output into a table using the COPY protocol.
// Representative points are stored as EWKB.
type Postgres struct {
	pool    Pool
	table   pgx.Identifier
	closeFn func()
}

// NewPostgres connects to the database at connString. table may be schema
// qualified.
func NewPostgres(ctx context.Context, connString, table string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 4
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := resilience.Retry(ctx, resilience.DefaultBackoff(), "postgres connect", func(ctx context.Context) (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return pool, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	s := NewPostgresWithPool(pool, table)
	s.closeFn = pool.Close
	return s, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool Pool, table string) *Postgres {
	if table == "" {
		table = "matches"
	}
	return &Postgres{pool: pool, table: pgx.Identifier(strings.Split(table, "."))}
}

// Close releases the pool if the sink opened it.
func (s *Postgres) Close() {
	if s.closeFn != nil {
		s.closeFn()
	}
}

// Migrate creates the target table if it does not exist.
func (s *Postgres) Migrate(ctx context.Context) error {
	sql := `CREATE TABLE IF NOT EXISTS ` + s.table.Sanitize() + ` (
	run_id       UUID NOT NULL,
	seq          INTEGER NOT NULL,
	feature      JSONB NOT NULL,
	matched      BOOLEAN NOT NULL,
	geo_distance DOUBLE PRECISION,
	match_score  DOUBLE PRECISION,
	rep_point    BYTEA,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, seq)
)`
	if _, err := s.pool.Exec(ctx, sql); err != nil {
		return eris.Wrapf(err, "postgres: migrate %s", s.table.Sanitize())
	}
	return nil
}

// Write implements Sink.
func (s *Postgres) Write(ctx context.Context, runID string, out *linkage.Output) error {
	recs, err := records(out)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}

	id, err := uuid.Parse(runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: run id %q", runID)
	}

	rows := make([][]any, 0, len(recs))
	for _, r := range recs {
		var point []byte
		if r.Point != nil {
			point, err = ewkb.Marshal(r.Point.SetSRID(SRID), ewkb.NDR)
			if err != nil {
				return eris.Wrapf(err, "postgres: encode point %d", r.Seq)
			}
		}
		rows = append(rows, []any{id, r.Seq, string(r.Feature), r.Matched, r.GeoDistance, r.MatchScore, point})
	}

	n, err := s.pool.CopyFrom(ctx, s.table, matchColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return eris.Wrapf(err, "postgres: COPY INTO %s", s.table.Sanitize())
	}
	zap.L().Info("sink: copied rows", zap.String("run_id", runID), zap.String("table", s.table.Sanitize()), zap.Int64("rows", n))
	return nil
}
