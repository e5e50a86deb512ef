package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	domain "github.com/bryanwahyu/insights-copilot/internal/domain/query"
)

const schema = `
CREATE TABLE IF NOT EXISTS copilot_queries (
  id          TEXT        PRIMARY KEY,
  question    TEXT        NOT NULL,
  state       TEXT        NOT NULL,
  thought     TEXT        NOT NULL DEFAULT '',
  code        TEXT        NOT NULL DEFAULT '',
  answer      TEXT        NOT NULL DEFAULT '',
  raw_reply   TEXT        NOT NULL DEFAULT '',
  output      TEXT        NOT NULL DEFAULT '',
  truncated   BOOLEAN     NOT NULL DEFAULT FALSE,
  error       TEXT        NOT NULL DEFAULT '',
  provider    TEXT        NOT NULL,
  asked_at    TIMESTAMPTZ NOT NULL,
  model_ms    BIGINT      NOT NULL DEFAULT 0,
  exec_ms     BIGINT      NOT NULL DEFAULT 0,
  duration_ms BIGINT      NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_copilot_queries_asked_at ON copilot_queries (asked_at DESC);
`

type QueryRepository struct {
	db *sql.DB
}

func NewQueryRepository(db *sql.DB) *QueryRepository {
	return &QueryRepository{db: db}
}

// Migrate creates the audit table when missing.
func (r *QueryRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return eris.Wrap(err, "postgres: migrate copilot_queries")
}

// Save inserts or updates one finished question
func (r *QueryRepository) Save(ctx context.Context, res *domain.Result) error {
	const q = `
INSERT INTO copilot_queries
  (id, question, state, thought, code, answer, raw_reply, output, truncated, error,
   provider, asked_at, model_ms, exec_ms, duration_ms)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (id) DO UPDATE SET
  state=EXCLUDED.state,
  output=EXCLUDED.output,
  truncated=EXCLUDED.truncated,
  error=EXCLUDED.error,
  model_ms=EXCLUDED.model_ms,
  exec_ms=EXCLUDED.exec_ms,
  duration_ms=EXCLUDED.duration_ms;
`
	provider := res.Provider
	if strings.TrimSpace(provider) == "" {
		provider = "-"
	}
	askedAt := res.AskedAt
	if askedAt.IsZero() {
		askedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		string(res.ID), noNUL(res.Question), string(res.State), noNUL(res.Thought),
		noNUL(res.Code), noNUL(res.Answer), noNUL(res.Raw), noNUL(res.Output),
		res.Truncated, noNUL(res.Error), provider, askedAt.UTC(),
		res.ModelMS, res.ExecMS, res.DurationMS,
	)
	return eris.Wrapf(err, "postgres: save query %s", res.ID)
}

// Latest returns the newest records first
func (r *QueryRepository) Latest(ctx context.Context, limit int) ([]*domain.Result, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	const q = `
SELECT id, question, state, thought, code, answer, raw_reply, output, truncated, error,
       provider, asked_at, model_ms, exec_ms, duration_ms
FROM copilot_queries
ORDER BY asked_at DESC, id DESC
LIMIT $1;
`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list queries")
	}
	defer rows.Close()

	var out []*domain.Result
	for rows.Next() {
		var (
			res   domain.Result
			id    string
			state string
		)
		if err := rows.Scan(&id, &res.Question, &state, &res.Thought, &res.Code, &res.Answer,
			&res.Raw, &res.Output, &res.Truncated, &res.Error, &res.Provider, &res.AskedAt,
			&res.ModelMS, &res.ExecMS, &res.DurationMS); err != nil {
			return nil, eris.Wrap(err, "postgres: scan query")
		}
		res.ID = domain.QuestionID(id)
		res.State = domain.State(state)
		out = append(out, &res)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate queries")
}

// postgres TEXT rejects NUL bytes
func noNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}
