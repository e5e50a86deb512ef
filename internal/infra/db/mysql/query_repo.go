package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"

	domain "github.com/bryanwahyu/insights-copilot/internal/domain/query"
)

// TEXT columns hold 64KiB
const maxTextBytes = 60000

const schema = `
CREATE TABLE IF NOT EXISTS copilot_queries (
  id          VARCHAR(36)  NOT NULL PRIMARY KEY,
  question    TEXT         NOT NULL,
  state       VARCHAR(32)  NOT NULL,
  thought     TEXT         NOT NULL,
  code        TEXT         NOT NULL,
  answer      TEXT         NOT NULL,
  raw_reply   TEXT         NOT NULL,
  output      TEXT         NOT NULL,
  truncated   BOOLEAN      NOT NULL DEFAULT FALSE,
  error       TEXT         NOT NULL,
  provider    VARCHAR(32)  NOT NULL,
  asked_at    DATETIME(3)  NOT NULL,
  model_ms    BIGINT       NOT NULL DEFAULT 0,
  exec_ms     BIGINT       NOT NULL DEFAULT 0,
  duration_ms BIGINT       NOT NULL DEFAULT 0,
  INDEX idx_copilot_queries_asked_at (asked_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
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
	return eris.Wrap(err, "mysql: migrate copilot_queries")
}

// Save insert/update one finished question
func (r *QueryRepository) Save(ctx context.Context, res *domain.Result) error {
	const q = `
INSERT INTO copilot_queries
(id, question, state, thought, code, answer, raw_reply, output, truncated, error,
 provider, asked_at, model_ms, exec_ms, duration_ms)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 state=VALUES(state), output=VALUES(output), truncated=VALUES(truncated), error=VALUES(error),
 model_ms=VALUES(model_ms), exec_ms=VALUES(exec_ms), duration_ms=VALUES(duration_ms);
`
	askedAt := res.AskedAt
	if askedAt.IsZero() {
		askedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		string(res.ID),
		clip(res.Question, maxTextBytes),
		string(res.State),
		clip(res.Thought, maxTextBytes),
		clip(res.Code, maxTextBytes),
		clip(res.Answer, maxTextBytes),
		clip(res.Raw, maxTextBytes),
		clip(res.Output, maxTextBytes),
		res.Truncated,
		clip(res.Error, maxTextBytes),
		stringOrDash(res.Provider),
		askedAt.UTC(),
		res.ModelMS, res.ExecMS, res.DurationMS,
	)
	return eris.Wrapf(err, "mysql: save query %s", res.ID)
}

// Latest returns the newest records first.
func (r *QueryRepository) Latest(ctx context.Context, limit int) ([]*domain.Result, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	const q = `
SELECT id, question, state, thought, code, answer, raw_reply, output, truncated, error,
       provider, asked_at, model_ms, exec_ms, duration_ms
FROM copilot_queries
ORDER BY asked_at DESC, id DESC
LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, eris.Wrap(err, "mysql: list queries")
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
			return nil, eris.Wrap(err, "mysql: scan query")
		}
		res.ID = domain.QuestionID(id)
		res.State = domain.State(state)
		out = append(out, &res)
	}
	return out, eris.Wrap(rows.Err(), "mysql: iterate queries")
}
