package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/insights-copilot/internal/domain/query"
)

func TestQueryRepository_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	res := &domain.Result{
		ID:       "q-1",
		Question: "bad\x00byte",
		State:    domain.StateExecutionFailed,
		Error:    "ValueError: boom",
		Provider: "anthropic",
		AskedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	mock.ExpectExec(`INSERT INTO copilot_queries`).
		WithArgs("q-1", "badbyte", "execution_failed", "", "", "", "", "", false, "ValueError: boom",
			"anthropic", res.AskedAt, int64(0), int64(0), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewQueryRepository(db).Save(context.Background(), res))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRepository_Latest(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cols := []string{
		"id", "question", "state", "thought", "code", "answer", "raw_reply", "output", "truncated", "error",
		"provider", "asked_at", "model_ms", "exec_ms", "duration_ms",
	}
	asked := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, question`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("q-9", "sum", "succeeded", "", "print(1)", "", "", "1\n", true, "", "openai", asked, 1, 2, 3))

	out, err := NewQueryRepository(db).Latest(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, domain.StateSucceeded, out[0].State)
	assert.True(t, out[0].Truncated)
	assert.Equal(t, asked, out[0].AskedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
