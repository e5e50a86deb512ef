package mysql

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/insights-copilot/internal/domain/query"
)

var resultColumns = []string{
	"id", "question", "state", "thought", "code", "answer", "raw_reply", "output", "truncated", "error",
	"provider", "asked_at", "model_ms", "exec_ms", "duration_ms",
}

func TestQueryRepository_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	res := &domain.Result{
		ID:       "q-1",
		Question: "total sales?",
		State:    domain.StateSucceeded,
		Code:     "print(1)",
		Output:   "1\n",
		AskedAt:  time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		ModelMS:  120,
	}
	mock.ExpectExec("INSERT INTO copilot_queries").
		WithArgs("q-1", "total sales?", "succeeded", "", "print(1)", "", "", "1\n", false, "",
			"-", res.AskedAt, int64(120), int64(0), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewQueryRepository(db).Save(context.Background(), res))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRepository_SaveError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO copilot_queries").WillReturnError(errors.New("table locked"))
	err = NewQueryRepository(db).Save(context.Background(), &domain.Result{ID: "q-2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "q-2")
}

func TestQueryRepository_Latest(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	asked := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, question").
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows(resultColumns).
			AddRow("q-2", "why?", "extraction_failed", "", "", "dunno", "{}", "", false, "response has no code field", "openai", asked, 10, 0, 12).
			AddRow("q-1", "sum", "succeeded", "t", "print(1)", "a", "{}", "1\n", false, "", "openai", asked, 9, 30, 50))

	out, err := NewQueryRepository(db).Latest(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, domain.QuestionID("q-2"), out[0].ID)
	assert.Equal(t, domain.StateExtractionFailed, out[0].State)
	assert.Equal(t, "1\n", out[1].Output)
	assert.Equal(t, int64(30), out[1].ExecMS)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRepository_Migrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS copilot_queries").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.NoError(t, NewQueryRepository(db).Migrate(context.Background()))
}

func TestClip(t *testing.T) {
	assert.Equal(t, "abc", clip("abc", 5))
	assert.Equal(t, "ab", clip("abc", 2))
	// never split the two-byte é
	assert.Equal(t, "a", clip("aé", 2))
	assert.Len(t, clip(strings.Repeat("x", maxTextBytes+10), maxTextBytes), maxTextBytes)
}

func TestStringOrDash(t *testing.T) {
	assert.Equal(t, "-", stringOrDash("  "))
	assert.Equal(t, "openai", stringOrDash("openai"))
}
