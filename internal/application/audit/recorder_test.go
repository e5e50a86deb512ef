package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/insights-copilot/internal/domain/query"
)

type memRepo struct {
	saved []*domain.Result
	err   error
}

func (m *memRepo) Save(_ context.Context, r *domain.Result) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, r)
	return nil
}

func (m *memRepo) Latest(_ context.Context, limit int) ([]*domain.Result, error) {
	if limit > len(m.saved) {
		limit = len(m.saved)
	}
	return m.saved[:limit], nil
}

type memStore struct {
	objects map[string]string
	err     error
}

func (m *memStore) PutText(_ context.Context, key, body, _ string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.objects[key] = body
	return "mem://" + key, nil
}

func TestRecorder_Record(t *testing.T) {
	repo := &memRepo{}
	store := &memStore{objects: map[string]string{}}
	rec := &Recorder{Repo: repo, Artifacts: store}

	res := &domain.Result{ID: "q-1", Code: "print(1)", Output: "1\n"}
	require.NoError(t, rec.Record(context.Background(), res))

	assert.Equal(t, "print(1)", store.objects["queries/q-1/code.py"])
	assert.Equal(t, "1\n", store.objects["queries/q-1/output.txt"])
	assert.NotContains(t, store.objects, "queries/q-1/reply.txt")
	require.Len(t, repo.saved, 1)

	latest, err := rec.Latest(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, latest, 1)
}

func TestRecorder_AllSinksAttempted(t *testing.T) {
	repo := &memRepo{}
	store := &memStore{objects: map[string]string{}, err: errors.New("bucket gone")}
	rec := &Recorder{Repo: repo, Artifacts: store, Prefix: "audit"}

	err := rec.Record(context.Background(), &domain.Result{ID: "q-2", Code: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket gone")
	assert.Len(t, repo.saved, 1, "repository still written")
}

func TestRecorder_Empty(t *testing.T) {
	rec := &Recorder{}
	assert.NoError(t, rec.Record(context.Background(), &domain.Result{ID: "q"}))
	out, err := rec.Latest(context.Background(), 5)
	assert.NoError(t, err)
	assert.Nil(t, out)
}
