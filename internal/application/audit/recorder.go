package audit

import (
	"context"
	"errors"
	"path"

	"go.uber.org/zap"

	domain "github.com/bryanwahyu/insights-copilot/internal/domain/query"
)

// ArtifactStore keeps the larger text blobs of a question.
type ArtifactStore interface {
	PutText(ctx context.Context, key, body, contentType string) (string, error)
}

// Recorder fans a finished Result out to the repository and the artifact
// store. Either may be nil.
type Recorder struct {
	Repo      domain.Repository
	Artifacts ArtifactStore
	Prefix    string
}

// Record implements domain.Recorder. Every sink is attempted; the errors are
// joined.
func (r *Recorder) Record(ctx context.Context, res *domain.Result) error {
	var errs []error

	if r.Artifacts != nil {
		prefix := r.Prefix
		if prefix == "" {
			prefix = "queries"
		}
		blobs := []struct {
			name, body, contentType string
		}{
			{"code.py", res.Code, "text/x-python"},
			{"output.txt", res.Output, ""},
			{"reply.txt", res.Raw, ""},
		}
		for _, b := range blobs {
			if b.body == "" {
				continue
			}
			key := path.Join(prefix, string(res.ID), b.name)
			if _, err := r.Artifacts.PutText(ctx, key, b.body, b.contentType); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if r.Repo != nil {
		if err := r.Repo.Save(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	zap.L().Debug("question recorded", zap.String("question_id", string(res.ID)))
	return nil
}

// Latest lists recorded questions, newest first.
func (r *Recorder) Latest(ctx context.Context, limit int) ([]*domain.Result, error) {
	if r.Repo == nil {
		return nil, nil
	}
	return r.Repo.Latest(ctx, limit)
}
