package query

import "context"

// Sandbox port (isolated executor for generated code)
type Sandbox interface {
	Execute(ctx context.Context, job Job) (Execution, error)
}

// Recorder port (optional audit trail of finished questions)
type Recorder interface {
	Record(ctx context.Context, r *Result) error
}

// Repository port (persistence for audit records)
type Repository interface {
	Save(ctx context.Context, r *Result) error
	Latest(ctx context.Context, limit int) ([]*Result, error)
}
