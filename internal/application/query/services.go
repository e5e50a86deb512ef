package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bryanwahyu/insights-copilot/internal/application"
	"github.com/bryanwahyu/insights-copilot/internal/domain/ai"
	"github.com/bryanwahyu/insights-copilot/internal/domain/dataset"
	domain "github.com/bryanwahyu/insights-copilot/internal/domain/query"
	"github.com/bryanwahyu/insights-copilot/internal/infra/ai/prompt"
	"github.com/bryanwahyu/insights-copilot/internal/metrics"
)

// Options tune one Service.
type Options struct {
	SampleRows   int
	Temperature  float32
	MaxTokens    int
	JSON         bool
	ModelTimeout time.Duration
}

// DefaultOptions favour parsable code over creative answers.
func DefaultOptions() Options {
	return Options{
		SampleRows:   prompt.DefaultSampleRows,
		Temperature:  0.3,
		MaxTokens:    1500,
		JSON:         true,
		ModelTimeout: 60 * time.Second,
	}
}

// Service implements the question use-case: prompt, model, extract, execute.
// Questions are serialised; each cycle finishes before the next begins.
type Service struct {
	Client   ai.Client
	Sandbox  domain.Sandbox
	Recorder domain.Recorder
	Clock    application.Clock
	Limiter  *rate.Limiter
	Options  Options

	mu sync.Mutex
}

// Ask runs one question through the pipeline. The Result is always non-nil
// and carries whatever was produced before a failure. The error, when set,
// matches exactly one of domain.ErrInvalidQuestion, ai.ErrModelService,
// domain.ErrExtractionFailed or domain.ErrExecutionFailed.
func (s *Service) Ask(ctx context.Context, q domain.Question) (*domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.clock().Now()
	res := &domain.Result{
		ID:       domain.QuestionID(uuid.New().String()),
		Question: q.Text,
		State:    domain.StateIdle,
		AskedAt:  start,
		Provider: s.Client.Provider(),
	}
	log := zap.L().With(zap.String("question_id", string(res.ID)))

	err := s.run(ctx, q, res, log)
	res.DurationMS = application.Since(s.clock(), start).Milliseconds()
	s.finish(ctx, res, err, log)
	return res, err
}

func (s *Service) run(ctx context.Context, q domain.Question, res *domain.Result, log *zap.Logger) error {
	if strings.TrimSpace(q.Text) == "" {
		res.Error = "question is empty"
		return eris.Wrap(domain.ErrInvalidQuestion, res.Error)
	}
	if q.Sales == nil || q.Support == nil {
		res.Error = "both sales and support data are required"
		return eris.Wrap(domain.ErrInvalidQuestion, res.Error)
	}

	// 1. prompt
	req := ai.Request{
		System:      prompt.AnalystSystem,
		User:        prompt.GetQuestionPrompt(q.Sales, q.Support, q.Text, s.Options.SampleRows),
		Temperature: s.Options.Temperature,
		MaxTokens:   s.Options.MaxTokens,
		JSON:        s.Options.JSON,
	}
	s.transition(res, domain.StatePromptBuilt, log)

	// 2. model, sekali saja tanpa retry
	raw, err := s.complete(ctx, req, res)
	if err != nil {
		res.State = domain.StateExecutionFailed
		res.Error = err.Error()
		log.Warn("model call failed", zap.Error(err))
		return err
	}
	res.Raw = raw
	s.transition(res, domain.StateResponseReceived, log)

	// 3. extract
	ex := Extract(raw)
	res.Thought = ex.Response.Thought
	res.Answer = ex.Response.Answer
	if ex.Status != ExtractFound {
		res.State = domain.StateExtractionFailed
		res.Error = ex.Reason
		log.Warn("model did not return usable code",
			zap.String("status", string(ex.Status)),
			zap.String("reason", ex.Reason),
		)
		return eris.Wrap(domain.ErrExtractionFailed, ex.Reason)
	}
	res.Code = ex.Response.Code
	s.transition(res, domain.StateCodeExtracted, log)
	log.Debug("extracted code", zap.Bool("strict_json", ex.Strict), zap.String("code", res.Code))

	// 4. execute, sekali saja
	exec, err := s.execute(ctx, domain.Job{
		ID:   res.ID,
		Code: res.Code,
		Tables: map[string]*dataset.Table{
			domain.BindingSales:   q.Sales,
			domain.BindingSupport: q.Support,
		},
	})
	res.ExecMS = exec.Duration.Milliseconds()
	s.transition(res, domain.StateExecuted, log)
	if err != nil {
		res.State = domain.StateExecutionFailed
		var ee *domain.ExecutionError
		if errors.As(err, &ee) {
			res.Error = ee.Message
		} else {
			res.Error = err.Error()
			err = eris.Wrap(domain.ErrExecutionFailed, err.Error())
		}
		log.Warn("generated code failed", zap.String("error", res.Error))
		return err
	}

	res.Output = exec.Stdout
	res.Truncated = exec.Truncated
	if strings.TrimSpace(exec.Stdout) == "" {
		res.State = domain.StateExecutionFailed
		res.Error = "code ran but printed nothing"
		return &domain.ExecutionError{Message: res.Error, ExitCode: exec.ExitCode}
	}
	res.State = domain.StateSucceeded
	return nil
}

func (s *Service) complete(ctx context.Context, req ai.Request, res *domain.Result) (string, error) {
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return "", limiterError(ctx, err)
		}
	}

	callCtx := ctx
	if s.Options.ModelTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.Options.ModelTimeout)
		defer cancel()
	}

	start := s.clock().Now()
	raw, err := s.Client.Complete(callCtx, req)
	elapsed := application.Since(s.clock(), start)
	res.ModelMS = elapsed.Milliseconds()
	metrics.RecordModelCall(s.Client.Provider(), elapsed, err)

	if err != nil {
		if errors.Is(err, ai.ErrModelService) {
			return "", err
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", ai.NewError(ai.ErrTimeout, err)
		}
		return "", ai.NewError(ai.ErrModelUnavailable, err)
	}
	if strings.TrimSpace(raw) == "" {
		return "", ai.NewError(ai.ErrMalformedResponse, errors.New("empty reply"))
	}
	return raw, nil
}

// limiterError classifies a failed Limiter.Wait. Wait also fails up front when
// the deadline is closer than the next token; that is a timeout, not quota.
func limiterError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return ai.NewError(ai.ErrModelUnavailable, ctx.Err())
	case ctx.Err() != nil:
		return ai.NewError(ai.ErrTimeout, ctx.Err())
	}
	if _, ok := ctx.Deadline(); ok {
		return ai.NewError(ai.ErrTimeout, err)
	}
	return ai.NewError(ai.ErrQuotaExceeded, err)
}

// execute never lets a sandbox fault escape as a panic.
func (s *Service) execute(ctx context.Context, job domain.Job) (exec domain.Execution, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.NewExecutionError(fmt.Sprintf("sandbox fault: %v", r))
		}
		metrics.RecordSandboxRun(exec.Duration, err)
	}()
	return s.Sandbox.Execute(ctx, job)
}

func (s *Service) transition(res *domain.Result, st domain.State, log *zap.Logger) {
	res.State = st
	log.Debug("question state", zap.String("state", string(st)))
}

func (s *Service) finish(ctx context.Context, res *domain.Result, err error, log *zap.Logger) {
	metrics.QuestionsTotal.WithLabelValues(outcome(res, err)).Inc()

	fields := []zap.Field{
		zap.String("state", string(res.State)),
		zap.Int64("model_ms", res.ModelMS),
		zap.Int64("exec_ms", res.ExecMS),
		zap.Int64("duration_ms", res.DurationMS),
	}
	if err != nil {
		fields = append(fields, zap.String("error", res.Error))
	}
	log.Info("question finished", fields...)

	if s.Recorder == nil {
		return
	}
	// audit tidak boleh menggagalkan jawaban
	if rerr := s.Recorder.Record(context.WithoutCancel(ctx), res); rerr != nil {
		log.Error("audit record failed", zap.Error(rerr))
	}
}

func outcome(res *domain.Result, err error) string {
	switch {
	case err == nil:
		return "succeeded"
	case errors.Is(err, domain.ErrInvalidQuestion):
		return "invalid_question"
	case errors.Is(err, ai.ErrModelService):
		return "model_service_error"
	case errors.Is(err, domain.ErrExtractionFailed):
		return "extraction_failed"
	default:
		return string(res.State)
	}
}

func (s *Service) clock() application.Clock {
	if s.Clock == nil {
		return application.SystemClock{}
	}
	return s.Clock
}
