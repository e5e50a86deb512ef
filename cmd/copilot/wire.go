package main

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bryanwahyu/insights-copilot/internal/application"
	"github.com/bryanwahyu/insights-copilot/internal/application/anomaly"
	"github.com/bryanwahyu/insights-copilot/internal/application/audit"
	"github.com/bryanwahyu/insights-copilot/internal/application/insight"
	"github.com/bryanwahyu/insights-copilot/internal/application/query"
	"github.com/bryanwahyu/insights-copilot/internal/config"
	"github.com/bryanwahyu/insights-copilot/internal/domain/ai"
	domain "github.com/bryanwahyu/insights-copilot/internal/domain/query"
	"github.com/bryanwahyu/insights-copilot/internal/infra/ai/anthropic"
	"github.com/bryanwahyu/insights-copilot/internal/infra/ai/openai"
	mysqlp "github.com/bryanwahyu/insights-copilot/internal/infra/db/mysql"
	"github.com/bryanwahyu/insights-copilot/internal/infra/db/postgres"
	"github.com/bryanwahyu/insights-copilot/internal/infra/executor/docker"
	"github.com/bryanwahyu/insights-copilot/internal/infra/storage"
	"github.com/bryanwahyu/insights-copilot/internal/middleware"
)

func newModelClient(c *config.Config) (ai.Client, error) {
	key := c.APIKey()
	if key == "" {
		return nil, eris.Errorf("no API key for provider %q (set OPENAI_API_KEY or ANTHROPIC_API_KEY)", c.Model.Provider)
	}
	switch c.Model.Provider {
	case "anthropic":
		return anthropic.NewClient(key, c.Model.ModelID, c.Model.BaseURL), nil
	default:
		return openai.NewClient(key, c.Model.ModelID, c.Model.BaseURL), nil
	}
}

func newRunner(c *config.Config) (*docker.Runner, error) {
	policy, err := docker.NewPolicy(c.Sandbox.AllowedImports, c.Sandbox.DenyPatterns)
	if err != nil {
		return nil, err
	}
	return docker.NewRunner(docker.Config{
		Binary:         c.Sandbox.Binary,
		Image:          c.Sandbox.Image,
		Timeout:        c.Sandbox.Timeout,
		MemoryMB:       c.Sandbox.MemoryMB,
		CPUs:           c.Sandbox.CPUs,
		PidsLimit:      c.Sandbox.PidsLimit,
		MaxOutputBytes: c.Sandbox.MaxOutputBytes,
		WorkDir:        c.Sandbox.WorkDir,
	}, policy), nil
}

func newQueryService(c *config.Config, client ai.Client, sandbox domain.Sandbox, rec domain.Recorder) *query.Service {
	svc := &query.Service{
		Client:   client,
		Sandbox:  sandbox,
		Recorder: rec,
		Clock:    application.SystemClock{},
		Options: query.Options{
			SampleRows:   c.Analysis.SampleRows,
			Temperature:  c.Model.Temperature,
			MaxTokens:    c.Model.MaxTokens,
			JSON:         c.Model.JSONMode,
			ModelTimeout: c.Model.Timeout,
		},
	}
	if c.Model.CallsPerSecond > 0 {
		svc.Limiter = rate.NewLimiter(rate.Limit(c.Model.CallsPerSecond), 1)
	}
	return svc
}

func newInsightService(c *config.Config, client ai.Client) *insight.Service {
	svc := insight.NewService(client, anomaly.NewDetector(c.Analysis.AnomalyThreshold))
	svc.Columns = insight.Columns{
		Date:        c.Analysis.DateColumn,
		SalesAmount: c.Analysis.SalesValueColumn,
		TicketID:    c.Analysis.TicketIDColumn,
	}
	svc.Temperature = c.Model.InsightTemperature
	svc.Timeout = c.Model.Timeout
	svc.TrendRows = c.Analysis.InsightRows
	svc.AnomalyRows = c.Analysis.InsightAnomalyRows
	return svc
}

// auditStack is the optional audit trail plus what /ready should check.
type auditStack struct {
	recorder *audit.Recorder
	checkers map[string]middleware.HealthChecker
	db       *sql.DB
}

func (a *auditStack) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// newAudit connects the configured sinks. It returns nil when auditing is
// off.
func newAudit(ctx context.Context, c *config.Config) (*auditStack, error) {
	if !c.AuditEnabled() {
		return nil, nil
	}
	st := &auditStack{
		recorder: &audit.Recorder{Prefix: "queries"},
		checkers: map[string]middleware.HealthChecker{},
	}

	switch c.Audit.Driver {
	case "mysql":
		db, err := mysqlp.Connect(ctx, c.MySQLDSN())
		if err != nil {
			return nil, err
		}
		repo := mysqlp.NewQueryRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			return nil, errors.Join(err, db.Close())
		}
		st.db, st.recorder.Repo = db, repo
	case "postgres":
		db, err := postgres.Connect(ctx, c.PostgresDSN())
		if err != nil {
			return nil, err
		}
		repo := postgres.NewQueryRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			return nil, errors.Join(err, db.Close())
		}
		st.db, st.recorder.Repo = db, repo
	}
	if st.db != nil {
		st.checkers["database"] = &middleware.DatabaseHealthChecker{DB: st.db}
	}

	if m := c.Audit.Minio; m.Enabled {
		store, err := storage.New(ctx, m.Endpoint, m.Region, m.BucketName, m.AccessKey, m.SecretKey, m.UseSSL)
		if err != nil {
			return nil, errors.Join(err, st.Close())
		}
		st.recorder.Artifacts = store
		st.checkers["storage"] = store
	}

	zap.L().Info("audit enabled",
		zap.String("driver", c.Audit.Driver),
		zap.Bool("artifacts", c.Audit.Minio.Enabled),
	)
	return st, nil
}
