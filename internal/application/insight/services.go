package insight

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bryanwahyu/insights-copilot/internal/application"
	"github.com/bryanwahyu/insights-copilot/internal/application/anomaly"
	"github.com/bryanwahyu/insights-copilot/internal/domain/ai"
	"github.com/bryanwahyu/insights-copilot/internal/domain/dataset"
	"github.com/bryanwahyu/insights-copilot/internal/domain/trend"
	"github.com/bryanwahyu/insights-copilot/internal/infra/ai/prompt"
	"github.com/bryanwahyu/insights-copilot/internal/metrics"
)

// Columns names the source columns the two trends are built from.
type Columns struct {
	Date        string
	SalesAmount string
	TicketID    string
}

func DefaultColumns() Columns {
	return Columns{Date: "date", SalesAmount: "sales_amount", TicketID: "ticket_id"}
}

// Trends is the pair of annotated series the dashboard shows.
type Trends struct {
	Sales   trend.Annotated `json:"sales"`
	Tickets trend.Annotated `json:"tickets"`
}

type Service struct {
	Client      ai.Client
	Detector    *anomaly.Detector
	Clock       application.Clock
	Columns     Columns
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	TrendRows   int
	AnomalyRows int
}

// NewService pakai default supaya gampang ditest
func NewService(client ai.Client, detector *anomaly.Detector) *Service {
	if detector == nil {
		detector = anomaly.NewDetector(anomaly.DefaultThreshold)
	}
	return &Service{
		Client:      client,
		Detector:    detector,
		Clock:       application.SystemClock{},
		Columns:     DefaultColumns(),
		Temperature: 0.7,
		MaxTokens:   800,
		Timeout:     60 * time.Second,
		TrendRows:   10,
		AnomalyRows: 5,
	}
}

// Trends aggregates daily sales totals and daily ticket counts and flags
// outliers in both.
func (s *Service) Trends(sales, support *dataset.Table) (Trends, error) {
	if sales == nil || support == nil {
		return Trends{}, eris.Wrap(trend.ErrInvalidInput, "both sales and support data are required")
	}
	salesSeries, err := trend.SumByDate(sales, s.Columns.Date, s.Columns.SalesAmount)
	if err != nil {
		return Trends{}, err
	}
	ticketSeries, err := trend.CountByDate(support, s.Columns.Date, s.Columns.TicketID)
	if err != nil {
		return Trends{}, err
	}

	var out Trends
	if out.Sales, err = s.Detector.Detect(salesSeries); err != nil {
		return Trends{}, err
	}
	if out.Tickets, err = s.Detector.Detect(ticketSeries); err != nil {
		return Trends{}, err
	}
	return out, nil
}

// Summarize asks the model for a short prose summary of the two annotated
// trends. Failures match ai.ErrModelService.
func (s *Service) Summarize(ctx context.Context, t Trends) (string, error) {
	req := ai.Request{
		System: prompt.InsightSystem,
		User: prompt.GetInsightPrompt(prompt.InsightInput{
			Sales:       t.Sales,
			Tickets:     t.Tickets,
			TrendRows:   s.TrendRows,
			AnomalyRows: s.AnomalyRows,
		}),
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
	}

	callCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	start := s.clock().Now()
	text, err := s.Client.Complete(callCtx, req)
	elapsed := application.Since(s.clock(), start)
	metrics.RecordModelCall(s.Client.Provider(), elapsed, err)

	if err != nil {
		if !errors.Is(err, ai.ErrModelService) {
			if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				err = ai.NewError(ai.ErrTimeout, err)
			} else {
				err = ai.NewError(ai.ErrModelUnavailable, err)
			}
		}
		zap.L().Warn("insight summary failed", zap.Error(err))
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ai.NewError(ai.ErrMalformedResponse, errors.New("empty summary"))
	}
	zap.L().Info("insight summary generated",
		zap.Int("sales_anomalies", len(t.Sales.Anomalies())),
		zap.Int("ticket_anomalies", len(t.Tickets.Anomalies())),
		zap.Duration("duration", elapsed),
	)
	return text, nil
}

func (s *Service) clock() application.Clock {
	if s.Clock == nil {
		return application.SystemClock{}
	}
	return s.Clock
}
