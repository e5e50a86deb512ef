package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bryanwahyu/insights-copilot/internal/application/anomaly"
	"github.com/bryanwahyu/insights-copilot/internal/application/insight"
	"github.com/bryanwahyu/insights-copilot/internal/domain/ai"
	"github.com/bryanwahyu/insights-copilot/internal/domain/dataset"
	domain "github.com/bryanwahyu/insights-copilot/internal/domain/query"
	"github.com/bryanwahyu/insights-copilot/internal/domain/trend"
	"github.com/bryanwahyu/insights-copilot/internal/middleware"
)

// Asker runs one question through the pipeline.
type Asker interface {
	Ask(ctx context.Context, q domain.Question) (*domain.Result, error)
}

// History lists recorded questions.
type History interface {
	Latest(ctx context.Context, limit int) ([]*domain.Result, error)
}

// Deps are the services behind the HTTP surface. History and Checkers are
// optional.
type Deps struct {
	Workspace *Workspace
	Questions Asker
	Insights  *insight.Service
	History   History
	Checkers  map[string]middleware.HealthChecker
	Limiter   *middleware.RateLimiter
	// TrustProxy takes the client IP from X-Forwarded-For/X-Real-IP. Only
	// enable behind a proxy that overwrites those headers.
	TrustProxy   bool
	CORSOrigins  []string
	MaxBodyBytes int64
}

type Router struct {
	deps Deps
}

func NewRouter(deps Deps) http.Handler {
	if deps.Workspace == nil {
		deps.Workspace = NewWorkspace()
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = 32 << 20
	}
	if len(deps.CORSOrigins) == 0 {
		deps.CORSOrigins = []string{"*"}
	}
	r := &Router{deps: deps}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	if deps.TrustProxy {
		mux.Use(chimw.RealIP)
	}
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.LoggingMiddleware, middleware.MetricsMiddleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	mux.Use(middleware.RateLimitMiddleware(deps.Limiter))

	mux.Get("/health", middleware.LivenessHandler)
	mux.Get("/ready", middleware.ReadinessHandler(deps.Checkers))
	mux.Handle("/metrics", promhttp.Handler())

	mux.Route("/v1", func(rt chi.Router) {
		rt.Put("/datasets/{name}", r.wrap(r.handlePutDataset))
		rt.Get("/trends/{name}", r.wrap(r.handleTrend))
		rt.Post("/detect", r.wrap(r.handleDetect))
		rt.Post("/insights", r.wrap(r.handleInsights))
		rt.Post("/ask", r.wrap(r.handleAsk))
		rt.Get("/queries", r.wrap(r.handleQueries))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func badRequest(msg string) error { return &httpError{status: http.StatusBadRequest, msg: msg} }

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		req.Body = http.MaxBytesReader(w, req.Body, r.deps.MaxBodyBytes)
		if err := h(w, req); err != nil {
			status := statusFor(err)
			if status >= 500 {
				zap.L().Error("request failed", zap.String("path", req.URL.Path), zap.Error(err))
			}
			writeJSON(w, status, map[string]string{"error": publicMessage(err)})
		}
	}
}

func statusFor(err error) int {
	var he *httpError
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &he):
		return he.status
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrInvalidQuestion),
		errors.Is(err, trend.ErrInvalidInput),
		errors.Is(err, dataset.ErrInvalidTable):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrExtractionFailed),
		errors.Is(err, domain.ErrExecutionFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ai.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, ai.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ai.ErrModelService):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// publicMessage drops eris stack context; the top message is enough for
// clients.
func publicMessage(err error) string {
	var he *httpError
	if errors.As(err, &he) {
		return he.msg
	}
	if statusFor(err) == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}

// PUT /v1/datasets/{name}
// Body: CSV with a header row.
func (r *Router) handlePutDataset(w http.ResponseWriter, req *http.Request) error {
	name := strings.ToLower(chi.URLParam(req, "name"))
	if err := middleware.ValidateDatasetName(name); err != nil {
		return badRequest(err.Error())
	}
	schema := dataset.SalesSchema
	if name == middleware.DatasetSupport {
		schema = dataset.SupportSchema
	}

	t, err := dataset.ReadCSV(name, req.Body, schema)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return err
		}
		return eris.Wrap(dataset.ErrInvalidTable, err.Error())
	}
	r.deps.Workspace.Put(name, t)
	zap.L().Info("dataset loaded", zap.String("name", name), zap.Int("rows", t.Len()))

	return writeJSON(w, http.StatusOK, map[string]any{
		"name":    name,
		"rows":    t.Len(),
		"columns": t.Columns(),
	})
}

// GET /v1/trends/{name}
func (r *Router) handleTrend(w http.ResponseWriter, req *http.Request) error {
	name := strings.ToLower(chi.URLParam(req, "name"))
	if err := middleware.ValidateDatasetName(name); err != nil {
		return badRequest(err.Error())
	}
	tr, err := r.trends()
	if err != nil {
		return err
	}
	if name == middleware.DatasetSupport {
		return writeJSON(w, http.StatusOK, tr.Tickets)
	}
	return writeJSON(w, http.StatusOK, tr.Sales)
}

type detectRequest struct {
	Name      string  `json:"name"`
	Metric    string  `json:"metric"`
	Threshold float64 `json:"threshold"`
	Points    []struct {
		Date  string   `json:"date"`
		Value *float64 `json:"value"`
	} `json:"points"`
}

// POST /v1/detect
// Body: {"name": "...", "threshold": 2, "points": [{"date": "2024-01-01", "value": 10}]}
func (r *Router) handleDetect(w http.ResponseWriter, req *http.Request) error {
	var body detectRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest("invalid JSON body: " + err.Error())
	}

	s := trend.Series{Name: middleware.SanitizeString(body.Name), Metric: middleware.SanitizeString(body.Metric)}
	for i, p := range body.Points {
		d, err := dataset.ParseDate(p.Date)
		if err != nil {
			return eris.Wrapf(trend.ErrInvalidInput, "point %d: %v", i, err)
		}
		if p.Value == nil {
			return eris.Wrapf(trend.ErrInvalidInput, "point %d: value is missing", i)
		}
		s.Points = append(s.Points, trend.Point{Date: d, Value: *p.Value})
	}

	threshold := body.Threshold
	if threshold == 0 && r.deps.Insights != nil {
		threshold = r.deps.Insights.Detector.Threshold()
	}
	out, err := anomaly.NewDetector(threshold).Detect(s)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, out)
}

// POST /v1/insights
func (r *Router) handleInsights(w http.ResponseWriter, req *http.Request) error {
	tr, err := r.trends()
	if err != nil {
		return err
	}
	summary, err := r.deps.Insights.Summarize(req.Context(), tr)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"summary": summary,
		"trends":  tr,
	})
}

// POST /v1/ask
// Body: {"question": "..."}
// The Result is returned even when the pipeline fails.
func (r *Router) handleAsk(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest("invalid JSON body: " + err.Error())
	}
	text := middleware.SanitizeString(body.Question)
	if err := middleware.ValidateQuestion(text); err != nil {
		return badRequest(err.Error())
	}
	sales, support := r.deps.Workspace.Both()
	if sales == nil || support == nil {
		return badRequest("upload both sales and support datasets first")
	}

	res, err := r.deps.Questions.Ask(req.Context(), domain.Question{Text: text, Sales: sales, Support: support})
	if err != nil && res == nil {
		return err
	}
	// a failed run is still an answer; its error travels in the body
	status := http.StatusOK
	if err != nil && !errors.Is(err, domain.ErrExecutionFailed) {
		status = statusFor(err)
	}
	return writeJSON(w, status, res)
}

// GET /v1/queries?limit=
func (r *Router) handleQueries(w http.ResponseWriter, req *http.Request) error {
	if r.deps.History == nil {
		return &httpError{status: http.StatusNotFound, msg: "audit is disabled"}
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	list, err := r.deps.History.Latest(req.Context(), middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	if list == nil {
		list = []*domain.Result{}
	}
	return writeJSON(w, http.StatusOK, list)
}

func (r *Router) trends() (insight.Trends, error) {
	if r.deps.Insights == nil {
		return insight.Trends{}, &httpError{status: http.StatusServiceUnavailable, msg: "insights are not configured"}
	}
	sales, support := r.deps.Workspace.Both()
	if sales == nil || support == nil {
		return insight.Trends{}, badRequest("upload both sales and support datasets first")
	}
	return r.deps.Insights.Trends(sales, support)
}

// writeJSON encodes before writing the status, so an unencodable value still
// reaches the client as a 500.
func writeJSON(w http.ResponseWriter, status int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return eris.Wrap(err, "encode response")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(append(body, '\n'))
	return err
}
