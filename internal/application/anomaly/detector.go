package anomaly

import (
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bryanwahyu/insights-copilot/internal/domain/trend"
	"github.com/bryanwahyu/insights-copilot/internal/metrics"
)

// DefaultThreshold flags values more than 2 std devs from the series mean.
const DefaultThreshold = 2.0

// Detector flags points of a trend series whose z-score, computed over the
// whole series, exceeds a fixed threshold.
type Detector struct {
	zScoreThreshold float64
}

// NewDetector returns a Detector. A non-positive threshold falls back to
// DefaultThreshold.
func NewDetector(threshold float64) *Detector {
	if threshold <= 0 || math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		threshold = DefaultThreshold
	}
	return &Detector{zScoreThreshold: threshold}
}

func (d *Detector) Threshold() float64 { return d.zScoreThreshold }

// Detect scores every point of s and records the flagged count.
func (d *Detector) Detect(s trend.Series) (trend.Annotated, error) {
	out, err := Detect(s, d.zScoreThreshold)
	if err != nil {
		return trend.Annotated{}, err
	}
	flagged := len(out.Anomalies())
	metrics.AnomaliesFlagged.WithLabelValues(seriesLabel(s.Name)).Set(float64(flagged))
	zap.L().Debug("trend scored",
		zap.String("series", s.Name),
		zap.Int("points", len(out.Points)),
		zap.Float64("mean", out.Mean),
		zap.Float64("std_dev", out.StdDev),
		zap.Int("anomalies", flagged),
	)
	return out, nil
}

// Detect annotates a copy of s with z-scores over the entire series
// (population mean and standard deviation). Values are validated before any
// scoring. Series with fewer than two points, or with zero spread, get zero
// scores and no anomalies.
func Detect(s trend.Series, threshold float64) (trend.Annotated, error) {
	if err := validate(s); err != nil {
		return trend.Annotated{}, err
	}

	values := s.Values()
	out := trend.Annotated{
		Name:      s.Name,
		Metric:    s.Metric,
		Threshold: threshold,
		Points:    make([]trend.ScoredPoint, len(s.Points)),
	}

	var mean, stdDev float64
	switch {
	case len(values) == 0:
	case constant(values):
		// exact zero spread; summing can leave rounding noise in the mean
		mean = values[0]
		out.Mean = mean
	default:
		// squares of values near MaxFloat64 overflow; score in units of max|v|
		scale := 1.0
		if m := maxAbs(values); m > scaleAbove {
			scale = m
			for i := range values {
				values[i] /= scale
			}
		}
		mean = calculateMean(values)
		stdDev = calculatePopulationStdDev(values, mean)
		out.Mean, out.StdDev = mean*scale, stdDev*scale
	}
	if !finite(out.Mean) || !finite(out.StdDev) {
		return trend.Annotated{}, eris.Wrapf(trend.ErrInvalidInput, "%s: mean or spread is not finite", s.Name)
	}

	for i, p := range s.Points {
		z := 0.0
		if len(values) >= 2 {
			z = CalculateZScore(values[i], mean, stdDev)
		}
		out.Points[i] = trend.ScoredPoint{
			Point:     p,
			ZScore:    z,
			IsAnomaly: IsOutlier(z, threshold),
		}
	}
	return out, nil
}

func validate(s trend.Series) error {
	for i, p := range s.Points {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return eris.Wrapf(trend.ErrInvalidInput, "%s: point %d has non-finite value %v", s.Name, i, p.Value)
		}
		if i > 0 && !p.Date.After(s.Points[i-1].Date) {
			return eris.Wrapf(trend.ErrInvalidInput, "%s: point %d date %s is not after %s",
				s.Name, i, p.Date.Format("2006-01-02"), s.Points[i-1].Date.Format("2006-01-02"))
		}
	}
	return nil
}

// CalculateZScore calculates the Z-score for a value given mean and standard deviation
func CalculateZScore(value, mean, stdDev float64) float64 {
	if stdDev == 0 {
		return 0
	}
	return (value - mean) / stdDev
}

// IsOutlier reports whether |z| is strictly above threshold.
func IsOutlier(zScore, threshold float64) bool {
	return math.Abs(zScore) > threshold
}

// Severity buckets a z-score for display. It never changes whether a point
// is flagged.
func Severity(zScore, threshold float64) string {
	abs := math.Abs(zScore)
	if abs > threshold {
		return "high"
	} else if abs > 0.75*threshold {
		return "medium"
	}
	return "low"
}

// scaleAbove keeps squared deviations well inside float64 range.
const scaleAbove = 1e150

// seriesLabel bounds the metric label set; caller-named series share "adhoc".
func seriesLabel(name string) string {
	switch name {
	case "sales", "support":
		return name
	}
	return "adhoc"
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func maxAbs(values []float64) float64 {
	m := 0.0
	for _, v := range values {
		m = math.Max(m, math.Abs(v))
	}
	return m
}

func constant(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}

func calculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// calculatePopulationStdDev divides by n, not n-1.
func calculatePopulationStdDev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}
