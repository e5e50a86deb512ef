package trend

import (
	"errors"
	"time"
)

// ErrInvalidInput marks a series that cannot be scored: missing,
// non-numeric or non-finite values, or dates that are not strictly
// increasing.
var ErrInvalidInput = errors.New("invalid trend input")

// Point is one aggregated value for one calendar day.
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Series is a metric aggregated to one value per date, ordered by date.
type Series struct {
	Name   string  `json:"name"`
	Metric string  `json:"metric"`
	Points []Point `json:"points"`
}

// Values returns the metric values in date order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// ScoredPoint is a Point with its anomaly flag attached.
type ScoredPoint struct {
	Point
	ZScore    float64 `json:"z_score"`
	IsAnomaly bool    `json:"is_anomaly"`
}

// Annotated is a Series after anomaly detection.
type Annotated struct {
	Name      string        `json:"name"`
	Metric    string        `json:"metric"`
	Threshold float64       `json:"threshold"`
	Mean      float64       `json:"mean"`
	StdDev    float64       `json:"std_dev"`
	Points    []ScoredPoint `json:"points"`
}

// Anomalies returns only the flagged points, in date order.
func (a Annotated) Anomalies() []ScoredPoint {
	var out []ScoredPoint
	for _, p := range a.Points {
		if p.IsAnomaly {
			out = append(out, p)
		}
	}
	return out
}

// Tail returns the last n points.
func (a Annotated) Tail(n int) []ScoredPoint {
	if n <= 0 {
		return nil
	}
	if n > len(a.Points) {
		n = len(a.Points)
	}
	return a.Points[len(a.Points)-n:]
}
