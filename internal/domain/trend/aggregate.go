package trend

import (
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/bryanwahyu/insights-copilot/internal/domain/dataset"
)

// SumByDate totals valueCol per distinct day of dateCol.
func SumByDate(t *dataset.Table, dateCol, valueCol string) (Series, error) {
	totals := make(map[time.Time]float64)
	for row := 0; row < t.Len(); row++ {
		d, err := t.Date(row, dateCol)
		if err != nil {
			return Series{}, eris.Wrap(ErrInvalidInput, err.Error())
		}
		v, err := t.Float(row, valueCol)
		if err != nil {
			return Series{}, eris.Wrap(ErrInvalidInput, err.Error())
		}
		totals[d] += v
	}
	return fromMap(t.Name(), valueCol, totals), nil
}

// CountByDate counts rows with a non-empty idCol per distinct day.
func CountByDate(t *dataset.Table, dateCol, idCol string) (Series, error) {
	counts := make(map[time.Time]float64)
	for row := 0; row < t.Len(); row++ {
		d, err := t.Date(row, dateCol)
		if err != nil {
			return Series{}, eris.Wrap(ErrInvalidInput, err.Error())
		}
		id, err := t.Value(row, idCol)
		if err != nil {
			return Series{}, eris.Wrap(ErrInvalidInput, err.Error())
		}
		if id == "" {
			continue
		}
		counts[d]++
	}
	return fromMap(t.Name(), idCol+"_count", counts), nil
}

func fromMap(name, metric string, m map[time.Time]float64) Series {
	pts := make([]Point, 0, len(m))
	for d, v := range m {
		pts = append(pts, Point{Date: d, Value: v})
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i].Date.Before(pts[j].Date) })
	return Series{Name: name, Metric: metric, Points: pts}
}
