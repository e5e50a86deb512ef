package trend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/insights-copilot/internal/domain/dataset"
)

func day(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

func TestSumByDate(t *testing.T) {
	tbl, err := dataset.New("sales", []dataset.Column{
		{Name: "date", Kind: dataset.KindDate},
		{Name: "sales_amount", Kind: dataset.KindNumber},
	}, [][]string{
		{"2024-01-03", "10"},
		{"2024-01-01", "5"},
		{"2024-01-01 09:30:00", "2.5"},
		{"2024-01-02", "0"},
	})
	require.NoError(t, err)

	s, err := SumByDate(tbl, "date", "sales_amount")
	require.NoError(t, err)
	assert.Equal(t, "sales", s.Name)
	assert.Equal(t, "sales_amount", s.Metric)
	assert.Equal(t, []Point{
		{Date: day(1), Value: 7.5},
		{Date: day(2), Value: 0},
		{Date: day(3), Value: 10},
	}, s.Points)
	assert.Equal(t, []float64{7.5, 0, 10}, s.Values())
}

func TestSumByDate_BadValue(t *testing.T) {
	tbl, err := dataset.New("sales", []dataset.Column{{Name: "date"}, {Name: "amount"}}, [][]string{
		{"2024-01-01", "ten"},
	})
	require.NoError(t, err)

	_, err = SumByDate(tbl, "date", "amount")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = SumByDate(tbl, "date", "missing")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCountByDate(t *testing.T) {
	tbl, err := dataset.New("support", []dataset.Column{{Name: "ticket_id"}, {Name: "date"}}, [][]string{
		{"T1", "2024-01-02"},
		{"T2", "2024-01-01"},
		{"T3", "2024-01-02"},
		{"", "2024-01-02"},
	})
	require.NoError(t, err)

	s, err := CountByDate(tbl, "date", "ticket_id")
	require.NoError(t, err)
	assert.Equal(t, "ticket_id_count", s.Metric)
	assert.Equal(t, []Point{{Date: day(1), Value: 1}, {Date: day(2), Value: 2}}, s.Points)
}

func TestAnnotated_TailAndAnomalies(t *testing.T) {
	a := Annotated{Points: []ScoredPoint{
		{Point: Point{Date: day(1), Value: 1}},
		{Point: Point{Date: day(2), Value: 9}, IsAnomaly: true},
		{Point: Point{Date: day(3), Value: 2}},
	}}
	assert.Len(t, a.Tail(2), 2)
	assert.Equal(t, day(2), a.Tail(2)[0].Date)
	assert.Len(t, a.Tail(10), 3)
	assert.Nil(t, a.Tail(0))
	require.Len(t, a.Anomalies(), 1)
	assert.Equal(t, 9.0, a.Anomalies()[0].Value)
}
