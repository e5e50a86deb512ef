package prompt

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/bryanwahyu/insights-copilot/internal/domain/trend"
)

// InsightSystem is the persona for the trend summary.
const InsightSystem = "You are a business insights assistant."

// InsightInput is what the trend summary prompt is built from.
type InsightInput struct {
	Sales       trend.Annotated
	Tickets     trend.Annotated
	TrendRows   int
	AnomalyRows int
}

// GetInsightPrompt asks for a 3-bullet summary over the recent tail of both
// trends and their most recent flagged points.
func GetInsightPrompt(in InsightInput) string {
	trendRows := in.TrendRows
	if trendRows <= 0 {
		trendRows = 10
	}
	anomalyRows := in.AnomalyRows
	if anomalyRows <= 0 {
		anomalyRows = 5
	}

	salesFlagged := lastN(in.Sales.Anomalies(), anomalyRows)
	ticketFlagged := lastN(in.Tickets.Anomalies(), anomalyRows)

	var b strings.Builder
	b.WriteString("You are a business analyst AI. Analyze the following data trends and anomalies:\n\n")
	b.WriteString("Sales Trend:\n")
	b.WriteString(renderPoints(in.Sales.Metric, in.Sales.Tail(trendRows)))
	b.WriteString("\n\nSupport Tickets Trend:\n")
	b.WriteString(renderPoints(in.Tickets.Metric, in.Tickets.Tail(trendRows)))
	b.WriteString("\n\nFlagged Sales Anomalies:\n")
	b.WriteString(renderPoints(in.Sales.Metric, salesFlagged))
	b.WriteString("\n\nFlagged Ticket Anomalies:\n")
	b.WriteString(renderPoints(in.Tickets.Metric, ticketFlagged))
	b.WriteString("\n\nProvide a 3-bullet insight summary about unusual patterns, potential causes, and business suggestions.")
	return b.String()
}

func lastN(pts []trend.ScoredPoint, n int) []trend.ScoredPoint {
	if len(pts) > n {
		return pts[len(pts)-n:]
	}
	return pts
}

func renderPoints(metric string, pts []trend.ScoredPoint) string {
	if len(pts) == 0 {
		return "(none)"
	}
	if metric == "" {
		metric = "value"
	}
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "date\t%s\tz_score\tanomaly\t\n", metric)
	for _, p := range pts {
		fmt.Fprintf(tw, "%s\t%.2f\t%.3f\t%t\t\n", p.Date.Format("2006-01-02"), p.Value, p.ZScore, p.IsAnomaly)
	}
	_ = tw.Flush()
	return strings.TrimRight(b.String(), "\n")
}
