package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bryanwahyu/insights-copilot/internal/application/anomaly"
	"github.com/bryanwahyu/insights-copilot/internal/application/insight"
	"github.com/bryanwahyu/insights-copilot/internal/domain/dataset"
	domain "github.com/bryanwahyu/insights-copilot/internal/domain/query"
	"github.com/bryanwahyu/insights-copilot/internal/middleware"
)

var (
	salesPath   string
	supportPath string
	threshold   float64
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Print daily sales and ticket trends with anomalies flagged",
	Example: `  copilot detect --sales sales.csv --support support.csv
  copilot detect --sales sales.csv --support support.csv --threshold 1.5`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		sales, support, err := loadTables()
		if err != nil {
			return err
		}
		t := cfg.Analysis.AnomalyThreshold
		if threshold > 0 {
			t = threshold
		}
		svc := insight.NewService(nil, anomaly.NewDetector(t))
		svc.Columns = insight.Columns{
			Date:        cfg.Analysis.DateColumn,
			SalesAmount: cfg.Analysis.SalesValueColumn,
			TicketID:    cfg.Analysis.TicketIDColumn,
		}
		tr, err := svc.Trends(sales, support)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), tr)
	},
}

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Generate a narrative summary of the sales and ticket trends",
	RunE: func(cmd *cobra.Command, _ []string) error {
		sales, support, err := loadTables()
		if err != nil {
			return err
		}
		client, err := newModelClient(cfg)
		if err != nil {
			return err
		}
		svc := newInsightService(cfg, client)
		tr, err := svc.Trends(sales, support)
		if err != nil {
			return err
		}
		summary, err := svc.Summarize(cmd.Context(), tr)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), summary)
		return err
	},
}

var askCmd = &cobra.Command{
	Use:     "ask [question]",
	Short:   "Answer a question by running model-written pandas code in the sandbox",
	Example: `  copilot ask --sales sales.csv --support support.csv "Which region sold the most?"`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := middleware.SanitizeString(args[0])
		if err := middleware.ValidateQuestion(text); err != nil {
			return err
		}
		sales, support, err := loadTables()
		if err != nil {
			return err
		}
		client, err := newModelClient(cfg)
		if err != nil {
			return err
		}
		runner, err := newRunner(cfg)
		if err != nil {
			return err
		}

		auditSt, err := newAudit(cmd.Context(), cfg)
		if err != nil {
			return eris.Wrap(err, "ask: audit")
		}
		defer auditSt.Close()
		var rec domain.Recorder
		if auditSt != nil {
			rec = auditSt.recorder
		}

		svc := newQueryService(cfg, client, runner, rec)
		res, err := svc.Ask(cmd.Context(), domain.Question{Text: text, Sales: sales, Support: support})
		if res != nil {
			printResult(cmd.OutOrStdout(), res)
		}
		return err
	},
}

func init() {
	for _, c := range []*cobra.Command{detectCmd, insightsCmd, askCmd} {
		c.Flags().StringVar(&salesPath, "sales", "", "path to the sales CSV export (required)")
		c.Flags().StringVar(&supportPath, "support", "", "path to the support ticket CSV export (required)")
		_ = c.MarkFlagRequired("sales")
		_ = c.MarkFlagRequired("support")
		rootCmd.AddCommand(c)
	}
	detectCmd.Flags().Float64Var(&threshold, "threshold", 0, "z-score threshold (0 = analysis.anomalyThreshold)")
}

func loadTables() (sales, support *dataset.Table, err error) {
	sales, err = readTable("sales", salesPath, dataset.SalesSchema)
	if err != nil {
		return nil, nil, err
	}
	support, err = readTable("support", supportPath, dataset.SupportSchema)
	if err != nil {
		return nil, nil, err
	}
	return sales, support, nil
}

func readTable(name, path string, sch dataset.Schema) (*dataset.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s data", name)
	}
	defer f.Close()

	t, err := dataset.ReadCSV(name, f, sch)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("dataset loaded", zap.String("name", name), zap.String("path", path), zap.Int("rows", t.Len()))
	return t, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResult shows the answer first, then code and output, then the error.
func printResult(w io.Writer, r *domain.Result) {
	if r.Answer != "" {
		fmt.Fprintf(w, "Answer: %s\n", r.Answer)
	}
	if r.Code != "" {
		fmt.Fprintf(w, "\n--- code ---\n%s\n", r.Code)
	}
	if r.Output != "" {
		fmt.Fprintf(w, "\n--- output ---\n%s", r.Output)
		if r.Truncated {
			fmt.Fprint(w, "\n[output truncated]")
		}
		fmt.Fprintln(w)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "\nError: %s\n", r.Error)
	}
}
