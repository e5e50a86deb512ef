package prompt

import (
	"fmt"
	"strings"

	"github.com/bryanwahyu/insights-copilot/internal/domain/dataset"
	"github.com/bryanwahyu/insights-copilot/internal/domain/query"
)

// DefaultSampleRows is how many leading rows of each table the model sees.
const DefaultSampleRows = 5

// AnalystSystem is the fixed persona for ad-hoc data questions.
const AnalystSystem = "You're a helpful Python data analyst. You answer questions about business data by writing short pandas programs."

// GetQuestionPrompt builds the user message for one question. Only the first
// sampleRows rows of each table are included, so prompt size does not grow
// with the data.
func GetQuestionPrompt(sales, support *dataset.Table, question string, sampleRows int) string {
	if sampleRows <= 0 {
		sampleRows = DefaultSampleRows
	}

	var b strings.Builder
	b.WriteString("You are a data analyst AI. Answer this question using the data provided.\n\n")

	fmt.Fprintf(&b, "Sales Data Sample (available to your code as the pandas DataFrame `%s`, %d rows in total):\n", query.BindingSales, rowCount(sales))
	b.WriteString(sample(sales, sampleRows))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Support Data Sample (available to your code as the pandas DataFrame `%s`, %d rows in total):\n", query.BindingSupport, rowCount(support))
	b.WriteString(sample(support, sampleRows))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Full Question: %s\n\n", strings.TrimSpace(question))

	b.WriteString(`Rules for the code:
- Use only the two DataFrames above; they are already loaded. Do not read or write files, and do not use the network.
- Only those two names are defined. Import pandas as pd (and numpy, math, datetime or statistics if needed); no other modules.
- Print the final result with print(); only printed output is shown to the user.

Respond with one JSON object only, no markdown, in this format:
{
  "thought": "How you will approach this",
  "code": "Python code using pandas to answer it",
  "answer": "A short, plain-English answer or summary"
}`)
	return b.String()
}

func sample(t *dataset.Table, n int) string {
	if t == nil {
		return "(no data)"
	}
	return t.Head(n).Render()
}

func rowCount(t *dataset.Table) int {
	if t == nil {
		return 0
	}
	return t.Len()
}
