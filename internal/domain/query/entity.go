package query

import (
	"time"

	"github.com/bryanwahyu/insights-copilot/internal/domain/dataset"
)

// QuestionID identifies one question/answer cycle
type QuestionID string

// State enum of the question pipeline
type State string

const (
	StateIdle             State = "idle"
	StatePromptBuilt      State = "prompt_built"
	StateResponseReceived State = "response_received"
	StateCodeExtracted    State = "code_extracted"
	StateExecuted         State = "executed"
	StateSucceeded        State = "succeeded"
	StateExecutionFailed  State = "execution_failed"
	StateExtractionFailed State = "extraction_failed"
)

// Terminal reports whether s ends a cycle.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateExecutionFailed, StateExtractionFailed:
		return true
	}
	return false
}

// Binding names visible to generated code.
const (
	BindingSales   = "sales_df"
	BindingSupport = "support_df"
)

// Question is a user question plus the two tables it is asked against.
type Question struct {
	Text    string
	Sales   *dataset.Table
	Support *dataset.Table
}

// ModelResponse is the structured reply requested from the model.
type ModelResponse struct {
	Thought string `json:"thought"`
	Code    string `json:"code"`
	Answer  string `json:"answer"`
}

// Job is one sandboxed execution: code plus the tables bound by name.
type Job struct {
	ID     QuestionID
	Code   string
	Tables map[string]*dataset.Table
}

// Execution is what the sandbox reports back.
type Execution struct {
	Stdout    string
	Truncated bool
	ExitCode  int
	Duration  time.Duration
}

// Result value object, always returned from Ask so the caller can show the
// model's answer and code next to the output or the error.
type Result struct {
	ID         QuestionID `json:"id"`
	Question   string     `json:"question"`
	State      State      `json:"state"`
	Thought    string     `json:"thought,omitempty"`
	Code       string     `json:"code,omitempty"`
	Answer     string     `json:"answer,omitempty"`
	Raw        string     `json:"raw,omitempty"`
	Output     string     `json:"output,omitempty"`
	Truncated  bool       `json:"truncated,omitempty"`
	Error      string     `json:"error,omitempty"`
	Provider   string     `json:"provider,omitempty"`
	AskedAt    time.Time  `json:"asked_at"`
	ModelMS    int64      `json:"model_ms"`
	ExecMS     int64      `json:"exec_ms"`
	DurationMS int64      `json:"duration_ms"`
}
