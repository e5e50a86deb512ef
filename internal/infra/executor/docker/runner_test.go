package docker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/insights-copilot/internal/domain/dataset"
	domain "github.com/bryanwahyu/insights-copilot/internal/domain/query"
)

// fakeDocker re-runs the test binary as a stand-in for the docker CLI.
func fakeDocker(ctx context.Context, name string, args ...string) *exec.Cmd {
	cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
	cmd := exec.CommandContext(ctx, os.Args[0], cs...)
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
	return cmd
}

// TestHelperProcess is not a real test. It mimics `docker run` by reading
// code.py from the mounted directory and reacting to a few markers.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	args = args[2:] // "--", binary

	switch args[0] {
	case "version":
		fmt.Println("27.0.0")
		os.Exit(0)
	case "rm":
		os.Exit(0)
	case "run":
	default:
		fmt.Fprintln(os.Stderr, "unknown command")
		os.Exit(125)
	}

	var dir string
	for i, a := range args {
		if a == "--volume" && i+1 < len(args) {
			dir = strings.TrimSuffix(args[i+1], ":"+mountPoint+":ro")
		}
	}
	for _, f := range []string{"harness.py", "manifest.json", "data/sales_df.csv", "data/support_df.csv"} {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			fmt.Fprintf(os.Stderr, "missing %s\n", f)
			os.Exit(2)
		}
	}
	code, err := os.ReadFile(filepath.Join(dir, "code.py"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	src := string(code)
	switch {
	case strings.Contains(src, "raise"):
		fmt.Fprintln(os.Stderr, "Traceback (most recent call last):")
		fmt.Fprintln(os.Stderr, "ValueError: boom")
		os.Exit(1)
	case strings.Contains(src, "while True"):
		time.Sleep(10 * time.Second)
		os.Exit(0)
	case strings.Contains(src, "flood"):
		fmt.Print(strings.Repeat("x", 4096))
		os.Exit(0)
	case strings.HasPrefix(src, `print("`):
		fmt.Println(strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(src), `print("`), `")`))
		os.Exit(0)
	}
	os.Exit(0)
}

func newTestRunner(t *testing.T, cfg Config) *Runner {
	t.Helper()
	cfg.WorkDir = t.TempDir()
	r := NewRunner(cfg, nil)
	r.execCommand = fakeDocker
	return r
}

func testJob(t *testing.T, code string) domain.Job {
	t.Helper()
	sales, err := dataset.New("sales", []dataset.Column{
		{Name: "date", Kind: dataset.KindDate},
		{Name: "sales_amount", Kind: dataset.KindNumber},
	}, [][]string{{"2024-01-01", "100"}, {"2024-01-02", "120"}})
	require.NoError(t, err)
	support, err := dataset.New("support", []dataset.Column{
		{Name: "ticket_id", Kind: dataset.KindText},
		{Name: "date", Kind: dataset.KindDate},
	}, [][]string{{"T1", "2024-01-01"}})
	require.NoError(t, err)

	return domain.Job{
		ID:   "q-1",
		Code: code,
		Tables: map[string]*dataset.Table{
			domain.BindingSales:   sales,
			domain.BindingSupport: support,
		},
	}
}

func TestRunner_Execute_PrintsOutput(t *testing.T) {
	r := newTestRunner(t, Config{})
	out, err := r.Execute(context.Background(), testJob(t, `print("hello")`))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out.Stdout)
	assert.False(t, out.Truncated)
	assert.Equal(t, 0, out.ExitCode)
}

func TestRunner_Execute_ExceptionBecomesExecutionError(t *testing.T) {
	r := newTestRunner(t, Config{})
	_, err := r.Execute(context.Background(), testJob(t, `raise ValueError("boom")`))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExecutionFailed)

	var ee *domain.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "ValueError: boom", ee.Message)
	assert.Equal(t, 1, ee.ExitCode)

	// the next run is unaffected
	out, err := r.Execute(context.Background(), testJob(t, `print("again")`))
	require.NoError(t, err)
	assert.Equal(t, "again\n", out.Stdout)
}

func TestRunner_Execute_Timeout(t *testing.T) {
	r := newTestRunner(t, Config{Timeout: 300 * time.Millisecond})
	start := time.Now()
	_, err := r.Execute(context.Background(), testJob(t, "while True:\n    pass"))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	var ee *domain.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Contains(t, ee.Message, "timed out")
}

func TestRunner_Execute_TruncatesOutput(t *testing.T) {
	r := newTestRunner(t, Config{MaxOutputBytes: 100})
	out, err := r.Execute(context.Background(), testJob(t, "# flood\nprint(1)"))
	require.NoError(t, err)
	assert.Len(t, out.Stdout, 100)
	assert.True(t, out.Truncated)
}

func TestRunner_Execute_PolicyRejectsBeforeStart(t *testing.T) {
	r := newTestRunner(t, Config{})
	started := false
	r.execCommand = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		started = true
		return fakeDocker(ctx, name, args...)
	}

	_, err := r.Execute(context.Background(), testJob(t, "import os\nprint(os.listdir('/'))"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExecutionFailed)
	assert.Contains(t, err.Error(), "not allowed")
	assert.False(t, started)
}

func TestRunner_Execute_CleansUpWorkDir(t *testing.T) {
	r := newTestRunner(t, Config{})
	_, err := r.Execute(context.Background(), testJob(t, `print("x")`))
	require.NoError(t, err)

	entries, err := os.ReadDir(r.cfg.WorkDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunner_Execute_DockerMissing(t *testing.T) {
	r := newTestRunner(t, Config{Binary: "definitely-not-docker"})
	r.execCommand = exec.CommandContext

	_, err := r.Execute(context.Background(), testJob(t, `print("x")`))
	var ee *domain.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Contains(t, ee.Message, "sandbox unavailable")
}

func TestRunner_Execute_RejectsBadBindingName(t *testing.T) {
	r := newTestRunner(t, Config{})
	job := testJob(t, `print("x")`)
	job.Tables["Bad-Name"] = job.Tables[domain.BindingSales]

	_, err := r.Execute(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid binding name")
}

func TestRunner_DockerArgs(t *testing.T) {
	r := NewRunner(Config{MemoryMB: 256, CPUs: 0.5, PidsLimit: 32, Image: "img:1"}, nil)
	args := strings.Join(r.dockerArgs("copilot-x", "/tmp/job"), " ")

	for _, want := range []string{
		"run --rm",
		"--name copilot-x",
		"--network none",
		"--read-only",
		"--cap-drop ALL",
		"--security-opt no-new-privileges",
		"--pids-limit 32",
		"--memory 256m",
		"--memory-swap 256m",
		"--cpus 0.5",
		"--user 65534:65534",
		"--volume /tmp/job:/sandbox:ro",
		"img:1 python -I /sandbox/harness.py",
	} {
		assert.Contains(t, args, want)
	}
}

func TestRunner_HealthCheck(t *testing.T) {
	r := newTestRunner(t, Config{})
	assert.NoError(t, r.HealthCheck(context.Background()))

	r.execCommand = exec.CommandContext
	r.cfg.Binary = "definitely-not-docker"
	assert.Error(t, r.HealthCheck(context.Background()))
}

func TestLimitedBuffer(t *testing.T) {
	b := &limitedBuffer{max: 5}
	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = b.Write([]byte("defg"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "abcde", b.String())
	assert.True(t, b.truncated)
}
