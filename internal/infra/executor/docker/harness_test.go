package docker

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/insights-copilot/internal/domain/query"
)

// localPython returns an interpreter that can import pandas in isolated
// mode, the way the container runs the harness.
func localPython(t *testing.T) string {
	t.Helper()
	for _, bin := range []string{"python3", "python"} {
		path, err := exec.LookPath(bin)
		if err != nil {
			continue
		}
		if exec.Command(path, "-I", "-c", "import pandas").Run() == nil {
			return path
		}
	}
	t.Skip("no local python with pandas")
	return ""
}

type harnessRun struct {
	stdout string
	stderr string
	exit   int
}

// runHarness prepares a job directory exactly as Execute does and runs the
// embedded harness against it with a local interpreter.
func runHarness(t *testing.T, code string) harnessRun {
	t.Helper()
	py := localPython(t)

	r := NewRunner(Config{WorkDir: t.TempDir()}, nil)
	dir, err := r.prepare(testJob(t, code))
	require.NoError(t, err)

	var stdout, stderr bytes.Buffer
	cmd := exec.Command(py, "-I", filepath.Join(dir, "harness.py"))
	cmd.Env = append(os.Environ(), "SANDBOX_ROOT="+dir)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	run := harnessRun{}
	if err := cmd.Run(); err != nil {
		var ee *exec.ExitError
		require.True(t, errors.As(err, &ee), err)
		run.exit = ee.ExitCode()
	}
	run.stdout, run.stderr = stdout.String(), stderr.String()
	return run
}

func TestHarness_PrintsLiteral(t *testing.T) {
	run := runHarness(t, `print("store open (weekends)")`)
	assert.Equal(t, 0, run.exit, run.stderr)
	assert.Equal(t, "store open (weekends)\n", run.stdout)
}

func TestHarness_ExceptionIsReported(t *testing.T) {
	run := runHarness(t, "print(\"before\")\nraise ValueError(\"boom\")")
	assert.Equal(t, 1, run.exit)
	assert.Equal(t, "before\n", run.stdout)
	assert.Equal(t, "ValueError: boom", lastLine(run.stderr))
}

func TestHarness_OnlyTwoBindings(t *testing.T) {
	run := runHarness(t, `print(sorted(k for k in dir() if not k.startswith("__")))
print(len(sales_df), len(support_df))
print(str(sales_df["date"].dtype).startswith("datetime64"))`)
	require.Equal(t, 0, run.exit, run.stderr)
	assert.Equal(t, "['sales_df', 'support_df']\n2 1\nTrue\n", run.stdout)
}

func TestHarness_RejectsBeforeRunning(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{"import after semicolon", "print(\"ran\"); import os", "PolicyError: import of 'os' is not allowed"},
		{"import in compound statement", "if True: import subprocess", "PolicyError: import of 'subprocess' is not allowed"},
		{"relative import", "from . import x", "PolicyError: import of '.' is not allowed"},
		{"bare builtin call", "print(getattr(sales_df, 'shape'))", "PolicyError: call to getattr() is not allowed"},
		{"dunder attribute", "print(sales_df.__class__)", "PolicyError: access to __class__ is not allowed"},
		{"syntax error", "print(", "SyntaxError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := runHarness(t, tt.code)
			assert.Equal(t, 1, run.exit)
			assert.Empty(t, run.stdout)
			assert.Contains(t, lastLine(run.stderr), tt.want)
		})
	}
}

func TestHarness_AllowedImportsAndMethods(t *testing.T) {
	run := runHarness(t, "import re\nimport numpy as np\nprint(re.compile(r'a+').pattern, int(np.sum([1, 2])))")
	require.Equal(t, 0, run.exit, run.stderr)
	assert.Equal(t, "a+ 3\n", run.stdout)
}

// TestRunner_Docker runs the real container when the sandbox image is built
// (docker build -t insights-copilot/sandbox:latest deploy/sandbox).
func TestRunner_Docker(t *testing.T) {
	image := DefaultConfig().Image
	if exec.Command("docker", "image", "inspect", image).Run() != nil {
		t.Skip("docker or image " + image + " not available")
	}
	r := NewRunner(Config{WorkDir: t.TempDir()}, nil)
	ctx := context.Background()

	out, err := r.Execute(ctx, testJob(t, `print("hello world")`))
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", out.Stdout)

	out, err = r.Execute(ctx, testJob(t, `print(sorted(k for k in dir() if not k.startswith("__")))`))
	require.NoError(t, err)
	assert.Equal(t, "['sales_df', 'support_df']\n", out.Stdout)

	_, err = r.Execute(ctx, testJob(t, `raise ValueError("boom")`))
	var ee *domain.ExecutionError
	require.True(t, errors.As(err, &ee), err)
	assert.Equal(t, "ValueError: boom", ee.Message)
	assert.Equal(t, 1, ee.ExitCode)
}
