package docker

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bryanwahyu/insights-copilot/internal/domain/dataset"
	domain "github.com/bryanwahyu/insights-copilot/internal/domain/query"
)

//go:embed harness.py
var harness []byte

const mountPoint = "/sandbox"

var bindingNameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Config sets the quotas of every run.
type Config struct {
	Binary         string
	Image          string
	Python         string
	Timeout        time.Duration
	MemoryMB       int
	CPUs           float64
	PidsLimit      int
	TmpSizeMB      int
	MaxOutputBytes int
	WorkDir        string
}

// DefaultConfig returns conservative quotas.
func DefaultConfig() Config {
	return Config{
		Binary:         "docker",
		Image:          "insights-copilot/sandbox:latest",
		Python:         "python",
		Timeout:        20 * time.Second,
		MemoryMB:       512,
		CPUs:           1,
		PidsLimit:      64,
		TmpSizeMB:      16,
		MaxOutputBytes: 64 * 1024,
		WorkDir:        filepath.Join(".", "temp"),
	}
}

// Runner executes generated code in a throwaway container: no network,
// read-only root, dropped capabilities, unprivileged user, CPU/memory/pid
// quotas and a wall-clock deadline. Data reaches the code only through the
// CSV files of the bound tables.
type Runner struct {
	cfg    Config
	policy *Policy

	// dipakai test untuk mengganti binary docker
	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
}

func NewRunner(cfg Config, policy *Policy) *Runner {
	def := DefaultConfig()
	if cfg.Binary == "" {
		cfg.Binary = def.Binary
	}
	if cfg.Image == "" {
		cfg.Image = def.Image
	}
	if cfg.Python == "" {
		cfg.Python = def.Python
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MemoryMB <= 0 {
		cfg.MemoryMB = def.MemoryMB
	}
	if cfg.CPUs <= 0 {
		cfg.CPUs = def.CPUs
	}
	if cfg.PidsLimit <= 0 {
		cfg.PidsLimit = def.PidsLimit
	}
	if cfg.TmpSizeMB <= 0 {
		cfg.TmpSizeMB = def.TmpSizeMB
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = def.MaxOutputBytes
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = def.WorkDir
	}
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Runner{cfg: cfg, policy: policy, execCommand: exec.CommandContext}
}

type manifest struct {
	Bindings       map[string]binding `json:"bindings"`
	AllowedImports []string           `json:"allowed_imports"`
}

type binding struct {
	File        string   `json:"file"`
	DateColumns []string `json:"date_columns"`
}

// Execute implements domain.Sandbox.
func (r *Runner) Execute(ctx context.Context, job domain.Job) (domain.Execution, error) {
	if err := r.policy.Check(job.Code); err != nil {
		return domain.Execution{}, domain.NewExecutionError("rejected by sandbox policy: " + err.Error())
	}

	dir, err := r.prepare(job)
	if dir != "" {
		defer os.RemoveAll(dir)
	}
	if err != nil {
		zap.L().Error("sandbox prepare failed", zap.Error(err))
		return domain.Execution{}, domain.NewExecutionError("sandbox unavailable: " + err.Error())
	}

	name := "copilot-" + uuid.New().String()
	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	stdout := &limitedBuffer{max: r.cfg.MaxOutputBytes}
	stderr := &limitedBuffer{max: 16 * 1024}
	cmd := r.execCommand(runCtx, r.cfg.Binary, r.dockerArgs(name, dir)...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	runErr := cmd.Run()
	out := domain.Execution{
		Stdout:    stdout.String(),
		Truncated: stdout.truncated,
		Duration:  time.Since(start),
	}

	log := zap.L().With(zap.String("question_id", string(job.ID)), zap.String("container", name))

	if ctxErr := runCtx.Err(); ctxErr != nil {
		r.kill(name)
		out.ExitCode = -1
		if errors.Is(ctxErr, context.DeadlineExceeded) && ctx.Err() == nil {
			log.Warn("sandbox timed out", zap.Duration("timeout", r.cfg.Timeout))
			return out, domain.NewExecutionError(fmt.Sprintf("timed out after %s", r.cfg.Timeout))
		}
		return out, domain.NewExecutionError("cancelled: " + ctxErr.Error())
	}

	if runErr != nil {
		var ee *exec.ExitError
		if !errors.As(runErr, &ee) {
			log.Error("sandbox could not start", zap.Error(runErr))
			return out, domain.NewExecutionError("sandbox unavailable: " + runErr.Error())
		}
		out.ExitCode = ee.ExitCode()
		msg := lastLine(stderr.String())
		switch out.ExitCode {
		case 125, 126, 127:
			// docker sendiri yang gagal, bukan kode user
			msg = "sandbox unavailable: " + orDefault(msg, "docker exit "+strconv.Itoa(out.ExitCode))
		case 137:
			msg = orDefault(msg, "killed: memory limit exceeded")
		default:
			msg = orDefault(msg, "exit status "+strconv.Itoa(out.ExitCode))
		}
		log.Info("sandbox run failed", zap.Int("exit_code", out.ExitCode), zap.String("error", msg))
		return out, &domain.ExecutionError{Message: msg, ExitCode: out.ExitCode}
	}

	log.Info("sandbox run finished",
		zap.Duration("duration", out.Duration),
		zap.Int("stdout_bytes", len(out.Stdout)),
		zap.Bool("truncated", out.Truncated),
	)
	return out, nil
}

// prepare writes harness, code, manifest and one CSV per binding into a
// fresh directory that is mounted read-only into the container.
func (r *Runner) prepare(job domain.Job) (string, error) {
	if err := os.MkdirAll(r.cfg.WorkDir, 0o755); err != nil {
		return "", eris.Wrap(err, "sandbox: create work dir")
	}
	dir, err := os.MkdirTemp(r.cfg.WorkDir, "job-")
	if err != nil {
		return "", eris.Wrap(err, "sandbox: create job dir")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir, eris.Wrap(err, "sandbox: resolve job dir")
	}
	// container jalan sebagai nobody
	if err := os.Chmod(abs, 0o755); err != nil {
		return abs, eris.Wrap(err, "sandbox: chmod job dir")
	}
	if err := os.Mkdir(filepath.Join(abs, "data"), 0o755); err != nil {
		return abs, eris.Wrap(err, "sandbox: create data dir")
	}

	m := manifest{
		Bindings:       make(map[string]binding, len(job.Tables)),
		AllowedImports: r.policy.AllowedImports(),
	}
	for name, t := range job.Tables {
		if !bindingNameRe.MatchString(name) {
			return abs, eris.Errorf("sandbox: invalid binding name %q", name)
		}
		if t == nil {
			return abs, eris.Errorf("sandbox: binding %q has no table", name)
		}
		rel := filepath.ToSlash(filepath.Join("data", name+".csv"))
		var buf bytes.Buffer
		if err := t.WriteCSV(&buf); err != nil {
			return abs, err
		}
		if err := os.WriteFile(filepath.Join(abs, rel), buf.Bytes(), 0o644); err != nil {
			return abs, eris.Wrapf(err, "sandbox: write %s", rel)
		}
		b := binding{File: rel, DateColumns: []string{}}
		for _, c := range t.Columns() {
			if c.Kind == dataset.KindDate {
				b.DateColumns = append(b.DateColumns, c.Name)
			}
		}
		m.Bindings[name] = b
	}

	mb, err := json.Marshal(m)
	if err != nil {
		return abs, eris.Wrap(err, "sandbox: marshal manifest")
	}
	files := map[string][]byte{
		"manifest.json": mb,
		"harness.py":    harness,
		"code.py":       []byte(job.Code),
	}
	for fn, data := range files {
		if err := os.WriteFile(filepath.Join(abs, fn), data, 0o644); err != nil {
			return abs, eris.Wrapf(err, "sandbox: write %s", fn)
		}
	}
	return abs, nil
}

func (r *Runner) dockerArgs(name, dir string) []string {
	mem := fmt.Sprintf("%dm", r.cfg.MemoryMB)
	return []string{
		"run", "--rm",
		"--name", name,
		"--network", "none",
		"--read-only",
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges",
		"--pids-limit", strconv.Itoa(r.cfg.PidsLimit),
		"--memory", mem,
		"--memory-swap", mem,
		"--cpus", strconv.FormatFloat(r.cfg.CPUs, 'f', -1, 64),
		"--user", "65534:65534",
		"--tmpfs", fmt.Sprintf("/tmp:rw,noexec,nosuid,size=%dm", r.cfg.TmpSizeMB),
		"--env", "PYTHONDONTWRITEBYTECODE=1",
		"--volume", dir + ":" + mountPoint + ":ro",
		r.cfg.Image,
		r.cfg.Python, "-I", mountPoint + "/harness.py",
	}
}

// kill removes a container left behind by a cancelled run.
func (r *Runner) kill(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if out, err := r.execCommand(ctx, r.cfg.Binary, "rm", "-f", name).CombinedOutput(); err != nil {
		zap.L().Warn("sandbox cleanup failed",
			zap.String("container", name),
			zap.Error(err),
			zap.String("output", strings.TrimSpace(string(out))),
		)
	}
}

// HealthCheck reports whether the docker daemon answers.
func (r *Runner) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := r.execCommand(ctx, r.cfg.Binary, "version", "--format", "{{.Server.Version}}").CombinedOutput()
	if err != nil {
		return eris.Wrapf(err, "docker version: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

// Check implements middleware.HealthChecker.
func (r *Runner) Check(ctx context.Context) error { return r.HealthCheck(ctx) }

// limitedBuffer keeps the first max bytes and drops the rest.
type limitedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	room := l.max - l.buf.Len()
	if room < len(p) {
		if room > 0 {
			l.buf.Write(p[:room])
		}
		l.truncated = true
		return len(p), nil
	}
	return l.buf.Write(p)
}

func (l *limitedBuffer) String() string { return l.buf.String() }

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
