package beets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"beetbot/internal/logging"
	"beetbot/internal/textutil"
)

// Source identifies a metadata provider.
type Source string

const (
	SourceMusicBrainz Source = "musicbrainz"
	SourceDiscogs     Source = "discogs"
)

// ParseSource maps a string to a Source, defaulting to MusicBrainz.
func ParseSource(value string) Source {
	if strings.EqualFold(strings.TrimSpace(value), string(SourceDiscogs)) {
		return SourceDiscogs
	}
	return SourceMusicBrainz
}

// Result captures one finished invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Combined returns stdout and stderr joined, ANSI-stripped.
func (r Result) Combined() string {
	return textutil.StripANSI(r.Stdout + "\n" + r.Stderr)
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, argv []string, stdin string) (Result, error)
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Config describes how to reach the beet executable.
type Config struct {
	Binary    string
	Container string
	User      string
	// Pretend switches candidate discovery to --pretend instead of the
	// timid import.
	Pretend       bool
	ImportTimeout time.Duration
	ConfigTimeout time.Duration
}

// Client wraps beets CLI interactions.
type Client struct {
	cfg    Config
	exec   Executor
	logger *slog.Logger
}

// New constructs a beets client.
func New(cfg Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	cfg.Binary = strings.TrimSpace(cfg.Binary)
	if cfg.Binary == "" {
		return nil, errors.New("beet binary required")
	}
	if cfg.ImportTimeout <= 0 {
		cfg.ImportTimeout = 300 * time.Second
	}
	if cfg.ConfigTimeout <= 0 {
		cfg.ConfigTimeout = 10 * time.Second
	}
	client := &Client{
		cfg:    cfg,
		exec:   commandExecutor{},
		logger: logging.WithComponent(logger, "beets"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// buildArgv wraps a beet argument list in docker exec when a container is
// configured. Interactive invocations need -i so stdin reaches beet.
func (c *Client) buildArgv(beetArgs []string, interactive bool) []string {
	if c.cfg.Container == "" {
		return beetArgs
	}
	argv := []string{"docker", "exec"}
	if interactive {
		argv = append(argv, "-i")
	}
	if c.cfg.User != "" {
		argv = append(argv, "-u", c.cfg.User)
	}
	argv = append(argv, c.cfg.Container)
	return append(argv, beetArgs...)
}

func (c *Client) pretendFlag() string {
	if c.cfg.Pretend {
		return "--pretend"
	}
	return "-t"
}

// DryRun asks beet for candidates without touching the library.
func (c *Client) DryRun(ctx context.Context, path string) (Result, error) {
	args := []string{c.cfg.Binary, "-vv", "import", c.pretendFlag(), path}
	return c.run(ctx, c.buildArgv(args, false), "", c.cfg.ImportTimeout)
}

// ImportWithID imports (or previews) a release by explicit id. With apply
// set the pending match is accepted (stdin "A"); otherwise beet is aborted
// after printing the match ("B") so the output can be parsed as a preview.
func (c *Client) ImportWithID(ctx context.Context, path string, source Source, id string, apply bool) (Result, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Result{}, errors.New("release id required")
	}
	searchID := id
	if source == SourceDiscogs && !strings.Contains(id, "discogs") {
		// The discogs plugin resolves full release URLs regardless of which
		// form the operator pasted.
		searchID = "https://www.discogs.com/release/" + id
	}
	args := []string{c.cfg.Binary, "import", c.pretendFlag(), "--search-id", searchID, path}
	stdin := "B\n"
	if apply {
		stdin = "A\n"
	}
	return c.run(ctx, c.buildArgv(args, true), stdin, c.cfg.ImportTimeout)
}

// ImportSelected accepts candidate number index (1-based) from a previous
// import prompt and applies it.
func (c *Client) ImportSelected(ctx context.Context, path string, index int) (Result, error) {
	if index < 1 {
		return Result{}, fmt.Errorf("candidate index %d out of range", index)
	}
	args := []string{c.cfg.Binary, "import", path}
	stdin := strconv.Itoa(index) + "\nA\n"
	return c.run(ctx, c.buildArgv(args, true), stdin, c.cfg.ImportTimeout)
}

// ImportApply accepts the single pending match from an import prompt
// (stdin "A", apply).
func (c *Client) ImportApply(ctx context.Context, path string) (Result, error) {
	args := []string{c.cfg.Binary, "import", path}
	return c.run(ctx, c.buildArgv(args, true), "A\n", c.cfg.ImportTimeout)
}

// ImportAsIs imports the files with their current tags (stdin "U", use as-is).
func (c *Client) ImportAsIs(ctx context.Context, path string) (Result, error) {
	args := []string{c.cfg.Binary, "import", path}
	return c.run(ctx, c.buildArgv(args, true), "U\n", c.cfg.ImportTimeout)
}

// Command runs an arbitrary beet subcommand for configured passthrough
// actions.
func (c *Client) Command(ctx context.Context, args ...string) (Result, error) {
	if len(args) == 0 {
		return Result{}, errors.New("command arguments required")
	}
	argv := append([]string{c.cfg.Binary}, args...)
	return c.run(ctx, c.buildArgv(argv, false), "", c.cfg.ImportTimeout)
}

// ConfigDump returns beet's effective configuration.
func (c *Client) ConfigDump(ctx context.Context) (Result, error) {
	args := []string{c.cfg.Binary, "config"}
	return c.run(ctx, c.buildArgv(args, false), "", c.cfg.ConfigTimeout)
}

// Query lists library entries matching the given path.
func (c *Client) Query(ctx context.Context, path string) (Result, error) {
	args := []string{c.cfg.Binary, "ls", "-a", "path:" + path}
	return c.run(ctx, c.buildArgv(args, false), "", c.cfg.ImportTimeout)
}

func (c *Client) run(ctx context.Context, argv []string, stdin string, timeout time.Duration) (Result, error) {
	invocationID := uuid.NewString()
	logger := c.logger.With(slog.String(logging.FieldInvocationID, invocationID))
	logger.Debug("running beet", slog.String("argv", strings.Join(argv, " ")))

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	started := time.Now()
	result, err := c.exec.Run(runCtx, argv, stdin)
	elapsed := time.Since(started)

	switch {
	case runCtx.Err() != nil && ctx.Err() == nil:
		logger.Error("beet timed out", slog.Duration("elapsed", elapsed))
		return Result{}, fmt.Errorf("%w after %s", ErrInvocationTimeout, timeout)
	case err != nil:
		logger.Error("beet failed to run", slog.Any("error", err))
		return Result{}, fmt.Errorf("%w: %v", ErrInvocationFailure, err)
	}

	logger.Debug("beet finished",
		slog.Int("exit_code", result.ExitCode),
		slog.Duration("elapsed", elapsed),
		slog.String("stdout_tail", textutil.Tail(result.Stdout, 400)),
	)
	if result.Stderr != "" {
		logger.Debug("beet stderr", slog.String("stderr_tail", textutil.Tail(result.Stderr, 400)))
	}
	return result, nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, argv []string, stdin string) (Result, error) {
	if len(argv) == 0 {
		return Result{}, errors.New("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return result, nil
	case errors.As(err, &exitErr):
		// Nonzero exit still carries parseable output; classification is the
		// caller's job.
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	default:
		return result, err
	}
}
