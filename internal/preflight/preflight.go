// Package preflight provides readiness checks for the external pieces
// beetbot depends on: the import and state directories, the docker or
// beet binary, the beets CLI itself, and the Telegram API.
//
// The daemon runs the local checks once at startup and logs failures
// without refusing to start; the CLI "beetbot check" command runs the
// full set, including the network checks, and renders them as a table.
package preflight

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sys/unix"

	"beetbot/internal/beets"
	"beetbot/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Runner executes a beet subcommand. *beets.Client satisfies it.
type Runner interface {
	Command(ctx context.Context, args ...string) (beets.Result, error)
}

// RunAll executes the local preflight checks for the given config. The
// beets check only runs when a runner is provided; the Telegram network
// check is left to the CLI path, which calls CheckTelegram itself.
func RunAll(ctx context.Context, cfg *config.Config, runner Runner) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Import directory", cfg.Beets.ImportDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}

	if strings.TrimSpace(cfg.Beets.Container) != "" {
		results = append(results, CheckBinary("Docker", "docker", "runs beet inside the configured container"))
	} else {
		results = append(results, CheckBinary("Beets", cfg.Beets.Binary, "the beets CLI"))
	}

	if runner != nil {
		results = append(results, CheckBeets(ctx, runner))
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		results = append(results, Result{Name: "Telegram", Detail: "bot token missing"})
	} else if cfg.Telegram.ChatID == 0 {
		results = append(results, Result{Name: "Telegram", Detail: "chat_id missing"})
	} else {
		results = append(results, Result{Name: "Telegram", Passed: true, Detail: "configured"})
	}

	return results
}

// CheckDirectoryAccess verifies that the directory exists and is
// readable and writable.
func CheckDirectoryAccess(name, path string) Result {
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckBinary verifies that a required executable is on PATH.
func CheckBinary(name, command, description string) Result {
	command = strings.TrimSpace(command)
	if command == "" {
		return Result{Name: name, Detail: "command not configured"}
	}
	if _, err := exec.LookPath(command); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("binary %q not found (%s)", command, description)}
	}
	return Result{Name: name, Passed: true, Detail: command}
}

// CheckBeets runs "beet version" through the configured runner to verify
// that the CLI answers, inside the container when one is configured.
func CheckBeets(ctx context.Context, runner Runner) Result {
	const name = "Beets CLI"

	checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	result, err := runner.Command(checkCtx, "version")
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	line := firstLine(result.Combined())
	if line == "" {
		line = "no output"
	}
	if result.ExitCode != 0 {
		return Result{Name: name, Detail: fmt.Sprintf("exit %d: %s", result.ExitCode, line)}
	}
	return Result{Name: name, Passed: true, Detail: line}
}

// CheckTelegram verifies the bot token against the Telegram API.
func CheckTelegram(token string) Result {
	const name = "Telegram"

	if strings.TrimSpace(token) == "" {
		return Result{Name: name, Detail: "bot token missing"}
	}
	client := &http.Client{Timeout: 10 * time.Second}
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("auth failed: %v", err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("authorized as @%s", api.Self.UserName)}
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
