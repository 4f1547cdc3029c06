package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Telegram contains chat transport settings.
type Telegram struct {
	Token  string `toml:"token"`
	ChatID int64  `toml:"chat_id"`
}

// Beets contains settings for invoking the beets CLI, optionally inside a
// Docker container.
type Beets struct {
	Binary    string `toml:"binary"`
	Container string `toml:"container"`
	User      string `toml:"user"`
	// ImportDir is the downloads directory as seen by beetbot.
	ImportDir string `toml:"import_dir"`
	// ContainerImportDir is the same directory as seen by beet when it runs
	// in a container with different mounts. Empty means paths are shared.
	ContainerImportDir string `toml:"container_import_dir"`
	LibraryDir         string `toml:"library_dir"`
	// Pretend runs candidate discovery with --pretend instead of -t.
	Pretend       bool `toml:"pretend"`
	ImportTimeout int  `toml:"import_timeout"`
	ConfigTimeout int  `toml:"config_timeout"`
	CapabilityTTL int  `toml:"capability_ttl"`
}

// Importer contains import flow tuning.
type Importer struct {
	DiffStyle string `toml:"diff_style"`
}

// Paths contains local directories owned by beetbot.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Logging contains log output configuration.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// CustomCommand maps a chat command to a raw beet invocation, e.g.
// cmd = "update", action = "beet update".
type CustomCommand struct {
	Cmd    string `toml:"cmd"`
	Action string `toml:"action"`
}

// Config encapsulates all configuration values for beetbot.
type Config struct {
	Telegram Telegram        `toml:"telegram"`
	Beets    Beets           `toml:"beets"`
	Importer Importer        `toml:"importer"`
	Paths    Paths           `toml:"paths"`
	Logging  Logging         `toml:"logging"`
	Language string          `toml:"language"`
	Commands []CustomCommand `toml:"commands"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/beetbot/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("beetbot.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories beetbot owns.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StatePath returns the session database location.
func (c *Config) StatePath() string {
	return filepath.Join(c.Paths.StateDir, "sessions.db")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "beetbot.lock")
}

// LogFile returns the daemon log file location, empty when no log dir is set.
func (c *Config) LogFile() string {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "beetbot.log")
}

// ImportTimeout returns the wall-clock budget for import invocations.
func (c *Config) ImportTimeout() time.Duration {
	return time.Duration(c.Beets.ImportTimeout) * time.Second
}

// ConfigTimeout returns the wall-clock budget for configuration dumps.
func (c *Config) ConfigTimeout() time.Duration {
	return time.Duration(c.Beets.ConfigTimeout) * time.Second
}

// CapabilityWindow returns how long a capability snapshot stays fresh.
func (c *Config) CapabilityWindow() time.Duration {
	return time.Duration(c.Beets.CapabilityTTL) * time.Second
}

// BeetsPath translates a local import path into the path beet expects when
// it runs inside a container with different mounts.
func (c *Config) BeetsPath(path string) string {
	if c.Beets.ContainerImportDir == "" || c.Beets.ContainerImportDir == c.Beets.ImportDir {
		return path
	}
	rel, err := filepath.Rel(c.Beets.ImportDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	if rel == "." {
		return c.Beets.ContainerImportDir
	}
	return filepath.Join(c.Beets.ContainerImportDir, rel)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
