package config

import (
	"errors"
	"fmt"
	"strings"
)

var validDiffStyles = map[string]struct{}{
	"character": {},
	"word":      {},
	"smart":     {},
	"simple":    {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTelegram(); err != nil {
		return err
	}
	if err := c.validateBeets(); err != nil {
		return err
	}
	if err := c.validateImporter(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateCommands()
}

func (c *Config) validateTelegram() error {
	if c.Telegram.Token == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/beetbot/config.toml"
		}
		return fmt.Errorf("telegram.token is required. Set TELEGRAM_BOT_TOKEN env var or edit %s (create with 'beetbot config init')", defaultPath)
	}
	if c.Telegram.ChatID == 0 {
		return errors.New("telegram.chat_id is required; only this chat may drive the bot")
	}
	return nil
}

func (c *Config) validateBeets() error {
	if c.Beets.ImportDir == "" {
		return errors.New("beets.import_dir must be set")
	}
	if c.Beets.User != "" && c.Beets.Container == "" {
		return errors.New("beets.user requires beets.container")
	}
	return nil
}

func (c *Config) validateImporter() error {
	if _, ok := validDiffStyles[c.Importer.DiffStyle]; !ok {
		return fmt.Errorf("importer.diff_style: unsupported value %q (character, word, smart, simple)", c.Importer.DiffStyle)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
		return nil
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
}

func (c *Config) validateCommands() error {
	seen := map[string]struct{}{}
	for i, cmd := range c.Commands {
		name := strings.TrimSpace(cmd.Cmd)
		if name == "" || strings.ContainsAny(name, " /") {
			return fmt.Errorf("commands[%d].cmd: %q is not a valid command name", i, cmd.Cmd)
		}
		if strings.TrimSpace(cmd.Action) == "" {
			return fmt.Errorf("commands[%d].action must be set", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("commands[%d].cmd: duplicate command %q", i, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
