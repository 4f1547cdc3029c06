package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeTelegram(); err != nil {
		return err
	}
	if err := c.normalizeBeets(); err != nil {
		return err
	}
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeImporter()
	c.normalizeLogging()
	c.Language = strings.ToLower(strings.TrimSpace(c.Language))
	if c.Language == "" {
		c.Language = defaultLanguage
	}
	return nil
}

func (c *Config) normalizeTelegram() error {
	if c.Telegram.Token == "" {
		if value, ok := os.LookupEnv("TELEGRAM_BOT_TOKEN"); ok {
			c.Telegram.Token = strings.TrimSpace(value)
		}
	}
	if c.Telegram.ChatID == 0 {
		if value, ok := os.LookupEnv("TELEGRAM_CHAT_ID"); ok {
			id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil {
				return fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
			}
			c.Telegram.ChatID = id
		}
	}
	return nil
}

func (c *Config) normalizeBeets() error {
	c.Beets.Binary = strings.TrimSpace(c.Beets.Binary)
	if c.Beets.Binary == "" {
		c.Beets.Binary = defaultBinary
	}
	c.Beets.Container = strings.TrimSpace(c.Beets.Container)
	c.Beets.User = strings.TrimSpace(c.Beets.User)

	var err error
	if c.Beets.ImportDir, err = expandPath(valueOr(c.Beets.ImportDir, defaultImportDir)); err != nil {
		return fmt.Errorf("beets.import_dir: %w", err)
	}
	if strings.TrimSpace(c.Beets.LibraryDir) != "" {
		if c.Beets.LibraryDir, err = expandPath(c.Beets.LibraryDir); err != nil {
			return fmt.Errorf("beets.library_dir: %w", err)
		}
	}
	// The container-side dir is resolved by beet, not by this process, so it
	// is only trimmed, never made absolute against the local filesystem.
	c.Beets.ContainerImportDir = strings.TrimSpace(c.Beets.ContainerImportDir)

	if c.Beets.ImportTimeout <= 0 {
		c.Beets.ImportTimeout = defaultImportTimeout
	}
	if c.Beets.ConfigTimeout <= 0 {
		c.Beets.ConfigTimeout = defaultConfigTimeout
	}
	if c.Beets.CapabilityTTL <= 0 {
		c.Beets.CapabilityTTL = defaultCapabilityTTL
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StateDir, err = expandPath(valueOr(c.Paths.StateDir, defaultStateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(valueOr(c.Paths.LogDir, defaultLogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeImporter() {
	c.Importer.DiffStyle = strings.ToLower(strings.TrimSpace(c.Importer.DiffStyle))
	if c.Importer.DiffStyle == "" {
		c.Importer.DiffStyle = defaultDiffStyle
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
