// Package config loads, normalizes, and validates beetbot configuration.
//
// Configuration is TOML. Lookup order: explicit --config flag, then
// ~/.config/beetbot/config.toml, then ./beetbot.toml. The Telegram token and
// chat id may also come from the TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID
// environment variables so the bot can run in containers without a config
// file holding secrets.
package config
