// Package bot is the Telegram front end: it presents the waiting
// directories, walks the single authorized operator through the import
// decision tree, and routes free-text answers by the session's pending
// input.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"beetbot/internal/analyzer"
	"beetbot/internal/beets"
	"beetbot/internal/config"
	"beetbot/internal/i18n"
	"beetbot/internal/importer"
	"beetbot/internal/logging"
)

// API is the slice of the Telegram client the bot drives.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Runner executes configured passthrough commands.
type Runner interface {
	Command(ctx context.Context, args ...string) (beets.Result, error)
}

// Bot wires Telegram updates to the import orchestrator.
type Bot struct {
	api     API
	chatID  int64
	manager *importer.Manager
	runner  Runner
	cfg     *config.Config
	tr      *i18n.Translator
	logger  *slog.Logger

	// mu guards the cached listing the index-based callbacks resolve
	// against, and the directory currently walking the decision tree.
	mu      sync.Mutex
	listing []analyzer.Target
	active  string
}

// New connects to Telegram and builds the bot.
func New(cfg *config.Config, manager *importer.Manager, runner Runner, logger *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	return NewWithAPI(api, cfg, manager, runner, logger)
}

// NewWithAPI builds the bot around an existing API client.
func NewWithAPI(api API, cfg *config.Config, manager *importer.Manager, runner Runner, logger *slog.Logger) (*Bot, error) {
	tr, err := i18n.New(cfg.Language)
	if err != nil {
		return nil, fmt.Errorf("load locale: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Bot{
		api:     api,
		chatID:  cfg.Telegram.ChatID,
		manager: manager,
		runner:  runner,
		cfg:     cfg,
		tr:      tr,
		logger:  logging.WithComponent(logger, "bot"),
	}, nil
}

// Run consumes updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 30
	updates := b.api.GetUpdatesChan(updateCfg)

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	b.logger.Info("bot started", slog.Int64("chat_id", b.chatID))
	// Each update gets its own goroutine: a beet invocation can hold its
	// busy slot for minutes, and /cancel must still be read while it runs.
	var wg sync.WaitGroup
	for update := range updates {
		update := update
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.handleUpdate(ctx, update)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		query := update.CallbackQuery
		if query.Message == nil || query.Message.Chat == nil || query.Message.Chat.ID != b.chatID {
			b.answerCallback(query.ID)
			return
		}
		b.answerCallback(query.ID)
		b.handleCallback(ctx, query.Data)
	case update.Message != nil:
		msg := update.Message
		if msg.Chat == nil {
			return
		}
		if msg.Chat.ID != b.chatID {
			b.sendTo(msg.Chat.ID, b.tr.T("bot.access_denied"))
			b.logger.Warn("rejected message from unauthorized chat", slog.Int64("chat_id", msg.Chat.ID))
			return
		}
		if msg.IsCommand() {
			b.handleCommand(ctx, msg)
			return
		}
		b.handleText(ctx, msg.Text)
	}
}

func (b *Bot) answerCallback(id string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, "")); err != nil {
		b.logger.Warn("answer callback failed", slog.Any("error", err))
	}
}

// send delivers a plain message to the authorized chat, chunked at the
// Telegram limit.
func (b *Bot) send(text string) {
	b.sendTo(b.chatID, text)
}

func (b *Bot) sendTo(chatID int64, text string) {
	for _, chunk := range chunkMessage(text) {
		if _, err := b.api.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			b.logger.Error("send failed", slog.Any("error", err))
			return
		}
	}
}

func (b *Bot) sendWithKeyboard(text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	chunks := chunkMessage(text)
	for i, chunk := range chunks {
		msg := tgbotapi.NewMessage(b.chatID, chunk)
		if keyboard != nil && i == len(chunks)-1 {
			msg.ReplyMarkup = *keyboard
		}
		if _, err := b.api.Send(msg); err != nil {
			b.logger.Error("send failed", slog.Any("error", err))
			return
		}
	}
}

// sendLong delivers command output, switching to a document upload when the
// text would need too many messages.
func (b *Bot) sendLong(name, text string) {
	if len(text) > documentThreshold {
		file := tgbotapi.FileBytes{Name: name + ".txt", Bytes: []byte(text)}
		if _, err := b.api.Send(tgbotapi.NewDocument(b.chatID, file)); err != nil {
			b.logger.Error("send document failed", slog.Any("error", err))
		}
		return
	}
	b.send(text)
}

func (b *Bot) setActive(name string) {
	b.mu.Lock()
	b.active = name
	b.mu.Unlock()
}

func (b *Bot) activeTarget() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

func (b *Bot) cacheListing(targets []analyzer.Target) {
	b.mu.Lock()
	b.listing = targets
	b.mu.Unlock()
}

func (b *Bot) cachedTarget(index int) (analyzer.Target, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if index < 0 || index >= len(b.listing) {
		return analyzer.Target{}, false
	}
	return b.listing[index], true
}
