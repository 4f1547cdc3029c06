package bot

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"beetbot/internal/analyzer"
	"beetbot/internal/beets"
	"beetbot/internal/importer"
	"beetbot/internal/session"
)

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	command := msg.Command()
	switch command {
	case "start":
		b.send(b.tr.T("bot.start"))
	case "list":
		b.showListing(ctx)
	case "status":
		b.showStatus(ctx)
	case "cancel":
		b.cancelActive(ctx)
	default:
		for _, custom := range b.cfg.Commands {
			if custom.Cmd == command {
				b.runCustomCommand(ctx, custom.Cmd, custom.Action)
				return
			}
		}
		b.send(b.tr.T("bot.unknown_command"))
	}
}

// handleText routes free text strictly by the active session's pending
// input; anything unexpected gets a gentle nudge back to the buttons.
func (b *Bot) handleText(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	name := b.activeTarget()
	if name == "" {
		b.send(b.tr.T("bot.unexpected_text"))
		return
	}
	sess, err := b.manager.Store().Get(ctx, name)
	if err != nil {
		b.send(b.tr.T("bot.unexpected_text"))
		return
	}

	switch sess.Pending {
	case session.PendingMusicBrainzID:
		b.evaluateManualID(ctx, name, beets.SourceMusicBrainz, text)
	case session.PendingDiscogsID:
		b.evaluateManualID(ctx, name, beets.SourceDiscogs, text)
	case session.PendingConfirmAsIs:
		if isAffirmative(text) {
			b.runFlow(ctx, name, func() (*importer.Outcome, error) {
				return b.manager.ImportAsIs(ctx, name)
			})
			return
		}
		b.send(b.tr.T("import.cancelled", "name", name))
	default:
		b.send(b.tr.T("bot.unexpected_text"))
	}
}

func isAffirmative(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "y", "yes", "ok", "si", "sì":
		return true
	default:
		return false
	}
}

func (b *Bot) handleCallback(ctx context.Context, data string) {
	action, arg := data, -1
	if head, tail, found := strings.Cut(data, ":"); found {
		if n, err := strconv.Atoi(tail); err == nil {
			action, arg = head, n
		}
	}

	switch action {
	case cbRefresh:
		b.showListing(ctx)
	case cbDirectory:
		b.showDetails(arg)
	case cbFiles:
		b.showFiles(arg)
	case cbImages:
		b.showImages(arg)
	case cbDelete:
		b.confirmDelete(arg)
	case cbDeleteYes:
		b.deleteTarget(ctx, arg)
	case cbStart:
		b.startImport(ctx, arg)
	case cbAccept:
		b.withActive(ctx, func(name string) {
			b.runFlow(ctx, name, func() (*importer.Outcome, error) {
				return b.manager.Confirm(ctx, name)
			})
		})
	case cbPick:
		b.withActive(ctx, func(name string) {
			b.runFlow(ctx, name, func() (*importer.Outcome, error) {
				return b.manager.SelectCandidate(ctx, name, arg)
			})
		})
	case cbMBID:
		b.promptManualID(ctx, beets.SourceMusicBrainz)
	case cbDiscogsID:
		b.promptManualID(ctx, beets.SourceDiscogs)
	case cbAsIs:
		b.withActive(ctx, func(name string) {
			if _, err := b.manager.AwaitAsIsConfirm(ctx, name); err != nil {
				b.reportError(name, err)
				return
			}
			keyboard := b.asIsConfirmKeyboard()
			b.sendWithKeyboard(b.tr.T("import.as_is_confirm", "name", name), &keyboard)
		})
	case cbAsIsYes:
		b.withActive(ctx, func(name string) {
			b.runFlow(ctx, name, func() (*importer.Outcome, error) {
				return b.manager.ImportAsIs(ctx, name)
			})
		})
	case cbSkip:
		b.withActive(ctx, func(name string) {
			sess, err := b.manager.Skip(ctx, name)
			if err != nil {
				b.reportError(name, err)
				return
			}
			b.setActive("")
			b.send(b.tr.T("import.skipped", "name", sess.Name))
		})
	case cbRetry:
		b.withActive(ctx, func(name string) {
			b.runFlow(ctx, name, func() (*importer.Outcome, error) {
				return b.manager.Retry(ctx, name)
			})
		})
	case cbCancelFlow:
		b.cancelActive(ctx)
	default:
		b.logger.Warn("unknown callback", slog.String("data", data))
	}
}

func (b *Bot) withActive(ctx context.Context, fn func(name string)) {
	name := b.activeTarget()
	if name == "" {
		b.send(b.tr.T("bot.unexpected_text"))
		return
	}
	fn(name)
}

func (b *Bot) showListing(ctx context.Context) {
	targets, err := analyzer.ListTargets(b.cfg.Beets.ImportDir)
	if err != nil {
		b.reportError("", err)
		return
	}
	b.cacheListing(targets)
	if len(targets) == 0 {
		b.send(b.tr.T("list.empty"))
		return
	}
	keyboard := b.listKeyboard(targets)
	b.sendWithKeyboard(b.tr.T("list.header"), &keyboard)
}

func (b *Bot) showDetails(index int) {
	target, ok := b.cachedTarget(index)
	if !ok {
		b.send(b.tr.T("directory.not_found", "name", strconv.Itoa(index)))
		return
	}
	// Re-analyze: the cached entry may be stale.
	fresh, err := analyzer.Analyze(target.Path)
	if err != nil {
		b.send(b.tr.T("directory.not_found", "name", target.Name))
		return
	}
	keyboard := b.detailsKeyboard(index, fresh)
	b.sendWithKeyboard(b.formatTargetDetails(fresh), &keyboard)
}

func (b *Bot) showFiles(index int) {
	target, ok := b.cachedTarget(index)
	if !ok {
		return
	}
	fresh, err := analyzer.Analyze(target.Path)
	if err != nil {
		b.send(b.tr.T("directory.not_found", "name", target.Name))
		return
	}
	b.send(b.formatFileList(fresh))
}

const maxImages = 10

func (b *Bot) showImages(index int) {
	target, ok := b.cachedTarget(index)
	if !ok {
		return
	}
	if len(target.Images) == 0 {
		b.send(b.tr.T("directory.images_none", "name", target.Name))
		return
	}
	images := target.Images
	if len(images) > maxImages {
		images = images[:maxImages]
	}
	for _, image := range images {
		photo := tgbotapi.NewPhoto(b.chatID, tgbotapi.FilePath(image))
		if _, err := b.api.Send(photo); err != nil {
			b.logger.Warn("send photo failed", slog.String("path", image), slog.Any("error", err))
		}
	}
}

func (b *Bot) confirmDelete(index int) {
	target, ok := b.cachedTarget(index)
	if !ok {
		return
	}
	keyboard := b.deleteConfirmKeyboard(index)
	b.sendWithKeyboard(b.tr.T("directory.delete_confirm", "name", target.Name), &keyboard)
}

func (b *Bot) deleteTarget(ctx context.Context, index int) {
	target, ok := b.cachedTarget(index)
	if !ok {
		return
	}
	if err := b.manager.Delete(ctx, target.Name); err != nil {
		b.reportError(target.Name, err)
		return
	}
	b.send(b.tr.T("directory.deleted", "name", target.Name))
	b.showListing(ctx)
}

func (b *Bot) startImport(ctx context.Context, index int) {
	target, ok := b.cachedTarget(index)
	if !ok {
		return
	}
	b.setActive(target.Name)
	b.send(b.tr.T("import.started", "name", target.Name))
	b.runFlow(ctx, target.Name, func() (*importer.Outcome, error) {
		return b.manager.Begin(ctx, target.Name)
	})
}

func (b *Bot) promptManualID(ctx context.Context, source beets.Source) {
	b.withActive(ctx, func(name string) {
		if _, err := b.manager.AwaitManualID(ctx, name, source); err != nil {
			b.reportError(name, err)
			return
		}
		key := "prompts.musicbrainz_id"
		if source == beets.SourceDiscogs {
			key = "prompts.discogs_id"
		}
		b.send(b.tr.T(key))
	})
}

func (b *Bot) evaluateManualID(ctx context.Context, name string, source beets.Source, id string) {
	b.runFlow(ctx, name, func() (*importer.Outcome, error) {
		outcome, err := b.manager.EvaluateManualID(ctx, name, source, id)
		if err != nil {
			return nil, err
		}
		if outcome.Session.Step != session.StepPreviewing {
			b.send(b.tr.T("import.id_not_found"))
		}
		return outcome, nil
	})
}

func (b *Bot) cancelActive(ctx context.Context) {
	name := b.activeTarget()
	if name == "" {
		b.send(b.tr.T("status.empty"))
		return
	}
	sess, err := b.manager.Cancel(ctx, name)
	if err != nil {
		b.reportError(name, err)
		return
	}
	b.setActive("")
	b.send(b.tr.T("import.cancelled", "name", sess.Name))
}

// runFlow executes one orchestrator operation and presents the resulting
// session state with the matching keyboard.
func (b *Bot) runFlow(ctx context.Context, name string, op func() (*importer.Outcome, error)) {
	outcome, err := op()
	if err != nil {
		b.reportError(name, err)
		return
	}
	if outcome.Session.Step.Terminal() {
		b.setActive("")
	}
	b.sendWithKeyboard(b.formatOutcome(outcome), b.flowKeyboard(ctx, outcome.Session))
}

func (b *Bot) showStatus(ctx context.Context) {
	sessions, err := b.manager.Store().Active(ctx)
	if err != nil {
		b.reportError("", err)
		return
	}
	if len(sessions) == 0 {
		b.send(b.tr.T("status.empty"))
		return
	}
	lines := []string{b.tr.T("status.header")}
	for _, sess := range sessions {
		lines = append(lines, b.tr.T("status.entry",
			"name", sess.Name,
			"step", b.stepLabel(string(sess.Step))))
	}
	b.send(strings.Join(lines, "\n"))
}

func (b *Bot) runCustomCommand(ctx context.Context, name, action string) {
	b.send(b.tr.T("custom.running", "name", name))
	args := strings.Fields(action)
	// Actions are written the way the operator would type them ("beet
	// update"); the client already prepends the binary.
	if len(args) > 0 && args[0] == "beet" {
		args = args[1:]
	}
	result, err := b.runner.Command(ctx, args...)
	if err != nil {
		b.reportError(name, err)
		return
	}
	output := strings.TrimSpace(result.Combined())
	if output == "" {
		b.send(b.tr.T("custom.empty_output", "name", name))
		return
	}
	b.sendLong(name, output)
}

// reportError maps orchestrator errors to operator-facing messages.
func (b *Bot) reportError(name string, err error) {
	b.logger.Error("operation failed",
		slog.String("target", name),
		slog.Any("error", err))
	switch {
	case errors.Is(err, importer.ErrBusy):
		b.send(b.tr.T("import.busy", "name", name))
	case errors.Is(err, session.ErrSessionConflict):
		b.send(b.tr.T("import.conflict", "name", name))
	case errors.Is(err, session.ErrNotFound):
		b.send(b.tr.T("errors.session_missing", "name", name))
	case errors.Is(err, beets.ErrInvocationTimeout):
		b.send(b.tr.T("import.timeout", "name", name))
	case errors.Is(err, beets.ErrInvocationFailure):
		b.send(b.tr.T("errors.beet_failed", "name", name))
	case errors.Is(err, beets.ErrParse):
		b.send(b.tr.T("import.parse_error", "name", name))
	default:
		b.send(b.tr.T("errors.generic", "error", err.Error()))
	}
}
