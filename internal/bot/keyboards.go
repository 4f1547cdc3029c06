package bot

import (
	"context"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"beetbot/internal/analyzer"
	"beetbot/internal/session"
	"beetbot/internal/textutil"
)

// Callback data stays index- and action-based so it fits Telegram's 64-byte
// limit regardless of directory names.
const (
	cbRefresh    = "refresh"
	cbDirectory  = "dir"
	cbFiles      = "files"
	cbImages     = "imgs"
	cbDelete     = "del"
	cbDeleteYes  = "delyes"
	cbStart      = "start"
	cbAccept     = "accept"
	cbPick       = "pick"
	cbMBID       = "mbid"
	cbDiscogsID  = "dgid"
	cbAsIs       = "asis"
	cbAsIsYes    = "asisyes"
	cbSkip       = "skip"
	cbRetry      = "retry"
	cbCancelFlow = "cancel"
)

func callbackData(action string, arg int) string {
	if arg < 0 {
		return action
	}
	return action + ":" + strconv.Itoa(arg)
}

func button(label, action string, arg int) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(label, callbackData(action, arg))
}

// listKeyboard shows one row per waiting directory plus a refresh row.
func (b *Bot) listKeyboard(targets []analyzer.Target) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(targets)+1)
	for i, target := range targets {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			button(b.formatTargetEntry(target), cbDirectory, i),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		button(b.tr.T("buttons.refresh"), cbRefresh, -1),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// detailsKeyboard mirrors the directory drill-down: inventory, search links,
// delete with confirmation, and the import entry point.
func (b *Bot) detailsKeyboard(index int, target analyzer.Target) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	inventory := []tgbotapi.InlineKeyboardButton{
		button(b.tr.T("buttons.view_files"), cbFiles, index),
	}
	if len(target.Images) > 0 {
		inventory = append(inventory, button(b.tr.T("buttons.view_images"), cbImages, index))
	}
	rows = append(rows, inventory)

	mbURL, discogsURL := searchURLs(analyzer.SearchQuery(target.Path))
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonURL("MusicBrainz", mbURL),
		tgbotapi.NewInlineKeyboardButtonURL("Discogs", discogsURL),
	))

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		button(b.tr.T("buttons.delete"), cbDelete, index),
	))
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		button(b.tr.T("buttons.back"), cbRefresh, -1),
		button(b.tr.T("buttons.start_import"), cbStart, index),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) deleteConfirmKeyboard(index int) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			button(b.tr.T("buttons.confirm_delete"), cbDeleteYes, index),
		),
		tgbotapi.NewInlineKeyboardRow(
			button(b.tr.T("buttons.cancel"), cbDirectory, index),
		),
	)
}

// flowKeyboard offers the decision-tree actions for the session's step.
func (b *Bot) flowKeyboard(ctx context.Context, sess *session.Session) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	switch sess.Step {
	case session.StepSingleMatch, session.StepPreviewing:
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			button(b.tr.T("buttons.accept"), cbAccept, -1),
		))
	case session.StepMultiMatch:
		for i, cand := range sess.Candidates {
			if i >= 5 {
				break
			}
			label := b.tr.T("buttons.candidate",
				"index", i+1,
				"info", textutil.Truncate(cand.Info, 30))
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(button(label, cbPick, i)))
		}
	case session.StepConfirmed, session.StepCompleted, session.StepFailed,
		session.StepCancelled, session.StepSkipped:
		if sess.Step == session.StepFailed {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				button(b.tr.T("buttons.retry"), cbRetry, -1),
			))
		}
		if len(rows) == 0 {
			return nil
		}
		markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
		return &markup
	}

	snapshot := b.manager.Capabilities().Current(ctx)
	idRow := []tgbotapi.InlineKeyboardButton{
		button(b.tr.T("buttons.musicbrainz_id"), cbMBID, -1),
	}
	if snapshot.HasDiscogs() {
		idRow = append(idRow, button(b.tr.T("buttons.discogs_id"), cbDiscogsID, -1))
	}
	rows = append(rows, idRow)

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		button(b.tr.T("buttons.as_is"), cbAsIs, -1),
	))
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		button(b.tr.T("buttons.skip"), cbSkip, -1),
		button(b.tr.T("buttons.retry"), cbRetry, -1),
	))
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		button(b.tr.T("buttons.cancel"), cbCancelFlow, -1),
	))

	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func (b *Bot) asIsConfirmKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			button(b.tr.T("buttons.confirm"), cbAsIsYes, -1),
			button(b.tr.T("buttons.cancel"), cbCancelFlow, -1),
		),
	)
}
