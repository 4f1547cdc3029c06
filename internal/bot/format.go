package bot

import (
	"fmt"
	"path/filepath"
	"strings"

	"beetbot/internal/analyzer"
	"beetbot/internal/beets"
	"beetbot/internal/diff"
	"beetbot/internal/importer"
	"beetbot/internal/session"
	"beetbot/internal/textutil"
)

// messageLimit stays under Telegram's 4096-character cap with margin for
// markup.
const messageLimit = 4000

// documentThreshold switches long command output from chunked messages to a
// single document upload.
const documentThreshold = 3 * messageLimit

func chunkMessage(text string) []string {
	return textutil.ChunkLines(text, messageLimit)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatSimilarity(value float64) string {
	return fmt.Sprintf("%.1f%%", value*100)
}

func (b *Bot) formatTargetEntry(target analyzer.Target) string {
	return b.tr.T("list.entry",
		"name", textutil.Truncate(target.Name, 40),
		"size", formatBytes(target.Bytes),
		"tracks", target.TotalTracks())
}

func (b *Bot) formatTargetDetails(target analyzer.Target) string {
	var sb strings.Builder
	sb.WriteString(b.tr.T("directory.details",
		"name", target.Name,
		"tracks", target.TotalTracks(),
		"size", formatBytes(target.Bytes),
		"discs", len(target.Discs)))
	if target.MultiDisc {
		sb.WriteString("\n")
		sb.WriteString(b.tr.T("directory.multi_disc", "discs", len(target.Discs)))
		for _, disc := range target.Discs {
			sb.WriteString(fmt.Sprintf("\n  %s: %d (%s)", disc.Name, disc.AudioFiles, formatBytes(disc.Bytes)))
		}
	}
	return sb.String()
}

func (b *Bot) formatFileList(target analyzer.Target) string {
	var sb strings.Builder
	sb.WriteString(b.tr.T("directory.files_header", "name", target.Name))
	for _, disc := range target.Discs {
		if disc.Name != "" {
			sb.WriteString("\n" + disc.Name + "/")
		}
		sb.WriteString(fmt.Sprintf("\n  %d audio files, %s", disc.AudioFiles, formatBytes(disc.Bytes)))
	}
	for _, image := range target.Images {
		sb.WriteString("\n  " + filepath.Base(image))
	}
	return sb.String()
}

// formatOutcome renders the state an operation left the session in.
func (b *Bot) formatOutcome(outcome *importer.Outcome) string {
	sess := outcome.Session
	name := sess.Name

	switch {
	case outcome.DryRun != nil && outcome.DryRun.Outcome == beets.OutcomeInLibrary:
		msg := b.tr.T("import.in_library", "name", name)
		if outcome.Library != "" {
			msg += "\n" + textutil.Truncate(outcome.Library, 500)
		}
		return msg
	case outcome.Import != nil && outcome.Import.Duplicate:
		return b.tr.T("import.duplicate", "name", name)
	}

	switch sess.Step {
	case session.StepCompleted:
		return b.tr.T("import.completed", "name", name)
	case session.StepFailed:
		msg := b.tr.T("import.failed", "name", name)
		if outcome.Import != nil && outcome.Import.RawTail != "" {
			msg += "\n" + textutil.Truncate(outcome.Import.RawTail, 500)
		}
		return msg
	case session.StepNoMatch:
		return b.tr.T("import.no_match", "name", name)
	case session.StepSingleMatch, session.StepPreviewing:
		selected := sess.Selected()
		if selected == nil {
			return b.tr.T("import.no_match", "name", name)
		}
		msg := b.tr.T("import.preview",
			"name", name,
			"similarity", formatSimilarity(selected.Similarity),
			"info", selected.Info)
		if rendered := renderDiffs(outcome.Diffs); rendered != "" {
			msg += "\n" + b.tr.T("import.changes_header") + "\n" + rendered
		}
		return msg
	case session.StepMultiMatch:
		return b.tr.T("import.multi_match", "name", name, "count", len(sess.Candidates))
	default:
		return b.tr.T("status.entry", "name", name, "step", b.stepLabel(string(sess.Step)))
	}
}

func (b *Bot) stepLabel(step string) string {
	return b.tr.T("status.step." + step)
}

func renderDiffs(diffs []diff.FieldDiff) string {
	var lines []string
	for _, fd := range diffs {
		if fd.Kind == diff.KindUnchanged {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", fd.Field, fd.Rendered))
	}
	return strings.Join(lines, "\n")
}

func searchURLs(query string) (string, string) {
	escaped := strings.ReplaceAll(query, " ", "+")
	mb := "https://musicbrainz.org/search?query=" + escaped + "&type=release&method=indexed"
	discogs := "https://www.discogs.com/search/?q=" + escaped + "&type=release"
	return mb, discogs
}
