// Package diff renders human-oriented change descriptions for tag field
// values. Alignment runs on github.com/sergi/go-diff; deleted runs render as
// [-text-] and inserted runs as {+text+}.
package diff

import (
	"fmt"
	"strings"

	"github.com/hbollon/go-edlib"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Style selects diff granularity.
type Style string

const (
	// StyleCharacter aligns by character.
	StyleCharacter Style = "character"
	// StyleWord aligns by whitespace-delimited token.
	StyleWord Style = "word"
	// StyleSmart picks character alignment for short values, word alignment
	// otherwise, and plain replacement when the values share almost nothing.
	StyleSmart Style = "smart"
	// StyleSimple shows the new value without alignment.
	StyleSimple Style = "simple"
)

// ParseStyle maps a configuration string to a Style, defaulting to word.
func ParseStyle(value string) Style {
	switch Style(strings.ToLower(strings.TrimSpace(value))) {
	case StyleCharacter:
		return StyleCharacter
	case StyleSmart:
		return StyleSmart
	case StyleSimple:
		return StyleSimple
	default:
		return StyleWord
	}
}

// Kind classifies a field change.
type Kind string

const (
	KindUnchanged Kind = "unchanged"
	KindChanged   Kind = "changed"
	KindAdded     Kind = "added"
	KindRemoved   Kind = "removed"
)

// FieldDiff describes one field's old/new values and rendered change text.
type FieldDiff struct {
	Field    string `json:"field"`
	Old      string `json:"old"`
	New      string `json:"new"`
	Kind     Kind   `json:"kind"`
	Rendered string `json:"rendered,omitempty"`
}

const (
	// smartLengthThreshold is the combined length below which the smart
	// style aligns by character.
	smartLengthThreshold = 60
	// smartSimilarityFloor is the similarity below which the smart style
	// gives up on alignment; diffing unrelated strings produces noise.
	smartSimilarityFloor = 0.3
)

// Build produces the FieldDiff for one field.
func Build(field, oldValue, newValue string, style Style) FieldDiff {
	fd := FieldDiff{Field: field, Old: oldValue, New: newValue}

	switch {
	case oldValue == newValue:
		fd.Kind = KindUnchanged
		return fd
	case oldValue == "":
		fd.Kind = KindAdded
		fd.Rendered = "{+" + newValue + "+}"
		return fd
	case newValue == "":
		fd.Kind = KindRemoved
		fd.Rendered = "[-" + oldValue + "-]"
		return fd
	}

	fd.Kind = KindChanged
	fd.Rendered = render(oldValue, newValue, style)
	return fd
}

// BuildTrack renders one per-track change. The field label carries the
// track number; a timing change is appended to the rendered title, and a
// timing-only change still counts as changed.
func BuildTrack(index int, oldTitle, newTitle, oldTime, newTime string, style Style) FieldDiff {
	field := "Track"
	if index > 0 {
		field = fmt.Sprintf("Track %d", index)
	}

	fd := Build(field, oldTitle, newTitle, style)
	if oldTime != "" && newTime != "" && oldTime != newTime {
		if fd.Kind == KindUnchanged {
			fd.Kind = KindChanged
			fd.Rendered = oldTitle
		}
		fd.Rendered += fmt.Sprintf(" (%s -> %s)", oldTime, newTime)
	}
	return fd
}

func render(oldValue, newValue string, style Style) string {
	switch style {
	case StyleSimple:
		return newValue
	case StyleCharacter:
		return renderCharacter(oldValue, newValue)
	case StyleWord:
		return renderWord(oldValue, newValue)
	case StyleSmart:
		if similarity(oldValue, newValue) < smartSimilarityFloor {
			return newValue
		}
		if len(oldValue)+len(newValue) < smartLengthThreshold {
			return renderCharacter(oldValue, newValue)
		}
		return renderWord(oldValue, newValue)
	default:
		return renderWord(oldValue, newValue)
	}
}

func renderCharacter(oldValue, newValue string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldValue, newValue, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return renderDiffs(diffs, "")
}

// renderWord aligns whitespace-delimited tokens by mapping each distinct
// token to a rune, character-diffing the rune strings, and mapping back.
func renderWord(oldValue, newValue string) string {
	oldTokens := strings.Fields(oldValue)
	newTokens := strings.Fields(newValue)

	index := map[string]rune{}
	var vocab []string
	encode := func(tokens []string) string {
		var sb strings.Builder
		for _, token := range tokens {
			r, ok := index[token]
			if !ok {
				r = rune(len(vocab) + 1)
				index[token] = r
				vocab = append(vocab, token)
			}
			sb.WriteRune(r)
		}
		return sb.String()
	}
	oldEncoded := encode(oldTokens)
	newEncoded := encode(newTokens)

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldEncoded, newEncoded, false)

	decoded := make([]diffmatchpatch.Diff, 0, len(diffs))
	for _, d := range diffs {
		words := make([]string, 0, len(d.Text))
		for _, r := range d.Text {
			words = append(words, vocab[int(r)-1])
		}
		decoded = append(decoded, diffmatchpatch.Diff{Type: d.Type, Text: strings.Join(words, " ")})
	}
	return renderDiffs(decoded, " ")
}

func renderDiffs(diffs []diffmatchpatch.Diff, sep string) string {
	parts := make([]string, 0, len(diffs))
	for _, d := range diffs {
		if d.Text == "" {
			continue
		}
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			parts = append(parts, "[-"+d.Text+"-]")
		case diffmatchpatch.DiffInsert:
			parts = append(parts, "{+"+d.Text+"+}")
		default:
			parts = append(parts, d.Text)
		}
	}
	return strings.Join(parts, sep)
}

func similarity(a, b string) float64 {
	res, err := edlib.StringsSimilarity(a, b, edlib.Levenshtein)
	if err != nil {
		return 1
	}
	return float64(res)
}
