// Package i18n provides the bot's user-visible strings. Locale tables are
// embedded JSON files with nested sections flattened to dot-path keys
// (e.g. "status.import_completed"). Lookup falls back to English and, as a
// last resort, to the key itself so a missing translation never hides a
// message entirely.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// Translator resolves message keys for one locale.
type Translator struct {
	tag      language.Tag
	messages map[string]string
	fallback map[string]string
}

// New builds a Translator for the requested language. The language is matched
// against the embedded locales; unknown languages fall back to English.
func New(lang string) (*Translator, error) {
	available, err := availableLocales()
	if err != nil {
		return nil, err
	}

	tags := make([]language.Tag, 0, len(available))
	for _, code := range available {
		tags = append(tags, language.Make(code))
	}
	matcher := language.NewMatcher(tags)
	_, index := language.MatchStrings(matcher, lang)
	chosen := available[index]

	messages, err := loadLocale(chosen)
	if err != nil {
		return nil, err
	}
	fallback := messages
	if chosen != "en" {
		if fb, err := loadLocale("en"); err == nil {
			fallback = fb
		}
	}

	return &Translator{tag: tags[index], messages: messages, fallback: fallback}, nil
}

// Language returns the resolved locale tag.
func (t *Translator) Language() language.Tag {
	return t.tag
}

// T resolves a dot-path key and substitutes {name} parameters from the
// optional key/value pairs.
func (t *Translator) T(key string, kv ...any) string {
	text, ok := t.messages[key]
	if !ok {
		if text, ok = t.fallback[key]; !ok {
			return key
		}
	}
	for i := 0; i+1 < len(kv); i += 2 {
		name, ok := kv[i].(string)
		if !ok {
			continue
		}
		text = strings.ReplaceAll(text, "{"+name+"}", fmt.Sprint(kv[i+1]))
	}
	return text
}

func availableLocales() ([]string, error) {
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}
	codes := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		codes = append(codes, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(codes)
	// English first so it wins ambiguous matches.
	for i, code := range codes {
		if code == "en" && i != 0 {
			codes[0], codes[i] = codes[i], codes[0]
		}
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("no locale files embedded")
	}
	return codes, nil
}

func loadLocale(code string) (map[string]string, error) {
	data, err := localeFS.ReadFile("locales/" + code + ".json")
	if err != nil {
		return nil, fmt.Errorf("read locale %s: %w", code, err)
	}
	var nested map[string]any
	if err := json.Unmarshal(data, &nested); err != nil {
		return nil, fmt.Errorf("parse locale %s: %w", code, err)
	}
	flat := make(map[string]string)
	flatten("", nested, flat)
	return flat, nil
}

func flatten(prefix string, value map[string]any, out map[string]string) {
	for key, child := range value {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		switch v := child.(type) {
		case string:
			out[path] = v
		case map[string]any:
			flatten(path, v, out)
		}
	}
}
