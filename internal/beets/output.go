package beets

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"beetbot/internal/textutil"
)

// Outcome classifies what a dry run produced. An explicit tri-state (plus the
// in-library case) keeps "no candidates" distinct from "could not read the
// output at all".
type Outcome string

const (
	OutcomeNoMatches  Outcome = "no_matches"
	OutcomeMatches    Outcome = "matches"
	OutcomeInLibrary  Outcome = "in_library"
	OutcomeParseError Outcome = "parse_error"
)

// FieldChange is one field-level difference reported by beets.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// TrackChange is one per-track difference for the preview screen.
type TrackChange struct {
	Index    int    `json:"index,omitempty"`
	OldTitle string `json:"old_title"`
	NewTitle string `json:"new_title"`
	OldTime  string `json:"old_time,omitempty"`
	NewTime  string `json:"new_time,omitempty"`
}

// Candidate is one proposed match recovered from beets output. Immutable
// once parsed; ordering is by descending similarity with MusicBrainz ranked
// above Discogs on ties.
type Candidate struct {
	Source     Source            `json:"source"`
	ReleaseID  string            `json:"release_id,omitempty"`
	URL        string            `json:"url,omitempty"`
	Info       string            `json:"info,omitempty"`
	Similarity float64           `json:"similarity"`
	Fields     map[string]string `json:"fields,omitempty"`
	Changes    []FieldChange     `json:"changes,omitempty"`
	Tracks     []TrackChange     `json:"tracks,omitempty"`
}

// DryRunResult is the parsed form of a candidate discovery run.
type DryRunResult struct {
	Outcome    Outcome     `json:"outcome"`
	Candidates []Candidate `json:"candidates,omitempty"`
	// Reason records why classification failed when Outcome is ParseError.
	Reason string `json:"reason,omitempty"`
	// Raw holds a bounded cleaned excerpt for debug surfaces.
	Raw string `json:"raw,omitempty"`
}

// ImportOutcome is the parsed form of an applying import run.
type ImportOutcome struct {
	Success   bool   `json:"success"`
	Duplicate bool   `json:"duplicate,omitempty"`
	RawTail   string `json:"raw_tail,omitempty"`
}

var (
	similarityPattern = regexp.MustCompile(`(?i)(?:match|similarity)\s*[(:]?\s*(\d+(?:[.,]\d+)?)\s*%`)
	mbURLPattern      = regexp.MustCompile(`https://musicbrainz\.org/\S+`)
	discogsURLPattern = regexp.MustCompile(`https://(?:www\.)?discogs\.com/\S+`)
	mbIDPattern       = regexp.MustCompile(`[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}`)
	discogsIDPattern  = regexp.MustCompile(`/release/(\d+)`)
	candidatePattern  = regexp.MustCompile(`(?i)^\s*(\d+)\.\s+(.+?)(?:\s*[-(]\s*(?:similarity:?\s*)?(\d+(?:[.,]\d+)?)\s*%\)?)?\s*$`)
	fieldLinePattern  = regexp.MustCompile(`^\s*[*≠]\s*([A-Za-z][A-Za-z ]{0,30}):\s*(.+)$`)
	trackLinePattern  = regexp.MustCompile(`^\s*\*?\s*(?:\(#(\d+)\)\s*)?(.+?)\s*(?:\((\d+:\d{2})\))?\s*->\s*(.+?)\s*(?:\((\d+:\d{2})\))?\s*$`)
)

const rawExcerptLimit = 1000

// ParseDryRun classifies candidate-discovery output.
func ParseDryRun(raw string) DryRunResult {
	cleaned := textutil.StripANSI(raw)
	lower := strings.ToLower(cleaned)
	result := DryRunResult{Raw: textutil.Truncate(cleaned, rawExcerptLimit)}

	if strings.TrimSpace(cleaned) == "" {
		result.Outcome = OutcomeParseError
		result.Reason = "empty output"
		return result
	}

	if strings.Contains(lower, "already in library") ||
		strings.Contains(lower, "already in the library") ||
		strings.Contains(lower, "this album is already") {
		result.Outcome = OutcomeInLibrary
		return result
	}

	candidates := ParseCandidates(cleaned)
	if len(candidates) > 0 {
		result.Outcome = OutcomeMatches
		result.Candidates = candidates
		return result
	}

	if strings.Contains(cleaned, "No matching release found") ||
		strings.Contains(lower, "no candidates") ||
		strings.Contains(lower, "no matches") {
		result.Outcome = OutcomeNoMatches
		return result
	}

	// A skip decision driven by the tool's own similarity threshold still
	// means beets found nothing usable.
	if strings.Contains(lower, "skip") && strings.Contains(lower, "similarity") {
		result.Outcome = OutcomeNoMatches
		return result
	}

	result.Outcome = OutcomeParseError
	result.Reason = "no recognizable markers"
	return result
}

// ParseCandidates extracts all candidates from cleaned output: a single-match
// block ("Match (96.8%)"), a numbered candidate list, or both. The returned
// slice is sorted by descending similarity, MusicBrainz before Discogs on
// ties. An empty slice means no candidates were recognized.
func ParseCandidates(raw string) []Candidate {
	cleaned := textutil.StripANSI(raw)
	lines := strings.Split(cleaned, "\n")

	var candidates []Candidate
	if single, ok := parseSingleMatch(lines); ok {
		candidates = append(candidates, single)
	}
	candidates = append(candidates, parseCandidateList(lines)...)
	candidates = dedupeCandidates(candidates)

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return sourceRank(candidates[i].Source) < sourceRank(candidates[j].Source)
	})
	return candidates
}

// ParseImportResult classifies the output of an applying import.
func ParseImportResult(raw string, exitCode int) ImportOutcome {
	cleaned := textutil.StripANSI(raw)
	lower := strings.ToLower(cleaned)
	outcome := ImportOutcome{RawTail: textutil.Tail(cleaned, 500)}

	switch {
	case strings.Contains(lower, "already in library"),
		strings.Contains(lower, "already in the library"):
		outcome.Duplicate = true
		outcome.Success = exitCode == 0
	case strings.Contains(lower, "successfully imported"),
		strings.Contains(lower, "imported and tagged"),
		strings.Contains(lower, "import completed"):
		outcome.Success = true
	default:
		outcome.Success = exitCode == 0
	}
	return outcome
}

// ParsePlugins extracts the enabled plugin set from `beet config` output.
// Both the inline form ("plugins: discogs fetchart") and the YAML list form
// are recognized.
func ParsePlugins(raw string) map[string]struct{} {
	plugins := make(map[string]struct{})
	cleaned := textutil.StripANSI(raw)

	inSection := false
	for _, line := range strings.Split(cleaned, "\n") {
		stripped := strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(stripped, "plugins:"); ok {
			inSection = true
			for _, name := range strings.FieldsFunc(after, func(r rune) bool {
				return r == ' ' || r == ',' || r == '\t'
			}) {
				if name = strings.TrimSpace(name); name != "" && name != "[]" {
					plugins[strings.ToLower(name)] = struct{}{}
				}
			}
			continue
		}
		if !inSection {
			continue
		}
		if after, ok := strings.CutPrefix(stripped, "-"); ok {
			name := strings.TrimSpace(after)
			if name != "" && !strings.HasSuffix(name, ":") {
				plugins[strings.ToLower(name)] = struct{}{}
			}
			continue
		}
		// Any other non-indented line ends the section.
		if stripped != "" && !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			inSection = false
		}
	}
	return plugins
}

func parseSingleMatch(lines []string) (Candidate, bool) {
	cand := Candidate{Source: SourceMusicBrainz, Fields: map[string]string{}}
	found := false

	for _, line := range lines {
		if !found {
			m := similarityPattern.FindStringSubmatch(line)
			if m == nil || !strings.Contains(strings.ToLower(line), "match") {
				continue
			}
			cand.Similarity = parsePercent(m[1])
			found = true
			// Fall through: the URL may share the match line.
		}

		if url := mbURLPattern.FindString(line); url != "" && cand.URL == "" {
			cand.URL = url
			if id := mbIDPattern.FindString(url); id != "" {
				cand.ReleaseID = id
			}
			continue
		}
		if url := discogsURLPattern.FindString(line); url != "" && cand.URL == "" {
			cand.URL = url
			cand.Source = SourceDiscogs
			if m := discogsIDPattern.FindStringSubmatch(url); m != nil {
				cand.ReleaseID = m[1]
			}
			continue
		}
		if field, ok := parseFieldLine(line); ok {
			if old, new, changed := splitChange(field.value); changed {
				cand.Changes = append(cand.Changes, FieldChange{Field: field.name, Old: old, New: new})
			} else {
				cand.Fields[strings.ToLower(field.name)] = field.value
			}
			continue
		}
		if track, ok := parseTrackLine(line); ok {
			cand.Tracks = append(cand.Tracks, track)
		}
	}

	if !found {
		return Candidate{}, false
	}
	if len(cand.Fields) == 0 {
		cand.Fields = nil
	}
	cand.Info = buildInfo(cand)
	return cand, true
}

func parseCandidateList(lines []string) []Candidate {
	var out []Candidate
	inList := false

	for i, line := range lines {
		lower := strings.ToLower(line)
		if strings.Contains(line, "Candidates:") || strings.Contains(line, "Finding tags for") {
			inList = true
			continue
		}
		if !inList {
			continue
		}

		m := candidatePattern.FindStringSubmatch(line)
		if m == nil {
			if strings.TrimSpace(line) == "" || strings.Contains(lower, "selection") || strings.Contains(lower, "skip") {
				inList = false
			}
			continue
		}

		cand := Candidate{Source: SourceMusicBrainz, Info: textutil.Truncate(strings.TrimSpace(m[2]), 100)}
		if m[3] != "" {
			cand.Similarity = parsePercent(m[3])
		}
		if id := mbIDPattern.FindString(line); id != "" {
			cand.ReleaseID = id
		} else if i+1 < len(lines) {
			if id := mbIDPattern.FindString(lines[i+1]); id != "" {
				cand.ReleaseID = id
			}
		}
		if url := discogsURLPattern.FindString(line); url != "" {
			cand.Source = SourceDiscogs
			cand.URL = url
			if dm := discogsIDPattern.FindStringSubmatch(url); dm != nil {
				cand.ReleaseID = dm[1]
			}
		} else if strings.Contains(lower, "(discogs)") {
			cand.Source = SourceDiscogs
		}
		out = append(out, cand)
	}
	return out
}

func dedupeCandidates(candidates []Candidate) []Candidate {
	if len(candidates) < 2 {
		return candidates
	}
	seen := make(map[string]struct{}, len(candidates))
	out := candidates[:0]
	for _, cand := range candidates {
		key := string(cand.Source) + "/" + cand.ReleaseID
		if cand.ReleaseID != "" {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, cand)
	}
	return out
}

type fieldLine struct {
	name  string
	value string
}

func parseFieldLine(line string) (fieldLine, bool) {
	m := fieldLinePattern.FindStringSubmatch(line)
	if m == nil {
		return fieldLine{}, false
	}
	return fieldLine{name: strings.TrimSpace(m[1]), value: strings.TrimSpace(m[2])}, true
}

// splitChange handles "old -> new" values on field lines.
func splitChange(value string) (string, string, bool) {
	before, after, found := strings.Cut(value, "->")
	if !found {
		return "", "", false
	}
	return strings.TrimSpace(before), strings.TrimSpace(after), true
}

func parseTrackLine(line string) (TrackChange, bool) {
	if !strings.Contains(line, "->") || strings.Contains(line, "://") {
		return TrackChange{}, false
	}
	m := trackLinePattern.FindStringSubmatch(line)
	if m == nil {
		return TrackChange{}, false
	}
	track := TrackChange{
		OldTitle: strings.TrimSpace(m[2]),
		NewTitle: strings.TrimSpace(m[4]),
		OldTime:  m[3],
		NewTime:  m[5],
	}
	if m[1] != "" {
		track.Index, _ = strconv.Atoi(m[1])
	}
	if track.OldTitle == "" || track.NewTitle == "" {
		return TrackChange{}, false
	}
	return track, true
}

// parsePercent converts a percentage ("96.8" or "96,8") to a 0..1 similarity.
func parsePercent(value string) float64 {
	value = strings.ReplaceAll(value, ",", ".")
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	f /= 100
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

func buildInfo(cand Candidate) string {
	artist := cand.Fields["artist"]
	album := cand.Fields["album"]
	switch {
	case artist != "" && album != "":
		return artist + " - " + album
	case album != "":
		return album
	case artist != "":
		return artist
	default:
		return cand.ReleaseID
	}
}

func sourceRank(source Source) int {
	if source == SourceMusicBrainz {
		return 0
	}
	return 1
}
