package beets_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beetbot/internal/beets"
)

const singleMatchOutput = `
Tagging:
    Miles Davis - Kind of Blue
URL:
    https://musicbrainz.org/release/abc12345-1234-abcd-9876-abc123456789
Match (96.8%):
 * Artist: Miles Davis
 * Album: Kind of Blue
 * Year: 1958 -> 1959
 * (#3) Blue in Green (5:37) -> Blue In Green (5:38)
`

const multiCandidateOutput = `
Finding tags for album "Unknown - Unknown Album".
Candidates:
1. Miles Davis - Kind of Blue (similarity: 80.0%)
   abc12345-1234-abcd-9876-abc123456789
2. Miles Davis - Kind of Blue (Remastered) (similarity: 60.0%)
   def12345-1234-abcd-9876-abc123456789
# selection (default 1), Skip, Use as-is, as Tracks, Group albums, Enter search, enter Id, aBort?
`

func TestParseDryRunSingleMatch(t *testing.T) {
	result := beets.ParseDryRun(singleMatchOutput)
	require.Equal(t, beets.OutcomeMatches, result.Outcome)
	require.Len(t, result.Candidates, 1)

	cand := result.Candidates[0]
	assert.InDelta(t, 0.968, cand.Similarity, 1e-9)
	assert.Equal(t, beets.SourceMusicBrainz, cand.Source)
	assert.Equal(t, "abc12345-1234-abcd-9876-abc123456789", cand.ReleaseID)
	assert.Equal(t, "Miles Davis", cand.Fields["artist"])
	assert.Equal(t, "Kind of Blue", cand.Fields["album"])

	require.Len(t, cand.Changes, 1)
	assert.Equal(t, beets.FieldChange{Field: "Year", Old: "1958", New: "1959"}, cand.Changes[0])

	require.Len(t, cand.Tracks, 1)
	assert.Equal(t, 3, cand.Tracks[0].Index)
	assert.Equal(t, "Blue in Green", cand.Tracks[0].OldTitle)
	assert.Equal(t, "Blue In Green", cand.Tracks[0].NewTitle)
	assert.Equal(t, "5:37", cand.Tracks[0].OldTime)
	assert.Equal(t, "5:38", cand.Tracks[0].NewTime)
}

func TestParseDryRunMatchAndURLOnOneLine(t *testing.T) {
	raw := "Match (96.8%) url: https://musicbrainz.org/release/abc12345-1234-abcd-9876-abc123456789"
	result := beets.ParseDryRun(raw)
	require.Equal(t, beets.OutcomeMatches, result.Outcome)
	require.Len(t, result.Candidates, 1)
	assert.InDelta(t, 0.968, result.Candidates[0].Similarity, 1e-9)
	assert.Equal(t, "abc12345-1234-abcd-9876-abc123456789", result.Candidates[0].ReleaseID)
}

func TestParseDryRunMultipleCandidatesOrdered(t *testing.T) {
	result := beets.ParseDryRun(multiCandidateOutput)
	require.Equal(t, beets.OutcomeMatches, result.Outcome)
	require.Len(t, result.Candidates, 2)
	assert.InDelta(t, 0.80, result.Candidates[0].Similarity, 1e-9)
	assert.InDelta(t, 0.60, result.Candidates[1].Similarity, 1e-9)
	assert.Equal(t, "abc12345-1234-abcd-9876-abc123456789", result.Candidates[0].ReleaseID)
}

func TestParseCandidatesSortsDescendingWithSourceTieBreak(t *testing.T) {
	raw := `
Candidates:
1. Album A (Discogs) (similarity: 90.0%)
2. Album B (similarity: 90,0%)
   abc12345-1234-abcd-9876-abc123456789
3. Album C (similarity: 95.0%)
   def12345-1234-abcd-9876-abc123456789
`
	candidates := beets.ParseCandidates(raw)
	require.Len(t, candidates, 3)
	assert.InDelta(t, 0.95, candidates[0].Similarity, 1e-9)
	// 90% tie: MusicBrainz ranks above Discogs.
	assert.Equal(t, beets.SourceMusicBrainz, candidates[1].Source)
	assert.Equal(t, beets.SourceDiscogs, candidates[2].Source)
}

func TestParseDryRunNoMatches(t *testing.T) {
	result := beets.ParseDryRun("Finding tags for album\nNo matching release found for 3 tracks.\n")
	assert.Equal(t, beets.OutcomeNoMatches, result.Outcome)
	assert.Empty(t, result.Candidates)
}

func TestParseDryRunLowSimilaritySkipIsNoMatches(t *testing.T) {
	result := beets.ParseDryRun("Skipping; similarity below threshold\n")
	assert.Equal(t, beets.OutcomeNoMatches, result.Outcome)
}

func TestParseDryRunAlreadyInLibrary(t *testing.T) {
	result := beets.ParseDryRun("This album is already in the library!\n")
	assert.Equal(t, beets.OutcomeInLibrary, result.Outcome)
}

func TestParseDryRunUnrecognizedIsParseError(t *testing.T) {
	result := beets.ParseDryRun("random noise without markers")
	assert.Equal(t, beets.OutcomeParseError, result.Outcome)
	assert.NotEmpty(t, result.Reason)
}

func TestParseDryRunEmptyIsParseError(t *testing.T) {
	result := beets.ParseDryRun("   \n  ")
	assert.Equal(t, beets.OutcomeParseError, result.Outcome)
}

func TestParseDryRunStripsANSI(t *testing.T) {
	raw := "\x1b[1mMatch (82.5%):\x1b[0m\n * Artist: Someone\n"
	result := beets.ParseDryRun(raw)
	require.Equal(t, beets.OutcomeMatches, result.Outcome)
	assert.InDelta(t, 0.825, result.Candidates[0].Similarity, 1e-9)
}

func TestParseDryRunNeverPanicsOnGarbage(t *testing.T) {
	inputs := []string{
		strings.Repeat("\x00\xff", 100),
		"1. \n2. \n3. ",
		"Match (%)",
		"Candidates:\n999999999999999999999. x",
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { beets.ParseDryRun(in) })
	}
}

func TestParseImportResultSuccess(t *testing.T) {
	outcome := beets.ParseImportResult("Album successfully imported.\n", 0)
	assert.True(t, outcome.Success)
	assert.False(t, outcome.Duplicate)
}

func TestParseImportResultDuplicate(t *testing.T) {
	outcome := beets.ParseImportResult("This album is already in library.\n", 0)
	assert.True(t, outcome.Duplicate)
}

func TestParseImportResultFailureKeepsTail(t *testing.T) {
	outcome := beets.ParseImportResult("some stack trace\nerror: network unreachable", 2)
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.RawTail, "network unreachable")
}

func TestParsePluginsInlineForm(t *testing.T) {
	plugins := beets.ParsePlugins("library: /music\nplugins: discogs fetchart lastgenre\ndirectory: /music\n")
	assert.Contains(t, plugins, "discogs")
	assert.Contains(t, plugins, "fetchart")
	assert.Contains(t, plugins, "lastgenre")
	assert.NotContains(t, plugins, "directory")
}

func TestParsePluginsListForm(t *testing.T) {
	raw := `
plugins:
  - discogs
  - musicbrainz
directory: /music
`
	plugins := beets.ParsePlugins(raw)
	assert.Contains(t, plugins, "discogs")
	assert.Contains(t, plugins, "musicbrainz")
	assert.Len(t, plugins, 2)
}

func TestParsePluginsEmpty(t *testing.T) {
	assert.Empty(t, beets.ParsePlugins("directory: /music\n"))
}
