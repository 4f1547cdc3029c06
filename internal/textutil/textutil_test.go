package textutil_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"beetbot/internal/textutil"
)

func TestStripANSI(t *testing.T) {
	in := "\x1b[31mMatch\x1b[0m (96.8%)\x1b[K"
	assert.Equal(t, "Match (96.8%)", textutil.StripANSI(in))
	assert.Equal(t, "", textutil.StripANSI(""))
	assert.Equal(t, "plain", textutil.StripANSI("plain"))
}

func TestChunkLinesBreaksOnLineBoundaries(t *testing.T) {
	text := strings.Repeat("aaaa\n", 10)
	parts := textutil.ChunkLines(text, 12)
	assert.NotEmpty(t, parts)
	for _, part := range parts {
		assert.LessOrEqual(t, len(part), 13) // chunk plus trailing newline
	}
	assert.Equal(t, text, strings.Join(parts, ""))
}

func TestChunkLinesHardSplitsLongLines(t *testing.T) {
	parts := textutil.ChunkLines(strings.Repeat("x", 25), 10)
	assert.GreaterOrEqual(t, len(parts), 3)
	assert.Equal(t, "xxxxxxxxxx", parts[0])
}

func TestTail(t *testing.T) {
	assert.Equal(t, "cde", textutil.Tail("abcde", 3))
	assert.Equal(t, "abc", textutil.Tail("  abc  ", 10))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", textutil.Truncate("abc", 5))
	assert.Equal(t, "ab…", textutil.Truncate("abcdef", 2))
}
