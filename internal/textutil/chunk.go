package textutil

import "strings"

// ChunkLines splits text into chunks of at most limit bytes, breaking on line
// boundaries where possible. Lines longer than the limit are hard-split.
func ChunkLines(text string, limit int) []string {
	if text == "" || limit <= 0 {
		return nil
	}

	var parts []string
	var current strings.Builder
	for _, line := range strings.Split(text, "\n") {
		for len(line) > limit {
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
			parts = append(parts, line[:limit])
			line = line[limit:]
		}
		if current.Len()+len(line)+1 > limit {
			parts = append(parts, current.String())
			current.Reset()
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	if strings.TrimSpace(current.String()) != "" {
		parts = append(parts, current.String())
	}
	return parts
}

// Tail returns at most n bytes from the end of text, trimmed of surrounding
// whitespace. Used for raw-output excerpts in failure messages.
func Tail(text string, n int) string {
	text = strings.TrimSpace(text)
	if n <= 0 || len(text) <= n {
		return text
	}
	return text[len(text)-n:]
}

// Truncate limits text to n bytes, appending an ellipsis when shortened.
func Truncate(text string, n int) string {
	if n <= 0 || len(text) <= n {
		return text
	}
	return text[:n] + "…"
}
