package textutil

import "regexp"

// ansiPattern matches CSI sequences and two-byte escape codes emitted by
// beets' colorized terminal output.
var ansiPattern = regexp.MustCompile(`\x1b(?:[@-Z\\-_]|\[[0-?]*[ -/]*[@-~])`)

// StripANSI removes ANSI escape sequences from text.
func StripANSI(text string) string {
	if text == "" {
		return ""
	}
	return ansiPattern.ReplaceAllString(text, "")
}
