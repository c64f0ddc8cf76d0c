// Package clipboard copies analysis results to the system clipboard.
package clipboard

import (
	"strings"

	cb "github.com/atotto/clipboard"
)

func Read() (string, error) {
	return cb.ReadAll()
}

func Copy(text string) error {
	return cb.WriteAll(text)
}

// Available reports whether a clipboard backend was found (xclip, xsel
// or wl-copy on Linux).
func Available() bool {
	return !cb.Unsupported
}

// CodeBlocks returns the bodies of the fenced code blocks in markdown.
// An unterminated block runs to the end of the text.
func CodeBlocks(markdown string) []string {
	var blocks []string
	var cur []string
	in := false
	for _, line := range strings.Split(markdown, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if in {
				blocks = append(blocks, strings.Join(cur, "\n"))
				cur = nil
			}
			in = !in
			continue
		}
		if in {
			cur = append(cur, line)
		}
	}
	if in && len(cur) > 0 {
		blocks = append(blocks, strings.Join(cur, "\n"))
	}
	return blocks
}

// CopyCode copies the code blocks of markdown, or the whole text when
// there are none.
func CopyCode(markdown string) error {
	if blocks := CodeBlocks(markdown); len(blocks) > 0 {
		return Copy(strings.Join(blocks, "\n\n"))
	}
	return Copy(markdown)
}
