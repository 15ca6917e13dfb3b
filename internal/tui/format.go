package tui

import (
	"strings"
	"unicode"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"github.com/wesm/chatline/internal/chatapi"
)

// sanitize makes server-supplied text safe to print: escape sequences and
// control characters are removed so message content cannot restyle or
// move the terminal. Newlines survive; tabs become spaces.
func sanitize(s string) string {
	s = ansi.Strip(s)
	s = norm.NFC.String(s)
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n':
			return r
		case r == '\t':
			return ' '
		case r == '\u200d': // zero-width joiner keeps emoji sequences intact
			return r
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			// Cf covers bidi overrides that reorder what follows.
			return -1
		}
		return r
	}, s)
}

// sanitizeLine is sanitize for single-line fields.
func sanitizeLine(s string) string {
	s = sanitize(s)
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

// SanitizeLine strips terminal markup from server text for plain output
// outside the widget.
func SanitizeLine(s string) string { return sanitizeLine(s) }

// SanitizeBody is SanitizeLine for multi-line message bodies.
func SanitizeBody(s string) string { return sanitize(s) }

// NormalizeUserID is normalizeUserID for ids given on the command line.
func NormalizeUserID(s string) chatapi.ID { return normalizeUserID(s) }

// normalizeUserID folds full-width digits and letters typed through an
// IME (e.g. "１２") to their ASCII forms.
func normalizeUserID(s string) chatapi.ID {
	return chatapi.ID(strings.TrimSpace(width.Narrow.String(strings.TrimSpace(s))))
}

// avatarMarker returns the one-cell badge shown for a counterpart.
func avatarMarker(name string) string {
	for _, r := range sanitizeLine(name) {
		if runewidth.RuneWidth(r) == 1 {
			return string(unicode.ToUpper(r))
		}
		return string(r)
	}
	return "?"
}

// padRight pads a string with spaces to fill width terminal cells.
// Uses lipgloss.Width to correctly handle ANSI codes and full-width characters.
func padRight(s string, width int) string {
	sw := lipgloss.Width(s)
	if sw >= width {
		return ansi.Truncate(s, width, "")
	}
	return s + strings.Repeat(" ", width-sw)
}

// padLeft right-aligns s within width terminal cells.
func padLeft(s string, width int) string {
	sw := lipgloss.Width(s)
	if sw >= width {
		return ansi.Truncate(s, width, "")
	}
	return strings.Repeat(" ", width-sw) + s
}

// truncateRunes truncates a string to fit within maxWidth terminal cells.
// Uses runewidth to correctly handle full-width characters (CJK, emoji, etc.)
// that occupy 2 terminal cells but count as 1 rune.
func truncateRunes(s string, maxWidth int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\t", " ")

	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, "...")
}

// wrapText wraps text to fit within width terminal cells.
// Uses runewidth to correctly handle full-width characters (CJK, emoji, etc.)
func wrapText(text string, width int) []string {
	if width <= 0 {
		width = 80
	}

	var result []string
	for _, line := range strings.Split(text, "\n") {
		if runewidth.StringWidth(line) <= width {
			result = append(result, line)
			continue
		}

		runes := []rune(line)
		for len(runes) > 0 {
			currentWidth := 0
			breakAt := 0
			lastSpace := -1

			for i, r := range runes {
				rw := runewidth.RuneWidth(r)
				if currentWidth+rw > width {
					break
				}
				currentWidth += rw
				breakAt = i + 1
				if r == ' ' {
					lastSpace = i
				}
			}

			// Prefer breaking at a space if we found one in the latter half
			if lastSpace > breakAt/2 && breakAt < len(runes) {
				breakAt = lastSpace
			}
			if breakAt == 0 {
				// Single character too wide, take it anyway
				breakAt = 1
			}

			result = append(result, string(runes[:breakAt]))
			runes = runes[breakAt:]

			for len(runes) > 0 && runes[0] == ' ' {
				runes = runes[1:]
			}
		}
	}
	return result
}

// truncateToWidth returns the prefix of s that fits within maxWidth visual columns.
func truncateToWidth(s string, maxWidth int) string {
	return ansi.Truncate(s, maxWidth, "")
}

// skipToWidth returns the suffix of s starting after skipWidth visual columns.
func skipToWidth(s string, skipWidth int) string {
	return ansi.Cut(s, skipWidth, 10000)
}
