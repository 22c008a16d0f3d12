// Package extract reduces raw alert posts to their core message.
package extract

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ActivationMarker identifies a post as an activated alert. Everything up to
// and including the first occurrence is discarded.
const ActivationMarker = "Ενεργοποίηση"

// TruncationMarkers start trailing boilerplate. The first line containing any
// of them ends the message.
var TruncationMarkers = []string{"Προσοχή", "‼", "⚠", "🔴"}

var (
	lineBreakRE = regexp.MustCompile(`[\r\n]+`)
	urlRE       = regexp.MustCompile(`(?i)(?:https?|ftp)://\S+`)
	shortenerRE = regexp.MustCompile(`(?i)\b(?:t\.co|bit\.ly|tinyurl\.com|goo\.gl|ow\.ly|buff\.ly|is\.gd|dlvr\.it|lnkd\.in|youtu\.be)/\S+`)
	hashtagRE   = regexp.MustCompile(`#\S+`)
	mentionRE   = regexp.MustCompile(`@\S+`)
	keycapRE    = regexp.MustCompile(`([0-9#*])\x{FE0F}?\x{20E3}`)
	emojiRE     = regexp.MustCompile(`[` +
		`\x{1F300}-\x{1F5FF}` +
		`\x{1F600}-\x{1F64F}` +
		`\x{1F680}-\x{1F6FF}` +
		`\x{1F900}-\x{1F9FF}` +
		`\x{1FA70}-\x{1FAFF}` +
		`\x{1F100}-\x{1F1FF}` +
		`\x{2600}-\x{26FF}` +
		`\x{2700}-\x{27BF}` +
		`\x{2B00}-\x{2BFF}` +
		`\x{203C}\x{2049}\x{FE0F}\x{200D}` +
		`]+`)
	spaceRE = regexp.MustCompile(`[\s\x{00A0}]+`)
)

// Qualifies reports whether text carries the activation marker.
func Qualifies(text string) bool {
	return strings.Contains(norm.NFC.String(text), ActivationMarker)
}

// CoreMessage returns the cleaned message of an alert post, or "" when the
// post is not an alert or nothing readable remains after cleanup.
//
// The rest of the marker's own line is treated as a header: when the lines
// below it produce a message, the header is dropped; otherwise the header is
// the message. A text truncation marker on the header line leaves nothing.
func CoreMessage(raw string) string {
	text := norm.NFC.String(strings.TrimSpace(raw))

	_, after, found := strings.Cut(text, ActivationMarker)
	if !found {
		return ""
	}

	lines := lineBreakRE.Split(after, -1)

	// The header is checked after cleaning: glyphs framing the activation
	// marker are decoration, a text marker truncates the whole post.
	header := CleanLine(lines[0])
	if hasTruncationMarker(header) {
		return ""
	}

	if len(lines) > 1 {
		if body := collect(lines[1:]); body != "" {
			return body
		}
	}

	return header
}

// collect cleans lines in order until the first truncation marker.
func collect(lines []string) string {
	kept := make([]string, 0, len(lines))
	for _, ln := range lines {
		if hasTruncationMarker(ln) {
			break
		}
		if cleaned := CleanLine(ln); cleaned != "" {
			kept = append(kept, cleaned)
		}
	}
	return strings.TrimSpace(strings.Join(kept, " "))
}

// CleanLine strips URLs, shortened links, hashtags, mentions and emoji from a
// single line and collapses whitespace.
func CleanLine(line string) string {
	line = urlRE.ReplaceAllString(line, " ")
	line = shortenerRE.ReplaceAllString(line, " ")
	line = hashtagRE.ReplaceAllString(line, " ")
	line = mentionRE.ReplaceAllString(line, " ")
	line = keycapRE.ReplaceAllString(line, "$1")
	line = emojiRE.ReplaceAllString(line, " ")
	line = spaceRE.ReplaceAllString(line, " ")
	return strings.TrimSpace(line)
}

func hasTruncationMarker(line string) bool {
	for _, marker := range TruncationMarkers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}
