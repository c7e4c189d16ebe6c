// Package advice turns the free-text guidance of a diagnosis into display lines.
package advice

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	markupChars = regexp.MustCompile(`[:*]`)
	dotRuns     = regexp.MustCompile(`\.{2,}`)
	newlineRuns = regexp.MustCompile(`\n{3,}`)
	percentText = regexp.MustCompile(`^\d+(\.\d+)?%$`)
)

// Line is one rendered advice line. Headings render bold and larger.
type Line struct {
	Text    string `json:"text" yaml:"text"`
	Heading bool   `json:"heading" yaml:"heading"`
}

// Format cleans model markup out of advice and splits it into display lines.
// Lines of five characters or fewer are dropped.
func Format(text string) []Line {
	clean := markupChars.ReplaceAllString(text, "")
	clean = dotRuns.ReplaceAllString(clean, ".")
	clean = newlineRuns.ReplaceAllString(clean, "\n\n")

	var lines []Line
	for _, raw := range strings.Split(clean, "\n") {
		line := strings.TrimSpace(raw)
		if utf8.RuneCountInString(line) <= 5 {
			continue
		}
		lines = append(lines, Line{Text: line, Heading: IsHeading(line)})
	}
	return lines
}

// IsHeading is the bold-line heuristic: a short sentence, or a line that talks
// about recommendations, advice or something important.
func IsHeading(line string) bool {
	if strings.HasSuffix(line, ".") && utf8.RuneCountInString(line) < 50 {
		return true
	}
	lower := strings.ToLower(line)
	return strings.Contains(lower, "recommendation") ||
		strings.Contains(lower, "advice") ||
		strings.Contains(lower, "important")
}

// Tone names the badge style for a predicted stage.
func Tone(prediction string) string {
	p := strings.ToLower(prediction)
	switch {
	case strings.Contains(p, "normal"):
		return "success"
	case strings.Contains(p, "mild"):
		return "warning"
	case strings.Contains(p, "moderate"):
		return "caution"
	case strings.Contains(p, "severe"):
		return "danger"
	default:
		return "info"
	}
}

// IsPercent reports whether s is usable as a CSS percentage width, e.g. "87.5%".
func IsPercent(s string) bool {
	return percentText.MatchString(s)
}

// ConfidenceWidth returns the style width for a confidence bar, "0%" when unusable.
func ConfidenceWidth(confidence string) string {
	if IsPercent(confidence) {
		return confidence
	}
	return "0%"
}
