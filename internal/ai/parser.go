package ai

import (
	"regexp"
	"strings"
)

// The compositions use chain-of-thought prompts that end in a labeled
// "Response:" section. Models do not always follow the format, so extraction
// is best effort with a defined fallback order: labeled section, then last
// non-empty line, then empty.

var (
	responsePattern = regexp.MustCompile(`(?is)response:\s*(.*?)(?:\n\n|\z)`)
	decidePattern   = regexp.MustCompile(`(?im)^decide:\s*(yes|no)\b`)
)

// ExtractResponse pulls the final response out of chain-of-thought output.
func ExtractResponse(text string) string {
	if m := responsePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return lastNonEmptyLine(text)
}

// ParseProactive interprets the proactive evaluation output. The prompt asks
// for an explicit Decide field and a PASS sentinel; the decision is read
// from the structured field when present rather than substring-searching the
// whole text.
func ParseProactive(text string) (msg string, joined bool) {
	if m := decidePattern.FindStringSubmatch(text); m != nil {
		if strings.EqualFold(m[1], "no") {
			return "", false
		}
	}

	out := ExtractResponse(text)
	if out == "" || strings.EqualFold(strings.TrimSpace(out), "PASS") {
		return "", false
	}
	return out, true
}

func lastNonEmptyLine(text string) string {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(lines[i]); s != "" {
			return s
		}
	}
	return ""
}

// cleanClassification normalizes the raw intent label: lower-cased, quotes
// and surrounding punctuation stripped, first word only.
func cleanClassification(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.NewReplacer("'", "", "\"", "", "`", "", ".", "").Replace(s)
	if fields := strings.Fields(s); len(fields) > 0 {
		return fields[0]
	}
	return s
}
