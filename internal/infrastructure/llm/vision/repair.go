package vision

import (
	"encoding/json"
	"regexp"
	"strings"
)

// decodeLenient parses model output that is supposed to be JSON. A
// strict parse is tried first; on failure a series of conservative
// cleanup passes runs, each re-attempting the parse. It returns the
// candidate text that finally parsed so callers can validate it; the
// original raw text is never modified for the caller.
func decodeLenient(raw string, out any) (string, error) {
	candidate := raw
	if err := json.Unmarshal([]byte(candidate), out); err == nil {
		return candidate, nil
	}

	var lastErr error
	for _, pass := range repairPasses {
		candidate = pass(candidate)
		if err := json.Unmarshal([]byte(candidate), out); err == nil {
			return candidate, nil
		} else {
			lastErr = err
		}
	}
	return "", lastErr
}

var repairPasses = []func(string) string{
	strings.TrimSpace,
	stripCodeFences,
	stripInvisibleRunes,
	normalizeSmartQuotes,
	quoteBareKeys,
	removeTrailingCommas,
}

// stripCodeFences unwraps ```json ... ``` blocks some models emit
// despite the JSON response format.
func stripCodeFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// stripInvisibleRunes drops BOM, zero-width and stray control runes
// that break the JSON parser.
func stripInvisibleRunes(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\uFEFF', '\u200B', '\u200C', '\u200D':
			return -1
		}
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)
}

func normalizeSmartQuotes(s string) string {
	replacer := strings.NewReplacer(
		"“", `"`, "”", `"`,
		"‘", `'`, "’", `'`,
	)
	return replacer.Replace(s)
}

var bareKeyPattern = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)

func quoteBareKeys(s string) string {
	return bareKeyPattern.ReplaceAllString(s, `$1"$2"$3`)
}

var trailingCommaPattern = regexp.MustCompile(`,(\s*[}\]])`)

func removeTrailingCommas(s string) string {
	return trailingCommaPattern.ReplaceAllString(s, `$1`)
}
