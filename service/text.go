package service

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// containsAny reports whether text contains at least one of the phrases.
// text and phrases are expected lowercased.
func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// matchedPhrases returns the phrases found in text, in table order
func matchedPhrases(text string, phrases []string) []string {
	var out []string
	for _, p := range phrases {
		if strings.Contains(text, p) {
			out = append(out, p)
		}
	}
	return out
}

// truncateRunes cuts s to at most n runes, appending an ellipsis when it had to cut
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

// matchedWords is matchedPhrases for whole words: a phrase only counts when it
// is not glued to letters, digits or a hyphen on either side ("либо" is not
// found in "какой-либо", "возможно" is not found in "невозможно")
func matchedWords(text string, phrases []string) []string {
	var out []string
	for _, p := range phrases {
		if hasWord(text, p) {
			out = append(out, p)
		}
	}
	return out
}

func hasWord(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	for start := 0; start < len(text); {
		i := strings.Index(text[start:], phrase)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(phrase)
		before, _ := utf8.DecodeLastRuneInString(text[:i])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if (i == 0 || !isWordRune(before)) && (end == len(text) || !isWordRune(after)) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		start = i + size
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-'
}
