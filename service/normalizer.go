package service

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"procurement-assistant/config"
)

// Query is a normalized keyword query ready for full-text search
type Query struct {
	Keywords []string
	And      string // "alpha & beta & gamma"
	Or       string // "alpha | beta | gamma"
}

// Empty reports whether the query has no keywords at all
func (q Query) Empty() bool {
	return len(q.Keywords) == 0
}

func newQuery(keywords []string) Query {
	return Query{
		Keywords: keywords,
		And:      strings.Join(keywords, " & "),
		Or:       strings.Join(keywords, " | "),
	}
}

type synonymRule struct {
	from []string
	to   []string
}

// Normalizer turns a raw question into search keywords. It holds only
// immutable tables and is safe for concurrent use.
type Normalizer struct {
	stopwords         map[string]bool
	synonyms          []synonymRule
	minTokenLength    int
	maxTokens         int
	fallbackTokens    int
	overrideMinLength int
	overrideMaxTokens int
}

func NewNormalizer(t config.NormalizerTables) *Normalizer {
	n := &Normalizer{
		stopwords:         make(map[string]bool, len(t.Stopwords)),
		minTokenLength:    t.MinTokenLength,
		maxTokens:         t.MaxTokens,
		fallbackTokens:    t.FallbackTokens,
		overrideMinLength: t.OverrideMinLength,
		overrideMaxTokens: t.OverrideMaxTokens,
	}
	for _, w := range t.Stopwords {
		n.stopwords[w] = true
	}
	for _, s := range t.Synonyms {
		from, to := tokenize(s.From), tokenize(s.To)
		if len(from) == 0 || len(to) == 0 {
			continue
		}
		n.synonyms = append(n.synonyms, synonymRule{from: from, to: to})
	}
	// longest phrase wins when several rules start at the same token
	sort.SliceStable(n.synonyms, func(i, j int) bool {
		return len(n.synonyms[i].from) > len(n.synonyms[j].from)
	})
	return n
}

// Normalize extracts the stopword-filtered keyword list of a question.
// If filtering leaves nothing, the first few raw tokens are used instead.
func (n *Normalizer) Normalize(question string) Query {
	raw := tokenize(question)

	keywords := n.filter(n.expand(raw), func(tok string) bool {
		return utf8.RuneCountInString(tok) >= n.minTokenLength && !n.stopwords[tok]
	}, n.maxTokens)
	if len(keywords) > 0 {
		return newQuery(keywords)
	}

	return newQuery(n.filter(raw, func(string) bool { return true }, n.fallbackTokens))
}

// OverrideKeywords returns the significant words used to probe the override lists
func (n *Normalizer) OverrideKeywords(question string) []string {
	return n.filter(n.expand(tokenize(question)), func(tok string) bool {
		return utf8.RuneCountInString(tok) > n.overrideMinLength && !n.stopwords[tok]
	}, n.overrideMaxTokens)
}

// expand rewrites abbreviations and phrases on token boundaries
func (n *Normalizer) expand(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		rule, ok := n.synonymAt(tokens, i)
		if !ok {
			out = append(out, tokens[i])
			i++
			continue
		}
		out = append(out, rule.to...)
		i += len(rule.from)
	}
	return out
}

func (n *Normalizer) synonymAt(tokens []string, i int) (synonymRule, bool) {
	for _, rule := range n.synonyms {
		if i+len(rule.from) > len(tokens) {
			continue
		}
		matched := true
		for k, tok := range rule.from {
			if tokens[i+k] != tok {
				matched = false
				break
			}
		}
		if matched {
			return rule, true
		}
	}
	return synonymRule{}, false
}

// filter keeps tokens accepted by keep, dropping duplicates, up to limit
func (n *Normalizer) filter(tokens []string, keep func(string) bool, limit int) []string {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, limit)
	for _, tok := range tokens {
		if len(out) == limit {
			break
		}
		if seen[tok] || !keep(tok) {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// tokenize lowercases s and splits it on anything that is not a letter or digit.
// The resulting tokens are safe to splice into a tsquery.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
