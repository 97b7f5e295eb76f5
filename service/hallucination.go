package service

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"procurement-assistant/config"
	"procurement-assistant/models"
)

var (
	sentenceSplit = regexp.MustCompile(`[.!?]+`)
	citationRe    = regexp.MustCompile(`(?i)(ст\.|стать[а-я]*|пункт[а-я]*|п\.|article|paragraph)\s*(\d+(?:\.\d+)*)`)
	spaceRun      = regexp.MustCompile(`\s+`)
)

// HallucinationDetector scores a drafted answer against the chunks it was grounded on.
// It is pure and safe for concurrent use.
type HallucinationDetector struct {
	tables    config.HallucinationTables
	stopwords map[string]bool
}

func NewHallucinationDetector(tables config.HallucinationTables) *HallucinationDetector {
	stop := make(map[string]bool, len(tables.CoverageStopwords))
	for _, w := range tables.CoverageStopwords {
		stop[w] = true
	}
	return &HallucinationDetector{tables: tables, stopwords: stop}
}

// Assess runs every check and aggregates them into one assessment.
// The level is the maximum issue severity; confidence follows from the level
// and is halved (by default) when source coverage is poor.
func (d *HallucinationDetector) Assess(answer string, chunks []models.Chunk) models.ReliabilityAssessment {
	lowered := strings.ToLower(answer)
	grounding := make([]string, len(chunks))
	for i, c := range chunks {
		grounding[i] = strings.ToLower(c.Text)
	}

	var issues []models.Issue
	var recommendations []string

	flags := d.checkRedFlags(lowered)
	issues = append(issues, flags...)
	for _, issue := range flags {
		if issue.IsCritical() {
			recommendations = append(recommendations, "Исключите из ответа: "+issue.MatchedText)
		}
	}

	issues = append(issues, d.checkUncertainty(answer)...)

	coverage := d.SourceCoverage(answer, chunks)
	if coverage < d.tables.CoverageWarnThreshold {
		issues = append(issues, models.Issue{
			Kind:    models.IssueLowSourceCoverage,
			Level:   models.RiskMedium,
			Message: fmt.Sprintf("Только %.0f%% утверждений ответа найдено в источниках", coverage*100),
		})
		recommendations = append(recommendations, "Сверьте ответ с официальными текстами нормативных актов")
	}

	issues = append(issues, d.checkCitations(lowered, grounding)...)

	assessment := models.ReliabilityAssessment{
		Issues:          issues,
		SourceCoverage:  coverage,
		Recommendations: recommendations,
	}
	assessment.Level = assessment.MaxIssueLevel()
	assessment.Confidence = d.confidence(assessment.Level, coverage)
	return assessment
}

func (d *HallucinationDetector) confidence(level models.RiskLevel, coverage float64) float64 {
	c := d.tables.Confidence.For(level)
	if coverage < d.tables.CoveragePenaltyThreshold {
		c *= d.tables.CoveragePenaltyFactor
	}
	return c
}

// checkRedFlags raises one issue per red-flag pattern found in the answer
func (d *HallucinationDetector) checkRedFlags(lowered string) []models.Issue {
	var issues []models.Issue
	for _, flag := range d.tables.RedFlags {
		for _, kw := range flag.Keywords {
			if !strings.Contains(lowered, kw) {
				continue
			}
			issues = append(issues, models.Issue{
				Kind:        models.IssueRedFlag,
				Level:       flag.Level,
				Message:     flag.Name + ": " + flag.Message,
				MatchedText: kw,
			})
			break
		}
	}
	return issues
}

// checkUncertainty flags every sentence containing a hedging word
func (d *HallucinationDetector) checkUncertainty(answer string) []models.Issue {
	var issues []models.Issue
	for _, sentence := range sentenceSplit.Split(answer, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		lowered := strings.ToLower(sentence)
		for _, word := range d.tables.HedgingWords {
			if !hasWord(lowered, word) {
				continue
			}
			issues = append(issues, models.Issue{
				Kind:        models.IssueUncertainty,
				Level:       models.RiskLow,
				Message:     fmt.Sprintf("Вероятно необоснованный вывод («%s»)", word),
				MatchedText: truncateRunes(sentence, 100),
			})
			break
		}
	}
	return issues
}

// SourceCoverage is the share of distinct significant answer words found in any chunk,
// plus a flat bonus when the answer cites structure (articles, paragraphs).
// Adding chunks can only raise it.
func (d *HallucinationDetector) SourceCoverage(answer string, chunks []models.Chunk) float64 {
	if len(chunks) == 0 {
		return 0
	}

	// each distinct word counts once
	seen := make(map[string]bool)
	var words []string
	for _, tok := range tokenize(answer) {
		if seen[tok] || d.stopwords[tok] || utf8.RuneCountInString(tok) <= d.tables.SignificantWordMinLength {
			continue
		}
		seen[tok] = true
		words = append(words, tok)
	}
	if len(words) == 0 {
		return d.tables.NoWordsCoverage
	}

	grounding := make([]string, len(chunks))
	for i, c := range chunks {
		grounding[i] = strings.ToLower(c.Text)
	}

	found := 0
	for _, w := range words {
		for _, text := range grounding {
			if strings.Contains(text, w) {
				found++
				break
			}
		}
	}
	coverage := float64(found) / float64(len(words))

	if containsAny(strings.ToLower(answer), d.tables.CitationMarkers) {
		coverage += d.tables.CitationBonus
	}
	if coverage > 1 {
		coverage = 1
	}
	return coverage
}

// checkCitations flags article/paragraph references with implausibly large numbers
// unless the citation literally appears in the grounding or the grounding comes
// from a known document family
func (d *HallucinationDetector) checkCitations(lowered string, grounding []string) []models.Issue {
	knownFamily := false
	for _, text := range grounding {
		if containsAny(text, d.tables.KnownDocumentFamilies) {
			knownFamily = true
			break
		}
	}

	var issues []models.Issue
	for _, m := range citationRe.FindAllStringSubmatch(lowered, -1) {
		citation := spaceRun.ReplaceAllString(m[0], " ")
		if knownFamily || groundingContains(grounding, citation) {
			continue
		}
		head := strings.SplitN(m[2], ".", 2)[0]
		num, err := strconv.Atoi(head)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			continue
		}
		if num <= d.tables.ImplausibleCitation {
			continue
		}
		issues = append(issues, models.Issue{
			Kind:        models.IssueSuspiciousCitation,
			Level:       models.RiskMedium,
			Message:     fmt.Sprintf("Подозрительная ссылка «%s»: такого номера, вероятно, не существует", citation),
			MatchedText: citation,
		})
	}
	return issues
}

func groundingContains(grounding []string, s string) bool {
	for _, text := range grounding {
		if strings.Contains(spaceRun.ReplaceAllString(text, " "), s) {
			return true
		}
	}
	return false
}
