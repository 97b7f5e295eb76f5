package service

import (
	"testing"

	"procurement-assistant/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHallucinationDetector(t *testing.T) *HallucinationDetector {
	t.Helper()
	return NewHallucinationDetector(loadTables(t).Hallucination)
}

func lawChunk(id, text string) models.Chunk {
	return chunk(id, models.CategoryGeneralLaw, text)
}

func issuesOfKind(a models.ReliabilityAssessment, kind models.IssueKind) []models.Issue {
	var out []models.Issue
	for _, i := range a.Issues {
		if i.Kind == kind {
			out = append(out, i)
		}
	}
	return out
}

func TestAssessPlanItemRedFlag(t *testing.T) {
	d := newTestHallucinationDetector(t)
	tables := loadTables(t)
	gate, err := NewRejectionGate(tables.Gate, tables.Messages)
	require.NoError(t, err)

	answer := "Для изменения суммы договора нужно создать новый пункт плана и утвердить его."
	chunks := []models.Chunk{lawChunk("law_art45", "Изменение договора допускается путем заключения дополнительного соглашения.")}

	a := d.Assess(answer, chunks)
	assert.GreaterOrEqual(t, a.Level, models.RiskHigh)
	assert.True(t, a.HasCritical())
	flags := issuesOfKind(a, models.IssueRedFlag)
	require.Len(t, flags, 1)
	assert.Equal(t, "новый пункт плана", flags[0].MatchedText)
	assert.NotEmpty(t, a.Recommendations)

	result := gate.Apply(answer, a)
	require.True(t, result.Verdict.Rejected)
	assert.Contains(t,
		[]models.RejectionCode{models.RejectLowConfidence, models.RejectCriticalHallucinations},
		result.Verdict.Reason.Code,
	)
	assert.NotContains(t, result.Text, "новый пункт плана")
}

func TestAssessRedFlagsIgnoreGrounding(t *testing.T) {
	d := newTestHallucinationDetector(t)

	answer := "Оформите акт об изменении договора."
	a := d.Assess(answer, []models.Chunk{lawChunk("x", answer)})
	assert.Equal(t, models.RiskHigh, a.Level)
	assert.Equal(t, 1.0, a.SourceCoverage)
}

func TestAssessSafeAnswer(t *testing.T) {
	d := newTestHallucinationDetector(t)

	a := d.Assess("Заказчик утверждает годовой план закупок.", []models.Chunk{
		lawChunk("law_art6", "Заказчик утверждает годовой план закупок в течение десяти рабочих дней."),
	})
	assert.Empty(t, a.Issues)
	assert.Equal(t, models.RiskSafe, a.Level)
	assert.Equal(t, 0.95, a.Confidence)
	assert.Equal(t, 1.0, a.SourceCoverage)
}

func TestAssessUncertainty(t *testing.T) {
	d := newTestHallucinationDetector(t)

	a := d.Assess("Обычно заказчик публикует план. Срок составляет десять дней.", []models.Chunk{
		lawChunk("law_art6", "Заказчик публикует план. Срок составляет десять дней."),
	})
	issues := issuesOfKind(a, models.IssueUncertainty)
	require.Len(t, issues, 1)
	assert.Equal(t, models.RiskLow, issues[0].Level)
	assert.Equal(t, "Обычно заказчик публикует план", issues[0].MatchedText)
	assert.Equal(t, models.RiskLow, a.Level)
	assert.Equal(t, 0.85, a.Confidence)
}

func TestAssessLowCoveragePenalty(t *testing.T) {
	d := newTestHallucinationDetector(t)

	a := d.Assess("Поставщик обязан предоставить гарантию качества", []models.Chunk{
		lawChunk("law_art6", "Заказчик утверждает годовой план"),
	})
	assert.Equal(t, 0.0, a.SourceCoverage)
	assert.Equal(t, models.RiskMedium, a.Level)
	require.Len(t, issuesOfKind(a, models.IssueLowSourceCoverage), 1)
	assert.InDelta(t, 0.30, a.Confidence, 1e-9)
}

func TestAssessRepeatedUngroundedWord(t *testing.T) {
	d := newTestHallucinationDetector(t)

	a := d.Assess("Заказчик бюджет бюджет бюджет", []models.Chunk{
		lawChunk("law_art6", "Заказчик утверждает годовой план"),
	})
	assert.InDelta(t, 0.5, a.SourceCoverage, 1e-9)
	assert.Equal(t, models.RiskMedium, a.Level)
	assert.InDelta(t, 0.60, a.Confidence, 1e-9)
}

func TestAssessHedgingInsideLongerWord(t *testing.T) {
	d := newTestHallucinationDetector(t)

	a := d.Assess("Необычно длинный срок допускается. Это невероятно важно.", []models.Chunk{
		lawChunk("law_art6", "Необычно длинный срок допускается. Это невероятно важно."),
	})
	assert.Empty(t, issuesOfKind(a, models.IssueUncertainty))
}

func TestSourceCoverage(t *testing.T) {
	d := newTestHallucinationDetector(t)
	plan := []models.Chunk{lawChunk("law_art6", "Заказчик утверждает годовой план")}

	tests := []struct {
		name   string
		answer string
		chunks []models.Chunk
		want   float64
	}{
		{name: "no chunks", answer: "Заказчик утверждает годовой план", want: 0},
		{name: "no significant words", answer: "Да, это так.", chunks: plan, want: 0.5},
		{name: "fully grounded", answer: "Заказчик утверждает годовой план", chunks: plan, want: 1},
		{name: "partially grounded", answer: "Заказчик утверждает бюджет", chunks: plan, want: 2.0 / 3.0},
		{name: "repeated word counts once", answer: "Заказчик бюджет бюджет бюджет", chunks: plan, want: 0.5},
		{name: "citation bonus", answer: "Заказчик утверждает бюджет согласно закону", chunks: plan, want: 0.4 + 0.15},
		{
			name:   "capped at one",
			answer: "Заказчик утверждает план согласно пункту",
			chunks: []models.Chunk{lawChunk("law_art6", "Заказчик утверждает план согласно пункту 5")},
			want:   1,
		},
		{
			name:   "words may come from different chunks",
			answer: "Заказчик утверждает бюджет",
			chunks: append([]models.Chunk{lawChunk("law_art7", "бюджет")}, plan...),
			want:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, d.SourceCoverage(tt.answer, tt.chunks), 1e-9)
		})
	}
}

func TestAssessSuspiciousCitation(t *testing.T) {
	d := newTestHallucinationDetector(t)
	plain := []models.Chunk{lawChunk("law_art6", "Заказчик утверждает годовой план")}

	t.Run("implausible article number", func(t *testing.T) {
		a := d.Assess("Согласно статье 1500 срок поставки составляет десять дней.", plain)
		issues := issuesOfKind(a, models.IssueSuspiciousCitation)
		require.Len(t, issues, 1)
		assert.Equal(t, "статье 1500", issues[0].MatchedText)
		assert.Equal(t, models.RiskMedium, issues[0].Level)
	})

	t.Run("plausible number", func(t *testing.T) {
		a := d.Assess("Согласно статье 15 срок поставки составляет десять дней.", plain)
		assert.Empty(t, issuesOfKind(a, models.IssueSuspiciousCitation))
	})

	t.Run("overflowing number", func(t *testing.T) {
		a := d.Assess("См. пункт 99999999999999999999.", plain)
		assert.Len(t, issuesOfKind(a, models.IssueSuspiciousCitation), 1)
	})

	t.Run("known document family in grounding", func(t *testing.T) {
		a := d.Assess("Согласно статье 1500 срок поставки составляет десять дней.", []models.Chunk{
			lawChunk("gk_art1500", "Срок поставки по ГК РК составляет десять дней"),
		})
		assert.Empty(t, issuesOfKind(a, models.IssueSuspiciousCitation))
	})

	t.Run("citation present verbatim", func(t *testing.T) {
		a := d.Assess("Согласно статье 1500 срок поставки составляет десять дней.", []models.Chunk{
			lawChunk("x", "Согласно статье 1500 срок поставки составляет десять дней"),
		})
		assert.Empty(t, issuesOfKind(a, models.IssueSuspiciousCitation))
	})
}

func TestAssessMonotoneInChunks(t *testing.T) {
	d := newTestHallucinationDetector(t)

	base := []models.Chunk{lawChunk("law_art6", "Заказчик утверждает годовой план")}
	superset := append([]models.Chunk{
		lawChunk("law_art45", "Поставщик обязан предоставить гарантию качества по договору"),
		lawChunk("law_art1500", "Статья 1500. Срок поставки"),
	}, base...)

	for _, answer := range []string{
		"Поставщик обязан предоставить гарантию качества",
		"Согласно статье 1500 срок поставки составляет десять дней.",
		"Обычно заказчик утверждает годовой план.",
		"Нужно создать новый пункт плана.",
	} {
		small := d.Assess(answer, base)
		large := d.Assess(answer, superset)
		assert.GreaterOrEqual(t, large.SourceCoverage, small.SourceCoverage, answer)
		assert.LessOrEqual(t, large.Level, small.Level, answer)
		assert.GreaterOrEqual(t, large.Confidence, small.Confidence, answer)
	}
}
