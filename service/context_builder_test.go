package service

import (
	"strings"
	"testing"

	"procurement-assistant/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderOverridesGroupsByList(t *testing.T) {
	tables := loadTables(t)
	b := NewContextBuilder(tables)

	entries := []models.OverrideEntry{
		{Num: 3, Name: "Клининговые услуги", Method: "из одного источника", ListType: models.ListSmallBusiness},
		{Num: 1, Name: "Строительно-монтажные работы", Method: "конкурс", ListType: models.ListAuthorityDetermined, Subsection: "Раздел 1"},
		{Num: 7, Name: "Постельное белье", ListType: models.ListDisabilityOrg, ClassificationCodes: "139210.100"},
		{Num: 1, Name: "Полиграфические услуги", ListType: models.ListSmallBusiness},
	}
	out := b.RenderOverrides(entries)

	assert.True(t, strings.HasPrefix(out, tables.Overrides.Title))
	assert.Equal(t, 3, strings.Count(out, "\n## "))

	authority := strings.Index(out, tables.Overrides.Lists[0].Title)
	disability := strings.Index(out, tables.Overrides.Lists[1].Title)
	small := strings.Index(out, tables.Overrides.Lists[2].Title)
	require.True(t, authority > 0 && disability > 0 && small > 0)
	assert.Less(t, authority, disability)
	assert.Less(t, disability, small)

	assert.Less(t, strings.Index(out, "3. Клининговые услуги"), strings.Index(out, "1. Полиграфические услуги"))
	assert.Contains(t, out, "1. Строительно-монтажные работы [Раздел 1]\n   Способ закупки: конкурс")
	assert.Contains(t, out, "7. Постельное белье (КТРУ: 139210.100)")
	assert.Contains(t, out, "Ссылка: https://adilet.zan.kz/rus/docs/V2400034933")
}

func TestRenderOverridesSingleList(t *testing.T) {
	b := NewContextBuilder(loadTables(t))

	out := b.RenderOverrides([]models.OverrideEntry{
		{Num: 2, Name: "Халаты медицинские", ListType: models.ListDisabilityOrg},
	})
	assert.Equal(t, 1, strings.Count(out, "\n## "))
}

func TestRenderChunk(t *testing.T) {
	b := NewContextBuilder(loadTables(t))

	c := chunk("gz_instr_12", models.CategoryGoszakup, "  Нажмите «Создать объявление».  ")
	c.Chapter = "Создание объявления"
	out := b.RenderChunk(c)

	lines := strings.Split(out, "\n")
	assert.Equal(t, "[gz_instr_12] ПГЗ | goszakup.gov.kz | Создание объявления", lines[0])
	assert.Equal(t, "Ссылка: https://adilet.zan.kz/rus/docs/gz_instr_12", lines[1])
	assert.Equal(t, "Нажмите «Создать объявление».", lines[2])
	assert.Equal(t, chunkRule, lines[3])
	assert.True(t, strings.HasSuffix(out, chunkRule+"\n\n"))
}

func TestBuildBlockOrder(t *testing.T) {
	tables := loadTables(t)
	b := NewContextBuilder(tables)

	r := &Retrieval{
		Overrides: []models.OverrideEntry{{Num: 1, Name: "Мебель", ListType: models.ListDisabilityOrg}},
		Slices: []Slice{
			{Category: models.CategoryOmarket, Title: tables.Platforms[0].Title, Chunks: []models.Chunk{chunk("om_1", models.CategoryOmarket, "Каталог")}},
			{Category: models.CategoryGeneralLaw, Title: tables.Retrieval.GeneralTitle, Chunks: []models.Chunk{chunk("law_1", models.CategoryGeneralLaw, "Статья 1")}},
			{Category: models.CategoryCivilCode, Title: tables.Topics[0].Title},
			{Category: models.CategoryTaxCode, Title: tables.Topics[1].Title, Chunks: []models.Chunk{chunk("nk_1", models.CategoryTaxCode, "НДС")}},
		},
	}
	conflicts := NewConflictDetector(tables.Conflicts, nil, nil).Match(isoQuestion)

	out := b.Build(r, conflicts)

	positions := []int{
		strings.Index(out, tables.Overrides.Title),
		strings.Index(out, tables.Messages.ConflictTitle),
		strings.Index(out, tables.Platforms[0].Title),
		strings.Index(out, tables.Retrieval.GeneralTitle),
		strings.Index(out, tables.Topics[1].Title),
	}
	for i, p := range positions {
		require.GreaterOrEqual(t, p, 0, "block %d missing", i)
		if i > 0 {
			assert.Less(t, positions[i-1], p)
		}
	}
	assert.NotContains(t, out, tables.Topics[0].Title, "empty slices are skipped")
	assert.Contains(t, out, "conflict_discrimination_art9, conflict_discrimination_p40_42")
}

func TestRenderConflictsWithEvidence(t *testing.T) {
	tables := loadTables(t)
	b := NewContextBuilder(tables)

	matches := NewConflictDetector(tables.Conflicts, nil, nil).Match(isoQuestion)
	require.Len(t, matches, 1)
	matches[0].Evidence = []models.Chunk{chunk("conflict_discrimination_art9", models.CategoryConflictingNorm, "Статья 9")}

	out := b.RenderConflicts(matches)
	assert.True(t, strings.HasPrefix(out, tables.Messages.ConflictTitle))
	assert.Contains(t, out, tables.Messages.ConflictPositiveLabel)
	assert.Contains(t, out, tables.Messages.ConflictNegativeLabel)
	assert.Contains(t, out, matches[0].Definition.PositiveNorms[0])
	assert.Contains(t, out, matches[0].Definition.ConflictingNorms[0])
	assert.Contains(t, out, "[conflict_discrimination_art9]")
}
