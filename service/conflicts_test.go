package service

import (
	"context"
	"errors"
	"testing"

	"procurement-assistant/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const isoQuestion = "Можно ли требовать одновременно три сертификата ISO 9001, ISO 14001 и ISO 45001 как условие участия в закупке на 500 000 тенге?"

func evidenceIDs(m ConflictMatch) []string {
	ids := make([]string, 0, len(m.Evidence))
	for _, c := range m.Evidence {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestConflictMatch(t *testing.T) {
	d := NewConflictDetector(loadTables(t).Conflicts, nil, nil)

	matches := d.Match(isoQuestion)
	require.Len(t, matches, 1)
	assert.Equal(t, "discrimination", matches[0].Definition.Type)
	assert.ElementsMatch(t, []string{"одновременно", "iso", "сертификат", "условие участия"}, matches[0].Matched)
	assert.Equal(t,
		[]string{"conflict_discrimination_art9", "conflict_discrimination_p40_42"},
		matches[0].Definition.EvidenceChunkIDs,
	)

	t.Run("single keyword stays below threshold", func(t *testing.T) {
		assert.Empty(t, d.Match("Нужен ли сертификат?"))
	})

	t.Run("several conflicts at once", func(t *testing.T) {
		matches := d.Match("Можно ли требовать инженеров и специалистов с сертификатом ISO и ЭЦП на нотариальных документах?")
		assert.ElementsMatch(t,
			[]string{"personnel_requirements", "electronic_signature", "discrimination"},
			ConflictTypes(matches),
		)
	})
}

func TestConflictResolveEvidence(t *testing.T) {
	tables := loadTables(t)
	art9 := chunk("conflict_discrimination_art9", models.CategoryConflictingNorm, "Статья 9. Право на участие в государственных закупках")
	p40 := chunk("conflict_discrimination_p40_42", models.CategoryConflictingNorm, "40. Для подтверждения соответствия квалификационным требованиям...")

	t.Run("reuses retrieved chunks and fetches the rest", func(t *testing.T) {
		fetcher := newFakeChunkSearcher()
		fetcher.byID[p40.ID] = p40
		d := NewConflictDetector(tables.Conflicts, fetcher, nil)

		matches := d.Resolve(context.Background(), isoQuestion, []models.Chunk{art9})
		require.Len(t, matches, 1)
		assert.Equal(t, [][]string{{p40.ID}}, fetcher.fetched)
		assert.Equal(t, []string{art9.ID, p40.ID}, evidenceIDs(matches[0]))
	})

	t.Run("failed fetch keeps the match without evidence", func(t *testing.T) {
		fetcher := newFakeChunkSearcher()
		fetcher.fetchErr = errors.New("timeout")
		d := NewConflictDetector(tables.Conflicts, fetcher, nil)

		matches := d.Resolve(context.Background(), isoQuestion, nil)
		require.Len(t, matches, 1)
		assert.Empty(t, matches[0].Evidence)
	})

	t.Run("no match, no fetch", func(t *testing.T) {
		fetcher := newFakeChunkSearcher()
		d := NewConflictDetector(tables.Conflicts, fetcher, nil)

		assert.Nil(t, d.Resolve(context.Background(), "Сроки оплаты по договору", nil))
		assert.Empty(t, fetcher.fetched)
	})
}
