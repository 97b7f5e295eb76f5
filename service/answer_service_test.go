package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"procurement-assistant/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type answerFixture struct {
	chunks    *fakeChunkSearcher
	overrides *fakeOverrideSearcher
	completer *fakeCompleter
	sink      *fakeSink
	service   *AnswerService
}

func newAnswerFixture(t *testing.T, opts ...AnswerServiceOption) *answerFixture {
	t.Helper()
	f := &answerFixture{
		chunks:    newFakeChunkSearcher(),
		overrides: &fakeOverrideSearcher{},
		completer: &fakeCompleter{},
		sink:      &fakeSink{},
	}
	base := []AnswerServiceOption{
		AnswerWithChunkSearcher(f.chunks),
		AnswerWithChunkFetcher(f.chunks),
		AnswerWithOverrideSearcher(f.overrides),
		AnswerWithCompleter(f.completer),
		AnswerWithSink(f.sink),
	}
	svc, err := NewAnswerService(append(base, opts...)...)
	require.NoError(t, err)
	f.service = svc
	return f
}

func TestAnswerNoContextFound(t *testing.T) {
	f := newAnswerFixture(t)

	result, err := f.service.Answer(context.Background(), AnswerRequest{UserID: "42", Question: "Как загрузить документы?"})
	require.NoError(t, err)

	assert.Equal(t, StageNoContextFound, result.Stage)
	assert.False(t, result.Accepted)
	assert.Equal(t, f.service.tables.Messages.NothingFound, result.Answer)
	assert.Zero(t, f.completer.calls(), "no model call without context")

	require.Len(t, f.sink.entries, 1)
	assert.Equal(t, string(StageNoContextFound), f.sink.entries[0].Stage)
	assert.Equal(t, "42", f.sink.entries[0].UserID)
}

func TestAnswerAccepted(t *testing.T) {
	f := newAnswerFixture(t)
	f.chunks.byCategory[models.CategoryGeneralLaw] = []models.Chunk{
		chunk("law_art6", models.CategoryGeneralLaw, "Заказчик утверждает годовой план закупок в течение десяти рабочих дней."),
	}
	f.completer.replies = []string{"Заказчик утверждает годовой план закупок."}

	result, err := f.service.Answer(context.Background(), AnswerRequest{UserID: "42", Question: "Кто утверждает годовой план закупок?"})
	require.NoError(t, err)

	assert.Equal(t, StageAccepted, result.Stage)
	assert.True(t, result.Accepted)
	assert.Equal(t, "Заказчик утверждает годовой план закупок.", result.Answer)
	assert.Equal(t, 1, result.ChunksUsed)
	assert.Equal(t, models.CategoryGoszakup, result.Platform)
	require.NotNil(t, result.Assessment)
	assert.Equal(t, models.RiskSafe, result.Assessment.Level)

	require.Equal(t, 1, f.completer.calls())
	req := f.completer.requests[0]
	assert.True(t, strings.HasPrefix(req.System, f.service.systemPrompt))
	assert.Contains(t, req.System, "КОНТЕКСТ:")
	assert.Contains(t, req.System, "[law_art6]")
	assert.Equal(t, "Кто утверждает годовой план закупок?", req.Question)

	require.Len(t, f.sink.entries, 1)
	entry := f.sink.entries[0]
	assert.True(t, entry.Accepted)
	assert.Equal(t, "safe", entry.RiskLevel)
	assert.Empty(t, entry.RejectionCode)
}

func TestAnswerRejected(t *testing.T) {
	f := newAnswerFixture(t)
	f.chunks.byCategory[models.CategoryGeneralLaw] = []models.Chunk{
		chunk("law_art45", models.CategoryGeneralLaw, "Изменение договора допускается путем заключения дополнительного соглашения."),
	}
	draft := "Для изменения суммы договора нужно создать новый пункт плана и утвердить его."
	f.completer.replies = []string{draft}

	result, err := f.service.Answer(context.Background(), AnswerRequest{UserID: "42", Question: "Как изменить сумму договора?"})
	require.NoError(t, err)

	assert.Equal(t, StageRejected, result.Stage)
	assert.False(t, result.Accepted)
	assert.NotEqual(t, draft, result.Answer)
	require.NotNil(t, result.Verdict)
	require.True(t, result.Verdict.Rejected)

	require.Len(t, f.sink.entries, 1)
	assert.Equal(t, string(result.Verdict.Reason.Code), f.sink.entries[0].RejectionCode)
}

func TestAnswerOverrideOnlyContext(t *testing.T) {
	f := newAnswerFixture(t)
	f.overrides.hits = []models.OverrideEntry{
		{Num: 4, Name: "Постельное белье", Method: "у организаций инвалидов", ListType: models.ListDisabilityOrg},
	}
	f.completer.replies = []string{"Постельное белье закупается у организаций инвалидов."}

	result, err := f.service.Answer(context.Background(), AnswerRequest{UserID: "7", Question: "Как закупать постельное белье?"})
	require.NoError(t, err)

	assert.True(t, result.OverrideListHit)
	assert.Zero(t, result.ChunksUsed)
	assert.Equal(t, 1, f.completer.calls())
	assert.Contains(t, f.completer.requests[0].System, "ПЕРЕЧНИ ТРУ")
	assert.Equal(t, StageAccepted, result.Stage, "override entries count as grounding")
}

func TestAnswerConflictWarning(t *testing.T) {
	f := newAnswerFixture(t)
	f.chunks.byCategory[models.CategoryGeneralLaw] = []models.Chunk{
		chunk("law_art9", models.CategoryGeneralLaw, "Право на участие в государственных закупках"),
	}
	f.chunks.byID["conflict_discrimination_art9"] = chunk("conflict_discrimination_art9", models.CategoryConflictingNorm, "Статья 9")
	f.chunks.byID["conflict_discrimination_p40_42"] = chunk("conflict_discrimination_p40_42", models.CategoryConflictingNorm, "Пункты 40-42")
	f.completer.replies = []string{"Есть противоречие норм."}

	result, err := f.service.Answer(context.Background(), AnswerRequest{UserID: "7", Question: isoQuestion})
	require.NoError(t, err)

	assert.Equal(t, []string{"discrimination"}, result.Conflicts)
	system := f.completer.requests[0].System
	assert.Contains(t, system, "КОНФЛИКТ НОРМ")
	assert.Contains(t, system, "[conflict_discrimination_art9]")
	assert.Contains(t, system, "[conflict_discrimination_p40_42]")
	assert.Less(t, strings.Index(system, "КОНФЛИКТ НОРМ"), strings.Index(system, "[law_art9]"))
}

func TestAnswerHistoryIsCapped(t *testing.T) {
	f := newAnswerFixture(t, AnswerWithMaxHistoryPairs(2))
	f.chunks.byCategory[models.CategoryGeneralLaw] = []models.Chunk{chunk("law_art6", models.CategoryGeneralLaw, "План")}
	f.completer.replies = []string{"План"}

	var history []models.Turn
	for i := 0; i < 30; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		history = append(history, models.Turn{Role: role, Content: fmt.Sprintf("turn %d", i)})
	}

	_, err := f.service.Answer(context.Background(), AnswerRequest{UserID: "1", Question: "Что такое план?", History: history})
	require.NoError(t, err)

	sent := f.completer.requests[0].History
	require.Len(t, sent, 4)
	assert.Equal(t, "turn 26", sent[0].Content)
	assert.Equal(t, "turn 29", sent[3].Content)
}

func TestAnswerGenerationFailure(t *testing.T) {
	f := newAnswerFixture(t)
	f.chunks.byCategory[models.CategoryGeneralLaw] = []models.Chunk{chunk("law_art6", models.CategoryGeneralLaw, "План")}
	f.completer.errs = []error{fmt.Errorf("%w: boom", ErrCompletionFailed)}

	_, err := f.service.Answer(context.Background(), AnswerRequest{UserID: "1", Question: "Что такое план?"})
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.ErrorIs(t, err, ErrCompletionFailed)
	assert.Empty(t, f.sink.entries)
}

func TestAnswerSinkFailureIsTolerated(t *testing.T) {
	f := newAnswerFixture(t)
	f.sink.err = errors.New("insert failed")

	result, err := f.service.Answer(context.Background(), AnswerRequest{UserID: "1", Question: "Как загрузить документы?"})
	require.NoError(t, err)
	assert.Equal(t, StageNoContextFound, result.Stage)
	assert.Len(t, f.sink.entries, 1)
}

func TestAnswerValidation(t *testing.T) {
	f := newAnswerFixture(t)

	_, err := f.service.Answer(context.Background(), AnswerRequest{Question: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	svc, err := NewAnswerService(AnswerWithChunkSearcher(newFakeChunkSearcher()))
	require.NoError(t, err)
	_, err = svc.Answer(context.Background(), AnswerRequest{Question: "вопрос"})
	assert.ErrorIs(t, err, ErrCompleterNotSet)

	svc, err = NewAnswerService(AnswerWithCompleter(&fakeCompleter{}))
	require.NoError(t, err)
	_, err = svc.Answer(context.Background(), AnswerRequest{Question: "вопрос"})
	assert.ErrorIs(t, err, ErrSearcherNotSet)
}

func TestCapHistory(t *testing.T) {
	turns := []models.Turn{{Content: "1"}, {Content: "2"}, {Content: "3"}}

	assert.Equal(t, turns, CapHistory(turns, 5))
	assert.Equal(t, turns[1:], CapHistory(turns, 1))
	assert.Nil(t, CapHistory(turns, 0))
}

func TestCapHistoryStartsWithUser(t *testing.T) {
	turns := []models.Turn{
		{Role: models.RoleUser, Content: "1"},
		{Role: models.RoleAssistant, Content: "2"},
		{Role: models.RoleUser, Content: "3"},
		{Role: models.RoleAssistant, Content: "4"},
		{Role: models.RoleUser, Content: "5"},
	}

	got := CapHistory(turns, 2)
	require.Len(t, got, 3)
	assert.Equal(t, models.RoleUser, got[0].Role)
	assert.Equal(t, "3", got[0].Content)

	greeting := []models.Turn{{Role: models.RoleAssistant, Content: "Здравствуйте"}, {Role: models.RoleUser, Content: "Привет"}}
	assert.Equal(t, greeting[1:], CapHistory(greeting, 5))
}
