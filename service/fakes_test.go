package service

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"procurement-assistant/config"
	"procurement-assistant/models"

	"github.com/stretchr/testify/require"
)

func loadTables(t *testing.T) *config.Tables {
	t.Helper()
	tables, err := config.DefaultTables()
	require.NoError(t, err)
	return tables
}

func chunk(id string, category models.Category, text string) models.Chunk {
	return models.Chunk{
		ID:            id,
		DocumentShort: "ПГЗ",
		SourceKind:    models.SourceRegulation,
		Category:      category,
		Text:          text,
		OfficialURL:   "https://adilet.zan.kz/rus/docs/" + id,
	}
}

type searchCall struct {
	query    string
	category models.Category
	limit    int
}

// fakeChunkSearcher answers by exact (category, query) first, then by category alone
type fakeChunkSearcher struct {
	mu         sync.Mutex
	byQuery    map[string][]models.Chunk
	byCategory map[models.Category][]models.Chunk
	errs       map[string]error
	byID       map[string]models.Chunk
	fetchErr   error
	calls      []searchCall
	fetched    [][]string
}

func newFakeChunkSearcher() *fakeChunkSearcher {
	return &fakeChunkSearcher{
		byQuery:    map[string][]models.Chunk{},
		byCategory: map[models.Category][]models.Chunk{},
		errs:       map[string]error{},
		byID:       map[string]models.Chunk{},
	}
}

func searchKey(category models.Category, query string) string {
	return string(category) + "|" + query
}

func (f *fakeChunkSearcher) Search(ctx context.Context, query string, category models.Category, limit int) ([]models.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, searchCall{query: query, category: category, limit: limit})

	key := searchKey(category, query)
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	res, ok := f.byQuery[key]
	if !ok {
		res = f.byCategory[category]
	}
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (f *fakeChunkSearcher) GetByIDs(ctx context.Context, ids []string) ([]models.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, append([]string(nil), ids...))
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var out []models.Chunk
	for _, id := range ids {
		if c, ok := f.byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeChunkSearcher) callsFor(category models.Category) []searchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []searchCall
	for _, c := range f.calls {
		if c.category == category {
			out = append(out, c)
		}
	}
	return out
}

type fakeOverrideSearcher struct {
	mu        sync.Mutex
	hits      []models.OverrideEntry
	byName    map[string][]models.OverrideEntry
	err       error
	queries   []string
	nameCalls []string
}

func (f *fakeOverrideSearcher) SearchOverrides(ctx context.Context, query string, limit int) ([]models.OverrideEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func (f *fakeOverrideSearcher) SearchOverridesByName(ctx context.Context, keyword string, limit int) ([]models.OverrideEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nameCalls = append(f.nameCalls, keyword)
	return f.byName[keyword], nil
}

// fakeCompleter replays scripted replies; the last one repeats
type fakeCompleter struct {
	mu       sync.Mutex
	replies  []string
	errs     []error
	requests []CompletionRequest
	hook     func(ctx context.Context)
}

func (f *fakeCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.requests)
	f.requests = append(f.requests, req)
	if f.hook != nil {
		f.hook(ctx)
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if len(f.replies) == 0 {
		return "", nil
	}
	if i >= len(f.replies) {
		i = len(f.replies) - 1
	}
	return f.replies[i], nil
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeSink struct {
	mu      sync.Mutex
	entries []*models.AnswerLog
	err     error
}

func (f *fakeSink) RecordAnswer(ctx context.Context, entry *models.AnswerLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return f.err
}

type fakeSource struct {
	files map[string]string
}

func (f *fakeSource) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	body, ok := f.files[key]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *fakeSource) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range f.files {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

type fakeChunkWriter struct {
	written []models.Chunk
	err     error
}

func (f *fakeChunkWriter) UpsertChunks(ctx context.Context, chunks []models.Chunk) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.written = append(f.written, chunks...)
	return len(chunks), nil
}

type fakeOverrideWriter struct {
	lists map[models.ListType][]models.OverrideEntry
}

func (f *fakeOverrideWriter) ReplaceList(ctx context.Context, listType models.ListType, entries []models.OverrideEntry) error {
	if f.lists == nil {
		f.lists = map[models.ListType][]models.OverrideEntry{}
	}
	f.lists[listType] = entries
	return nil
}

type fakeBans map[string]bool

func (f fakeBans) IsBanned(ctx context.Context, userID string) (bool, error) {
	return f[userID], nil
}
