package collect

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/blogi-collector/internal/extract"
	"github.com/JakeFAU/blogi-collector/internal/fallback"
	"github.com/JakeFAU/blogi-collector/internal/pipeline"
	"github.com/JakeFAU/blogi-collector/internal/progress"
)

var testCategories = map[string]pipeline.SourceKind{
	"연예": pipeline.SourceNews,
	"여행": pipeline.SourceBlog,
}

func newsItem(title, link string) pipeline.SearchItem {
	return pipeline.SearchItem{Title: title, Link: link}
}

func TestArticleRunSubmitsNewsArticle(t *testing.T) {
	t.Parallel()

	store := &fakeStore{keywords: []*pipeline.Keyword{{ID: 7, Title: "오타니 홈런", Category: "연예"}}}
	search := &fakeSearch{fn: func(pipeline.SourceKind, string) ([]pipeline.SearchItem, error) {
		return []pipeline.SearchItem{newsItem("<b>오타니</b> 홈런", "https://news.example/1")}, nil
	}}
	news := &fakeExtractor{bodies: map[string]string{"https://news.example/1": "본문 첫 줄\n\n  본문 둘째 줄  "}}
	emitter := &captureEmitter{}
	sweeper := &countingSweeper{}

	c := NewArticleCollector(ArticleConfig{Categories: testCategories}, store, search, exactEngine(), news, &fakeExtractor{}, testDeps(emitter, sweeper))
	summary, err := c.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, summary.Processed)
	require.Equal(t, 1, summary.Submitted)
	require.False(t, summary.Aborted)
	require.Len(t, store.articles, 1)
	art := store.articles[0]
	require.Equal(t, int64(7), art.KeywordID)
	require.Equal(t, "오타니 홈런", art.Title)
	require.Equal(t, "https://news.example/1", art.OriginLink)
	require.Equal(t, "본문 첫 줄\n본문 둘째 줄", art.Content)
	require.Empty(t, store.deactivated)
	require.Equal(t, []searchCall{{kind: pipeline.SourceNews, query: "오타니 홈런"}}, search.calls)
	require.Equal(t, 1, sweeper.count())
	require.Equal(t, []progress.Stage{progress.StageRunStart, progress.StageItemDone, progress.StageRunDone}, emitter.stages())
}

func TestArticleNewsFallsBackToOriginalLink(t *testing.T) {
	t.Parallel()

	store := &fakeStore{keywords: []*pipeline.Keyword{{ID: 1, Title: "키워드", Category: "연예"}}}
	search := &fakeSearch{fn: func(pipeline.SourceKind, string) ([]pipeline.SearchItem, error) {
		return []pipeline.SearchItem{{Title: "t", SecondaryLink: "https://origin.example/a"}}, nil
	}}
	news := &fakeExtractor{bodies: map[string]string{"https://origin.example/a": "body"}}

	c := NewArticleCollector(ArticleConfig{Categories: testCategories}, store, search, exactEngine(), news, nil, Deps{})
	_, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"https://origin.example/a"}, news.urls)
	require.Len(t, store.articles, 1)
}

func TestArticleBlogUsesOriginLink(t *testing.T) {
	t.Parallel()

	store := &fakeStore{keywords: []*pipeline.Keyword{{ID: 3, Title: "제주 여행", Category: "여행"}}}
	search := &fakeSearch{fn: func(pipeline.SourceKind, string) ([]pipeline.SearchItem, error) {
		return []pipeline.SearchItem{{
			Title:         "제주 여행기",
			Link:          "https://blog.naver.com/traveler/223456",
			SecondaryLink: "blog.naver.com/traveler",
		}}, nil
	}}
	blog := &fakeExtractor{bodies: map[string]string{"https://blog.naver.com/traveler/223456": "blog body"}}

	c := NewArticleCollector(ArticleConfig{Categories: testCategories}, store, search, exactEngine(), &fakeExtractor{}, blog, Deps{})
	summary, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Submitted)
	require.Equal(t, pipeline.SourceBlog, search.calls[0].kind)
	require.Equal(t, "https://blog.naver.com/traveler/223456", store.articles[0].OriginLink)
}

func TestArticleFallbackQueries(t *testing.T) {
	t.Parallel()

	title := "오타니 맞대결 참교육 현장"
	store := &fakeStore{keywords: []*pipeline.Keyword{{ID: 1, Title: title, Category: "연예"}}}
	search := &fakeSearch{fn: func(_ pipeline.SourceKind, query string) ([]pipeline.SearchItem, error) {
		if query == "오타니 맞대결 참교육" {
			return []pipeline.SearchItem{newsItem("hit", "https://news.example/hit")}, nil
		}
		return []pipeline.SearchItem{newsItem("miss", "https://news.example/miss")}, nil
	}}
	news := &fakeExtractor{bodies: map[string]string{"https://news.example/hit": "relevant"}}
	engine := fallback.New(staticNouns{"맞대결", "참교육", "현장"})

	c := NewArticleCollector(ArticleConfig{Categories: testCategories}, store, search, engine, news, nil, Deps{})
	summary, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Submitted)
	require.Equal(t, []string{"https://news.example/miss", "https://news.example/hit"}, news.urls)
	require.Equal(t, "https://news.example/hit", store.articles[0].OriginLink)
}

func TestArticleRepeatedKeywordIsDeactivatedWithoutScraping(t *testing.T) {
	t.Parallel()

	kw := &pipeline.Keyword{ID: 5, Title: "같은 키워드", Category: "연예"}
	store := &fakeStore{keywords: []*pipeline.Keyword{kw, kw}}
	search := &fakeSearch{fn: func(pipeline.SourceKind, string) ([]pipeline.SearchItem, error) {
		return []pipeline.SearchItem{newsItem("t", "https://news.example/5")}, nil
	}}
	news := &fakeExtractor{bodies: map[string]string{"https://news.example/5": "body"}}

	c := NewArticleCollector(ArticleConfig{Categories: testCategories}, store, search, exactEngine(), news, nil, Deps{})
	summary, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.Processed)
	require.Equal(t, 1, summary.Submitted)
	require.Equal(t, 1, summary.Skipped)
	require.Len(t, search.calls, 1)
	require.Len(t, news.urls, 1)
	require.Equal(t, []int64{5}, store.deactivated)
}

func TestArticleStuckKeywordAbortsRun(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		keywords: []*pipeline.Keyword{{ID: 9, Title: "고장", Category: "연예"}},
		repeat:   true,
		deactErr: errors.New("store down"),
	}
	search := &fakeSearch{fn: func(pipeline.SourceKind, string) ([]pipeline.SearchItem, error) { return nil, nil }}
	emitter := &captureEmitter{}

	c := NewArticleCollector(ArticleConfig{Categories: testCategories, MaxRepeats: 2}, store, search, exactEngine(), &fakeExtractor{}, nil, testDeps(emitter, nil))
	summary, err := c.Run(context.Background())
	require.Error(t, err)
	require.True(t, summary.Aborted)
	require.Equal(t, AbortStuck, summary.AbortReason)
	require.Equal(t, 3, summary.Processed)
	require.Len(t, search.calls, 1)
	last := emitter.last()
	require.Equal(t, progress.StageRunAborted, last.Stage)
	require.Equal(t, AbortStuck, last.Reason)
}

func TestArticleDuplicateURLDeactivates(t *testing.T) {
	t.Parallel()

	store := &fakeStore{keywords: []*pipeline.Keyword{
		{ID: 1, Title: "첫째", Category: "연예"},
		{ID: 2, Title: "둘째", Category: "연예"},
	}}
	search := &fakeSearch{fn: func(pipeline.SourceKind, string) ([]pipeline.SearchItem, error) {
		return []pipeline.SearchItem{newsItem("same", "https://news.example/same")}, nil
	}}
	news := &fakeExtractor{bodies: map[string]string{"https://news.example/same": "body"}}

	c := NewArticleCollector(ArticleConfig{Categories: testCategories}, store, search, exactEngine(), news, nil, Deps{})
	summary, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Submitted)
	require.Len(t, store.articles, 1)
	require.Equal(t, int64(1), store.articles[0].KeywordID)
	require.Equal(t, []int64{2}, store.deactivated)
}

func TestArticleDeactivatesUnservableKeywords(t *testing.T) {
	t.Parallel()

	store := &fakeStore{keywords: []*pipeline.Keyword{
		{ID: 1, Title: "", Category: "연예"},
		{ID: 2, Title: "분류 없음", Category: "미정"},
		{ID: 3, Title: "결과 없음", Category: "연예"},
		{ID: 4, Title: "검색 오류", Category: "연예"},
	}}
	search := &fakeSearch{fn: func(_ pipeline.SourceKind, query string) ([]pipeline.SearchItem, error) {
		if query == "검색 오류" {
			return nil, errors.New("boom")
		}
		return nil, nil
	}}

	c := NewArticleCollector(ArticleConfig{Categories: testCategories}, store, search, exactEngine(), &fakeExtractor{}, nil, Deps{})
	summary, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, summary.Processed)
	require.Equal(t, 4, summary.Deactivated)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, []int64{1, 2, 3, 4}, store.deactivated)
	require.Len(t, search.calls, 2)
}

func TestArticleIrrelevantContentCountsAsMiss(t *testing.T) {
	t.Parallel()

	store := &fakeStore{keywords: []*pipeline.Keyword{{ID: 1, Title: "키워드", Category: "연예"}}}
	search := &fakeSearch{fn: func(pipeline.SourceKind, string) ([]pipeline.SearchItem, error) {
		return []pipeline.SearchItem{newsItem("t", "https://news.example/x")}, nil
	}}
	news := &fakeExtractor{err: fmt.Errorf("wrapped: %w", extract.ErrIrrelevant)}

	c := NewArticleCollector(ArticleConfig{Categories: testCategories}, store, search, exactEngine(), news, nil, Deps{})
	summary, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, summary.Submitted)
	require.Equal(t, []int64{1}, store.deactivated)
}

func TestArticleQuotaAbortsWithoutDeactivating(t *testing.T) {
	t.Parallel()

	store := &fakeStore{keywords: []*pipeline.Keyword{
		{ID: 1, Title: "하나", Category: "연예"},
		{ID: 2, Title: "둘", Category: "연예"},
		{ID: 3, Title: "셋", Category: "연예"},
	}}
	search := &fakeSearch{fn: func(_ pipeline.SourceKind, query string) ([]pipeline.SearchItem, error) {
		if query == "둘" {
			return nil, fmt.Errorf("naver: %w", pipeline.ErrQuotaExceeded)
		}
		return []pipeline.SearchItem{newsItem("t", "https://news.example/"+query)}, nil
	}}
	news := &fakeExtractor{bodies: map[string]string{"https://news.example/하나": "body"}}

	c := NewArticleCollector(ArticleConfig{Categories: testCategories}, store, search, exactEngine(), news, nil, Deps{})
	summary, err := c.Run(context.Background())
	require.ErrorIs(t, err, pipeline.ErrQuotaExceeded)
	require.True(t, summary.Aborted)
	require.Equal(t, AbortQuota, summary.AbortReason)
	require.Equal(t, 1, summary.Submitted)
	require.Empty(t, store.deactivated)
	require.Len(t, search.calls, 2)
	require.Len(t, store.keywords, 1)
}

func TestArticleSubmitFailureDeactivates(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		keywords:  []*pipeline.Keyword{{ID: 4, Title: "키워드", Category: "연예"}},
		submitErr: errors.New("400"),
	}
	search := &fakeSearch{fn: func(pipeline.SourceKind, string) ([]pipeline.SearchItem, error) {
		return []pipeline.SearchItem{newsItem("t", "https://news.example/4")}, nil
	}}
	news := &fakeExtractor{bodies: map[string]string{"https://news.example/4": "body"}}

	c := NewArticleCollector(ArticleConfig{Categories: testCategories}, store, search, exactEngine(), news, nil, Deps{})
	summary, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, []int64{4}, store.deactivated)
}

func TestArticleStoreFailureAbortsRun(t *testing.T) {
	t.Parallel()

	store := &fakeStore{nextErr: errors.New("connection refused")}
	c := NewArticleCollector(ArticleConfig{Categories: testCategories}, store, nil, exactEngine(), nil, nil, Deps{})
	summary, err := c.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, AbortStore, summary.AbortReason)
}

func TestArticleCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := &fakeStore{keywords: []*pipeline.Keyword{{ID: 1, Title: "키워드", Category: "연예"}}}
	c := NewArticleCollector(ArticleConfig{Categories: testCategories}, store, nil, exactEngine(), nil, nil, Deps{})
	summary, err := c.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, AbortCanceled, summary.AbortReason)
	require.Len(t, store.keywords, 1)
}

// blockingSearch parks inside Search until released.
type blockingSearch struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSearch) Search(ctx context.Context, _ pipeline.SourceKind, _ string, _ int) ([]pipeline.SearchItem, error) {
	close(b.entered)
	select {
	case <-b.release:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestArticleRejectsConcurrentRun(t *testing.T) {
	t.Parallel()

	store := &fakeStore{keywords: []*pipeline.Keyword{{ID: 1, Title: "키워드", Category: "연예"}}}
	search := &blockingSearch{entered: make(chan struct{}), release: make(chan struct{})}
	c := NewArticleCollector(ArticleConfig{Categories: testCategories}, store, search, exactEngine(), &fakeExtractor{}, nil, Deps{})

	done := make(chan error, 1)
	go func() {
		_, err := c.Run(context.Background())
		done <- err
	}()
	<-search.entered

	_, err := c.Run(context.Background())
	require.ErrorIs(t, err, ErrRunInProgress)

	close(search.release)
	require.NoError(t, <-done)
}

func TestCandidateLink(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://a", candidateLink(pipeline.SourceNews, pipeline.SearchItem{Link: " https://a ", SecondaryLink: "https://b"}))
	require.Equal(t, "https://b", candidateLink(pipeline.SourceNews, pipeline.SearchItem{SecondaryLink: "https://b"}))
	require.Empty(t, candidateLink(pipeline.SourceBlog, pipeline.SearchItem{Link: "https://blog.naver.com/x/1"}))
	require.Equal(t, "https://blog.naver.com/x/1", candidateLink(pipeline.SourceBlog, pipeline.SearchItem{
		Link:          "https://m.blog.naver.com/x/1",
		SecondaryLink: "blog.naver.com/x",
	}))
}
