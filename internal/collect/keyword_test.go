package collect

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/blogi-collector/internal/pipeline"
	"github.com/JakeFAU/blogi-collector/internal/progress"
)

func TestCleanKeywordTitle(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "\u200b오타니, 맞대결!! 참교육 현장\u200f", want: "오타니, 맞대결 참교육 현장"},
		{in: "  K-팝   \"신곡\" 1.5배 ", want: "K-팝 신곡 1.5배"},
		{in: "\U0001F600\U0001F389", want: ""},
		{in: "", want: ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, CleanKeywordTitle(tc.in), tc.in)
	}
}

func TestTrendingURL(t *testing.T) {
	t.Parallel()

	u, err := url.Parse(trendingURL("엔터 종합"))
	require.NoError(t, err)
	require.Equal(t, "search.naver.com", u.Host)
	q := u.Query()
	require.Equal(t, "엔터 종합 숏텐츠", q.Get("query"))
	require.Equal(t, "엔터 종합", q.Get("category"))
	require.Equal(t, "tab.shortents.all", q.Get("ssc"))
	require.Equal(t, "svc_clk.entnewsmore", q.Get("sm"))
}

func TestKeywordRunCollectsAndSubmits(t *testing.T) {
	t.Parallel()

	pages := &trendingPages{
		titles: map[string][]string{
			"엔터 종합": {"첫 번째 제목", "  ", "두 번째!"},
			"맛집/카페": {"성수동 카페"},
		},
		failures: map[string]error{"경제 종합": errors.New("navigation timeout")},
	}
	store := &fakeStore{}
	emitter := &captureEmitter{}
	sweeper := &countingSweeper{}
	seoul := time.FixedZone("KST", 9*60*60)

	c := NewKeywordCollector(KeywordConfig{
		Categories: []Category{
			{Name: "연예", Display: "엔터 종합"},
			{Name: "경제", Display: "경제 종합"},
			{Name: "맛집", Display: "맛집/카페"},
		},
		Location: seoul,
	}, pages, store, testDeps(emitter, sweeper))

	summary, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, summary.Processed)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 3, summary.Submitted)
	require.Equal(t, 3, sweeper.count())
	require.Len(t, pages.visited, 3)

	require.Equal(t, []pipeline.KeywordCandidate{
		{Title: "첫 번째 제목", Category: "연예", SourceCategory: "엔터 종합", CollectedAt: "2025-03-01T09:00:00+09:00"},
		{Title: "두 번째", Category: "연예", SourceCategory: "엔터 종합", CollectedAt: "2025-03-01T09:00:00+09:00"},
		{Title: "성수동 카페", Category: "맛집", SourceCategory: "맛집/카페", CollectedAt: "2025-03-01T09:00:00+09:00"},
	}, store.candidates)
	require.Equal(t, []progress.Stage{
		progress.StageRunStart,
		progress.StageItemDone,
		progress.StageItemFailed,
		progress.StageItemDone,
		progress.StageRunDone,
	}, emitter.stages())
}

func TestKeywordRunSkipsSubmitWhenEmpty(t *testing.T) {
	t.Parallel()

	pages := &trendingPages{titles: map[string][]string{}}
	store := &fakeStore{submitErr: errors.New("must not be called")}
	c := NewKeywordCollector(KeywordConfig{Categories: []Category{{Name: "연예", Display: "엔터 종합"}}}, pages, store, Deps{})

	summary, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, summary.Submitted)
}

func TestKeywordRunSubmitFailure(t *testing.T) {
	t.Parallel()

	pages := &trendingPages{titles: map[string][]string{"엔터 종합": {"제목"}}}
	store := &fakeStore{submitErr: errors.New("503")}
	c := NewKeywordCollector(KeywordConfig{Categories: []Category{{Name: "연예", Display: "엔터 종합"}}}, pages, store, Deps{})

	summary, err := c.Run(context.Background())
	require.Error(t, err)
	require.True(t, summary.Aborted)
	require.Equal(t, AbortStore, summary.AbortReason)
}

func TestKeywordRunStopsOnCancelDuringPause(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	pages := &trendingPages{titles: map[string][]string{"엔터 종합": {"제목"}}}
	store := &fakeStore{}
	c := NewKeywordCollector(KeywordConfig{
		Categories: []Category{{Name: "연예", Display: "엔터 종합"}, {Name: "경제", Display: "경제 종합"}},
		Pause:      time.Hour,
	}, pages, store, Deps{})

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	summary, err := c.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, AbortCanceled, summary.AbortReason)
	require.Len(t, pages.visited, 1)
	require.Empty(t, store.candidates)
}
