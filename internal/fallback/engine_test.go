package fallback

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/blogi-collector/internal/nlp"
)

type staticNouns []string

func (s staticNouns) Nouns(string) []string { return s }

type recorder struct {
	queries []string
	counts  map[string]int
	err     error
}

func (r *recorder) attempt(_ context.Context, query string) ([]string, int, error) {
	r.queries = append(r.queries, query)
	if r.err != nil {
		return nil, 0, r.err
	}
	n := r.counts[query]
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s#%d", query, i)
	}
	return out, n, nil
}

func TestSearchFallsBackToTwoGram(t *testing.T) {
	t.Parallel()

	engine := New(nlp.New())
	rec := &recorder{counts: map[string]int{"오타니 맞대결 참교육": 1}}

	res, err := Search(context.Background(), engine, "오타니, 맞대결 참교육 현장", 1, rec.attempt)
	require.NoError(t, err)
	require.Equal(t, []string{"오타니, 맞대결 참교육 현장", "오타니 맞대결 참교육"}, rec.queries)
	require.Equal(t, "오타니 맞대결 참교육", res.Query)
	require.True(t, res.Satisfied(1))
	require.Equal(t, 2, res.Attempts)
}

func TestSearchExactHitMakesOneCall(t *testing.T) {
	t.Parallel()

	engine := New(nlp.New())
	rec := &recorder{counts: map[string]int{"손흥민 결승골": 3}}

	res, err := Search(context.Background(), engine, "손흥민 결승골", 3, rec.attempt)
	require.NoError(t, err)
	require.Len(t, rec.queries, 1)
	require.Len(t, res.Value, 3)
	require.Equal(t, 1, res.Attempts)
}

func TestSearchNeverExceedsBudget(t *testing.T) {
	t.Parallel()

	nouns := make(staticNouns, 0, 20)
	for i := range 20 {
		nouns = append(nouns, fmt.Sprintf("명사%d", i))
	}
	engine := New(nouns, WithMaxAttempts(4))
	rec := &recorder{counts: map[string]int{}}

	res, err := Search(context.Background(), engine, "제목 테스트", 3, rec.attempt)
	require.NoError(t, err)
	require.Len(t, rec.queries, 4)
	require.Equal(t, 4, res.Attempts)
	require.Equal(t, 0, res.Count)
}

func TestSearchReturnsBestPartial(t *testing.T) {
	t.Parallel()

	engine := New(staticNouns{"가수", "무대", "컴백"}, WithMaxAttempts(4))
	rec := &recorder{counts: map[string]int{
		"아이유 가수 무대": 1,
		"아이유 무대 컴백": 2,
		"아이유 가수":    1,
	}}

	res, err := Search(context.Background(), engine, "아이유 가수 무대 컴백", 3, rec.attempt)
	require.NoError(t, err)
	require.Equal(t, []string{
		"아이유 가수 무대 컴백",
		"아이유 가수 무대",
		"아이유 무대 컴백",
		"아이유 가수",
	}, rec.queries)
	require.Equal(t, 2, res.Count)
	require.Equal(t, "아이유 무대 컴백", res.Query)
}

func TestSearchWithoutExtractorStopsAfterExact(t *testing.T) {
	t.Parallel()

	engine := New(nil)
	rec := &recorder{counts: map[string]int{}}

	res, err := Search(context.Background(), engine, "오타니, 맞대결 참교육 현장", 1, rec.attempt)
	require.NoError(t, err)
	require.Len(t, rec.queries, 1)
	require.False(t, res.Satisfied(1))
}

func TestSearchFiltersNounsCoveredByFirstToken(t *testing.T) {
	t.Parallel()

	engine := New(staticNouns{"류승범", "공효진", "결혼", "발표"})
	require.Equal(t, []string{
		"류승범♥공효진 결혼 발표",
		"류승범♥공효진 결혼",
		"류승범♥공효진 발표",
	}, engine.Queries("류승범♥공효진 결혼발표"))
}

func TestSearchPropagatesAttemptError(t *testing.T) {
	t.Parallel()

	boom := errors.New("quota")
	engine := New(nlp.New())
	rec := &recorder{err: boom}

	_, err := Search(context.Background(), engine, "오타니, 맞대결 참교육 현장", 1, rec.attempt)
	require.ErrorIs(t, err, boom)
	require.Len(t, rec.queries, 1)
}

func TestSearchHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &recorder{}

	_, err := Search(ctx, New(nlp.New()), "제목", 1, rec.attempt)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, rec.queries)
}
