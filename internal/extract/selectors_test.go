package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewsSelectorsLookup(t *testing.T) {
	t.Parallel()

	table := NewsSelectors()
	cases := []struct {
		url  string
		want []string
	}{
		{"https://n.news.naver.com/article/001/123", []string{"#dic_area"}},
		{"https://news.naver.com/main/read", []string{"#dic_area"}},
		{"https://www.hani.co.kr/arti/1.html", []string{"div.article-text"}},
		{"https://m.sportsseoul.com/news/1", []string{"article"}},
		{"https://unknown.example.com/a", []string{"#dic_area", "article", ".article", ".view", "#articleBodyContents", "div.article-content", "div#content"}},
		{"::bad", []string{"#dic_area", "article", ".article", ".view", "#articleBodyContents", "div.article-content", "div#content"}},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, table.Lookup(tc.url), tc.url)
	}
}

func TestBlogSelectorsPreferExactHost(t *testing.T) {
	t.Parallel()

	table := BlogSelectors()
	require.Equal(t, []string{"div.se-main-container"}, table.Lookup("https://m.blog.naver.com/foo/1"))
	require.Equal(t, []string{"div.se-viewer"}, table.Lookup("https://blog.naver.com/foo/1"))
}

func TestCandidatesDeduplicates(t *testing.T) {
	t.Parallel()

	table := BlogSelectors()
	require.Equal(t,
		[]string{"div.se-viewer", "div.se-main-container", "div#postViewArea"},
		table.Candidates("https://blog.naver.com/foo/1"),
	)
	require.Equal(t,
		[]string{"div.se-main-container", "div.se-viewer", "div#postViewArea"},
		table.Candidates("https://m.blog.naver.com/foo/1"),
	)
}

func TestLookupReturnsCopy(t *testing.T) {
	t.Parallel()

	table := NewSelectorTable(nil, []string{"a", "b"})
	got := table.Lookup("https://x.test")
	got[0] = "mutated"
	require.Equal(t, []string{"a", "b"}, table.Lookup("https://x.test"))
}
