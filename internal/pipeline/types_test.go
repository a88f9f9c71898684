package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeywordMissing(t *testing.T) {
	t.Parallel()

	require.Empty(t, Keyword{ID: 1, Title: "오타니", Category: "스포츠"}.Missing())
	require.Equal(t, []string{"id", "title", "category"}, Keyword{Title: "  "}.Missing())
	require.Equal(t, []string{"category"}, Keyword{ID: 7, Title: "x"}.Missing())
}

func TestSourceKindValid(t *testing.T) {
	t.Parallel()

	require.True(t, SourceNews.Valid())
	require.True(t, SourceBlog.Valid())
	require.False(t, SourceKind("video").Valid())
}
