package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type splitNouns struct{}

func (splitNouns) Nouns(text string) []string { return strings.Fields(text) }

func TestValidatorLength(t *testing.T) {
	t.Parallel()

	v := Validator{MinLength: 10}
	require.False(t, v.Valid("짧은 글", "키워드"))
	require.True(t, v.Valid(strings.Repeat("가", 10), "키워드"))
	require.False(t, v.Valid("   "+strings.Repeat("가", 9)+"   ", "키워드"))
}

func TestValidatorDefaultsMinLength(t *testing.T) {
	t.Parallel()

	v := Validator{}
	require.False(t, v.Valid(strings.Repeat("a", DefaultMinLength-1), ""))
	require.True(t, v.Valid(strings.Repeat("a", DefaultMinLength), ""))
}

func TestValidatorRequiresNounOverlap(t *testing.T) {
	t.Parallel()

	v := Validator{MinLength: 5, Nouns: splitNouns{}}
	require.True(t, v.Valid("손흥민 오늘 경기 득점", "손흥민 골"))
	require.False(t, v.Valid("날씨 맑음 내일 비", "손흥민 골"))
	require.True(t, v.Valid("날씨 맑음 내일 비", ""))
}
