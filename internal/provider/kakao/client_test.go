package kakao

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/blogi-collector/internal/pipeline"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, RestAPIKey: "key"}, srv.Client(), nil, nil)
}

func TestSearchImages(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/search/image", r.URL.Path)
		require.Equal(t, "KakaoAK key", r.Header.Get("Authorization"))
		q := r.URL.Query()
		require.Equal(t, "accuracy", q.Get("sort"))
		require.Equal(t, "1", q.Get("page"))
		require.Equal(t, "2", q.Get("size"))
		_, _ = w.Write([]byte(`{"documents":[{"image_url":"https://img.test/1.jpg"},{"image_url":""},{"image_url":"https://img.test/2.jpg"},{"image_url":"https://img.test/3.jpg"}]}`))
	})

	images, err := c.SearchImages(context.Background(), "제주 바다", 2)
	require.NoError(t, err)
	require.Equal(t, []string{"https://img.test/1.jpg", "https://img.test/2.jpg"}, images)
}

func TestSearchImagesQuota(t *testing.T) {
	t.Parallel()

	for name, handler := range map[string]http.HandlerFunc{
		"429": func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTooManyRequests) },
		"error type": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"errorType":"RateLimitExceeded","message":"API limit has been exceeded."}`))
		},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := newTestClient(t, handler).SearchImages(context.Background(), "q", 3)
			require.ErrorIs(t, err, pipeline.ErrQuotaExceeded)
		})
	}
}

func TestSearchImagesOtherFailure(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errorType":"AccessDeniedError","message":"wrong key"}`))
	})
	_, err := c.SearchImages(context.Background(), "q", 3)
	require.Error(t, err)
	require.False(t, errors.Is(err, pipeline.ErrQuotaExceeded))
	require.ErrorContains(t, err, "401")
}
