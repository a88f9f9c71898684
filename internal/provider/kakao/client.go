// Package kakao is a client for the Kakao image search API.
package kakao

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/blogi-collector/internal/metrics"
	"github.com/JakeFAU/blogi-collector/internal/pipeline"
)

// DefaultBaseURL is the production API host.
const DefaultBaseURL = "https://dapi.kakao.com"

const rateLimitErrorType = "RateLimitExceeded"

// Waiter paces outbound requests.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config configures the client.
type Config struct {
	BaseURL    string
	RestAPIKey string
	Timeout    time.Duration
}

// Client implements pipeline.ImageProvider.
type Client struct {
	cfg    Config
	http   *http.Client
	waiter Waiter
	logger *zap.Logger
}

var _ pipeline.ImageProvider = (*Client)(nil)

// New builds a Client. httpClient, waiter and logger may be nil.
func New(cfg Config, httpClient *http.Client, waiter Waiter, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, http: httpClient, waiter: waiter, logger: logger}
}

type imageResponse struct {
	Documents []struct {
		ImageURL     string `json:"image_url"`
		ThumbnailURL string `json:"thumbnail_url"`
	} `json:"documents"`
}

type errorResponse struct {
	ErrorType string `json:"errorType"`
	Message   string `json:"message"`
}

// SearchImages returns up to count image URLs ordered by accuracy.
func (c *Client) SearchImages(ctx context.Context, query string, count int) ([]string, error) {
	if count <= 0 {
		count = 1
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("sort", "accuracy")
	params.Set("page", "1")
	params.Set("size", strconv.Itoa(count))
	reqURL := c.cfg.BaseURL + "/v2/search/image?" + params.Encode()

	if c.waiter != nil {
		if err := c.waiter.Wait(ctx, reqURL); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "KakaoAK "+c.cfg.RestAPIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveProviderRequest("kakao", "error")
		return nil, fmt.Errorf("kakao image search: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveProviderRequest("kakao", "error")
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("kakao image search", zap.String("query", query), zap.Int("status", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		_ = json.Unmarshal(body, &apiErr)
		if resp.StatusCode == http.StatusTooManyRequests || apiErr.ErrorType == rateLimitErrorType {
			metrics.ObserveProviderRequest("kakao", "quota")
			c.logger.Warn("kakao quota exceeded", zap.String("query", query))
			return nil, fmt.Errorf("kakao image search: %w", pipeline.ErrQuotaExceeded)
		}
		metrics.ObserveProviderRequest("kakao", "error")
		return nil, fmt.Errorf("kakao image search: status %d: %s %s", resp.StatusCode, apiErr.ErrorType, apiErr.Message)
	}

	var decoded imageResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		metrics.ObserveProviderRequest("kakao", "error")
		return nil, fmt.Errorf("decode kakao response: %w", err)
	}
	metrics.ObserveProviderRequest("kakao", "ok")

	images := make([]string, 0, len(decoded.Documents))
	for _, doc := range decoded.Documents {
		if doc.ImageURL == "" {
			continue
		}
		images = append(images, doc.ImageURL)
		if len(images) == count {
			break
		}
	}
	return images, nil
}
