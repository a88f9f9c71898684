// Package naver is a client for the Naver Search Open API (news and blog).
package naver

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
const DefaultBaseURL = "https://openapi.naver.com"

const quotaErrorCode = "012"

// Waiter paces outbound requests.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config configures the client.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// Client implements pipeline.SearchProvider.
type Client struct {
	cfg    Config
	http   *http.Client
	waiter Waiter
	logger *zap.Logger
}

var _ pipeline.SearchProvider = (*Client)(nil)

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

type searchResponse struct {
	Items []struct {
		Title        string `json:"title"`
		Link         string `json:"link"`
		OriginalLink string `json:"originallink"`
		BloggerLink  string `json:"bloggerlink"`
		Description  string `json:"description"`
		PubDate      string `json:"pubDate"`
		PostDate     string `json:"postdate"`
	} `json:"items"`
}

type errorResponse struct {
	ErrorMessage string `json:"errorMessage"`
	ErrorCode    string `json:"errorCode"`
}

// Search queries news or blog results sorted by date.
func (c *Client) Search(ctx context.Context, kind pipeline.SourceKind, query string, count int) ([]pipeline.SearchItem, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("naver search: unsupported kind %q", kind)
	}
	if count <= 0 {
		count = 1
	}
	endpoint := fmt.Sprintf("%s/v1/search/%s.json", c.cfg.BaseURL, kind)
	params := url.Values{}
	params.Set("query", query)
	params.Set("display", strconv.Itoa(count))
	params.Set("sort", "date")
	reqURL := endpoint + "?" + params.Encode()

	if c.waiter != nil {
		if err := c.waiter.Wait(ctx, reqURL); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Naver-Client-Id", c.cfg.ClientID)
	req.Header.Set("X-Naver-Client-Secret", c.cfg.ClientSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveProviderRequest("naver", "error")
		return nil, fmt.Errorf("naver %s search: %w", kind, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveProviderRequest("naver", "error")
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(kind, query, resp.StatusCode, body)
	}

	var decoded searchResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		metrics.ObserveProviderRequest("naver", "error")
		return nil, fmt.Errorf("decode naver response: %w", err)
	}
	metrics.ObserveProviderRequest("naver", "ok")

	items := make([]pipeline.SearchItem, 0, len(decoded.Items))
	for _, it := range decoded.Items {
		item := pipeline.SearchItem{
			Title:       it.Title,
			Link:        it.Link,
			Description: it.Description,
		}
		switch kind {
		case pipeline.SourceNews:
			item.SecondaryLink = it.OriginalLink
			item.PublishedAt = parseTime(time.RFC1123Z, it.PubDate)
		case pipeline.SourceBlog:
			item.SecondaryLink = it.BloggerLink
			item.PublishedAt = parseTime("20060102", it.PostDate)
		}
		items = append(items, item)
	}
	c.logger.Debug("naver search",
		zap.String("kind", string(kind)),
		zap.String("query", query),
		zap.Int("items", len(items)),
	)
	return items, nil
}

func (c *Client) statusError(kind pipeline.SourceKind, query string, status int, body []byte) error {
	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)
	if status == http.StatusTooManyRequests || apiErr.ErrorCode == quotaErrorCode {
		metrics.ObserveProviderRequest("naver", "quota")
		c.logger.Warn("naver quota exceeded", zap.String("query", query), zap.Int("status", status))
		return fmt.Errorf("naver %s search: %w", kind, pipeline.ErrQuotaExceeded)
	}
	metrics.ObserveProviderRequest("naver", "error")
	msg := apiErr.ErrorMessage
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	return &StatusError{StatusCode: status, Code: apiErr.ErrorCode, Message: msg}
}

// StatusError is a non-quota API failure.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("naver api status %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

func parseTime(layout, value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(layout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
