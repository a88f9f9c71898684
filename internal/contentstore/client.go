// Package contentstore talks to the content store's internal HTTP API,
// which owns keywords, articles and images.
package contentstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/blogi-collector/internal/metrics"
	"github.com/JakeFAU/blogi-collector/internal/pipeline"
)

// SecretHeader carries the shared internal secret.
const SecretHeader = "X-Internal-Secret"

const (
	pathKeywords        = "/api/internal/keywords/"
	pathSubmitKeywords  = "/api/internal/posts/"
	pathArticles        = "/api/internal/article/create/"
	pathNextImageTarget = "/api/internal/keywords/next-image-target/"
	pathImages          = "/api/internal/images/"
)

var (
	// ErrUnexpectedStatus matches every *StatusError.
	ErrUnexpectedStatus = errors.New("content store: unexpected status")
	errTransport        = errors.New("content store: transport failure")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("content store %s: status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// Is lets errors.Is match ErrUnexpectedStatus.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}

// Config configures the client.
type Config struct {
	BaseURL    string
	Secret     string
	Timeout    time.Duration
	MaxRetries int
}

// Client implements pipeline.ContentStore over HTTP.
type Client struct {
	cfg    Config
	http   *http.Client
	retry  *RetryPolicy
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

var _ pipeline.ContentStore = (*Client)(nil)

// New builds a Client. httpClient and logger may be nil.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		retry:  NewRetryPolicy(cfg.MaxRetries),
		logger: logger,
		sleep:  sleepCtx,
	}
}

type keywordEnvelope struct {
	Data *pipeline.Keyword `json:"data"`
}

// NextKeyword fetches the next keyword awaiting an article. It returns nil
// when the store answers 404 or hands out an item without an id.
func (c *Client) NextKeyword(ctx context.Context) (*pipeline.Keyword, error) {
	var env keywordEnvelope
	err := c.do(ctx, "next_keyword", http.MethodGet, pathKeywords, nil, &env)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if env.Data == nil || env.Data.ID <= 0 {
		if env.Data != nil {
			c.logger.Warn("next keyword has no id; ending run",
				zap.String("title", env.Data.Title),
				zap.String("category", env.Data.Category),
			)
		}
		return nil, nil
	}
	return env.Data, nil
}

// NextImageTarget fetches the next keyword awaiting images. The store may
// answer with the bare object or wrap it in "data".
func (c *Client) NextImageTarget(ctx context.Context) (*pipeline.ImageTarget, error) {
	var raw json.RawMessage
	err := c.do(ctx, "next_image_target", http.MethodGet, pathNextImageTarget, nil, &raw)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	target, err := decodeImageTarget(raw)
	if err != nil {
		return nil, err
	}
	if target == nil || target.ID <= 0 {
		return nil, nil
	}
	return target, nil
}

func decodeImageTarget(raw json.RawMessage) (*pipeline.ImageTarget, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var wrapped struct {
		Data *pipeline.ImageTarget `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode image target: %w", err)
	}
	if wrapped.Data != nil {
		return wrapped.Data, nil
	}
	var target pipeline.ImageTarget
	if err := json.Unmarshal(raw, &target); err != nil {
		return nil, fmt.Errorf("decode image target: %w", err)
	}
	return &target, nil
}

// SubmitKeywords posts scraped keyword candidates.
func (c *Client) SubmitKeywords(ctx context.Context, keywords []pipeline.KeywordCandidate) error {
	return c.do(ctx, "submit_keywords", http.MethodPost, pathSubmitKeywords, keywords, nil)
}

// SubmitArticles posts article bodies.
func (c *Client) SubmitArticles(ctx context.Context, articles []pipeline.Article) error {
	return c.do(ctx, "submit_articles", http.MethodPost, pathArticles, articles, nil)
}

// SubmitImages posts the image set for a keyword.
func (c *Client) SubmitImages(ctx context.Context, set pipeline.ImageSet) error {
	return c.do(ctx, "submit_images", http.MethodPost, pathImages, set, nil)
}

// MarkImagesCollected flags a keyword's image collection as done.
func (c *Client) MarkImagesCollected(ctx context.Context, keywordID int64) error {
	return c.do(ctx, "mark_collected", http.MethodPatch, keywordPath(keywordID, "collected"), struct{}{}, nil)
}

// Deactivate retires a keyword so it is never handed out again.
func (c *Client) Deactivate(ctx context.Context, keywordID int64) error {
	return c.do(ctx, "deactivate", http.MethodPatch, keywordPath(keywordID, "deactivate"), struct{}{}, nil)
}

func keywordPath(id int64, action string) string {
	return pathKeywords + strconv.FormatInt(id, 10) + "/" + action + "/"
}

func isNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// do issues the request, retrying GET and PATCH through the retry policy.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode %s: %w", op, err)
		}
	}
	idempotent := method == http.MethodGet || method == http.MethodPatch
	for attempt := 1; ; attempt++ {
		err := c.once(ctx, op, method, path, payload, out)
		if err == nil {
			metrics.ObserveContentStoreRequest(op, "ok")
			return nil
		}
		if !idempotent || !c.retry.ShouldRetry(err, attempt) {
			metrics.ObserveContentStoreRequest(op, outcomeOf(err))
			return err
		}
		wait := c.retry.Backoff(attempt)
		c.logger.Warn("content store call failed; retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if serr := c.sleep(ctx, wait); serr != nil {
			metrics.ObserveContentStoreRequest(op, "cancelled")
			return fmt.Errorf("content store %s: %w", op, serr)
		}
	}
}

func (c *Client) once(ctx context.Context, op, method, path string, payload []byte, out any) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Secret != "" {
		req.Header.Set(SecretHeader, c.cfg.Secret)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("content store %s: %w", op, ctx.Err())
		}
		return fmt.Errorf("content store %s: %w: %w", op, errTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("content store %s: %w: %w", op, errTransport, err)
	}
	c.logger.Debug("content store call",
		zap.String("operation", op),
		zap.String("method", method),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Operation: op, StatusCode: resp.StatusCode, Body: truncate(string(data), 256)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

func outcomeOf(err error) string {
	var se *StatusError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.As(err, &se) && se.StatusCode == http.StatusNotFound:
		return "not_found"
	case errors.As(err, &se):
		return "status_" + strconv.Itoa(se.StatusCode/100) + "xx"
	default:
		return "error"
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
