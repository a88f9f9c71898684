// Package extract pulls article bodies out of news and blog pages.
//
// An Extractor walks an ordered list of strategies for one URL. The first
// strategy that finds non-empty text decides the outcome: the text is either
// accepted by the Validator or the whole extraction is rejected as
// irrelevant. Strategies that find nothing pass control to the next one.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrNoContent means no strategy found text under any selector.
	ErrNoContent = errors.New("extract: no content found")
	// ErrIrrelevant means text was found but failed validation.
	ErrIrrelevant = errors.New("extract: content too short or off topic")
)

// Outcome is what a single strategy produced for a URL.
type Outcome struct {
	Strategy string
	Selector string
	Text     string
	Err      error
}

// Found reports whether the outcome carries usable text.
func (o Outcome) Found() bool {
	return o.Err == nil && strings.TrimSpace(o.Text) != ""
}

// Strategy is one way of loading a page and reading its body.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, rawURL string) Outcome
}

// Result is the accepted outcome plus every outcome tried before it.
type Result struct {
	Outcome
	Tried []Outcome
}

// Extractor tries strategies in order.
type Extractor struct {
	strategies []Strategy
	validator  Validator
	logger     *zap.Logger
}

// NewExtractor builds an Extractor over the given ordered strategies.
func NewExtractor(validator Validator, logger *zap.Logger, strategies ...Strategy) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		strategies: append([]Strategy(nil), strategies...),
		validator:  validator,
		logger:     logger,
	}
}

// Extract returns the first validated body for rawURL. keyword drives the
// topic check.
func (e *Extractor) Extract(ctx context.Context, rawURL, keyword string) (Result, error) {
	var res Result
	var lastErr error
	for _, s := range e.strategies {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("extract %s: %w", rawURL, err)
		}
		out := s.Extract(ctx, rawURL)
		if out.Strategy == "" {
			out.Strategy = s.Name()
		}
		res.Tried = append(res.Tried, out)
		if out.Err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, fmt.Errorf("extract %s: %w", rawURL, ctxErr)
			}
			lastErr = out.Err
			e.logger.Debug("extraction strategy failed",
				zap.String("strategy", out.Strategy),
				zap.String("url", rawURL),
				zap.Error(out.Err),
			)
			continue
		}
		if !out.Found() {
			continue
		}
		out.Text = strings.TrimSpace(out.Text)
		if !e.validator.Valid(out.Text, keyword) {
			e.logger.Info("extracted content rejected",
				zap.String("strategy", out.Strategy),
				zap.String("url", rawURL),
				zap.Int("length", len([]rune(out.Text))),
			)
			res.Outcome = out
			return res, ErrIrrelevant
		}
		res.Outcome = out
		e.logger.Info("content extracted",
			zap.String("strategy", out.Strategy),
			zap.String("selector", out.Selector),
			zap.String("url", rawURL),
		)
		return res, nil
	}
	if lastErr != nil {
		return res, fmt.Errorf("%w: %w", ErrNoContent, lastErr)
	}
	return res, ErrNoContent
}
