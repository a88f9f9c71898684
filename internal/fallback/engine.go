// Package fallback runs progressively relaxed search queries for a title
// until a sufficiency threshold is met or the attempt budget is spent.
//
// The order is fixed: the exact title, then "first two-gram" pairs of the
// title's nouns, then "first noun" singles. Attempts never run concurrently,
// so budget consumption is deterministic for a given title.
package fallback

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/blogi-collector/internal/metrics"
	"github.com/JakeFAU/blogi-collector/internal/nlp"
)

// DefaultMaxAttempts bounds provider calls per search when no budget is configured.
const DefaultMaxAttempts = 4

// NounExtractor returns the noun candidates of a title in order.
type NounExtractor interface {
	Nouns(title string) []string
}

// Attempt issues one provider query and reports the value found together with
// how many usable items it represents. Returning an error stops the search.
type Attempt[T any] func(ctx context.Context, query string) (T, int, error)

// Result is the best outcome observed across a search.
type Result[T any] struct {
	Value T
	Count int
	// Query is the query that produced Value; empty when nothing was found.
	Query string
	// Attempts is the number of provider calls issued.
	Attempts int
}

// Satisfied reports whether the result met the requested target.
func (r Result[T]) Satisfied(target int) bool {
	return r.Count >= target
}

// Engine holds the shared search policy used by article and image collection.
type Engine struct {
	nouns       NounExtractor
	maxAttempts int
	logger      *zap.Logger
	name        string
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxAttempts overrides the per-search attempt budget.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithName labels metrics and logs emitted by the engine ("article", "image").
func WithName(name string) Option {
	return func(e *Engine) {
		e.name = name
	}
}

// New constructs an Engine. A nil extractor disables the relaxed queries and
// limits every search to the exact title.
func New(nouns NounExtractor, opts ...Option) *Engine {
	e := &Engine{
		nouns:       nouns,
		maxAttempts: DefaultMaxAttempts,
		logger:      zap.NewNop(),
		name:        "default",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxAttempts returns the configured attempt budget.
func (e *Engine) MaxAttempts() int {
	return e.maxAttempts
}

// Queries lists the relaxed queries for a title in the order they are tried,
// excluding the exact title. The list is not truncated to the budget.
func (e *Engine) Queries(title string) []string {
	if e.nouns == nil {
		return nil
	}
	first := nlp.FirstToken(title)
	nouns := filterNouns(e.nouns.Nouns(title), first)
	queries := make([]string, 0, 2*len(nouns))
	for i := 0; i+1 < len(nouns); i++ {
		queries = append(queries, joinQuery(first, nouns[i], nouns[i+1]))
	}
	for _, noun := range nouns {
		queries = append(queries, joinQuery(first, noun))
	}
	return queries
}

// Search runs the progressive query sequence for title against attempt. It
// returns as soon as an attempt yields at least target items; otherwise it
// returns the highest-count result seen once candidates or budget run out.
func Search[T any](ctx context.Context, e *Engine, title string, target int, attempt Attempt[T]) (Result[T], error) {
	if target <= 0 {
		target = 1
	}
	var best Result[T]
	try := func(query string) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, fmt.Errorf("fallback search: %w", err)
		}
		best.Attempts++
		value, count, err := attempt(ctx, query)
		if err != nil {
			return false, err
		}
		e.logger.Debug("fallback attempt",
			zap.String("engine", e.name),
			zap.String("query", query),
			zap.Int("count", count),
			zap.Int("attempt", best.Attempts),
		)
		if count > best.Count {
			best.Value, best.Count, best.Query = value, count, query
		}
		return count >= target, nil
	}
	defer func() { metrics.ObserveFallbackAttempts(e.name, best.Attempts, best.Count >= target) }()

	done, err := try(strings.TrimSpace(title))
	if err != nil || done {
		return best, err
	}
	if e.nouns == nil {
		e.logger.Debug("no noun extractor; skipping relaxed queries", zap.String("engine", e.name))
		return best, nil
	}
	for _, query := range e.Queries(title) {
		if best.Attempts >= e.maxAttempts {
			e.logger.Debug("fallback budget exhausted",
				zap.String("engine", e.name),
				zap.String("title", title),
				zap.Int("best_count", best.Count),
			)
			break
		}
		done, err := try(query)
		if err != nil || done {
			return best, err
		}
	}
	return best, nil
}

// filterNouns drops nouns already covered by the first token.
func filterNouns(nouns []string, first string) []string {
	out := make([]string, 0, len(nouns))
	for _, noun := range nouns {
		if noun == "" || strings.Contains(first, noun) || strings.HasPrefix(first, noun) {
			continue
		}
		out = append(out, noun)
	}
	return out
}

func joinQuery(parts ...string) string {
	return strings.Join(parts, " ")
}
