package pipeline

import (
	"context"
	"time"
)

// ContentStore is the external collaborator that owns keywords, articles and images.
type ContentStore interface {
	// NextKeyword returns the next keyword pending article collection, or nil when exhausted.
	NextKeyword(ctx context.Context) (*Keyword, error)
	// NextImageTarget returns the next keyword pending image collection, or nil when exhausted.
	NextImageTarget(ctx context.Context) (*ImageTarget, error)
	SubmitKeywords(ctx context.Context, keywords []KeywordCandidate) error
	SubmitArticles(ctx context.Context, articles []Article) error
	SubmitImages(ctx context.Context, set ImageSet) error
	MarkImagesCollected(ctx context.Context, keywordID int64) error
	Deactivate(ctx context.Context, keywordID int64) error
}

// SearchProvider finds candidate pages for a query.
type SearchProvider interface {
	Search(ctx context.Context, kind SourceKind, query string, count int) ([]SearchItem, error)
}

// ImageProvider finds image URLs for a query.
type ImageProvider interface {
	SearchImages(ctx context.Context, query string, count int) ([]string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces opaque identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
