package pipeline

import (
	"errors"
	"strings"
	"time"
)

// ErrQuotaExceeded signals that an external provider refused the call because
// the caller's quota or rate budget is spent. Collection runs stop early on it.
var ErrQuotaExceeded = errors.New("provider quota exceeded")

// SourceKind selects which provider vertical a keyword's category maps to.
type SourceKind string

// Supported source kinds.
const (
	SourceNews SourceKind = "news"
	SourceBlog SourceKind = "blog"
)

// Valid reports whether the kind is one the collectors know how to search.
func (k SourceKind) Valid() bool {
	return k == SourceNews || k == SourceBlog
}

// Keyword is a work item handed out by the content store for article collection.
type Keyword struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
}

// Missing returns the names of required fields that are empty.
func (k Keyword) Missing() []string {
	var missing []string
	if k.ID <= 0 {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(k.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(k.Category) == "" {
		missing = append(missing, "category")
	}
	return missing
}

// ImageTarget is a keyword that already has an article and still needs images.
type ImageTarget struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category,omitempty"`
}

// KeywordCandidate is a trending title scraped during keyword collection.
type KeywordCandidate struct {
	Title          string `json:"title"`
	Category       string `json:"category"`
	SourceCategory string `json:"source_category"`
	CollectedAt    string `json:"collected_at"`
}

// Article is the scraped body submitted for a keyword.
type Article struct {
	KeywordID  int64  `json:"keyword_id"`
	Title      string `json:"title"`
	OriginLink string `json:"origin_link"`
	Content    string `json:"content"`
}

// ImageSet is the list of representative image URLs for a keyword.
type ImageSet struct {
	KeywordID int64    `json:"keyword_id"`
	Images    []string `json:"images"`
}

// SearchItem is one ordered candidate returned by a search provider.
type SearchItem struct {
	Title string
	Link  string
	// SecondaryLink carries the provider's alternate URL (original article
	// link for news, blogger home for blogs). It may be empty.
	SecondaryLink string
	Description   string
	PublishedAt   time.Time
}
