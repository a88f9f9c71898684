package extract

import (
	"bytes"
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	collyfetcher "github.com/JakeFAU/blogi-collector/internal/fetcher/colly"
)

// HTMLFetcher downloads a page without a browser.
type HTMLFetcher interface {
	FetchHTML(ctx context.Context, rawURL string) (collyfetcher.Page, error)
}

// StaticStrategy reads the body from server-rendered HTML.
type StaticStrategy struct {
	fetcher HTMLFetcher
	table   SelectorTable
}

// NewStaticStrategy builds a StaticStrategy.
func NewStaticStrategy(fetcher HTMLFetcher, table SelectorTable) *StaticStrategy {
	return &StaticStrategy{fetcher: fetcher, table: table}
}

// Name implements Strategy.
func (s *StaticStrategy) Name() string { return "static" }

// Extract implements Strategy.
func (s *StaticStrategy) Extract(ctx context.Context, rawURL string) Outcome {
	out := Outcome{Strategy: s.Name()}
	page, err := s.fetcher.FetchHTML(ctx, rawURL)
	if err != nil {
		out.Err = err
		return out
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		out.Err = fmt.Errorf("parse html: %w", err)
		return out
	}
	for _, selector := range s.table.Lookup(rawURL) {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		sel.Find(droppedTags).Remove()
		if text := joinLines(nodeText(sel)); text != "" {
			out.Selector, out.Text = selector, text
			return out
		}
	}
	return out
}
