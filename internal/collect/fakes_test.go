package collect

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/JakeFAU/blogi-collector/internal/browser"
	"github.com/JakeFAU/blogi-collector/internal/extract"
	"github.com/JakeFAU/blogi-collector/internal/fallback"
	"github.com/JakeFAU/blogi-collector/internal/pipeline"
	"github.com/JakeFAU/blogi-collector/internal/progress"
)

type fakeStore struct {
	mu          sync.Mutex
	keywords    []*pipeline.Keyword
	targets     []*pipeline.ImageTarget
	nextErr     error
	submitErr   error
	deactErr    error
	candidates  []pipeline.KeywordCandidate
	articles    []pipeline.Article
	images      []pipeline.ImageSet
	collected   []int64
	deactivated []int64
	// repeat makes the store hand back the last keyword forever.
	repeat bool
}

func (s *fakeStore) NextKeyword(context.Context) (*pipeline.Keyword, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextErr != nil {
		return nil, s.nextErr
	}
	if len(s.keywords) == 0 {
		return nil, nil
	}
	kw := s.keywords[0]
	if !s.repeat || len(s.keywords) > 1 {
		s.keywords = s.keywords[1:]
	}
	return kw, nil
}

func (s *fakeStore) NextImageTarget(context.Context) (*pipeline.ImageTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextErr != nil {
		return nil, s.nextErr
	}
	if len(s.targets) == 0 {
		return nil, nil
	}
	t := s.targets[0]
	if !s.repeat || len(s.targets) > 1 {
		s.targets = s.targets[1:]
	}
	return t, nil
}

func (s *fakeStore) SubmitKeywords(_ context.Context, keywords []pipeline.KeywordCandidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitErr != nil {
		return s.submitErr
	}
	s.candidates = append(s.candidates, keywords...)
	return nil
}

func (s *fakeStore) SubmitArticles(_ context.Context, articles []pipeline.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitErr != nil {
		return s.submitErr
	}
	s.articles = append(s.articles, articles...)
	return nil
}

func (s *fakeStore) SubmitImages(_ context.Context, set pipeline.ImageSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitErr != nil {
		return s.submitErr
	}
	s.images = append(s.images, set)
	return nil
}

func (s *fakeStore) MarkImagesCollected(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collected = append(s.collected, id)
	return nil
}

func (s *fakeStore) Deactivate(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deactErr != nil {
		return s.deactErr
	}
	s.deactivated = append(s.deactivated, id)
	return nil
}

type searchCall struct {
	kind  pipeline.SourceKind
	query string
}

type fakeSearch struct {
	mu    sync.Mutex
	calls []searchCall
	fn    func(kind pipeline.SourceKind, query string) ([]pipeline.SearchItem, error)
}

func (f *fakeSearch) Search(_ context.Context, kind pipeline.SourceKind, query string, _ int) ([]pipeline.SearchItem, error) {
	f.mu.Lock()
	f.calls = append(f.calls, searchCall{kind: kind, query: query})
	f.mu.Unlock()
	return f.fn(kind, query)
}

type fakeImages struct {
	mu      sync.Mutex
	queries []string
	fn      func(query string, count int) ([]string, error)
}

func (f *fakeImages) SearchImages(_ context.Context, query string, count int) ([]string, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	return f.fn(query, count)
}

// fakeExtractor returns the body registered for a URL or extract.ErrNoContent.
type fakeExtractor struct {
	mu     sync.Mutex
	bodies map[string]string
	urls   []string
	err    error
}

func (f *fakeExtractor) Extract(_ context.Context, rawURL, _ string) (extract.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, rawURL)
	if f.err != nil {
		return extract.Result{}, f.err
	}
	body, ok := f.bodies[rawURL]
	if !ok {
		return extract.Result{}, extract.ErrNoContent
	}
	return extract.Result{Outcome: extract.Outcome{Strategy: "fake", Text: body}}, nil
}

type countingSweeper struct {
	mu    sync.Mutex
	calls int
}

func (s *countingSweeper) CloseAllContexts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return 0
}

func (s *countingSweeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (c *captureEmitter) Emit(evt progress.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *captureEmitter) stages() []progress.Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]progress.Stage, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.Stage)
	}
	return out
}

func (c *captureEmitter) last() progress.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[len(c.events)-1]
}

type fixedRunIDs struct{}

func (fixedRunIDs) NewRunID() [16]byte { return [16]byte{1, 2, 3} }

type staticNouns []string

func (s staticNouns) Nouns(string) []string { return s }

// trendingPages serves canned headline lists keyed by the category display
// name found in the trending URL.
type trendingPages struct {
	mu       sync.Mutex
	titles   map[string][]string
	failures map[string]error
	visited  []string
}

func (p *trendingPages) WithPage(ctx context.Context, _ browser.Options, fn func(context.Context, browser.Page) error) error {
	return fn(ctx, &trendingPage{pages: p})
}

type trendingPage struct {
	pages   *trendingPages
	current string
}

func (p *trendingPage) Navigate(_ context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	display := u.Query().Get("category")
	p.pages.mu.Lock()
	defer p.pages.mu.Unlock()
	p.pages.visited = append(p.pages.visited, rawURL)
	if err := p.pages.failures[display]; err != nil {
		return err
	}
	p.current = display
	return nil
}

func (p *trendingPage) Text(context.Context, string) (string, error) { return "", errors.New("unused") }

func (p *trendingPage) Attribute(context.Context, string, string) (string, bool, error) {
	return "", false, nil
}

func (p *trendingPage) Evaluate(_ context.Context, _ string, res any) error {
	p.pages.mu.Lock()
	raw, err := json.Marshal(p.pages.titles[p.current])
	p.pages.mu.Unlock()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, res)
}

func (p *trendingPage) Location(context.Context) (string, error) { return p.current, nil }

func testDeps(emitter *captureEmitter, sweeper *countingSweeper) Deps {
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	deps := Deps{
		RunIDs: fixedRunIDs{},
		Now:    func() time.Time { return at },
	}
	if emitter != nil {
		deps.Emitter = emitter
	}
	if sweeper != nil {
		deps.Sweeper = sweeper
	}
	return deps
}

func exactEngine() *fallback.Engine {
	return fallback.New(nil, fallback.WithName("test"))
}
