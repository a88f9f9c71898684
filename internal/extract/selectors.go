package extract

import (
	"net/url"
	"strings"
)

// SelectorTable maps a host to its content selector, with an ordered default
// list for unknown hosts. Tables are immutable after construction.
type SelectorTable struct {
	domains  map[string]string
	defaults []string
}

// NewSelectorTable copies domains and defaults into a new table.
func NewSelectorTable(domains map[string]string, defaults []string) SelectorTable {
	d := make(map[string]string, len(domains))
	for host, sel := range domains {
		d[strings.ToLower(host)] = sel
	}
	return SelectorTable{domains: d, defaults: append([]string(nil), defaults...)}
}

var newsTable = NewSelectorTable(map[string]string{
	"news.naver.com":     "#dic_area",
	"sportsseoul.com":    "article",
	"iminju.net":         "article",
	"joongang.co.kr":     "div#article_body",
	"hani.co.kr":         "div.article-text",
	"yna.co.kr":          "div#content-text",
	"donga.com":          "div.article_txt",
	"chosun.com":         "div#news_body_id",
	"mk.co.kr":           "div.article",
	"ohmynews.com":       "div.article-content",
	"edaily.co.kr":       "div#contents",
	"newsis.com":         "div.article_body",
	"cnbnews.com":        "div.article",
	"topstarnews.net":    "#dic_area",
	"sedaily.com":        "#v-left-scroll-in",
	"esquirekorea.co.kr": ".article-view",
	"xportsnews.com":     "#newsContent",
	"newsen.com":         "#news_body_area",
	"doctorsnews.co.kr":  "div.view_con",
}, []string{
	"#dic_area",
	"article",
	".article",
	".view",
	"#articleBodyContents",
	"div.article-content",
	"div#content",
})

var blogTable = NewSelectorTable(map[string]string{
	"blog.naver.com":   "div.se-viewer",
	"m.blog.naver.com": "div.se-main-container",
}, []string{
	"div.se-viewer",
	"div.se-main-container",
	"div#postViewArea",
})

// NewsSelectors returns the table for news article pages.
func NewsSelectors() SelectorTable { return newsTable }

// BlogSelectors returns the table for blog post pages.
func BlogSelectors() SelectorTable { return blogTable }

// Lookup returns the selectors to try for rawURL: the host's own selector
// when the host is known, the default list otherwise.
func (t SelectorTable) Lookup(rawURL string) []string {
	if sel, ok := t.match(rawURL); ok {
		return []string{sel}
	}
	return append([]string(nil), t.defaults...)
}

// Candidates returns the host selector (if any) followed by the defaults,
// without duplicates.
func (t SelectorTable) Candidates(rawURL string) []string {
	out := make([]string, 0, len(t.defaults)+1)
	if sel, ok := t.match(rawURL); ok {
		out = append(out, sel)
	}
	for _, sel := range t.defaults {
		if len(out) > 0 && out[0] == sel {
			continue
		}
		out = append(out, sel)
	}
	return out
}

// match resolves the host exactly first, then by the longest dotted suffix
// so that subdomains such as m.sportsseoul.com inherit their parent entry.
func (t SelectorTable) match(rawURL string) (string, bool) {
	host := hostOf(rawURL)
	if host == "" {
		return "", false
	}
	if sel, ok := t.domains[host]; ok {
		return sel, true
	}
	best, bestLen := "", 0
	for domain, sel := range t.domains {
		if strings.HasSuffix(host, "."+domain) && len(domain) > bestLen {
			best, bestLen = sel, len(domain)
		}
	}
	return best, bestLen > 0
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
