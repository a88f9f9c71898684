package extract

import (
	"net/url"
	"strings"
)

// BlogOriginLink builds the canonical https://blog.naver.com/{blogId}/{postId}
// address from a blog search item. bloggerLink identifies the blog and link
// carries the post id as its last path segment.
func BlogOriginLink(link, bloggerLink string) (string, bool) {
	if !strings.HasPrefix(bloggerLink, "http") {
		bloggerLink = "https://" + bloggerLink
	}
	blogID := lastSegment(bloggerLink)
	postID := lastSegment(link)
	if blogID == "" || postID == "" {
		return "", false
	}
	return "https://blog.naver.com/" + blogID + "/" + postID, true
}

func lastSegment(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return ""
	}
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	return path
}
