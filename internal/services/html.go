package services

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// MetaContent returns the content attribute of the first <meta> tag whose attr equals value.
func MetaContent(r io.Reader, attr, value string) (string, bool) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", false
	}

	var found string
	var ok bool
	walk(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "meta" || attrValue(n, attr) != value {
			return true
		}
		found, ok = attrValue(n, "content"), true
		return false
	})
	return found, ok
}

// SongLinks returns the distinct absolute song page links (…-lyrics) found in an HTML document, in document order.
func SongLinks(r io.Reader) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var links []string
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "a" {
			href := strings.TrimSpace(attrValue(n, "href"))
			if strings.HasPrefix(href, "/") {
				href = geniusWebURL + href
			}
			if strings.HasPrefix(href, geniusWebURL+"/") && strings.HasSuffix(href, "-lyrics") && !seen[href] {
				seen[href] = true
				links = append(links, href)
			}
		}
		return true
	})
	return links, nil
}

// walk visits n depth-first until fn returns false.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
