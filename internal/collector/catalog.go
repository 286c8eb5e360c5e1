package collector

import (
	"bytes"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"

	"github.com/sells-group/bankrot-cli/internal/model"
)

var lotIDRx = regexp.MustCompile(`[?&]id=(\d+)\b`)

// CatalogPage is what one catalog page yields.
type CatalogPage struct {
	References []model.LotReference
	TotalPages int // 0 when the page has no pagination block
}

// LotID extracts the numeric lot id from a detail URL such as
// "/item?id=7177968".
func LotID(href string) string {
	if m := lotIDRx.FindStringSubmatch(href); m != nil {
		return m[1]
	}
	return ""
}

// ParseCatalogPage extracts lot references (a.lot_num links) and the
// pagination total (last link of div.pages ul li) from catalog HTML.
func ParseCatalogPage(baseURL string, body []byte) (CatalogPage, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return CatalogPage{}, eris.Wrap(err, "collector: parse catalog html")
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return CatalogPage{}, eris.Wrap(err, "collector: parse base url")
	}

	var page CatalogPage
	var walker func(n *html.Node, inPages bool)
	walker = func(n *html.Node, inPages bool) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "div" && hasClass(n, "pages"):
				inPages = true
			case n.Data == "a" && hasClass(n, "lot_num"):
				if ref, ok := reference(base, attr(n, "href")); ok {
					page.References = append(page.References, ref)
				}
			case n.Data == "a" && inPages && n.Parent != nil && n.Parent.Data == "li":
				if p, err := strconv.Atoi(strings.TrimSpace(text(n))); err == nil && p > page.TotalPages {
					page.TotalPages = p
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walker(c, inPages)
		}
	}
	walker(doc, false)

	return page, nil
}

func reference(base *url.URL, href string) (model.LotReference, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return model.LotReference{}, false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return model.LotReference{}, false
	}
	absolute := base.ResolveReference(ref).String()
	id := LotID(absolute)
	if id == "" {
		return model.LotReference{}, false
	}
	return model.LotReference{ID: id, SourceURL: absolute}, true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	return slices.Contains(strings.Fields(attr(n, "class")), class)
}

func text(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
