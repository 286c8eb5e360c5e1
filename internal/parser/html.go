package parser

import (
	"bytes"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/sells-group/bankrot-cli/internal/model"
)

var (
	dateRx = regexp.MustCompile(`(\d{2})[./-](\d{2})[./-](\d{4})`)

	// Labels on the HTML detail page, each followed by a date or amount.
	labelPublish    = regexp.MustCompile(`(?i)дата\s+(?:размещения|публикации)`)
	labelAuctionBeg = regexp.MustCompile(`(?i)начало\s+торгов`)
	labelAuctionEnd = regexp.MustCompile(`(?i)окончание\s+торгов`)
	labelAppBeg     = regexp.MustCompile(`(?i)начало\s+приема\s+заявок`)
	labelAppEnd     = regexp.MustCompile(`(?i)окончание\s+приема\s+заявок`)
	labelPrice      = regexp.MustCompile(`(?i)начальная\s+цена[^\d]{0,20}([\d\s\x{00a0}]+(?:,\d{1,2})?)`)
	labelDebtor     = regexp.MustCompile(`(?i)должник[:\s]+([^\n]{3,200})`)
	labelPrevLots   = regexp.MustCompile(`(?i)завершенных\s+лотов[:\s]+(\d+)`)
)

// parseHTML reads an HTML detail page. The lot description block
// (div.lot_text or the whole body) becomes the announcement text.
func parseHTML(lot *model.Lot, content []byte) error {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return &ParseError{LotID: lot.ID, Reason: "invalid html", Err: err}
	}

	var announcement string
	var walker func(*html.Node)
	walker = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "lot_text") && announcement == "" {
			announcement = visibleText(n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walker(c)
		}
	}
	walker(doc)

	page := visibleText(doc)
	if announcement == "" {
		announcement = page
	}
	lot.AnnouncementText = cleanSpaces(announcement)

	lot.PublishDate = dateAfter(page, labelPublish)
	lot.AuctionStartDate = dateAfter(page, labelAuctionBeg)
	lot.AuctionEndDate = dateAfter(page, labelAuctionEnd)
	lot.ApplicationStartDate = dateAfter(page, labelAppBeg)
	lot.ApplicationEndDate = dateAfter(page, labelAppEnd)
	if m := labelPrice.FindStringSubmatch(page); m != nil {
		lot.StartPrice = parseAmount(m[1])
	}
	if m := labelDebtor.FindStringSubmatch(page); m != nil {
		lot.DebtorRawName = cleanSpaces(m[1])
	}
	if m := labelPrevLots.FindStringSubmatch(page); m != nil {
		lot.PrevLotsCount = atoiDefault(m[1], -1)
	}
	return nil
}

// dateAfter returns the first dd.mm.yyyy date within 60 bytes after label.
func dateAfter(text string, label *regexp.Regexp) *time.Time {
	loc := label.FindStringIndex(text)
	if loc == nil {
		return nil
	}
	tail := text[loc[1]:]
	if len(tail) > 60 {
		tail = tail[:60]
	}
	m := dateRx.FindStringSubmatch(tail)
	if m == nil {
		return nil
	}
	t, err := time.ParseInLocation("02.01.2006", m[1]+"."+m[2]+"."+m[3], msk)
	if err != nil {
		return nil
	}
	return &t
}

// visibleText concatenates text nodes outside script and style, one line
// per block element.
func visibleText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "p", "div", "br", "li", "tr", "h1", "h2", "h3":
				sb.WriteByte('\n')
			case "td", "th", "span", "dt", "dd":
				sb.WriteByte(' ')
			}
		}
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

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}
