package sanitizer

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

const (
	anchorTarget = "_blank"
	anchorRel    = "noopener noreferrer nofollow"
)

var (
	length      = `-?\d+(\.\d+)?(px|pt|em|rem|%)?`
	lengthList  = regexp.MustCompile(`^(` + length + `)(\s+` + length + `){0,3}$`)
	marginList  = regexp.MustCompile(`^((` + length + `)|auto)(\s+((` + length + `)|auto)){0,3}$`)
	sizeValue   = regexp.MustCompile(`^(auto|none|` + length + `)$`)
	fontSize    = regexp.MustCompile(`^(\d+(\.\d+)?(px|pt|em|rem|%)|xx-small|x-small|small|medium|large|x-large|xx-large|smaller|larger)$`)
	fontFamily  = regexp.MustCompile(`^[\w\s,'"\-]+$`)
	fontWeight  = regexp.MustCompile(`^(normal|bold|bolder|lighter|[1-9]00)$`)
	fontStyle   = regexp.MustCompile(`^(normal|italic|oblique)$`)
	lineHeight  = regexp.MustCompile(`^(normal|\d+(\.\d+)?(px|pt|em|rem|%)?)$`)
	textAlign   = regexp.MustCompile(`^(left|right|center|justify|start|end)$`)
	border      = regexp.MustCompile(`^(none|0|\d+(\.\d+)?(px|pt|em)?(\s+(solid|dashed|dotted|double|none))?(\s+#[0-9a-fA-F]{3,6})?)$`)
	display     = regexp.MustCompile(`^(block|inline|inline-block|none|table|table-cell|table-row|flex)$`)
	verticalAln = regexp.MustCompile(`^(top|middle|bottom|baseline|text-top|text-bottom|sub|super)$`)
	textDecor   = regexp.MustCompile(`^(none|underline|line-through|overline)$`)
	lineBreaks  = regexp.MustCompile(`\r\n|\r|\n`)
)

// Sanitizer reduces inbound HTML to the subset the ticket UI renders.
// color and background-color are never allowed so mail styling cannot fight
// the host theme.
type Sanitizer struct {
	policy *bluemonday.Policy
}

func NewSanitizer() *Sanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements("p", "br", "hr", "div", "span", "center")
	p.AllowElements("b", "strong", "i", "em", "u", "s", "strike", "del", "sub", "sup")
	p.AllowElements("h1", "h2", "h3", "h4", "h5", "h6")
	p.AllowElements("ul", "ol", "li")
	p.AllowElements("blockquote", "code", "pre")
	p.AllowElements("table", "thead", "tbody", "tfoot", "tr", "th", "td", "caption")

	p.AllowElements("a")
	p.AllowAttrs("href", "title").OnElements("a")

	p.AllowElements("img")
	p.AllowAttrs("src", "alt", "title", "width", "height").OnElements("img")

	p.AllowAttrs("colspan", "rowspan", "align", "valign").OnElements("td", "th")
	p.AllowAttrs("width", "border", "cellpadding", "cellspacing", "align").OnElements("table")

	p.AllowURLSchemes("http", "https", "mailto")
	p.AllowDataURIImages()
	p.RequireParseableURLs(true)

	p.AllowAttrs("style").Globally()
	p.AllowStyles("text-align").Matching(textAlign).Globally()
	p.AllowStyles("font-weight").Matching(fontWeight).Globally()
	p.AllowStyles("font-style").Matching(fontStyle).Globally()
	p.AllowStyles("font-size").Matching(fontSize).Globally()
	p.AllowStyles("font-family").Matching(fontFamily).Globally()
	p.AllowStyles("line-height").Matching(lineHeight).Globally()
	p.AllowStyles("padding").Matching(lengthList).Globally()
	p.AllowStyles("padding-top", "padding-right", "padding-bottom", "padding-left").Matching(sizeValue).Globally()
	p.AllowStyles("margin").Matching(marginList).Globally()
	p.AllowStyles("margin-top", "margin-right", "margin-bottom", "margin-left").Matching(marginList).Globally()
	p.AllowStyles("width", "max-width", "height").Matching(sizeValue).Globally()
	p.AllowStyles("border").Matching(border).Globally()
	p.AllowStyles("border-radius").Matching(lengthList).Globally()
	p.AllowStyles("display").Matching(display).Globally()
	p.AllowStyles("vertical-align").Matching(verticalAln).Globally()
	p.AllowStyles("text-decoration").Matching(textDecor).Globally()

	return &Sanitizer{policy: p}
}

// Sanitize cleans htmlBody, or the escaped textFallback when htmlBody is blank.
func (s *Sanitizer) Sanitize(htmlBody, textFallback string) string {
	if strings.TrimSpace(htmlBody) == "" {
		htmlBody = TextToHTML(textFallback)
	}

	cleaned := s.policy.Sanitize(dropBgcolor(htmlBody))
	if isBlank(cleaned) && strings.TrimSpace(textFallback) != "" {
		cleaned = s.policy.Sanitize(TextToHTML(textFallback))
	}
	return rewriteAnchors(cleaned)
}

// isBlank reports whether body renders neither text nor images.
func isBlank(body string) bool {
	if strings.TrimSpace(body) == "" {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return false
	}
	return strings.TrimSpace(doc.Text()) == "" && doc.Find("img").Length() == 0
}

// TextToHTML escapes plain text and turns line breaks into <br>.
func TextToHTML(text string) string {
	return lineBreaks.ReplaceAllString(html.EscapeString(text), "<br>")
}

// dropBgcolor removes every element carrying bgcolor together with its
// subtree. The html and body wrappers only lose the attribute; the policy
// unwraps them anyway.
func dropBgcolor(body string) string {
	if !strings.Contains(strings.ToLower(body), "bgcolor") {
		return body
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	doc.Find("html[bgcolor], body[bgcolor]").RemoveAttr("bgcolor")
	doc.Find("[bgcolor]").Remove()
	out, err := doc.Find("body").Html()
	if err != nil {
		return ""
	}
	return out
}

func rewriteAnchors(body string) string {
	if !strings.Contains(body, "<a") {
		return body
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return body
	}
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		a.SetAttr("target", anchorTarget)
		a.SetAttr("rel", anchorRel)
	})
	out, err := doc.Find("body").Html()
	if err != nil {
		return body
	}
	return out
}
