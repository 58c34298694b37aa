package content

import (
	"bytes"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var sanitizer = newSanitizer()

func newSanitizer() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("rel").OnElements("a")
	p.AllowAttrs("class").OnElements("code", "pre")
	p.RequireNoFollowOnLinks(false)
	return p
}

// Sanitize strips scripts, event handlers and other unsafe markup from an
// HTML body while keeping the structure adapters exchange.
func Sanitize(body string) string {
	return sanitizer.Sanitize(body)
}

// PlainText returns the text content of an HTML fragment.
func PlainText(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return body
	}
	return NormalizeWhitespace(doc.Text())
}

// HTMLToMarkdown is the inverse of MarkdownToHTML for the same subset.
// Unknown elements collapse to their text.
func HTMLToMarkdown(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return body
	}

	var buf bytes.Buffer
	for _, n := range doc.Find("body").Nodes {
		writeBlocks(&buf, n)
	}

	lines := strings.Split(buf.String(), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.TrimRight(l, " ")
		if l == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func writeBlocks(buf *bytes.Buffer, parent *html.Node) {
	for n := parent.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				buf.WriteString(t + "\n\n")
			}
			continue
		}
		if n.Type != html.ElementNode {
			continue
		}

		switch n.DataAtom {
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
			level, _ := strconv.Atoi(n.Data[1:])
			buf.WriteString(strings.Repeat("#", level) + " " + inlineText(n) + "\n\n")
		case atom.P:
			if t := inlineText(n); t != "" {
				buf.WriteString(t + "\n\n")
			}
		case atom.Ul, atom.Ol:
			i := 1
			for li := n.FirstChild; li != nil; li = li.NextSibling {
				if li.Type != html.ElementNode || li.DataAtom != atom.Li {
					continue
				}
				marker := "- "
				if n.DataAtom == atom.Ol {
					marker = strconv.Itoa(i) + ". "
				}
				buf.WriteString(marker + inlineText(li) + "\n")
				i++
			}
			buf.WriteString("\n")
		case atom.Pre:
			buf.WriteString("```\n" + strings.TrimRight(textOf(n), "\n") + "\n```\n\n")
		case atom.Blockquote:
			var inner bytes.Buffer
			writeBlocks(&inner, n)
			for _, l := range strings.Split(strings.TrimSpace(inner.String()), "\n") {
				if l != "" {
					buf.WriteString("> " + l + "\n")
				}
			}
			buf.WriteString("\n")
		case atom.Hr:
			buf.WriteString("---\n\n")
		case atom.Img, atom.Figure:
			buf.WriteString(inlineText(n) + "\n\n")
		case atom.Script, atom.Style, atom.Head:
		default:
			if hasBlockChild(n) {
				writeBlocks(buf, n)
			} else if t := inlineText(n); t != "" {
				buf.WriteString(t + "\n\n")
			}
		}
	}
}

func hasBlockChild(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.DataAtom {
		case atom.P, atom.Div, atom.Ul, atom.Ol, atom.Pre, atom.Blockquote, atom.Hr,
			atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Figure, atom.Section, atom.Article:
			return true
		}
	}
	return false
}

func inlineText(n *html.Node) string {
	var b strings.Builder
	writeInline(&b, n)
	return NormalizeWhitespace(b.String())
}

func writeInline(b *strings.Builder, parent *html.Node) {
	if parent.Type == html.ElementNode && parent.DataAtom == atom.Img {
		writeImage(b, parent)
		return
	}
	for n := parent.FirstChild; n != nil; n = n.NextSibling {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
		case html.ElementNode:
			switch n.DataAtom {
			case atom.A:
				b.WriteString("[" + inlineText(n) + "](" + attr(n, "href") + ")")
			case atom.Img:
				writeImage(b, n)
			case atom.Strong, atom.B:
				b.WriteString("**" + inlineText(n) + "**")
			case atom.Em, atom.I:
				b.WriteString("*" + inlineText(n) + "*")
			case atom.Code:
				b.WriteString("`" + textOf(n) + "`")
			case atom.Br:
				b.WriteString(" ")
			case atom.Figcaption:
				if t := inlineText(n); t != "" {
					b.WriteString(" *" + t + "*")
				}
			default:
				writeInline(b, n)
			}
		}
	}
}

func writeImage(b *strings.Builder, n *html.Node) {
	b.WriteString("![" + attr(n, "alt") + "](" + attr(n, "src"))
	if t := attr(n, "title"); t != "" {
		b.WriteString(` "` + t + `"`)
	}
	b.WriteString(")")
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// ExtractImages lists the images of an HTML body in document order.
func ExtractImages(body string) []PlatformImage {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}

	var images []PlatformImage
	doc.Find("img[src]").Each(func(i int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		alt, _ := s.Attr("alt")
		caption := strings.TrimSpace(s.Closest("figure").Find("figcaption").First().Text())
		images = append(images, PlatformImage{URL: src, Alt: alt, Caption: caption, Role: RoleInline, Position: i})
	})
	return images
}

// ExtractLinks lists the anchors of an HTML body. Relative links and links to
// siteHost are internal.
func ExtractLinks(body, siteHost string) []PlatformLink {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}

	var links []PlatformLink
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		link := PlatformLink{URL: href, AnchorText: NormalizeWhitespace(s.Text()), Kind: ClassifyLink(href, siteHost)}
		if rel, ok := s.Attr("rel"); ok {
			link.Rel = strings.Fields(rel)
		}
		links = append(links, link)
	})
	return links
}

// ClassifyLink reports whether href points inside siteHost.
func ClassifyLink(href, siteHost string) LinkKind {
	u, err := url.Parse(href)
	if err != nil {
		return LinkExternal
	}
	if u.Host == "" || (siteHost != "" && strings.EqualFold(strings.TrimPrefix(u.Hostname(), "www."), strings.TrimPrefix(siteHost, "www."))) {
		return LinkInternal
	}
	return LinkExternal
}

// LinkifyHTML wraps the first occurrence of anchor found in a text node that
// is not already inside a link or code block. rel is set when given.
func LinkifyHTML(body, anchor, target string, rel []string) (string, bool) {
	if anchor == "" {
		return body, false
	}

	nodes, err := html.ParseFragment(strings.NewReader(body), &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body})
	if err != nil {
		return body, false
	}
	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, n := range nodes {
		root.AppendChild(n)
	}

	inserted := false
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil && !inserted; c = c.NextSibling {
			if c.Type == html.ElementNode {
				switch c.DataAtom {
				case atom.A, atom.Code, atom.Pre, atom.Script, atom.Style:
					continue
				}
				walk(c)
				continue
			}
			if c.Type != html.TextNode {
				continue
			}
			idx := strings.Index(c.Data, anchor)
			if idx < 0 {
				continue
			}

			before, after := c.Data[:idx], c.Data[idx+len(anchor):]
			a := &html.Node{Type: html.ElementNode, Data: "a", DataAtom: atom.A,
				Attr: []html.Attribute{{Key: "href", Val: target}}}
			if len(rel) > 0 {
				a.Attr = append(a.Attr, html.Attribute{Key: "rel", Val: strings.Join(rel, " ")})
			}
			a.AppendChild(&html.Node{Type: html.TextNode, Data: anchor})

			c.Data = before
			n.InsertBefore(a, c.NextSibling)
			if after != "" {
				n.InsertBefore(&html.Node{Type: html.TextNode, Data: after}, a.NextSibling)
			}
			inserted = true
		}
	}
	walk(root)

	if !inserted {
		return body, false
	}
	return renderChildren(root), true
}

// ApplyLinkRel sets the rel attribute of every anchor whose href has an entry
// in rels.
func ApplyLinkRel(body string, rels map[string][]string) string {
	if len(rels) == 0 {
		return body
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return body
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if rel, ok := rels[href]; ok && len(rel) > 0 {
			s.SetAttr("rel", strings.Join(rel, " "))
		}
	})

	out, err := doc.Find("body").Html()
	if err != nil {
		return body
	}
	return out
}

func renderChildren(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return buf.String()
}
