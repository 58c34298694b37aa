package content

import (
	"bytes"
	"regexp"
	"strings"
)

var (
	reHeading  = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	reOrdered  = regexp.MustCompile(`^\d+\.\s+(.*)$`)
	reBullet   = regexp.MustCompile(`^[-*+]\s+(.*)$`)
	reImage    = regexp.MustCompile(`!\[([^\]]*)\]\(([^)\s]+)(?:\s+"([^"]*)")?\)`)
	reLink     = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
	reBold     = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reItalic   = regexp.MustCompile(`\*([^*\s][^*]*)\*`)
	reCode     = regexp.MustCompile("`([^`]+)`")
	reRule     = regexp.MustCompile(`^(-{3,}|\*{3,})$`)
	textEscape = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
)

// MarkdownToHTML renders the subset of Markdown the adapters exchange:
// headings, paragraphs, lists, fenced code, block quotes, rules, images,
// links, bold, italic and inline code.
func MarkdownToHTML(md string) string {
	var buf bytes.Buffer

	lines := strings.Split(strings.ReplaceAll(md, "\r\n", "\n"), "\n")
	var para []string
	list := ""
	inCode := false
	inQuote := false

	flushPara := func() {
		if len(para) > 0 {
			buf.WriteString("<p>")
			buf.WriteString(renderInline(strings.Join(para, " ")))
			buf.WriteString("</p>\n")
			para = nil
		}
	}
	flushList := func() {
		if list != "" {
			buf.WriteString("</" + list + ">\n")
			list = ""
		}
	}
	flushQuote := func() {
		if inQuote {
			buf.WriteString("</blockquote>\n")
			inQuote = false
		}
	}
	flushAll := func() {
		flushPara()
		flushList()
		flushQuote()
	}
	openList := func(tag string) {
		if list != tag {
			flushPara()
			flushList()
			flushQuote()
			buf.WriteString("<" + tag + ">\n")
			list = tag
		}
	}

	for _, raw := range lines {
		line := strings.TrimRight(raw, " \t")
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			if inCode {
				buf.WriteString("</code></pre>\n")
				inCode = false
			} else {
				flushAll()
				buf.WriteString("<pre><code>")
				inCode = true
			}
			continue
		}
		if inCode {
			buf.WriteString(textEscape.Replace(raw))
			buf.WriteByte('\n')
			continue
		}

		switch {
		case trimmed == "":
			flushAll()
		case reRule.MatchString(trimmed):
			flushAll()
			buf.WriteString("<hr>\n")
		case reHeading.MatchString(trimmed):
			flushAll()
			m := reHeading.FindStringSubmatch(trimmed)
			level := string(rune('0' + len(m[1])))
			buf.WriteString("<h" + level + ">" + renderInline(m[2]) + "</h" + level + ">\n")
		case reBullet.MatchString(trimmed):
			openList("ul")
			buf.WriteString("<li>" + renderInline(reBullet.FindStringSubmatch(trimmed)[1]) + "</li>\n")
		case reOrdered.MatchString(trimmed):
			openList("ol")
			buf.WriteString("<li>" + renderInline(reOrdered.FindStringSubmatch(trimmed)[1]) + "</li>\n")
		case strings.HasPrefix(trimmed, ">"):
			if !inQuote {
				flushPara()
				flushList()
				buf.WriteString("<blockquote>\n")
				inQuote = true
			}
			buf.WriteString("<p>" + renderInline(strings.TrimSpace(strings.TrimPrefix(trimmed, ">"))) + "</p>\n")
		default:
			flushList()
			flushQuote()
			para = append(para, trimmed)
		}
	}

	if inCode {
		buf.WriteString("</code></pre>\n")
	}
	flushAll()

	return strings.TrimSpace(buf.String())
}

func renderInline(s string) string {
	s = textEscape.Replace(s)
	s = reCode.ReplaceAllString(s, "<code>$1</code>")
	s = reImage.ReplaceAllStringFunc(s, func(m string) string {
		parts := reImage.FindStringSubmatch(m)
		img := `<img src="` + parts[2] + `" alt="` + attrEscape(parts[1]) + `"`
		if parts[3] != "" {
			img += ` title="` + attrEscape(parts[3]) + `"`
		}
		return img + ">"
	})
	s = reLink.ReplaceAllString(s, `<a href="$2">$1</a>`)
	s = reBold.ReplaceAllString(s, "<strong>$1</strong>")
	s = reItalic.ReplaceAllString(s, "<em>$1</em>")
	return s
}

func attrEscape(s string) string {
	return strings.ReplaceAll(s, `"`, "&#34;")
}

// LinkifyMarkdown wraps the first unlinked occurrence of anchor in body
// with a Markdown link to target. It reports whether a link was inserted.
func LinkifyMarkdown(body, anchor, target string) (string, bool) {
	if anchor == "" {
		return body, false
	}

	offset := 0
	for {
		idx := strings.Index(body[offset:], anchor)
		if idx < 0 {
			return body, false
		}
		idx += offset

		if !insideMarkdownLink(body, idx) {
			linked := "[" + anchor + "](" + target + ")"
			return body[:idx] + linked + body[idx+len(anchor):], true
		}
		offset = idx + len(anchor)
	}
}

func insideMarkdownLink(body string, idx int) bool {
	lineStart := strings.LastIndex(body[:idx], "\n") + 1
	prefix := body[lineStart:idx]
	if strings.Count(prefix, "[") > strings.Count(prefix, "]") {
		return true
	}
	// Inside the (...) target part of a link.
	open := strings.LastIndex(prefix, "](")
	return open >= 0 && open > strings.LastIndex(prefix, ")")
}
