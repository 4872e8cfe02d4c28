// Package markdown renders blog post markdown to HTML and sanitizes
// AI-generated content before it is stored.
package markdown

import (
	"context"
	"html"
	"io"
	"regexp"
	"strings"

	"github.com/a-h/templ"
)

var (
	reHeading     = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	reOrderedItem = regexp.MustCompile(`^\d+[.)]\s+`)
	reRule        = regexp.MustCompile(`^(?:-{3,}|\*{3,}|_{3,})\s*$`)
)

// Markdown returns a templ component rendering content as HTML.
func Markdown(content string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, Render(content))
		return err
	})
}

// Render converts markdown to HTML. All text is escaped and link targets
// pass SafeURL, so the output is safe to embed.
func Render(md string) string {
	r := &renderer{}
	for _, raw := range strings.Split(md, "\n") {
		r.line(strings.TrimRight(raw, "\r"))
	}
	r.close()
	if r.fence != nil {
		r.b.WriteString("</code></pre>")
	}
	return r.b.String()
}

type block int

const (
	blockNone block = iota
	blockPara
	blockList
	blockOrdered
	blockQuote
	blockTable
)

type renderer struct {
	b     strings.Builder
	open  block
	fence *string // language of the open code fence
	tbody bool
}

// close ends the current block element, if any.
func (r *renderer) close() {
	switch r.open {
	case blockPara:
		r.b.WriteString("</p>")
	case blockList:
		r.b.WriteString("</ul>")
	case blockOrdered:
		r.b.WriteString("</ol>")
	case blockQuote:
		r.b.WriteString("</blockquote>")
	case blockTable:
		if r.tbody {
			r.b.WriteString("</tbody>")
		}
		r.b.WriteString("</table>")
		r.tbody = false
	}
	r.open = blockNone
}

// enter switches to block k, closing the previous one.
func (r *renderer) enter(k block, tag string) bool {
	if r.open == k {
		return false
	}
	r.close()
	r.open = k
	r.b.WriteString(tag)
	return true
}

func (r *renderer) line(line string) {
	if strings.HasPrefix(line, "```") {
		if r.fence != nil {
			r.b.WriteString("</code></pre>")
			r.fence = nil
			return
		}
		r.close()
		lang := strings.TrimSpace(line[3:])
		r.fence = &lang
		if lang == "" {
			r.b.WriteString("<pre><code>")
		} else {
			r.b.WriteString(`<pre><code class="language-` + html.EscapeString(lang) + `">`)
		}
		return
	}
	if r.fence != nil {
		r.b.WriteString(html.EscapeString(line))
		r.b.WriteByte('\n')
		return
	}

	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		r.close()
	case reRule.MatchString(trimmed):
		r.close()
		r.b.WriteString("<hr/>")
	case reHeading.MatchString(trimmed):
		r.close()
		m := reHeading.FindStringSubmatch(trimmed)
		tag := "h" + string(rune('0'+len(m[1])))
		r.b.WriteString("<" + tag + ">" + Inline(strings.TrimSpace(m[2])) + "</" + tag + ">")
	case strings.HasPrefix(trimmed, "|"):
		r.tableRow(trimmed)
	case strings.HasPrefix(trimmed, "- "), strings.HasPrefix(trimmed, "* "):
		r.enter(blockList, "<ul>")
		r.b.WriteString("<li>" + Inline(strings.TrimSpace(trimmed[2:])) + "</li>")
	case reOrderedItem.MatchString(trimmed):
		r.enter(blockOrdered, "<ol>")
		r.b.WriteString("<li>" + Inline(reOrderedItem.ReplaceAllString(trimmed, "")) + "</li>")
	case strings.HasPrefix(trimmed, ">"):
		if !r.enter(blockQuote, "<blockquote>") {
			r.b.WriteByte(' ')
		}
		r.b.WriteString(Inline(strings.TrimSpace(trimmed[1:])))
	default:
		if !r.enter(blockPara, "<p>") {
			r.b.WriteByte('\n')
		}
		r.b.WriteString(Inline(trimmed))
	}
}

func (r *renderer) tableRow(line string) {
	cells := splitCells(line)
	if r.enter(blockTable, "<table><thead><tr>") {
		for _, c := range cells {
			r.b.WriteString("<th>" + Inline(c) + "</th>")
		}
		r.b.WriteString("</tr></thead>")
		return
	}
	if !r.tbody {
		r.b.WriteString("<tbody>")
		r.tbody = true
	}
	if isSeparatorRow(cells) {
		return
	}
	r.b.WriteString("<tr>")
	for _, c := range cells {
		r.b.WriteString("<td>" + Inline(c) + "</td>")
	}
	r.b.WriteString("</tr>")
}

func splitCells(line string) []string {
	parts := strings.Split(strings.Trim(line, "|"), "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func isSeparatorRow(cells []string) bool {
	for _, c := range cells {
		if strings.Trim(c, "-: ") != "" {
			return false
		}
	}
	return true
}
