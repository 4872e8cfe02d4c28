package markdown

import (
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	reImage  = regexp.MustCompile(`!\[([^\]]*)\]\(([^)\s]+)\)`)
	reLink   = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
	reCode   = regexp.MustCompile("`([^`]+)`")
	reStrong = regexp.MustCompile(`\*\*(.+?)\*\*|__(.+?)__`)
	reEm     = regexp.MustCompile(`\*([^*]+)\*|\b_([^_]+)_\b`)
)

// Inline formats one line of inline markdown: images, links, code spans,
// strong and emphasis. Input is escaped before any markup is added.
func Inline(s string) string {
	out := html.EscapeString(s)

	// Code spans are parked behind placeholders so emphasis markers inside
	// them stay literal.
	var spans []string
	out = reCode.ReplaceAllStringFunc(out, func(m string) string {
		spans = append(spans, "<code>"+reCode.FindStringSubmatch(m)[1]+"</code>")
		return "\x00" + strconv.Itoa(len(spans)-1) + "\x00"
	})

	out = reImage.ReplaceAllStringFunc(out, func(m string) string {
		sm := reImage.FindStringSubmatch(m)
		src := SafeURL(sm[2])
		if src == "" {
			return sm[1]
		}
		return `<img src="` + src + `" alt="` + sm[1] + `" loading="lazy"/>`
	})
	out = reLink.ReplaceAllStringFunc(out, func(m string) string {
		sm := reLink.FindStringSubmatch(m)
		href := SafeURL(sm[2])
		if href == "" {
			return sm[1]
		}
		attrs := ""
		if strings.HasPrefix(href, "http") {
			attrs = ` target="_blank" rel="noopener noreferrer"`
		}
		return `<a href="` + href + `"` + attrs + `>` + sm[1] + `</a>`
	})

	out = outsideTags(out, func(seg string) string {
		seg = reStrong.ReplaceAllString(seg, "<strong>$1$2</strong>")
		return reEm.ReplaceAllString(seg, "<em>$1$2</em>")
	})

	for i, span := range spans {
		out = strings.Replace(out, "\x00"+strconv.Itoa(i)+"\x00", span, 1)
	}
	return out
}

// outsideTags applies fn to the text between tags so attribute values
// such as URLs are never reformatted.
func outsideTags(s string, fn func(string) string) string {
	var b strings.Builder
	for s != "" {
		lt := strings.IndexByte(s, '<')
		if lt < 0 {
			b.WriteString(fn(s))
			break
		}
		b.WriteString(fn(s[:lt]))
		gt := strings.IndexByte(s[lt:], '>')
		if gt < 0 {
			b.WriteString(s[lt:])
			break
		}
		b.WriteString(s[lt : lt+gt+1])
		s = s[lt+gt+1:]
	}
	return b.String()
}

// SafeURL returns raw escaped for an attribute, or "" when its scheme is not
// one of http, https, mailto or tel. Relative paths and fragments pass.
func SafeURL(raw string) string {
	v := strings.TrimSpace(html.UnescapeString(raw))
	if v == "" {
		return ""
	}
	if strings.HasPrefix(v, "/") || strings.HasPrefix(v, "#") {
		if strings.HasPrefix(v, "//") {
			return ""
		}
		return html.EscapeString(v)
	}
	u, err := url.Parse(v)
	if err != nil {
		return ""
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "mailto", "tel":
		return html.EscapeString(v)
	}
	return ""
}
