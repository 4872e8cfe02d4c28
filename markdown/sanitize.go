package markdown

import (
	"html"
	"io"
	"strings"

	nethtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Elements removed together with everything inside them.
var dropWithContent = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Iframe:   true,
	atom.Object:   true,
	atom.Embed:    true,
	atom.Frame:    true,
	atom.Frameset: true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Math:     true,
}

// Elements removed while their text content is kept.
var dropTag = map[atom.Atom]bool{
	atom.Form:   true,
	atom.Input:  true,
	atom.Button: true,
	atom.Link:   true,
	atom.Meta:   true,
	atom.Base:   true,
	atom.Applet: true,
}

var urlAttrs = map[string]bool{
	"href":       true,
	"src":        true,
	"action":     true,
	"formaction": true,
	"background": true,
	"poster":     true,
	"xlink:href": true,
}

// Sanitize removes active content from s, which may be markdown, HTML or a
// mix of both: script-like elements with their content, event handler
// attributes, style attributes and URLs with schemes other than http, https,
// mailto or tel. Plain text (markdown syntax included) is kept byte for byte.
func Sanitize(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}

	z := nethtml.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0 // depth inside a dropWithContent element
	var skipAtom atom.Atom

	for {
		tt := z.Next()
		if tt == nethtml.ErrorToken {
			if z.Err() != io.EOF {
				b.Write(z.Raw())
			}
			return b.String()
		}
		raw := string(z.Raw())
		tok := z.Token()

		if skip > 0 {
			switch {
			case tt == nethtml.StartTagToken && tok.DataAtom == skipAtom:
				skip++
			case tt == nethtml.EndTagToken && tok.DataAtom == skipAtom:
				skip--
			}
			continue
		}

		switch tt {
		case nethtml.TextToken:
			b.WriteString(raw)
		case nethtml.CommentToken, nethtml.DoctypeToken:
		case nethtml.StartTagToken, nethtml.SelfClosingTagToken:
			if dropWithContent[tok.DataAtom] {
				if tt == nethtml.StartTagToken {
					skip, skipAtom = 1, tok.DataAtom
				}
				continue
			}
			if dropTag[tok.DataAtom] {
				continue
			}
			writeStartTag(&b, tok, tt == nethtml.SelfClosingTagToken)
		case nethtml.EndTagToken:
			if dropWithContent[tok.DataAtom] || dropTag[tok.DataAtom] {
				continue
			}
			b.WriteString("</" + tok.Data + ">")
		}
	}
}

func writeStartTag(b *strings.Builder, tok nethtml.Token, selfClosing bool) {
	b.WriteString("<" + tok.Data)
	for _, a := range tok.Attr {
		key := strings.ToLower(a.Key)
		if strings.HasPrefix(key, "on") || key == "style" || key == "srcdoc" {
			continue
		}
		val := a.Val
		if urlAttrs[key] {
			val = html.UnescapeString(SafeURL(val))
			if val == "" {
				continue
			}
		}
		b.WriteString(" " + key + `="` + html.EscapeString(val) + `"`)
	}
	if selfClosing {
		b.WriteString("/")
	}
	b.WriteString(">")
}
