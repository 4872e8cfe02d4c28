// Package views renders the few HTML pages the API serves itself.
package views

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/a-h/templ"

	"github.com/eringen/devquote/datastore"
	"github.com/eringen/devquote/markdown"
)

// ServiceInfo is what the landing page shows about the running service.
type ServiceInfo struct {
	Name             string
	Version          string
	Environment      string
	SiteURL          string // public frontend origin; post links point there
	ChatConfigured   bool
	WriterConfigured bool
	StoreEnabled     bool
	Endpoints        []string
	Latest           []datastore.Post
}

const landingStyle = `body{font-family:system-ui,sans-serif;max-width:48rem;margin:2rem auto;padding:0 1rem;color:#222}
code{background:#f3f3f3;padding:0 .25rem}ul{padding-left:1.25rem}.off{color:#a33}.on{color:#272}`

// Landing is the HTML version of the service info served at "/".
func Landing(info ServiceInfo) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.printf(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>%s</title><style>%s</style></head><body>`,
			templ.EscapeString(info.Name), landingStyle)
		p.printf(`<h1>%s <small>%s</small></h1>`, templ.EscapeString(info.Name), templ.EscapeString(info.Version))
		p.printf(`<p>Environment: <code>%s</code></p><ul>`, templ.EscapeString(info.Environment))
		p.status("Estimation provider", info.ChatConfigured)
		p.status("Writing assistant", info.WriterConfigured)
		p.status("Data store", info.StoreEnabled)
		p.printf(`</ul>`)

		if len(info.Latest) > 0 {
			p.printf(`<h2>Latest posts</h2>`)
			for _, post := range info.Latest {
				p.printf(`<article><h3><a href="%s">%s</a></h3>`,
					templ.EscapeString(info.postURL(post.Slug)), templ.EscapeString(post.Title))
				if p.err == nil && post.Excerpt != "" {
					p.err = markdown.Markdown(post.Excerpt).Render(ctx, w)
				}
				p.printf(`</article>`)
			}
		}

		p.printf(`<h2>Endpoints</h2><ul>`)
		for _, e := range info.Endpoints {
			p.printf(`<li><code>%s</code></li>`, templ.EscapeString(e))
		}
		p.printf(`</ul></body></html>`)
		return p.err
	})
}

func (info ServiceInfo) postURL(slug string) string {
	return strings.TrimSuffix(info.SiteURL, "/") + "/blog/" + url.PathEscape(slug)
}

// printer stops writing after the first error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) status(label string, on bool) {
	if on {
		p.printf(`<li>%s: <span class="on">configured</span></li>`, label)
		return
	}
	p.printf(`<li>%s: <span class="off">not configured</span></li>`, label)
}
