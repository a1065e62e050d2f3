package formatter

import (
	"bytes"
	"regexp"

	"github.com/felo/mailparts/internal/parser"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// newPolicy builds the sanitising policy for message HTML: common
// formatting, tables, images and links, but no scripts, forms or frames.
func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()

	// Layout markup found in mail that UGC leaves out
	p.AllowElements("center", "font", "big", "small", "tt")
	p.AllowAttrs("color", "face", "size").OnElements("font")
	p.AllowAttrs("align", "valign", "width", "height", "bgcolor").OnElements("table", "tr", "td", "th", "div", "p", "img")
	p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).Globally()

	// Inline images are referenced by content id
	p.AllowURLSchemes("http", "https", "mailto", "cid")
	p.RequireNoFollowOnLinks(true)
	p.RequireNoReferrerOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)

	return p
}

func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			gmhtml.WithHardWraps(),
		),
	)
}

func (f *Formatter) markdownToHTML(text string) (string, error) {
	var buf bytes.Buffer
	if err := f.markdown.Convert([]byte(text), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var cidReference = regexp.MustCompile(`(?i)(src|href)=(["'])cid:([^"']+)["']`)

// rewriteCIDs points cid: references at the parts they name when part
// addresses are available. References to unknown content ids are kept.
func (f *Formatter) rewriteCIDs(pl *parser.PartList, text string) string {
	if f.opts.PartURL == nil {
		return text
	}

	return cidReference.ReplaceAllStringFunc(text, func(m string) string {
		sub := cidReference.FindStringSubmatch(m)
		p, ok := pl.FindByCID(sub[3])
		if !ok {
			return m
		}
		return sub[1] + "=" + sub[2] + attr(f.opts.PartURL(pl, p.ID)) + sub[2]
	})
}
