package formatter

import (
	"fmt"
	"html"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/felo/mailparts/internal/crypto"
	"github.com/felo/mailparts/internal/mimetree"
	"github.com/felo/mailparts/internal/parser"
)

var shownHeaders = []string{"From", "Reply-To", "To", "Cc", "Subject", "Date"}

func renderHeaders(f *Formatter, rc *renderContext, p *parser.Part) error {
	if p.Source == nil {
		return ErrNoRenderer
	}
	env := p.Source.Envelope()

	// The protected subject replaces the placeholder of the outer message.
	subject := env.Subject
	if s := rc.pl.ProtectedSubject(); s != "" && p.ID == parser.RootID.Child("headers") {
		subject = s
	}

	var sb strings.Builder
	sb.WriteString("<table class=\"headers\">\n")
	for _, name := range shownHeaders {
		value := mimetree.DecodeHeader(p.Source.Header.Get(name))
		switch name {
		case "Subject":
			value = subject
		case "Date":
			if !env.Date.IsZero() {
				value = env.Date.Format("Mon, 2 Jan 2006 15:04:05 -0700")
			}
		}
		if value == "" {
			continue
		}
		fmt.Fprintf(&sb, "<tr><th>%s:</th><td>%s</td></tr>\n", name, html.EscapeString(value))
	}
	sb.WriteString("</table>\n")

	return write(rc.w, sb.String())
}

func renderSecureButton(f *Formatter, rc *renderContext, p *parser.Part) error {
	if len(p.Validities) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("<div class=\"secure-button\">\n")
	for _, v := range p.Validities {
		class := "unknown"
		switch {
		case v.Signature == crypto.SignatureGood:
			class = "good"
		case v.Signature == crypto.SignatureBad:
			class = "bad"
		case v.IsEncrypted() && !v.IsSigned():
			class = "encrypted"
		}
		fmt.Fprintf(&sb, "<p class=\"validity %s\">%s</p>\n", class, html.EscapeString(v.Summary()))
		if v.Description != "" {
			fmt.Fprintf(&sb, "<p class=\"validity-detail\">%s</p>\n", html.EscapeString(v.Description))
		}
	}
	sb.WriteString("</div>\n")

	return write(rc.w, sb.String())
}

func renderError(f *Formatter, rc *renderContext, p *parser.Part) error {
	return write(rc.w, "<div class=\"error\">", html.EscapeString(p.Text), "</div>\n")
}

func renderSource(f *Formatter, rc *renderContext, p *parser.Part) error {
	source := p.Source
	if p.ID == parser.RootID || p.MimeType == parser.MimeSource {
		source = rc.pl.Message()
	}
	if source == nil {
		return ErrNoRenderer
	}

	raw, err := source.Bytes()
	if err != nil {
		return err
	}
	return write(rc.w, "<pre class=\"source\">", html.EscapeString(string(raw)), "</pre>\n")
}

func renderRFC822(f *Formatter, rc *renderContext, p *parser.Part) error {
	return write(rc.w, "<div class=\"rfc822\">\n")
}

func renderRFC822End(f *Formatter, rc *renderContext, p *parser.Part) error {
	return write(rc.w, "</div>\n")
}

func renderTextPlain(f *Formatter, rc *renderContext, p *parser.Part) error {
	text := p.Text
	if text == "" {
		if p.Source == nil {
			return ErrNoRenderer
		}
		decoded, err := f.DecodeText(p.Source)
		if err != nil {
			return err
		}
		text = decoded
	}

	return write(rc.w, "<div class=\"text-plain\"><pre>", f.textToHTML(text), "</pre></div>\n")
}

func renderTextHTML(f *Formatter, rc *renderContext, p *parser.Part) error {
	text, err := f.DecodeText(p.Source)
	if err != nil {
		return err
	}
	text = f.rewriteCIDs(rc.pl, text)
	return write(rc.w, "<div class=\"text-html\">", f.policy.Sanitize(text), "</div>\n")
}

func renderMarkdown(f *Formatter, rc *renderContext, p *parser.Part) error {
	text, err := f.DecodeText(p.Source)
	if err != nil {
		return err
	}

	rendered, err := f.markdownToHTML(text)
	if err != nil {
		// Fall back to showing the markup as text
		f.logger.Debug("markdown conversion failed", "id", p.ID, "error", err)
		return write(rc.w, "<div class=\"text-plain\"><pre>", f.textToHTML(text), "</pre></div>\n")
	}

	rendered = f.rewriteCIDs(rc.pl, rendered)
	return write(rc.w, "<div class=\"text-markdown\">", f.policy.Sanitize(rendered), "</div>\n")
}

func renderEnriched(f *Formatter, rc *renderContext, p *parser.Part) error {
	text, err := f.DecodeText(p.Source)
	if err != nil {
		return err
	}

	richtext := p.Source.Is("text", "richtext")
	return write(rc.w, "<div class=\"text-enriched\">", f.policy.Sanitize(enrichedToHTML(text, richtext)), "</div>\n")
}

func renderImage(f *Formatter, rc *renderContext, p *parser.Part) error {
	src := p.CID
	if f.opts.PartURL != nil {
		src = f.opts.PartURL(rc.pl, p.ID)
	}
	if src == "" {
		return ErrNoRenderer
	}

	alt := p.Source.Filename()
	return write(rc.w, "<div class=\"image\"><img src=\"", attr(src), "\" alt=\"", attr(alt), "\"></div>\n")
}

func renderAttachment(f *Formatter, rc *renderContext, p *parser.Part) error {
	info := p.Attachment
	if info == nil {
		return ErrNoRenderer
	}

	name := info.Filename
	if name == "" {
		name = "Unnamed"
	}

	var sb strings.Builder
	sb.WriteString("<div class=\"attachment\">")
	if f.opts.PartURL != nil {
		fmt.Fprintf(&sb, "<a href=\"%s\">%s</a>", attr(f.opts.PartURL(rc.pl, p.ID)), html.EscapeString(name))
	} else {
		sb.WriteString(html.EscapeString(name))
	}
	fmt.Fprintf(&sb, " <span class=\"mime-type\">%s</span>", html.EscapeString(info.GuessedMimeType))
	if info.EstimatedSize > 0 {
		fmt.Fprintf(&sb, " <span class=\"size\">%s</span>", humanize.Bytes(uint64(info.EstimatedSize)))
	}
	sb.WriteString("</div>\n")

	return write(rc.w, sb.String())
}
