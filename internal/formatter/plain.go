package formatter

import (
	"strings"

	"github.com/felo/mailparts/internal/parser"
	"github.com/jaytaylor/html2text"
)

// PlainText returns the visible text of a part list, one block per text
// part. HTML is converted to text. It is meant for indexing and previews,
// not display.
func (f *Formatter) PlainText(pl *parser.PartList) string {
	var blocks []string

	for _, p := range pl.Parts() {
		if p.IsHidden || p.IsAttachment || p.IsError || p.Source == nil {
			continue
		}

		var text string
		switch {
		case p.Text != "" && p.MimeType == "text/plain":
			text = p.Text
		case p.MimeType == "text/html":
			raw, err := f.DecodeText(p.Source)
			if err != nil {
				continue
			}
			converted, err := html2text.FromString(raw, html2text.Options{OmitLinks: true})
			if err != nil {
				f.logger.Debug("html to text conversion failed", "id", p.ID, "error", err)
				continue
			}
			text = converted
		case p.MimeType == "text/plain", p.MimeType == "text/markdown", p.MimeType == "text/x-markdown":
			decoded, err := f.DecodeText(p.Source)
			if err != nil {
				continue
			}
			text = decoded
		case p.MimeType == "text/enriched", p.MimeType == "text/richtext":
			decoded, err := f.DecodeText(p.Source)
			if err != nil {
				continue
			}
			converted, err := html2text.FromString(enrichedToHTML(decoded, p.MimeType == "text/richtext"), html2text.Options{OmitLinks: true})
			if err != nil {
				continue
			}
			text = converted
		default:
			continue
		}

		if text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n")); text != "" {
			blocks = append(blocks, text)
		}
	}

	return strings.Join(blocks, "\n\n")
}
