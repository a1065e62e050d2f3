package extensions

import (
	"bytes"

	"github.com/felo/mailparts/internal/mimetree"
	"github.com/felo/mailparts/internal/parser"
)

type textBlock struct {
	mimeType string
	data     []byte
}

var armorMarkers = []struct {
	begin, end string
	mimeType   string
}{
	{"-----BEGIN PGP SIGNED MESSAGE-----", "-----END PGP SIGNATURE-----", MimeInlinePGPSigned},
	{"-----BEGIN PGP MESSAGE-----", "-----END PGP MESSAGE-----", MimeInlinePGPEncrypted},
	{"-----BEGIN PGP PUBLIC KEY BLOCK-----", "-----END PGP PUBLIC KEY BLOCK-----", MimePGPKeys},
}

// splitInlinePGP cuts text into plain runs and armored PGP blocks, in
// order. Whitespace-only plain runs are dropped. An unterminated block is
// left as plain text.
func splitInlinePGP(data []byte) []textBlock {
	var blocks []textBlock
	var plain []byte

	flushPlain := func() {
		if len(bytes.TrimSpace(plain)) > 0 {
			blocks = append(blocks, textBlock{mimeType: "text/plain", data: plain})
		}
		plain = nil
	}

	rest := data
	for len(rest) > 0 {
		line, tail := cutLine(rest)
		trimmed := bytes.TrimRight(line, " \t\r\n")

		matched := false
		for _, m := range armorMarkers {
			if !bytes.Equal(trimmed, []byte(m.begin)) {
				continue
			}
			end := bytes.Index(tail, []byte(m.end))
			if end < 0 {
				break
			}
			_, after := cutLine(tail[end:])
			block := rest[:len(rest)-len(after)]

			flushPlain()
			blocks = append(blocks, textBlock{mimeType: m.mimeType, data: block})
			rest = after
			matched = true
			break
		}
		if matched {
			continue
		}

		plain = append(plain, line...)
		rest = tail
	}
	flushPlain()

	return blocks
}

func cutLine(data []byte) (line, rest []byte) {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return data[:i+1], data[i+1:]
	}
	return data, nil
}

// textPlainExtension shows plain text. Inline PGP blocks found in the text
// are split out and dispatched to their own handlers.
type textPlainExtension struct{}

func (textPlainExtension) Flags() parser.ExtensionFlags {
	return parser.FlagInline
}

func (textPlainExtension) Parse(pc *parser.Context, part *mimetree.Part, id parser.PartID, out *parser.Queue) bool {
	// Attachments that merely look like text stay attachments.
	if part.Disposition() == "attachment" && !part.Is("text", "plain") {
		return false
	}

	content, err := part.Content()
	if err != nil {
		pc.Logger().Debug("failed to decode text part", "id", id, "error", err)
		return false
	}

	blocks := splitInlinePGP(content)
	if len(blocks) == 0 || (len(blocks) == 1 && blocks[0].mimeType == "text/plain") {
		out.Push(parser.NewPart(part, id.Child("plain_text"), "text/plain"))
		return true
	}

	for i, b := range blocks {
		if pc.Err() != nil {
			break
		}

		bid := id.Indexed("plain_text", i)
		sub := mimetree.NewText(b.mimeType, map[string]string{"charset": "utf-8"}, b.data)

		if b.mimeType == "text/plain" {
			out.Push(parser.NewPart(sub, bid, "text/plain"))
			continue
		}

		var work parser.Queue
		if !pc.ParsePartAs(sub, bid, b.mimeType, &work) && pc.Err() == nil {
			pc.WrapAsAttachment(sub, bid, parser.WrapFlagNone, &work)
		}
		work.Transfer(out)
	}

	return true
}

type textHTMLExtension struct{}

func (textHTMLExtension) Flags() parser.ExtensionFlags {
	return parser.FlagInline
}

func (textHTMLExtension) Parse(pc *parser.Context, part *mimetree.Part, id parser.PartID, out *parser.Queue) bool {
	out.Push(parser.NewPart(part, id.Child("text_html"), "text/html"))
	return true
}

type textMarkdownExtension struct{}

func (textMarkdownExtension) Flags() parser.ExtensionFlags {
	return parser.FlagInline
}

func (textMarkdownExtension) Parse(pc *parser.Context, part *mimetree.Part, id parser.PartID, out *parser.Queue) bool {
	out.Push(parser.NewPart(part, id.Child("text_markdown"), "text/markdown"))
	return true
}

type textEnrichedExtension struct{}

func (textEnrichedExtension) Flags() parser.ExtensionFlags {
	return parser.FlagInline
}

func (textEnrichedExtension) Parse(pc *parser.Context, part *mimetree.Part, id parser.PartID, out *parser.Queue) bool {
	out.Push(parser.NewPart(part, id.Child("text_enriched"), part.MediaType()))
	return true
}
