package extensions

import (
	"github.com/felo/mailparts/internal/mimetree"
	"github.com/felo/mailparts/internal/parser"
)

// Images larger than this are never shown inline.
const maxInlineImageSize = 20 << 20

type imageExtension struct{}

func (imageExtension) Flags() parser.ExtensionFlags {
	return parser.FlagInline
}

func (imageExtension) AllowInline(part *mimetree.Part) bool {
	return part.EncodedSize() <= maxInlineImageSize
}

func (imageExtension) Parse(pc *parser.Context, part *mimetree.Part, id parser.PartID, out *parser.Queue) bool {
	out.Push(parser.NewPart(part, id.Child("image"), ""))
	return true
}

type audioExtension struct{}

func (audioExtension) Parse(pc *parser.Context, part *mimetree.Part, id parser.PartID, out *parser.Queue) bool {
	out.Push(parser.NewPart(part, id.Child("audio"), ""))
	return true
}
