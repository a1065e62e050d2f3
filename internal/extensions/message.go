package extensions

import (
	"github.com/felo/mailparts/internal/mimetree"
	"github.com/felo/mailparts/internal/parser"
)

// messageExtension handles a whole message: its headers block, then its
// body dispatched by the message's own content type.
type messageExtension struct{}

func (messageExtension) Parse(pc *parser.Context, part *mimetree.Part, id parser.PartID, out *parser.Queue) bool {
	pc.ParsePartAs(part, id, parser.MimeHeaders, out)

	var work parser.Queue
	if !pc.ParsePart(part, id, &work) && pc.Err() == nil {
		pc.WrapAsAttachment(part, id, parser.WrapFlagNone, &work)
	}
	work.Transfer(out)

	return true
}

type headersExtension struct{}

func (headersExtension) Parse(pc *parser.Context, part *mimetree.Part, id parser.PartID, out *parser.Queue) bool {
	p := parser.NewPart(part, id.Child("headers"), parser.MimeHeaders)
	p.CID = ""
	out.Push(p)
	return true
}

type secureButtonExtension struct{}

func (secureButtonExtension) Parse(pc *parser.Context, part *mimetree.Part, id parser.PartID, out *parser.Queue) bool {
	p := parser.NewPart(part, id.Child("secure-button"), parser.MimeSecureButton)
	p.CID = ""
	p.IsPrintable = false
	out.Push(p)
	return true
}

type sourceExtension struct{}

func (sourceExtension) Parse(pc *parser.Context, part *mimetree.Part, id parser.PartID, out *parser.Queue) bool {
	out.Push(parser.NewPart(part, id.Child("source"), parser.MimeSource))
	return true
}

// attachmentExtension is the fallback: anything else becomes an attachment.
type attachmentExtension struct{}

func (attachmentExtension) Parse(pc *parser.Context, part *mimetree.Part, id parser.PartID, out *parser.Queue) bool {
	pc.WrapAsAttachment(part, id, parser.WrapFlagNone, out)
	return true
}
