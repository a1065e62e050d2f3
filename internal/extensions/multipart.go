package extensions

import (
	"bytes"
	"strings"

	"github.com/felo/mailparts/internal/mimetree"
	"github.com/felo/mailparts/internal/parser"
)

func hide(p *parser.Part) {
	p.IsHidden = true
}

// parseOrWrap dispatches child and wraps it as an attachment when no handler
// accepted it.
func parseOrWrap(pc *parser.Context, child *mimetree.Part, id parser.PartID, work *parser.Queue) {
	if !pc.ParsePart(child, id, work) && pc.Err() == nil {
		pc.WrapAsAttachment(child, id, parser.WrapFlagNone, work)
	}
}

// parseChild parses a child of a mixed container and lists it as an
// attachment when wantsAttachment asks for it. Once a handler has run the
// attachment step completes even if the parse was cancelled meanwhile, so a
// cancelled parse keeps the order a full one produces.
func parseChild(pc *parser.Context, child *mimetree.Part, id parser.PartID, work *parser.Queue) {
	handled := pc.ParsePart(child, id, work)
	if (handled && wantsAttachment(child, work)) || (!handled && pc.Err() == nil) {
		pc.WrapAsAttachment(child, id, parser.WrapFlagNone, work)
	}
}

func isEmbeddedMessage(p *mimetree.Part) bool {
	return p.Is("message", "rfc822") || p.Is("message", "global") || p.Is("message", "news")
}

// wantsAttachment reports whether a handled child of a mixed container is
// listed as an attachment as well: embedded messages, leaves with an
// attachment disposition, and media.
func wantsAttachment(child *mimetree.Part, work *parser.Queue) bool {
	if front := work.Front(); front != nil && front.IsAttachment {
		return false
	}
	if isEmbeddedMessage(child) {
		return true
	}
	if child.IsContainer() {
		return false
	}
	if child.Disposition() == "attachment" {
		return true
	}
	return child.Is("image", "*") || child.Is("audio", "*")
}

// mixedExtension handles multipart/mixed and every multipart subtype
// without a handler of its own.
type mixedExtension struct{}

func (mixedExtension) Parse(pc *parser.Context, part *mimetree.Part, id parser.PartID, out *parser.Queue) bool {
	children := part.Children()
	if len(children) == 0 {
		return false
	}

	for i, child := range children {
		if pc.Err() != nil {
			break
		}

		var work parser.Queue
		parseChild(pc, child, id.Indexed("mixed", i), &work)
		work.Transfer(out)
	}

	return true
}

// alternativeExtension shows one alternative and emits the rest hidden.
type alternativeExtension struct{}

func (alternativeExtension) Parse(pc *parser.Context, part *mimetree.Part, id parser.PartID, out *parser.Queue) bool {
	children := part.Children()
	if len(children) == 0 {
		return false
	}

	chosen := chooseAlternative(pc, children)
	if chosen < 0 {
		return pc.ParsePartAs(part, id, "multipart/mixed", out)
	}

	for i, child := range children {
		if pc.Err() != nil {
			break
		}

		var work parser.Queue
		parseOrWrap(pc, child, id.Indexed("alternative", i), &work)
		if i != chosen {
			work.Each(hide)
		}
		work.Transfer(out)
	}

	return true
}

// chooseAlternative returns the index of the last alternative some handler
// can display, or the first text/plain one when plain text is preferred.
func chooseAlternative(pc *parser.Context, children []*mimetree.Part) int {
	chosen := -1
	for i, child := range children {
		if child.Is("application", "octet-stream") || child.Disposition() == "attachment" {
			continue
		}
		if len(pc.Handlers(child.MediaType())) == 0 {
			continue
		}
		if pc.PreferPlain() && child.Is("text", "plain") {
			return i
		}
		chosen = i
	}
	return chosen
}

// relatedExtension shows the root part; the others are hidden when the
// root references their Content-ID, otherwise listed as attachments.
type relatedExtension struct{}

func (relatedExtension) Parse(pc *parser.Context, part *mimetree.Part, id parser.PartID, out *parser.Queue) bool {
	children := part.Children()
	if len(children) == 0 {
		return false
	}

	root := relatedRoot(part, children)
	rootContent, err := children[root].Content()
	if err != nil {
		rootContent = nil
	}

	for i, child := range children {
		if pc.Err() != nil {
			break
		}

		rid := id.Indexed("related", i)
		var work parser.Queue
		handled := pc.ParsePart(child, rid, &work)
		if !handled && pc.Err() == nil {
			pc.WrapAsAttachment(child, rid, parser.WrapFlagNone, &work)
		}

		if i != root {
			cid := child.ContentID()
			switch {
			case cid != "" && bytes.Contains(rootContent, []byte("cid:"+cid)):
				work.Each(hide)
			case !child.IsContainer() && (handled || pc.Err() == nil):
				if front := work.Front(); front == nil || !front.IsAttachment {
					pc.WrapAsAttachment(child, rid, parser.WrapFlagNone, &work)
				}
			}
		}

		work.Transfer(out)
	}

	return true
}

func relatedRoot(part *mimetree.Part, children []*mimetree.Part) int {
	start := strings.Trim(strings.TrimSpace(part.Param("start")), "<>")
	if start == "" {
		return 0
	}
	for i, child := range children {
		if child.ContentID() == start {
			return i
		}
	}
	return 0
}

// digestExtension lists each digest member; embedded messages become
// expandable attachments.
type digestExtension struct{}

func (digestExtension) Parse(pc *parser.Context, part *mimetree.Part, id parser.PartID, out *parser.Queue) bool {
	children := part.Children()
	if len(children) == 0 {
		return false
	}

	for i, child := range children {
		if pc.Err() != nil {
			break
		}

		var work parser.Queue
		parseChild(pc, child, id.Indexed("digest", i), &work)
		work.Transfer(out)
	}

	return true
}

// appleDoubleExtension shows the data fork; the resource fork is kept
// hidden.
type appleDoubleExtension struct{}

func (appleDoubleExtension) Parse(pc *parser.Context, part *mimetree.Part, id parser.PartID, out *parser.Queue) bool {
	children := part.Children()
	if len(children) < 2 {
		return pc.ParsePartAs(part, id, "multipart/mixed", out)
	}

	for i, child := range children {
		if pc.Err() != nil {
			break
		}

		var work parser.Queue
		parseOrWrap(pc, child, id.Indexed("apple_double", i), &work)
		if i == 0 {
			work.Each(hide)
		}
		work.Transfer(out)
	}

	return true
}
