package parser

import (
	"github.com/felo/mailparts/internal/attachment"
	"github.com/felo/mailparts/internal/mimetree"
	"github.com/felo/mailparts/internal/sniff"
)

// WrapFlags modify attachment wrapping.
type WrapFlags uint

const (
	WrapFlagNone WrapFlags = 0
	// WrapFlagIsPossible marks content that may or may not be an attachment.
	WrapFlagIsPossible WrapFlags = 1
)

// base64 expands content by roughly this factor, line breaks included.
const base64Expansion = 1.37

// WrapAsAttachment turns part into an attachment part with id
// "<id>.attachment" and pushes it onto the front of out. If the front part
// of out is neither an attachment nor an error part it is the carrier: it gets hidden and the
// attachment remembers it. Loading the content is left to the Loader.
func (pc *Context) WrapAsAttachment(part *mimetree.Part, id PartID, flags WrapFlags, out *Queue) *Part {
	reg := pc.parser.registry

	var guessed string
	exts := reg.LookupSpecific(part.MediaType())
	if part.Is("text", "*") || part.Is("message", "*") {
		guessed = part.MediaType()
	}
	if guessed == "" {
		guessed = sniff.GuessMimeType(part)
	}
	if len(exts) == 0 {
		exts = reg.LookupSpecific(guessed)
	}

	a := NewPart(part, id.Child("attachment"), guessed)
	a.IsAttachment = true

	info := &AttachmentInfo{
		Filename:        part.Filename(),
		GuessedMimeType: guessed,
		CanShow:         len(exts) > 0,
		Expandable:      true,
		IsPossible:      flags&WrapFlagIsPossible != 0,
		EstimatedSize:   estimateSize(part),
	}
	info.Shown = info.CanShow && IsInline(part, exts)

	if front := out.Front(); front != nil && !front.IsAttachment && !front.IsError {
		info.PartIDWithAttachment = front.ID
		front.IsHidden = true
	}

	info.Handle = attachment.NewHandle(string(a.ID), info.Filename, guessed, part.TransferDecoded)
	if pc.parser.opts.Loader != nil {
		pc.parser.opts.Loader.Schedule(info.Handle, attachment.PriorityHigh)
	}

	a.Attachment = info
	pc.parser.observer.AttachmentWrapped(guessed)

	out.PushFront(a)
	return a
}

// WrapAsNonExpandableAttachment wraps part like WrapAsAttachment but the
// result is collapsed and can never be shown inline. It is appended to out
// and no carrier is hidden.
func (pc *Context) WrapAsNonExpandableAttachment(part *mimetree.Part, id PartID, out *Queue) *Part {
	var work Queue
	a := pc.WrapAsAttachment(part, id, WrapFlagNone, &work)

	work.Each(func(p *Part) {
		if p.Attachment == nil {
			return
		}
		p.Attachment.Shown = false
		p.Attachment.Expandable = false
		p.Attachment.CanShow = false
	})

	work.Transfer(out)
	return a
}

func estimateSize(part *mimetree.Part) int64 {
	size := int64(part.EncodedSize())
	if part.TransferEncoding() == "base64" {
		size = int64(float64(size) / base64Expansion)
	}
	return size
}
