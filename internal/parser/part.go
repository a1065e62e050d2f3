package parser

import (
	"strings"

	"github.com/felo/mailparts/internal/attachment"
	"github.com/felo/mailparts/internal/crypto"
	"github.com/felo/mailparts/internal/mimetree"
)

// Synthetic mime types used for parts that have no MIME counterpart.
const (
	MimeMessage      = "application/vnd.evolution.message"
	MimeHeaders      = "application/vnd.evolution.headers"
	MimeSecureButton = "application/vnd.evolution.secure-button"
	MimeError        = "application/vnd.evolution.error"
	MimeSource       = "application/vnd.evolution.source"
	MimeRFC822End    = "application/vnd.evolution.rfc822.end"
)

// Part is one addressable unit of the output.
type Part struct {
	ID       PartID `json:"id"`
	MimeType string `json:"mime_type"`
	CID      string `json:"cid,omitempty"`

	IsHidden     bool `json:"is_hidden"`
	IsAttachment bool `json:"is_attachment"`
	IsPrintable  bool `json:"is_printable"`
	IsError      bool `json:"is_error"`

	// Text carries a message for error parts and descriptions for
	// synthetic parts.
	Text string `json:"text,omitempty"`

	Validities []crypto.Validity `json:"validities,omitempty"`

	// Attachment is set on parts produced by attachment wrapping.
	Attachment *AttachmentInfo `json:"attachment,omitempty"`

	// Source is the MIME node the part renders. Not owned.
	Source *mimetree.Part `json:"-"`
}

// AttachmentInfo describes a wrapped attachment.
type AttachmentInfo struct {
	Filename        string `json:"filename,omitempty"`
	GuessedMimeType string `json:"guessed_mime_type"`
	EstimatedSize   int64  `json:"estimated_size"`

	// Shown means the attachment is initially displayed inline.
	Shown      bool `json:"shown"`
	Expandable bool `json:"expandable"`
	CanShow    bool `json:"can_show"`
	IsPossible bool `json:"is_possible"`

	// PartIDWithAttachment is the carrier part hidden in favour of this
	// attachment.
	PartIDWithAttachment PartID `json:"part_id_with_attachment,omitempty"`

	Handle *attachment.Handle `json:"-"`
}

// NewPart creates a printable part. An empty mimeType takes the source's
// media type; the content id is taken from the source.
func NewPart(source *mimetree.Part, id PartID, mimeType string) *Part {
	p := &Part{
		ID:          id,
		MimeType:    mimeType,
		IsPrintable: true,
		Source:      source,
	}
	if source != nil {
		if p.MimeType == "" {
			p.MimeType = source.MediaType()
		}
		if cid := source.ContentID(); cid != "" {
			p.CID = "cid:" + cid
		}
	}
	return p
}

// ApplyValidity merges v into the part. A validity of the same kind is
// combined rather than duplicated.
func (p *Part) ApplyValidity(v crypto.Validity) {
	for i := range p.Validities {
		if p.Validities[i].Kind != v.Kind {
			continue
		}
		if v.Signature != crypto.SignatureNone {
			p.Validities[i].Signature = v.Signature
			p.Validities[i].Signer = v.Signer
			p.Validities[i].KeyID = v.KeyID
			p.Validities[i].Description = v.Description
		}
		if v.Encryption != crypto.EncryptionNone {
			p.Validities[i].Encryption = v.Encryption
		}
		return
	}
	p.Validities = append(p.Validities, v)
}

// HasCID reports whether the part answers to the content id, given with or
// without the "cid:" scheme.
func (p *Part) HasCID(cid string) bool {
	if p.CID == "" {
		return false
	}
	if !strings.HasPrefix(cid, "cid:") {
		cid = "cid:" + cid
	}
	return strings.EqualFold(p.CID, cid)
}
