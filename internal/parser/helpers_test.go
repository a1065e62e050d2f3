package parser

import (
	"strings"
	"testing"

	"github.com/felo/mailparts/internal/mimetree"
	"github.com/stretchr/testify/require"
)

// readMessage parses a message written with \n line endings.
func readMessage(t *testing.T, raw string) *mimetree.Part {
	t.Helper()
	msg, err := mimetree.Read(strings.NewReader(strings.ReplaceAll(raw, "\n", "\r\n")))
	require.NoError(t, err)
	return msg
}

// testRegistry is a small catalogue: message, headers, a mixed walker, a
// text leaf handler and the attachment fallback.
func testRegistry() *Registry {
	reg := NewRegistry()

	reg.Register(MimeMessage, ExtensionFunc(func(pc *Context, part *mimetree.Part, id PartID, out *Queue) bool {
		pc.ParsePartAs(part, id, MimeHeaders, out)
		var work Queue
		if !pc.ParsePart(part, id, &work) && pc.Err() == nil {
			pc.WrapAsAttachment(part, id, WrapFlagNone, &work)
		}
		work.Transfer(out)
		return true
	}))
	reg.Register(MimeHeaders, ExtensionFunc(func(pc *Context, part *mimetree.Part, id PartID, out *Queue) bool {
		out.Push(NewPart(part, id.Child("headers"), MimeHeaders))
		return true
	}))
	reg.Register(MimeSecureButton, ExtensionFunc(func(pc *Context, part *mimetree.Part, id PartID, out *Queue) bool {
		out.Push(NewPart(part, id.Child("secure-button"), MimeSecureButton))
		return true
	}))
	reg.Register("multipart/*", ExtensionFunc(func(pc *Context, part *mimetree.Part, id PartID, out *Queue) bool {
		for i, child := range part.Children() {
			if pc.Err() != nil {
				break
			}
			var work Queue
			if !pc.ParsePart(child, id.Indexed("mixed", i), &work) && pc.Err() == nil {
				pc.WrapAsAttachment(child, id.Indexed("mixed", i), WrapFlagNone, &work)
			}
			work.Transfer(out)
		}
		return true
	}))
	reg.Register("text/*", textLeaf{})
	reg.Register(FallbackKey, ExtensionFunc(func(pc *Context, part *mimetree.Part, id PartID, out *Queue) bool {
		pc.WrapAsAttachment(part, id, WrapFlagNone, out)
		return true
	}))

	return reg
}

type textLeaf struct{}

func (textLeaf) Flags() ExtensionFlags { return FlagInline }

func (textLeaf) Parse(pc *Context, part *mimetree.Part, id PartID, out *Queue) bool {
	out.Push(NewPart(part, id.Child("text"), ""))
	return true
}

func ids(parts []*Part) []PartID {
	out := make([]PartID, len(parts))
	for i, p := range parts {
		out[i] = p.ID
	}
	return out
}

const mixedMessage = `From: Alice <alice@example.com>
To: bob@example.com
Subject: Mixed
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="b1"

--b1
Content-Type: text/plain

first
--b1
Content-Type: text/plain

second
--b1
Content-Type: application/pdf
Content-Disposition: attachment; filename="doc.pdf"
Content-Transfer-Encoding: base64

JVBERi0xLjQKJcfsj6IKMSAwIG9iago8PC9UeXBlL0NhdGFsb2c+PgplbmRvYmoKdHJhaWxlcgo8PC9Sb290IDEgMCBSPj4KJSVFT0YK
--b1--
`
