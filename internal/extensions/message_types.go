package extensions

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/felo/mailparts/internal/mimetree"
	"github.com/felo/mailparts/internal/parser"
)

// rfc822Extension handles an embedded message. Its parts are enclosed by a
// ".rfc822" carrier and a ".rfc822.end" marker.
type rfc822Extension struct{}

func (rfc822Extension) Flags() parser.ExtensionFlags {
	return parser.FlagInline
}

func (rfc822Extension) Parse(pc *parser.Context, part *mimetree.Part, id parser.PartID, out *parser.Queue) bool {
	children := part.Children()
	if len(children) == 0 {
		return false
	}

	rid := id.Child("rfc822")
	out.Push(parser.NewPart(part, rid, ""))

	var work parser.Queue
	pc.ParsePartAs(children[0], rid, parser.MimeMessage, &work)
	work.Transfer(out)

	end := parser.NewPart(part, rid.Child("end"), parser.MimeRFC822End)
	end.CID = ""
	out.Push(end)

	return true
}

// deliveryStatusExtension shows machine-readable reports as text.
type deliveryStatusExtension struct{}

func (deliveryStatusExtension) Flags() parser.ExtensionFlags {
	return parser.FlagInline
}

func (deliveryStatusExtension) Parse(pc *parser.Context, part *mimetree.Part, id parser.PartID, out *parser.Queue) bool {
	out.Push(parser.NewPart(part, id.Child("delivery_status"), ""))
	return true
}

// externalBodyExtension describes where the content of a
// message/external-body part can be fetched.
type externalBodyExtension struct{}

func (externalBodyExtension) Parse(pc *parser.Context, part *mimetree.Part, id parser.PartID, out *parser.Queue) bool {
	desc := describeExternalBody(part)
	source := mimetree.NewText("text/plain", map[string]string{"charset": "utf-8"}, []byte(desc))

	p := parser.NewPart(source, id.Child("external"), "text/plain")
	p.Text = desc
	out.Push(p)
	return true
}

func describeExternalBody(part *mimetree.Part) string {
	access := strings.ToLower(part.Param("access-type"))

	switch access {
	case "ftp", "anon-ftp", "tftp":
		path := part.Param("name")
		if dir := part.Param("directory"); dir != "" {
			path = strings.TrimSuffix(dir, "/") + "/" + path
		}
		return fmt.Sprintf("Pointer to FTP site (%s://%s/%s)", access, part.Param("site"), strings.TrimPrefix(path, "/"))
	case "local-file":
		if site := part.Param("site"); site != "" {
			return fmt.Sprintf("Pointer to local file (%s) valid at site \"%s\"", part.Param("name"), site)
		}
		return fmt.Sprintf("Pointer to local file (%s)", part.Param("name"))
	case "url":
		url := strings.Join(strings.Fields(part.Param("url")), "")
		return fmt.Sprintf("Pointer to remote data (%s)", url)
	case "":
		return "Malformed external-body part"
	}
	return fmt.Sprintf("Pointer to unknown external data (\"%s\" type)", access)
}

// mboxExtension splits an attached mailbox into its messages.
type mboxExtension struct{}

func (mboxExtension) Parse(pc *parser.Context, part *mimetree.Part, id parser.PartID, out *parser.Queue) bool {
	data, err := part.TransferDecoded()
	if err != nil {
		return false
	}

	messages := mimetree.SplitMbox(data)
	if len(messages) == 0 {
		return false
	}

	for i, raw := range messages {
		if pc.Err() != nil {
			break
		}

		mid := id.Indexed("mbox", i)
		msg, err := mimetree.Read(bytes.NewReader(raw))
		if err != nil {
			pc.Error(out, "Failed to parse message %d of mailbox: %v", i+1, err)
			continue
		}

		wrapped := mimetree.NewMessage(msg)
		var work parser.Queue
		// Every member is listed as an attachment, its content being the
		// carrier when a handler claimed it.
		if pc.ParsePart(wrapped, mid, &work) || pc.Err() == nil {
			pc.WrapAsAttachment(wrapped, mid, parser.WrapFlagNone, &work)
		}
		work.Transfer(out)
	}

	return true
}
