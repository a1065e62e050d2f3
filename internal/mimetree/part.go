package mimetree

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"golang.org/x/text/encoding/charmap"
)

func init() {
	// Register additional charsets that are commonly used in emails
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

// DefaultMaxDepth bounds how deep multipart and message/rfc822 nesting is
// expanded. Deeper content is kept as an opaque leaf.
const DefaultMaxDepth = 32

// Part is one node of a parsed message: the message itself, a multipart
// container, an embedded message or a leaf with opaque bytes.
//
// A Part is read-only once built and may be shared between goroutines.
type Part struct {
	Header message.Header

	mediaType string
	params    map[string]string
	body      []byte // raw, still transfer-encoded
	children  []*Part
}

// ReadFile parses an .eml file into a Part tree.
func ReadFile(filePath string) (*Part, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	return Read(f)
}

// Read parses a complete RFC 5322 message into a Part tree.
func Read(r io.Reader) (*Part, error) {
	return ReadDepth(r, DefaultMaxDepth)
}

// ReadDepth is Read with an explicit nesting limit.
func ReadDepth(r io.Reader, maxDepth int) (*Part, error) {
	return read(r, "", 0, maxDepth)
}

func read(r io.Reader, parentType string, depth, maxDepth int) (*Part, error) {
	br := bufio.NewReader(r)

	h, err := textproto.ReadHeader(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	body, err := io.ReadAll(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	return build(message.Header{Header: h}, body, parentType, depth, maxDepth), nil
}

// New builds a Part from a header and its raw (still encoded) body. Multipart
// and message bodies are expanded into children.
func New(header message.Header, body []byte) *Part {
	return build(header, body, "", 0, DefaultMaxDepth)
}

// NewText builds a synthetic 8bit leaf holding already decoded content.
func NewText(mediaType string, params map[string]string, content []byte) *Part {
	var h message.Header
	h.SetContentType(mediaType, params)
	h.Set("Content-Transfer-Encoding", "8bit")
	return build(h, content, "", 0, 0)
}

// NewMessage wraps an already parsed message into a synthetic message/rfc822
// part, so it can be handled like an embedded message.
func NewMessage(msg *Part) *Part {
	var h message.Header
	h.SetContentType("message/rfc822", nil)

	raw, err := msg.Bytes()
	if err != nil {
		raw = nil
	}

	return &Part{
		Header:    h,
		mediaType: "message/rfc822",
		params:    map[string]string{},
		body:      raw,
		children:  []*Part{msg},
	}
}

func build(h message.Header, body []byte, parentType string, depth, maxDepth int) *Part {
	p := &Part{
		Header: h,
		body:   body,
	}
	p.mediaType, p.params = contentType(h, parentType)

	if depth >= maxDepth {
		return p
	}

	switch {
	case strings.HasPrefix(p.mediaType, "multipart/"):
		boundary := p.params["boundary"]
		if boundary == "" {
			return p
		}
		p.children = readMultipart(body, boundary, p.mediaType, depth, maxDepth)

	case isEmbeddedMessage(p.mediaType):
		decoded, err := p.TransferDecoded()
		if err != nil {
			return p
		}
		child, err := read(bytes.NewReader(decoded), "", depth+1, maxDepth)
		if err != nil {
			return p
		}
		p.children = []*Part{child}
	}

	return p
}

func readMultipart(body []byte, boundary, mediaType string, depth, maxDepth int) []*Part {
	var children []*Part

	mr := textproto.NewMultipartReader(bytes.NewReader(body), boundary)
	for {
		part, err := mr.NextPart()
		if err != nil {
			// io.EOF ends the list; anything else is a truncated or broken
			// body and the parts read so far are kept.
			break
		}

		data, err := io.ReadAll(part)
		if err != nil {
			break
		}

		children = append(children, build(message.Header{Header: part.Header}, data, mediaType, depth+1, maxDepth))
	}

	return children
}

func contentType(h message.Header, parentType string) (string, map[string]string) {
	if h.Get("Content-Type") == "" {
		// RFC 2046 5.1.5: digest members default to message/rfc822
		if parentType == "multipart/digest" {
			return "message/rfc822", map[string]string{}
		}
		return "text/plain", map[string]string{"charset": "us-ascii"}
	}

	mt, params, err := h.ContentType()
	if err != nil {
		mt = strings.TrimSpace(strings.SplitN(h.Get("Content-Type"), ";", 2)[0])
		params = map[string]string{}
	}
	mt = strings.ToLower(mt)
	if !strings.Contains(mt, "/") {
		mt = "application/octet-stream"
	}
	if params == nil {
		params = map[string]string{}
	}

	return mt, params
}

func isEmbeddedMessage(mediaType string) bool {
	switch mediaType {
	case "message/rfc822", "message/global", "message/news":
		return true
	}
	return false
}

// MediaType returns the lower-cased type/subtype.
func (p *Part) MediaType() string {
	return p.mediaType
}

// Is reports whether the part's type matches t and sub, where sub may be "*".
func (p *Part) Is(t, sub string) bool {
	major, minor, _ := strings.Cut(p.mediaType, "/")
	if major != strings.ToLower(t) {
		return false
	}
	return sub == "*" || minor == strings.ToLower(sub)
}

// Param returns a Content-Type parameter, or "" when absent.
func (p *Part) Param(name string) string {
	return p.params[strings.ToLower(name)]
}

// HasParam reports whether the Content-Type carries the parameter at all.
func (p *Part) HasParam(name string) bool {
	_, ok := p.params[strings.ToLower(name)]
	return ok
}

// Children returns the sub-parts in document order. Callers must not modify
// the returned slice.
func (p *Part) Children() []*Part {
	return p.children
}

// IsContainer reports whether the body was expanded into children.
func (p *Part) IsContainer() bool {
	return len(p.children) > 0 || strings.HasPrefix(p.mediaType, "multipart/")
}

// RawBody returns the body exactly as stored, still transfer-encoded.
func (p *Part) RawBody() []byte {
	return p.body
}

// EncodedSize is the length of the raw body in bytes.
func (p *Part) EncodedSize() int {
	return len(p.body)
}

// Bytes serializes the header and the raw body, reproducing the original
// wire form of the part.
func (p *Part) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := textproto.WriteHeader(&buf, p.Header.Header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	buf.Write(p.body)
	return buf.Bytes(), nil
}

// Content returns the body with the transfer encoding removed and, for text
// parts with a declared charset, converted to UTF-8. Unknown encodings and
// charsets are not errors; the bytes are passed through as they are.
func (p *Part) Content() ([]byte, error) {
	entity, err := message.New(p.Header, bytes.NewReader(p.body))
	if entity == nil || (err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err)) {
		return nil, fmt.Errorf("failed to decode part: %w", err)
	}

	data, err := io.ReadAll(entity.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read part content: %w", err)
	}
	return data, nil
}

// TransferDecoded returns the body with only the transfer encoding removed.
func (p *Part) TransferDecoded() ([]byte, error) {
	h := message.Header{Header: p.Header.Header.Copy()}
	h.Set("Content-Type", "application/octet-stream")

	entity, err := message.New(h, bytes.NewReader(p.body))
	if entity == nil || (err != nil && !message.IsUnknownEncoding(err)) {
		return nil, fmt.Errorf("failed to decode part: %w", err)
	}

	data, err := io.ReadAll(entity.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read part content: %w", err)
	}
	return data, nil
}

// TransferEncoding returns the lower-cased Content-Transfer-Encoding.
func (p *Part) TransferEncoding() string {
	return strings.ToLower(strings.TrimSpace(p.Header.Get("Content-Transfer-Encoding")))
}

// Disposition returns the lower-cased Content-Disposition value ("inline",
// "attachment" or "").
func (p *Part) Disposition() string {
	disp, _, err := p.Header.ContentDisposition()
	if err != nil {
		return ""
	}
	return strings.ToLower(disp)
}

// Filename returns the attachment file name, falling back to the
// Content-Type name parameter.
func (p *Part) Filename() string {
	h := mail.AttachmentHeader{Header: p.Header}
	if name, err := h.Filename(); err == nil && name != "" {
		return name
	}
	return p.Param("name")
}

// ContentID returns the Content-ID without angle brackets.
func (p *Part) ContentID() string {
	cid := strings.TrimSpace(p.Header.Get("Content-Id"))
	cid = strings.TrimPrefix(cid, "<")
	return strings.TrimSuffix(cid, ">")
}

// Walk visits the part and all descendants depth first, in document order.
// Returning an error from fn stops the walk.
func (p *Part) Walk(fn func(depth int, part *Part) error) error {
	return p.walk(0, fn)
}

func (p *Part) walk(depth int, fn func(int, *Part) error) error {
	if err := fn(depth, p); err != nil {
		return err
	}
	for _, child := range p.children {
		if err := child.walk(depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

// Leaves returns every part without children, in document order.
func (p *Part) Leaves() []*Part {
	var leaves []*Part
	_ = p.Walk(func(_ int, part *Part) error {
		if len(part.children) == 0 {
			leaves = append(leaves, part)
		}
		return nil
	})
	return leaves
}
