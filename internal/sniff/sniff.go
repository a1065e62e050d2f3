// Package sniff guesses display mime types for parts whose declared type is
// missing, generic or wrong.
package sniff

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/felo/mailparts/internal/mimetree"
	"github.com/gabriel-vasile/mimetype"
)

// OctetStream is the generic binary type.
const OctetStream = "application/octet-stream"

// Use at most this many bytes to determine the content type.
const sniffLen = 3072

// SniffedType contains information about a blob's type.
type SniffedType struct {
	contentType string
}

// IsText detects if content format is plain text.
func (st SniffedType) IsText() bool {
	return strings.HasPrefix(st.contentType, "text/")
}

// IsImage detects if data is an image format
func (st SniffedType) IsImage() bool {
	return strings.HasPrefix(st.contentType, "image/")
}

// IsGeneric reports whether nothing more specific than a binary or plain
// text blob could be detected.
func (st SniffedType) IsGeneric() bool {
	switch st.Mime() {
	case OctetStream, "text/plain", "text/unknown", "":
		return true
	}
	return false
}

// Mime returns the type without parameters.
func (st SniffedType) Mime() string {
	return strings.TrimSpace(strings.Split(st.contentType, ";")[0])
}

// DetectContentType guesses the type from data. Empty input is text/unknown.
func DetectContentType(data []byte) SniffedType {
	if len(data) == 0 {
		return SniffedType{"text/unknown"}
	}
	if len(data) > sniffLen {
		data = data[:sniffLen]
	}
	return SniffedType{mimetype.Detect(data).String()}
}

// DetectContentTypeExtFirst detects the content type by name first and
// falls back to the data when the extension is unknown or textual.
func DetectContentTypeExtFirst(name string, data []byte) SniffedType {
	if ext := filepath.Ext(name); ext != "" {
		ct := mime.TypeByExtension(strings.ToLower(ext))
		if ct != "" && !strings.HasPrefix(ct, "text/") {
			return SniffedType{ct}
		}
	}
	return DetectContentType(data)
}

// GuessMimeType picks the display type for a part: the file name and the
// decoded content are consulted, and the declared type wins whenever
// sniffing finds nothing more specific.
func GuessMimeType(part *mimetree.Part) string {
	declared := part.MediaType()

	data, err := part.TransferDecoded()
	if err != nil {
		data = part.RawBody()
	}

	st := DetectContentTypeExtFirst(part.Filename(), data)
	if st.IsGeneric() && declared != "" && declared != OctetStream {
		return declared
	}
	if st.Mime() == "text/unknown" {
		return OctetStream
	}
	return st.Mime()
}
