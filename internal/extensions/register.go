// Package extensions holds the built-in parser extensions.
package extensions

import (
	"sync"

	"github.com/felo/mailparts/internal/parser"
)

// Mime types produced by splitting text/plain.
const (
	MimeInlinePGPSigned    = "application/x-inlinepgp-signed"
	MimeInlinePGPEncrypted = "application/x-inlinepgp-encrypted"
	MimePGPKeys            = "application/pgp-keys"
)

// Register adds the built-in catalogue to reg. Order within a key is
// priority order.
func Register(reg *parser.Registry) {
	reg.Register(parser.MimeMessage, messageExtension{})
	reg.Register(parser.MimeHeaders, headersExtension{})
	reg.Register(parser.MimeSecureButton, secureButtonExtension{})
	reg.Register(parser.MimeSource, sourceExtension{})

	reg.Register("multipart/mixed", mixedExtension{})
	reg.Register("multipart/*", mixedExtension{})
	reg.Register("multipart/alternative", alternativeExtension{})
	reg.Register("multipart/related", relatedExtension{})
	reg.Register("multipart/digest", digestExtension{})
	reg.Register("multipart/appledouble", appleDoubleExtension{})
	reg.Register("multipart/signed", signedExtension{})
	reg.Register("multipart/encrypted", encryptedExtension{})

	reg.Register("message/rfc822", rfc822Extension{})
	reg.Register("message/global", rfc822Extension{})
	reg.Register("message/news", rfc822Extension{})
	reg.Register("message/delivery-status", deliveryStatusExtension{})
	reg.Register("message/feedback-report", deliveryStatusExtension{})
	reg.Register("message/disposition-notification", deliveryStatusExtension{})
	reg.Register("message/external-body", externalBodyExtension{})
	reg.Register("application/mbox", mboxExtension{})

	reg.Register("text/plain", textPlainExtension{})
	reg.Register("text/html", textHTMLExtension{})
	reg.Register("text/markdown", textMarkdownExtension{})
	reg.Register("text/x-markdown", textMarkdownExtension{})
	reg.Register("text/enriched", textEnrichedExtension{})
	reg.Register("text/richtext", textEnrichedExtension{})
	reg.Register("text/*", textPlainExtension{})

	reg.Register(MimeInlinePGPSigned, inlinePGPSignedExtension{})
	reg.Register(MimeInlinePGPEncrypted, inlinePGPEncryptedExtension{})

	reg.Register("application/pkcs7-mime", smimeExtension{})
	reg.Register("application/x-pkcs7-mime", smimeExtension{})
	reg.Register("application/pkcs7-signature", smimeExtension{})
	reg.Register("application/x-pkcs7-signature", smimeExtension{})

	reg.Register("image/*", imageExtension{})
	reg.Register("audio/*", audioExtension{})

	reg.Register(parser.FallbackKey, attachmentExtension{})
}

var (
	defaultOnce     sync.Once
	defaultRegistry *parser.Registry
)

// DefaultRegistry returns the process-wide frozen registry holding the
// built-in catalogue. It is built on first use.
func DefaultRegistry() *parser.Registry {
	defaultOnce.Do(func() {
		reg := parser.NewRegistry()
		Register(reg)
		reg.Freeze()
		defaultRegistry = reg
	})
	return defaultRegistry
}
