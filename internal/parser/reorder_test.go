package parser

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func part(id PartID, mimeType string) *Part {
	return &Part{ID: id, MimeType: mimeType, IsPrintable: true}
}

func TestMoveSecurityBeforeHeaders(t *testing.T) {
	logger := slog.Default()

	t.Run("button moves before headers", func(t *testing.T) {
		in := []*Part{
			part(".message.headers", MimeHeaders),
			part(".message.signed.text", "text/plain"),
			part(".message.signed.secure-button", MimeSecureButton),
		}
		got := moveSecurityBeforeHeaders(in, logger)
		assert.Equal(t, []PartID{
			".message.signed.secure-button",
			".message.headers",
			".message.signed.text",
		}, ids(got))
	})

	t.Run("embedded message keeps its own scope", func(t *testing.T) {
		in := []*Part{
			part(".message.headers", MimeHeaders),
			part(".message.mixed.0.text", "text/plain"),
			part(".message.mixed.1.rfc822", "message/rfc822"),
			part(".message.mixed.1.rfc822.headers", MimeHeaders),
			part(".message.mixed.1.rfc822.signed.text", "text/plain"),
			part(".message.mixed.1.rfc822.signed.secure-button", MimeSecureButton),
			part(".message.mixed.1.rfc822.end", MimeRFC822End),
			part(".message.signed.secure-button", MimeSecureButton),
		}
		got := moveSecurityBeforeHeaders(in, logger)
		assert.Equal(t, []PartID{
			".message.signed.secure-button",
			".message.headers",
			".message.mixed.0.text",
			".message.mixed.1.rfc822",
			".message.mixed.1.rfc822.signed.secure-button",
			".message.mixed.1.rfc822.headers",
			".message.mixed.1.rfc822.signed.text",
			".message.mixed.1.rfc822.end",
		}, ids(got))
	})

	t.Run("button inside embedded message without headers stays", func(t *testing.T) {
		in := []*Part{
			part(".message.headers", MimeHeaders),
			part(".message.mixed.0.rfc822", "message/rfc822"),
			part(".message.mixed.0.rfc822.signed.secure-button", MimeSecureButton),
			part(".message.mixed.0.rfc822.end", MimeRFC822End),
		}
		got := moveSecurityBeforeHeaders(in, logger)
		assert.Equal(t, ids(in), ids(got))
	})

	t.Run("no headers at all", func(t *testing.T) {
		in := []*Part{
			part(".message.signed.text", "text/plain"),
			part(".message.signed.secure-button", MimeSecureButton),
		}
		assert.Equal(t, ids(in), ids(moveSecurityBeforeHeaders(in, logger)))
	})

	t.Run("two buttons keep their order", func(t *testing.T) {
		in := []*Part{
			part(".message.headers", MimeHeaders),
			part(".message.encrypted-pgp.signed.secure-button", MimeSecureButton),
			part(".message.plain_text.1.inlinepgp_signed.secure-button", MimeSecureButton),
		}
		got := moveSecurityBeforeHeaders(in, logger)
		assert.Equal(t, []PartID{
			".message.encrypted-pgp.signed.secure-button",
			".message.plain_text.1.inlinepgp_signed.secure-button",
			".message.headers",
		}, ids(got))
	})

	t.Run("nil entries are dropped", func(t *testing.T) {
		in := []*Part{nil, part(".message.headers", MimeHeaders)}
		assert.Equal(t, []PartID{".message.headers"}, ids(moveSecurityBeforeHeaders(in, logger)))
	})
}

func TestMoveSecurityBeforeHeaders_Idempotent(t *testing.T) {
	in := []*Part{
		part(".message.headers", MimeHeaders),
		part(".message.mixed.0.text", "text/plain"),
		part(".message.mixed.1.rfc822", "message/rfc822"),
		part(".message.mixed.1.rfc822.headers", MimeHeaders),
		part(".message.mixed.1.rfc822.signed.secure-button", MimeSecureButton),
		part(".message.mixed.1.rfc822.end", MimeRFC822End),
		part(".message.signed.secure-button", MimeSecureButton),
	}

	once := moveSecurityBeforeHeaders(in, slog.Default())
	twice := moveSecurityBeforeHeaders(once, slog.Default())

	assert.Equal(t, ids(once), ids(twice))
}
