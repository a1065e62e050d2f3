package extensions

import (
	"bytes"
	"strings"

	"github.com/emersion/go-message/mail"
	"github.com/felo/mailparts/internal/crypto"
	"github.com/felo/mailparts/internal/mimetree"
	"github.com/felo/mailparts/internal/parser"
)

// canonicalCRLF converts line endings to CRLF, the form signatures are made
// over.
func canonicalCRLF(data []byte) []byte {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	return bytes.ReplaceAll(data, []byte("\n"), []byte("\r\n"))
}

func applyValidity(work *parser.Queue, v crypto.Validity) {
	work.Each(func(p *parser.Part) {
		p.ApplyValidity(v)
	})
}

func hasSecureButton(work *parser.Queue) bool {
	for _, p := range work.Parts() {
		if p.MimeType == parser.MimeSecureButton {
			return true
		}
	}
	return false
}

// finishSecured applies v to everything in work and adds a secure button
// unless the content already carried one of its own.
func finishSecured(pc *parser.Context, part *mimetree.Part, id parser.PartID, v crypto.Validity, work *parser.Queue, out *parser.Queue) {
	if !hasSecureButton(work) && pc.Err() == nil {
		pc.ParsePartAs(part, id, parser.MimeSecureButton, work)
	}
	applyValidity(work, v)
	work.Transfer(out)
}

// signedExtension verifies multipart/signed content.
type signedExtension struct{}

func (signedExtension) Parse(pc *parser.Context, part *mimetree.Part, id parser.PartID, out *parser.Queue) bool {
	children := part.Children()
	if len(children) != 2 {
		pc.Error(out, "Could not parse MIME message. Displaying as is.")
		return pc.ParsePartAs(part, id, "multipart/mixed", out)
	}

	content, signature := children[0], children[1]
	protocol := strings.ToLower(part.Param("protocol"))

	signed, err := content.Bytes()
	if err != nil {
		pc.Error(out, "Could not parse MIME message. Displaying as is.")
		return pc.ParsePartAs(part, id, "multipart/mixed", out)
	}
	signed = canonicalCRLF(signed)

	sigData, err := signature.TransferDecoded()
	if err != nil {
		pc.Error(out, "Error verifying signature: %v", err)
		return pc.ParsePartAs(part, id, "multipart/mixed", out)
	}

	var v crypto.Validity
	switch protocol {
	case "application/pgp-signature", "application/x-pgp-signature":
		pgp := pc.PGP()
		if pgp == nil {
			pc.Error(out, "Error verifying signature: no OpenPGP support configured")
			return pc.ParsePartAs(part, id, "multipart/mixed", out)
		}
		v, err = pgp.VerifyDetached(signed, sigData)

	case "application/pkcs7-signature", "application/x-pkcs7-signature":
		smime := pc.SMIME()
		if smime == nil {
			pc.Error(out, "Error verifying signature: %v", crypto.ErrSMIMEUnavailable)
			return pc.ParsePartAs(part, id, "multipart/mixed", out)
		}
		v, err = smime.Verify(signed, sigData)

	default:
		pc.Error(out, "Error verifying signature: unsupported signature format %q", protocol)
		return pc.ParsePartAs(part, id, "multipart/mixed", out)
	}
	if err != nil {
		pc.Error(out, "Error verifying signature: %v", err)
		return pc.ParsePartAs(part, id, "multipart/mixed", out)
	}

	sid := id.Child("signed")
	var work parser.Queue
	parseOrWrap(pc, content, sid, &work)
	finishSecured(pc, part, sid, v, &work, out)

	return true
}

// encryptedExtension decrypts PGP/MIME content.
type encryptedExtension struct{}

func (encryptedExtension) Parse(pc *parser.Context, part *mimetree.Part, id parser.PartID, out *parser.Queue) bool {
	children := part.Children()
	protocol := strings.ToLower(part.Param("protocol"))
	if len(children) != 2 || protocol != "application/pgp-encrypted" {
		pc.Error(out, "Could not parse PGP/MIME message. Displaying as is.")
		return pc.ParsePartAs(part, id, "multipart/mixed", out)
	}

	pgp := pc.PGP()
	if pgp == nil {
		pc.Error(out, "Could not parse PGP/MIME message: no OpenPGP support configured")
		return pc.ParsePartAs(part, id, "multipart/mixed", out)
	}

	ciphertext, err := children[1].TransferDecoded()
	if err != nil {
		pc.Error(out, "Could not parse PGP/MIME message: %v", err)
		return pc.ParsePartAs(part, id, "multipart/mixed", out)
	}

	plaintext, v, err := pgp.Decrypt(ciphertext)
	if err != nil {
		pc.Error(out, "Could not parse PGP/MIME message: %v", err)
		return pc.ParsePartAs(part, id, "multipart/mixed", out)
	}

	decrypted, err := mimetree.Read(bytes.NewReader(plaintext))
	if err != nil {
		pc.Error(out, "Could not parse PGP/MIME message: %v", err)
		return pc.ParsePartAs(part, id, "multipart/mixed", out)
	}

	applyProtectedHeaders(pc, decrypted)

	eid := id.Child("encrypted-pgp")
	var work parser.Queue
	parseOrWrap(pc, decrypted, eid, &work)
	finishSecured(pc, part, eid, v, &work, out)

	return true
}

// applyProtectedHeaders picks up the real subject from a decrypted part that
// declares protected headers.
func applyProtectedHeaders(pc *parser.Context, decrypted *mimetree.Part) {
	if !decrypted.HasParam("protected-headers") {
		return
	}

	h := mail.Header{Header: decrypted.Header}
	subject, err := h.Subject()
	if err != nil || subject == "" {
		return
	}
	pc.SetProtectedSubject(subject)
}

// inlinePGPSignedExtension verifies a clearsigned block cut out of plain
// text.
type inlinePGPSignedExtension struct{}

func (inlinePGPSignedExtension) Parse(pc *parser.Context, part *mimetree.Part, id parser.PartID, out *parser.Queue) bool {
	pgp := pc.PGP()
	if pgp == nil {
		return false
	}

	data, err := part.Content()
	if err != nil {
		return false
	}

	text, v, err := pgp.VerifyClearsigned(data)
	if text == nil {
		pc.Error(out, "Error verifying signature: %v", err)
		return false
	}
	if err != nil {
		pc.Logger().Debug("inline signature not verified", "id", id, "error", err)
	}

	sid := id.Child("inlinepgp_signed")
	opart := mimetree.NewText("text/plain", map[string]string{"charset": "utf-8"}, text)

	var work parser.Queue
	parseOrWrap(pc, opart, sid, &work)
	finishSecured(pc, part, sid, v, &work, out)

	return true
}

// inlinePGPEncryptedExtension decrypts an armored message cut out of plain
// text.
type inlinePGPEncryptedExtension struct{}

func (inlinePGPEncryptedExtension) Parse(pc *parser.Context, part *mimetree.Part, id parser.PartID, out *parser.Queue) bool {
	pgp := pc.PGP()
	if pgp == nil {
		return false
	}

	data, err := part.Content()
	if err != nil {
		return false
	}

	plaintext, v, err := pgp.Decrypt(data)
	if err != nil {
		pc.Error(out, "Could not parse PGP message: %v", err)
		return false
	}

	eid := id.Child("inlinepgp_encrypted")
	opart := mimetree.NewText("text/plain", map[string]string{"charset": "utf-8"}, plaintext)

	var work parser.Queue
	parseOrWrap(pc, opart, eid, &work)
	finishSecured(pc, part, eid, v, &work, out)

	return true
}

// smimeExtension handles application/pkcs7-* parts through the S/MIME
// provider.
type smimeExtension struct{}

func (smimeExtension) Flags() parser.ExtensionFlags {
	return parser.FlagInlineDisposition
}

func (smimeExtension) Parse(pc *parser.Context, part *mimetree.Part, id parser.PartID, out *parser.Queue) bool {
	// A detached signature outside multipart/signed is just a file.
	if strings.HasSuffix(part.MediaType(), "pkcs7-signature") {
		return false
	}

	smime := pc.SMIME()
	if smime == nil {
		pc.Error(out, "Could not parse S/MIME message: %v", crypto.ErrSMIMEUnavailable)
		return false
	}

	data, err := part.TransferDecoded()
	if err != nil {
		pc.Error(out, "Could not parse S/MIME message: %v", err)
		return false
	}

	plaintext, v, err := smime.Decrypt(data)
	if err != nil {
		pc.Error(out, "Could not parse S/MIME message: %v", err)
		return false
	}

	decrypted, err := mimetree.Read(bytes.NewReader(plaintext))
	if err != nil {
		pc.Error(out, "Could not parse S/MIME message: %v", err)
		return false
	}

	eid := id.Child("encrypted-smime")
	var work parser.Queue
	parseOrWrap(pc, decrypted, eid, &work)
	finishSecured(pc, part, eid, v, &work, out)

	return true
}
