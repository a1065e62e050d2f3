package extensions

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/felo/mailparts/internal/mimetree"
	"github.com/felo/mailparts/internal/parser"
	"github.com/stretchr/testify/require"
)

const pdfBase64 = "JVBERi0xLjQKJcfsj6IKMSAwIG9iago8PC9UeXBlL0NhdGFsb2c+PgplbmRvYmoKdHJhaWxlcgo8PC9Sb290IDEgMCBSPj4KJSVFT0YK"

const pngBase64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg=="

func crlf(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\n", "\r\n")
}

func readMessage(t *testing.T, raw string) *mimetree.Part {
	t.Helper()
	msg, err := mimetree.Read(strings.NewReader(crlf(raw)))
	require.NoError(t, err)
	return msg
}

func parse(t *testing.T, opts parser.Options, raw string) *parser.PartList {
	t.Helper()
	reg := parser.NewRegistry()
	Register(reg)
	pl, err := parser.New(reg, opts).Parse(context.Background(), readMessage(t, raw), parser.ParseOptions{})
	require.NoError(t, err)
	return pl
}

func partIDs(pl *parser.PartList) []string {
	var ids []string
	for _, id := range pl.IDs() {
		ids = append(ids, id.String())
	}
	return ids
}

func find(t *testing.T, pl *parser.PartList, id string) *parser.Part {
	t.Helper()
	p, ok := pl.Find(parser.PartID(id))
	require.True(t, ok, "part %s not found in %v", id, partIDs(pl))
	return p
}

func newEntity(t *testing.T, name, email string) *openpgp.Entity {
	t.Helper()
	e, err := openpgp.NewEntity(name, "", email, &packet.Config{Algorithm: packet.PubKeyAlgoEdDSA})
	require.NoError(t, err)
	return e
}

func detachSign(t *testing.T, e *openpgp.Entity, data string) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, openpgp.ArmoredDetachSign(&buf, e, strings.NewReader(data), nil))
	return buf.String()
}

func encryptTo(t *testing.T, to, signer *openpgp.Entity, plaintext string) string {
	t.Helper()
	var buf bytes.Buffer
	aw, err := armor.Encode(&buf, "PGP MESSAGE", nil)
	require.NoError(t, err)
	pw, err := openpgp.Encrypt(aw, []*openpgp.Entity{to}, signer, nil, nil)
	require.NoError(t, err)
	_, err = pw.Write([]byte(plaintext))
	require.NoError(t, err)
	require.NoError(t, pw.Close())
	require.NoError(t, aw.Close())
	return buf.String()
}

func clearSign(t *testing.T, e *openpgp.Entity, text string) string {
	t.Helper()
	var buf bytes.Buffer
	w, err := clearsign.Encode(&buf, e.PrivateKey, nil)
	require.NoError(t, err)
	_, err = w.Write([]byte(text))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.String()
}
