package crypto

import (
	"bytes"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/stretchr/testify/require"
)

var keyConfig = &packet.Config{Algorithm: packet.PubKeyAlgoEdDSA}

func newEntity(t *testing.T, name, email string) *openpgp.Entity {
	t.Helper()
	e, err := openpgp.NewEntity(name, "", email, keyConfig)
	require.NoError(t, err)
	return e
}

func publicKeyData(t *testing.T, e *openpgp.Entity) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, e.Serialize(&buf))
	return buf.Bytes()
}

func armoredPublicKey(t *testing.T, e *openpgp.Entity) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, e.Serialize(w))
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func detachSign(t *testing.T, e *openpgp.Entity, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, openpgp.ArmoredDetachSign(&buf, e, bytes.NewReader(data), nil))
	return buf.Bytes()
}

func encryptTo(t *testing.T, to, signer *openpgp.Entity, plaintext []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	aw, err := armor.Encode(&buf, "PGP MESSAGE", nil)
	require.NoError(t, err)
	pw, err := openpgp.Encrypt(aw, []*openpgp.Entity{to}, signer, nil, nil)
	require.NoError(t, err)
	_, err = pw.Write(plaintext)
	require.NoError(t, err)
	require.NoError(t, pw.Close())
	require.NoError(t, aw.Close())
	return buf.Bytes()
}

func clearSign(t *testing.T, e *openpgp.Entity, text []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := clearsign.Encode(&buf, e.PrivateKey, nil)
	require.NoError(t, err)
	_, err = w.Write(text)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}
