package crypto

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
	pgperrors "github.com/ProtonMail/go-crypto/openpgp/errors"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
)

var (
	ErrNoSecretKey      = errors.New("no secret key available to decrypt the message")
	ErrNotClearsigned   = errors.New("not a clearsigned message")
	ErrSMIMEUnavailable = errors.New("S/MIME support is not available")
)

// PGPContext verifies and decrypts OpenPGP content. Calls block.
type PGPContext interface {
	VerifyDetached(signed, signature []byte) (Validity, error)
	Decrypt(ciphertext []byte) ([]byte, Validity, error)
	VerifyClearsigned(data []byte) ([]byte, Validity, error)
}

// SMIMEContext verifies and decrypts CMS content. There is no bundled
// implementation; callers plug one in.
type SMIMEContext interface {
	Verify(signed, signature []byte) (Validity, error)
	Decrypt(data []byte) ([]byte, Validity, error)
}

// PGP is a PGPContext backed by an in-memory keyring.
type PGP struct {
	mu      sync.RWMutex
	keyring openpgp.EntityList
}

// NewPGP creates a context around the given entities. Entities holding
// private keys are used for decryption.
func NewPGP(keyring openpgp.EntityList) *PGP {
	return &PGP{keyring: keyring}
}

// LoadKeyringFile reads an armored or binary keyring from disk.
func LoadKeyringFile(path string) (openpgp.EntityList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keyring: %w", err)
	}
	return ReadKeyring(data)
}

// ReadKeyring parses armored or binary key material.
func ReadKeyring(data []byte) (openpgp.EntityList, error) {
	if isArmored(data) {
		list, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to read armored keyring: %w", err)
		}
		return list, nil
	}
	list, err := openpgp.ReadKeyRing(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read keyring: %w", err)
	}
	return list, nil
}

// Add appends entities to the keyring.
func (p *PGP) Add(entities ...*openpgp.Entity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keyring = append(p.keyring, entities...)
}

// HasPublicKey reports whether the keyring holds a key with the given id.
func (p *PGP) HasPublicKey(keyID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, e := range p.keyring {
		if strings.EqualFold(e.PrimaryKey.KeyIdString(), keyID) {
			return true
		}
		for _, sub := range e.Subkeys {
			if strings.EqualFold(sub.PublicKey.KeyIdString(), keyID) {
				return true
			}
		}
	}
	return false
}

func (p *PGP) entities() openpgp.EntityList {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append(openpgp.EntityList(nil), p.keyring...)
}

// VerifyDetached checks a detached signature over signed. Problems with the
// signature itself are reported through the validity; an error means the
// signature could not be read at all.
func (p *PGP) VerifyDetached(signed, signature []byte) (Validity, error) {
	v := Validity{Kind: KindPGP}

	var (
		signer *openpgp.Entity
		err    error
	)
	if isArmored(signature) {
		signer, err = openpgp.CheckArmoredDetachedSignature(p.entities(), bytes.NewReader(signed), bytes.NewReader(signature), nil)
	} else {
		signer, err = openpgp.CheckDetachedSignature(p.entities(), bytes.NewReader(signed), bytes.NewReader(signature), nil)
	}

	v, err = signatureValidity(v, signer, err)
	if v.Signature == SignatureNeedPublicKey {
		v.KeyID = signatureIssuer(signature)
	}
	return v, err
}

// signatureIssuer returns the issuer key id of the first signature packet,
// or "" when it cannot be read.
func signatureIssuer(signature []byte) string {
	var r io.Reader = bytes.NewReader(signature)
	if isArmored(signature) {
		block, err := armor.Decode(r)
		if err != nil {
			return ""
		}
		r = block.Body
	}

	pkt, err := packet.Read(r)
	if err != nil {
		return ""
	}
	if sig, ok := pkt.(*packet.Signature); ok && sig.IssuerKeyId != nil {
		return fmt.Sprintf("%016X", *sig.IssuerKeyId)
	}
	return ""
}

// Decrypt decrypts an armored or binary OpenPGP message and reports any
// signature found inside it.
func (p *PGP) Decrypt(ciphertext []byte) ([]byte, Validity, error) {
	v := Validity{Kind: KindPGP}

	var r io.Reader = bytes.NewReader(ciphertext)
	if isArmored(ciphertext) {
		block, err := armor.Decode(r)
		if err != nil {
			return nil, v, fmt.Errorf("failed to decode armor: %w", err)
		}
		r = block.Body
	}

	md, err := openpgp.ReadMessage(r, p.entities(), nil, nil)
	if err != nil {
		if errors.Is(err, pgperrors.ErrKeyIncorrect) {
			return nil, v, ErrNoSecretKey
		}
		return nil, v, fmt.Errorf("failed to read message: %w", err)
	}

	plaintext, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		return nil, v, fmt.Errorf("failed to decrypt message: %w", err)
	}

	if md.IsEncrypted {
		v.Encryption = EncryptionEncrypted
	}
	if md.IsSigned {
		switch {
		case md.SignedBy == nil:
			v.Signature = SignatureNeedPublicKey
			v.KeyID = fmt.Sprintf("%016X", md.SignedByKeyId)
		case md.SignatureError != nil:
			v.Signature = SignatureBad
			v.Description = md.SignatureError.Error()
		default:
			v.Signature = SignatureGood
			v.Signer = primaryIdentity(md.SignedBy.Entity)
			v.KeyID = md.SignedBy.PublicKey.KeyIdString()
		}
	}

	return plaintext, v, nil
}

// VerifyClearsigned checks a cleartext signed block and returns its text.
func (p *PGP) VerifyClearsigned(data []byte) ([]byte, Validity, error) {
	v := Validity{Kind: KindPGP}

	block, _ := clearsign.Decode(data)
	if block == nil {
		return nil, v, ErrNotClearsigned
	}

	signer, err := openpgp.CheckDetachedSignature(p.entities(), bytes.NewReader(block.Bytes), block.ArmoredSignature.Body, nil)
	v, err = signatureValidity(v, signer, err)
	if err != nil {
		return block.Plaintext, v, err
	}
	return block.Plaintext, v, nil
}

func signatureValidity(v Validity, signer *openpgp.Entity, err error) (Validity, error) {
	var sigErr pgperrors.SignatureError

	switch {
	case err == nil:
		v.Signature = SignatureGood
		if signer != nil {
			v.Signer = primaryIdentity(signer)
			v.KeyID = signer.PrimaryKey.KeyIdString()
		}
		return v, nil
	case errors.Is(err, pgperrors.ErrUnknownIssuer):
		v.Signature = SignatureNeedPublicKey
		return v, nil
	case errors.As(err, &sigErr), errors.Is(err, pgperrors.ErrSignatureExpired), errors.Is(err, pgperrors.ErrKeyExpired):
		v.Signature = SignatureBad
		v.Description = err.Error()
		return v, nil
	}

	v.Signature = SignatureUnknown
	v.Description = err.Error()
	return v, fmt.Errorf("failed to verify signature: %w", err)
}

func primaryIdentity(e *openpgp.Entity) string {
	if e == nil {
		return ""
	}
	if id := e.PrimaryIdentity(); id != nil {
		return id.Name
	}
	names := make([]string, 0, len(e.Identities))
	for name := range e.Identities {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 0 {
		return names[0]
	}
	return ""
}

func isArmored(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("-----BEGIN PGP"))
}
