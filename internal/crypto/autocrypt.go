package crypto

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/emersion/go-message/mail"
)

var ErrInvalidAutocrypt = errors.New("invalid Autocrypt header")

// AutocryptHeader is one decoded Autocrypt header.
type AutocryptHeader struct {
	Addr          string
	PreferEncrypt bool
	KeyData       []byte
}

// KeyInfo describes one OpenPGP key found in key data.
type KeyInfo struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	UserIDs     []string  `json:"user_ids"`
	Created     time.Time `json:"created"`
}

// AutocryptKey is a key advertised by a message sender that is not yet known
// locally.
type AutocryptKey struct {
	Info    KeyInfo `json:"info"`
	Addr    string  `json:"addr"`
	KeyData []byte  `json:"-"`
}

// TrustStore answers whether a public key is already known locally.
type TrustStore interface {
	HasPublicKey(ctx context.Context, keyID string) (bool, error)
}

// ParseAutocryptHeader decodes the attribute list of an Autocrypt header
// value. Attributes starting with '_' are ignored; any other unknown
// attribute makes the header invalid.
func ParseAutocryptHeader(value string) (*AutocryptHeader, error) {
	ah := &AutocryptHeader{}
	var keydata string

	for _, attr := range strings.Split(value, ";") {
		attr = strings.TrimSpace(attr)
		if attr == "" {
			continue
		}

		name, val, ok := strings.Cut(attr, "=")
		if !ok {
			return nil, fmt.Errorf("%w: attribute %q has no value", ErrInvalidAutocrypt, attr)
		}
		name = strings.ToLower(strings.TrimSpace(name))

		switch {
		case strings.HasPrefix(name, "_"):
		case name == "addr":
			ah.Addr = strings.TrimSpace(val)
		case name == "prefer-encrypt":
			ah.PreferEncrypt = strings.EqualFold(strings.TrimSpace(val), "mutual")
		case name == "keydata":
			keydata = val
		default:
			return nil, fmt.Errorf("%w: unknown attribute %q", ErrInvalidAutocrypt, name)
		}
	}

	if ah.Addr == "" || keydata == "" {
		return nil, fmt.Errorf("%w: addr and keydata are required", ErrInvalidAutocrypt)
	}

	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, keydata)

	data, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAutocrypt, err)
	}
	ah.KeyData = data

	return ah, nil
}

// AutocryptHeaders returns the valid Autocrypt headers whose addr matches
// the first From address. Invalid headers are skipped.
func AutocryptHeaders(h mail.Header) []*AutocryptHeader {
	from, err := h.AddressList("From")
	if err != nil || len(from) == 0 {
		return nil
	}
	sender := from[0].Address

	var headers []*AutocryptHeader
	fields := h.FieldsByKey("Autocrypt")
	for fields.Next() {
		ah, err := ParseAutocryptHeader(fields.Value())
		if err != nil {
			continue
		}
		if !strings.EqualFold(ah.Addr, sender) {
			continue
		}
		headers = append(headers, ah)
	}
	return headers
}

// InspectKeyData lists the keys contained in binary key data.
func InspectKeyData(data []byte) ([]KeyInfo, error) {
	list, err := openpgp.ReadKeyRing(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read key data: %w", err)
	}

	infos := make([]KeyInfo, 0, len(list))
	for _, e := range list {
		info := KeyInfo{
			ID:          e.PrimaryKey.KeyIdString(),
			Fingerprint: fmt.Sprintf("%X", e.PrimaryKey.Fingerprint),
			Created:     e.PrimaryKey.CreationTime,
		}
		for name := range e.Identities {
			info.UserIDs = append(info.UserIDs, name)
		}
		sort.Strings(info.UserIDs)
		infos = append(infos, info)
	}
	return infos, nil
}
