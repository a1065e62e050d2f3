package crypto

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAutocryptHeader(t *testing.T) {
	keydata := base64.StdEncoding.EncodeToString([]byte("key bytes"))
	folded := keydata[:4] + "\r\n " + keydata[4:]

	tests := []struct {
		name    string
		value   string
		want    *AutocryptHeader
		wantErr bool
	}{
		{
			name:  "minimal",
			value: "addr=alice@example.com; keydata=" + keydata,
			want:  &AutocryptHeader{Addr: "alice@example.com", KeyData: []byte("key bytes")},
		},
		{
			name:  "mutual with folded keydata and non-critical attribute",
			value: "addr=alice@example.com; prefer-encrypt=mutual; _venue=x; keydata=" + folded,
			want:  &AutocryptHeader{Addr: "alice@example.com", PreferEncrypt: true, KeyData: []byte("key bytes")},
		},
		{
			name:    "unknown critical attribute",
			value:   "addr=alice@example.com; color=blue; keydata=" + keydata,
			wantErr: true,
		},
		{
			name:    "missing keydata",
			value:   "addr=alice@example.com",
			wantErr: true,
		},
		{
			name:    "bad base64",
			value:   "addr=alice@example.com; keydata=!!!",
			wantErr: true,
		},
		{
			name:    "attribute without value",
			value:   "addr=alice@example.com; keydata",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAutocryptHeader(tt.value)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAutocrypt)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAutocryptHeaders(t *testing.T) {
	keydata := base64.StdEncoding.EncodeToString([]byte("k"))

	var h mail.Header
	h.Set("From", "Alice <alice@example.com>")
	h.Add("Autocrypt", "addr=alice@example.com; keydata="+keydata)
	h.Add("Autocrypt", "addr=mallory@example.com; keydata="+keydata)
	h.Add("Autocrypt", "addr=alice@example.com; bogus=1; keydata="+keydata)

	headers := AutocryptHeaders(h)
	require.Len(t, headers, 1)
	assert.Equal(t, "alice@example.com", headers[0].Addr)

	var noFrom mail.Header
	noFrom.Add("Autocrypt", "addr=alice@example.com; keydata="+keydata)
	assert.Empty(t, AutocryptHeaders(noFrom))
}

func TestInspectKeyData(t *testing.T) {
	alice := newEntity(t, "Alice", "alice@example.com")

	infos, err := InspectKeyData(publicKeyData(t, alice))
	require.NoError(t, err)
	require.Len(t, infos, 1)

	info := infos[0]
	assert.Equal(t, alice.PrimaryKey.KeyIdString(), info.ID)
	assert.Len(t, info.Fingerprint, 2*len(alice.PrimaryKey.Fingerprint))
	assert.Equal(t, strings.ToUpper(info.Fingerprint), info.Fingerprint)
	assert.Equal(t, []string{"Alice <alice@example.com>"}, info.UserIDs)
	assert.False(t, info.Created.IsZero())

	_, err = InspectKeyData([]byte("garbage"))
	assert.Error(t, err)
}
