package crypto

import "strings"

// Kind is the security protocol a validity was produced by.
type Kind int

const (
	KindPGP Kind = iota + 1
	KindSMIME
)

func (k Kind) String() string {
	switch k {
	case KindPGP:
		return "PGP"
	case KindSMIME:
		return "S/MIME"
	}
	return "unknown"
}

// SignatureStatus is the outcome of checking a signature.
type SignatureStatus int

const (
	SignatureNone SignatureStatus = iota
	SignatureGood
	SignatureBad
	SignatureUnknown
	SignatureNeedPublicKey
)

func (s SignatureStatus) String() string {
	switch s {
	case SignatureGood:
		return "good"
	case SignatureBad:
		return "bad"
	case SignatureUnknown:
		return "unknown"
	case SignatureNeedPublicKey:
		return "need-public-key"
	}
	return "none"
}

// EncryptionStatus tells whether the content arrived encrypted.
type EncryptionStatus int

const (
	EncryptionNone EncryptionStatus = iota
	EncryptionEncrypted
)

func (s EncryptionStatus) String() string {
	if s == EncryptionEncrypted {
		return "encrypted"
	}
	return "none"
}

// Validity describes what a signed or encrypted envelope proved about the
// content it wrapped.
type Validity struct {
	Kind        Kind             `json:"kind"`
	Signature   SignatureStatus  `json:"signature"`
	Encryption  EncryptionStatus `json:"encryption"`
	Signer      string           `json:"signer,omitempty"`
	KeyID       string           `json:"key_id,omitempty"`
	Description string           `json:"description,omitempty"`
}

// IsSigned reports whether a signature was present, valid or not.
func (v Validity) IsSigned() bool {
	return v.Signature != SignatureNone
}

// IsEncrypted reports whether the content was decrypted.
func (v Validity) IsEncrypted() bool {
	return v.Encryption == EncryptionEncrypted
}

// Summary is a one-line human readable description.
func (v Validity) Summary() string {
	var parts []string
	if v.IsEncrypted() {
		parts = append(parts, v.Kind.String()+" encrypted")
	}
	switch v.Signature {
	case SignatureGood:
		s := v.Kind.String() + " signature is valid"
		if v.Signer != "" {
			s += " (" + v.Signer + ")"
		}
		parts = append(parts, s)
	case SignatureBad:
		parts = append(parts, v.Kind.String()+" signature is not valid")
	case SignatureNeedPublicKey:
		s := v.Kind.String() + " signature cannot be verified: public key not found"
		if v.KeyID != "" {
			s += " (" + v.KeyID + ")"
		}
		parts = append(parts, s)
	case SignatureUnknown:
		parts = append(parts, v.Kind.String()+" signature status unknown")
	}
	if len(parts) == 0 {
		return "not signed or encrypted"
	}
	return strings.Join(parts, ", ")
}

// Flags summarize a set of validities.
type Flags uint

const (
	FlagPGP Flags = 1 << iota
	FlagSMIME
	FlagSigned
	FlagEncrypted
)

// Has reports whether all of want are set.
func (f Flags) Has(want Flags) bool {
	return f&want == want
}

// FlagsOf folds validities into a single flag set.
func FlagsOf(validities []Validity) Flags {
	var f Flags
	for _, v := range validities {
		switch v.Kind {
		case KindPGP:
			f |= FlagPGP
		case KindSMIME:
			f |= FlagSMIME
		}
		if v.IsSigned() {
			f |= FlagSigned
		}
		if v.IsEncrypted() {
			f |= FlagEncrypted
		}
	}
	return f
}

func (k Kind) MarshalText() ([]byte, error)             { return []byte(k.String()), nil }
func (s SignatureStatus) MarshalText() ([]byte, error)  { return []byte(s.String()), nil }
func (s EncryptionStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
