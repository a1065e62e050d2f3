package parser

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/felo/mailparts/internal/crypto"
	"github.com/felo/mailparts/internal/mimetree"
)

// Folder is the store a message was loaded from.
type Folder interface {
	Name() string
}

// SubjectUpdater is implemented by folders that can record a subject
// recovered from encrypted protected headers.
type SubjectUpdater interface {
	UpdateSubject(ctx context.Context, uid, subject string) error
}

// PartList is the ordered output of one parse.
type PartList struct {
	mu sync.RWMutex

	message *mimetree.Part
	folder  Folder
	uid     string
	token   string

	parts   []*Part
	keys    []crypto.AutocryptKey
	subject string
	frozen  bool
}

func newPartList(message *mimetree.Part, folder Folder, uid, token string) *PartList {
	return &PartList{
		message: message,
		folder:  folder,
		uid:     uid,
		token:   token,
	}
}

// Message returns the parsed message.
func (pl *PartList) Message() *mimetree.Part {
	return pl.message
}

// Folder returns the folder the message came from, if any.
func (pl *PartList) Folder() Folder {
	return pl.folder
}

// MessageUID returns the message uid within its folder, if any.
func (pl *PartList) MessageUID() string {
	return pl.uid
}

// Token returns the correlation token the list was parsed under.
func (pl *PartList) Token() string {
	return pl.token
}

func (pl *PartList) add(p *Part) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.frozen {
		panic("parser: add to frozen part list")
	}
	pl.parts = append(pl.parts, p)
}

func (pl *PartList) freeze() {
	pl.mu.Lock()
	pl.frozen = true
	pl.mu.Unlock()
}

// Frozen reports whether the parse that built the list has finished.
func (pl *PartList) Frozen() bool {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return pl.frozen
}

// Parts returns a copy of the part sequence.
func (pl *PartList) Parts() []*Part {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return append([]*Part(nil), pl.parts...)
}

// Len returns the number of parts.
func (pl *PartList) Len() int {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return len(pl.parts)
}

// IDs returns the part ids in order.
func (pl *PartList) IDs() []PartID {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	ids := make([]PartID, len(pl.parts))
	for i, p := range pl.parts {
		ids[i] = p.ID
	}
	return ids
}

// Find returns the part with the given id.
func (pl *PartList) Find(id PartID) (*Part, bool) {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	for _, p := range pl.parts {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// FindByCID returns the first part with the content id.
func (pl *PartList) FindByCID(cid string) (*Part, bool) {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	for _, p := range pl.parts {
		if p.HasCID(cid) {
			return p, true
		}
	}
	return nil, false
}

// Attachments returns the attachment parts in order.
func (pl *PartList) Attachments() []*Part {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	var out []*Part
	for _, p := range pl.parts {
		if p.IsAttachment {
			out = append(out, p)
		}
	}
	return out
}

// ValidityFlags sums the validities of every part.
func (pl *PartList) ValidityFlags() crypto.Flags {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	var all []crypto.Validity
	for _, p := range pl.parts {
		all = append(all, p.Validities...)
	}
	return crypto.FlagsOf(all)
}

func (pl *PartList) addAutocryptKey(k crypto.AutocryptKey) {
	pl.mu.Lock()
	pl.keys = append(pl.keys, k)
	pl.mu.Unlock()
}

// AutocryptKeys returns the sender keys found in Autocrypt headers that the
// trust store did not know yet.
func (pl *PartList) AutocryptKeys() []crypto.AutocryptKey {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return append([]crypto.AutocryptKey(nil), pl.keys...)
}

func (pl *PartList) setSubject(subject string) {
	pl.mu.Lock()
	pl.subject = subject
	pl.mu.Unlock()
}

// ProtectedSubject returns the subject recovered from encrypted protected
// headers, or "".
func (pl *PartList) ProtectedSubject() string {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return pl.subject
}

// Dump writes one line per part: id, content id, mime type and flags.
func (pl *PartList) Dump(w io.Writer) error {
	for _, p := range pl.Parts() {
		line := fmt.Sprintf("\tid: %s | cid: %s | mime_type: %s | is_hidden: %d | is_attachment: %d | is_printable: %d",
			p.ID, p.CID, p.MimeType, btoi(p.IsHidden), btoi(p.IsAttachment), btoi(p.IsPrintable))
		if p.Attachment != nil && p.Attachment.EstimatedSize > 0 {
			line += " | size: " + humanize.Bytes(uint64(p.Attachment.EstimatedSize))
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
