package parser

import (
	"fmt"
	"strings"
)

// PartID is the dotted path of a part in the output, e.g.
// ".message.mixed.1.attachment". Each step appends one segment: a name, or
// a name followed by an index.
type PartID string

// RootID is the id of the part representing the whole message.
const RootID PartID = ".message"

const (
	suffixEmbedded    = ".rfc822"
	suffixEmbeddedEnd = ".rfc822.end"
	errorPrefix       = ".error."
)

// Child appends a named segment.
func (id PartID) Child(name string) PartID {
	return id + PartID("."+name)
}

// Indexed appends a name with an index, for the n-th child of a container.
func (id PartID) Indexed(name string, index int) PartID {
	return id + PartID(fmt.Sprintf(".%s.%d", name, index))
}

// HasSuffix reports whether the id ends in suffix.
func (id PartID) HasSuffix(suffix string) bool {
	return strings.HasSuffix(string(id), suffix)
}

// HasPrefix reports whether id equals prefix or lies below it.
func (id PartID) HasPrefix(prefix PartID) bool {
	return id == prefix || strings.HasPrefix(string(id), string(prefix)+".")
}

// IsEmbeddedStart marks the beginning of an embedded message's scope.
func (id PartID) IsEmbeddedStart() bool {
	return id.HasSuffix(suffixEmbedded)
}

// IsEmbeddedEnd marks the end of an embedded message's scope.
func (id PartID) IsEmbeddedEnd() bool {
	return id.HasSuffix(suffixEmbeddedEnd)
}

// IsError reports whether the id belongs to a synthetic error part.
func (id PartID) IsError() bool {
	return strings.HasPrefix(string(id), errorPrefix)
}

func (id PartID) String() string {
	return string(id)
}
