package db

import (
	"context"
	"fmt"
	"strconv"
)

// Folder is the parser's view of the messages stored in the database. UIDs
// are message row ids.
type Folder struct {
	db   *DB
	name string
}

// NewFolder returns a folder named after the messages root.
func NewFolder(db *DB, name string) *Folder {
	return &Folder{db: db, name: name}
}

func (f *Folder) Name() string {
	return f.name
}

// UpdateSubject records a subject recovered from protected headers.
func (f *Folder) UpdateSubject(ctx context.Context, uid, subject string) error {
	id, err := strconv.ParseInt(uid, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid message uid %q: %w", uid, err)
	}
	return f.db.UpdateSubject(ctx, id, subject)
}
