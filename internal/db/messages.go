package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/felo/mailparts/internal/crypto"
)

// NullTime is a custom type that handles both string and time.Time from SQLite
type NullTime struct {
	Time  time.Time
	Valid bool
}

var timeFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05 -0700 MST",
	"2006-01-02 15:04:05.999999999 -0700",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
}

// Scan implements sql.Scanner for NullTime
func (nt *NullTime) Scan(value interface{}) error {
	if value == nil {
		nt.Time, nt.Valid = time.Time{}, false
		return nil
	}

	switch v := value.(type) {
	case time.Time:
		nt.Time, nt.Valid = v, true
		return nil
	case string:
		var err error
		for _, format := range timeFormats {
			var t time.Time
			t, err = time.Parse(format, v)
			if err == nil {
				nt.Time, nt.Valid = t, true
				return nil
			}
		}
		return fmt.Errorf("failed to parse time string %q: %w", v, err)
	default:
		return fmt.Errorf("unsupported Scan type for NullTime: %T", value)
	}
}

// Value implements driver.Valuer for NullTime
func (nt NullTime) Value() (driver.Value, error) {
	if !nt.Valid {
		return nil, nil
	}
	return nt.Time, nil
}

// MarshalJSON writes NULL as null and anything else as RFC 3339.
func (nt NullTime) MarshalJSON() ([]byte, error) {
	if !nt.Valid {
		return []byte("null"), nil
	}
	return nt.Time.MarshalJSON()
}

// NewNullTime creates a NullTime from a time.Time; the zero time is NULL.
func NewNullTime(t time.Time) NullTime {
	return NullTime{Time: t, Valid: !t.IsZero()}
}

// Message is an indexed message (metadata only). Content is parsed from the
// file on demand.
type Message struct {
	ID              int64        `json:"id"`
	FilePath        string       `json:"file_path"` // relative to the messages root
	Position        int          `json:"position"`  // index inside an mbox file, 0 for .eml
	MessageID       string       `json:"message_id,omitempty"`
	InReplyTo       string       `json:"in_reply_to,omitempty"`
	Subject         string       `json:"subject"`
	Sender          string       `json:"sender"`
	SenderName      string       `json:"sender_name,omitempty"`
	Recipients      string       `json:"recipients,omitempty"`
	Date            NullTime     `json:"date"`
	BodyTextPreview string       `json:"-"` // First 10KB for FTS5 search only
	Security        crypto.Flags `json:"security"`
	HasAttachments  bool         `json:"has_attachments"`
	AttachmentCount int          `json:"attachment_count"`
	PartCount       int          `json:"part_count"`
	FileSize        int64        `json:"file_size"`
	IndexedAt       NullTime     `json:"indexed_at"`
	UpdatedAt       NullTime     `json:"updated_at"`
}

// UID is the identifier parts of the message are addressed by.
func (m *Message) UID() string {
	return strconv.FormatInt(m.ID, 10)
}

// GetDate returns the date as time.Time, or zero time if NULL
func (m *Message) GetDate() time.Time {
	if m.Date.Valid {
		return m.Date.Time
	}
	return time.Time{}
}

var messageFields = []string{
	"id", "file_path", "position", "message_id", "in_reply_to",
	"subject", "sender", "sender_name", "recipients", "date",
	"body_text_preview", "validity_flags", "has_attachments", "attachment_count", "part_count",
	"file_size", "indexed_at", "updated_at",
}

var messageColumns = strings.Join(messageFields, ", ")

// columnsOf qualifies the message columns with a table alias.
func columnsOf(alias string) string {
	cols := make([]string, len(messageFields))
	for i, f := range messageFields {
		cols[i] = alias + "." + f
	}
	return strings.Join(cols, ", ")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner, extra ...any) (*Message, error) {
	m := &Message{}
	var flags int64
	dest := []any{
		&m.ID, &m.FilePath, &m.Position, &m.MessageID, &m.InReplyTo,
		&m.Subject, &m.Sender, &m.SenderName, &m.Recipients, &m.Date,
		&m.BodyTextPreview, &flags, &m.HasAttachments, &m.AttachmentCount, &m.PartCount,
		&m.FileSize, &m.IndexedAt, &m.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	m.Security = crypto.Flags(flags)
	return m, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertMessage(ctx context.Context, ex execer, m *Message) (int64, error) {
	result, err := ex.ExecContext(ctx, `
		INSERT INTO messages (
			file_path, position, message_id, in_reply_to,
			subject, sender, sender_name, recipients, date,
			body_text_preview, validity_flags, has_attachments, attachment_count, part_count,
			file_size
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.FilePath, m.Position, m.MessageID, m.InReplyTo,
		m.Subject, m.Sender, m.SenderName, m.Recipients, m.Date,
		m.BodyTextPreview, int64(m.Security), m.HasAttachments, m.AttachmentCount, m.PartCount,
		m.FileSize,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert message %s#%d: %w", m.FilePath, m.Position, err)
	}
	return result.LastInsertId()
}

// InsertMessage inserts a message without parts.
func (db *DB) InsertMessage(ctx context.Context, m *Message) (int64, error) {
	return insertMessage(ctx, db, m)
}

// InsertMessageWithParts stores a message and its part layout in a single
// transaction and sets m.ID.
func (db *DB) InsertMessageWithParts(ctx context.Context, m *Message, parts []*PartRecord) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := insertMessage(ctx, tx, m)
	if err != nil {
		return err
	}
	if err := insertParts(ctx, tx, id, parts); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	m.ID = id
	return nil
}

// MessageExists checks if the message at path and position is indexed.
func (db *DB) MessageExists(ctx context.Context, filePath string, position int) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM messages WHERE file_path = ? AND position = ?)",
		filePath, position).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check message existence: %w", err)
	}
	return exists, nil
}

// FilesIndexed reports which of the given paths have at least one indexed
// message.
func (db *DB) FilesIndexed(ctx context.Context, filePaths []string) (map[string]bool, error) {
	result := make(map[string]bool, len(filePaths))

	// SQLite has a limit on the number of variables in a query (default 999)
	const chunkSize = 500
	for i := 0; i < len(filePaths); i += chunkSize {
		end := min(i+chunkSize, len(filePaths))
		chunk := filePaths[i:end]

		query := "SELECT DISTINCT file_path FROM messages WHERE file_path IN (?" +
			strings.Repeat(",?", len(chunk)-1) + ")"
		args := make([]any, len(chunk))
		for j, fp := range chunk {
			args[j] = fp
			result[fp] = false
		}

		if err := db.collectPaths(ctx, query, args, result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (db *DB) collectPaths(ctx context.Context, query string, args []any, result map[string]bool) error {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to check message existence: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var filePath string
		if err := rows.Scan(&filePath); err != nil {
			return fmt.Errorf("failed to scan file path: %w", err)
		}
		result[filePath] = true
	}
	return rows.Err()
}

// GetMessage retrieves a message by its ID. ErrNotFound is returned when
// it does not exist.
func (db *DB) GetMessage(ctx context.Context, id int64) (*Message, error) {
	row := db.QueryRowContext(ctx, "SELECT "+messageColumns+" FROM messages WHERE id = ?", id)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("message %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return m, nil
}

// ListMessages retrieves the most recent messages with pagination
func (db *DB) ListMessages(ctx context.Context, limit, offset int) ([]*Message, error) {
	rows, err := db.QueryContext(ctx, "SELECT "+messageColumns+`
		FROM messages
		ORDER BY date DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

// CountMessages returns the number of indexed messages.
func (db *DB) CountMessages(ctx context.Context) (int, error) {
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// UpdateSubject replaces the stored subject, e.g. with one recovered from
// encrypted protected headers.
func (db *DB) UpdateSubject(ctx context.Context, id int64, subject string) error {
	result, err := db.ExecContext(ctx,
		"UPDATE messages SET subject = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		subject, id)
	if err != nil {
		return fmt.Errorf("failed to update subject: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("message %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteMessage deletes a message and its parts from the database.
// The file is NOT deleted from disk.
func (db *DB) DeleteMessage(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, "DELETE FROM messages WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("message %d: %w", id, ErrNotFound)
	}
	return nil
}

// Stats holds database statistics
type Stats struct {
	TotalMessages   int       `json:"total_messages"`
	WithAttachments int       `json:"with_attachments"`
	Signed          int       `json:"signed"`
	Encrypted       int       `json:"encrypted"`
	KnownKeys       int       `json:"known_keys"`
	LastIndexed     time.Time `json:"last_indexed"`
}

// GetStats returns current database statistics
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(has_attachments), 0),
		       COALESCE(SUM((validity_flags & ?) != 0), 0),
		       COALESCE(SUM((validity_flags & ?) != 0), 0)
		FROM messages
	`, int64(crypto.FlagSigned), int64(crypto.FlagEncrypted)).Scan(
		&stats.TotalMessages, &stats.WithAttachments, &stats.Signed, &stats.Encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}

	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM known_keys").Scan(&stats.KnownKeys); err != nil {
		return nil, fmt.Errorf("failed to count keys: %w", err)
	}

	var lastIndexed NullTime
	if err := db.QueryRowContext(ctx, "SELECT MAX(indexed_at) FROM messages").Scan(&lastIndexed); err != nil {
		// MAX over an empty table is NULL, anything else unparseable is
		// left as zero time
		lastIndexed = NullTime{}
	}
	stats.LastIndexed = lastIndexed.Time

	return stats, nil
}
