package db

import (
	"context"
	"database/sql"
	"fmt"
)

// PartRecord is one entry of a stored part list.
type PartRecord struct {
	Seq          int    `json:"seq"`
	PartID       string `json:"part_id"`
	MimeType     string `json:"mime_type"`
	Filename     string `json:"filename,omitempty"`
	Size         int64  `json:"size,omitempty"`
	IsAttachment bool   `json:"is_attachment"`
	IsHidden     bool   `json:"is_hidden"`
	IsError      bool   `json:"is_error"`
}

func insertParts(ctx context.Context, tx *sql.Tx, messageID int64, parts []*PartRecord) error {
	if len(parts) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO parts (message_id, seq, part_id, mime_type, filename, size, is_attachment, is_hidden, is_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, p := range parts {
		_, err := stmt.ExecContext(ctx, messageID, i, p.PartID, p.MimeType, p.Filename, p.Size,
			p.IsAttachment, p.IsHidden, p.IsError)
		if err != nil {
			return fmt.Errorf("failed to insert part %s: %w", p.PartID, err)
		}
	}
	return nil
}

// ReplaceParts swaps the stored part list of a message, e.g. after a
// reparse with different keys.
func (db *DB) ReplaceParts(ctx context.Context, messageID int64, parts []*PartRecord) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM parts WHERE message_id = ?", messageID); err != nil {
		return fmt.Errorf("failed to delete parts: %w", err)
	}
	if err := insertParts(ctx, tx, messageID, parts); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE messages SET part_count = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		len(parts), messageID); err != nil {
		return fmt.Errorf("failed to update part count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetParts returns the stored part list of a message in display order.
func (db *DB) GetParts(ctx context.Context, messageID int64) ([]*PartRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT seq, part_id, mime_type, filename, size, is_attachment, is_hidden, is_error
		FROM parts
		WHERE message_id = ?
		ORDER BY seq
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to get parts: %w", err)
	}
	defer rows.Close()

	var parts []*PartRecord
	for rows.Next() {
		p := &PartRecord{}
		if err := rows.Scan(&p.Seq, &p.PartID, &p.MimeType, &p.Filename, &p.Size,
			&p.IsAttachment, &p.IsHidden, &p.IsError); err != nil {
			return nil, fmt.Errorf("failed to scan part: %w", err)
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

// GetAttachments returns the attachment entries of a message.
func (db *DB) GetAttachments(ctx context.Context, messageID int64) ([]*PartRecord, error) {
	parts, err := db.GetParts(ctx, messageID)
	if err != nil {
		return nil, err
	}

	var attachments []*PartRecord
	for _, p := range parts {
		if p.IsAttachment {
			attachments = append(attachments, p)
		}
	}
	return attachments, nil
}
