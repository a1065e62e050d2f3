package db

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	})

	return db
}

// CreateTestMessage creates a test message with default values
func CreateTestMessage(subject, sender, body string) *Message {
	return &Message{
		FilePath:        fmt.Sprintf("test/%s.eml", subject),
		MessageID:       fmt.Sprintf("<%s@test.com>", subject),
		Subject:         subject,
		Sender:          sender,
		SenderName:      "Test Sender",
		Recipients:      "recipient@test.com",
		Date:            NewNullTime(time.Now()),
		BodyTextPreview: body,
		FileSize:        int64(len(body)),
	}
}

// CreateTestMessageWithDate creates a test message with a specific date
func CreateTestMessageWithDate(subject, sender, body string, date time.Time) *Message {
	m := CreateTestMessage(subject, sender, body)
	m.Date = NewNullTime(date)
	return m
}

// InsertTestMessages inserts multiple test messages and sets their ids
func InsertTestMessages(t *testing.T, db *DB, messages []*Message) []*Message {
	t.Helper()

	for i, m := range messages {
		id, err := db.InsertMessage(context.Background(), m)
		if err != nil {
			t.Fatalf("Failed to insert test message %d: %v", i, err)
		}
		messages[i].ID = id
	}

	return messages
}
