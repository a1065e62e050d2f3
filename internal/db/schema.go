package db

// The database stores only metadata, the part layout and the search index.
// Content is parsed from the message files on demand.
const schema = `
-- One row per message; mbox files hold several, told apart by position
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    file_path TEXT NOT NULL,
    position INTEGER NOT NULL DEFAULT 0,
    message_id TEXT,
    in_reply_to TEXT,
    subject TEXT,
    sender TEXT NOT NULL,
    sender_name TEXT,
    recipients TEXT,
    date DATETIME,
    body_text_preview TEXT,  -- First 10KB for FTS5 search only
    validity_flags INTEGER DEFAULT 0,
    has_attachments BOOLEAN DEFAULT 0,
    attachment_count INTEGER DEFAULT 0,
    part_count INTEGER DEFAULT 0,
    file_size INTEGER,
    indexed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(file_path, position)
);

-- Full-text search virtual table
CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
    subject,
    sender,
    sender_name,
    recipients,
    body_text_preview,
    content='messages',
    content_rowid='id'
);

-- Triggers to keep FTS in sync
CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
    INSERT INTO messages_fts(rowid, subject, sender, sender_name, recipients, body_text_preview)
    VALUES (new.id, new.subject, new.sender, new.sender_name, new.recipients, new.body_text_preview);
END;

CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, subject, sender, sender_name, recipients, body_text_preview)
    VALUES ('delete', old.id, old.subject, old.sender, old.sender_name, old.recipients, old.body_text_preview);
END;

CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, subject, sender, sender_name, recipients, body_text_preview)
    VALUES ('delete', old.id, old.subject, old.sender, old.sender_name, old.recipients, old.body_text_preview);
    INSERT INTO messages_fts(rowid, subject, sender, sender_name, recipients, body_text_preview)
    VALUES (new.id, new.subject, new.sender, new.sender_name, new.recipients, new.body_text_preview);
END;

-- The part list produced by the last parse, in display order
CREATE TABLE IF NOT EXISTS parts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    message_id INTEGER NOT NULL,
    seq INTEGER NOT NULL,
    part_id TEXT NOT NULL,
    mime_type TEXT,
    filename TEXT,
    size INTEGER DEFAULT 0,
    is_attachment BOOLEAN DEFAULT 0,
    is_hidden BOOLEAN DEFAULT 0,
    is_error BOOLEAN DEFAULT 0,
    FOREIGN KEY(message_id) REFERENCES messages(id) ON DELETE CASCADE,
    UNIQUE(message_id, part_id)
);

-- Public keys known locally, imported from a keyring or from Autocrypt headers
CREATE TABLE IF NOT EXISTS known_keys (
    key_id TEXT PRIMARY KEY,  -- 16 hex digits, upper case
    fingerprint TEXT,
    addr TEXT,
    user_ids TEXT,
    key_data BLOB,
    source TEXT NOT NULL,
    created_at DATETIME,
    added_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Settings table (for storing email folder path, preferences)
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Indexes for performance
CREATE INDEX IF NOT EXISTS idx_messages_date ON messages(date DESC);
CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender);
CREATE INDEX IF NOT EXISTS idx_messages_file_path ON messages(file_path);
CREATE INDEX IF NOT EXISTS idx_messages_message_id ON messages(message_id);
CREATE INDEX IF NOT EXISTS idx_parts_message_id ON parts(message_id, seq);
CREATE INDEX IF NOT EXISTS idx_known_keys_fingerprint ON known_keys(fingerprint);
`
