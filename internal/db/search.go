package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/felo/mailparts/internal/crypto"
)

// SearchResult represents a search result with snippet
type SearchResult struct {
	*Message
	Snippet string `json:"snippet"`
}

// SearchFilter narrows a search.
type SearchFilter struct {
	Query          string
	Sender         string
	HasAttachments bool
	// Security selects messages whose flags contain all of these.
	Security crypto.Flags
	DateFrom string
	DateTo   string
	Limit    int
	Offset   int
}

// ftsQuery adds wildcards to each term for fuzzy matching:
// "john doe" -> "john"* "doe"*
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	for i, term := range terms {
		// Quote terms so FTS5 operators are taken literally
		terms[i] = `"` + strings.ReplaceAll(term, `"`, `""`) + `"*`
	}
	return strings.Join(terms, " ")
}

// Search performs a full-text search with filters. Without a query the
// most recent matching messages are returned.
func (db *DB) Search(ctx context.Context, f SearchFilter) ([]*SearchResult, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}

	var conditions []string
	var args []any

	if strings.TrimSpace(f.Query) != "" {
		conditions = append(conditions, "messages_fts MATCH ?")
		args = append(args, ftsQuery(f.Query))
	}
	if f.Sender != "" {
		conditions = append(conditions, "(m.sender LIKE ? OR m.sender_name LIKE ?)")
		args = append(args, "%"+f.Sender+"%", "%"+f.Sender+"%")
	}
	if f.HasAttachments {
		conditions = append(conditions, "m.has_attachments = 1")
	}
	if f.Security != 0 {
		conditions = append(conditions, "(m.validity_flags & ?) = ?")
		args = append(args, int64(f.Security), int64(f.Security))
	}
	if f.DateFrom != "" {
		conditions = append(conditions, "m.date >= ?")
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		conditions = append(conditions, "m.date <= ?")
		args = append(args, f.DateTo)
	}

	columns := columnsOf("m")

	var sqlQuery string
	if strings.TrimSpace(f.Query) != "" {
		sqlQuery = "SELECT " + columns + `,
			snippet(messages_fts, 4, '<mark>', '</mark>', '...', 32)
		FROM messages m
		JOIN messages_fts ON m.id = messages_fts.rowid`
	} else {
		sqlQuery = "SELECT " + columns + `, ''
		FROM messages m`
	}

	if len(conditions) > 0 {
		sqlQuery += " WHERE " + strings.Join(conditions, " AND ")
	}
	if strings.TrimSpace(f.Query) != "" {
		sqlQuery += " ORDER BY rank"
	} else {
		sqlQuery += " ORDER BY m.date DESC, m.id DESC"
	}
	sqlQuery += " LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	rows, err := db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()

	var results []*SearchResult
	for rows.Next() {
		var snippet string
		m, err := scanMessage(rows, &snippet)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}

		// Generate snippet if not from FTS5
		if snippet == "" {
			snippet = truncateText(m.BodyTextPreview, 200)
		}
		results = append(results, &SearchResult{Message: m, Snippet: snippet})
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search results: %w", err)
	}
	return results, nil
}

// truncateText truncates text to maxLen runes
func truncateText(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "..."
}
