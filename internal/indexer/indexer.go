// Package indexer parses message files and stores their metadata, part
// layout and search text.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/felo/mailparts/internal/db"
	"github.com/felo/mailparts/internal/formatter"
	"github.com/felo/mailparts/internal/parser"
	"github.com/felo/mailparts/internal/scanner"
)

// previewLimit bounds the text stored for full-text search.
const previewLimit = 10 * 1024

// Indexer handles indexing operations
type Indexer struct {
	db          *db.DB
	scanner     *scanner.Scanner
	parser      *parser.Parser
	formatter   *formatter.Formatter
	logger      *slog.Logger
	folder      *db.Folder
	concurrency int // Number of concurrent workers
	importKeys  bool
}

// NewIndexer creates a new indexer. The parser should not carry an
// attachment loader; indexing never needs attachment data.
func NewIndexer(database *db.DB, sc *scanner.Scanner, p *parser.Parser, f *formatter.Formatter, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		db:          database,
		scanner:     sc,
		parser:      p,
		formatter:   f,
		logger:      logger,
		folder:      db.NewFolder(database, filepath.Base(sc.GetRootPath())),
		concurrency: runtime.NumCPU() * 2, // 2x CPUs for optimal I/O parallelism
	}
}

// WithConcurrency sets the number of concurrent workers
func (idx *Indexer) WithConcurrency(workers int) *Indexer {
	if workers < 1 {
		workers = 1
	}
	idx.concurrency = workers
	return idx
}

// WithAutocryptImport stores keys advertised in Autocrypt headers.
func (idx *Indexer) WithAutocryptImport(enabled bool) *Indexer {
	idx.importKeys = enabled
	return idx
}

// IndexResult contains statistics about an indexing operation
type IndexResult struct {
	TotalFiles   int      `json:"total_files"`
	NewIndexed   int      `json:"new_indexed"`
	Skipped      int      `json:"skipped"`
	Failed       int      `json:"failed"`
	ImportedKeys int      `json:"imported_keys"`
	FailedFiles  []string `json:"failed_files"`
}

type fileResult struct {
	filePath string
	indexed  int
	skipped  int
	keys     int
	err      error
}

// IndexAll scans and indexes all message files using concurrent workers
func (idx *Indexer) IndexAll(ctx context.Context) (*IndexResult, error) {
	return idx.IndexWithProgress(ctx, nil)
}

// IndexWithProgress indexes all files and reports progress via a callback.
// A cancelled ctx stops handing out files; the result covers the files
// done so far.
func (idx *Indexer) IndexWithProgress(ctx context.Context, progress func(current, total int, filePath string)) (*IndexResult, error) {
	files, err := idx.scanner.Scan()
	if err != nil {
		return nil, fmt.Errorf("failed to scan for files: %w", err)
	}

	result := &IndexResult{
		TotalFiles:  len(files),
		FailedFiles: make([]string, 0),
	}

	idx.logger.Info("indexing", "files", result.TotalFiles, "workers", idx.concurrency)

	fileChan := make(chan scanner.File)
	resultChan := make(chan fileResult)

	var wg sync.WaitGroup
	for i := 0; i < idx.concurrency; i++ {
		wg.Add(1)
		go idx.worker(ctx, &wg, fileChan, resultChan)
	}

	go func() {
		defer close(fileChan)
		for _, file := range files {
			select {
			case fileChan <- file:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	processed := 0
	for res := range resultChan {
		processed++
		if progress != nil {
			progress(processed, result.TotalFiles, res.filePath)
		}

		result.NewIndexed += res.indexed
		result.Skipped += res.skipped
		result.ImportedKeys += res.keys
		if res.err != nil {
			idx.logger.Warn("failed to index file", "path", res.filePath, "error", res.err)
			result.Failed++
			result.FailedFiles = append(result.FailedFiles, res.filePath)
		}
	}

	idx.logger.Info("indexing complete",
		"new", result.NewIndexed, "skipped", result.Skipped, "failed", result.Failed)

	return result, ctx.Err()
}

func (idx *Indexer) worker(ctx context.Context, wg *sync.WaitGroup, files <-chan scanner.File, results chan<- fileResult) {
	defer wg.Done()

	for file := range files {
		results <- idx.processFile(ctx, file)
	}
}

// processFile indexes every message of a file that is not indexed yet.
func (idx *Indexer) processFile(ctx context.Context, file scanner.File) fileResult {
	res := fileResult{filePath: file.Path}

	messages, err := idx.scanner.Messages(file.Path)
	if err != nil {
		res.err = err
		return res
	}

	var size int64
	if info, err := os.Stat(filepath.Join(idx.scanner.GetRootPath(), filepath.FromSlash(file.Path))); err == nil {
		size = info.Size()
	}

	for position, msg := range messages {
		exists, err := idx.db.MessageExists(ctx, file.Path, position)
		if err != nil {
			res.err = err
			return res
		}
		if exists {
			res.skipped++
			continue
		}

		pl, err := idx.parser.Parse(ctx, msg, parser.ParseOptions{Folder: idx.folder})
		if err != nil {
			res.err = fmt.Errorf("failed to parse message %d: %w", position, err)
			return res
		}

		record := idx.messageRecord(pl)
		record.FilePath = file.Path
		record.Position = position
		record.FileSize = size
		if len(messages) > 1 {
			if raw, err := msg.Bytes(); err == nil {
				record.FileSize = int64(len(raw))
			}
		}

		if err := idx.db.InsertMessageWithParts(ctx, record, PartRecords(pl)); err != nil {
			res.err = err
			return res
		}
		res.indexed++

		if idx.importKeys {
			for _, k := range pl.AutocryptKeys() {
				if err := idx.db.ImportAutocryptKey(ctx, k); err != nil {
					idx.logger.Warn("failed to import autocrypt key", "key", k.Info.ID, "error", err)
					continue
				}
				res.keys++
			}
		}
	}

	return res
}

// messageRecord builds the stored metadata of a parsed message. The
// protected subject of an encrypted message replaces the outer one.
func (idx *Indexer) messageRecord(pl *parser.PartList) *db.Message {
	env := pl.Message().Envelope()

	subject := env.Subject
	if s := pl.ProtectedSubject(); s != "" {
		subject = s
	}

	attachments := pl.Attachments()

	return &db.Message{
		MessageID:       env.MessageID,
		InReplyTo:       env.InReplyTo,
		Subject:         subject,
		Sender:          env.Sender,
		SenderName:      env.SenderName,
		Recipients:      strings.Join(append(env.Recipients, env.CC...), ", "),
		Date:            db.NewNullTime(env.Date),
		BodyTextPreview: preview(idx.formatter.PlainText(pl)),
		Security:        pl.ValidityFlags(),
		HasAttachments:  len(attachments) > 0,
		AttachmentCount: len(attachments),
		PartCount:       pl.Len(),
	}
}

// PartRecords flattens a part list for storage.
func PartRecords(pl *parser.PartList) []*db.PartRecord {
	parts := pl.Parts()
	records := make([]*db.PartRecord, 0, len(parts))
	for i, p := range parts {
		r := &db.PartRecord{
			Seq:          i,
			PartID:       p.ID.String(),
			MimeType:     p.MimeType,
			IsAttachment: p.IsAttachment,
			IsHidden:     p.IsHidden,
			IsError:      p.IsError,
		}
		if a := p.Attachment; a != nil {
			r.Filename = a.Filename
			r.Size = a.EstimatedSize
		}
		records = append(records, r)
	}
	return records
}

func preview(text string) string {
	if len(text) <= previewLimit {
		return text
	}
	// Cut on a rune boundary
	cut := previewLimit
	for cut > 0 && !isRuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
