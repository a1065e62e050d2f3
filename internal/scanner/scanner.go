package scanner

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/felo/mailparts/internal/mimetree"
)

// Kind is the container format of a scanned file.
type Kind int

const (
	KindEML Kind = iota
	KindMbox
)

func (k Kind) String() string {
	if k == KindMbox {
		return "mbox"
	}
	return "eml"
}

// File is a message file found under the root.
type File struct {
	// Path is relative to the root, with forward slashes.
	Path string
	Kind Kind
}

// Scanner scans directories for .eml and .mbox files
type Scanner struct {
	rootPath string
	maxDepth int
}

// NewScanner creates a new scanner for the given root path
func NewScanner(rootPath string) *Scanner {
	return &Scanner{
		rootPath: rootPath,
		maxDepth: mimetree.DefaultMaxDepth,
	}
}

// WithMaxDepth limits how deep messages are expanded when loaded.
func (s *Scanner) WithMaxDepth(depth int) *Scanner {
	if depth > 0 {
		s.maxDepth = depth
	}
	return s
}

// GetRootPath returns the root path for resolving relative paths
func (s *Scanner) GetRootPath() string {
	return s.rootPath
}

func kindOf(path string) (Kind, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".eml":
		return KindEML, true
	case ".mbox", ".mbx":
		return KindMbox, true
	}
	return 0, false
}

// Scan recursively scans for message files and returns paths relative to
// rootPath, so the index stays valid when the folder moves.
func (s *Scanner) Scan() ([]File, error) {
	var files []File

	// Get absolute path of root for reliable relative path calculation
	absRoot, err := filepath.Abs(s.rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute root path: %w", err)
	}

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if d.IsDir() {
			return nil
		}

		kind, ok := kindOf(path)
		if !ok {
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path for %s: %w", path, err)
		}
		// Normalize to forward slashes for cross-platform compatibility
		files = append(files, File{Path: filepath.ToSlash(relPath), Kind: kind})
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	return files, nil
}

// Count counts the message files without building the list.
func (s *Scanner) Count() (int, error) {
	count := 0

	err := filepath.WalkDir(s.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if _, ok := kindOf(path); ok && !d.IsDir() {
			count++
		}
		return nil
	})

	if err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}

	return count, nil
}

// Messages reads every message of a file. An .eml file holds exactly one.
func (s *Scanner) Messages(relPath string) ([]*mimetree.Part, error) {
	data, err := os.ReadFile(filepath.Join(s.rootPath, filepath.FromSlash(relPath)))
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	chunks := [][]byte{data}
	if kind, _ := kindOf(relPath); kind == KindMbox {
		chunks = mimetree.SplitMbox(data)
	}

	messages := make([]*mimetree.Part, 0, len(chunks))
	for i, chunk := range chunks {
		msg, err := mimetree.ReadDepth(bytes.NewReader(chunk), s.maxDepth)
		if err != nil {
			return nil, fmt.Errorf("failed to parse message %d of %s: %w", i, relPath, err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Message loads the message at position inside the file.
func (s *Scanner) Message(relPath string, position int) (*mimetree.Part, error) {
	messages, err := s.Messages(relPath)
	if err != nil {
		return nil, err
	}
	if position < 0 || position >= len(messages) {
		return nil, fmt.Errorf("%s has no message at position %d", relPath, position)
	}
	return messages[position], nil
}
