package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/felo/mailparts/internal/attachment"
	"github.com/felo/mailparts/internal/config"
	"github.com/felo/mailparts/internal/crypto"
	"github.com/felo/mailparts/internal/db"
	"github.com/felo/mailparts/internal/extensions"
	"github.com/felo/mailparts/internal/formatter"
	"github.com/felo/mailparts/internal/indexer"
	"github.com/felo/mailparts/internal/metrics"
	"github.com/felo/mailparts/internal/parser"
	"github.com/felo/mailparts/internal/scanner"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// app wires the components shared by serve and index.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *db.DB
	pgp      *crypto.PGP
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	scanner  *scanner.Scanner
	indexer  *indexer.Indexer
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	// Ensure database directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	database.SetEmailsPath(cfg.EmailsPath)
	logger.Info("database opened", "path", cfg.DBPath, "emails", cfg.EmailsPath)

	pgp, err := loadKeyring(ctx, cfg, database, logger)
	if err != nil {
		database.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	sc := scanner.NewScanner(cfg.EmailsPath).WithMaxDepth(cfg.MaxDepth)

	// Indexing never needs attachment data, so its parser has no loader.
	indexParser := parser.New(extensions.DefaultRegistry(), parser.Options{
		Logger:      logger,
		TrustStore:  database,
		PGP:         pgp,
		Observer:    m,
		PreferPlain: cfg.PreferPlain,
	})
	idx := indexer.NewIndexer(database, sc, indexParser, formatter.New(formatter.Options{Logger: logger}), logger).
		WithAutocryptImport(cfg.ImportAutocrypt)

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       database,
		pgp:      pgp,
		registry: reg,
		metrics:  m,
		scanner:  sc,
		indexer:  idx,
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// loadKeyring imports the configured keyring into the key store and builds
// a PGP context from the keyring plus the keyring keys of earlier imports.
// Autocrypt keys are never trusted for verification.
func loadKeyring(ctx context.Context, cfg *config.Config, database *db.DB, logger *slog.Logger) (*crypto.PGP, error) {
	pgp := crypto.NewPGP(nil)

	if cfg.KeyringPath != "" {
		list, err := crypto.LoadKeyringFile(cfg.KeyringPath)
		if err != nil {
			return nil, err
		}
		n, err := database.ImportKeyring(ctx, list)
		if err != nil {
			return nil, fmt.Errorf("failed to import keyring: %w", err)
		}
		logger.Info("keyring loaded", "path", cfg.KeyringPath, "keys", n)
		// The file may hold private keys, which the store does not keep.
		pgp.Add(list...)
	}

	known, err := database.Keyring(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load known keys: %w", err)
	}
	for _, e := range known {
		if !pgp.HasPublicKey(e.PrimaryKey.KeyIdString()) {
			pgp.Add(e)
		}
	}
	return pgp, nil
}

// newServerParser builds the parser serving requests. Its loader must be
// closed by the caller.
func (a *app) newServerParser() (*parser.Parser, *attachment.Loader) {
	loader := attachment.NewLoader(a.cfg.AttachmentWorkers, a.logger)
	p := parser.New(extensions.DefaultRegistry(), parser.Options{
		Logger:      a.logger,
		TrustStore:  a.db,
		PGP:         a.pgp,
		Loader:      loader,
		Observer:    a.metrics,
		PreferPlain: a.cfg.PreferPlain,
		Debug:       a.cfg.Debug,
		DebugOutput: os.Stderr,
	})
	return p, loader
}

func (a *app) index(ctx context.Context) {
	if _, err := os.Stat(a.cfg.EmailsPath); os.IsNotExist(err) {
		a.logger.Warn("emails directory not found", "path", a.cfg.EmailsPath)
		return
	}

	a.logger.Info("indexing messages", "path", a.cfg.EmailsPath)
	result, err := a.indexer.IndexAll(ctx)
	if err != nil {
		a.logger.Warn("indexing failed", "error", err)
		return
	}
	a.logger.Info("indexing complete",
		"files", result.TotalFiles,
		"new", result.NewIndexed,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"keys", result.ImportedKeys)
	for _, f := range result.FailedFiles {
		a.logger.Debug("failed file", "path", f)
	}
}
