package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/felo/mailparts/internal/crypto"
	"github.com/felo/mailparts/internal/extensions"
	"github.com/felo/mailparts/internal/formatter"
	"github.com/felo/mailparts/internal/mimetree"
	"github.com/felo/mailparts/internal/parser"
	"github.com/spf13/cobra"
)

var (
	dumpHTMLFlag   bool
	dumpModeFlag   string
	dumpSourceFlag bool
)

var dumpCmd = &cobra.Command{
	Use:   "dump <file>",
	Short: "Print the part list of a message file",
	Long: `Dump parses a single .eml file, or every message of an mbox file, and
prints the resulting part lists. With --html the rendered HTML is printed
instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runDump,
}

func init() {
	dumpCmd.Flags().BoolVar(&dumpHTMLFlag, "html", false, "Print rendered HTML instead of the part list")
	dumpCmd.Flags().StringVar(&dumpModeFlag, "mode", "normal", "Render mode for --html: normal, printing or source")
	dumpCmd.Flags().BoolVar(&dumpSourceFlag, "source", false, "Parse the message for the source view")
}

func runDump(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	mode, err := formatter.ParseMode(dumpModeFlag)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	raws := [][]byte{data}
	if ext := strings.ToLower(filepath.Ext(args[0])); ext == ".mbox" || ext == ".mbx" {
		raws = mimetree.SplitMbox(data)
	}

	pgp := crypto.NewPGP(nil)
	if cfg.KeyringPath != "" {
		list, err := crypto.LoadKeyringFile(cfg.KeyringPath)
		if err != nil {
			return err
		}
		pgp.Add(list...)
	}

	out := cmd.OutOrStdout()
	p := parser.New(extensions.DefaultRegistry(), parser.Options{
		Logger:      logger,
		PGP:         pgp,
		PreferPlain: cfg.PreferPlain,
		Debug:       !dumpHTMLFlag,
		DebugOutput: out,
	})
	f := formatter.New(formatter.Options{Logger: logger, MarkCitations: true})

	for i, raw := range raws {
		msg, err := mimetree.ReadDepth(bytes.NewReader(raw), cfg.MaxDepth)
		if err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		pl, err := p.Parse(ctx, msg, parser.ParseOptions{
			UID:      fmt.Sprintf("%s:%d", filepath.Base(args[0]), i),
			AsSource: dumpSourceFlag,
		})
		if err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		if dumpHTMLFlag {
			if err := f.Format(ctx, out, pl, mode); err != nil {
				return err
			}
			fmt.Fprintln(out)
		}
	}
	return nil
}
