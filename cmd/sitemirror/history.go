package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitemirror/internal/config"
	"github.com/nao1215/sitemirror/internal/database"
	"github.com/nao1215/sitemirror/internal/model"
	"github.com/nao1215/sitemirror/internal/report"
)

// defaultHistoryLimit is the number of runs listed without --limit.
const defaultHistoryLimit = 20

// historyOptions are the parsed flags of the history command.
type historyOptions struct {
	host       string
	runID      string
	limit      int
	fetches    bool
	journalDir string
	json       bool
	markdown   bool
	verbose    bool
}

// NewHistoryCmd creates the history command.
// This command reads crawl runs recorded in the journal.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [host]",
		Short: "Show crawls recorded in the journal",
		Long: `History lists the crawl runs recorded in the local journal, newest first.

Every 'sitemirror crawl' records a run with its summary and one row per
processed URL (status, outcome, written path, content hash). A run that
never finished, for example because the process was killed, is shown as
"running or interrupted".

Examples:
  # List the latest runs of every site
  sitemirror history

  # List the runs of one host
  sitemirror history docs.example.com

  # Show the summary of one run and every URL it processed
  sitemirror history --run 0b5e... --fetches

  # Output in JSON format
  sitemirror history --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().StringP("run", "r", "",
		"Show the run with this ID")
	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum number of runs to list (0 for all)")
	cmd.Flags().BoolP("fetches", "f", false,
		"With --run, also list every URL processed by the run")
	cmd.Flags().String("journal-dir", "",
		"Journal directory (default XDG data directory)")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output in Markdown format (mutually exclusive with --json)")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	opts, err := parseHistoryFlags(cmd, args)
	if err != nil {
		return err
	}
	return runHistory(cmd.Context(), opts, cmd.OutOrStdout())
}

// parseHistoryFlags reads and checks the history flags.
func parseHistoryFlags(cmd *cobra.Command, args []string) (*historyOptions, error) {
	opts := &historyOptions{verbose: getVerboseFlag(cmd)}
	flags := cmd.Flags()

	var err error
	if opts.runID, err = flags.GetString("run"); err != nil {
		return nil, err
	}
	if opts.limit, err = flags.GetInt("limit"); err != nil {
		return nil, err
	}
	if opts.fetches, err = flags.GetBool("fetches"); err != nil {
		return nil, err
	}
	if opts.journalDir, err = flags.GetString("journal-dir"); err != nil {
		return nil, err
	}
	if opts.json, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if opts.markdown, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}

	if opts.json && opts.markdown {
		return nil, config.ErrConflictingReportFormats
	}
	if opts.limit < 0 {
		return nil, errors.New("--limit must not be negative")
	}
	if opts.fetches && opts.runID == "" {
		return nil, errors.New("--fetches requires --run")
	}
	if opts.journalDir == "" {
		opts.journalDir = config.XDGDataDir()
	}
	if len(args) > 0 {
		host, err := config.SeedHost(args[0])
		if err != nil {
			return nil, err
		}
		opts.host = host
	}
	return opts, nil
}

// runHistory reads the journal and writes the requested view.
func runHistory(ctx context.Context, opts *historyOptions, out io.Writer) error {
	writer := newHistoryWriter(opts, out)

	dbOpts := database.DefaultOptions()
	dbOpts.CreateIfNotExists = false
	db, err := database.Open(opts.journalDir, dbOpts)
	switch {
	case errors.Is(err, os.ErrNotExist) && opts.runID == "":
		// Nothing was ever crawled.
		_, err = writer.WriteRuns(nil)
		return err
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %s", database.ErrRunNotFound, opts.runID)
	case err != nil:
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer db.Close()

	if opts.runID == "" {
		runs, err := db.ListRuns(ctx, opts.host, opts.limit)
		if err != nil {
			return err
		}
		_, err = writer.WriteRuns(runs)
		return err
	}

	run, err := db.GetRun(ctx, strings.TrimSpace(opts.runID))
	if err != nil {
		return err
	}
	if run.Summary != nil {
		if _, err := writer.Write(run.Summary); err != nil {
			return err
		}
	} else if _, err := writer.WriteRuns([]model.RunInfo{*run}); err != nil {
		return err
	}

	if !opts.fetches {
		return nil
	}
	records, err := db.ListFetches(ctx, run.ID)
	if err != nil {
		return err
	}
	_, err = writer.WriteFetches(records)
	return err
}

// newHistoryWriter returns the writer for the selected output format.
func newHistoryWriter(opts *historyOptions, w io.Writer) report.Writer {
	switch {
	case opts.json:
		return report.NewJSONWriter(w)
	case opts.markdown:
		return report.NewMarkdownWriter(w)
	default:
		return report.NewSimpleWriter(w, report.WithVerbose(opts.verbose))
	}
}
