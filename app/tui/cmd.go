package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/noelzubin/notes_browser/document"
	"github.com/noelzubin/notes_browser/search"
	"github.com/noelzubin/notes_browser/store"
	"github.com/noelzubin/notes_browser/syncer"
	"github.com/noelzubin/notes_browser/utils"
	"github.com/noelzubin/notes_browser/watcher"
)

var (
	okColor    = color.New(color.FgGreen, color.Bold)
	errColor   = color.New(color.FgRed, color.Bold)
	pathColor  = color.New(color.FgCyan, color.Bold)
	matchColor = color.New(color.FgYellow, color.Bold)
)

var errCheckFailed = errors.New("some notes are invalid")

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "notes_browser [dir]",
		Short: "Browse and search a directory of markdown notes",
		Long: `Browse and search a directory of markdown notes.

Every note has one level 1 heading, its title, followed by level 2
sections. Notes are searched by section, partial words match.

Keys:
  tab / shift+tab   move in the list
  enter / esc       open / close the preview
  ctrl+j / ctrl+k   scroll the preview
  ctrl+o            open the note in the editor
  ctrl+r            rescan the notes directory
  ctrl+c            quit`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(configPath, args)
			if err != nil {
				return reportError(cmd, err)
			}
			return reportError(cmd, runTUI(config))
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/notes_browser/config.yaml)")

	cmd.AddCommand(newCheckCmd(&configPath), newSearchCmd(&configPath))
	return cmd
}

func newCheckCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check [dir]",
		Short: "Report notes that do not have the expected structure",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(*configPath, args)
			if err != nil {
				return reportError(cmd, err)
			}
			if err := utils.SetupStderrLogging(config.LogLevel); err != nil {
				return reportError(cmd, err)
			}
			return reportError(cmd, runCheck(cmd.OutOrStdout(), config))
		},
	}
}

func newSearchCmd(configPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the notes and print the best matches",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(*configPath, nil)
			if err != nil {
				return reportError(cmd, err)
			}
			if limit > 0 {
				config.MaxResults = limit
			}
			if err := utils.SetupStderrLogging(config.LogLevel); err != nil {
				return reportError(cmd, err)
			}
			return reportError(cmd, runSearch(cmd.Context(), cmd.OutOrStdout(), config, strings.Join(args, " ")))
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results (default from config)")
	return cmd
}

// loadConfig reads the config and lets a directory argument replace the
// configured notes directory.
func loadConfig(path string, args []string) (*utils.Config, error) {
	config, err := utils.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if len(args) > 0 {
		root, err := filepath.Abs(args[0])
		if err != nil {
			return nil, err
		}
		config.RootPath = root
	}
	info, err := os.Stat(config.RootPath)
	if err != nil {
		return nil, fmt.Errorf("notes directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("notes directory %s is not a directory", config.RootPath)
	}
	return config, nil
}

func reportError(cmd *cobra.Command, err error) error {
	if err != nil && !errors.Is(err, errCheckFailed) {
		errColor.Fprintln(cmd.ErrOrStderr(), "error:", err)
	}
	return err
}

func runTUI(config *utils.Config) error {
	// Setup logging.
	f, err := utils.SetupFileLogging(config.LogPath, config.LogLevel)
	if err != nil {
		return err
	}
	defer f.Close()

	a, err := newApp(config)
	if err != nil {
		return err
	}
	defer a.Close()

	w, err := watcher.New(config.RootPath, a.watcherOptions())
	if err != nil {
		return err
	}

	// Create a new bubbletea Model
	p := tea.NewProgram(New(a))
	a.ctrl.OnChange(func(c syncer.Change) { p.Send(changeMsg{c}) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("watcher_stopped", slog.String("error", err.Error()))
		}
	}()
	go func() {
		for err := range w.Errors() {
			p.Send(watchErrMsg{err})
		}
	}()
	go func() {
		if err := a.sync(ctx, w.Events()); err != nil {
			p.Send(syncFailedMsg{err})
		}
	}()

	_, err = p.Run()
	return err
}

// runCheck parses every note and prints the ones that are rejected.
func runCheck(out io.Writer, config *utils.Config) error {
	parser := document.Parser{FallbackTitle: config.FallbackTitle}
	paths, err := store.ListNotes(config.RootPath, config.Extensions, config.Recursive)
	if err != nil {
		return err
	}

	failed := 0
	for _, path := range paths {
		raw, _, err := store.ReadNote(config.RootPath, path)
		if err == nil {
			_, err = parser.Parse(raw, path)
		}
		if err != nil {
			failed++
			fmt.Fprintf(out, "%s %s\n", errColor.Sprint("FAIL"), err)
			continue
		}
		fmt.Fprintf(out, "%s %s\n", okColor.Sprint("ok  "), path)
	}

	fmt.Fprintf(out, "\n%d notes, %d invalid\n", len(paths), failed)
	if failed > 0 {
		return errCheckFailed
	}
	return nil
}

// runSearch loads the notes and prints the results for query.
func runSearch(ctx context.Context, out io.Writer, config *utils.Config, query string) error {
	a, err := newApp(config)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.ctrl.Bootstrap(ctx); err != nil {
		return err
	}
	results, err := a.engine.Search(ctx, query)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "no results")
		return nil
	}
	for _, r := range results {
		printResult(out, r)
	}
	return nil
}

func printResult(out io.Writer, r search.Result) {
	header := pathColor.Sprint(r.Path)
	if !r.TitleOnly {
		header += " › " + r.Section
	}
	fmt.Fprintf(out, "%s  (%.2f)\n", header, r.Score)

	ex := r.Excerpt
	line := formatContent(ex.String())
	if ex.Found() {
		line = formatContent(ex.Before) + matchColor.Sprint(formatContent(ex.Match)) + formatContent(ex.After)
	}
	fmt.Fprintf(out, "    %s\n", line)
}
