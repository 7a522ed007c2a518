// Command inkling-repl is an interactive editor for trying inkling
// suggestions. It draws the document with faint ghost text on /dev/tty and
// writes a TOML transcript of every suggestion to stdout when stdout is
// redirected.
//
// Usage:
//
//	./inkling-repl notes.md              # edit notes.md
//	./inkling-repl notes.md > log.toml   # also record suggestions
//
// Keys: Tab (or the configured accept key) accepts, Ctrl-Space asks for a
// suggestion, Ctrl-G dismisses it, Ctrl-S saves, Ctrl-C quits.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	inkling "github.com/Paranoid-AF/inkling"
	"github.com/Paranoid-AF/inkling/document"
	"github.com/Paranoid-AF/inkling/suggest"
)

type options struct {
	logFile    string
	transcript string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "inkling-repl [file]",
		Short:         "Interactive ghost-text editor",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return run(path, opts)
		},
	}
	cmd.Flags().StringVar(&opts.logFile, "log", "", "write debug logs to this file")
	cmd.Flags().StringVar(&opts.transcript, "transcript", "", "write the TOML transcript to this file instead of stdout")
	return cmd
}

func setupLogging(path string) (io.Closer, error) {
	if path == "" {
		slog.SetDefault(slog.New(charmlog.NewWithOptions(io.Discard, charmlog.Options{})))
		return io.NopCloser(nil), nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(charmlog.NewWithOptions(f, charmlog.Options{
		Level:           charmlog.DebugLevel,
		ReportTimestamp: true,
		Prefix:          "inkling-repl",
	})))
	return f, nil
}

// transcriptWriter returns where the transcript goes: the given file, or
// stdout when it is not the terminal the editor draws on.
func transcriptWriter(path string) (io.Writer, io.Closer, error) {
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		return f, f, nil
	}
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return nil, io.NopCloser(nil), nil
	}
	return termWriter(os.Stdout), io.NopCloser(nil), nil
}

func run(path string, opts options) error {
	logCloser, err := setupLogging(opts.logFile)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	text := ""
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		text = string(data)
	}

	cfg, err := inkling.LoadConfig()
	if err != nil {
		slog.Warn("failed to load config, using defaults", "error", err)
		cfg = inkling.DefaultConfig()
	}

	engine := suggest.NewEngine(cfg)
	defer engine.Close()

	idx := engine.Indexer()
	if idx.Enabled() {
		if err := idx.LoadCache(inkling.IndexCachePath()); err != nil {
			slog.Debug("no index cache loaded", "error", err)
		}
		defer func() {
			if err := idx.SaveCache(inkling.IndexCachePath()); err != nil {
				slog.Warn("failed to save index cache", "error", err)
			}
		}()
	}

	tw, twCloser, err := transcriptWriter(opts.transcript)
	if err != nil {
		return err
	}
	defer twCloser.Close()

	editor, err := NewEditor()
	if err != nil {
		return err
	}
	defer editor.Close()
	defer fmt.Fprint(editor.Tty(), "\x1b[H\x1b[2J")

	buf := document.NewBuffer(text)
	scr := newScreen(editor.Tty(), buf)
	view := engine.NewView("repl", buf, path, &renderer{
		screen:     scr,
		transcript: newTranscript(tw, path, buf),
	})
	defer view.Close()

	settings := engine.Settings(path)
	name := path
	if name == "" {
		name = "(scratch)"
	}
	scr.SetStatus(fmt.Sprintf(" %s  %s/%s  %s accepts %s  ^Space suggest  ^G dismiss  ^S save  ^C quit ",
		name, engine.ProviderName(), cfg.Generation.Model, settings.AcceptKey, settings.Strategy))

	for {
		k, err := editor.ReadKey()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		switch k.Name {
		case KeyCtrlC:
			return nil
		case KeyCtrlD:
			if buf.Len() == 0 {
				return nil
			}
		case KeyCtrlSpace:
			view.Trigger()
		case KeyCtrlG, KeyEscape:
			view.Cancel()
		case KeyCtrlS:
			if path == "" {
				scr.SetStatus(" no file to save to; pass a path ")
				continue
			}
			if err := os.WriteFile(path, []byte(buf.Text()), 0o644); err != nil {
				scr.SetStatus(" save failed: " + err.Error() + " ")
				continue
			}
			scr.SetStatus(fmt.Sprintf(" saved %s (%d bytes) ", path, buf.Len()))
			continue
		default:
			if view.Accept(k.Name) {
				break
			}
			if tx, ok := edit(buf, k); ok {
				view.Dispatch(tx)
			}
		}
		scr.Draw()
	}
}
