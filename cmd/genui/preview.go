package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/finops-claw-gang/genui/internal/schema"
	"github.com/finops-claw-gang/genui/internal/session"
)

const watchDebounce = 200 * time.Millisecond

func newPreviewCmd(opts *rootOptions) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "preview FILE",
		Short: "Draw the render plan of a document as a tree",
		Long: `Draw the render plan of a JSON or YAML document as a tree.

With --watch the tree is redrawn every time the file is saved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			logger := opts.logger(cmd)
			out := cmd.OutOrStdout()

			err := drawPreview(out, path, logger)
			if !watch {
				return err
			}
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), errStyle.Render(err.Error()))
			}

			return watchFile(cmd.Context(), path, watchDebounce, logger, func() {
				fmt.Fprint(out, "\033[H\033[2J")
				if err := drawPreview(out, path, logger); err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), errStyle.Render(err.Error()))
				}
			})
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "redraw when the file changes")
	return cmd
}

func drawPreview(w io.Writer, path string, logger *slog.Logger) error {
	doc, err := schema.LoadDocument(path)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, planTree(session.RenderDocument(doc, logger)))
	return err
}

// watchFile calls onChange after path is written, once per burst of
// events. It watches the parent directory so editors that save by rename
// keep triggering. Returns when ctx is done.
func watchFile(ctx context.Context, path string, debounce time.Duration, logger *slog.Logger, onChange func()) error {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			fire = time.After(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "error", err)
		case <-fire:
			fire = nil
			onChange()
		}
	}
}
