package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/chazu/fabprep/pkg/pipeline"
	"github.com/chazu/fabprep/pkg/watcher"
	"github.com/spf13/cobra"
)

var debounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [file]",
	Short: "Rerun supports and mold whenever the model, config or recipe changes",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&debounce, "debounce", watcher.DefaultDebounce, "quiet period before a change triggers a rerun")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	s, err := resolve(cmd, args)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	fw, err := watcher.New(debounce, sink())
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(s.watchList()...); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	rerun := func(s *settings) {
		rep, err := execute(ctx, s, pipeline.AllBranches)
		if err != nil {
			logger.Error("run failed", slog.String("input", s.input), slog.String("error", err.Error()))
			return
		}
		printReport(w, rep)
		if err := rep.Err(); err != nil {
			logger.Warn("run finished with errors", slog.String("error", err.Error()))
		}
	}

	rerun(s)
	fmt.Fprintf(w, "Watching %d files, press Ctrl+C to stop\n", len(s.watchList()))

	err = fw.Run(ctx, func(path string) {
		logger.Info("change detected", slog.String("path", path))
		// Settings are read again so config and recipe edits apply.
		next, err := resolve(cmd, args)
		if err != nil {
			logger.Error("settings rejected", slog.String("error", err.Error()))
			return
		}
		// A recipe named for the first time must be watched too.
		if err := fw.Add(next.watchList()...); err != nil {
			logger.Warn("cannot watch new inputs", slog.String("error", err.Error()))
		}
		rerun(next)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
