package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/chazu/fabprep/pkg/pipeline"
	"github.com/spf13/cobra"
)

var supportsCmd = &cobra.Command{
	Use:   "supports [file]",
	Short: "Generate support pillars under overhanging faces",
	Args:  cobra.MaximumNArgs(1),
	RunE:  branchRunner(pipeline.SupportBranch),
}

var moldCmd = &cobra.Command{
	Use:   "mold [file]",
	Short: "Generate the hard shell and silicone liner of a two-piece mold",
	Args:  cobra.MaximumNArgs(1),
	RunE:  branchRunner(pipeline.MoldBranch),
}

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Generate supports and mold pieces concurrently",
	Long: `Run both branches on the same model. The support branch and the mold branch
fail independently: a failed mold still leaves the supports written, and a
failed mold piece does not prevent the other piece from being written.`,
	Args: cobra.MaximumNArgs(1),
	RunE: branchRunner(pipeline.AllBranches),
}

func init() {
	rootCmd.AddCommand(supportsCmd, moldCmd, runCmd)
}

func branchRunner(branches pipeline.Branches) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := resolve(cmd, args)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		rep, err := execute(ctx, s, branches)
		if err != nil {
			return err
		}
		printReport(cmd.OutOrStdout(), rep)
		return rep.Err()
	}
}

// execute builds the kernel and pipeline for s and runs it once.
func execute(ctx context.Context, s *settings, branches pipeline.Branches) (*pipeline.Report, error) {
	k, err := pipeline.NewKernel(s.cfg, sink())
	if err != nil {
		return nil, err
	}
	p, err := pipeline.New(s.cfg, k, sink())
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, s.input, branches)
}

func printReport(w io.Writer, rep *pipeline.Report) {
	fmt.Fprintf(w, "Input: %s (%d overhang faces)\n", rep.Input, rep.Overhang)
	for _, br := range []pipeline.BranchReport{rep.Supports, rep.Mold} {
		if !br.Ran {
			continue
		}
		status := "ok"
		if br.Err != nil {
			status = "failed"
		}
		fmt.Fprintf(w, "%s: %s, reached %s\n", br.Name, status, br.Reached)
		for _, out := range br.Outputs {
			if out.Err != nil {
				fmt.Fprintf(w, "  %s: not written: %v\n", out.Piece, out.Err)
				continue
			}
			fmt.Fprintf(w, "  %s: %s\n", out.Piece, out.Path)
		}
		for _, warn := range br.Warnings {
			fmt.Fprintf(w, "  warning: %v\n", warn)
		}
		if br.Name == "supports" && br.Err == nil && len(br.Outputs) == 0 {
			fmt.Fprintln(w, "  no supports needed")
		}
	}
}
