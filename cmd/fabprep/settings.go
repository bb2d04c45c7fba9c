package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/fabprep/pkg/config"
	"github.com/chazu/fabprep/pkg/recipe"
	"github.com/spf13/cobra"
)

var engine = recipe.NewEngine()

// settings is the resolved configuration of one run.
type settings struct {
	cfg   *config.Config
	input string
}

// resolve layers defaults, the config file, flags and the recipe, and
// picks the input model: the positional argument, or else the recipe's
// (input ...) form resolved against the recipe's directory.
func resolve(cmd *cobra.Command, args []string) (*settings, error) {
	s, err := layer(cmd)
	if err != nil {
		return nil, err
	}
	if len(args) > 0 {
		s.input = args[0]
	}
	if s.input == "" {
		return nil, errors.New("no input model: pass a file or name one in the recipe with (input \"...\")")
	}
	return s, nil
}

// layer builds the effective config without requiring an input model.
func layer(cmd *cobra.Command) (*settings, error) {
	cfg := config.Default()
	if flags.configPath != "" {
		var err error
		if cfg, err = config.Load(flags.configPath); err != nil {
			return nil, err
		}
	}
	applyFlags(cmd, cfg)

	s := &settings{cfg: cfg}
	if flags.recipePath != "" {
		src, err := os.ReadFile(flags.recipePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read recipe: %w", err)
		}
		rec, evalErrs, err := engine.Evaluate(string(src), cfg)
		if err != nil {
			return nil, fmt.Errorf("recipe %s: %w", flags.recipePath, err)
		}
		if len(evalErrs) > 0 {
			return nil, fmt.Errorf("recipe %s: %w", flags.recipePath, joinEvalErrors(evalErrs))
		}
		s.cfg = rec.Config
		if rec.Input != "" {
			s.input = rec.Input
			if !filepath.IsAbs(s.input) {
				s.input = filepath.Join(filepath.Dir(flags.recipePath), s.input)
			}
		}
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// watchList returns the files whose change should trigger a rerun.
func (s *settings) watchList() []string {
	files := []string{s.input}
	for _, f := range []string{flags.configPath, flags.recipePath} {
		if f != "" {
			files = append(files, f)
		}
	}
	return files
}

func joinEvalErrors(errs []recipe.EvalError) error {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return errors.New(strings.Join(msgs, "; "))
}
