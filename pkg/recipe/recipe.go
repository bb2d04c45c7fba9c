// Package recipe evaluates fabprep recipe files. A recipe is a small Lisp
// program, run in a zygomys sandbox, whose forms override the settings of
// a run:
//
//	(input "bracket.stl")
//	(overhang :angle 50)
//	(supports :radius 0.6 :max-supports 500)
//	(mold :axis :x :liner-scale 1.03)
//	(kernel :mesh-cells 64 :timeout 90)
//	(output :dir "out" :format :obj)
package recipe

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/chazu/fabprep/pkg/config"
	zygo "github.com/glycerine/zygomys/zygo"
)

// EvalError represents a non-fatal error in a recipe, such as a parse
// error, a bad option or a configuration that does not validate. Line is
// zero when zygomys reported no position; it never reports a column.
type EvalError struct {
	Line    int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// Recipe is the outcome of a successful evaluation.
type Recipe struct {
	Config *config.Config
	Input  string // empty unless the recipe names a model
}

// Engine evaluates recipes. It is safe for concurrent use; each call to
// Evaluate creates a fresh sandboxed environment for determinism.
type Engine struct {
	mu         sync.Mutex
	generation uint64
}

// NewEngine creates a new Engine instance.
func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate runs source against a copy of base, which is never modified.
//
// Return semantics:
//   - On success: returns recipe + nil errors + nil error
//   - On parse/eval/validation failure: returns nil + eval errors + nil error
//   - On fatal failure (timeout, panic, superseded): returns nil + nil + error
func (e *Engine) Evaluate(source string, base *config.Config) (*Recipe, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		rec, evalErrs, err := evaluate(source, base)
		ch <- evalResult{recipe: rec, errors: evalErrs, err: err}
	}()

	return waitWithTimeout(ch, gen, &e.mu, &e.generation)
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func evaluate(source string, base *config.Config) (*Recipe, []EvalError, error) {
	if base == nil {
		base = config.Default()
	}
	rec := &Recipe{Config: base.Clone()}

	// Empty source leaves the configuration untouched.
	if strings.TrimSpace(source) == "" {
		return rec, nil, nil
	}

	// Sandbox mode keeps recipes away from the filesystem and syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	registerBuiltins(env, rec)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err), nil
	}
	if _, err := env.Run(); err != nil {
		return nil, parseZygomysError(err), nil
	}

	if err := rec.Config.Validate(); err != nil {
		return nil, []EvalError{{Message: err.Error()}}, nil
	}
	return rec, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?is)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?is)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into EvalError values,
// extracting the line number when the message carries one.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
		}
	}
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
