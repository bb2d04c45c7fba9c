package recipe

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chazu/fabprep/pkg/config"
)

func TestEvaluateEmptyString(t *testing.T) {
	eng := NewEngine()
	base := config.Default()

	for _, src := range []string{"", "   \n\t  \n  "} {
		rec, evalErrs, err := eng.Evaluate(src, base)
		if err != nil {
			t.Fatalf("unexpected fatal error: %v", err)
		}
		if len(evalErrs) > 0 {
			t.Fatalf("unexpected eval errors: %v", evalErrs)
		}
		if rec == nil || rec.Config == nil {
			t.Fatal("expected a recipe with a config")
		}
		if *rec.Config != *base {
			t.Errorf("empty recipe changed the config: %+v", rec.Config)
		}
		if rec.Config == base {
			t.Error("recipe config must be a copy of the base")
		}
	}
}

func TestEvaluateNilBaseUsesDefaults(t *testing.T) {
	rec, evalErrs, err := NewEngine().Evaluate("(+ 1 2)", nil)
	if err != nil || len(evalErrs) > 0 {
		t.Fatalf("Evaluate() = %v, %v", evalErrs, err)
	}
	if *rec.Config != *config.Default() {
		t.Errorf("config = %+v, want defaults", rec.Config)
	}
}

func TestEvaluateFullRecipe(t *testing.T) {
	src := `;; bracket, split sideways
(input "parts/bracket.stl")
(overhang :angle 50)
(supports :radius 0.6 :segments 12 :max-supports 500 :batch-size 25 :workers 2)
(mold :slab-thickness 0.25 :slab-margin 1.5 :axis :x :liner-scale 1.03)
(kernel :backend :sdfx :mesh-cells 64 :max-cells 300 :mesher :marching-cubes :timeout 90)
(output :dir "out" :format :obj :supports "out/bracket-supports.obj")
`
	base := config.Default()
	rec, evalErrs, err := NewEngine().Evaluate(src, base)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("unexpected eval errors: %v", evalErrs)
	}

	cfg := rec.Config
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"input", rec.Input, "parts/bracket.stl"},
		{"angle", cfg.Overhang.Angle, 50.0},
		{"radius", cfg.Supports.Radius, 0.6},
		{"segments", cfg.Supports.Segments, 12},
		{"max supports", cfg.Supports.MaxSupports, 500},
		{"batch size", cfg.Supports.BatchSize, 25},
		{"workers", cfg.Supports.Workers, 2},
		{"slab thickness", cfg.Mold.SlabThickness, 0.25},
		{"slab margin", cfg.Mold.SlabMargin, 1.5},
		{"axis", cfg.Mold.Axis, "x"},
		{"liner scale", cfg.Mold.LinerScale, 1.03},
		{"backend", cfg.Kernel.Backend, "sdfx"},
		{"mesh cells", cfg.Kernel.MeshCells, 64},
		{"mesher", cfg.Kernel.Mesher, "marching-cubes"},
		{"max cells", cfg.Kernel.MaxCells, 300},
		{"timeout", cfg.Kernel.Timeout, 90 * time.Second},
		{"dir", cfg.Output.Dir, "out"},
		{"format", cfg.Output.Format, "obj"},
		{"supports path", cfg.Output.Supports, "out/bracket-supports.obj"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	if base.Overhang.Angle != 45 {
		t.Errorf("base config was modified: angle = %g", base.Overhang.Angle)
	}
}

func TestEvaluateDurationString(t *testing.T) {
	rec, evalErrs, err := NewEngine().Evaluate(`(kernel :timeout "1m30s")`, nil)
	if err != nil || len(evalErrs) > 0 {
		t.Fatalf("Evaluate() = %v, %v", evalErrs, err)
	}
	if rec.Config.Kernel.Timeout != 90*time.Second {
		t.Errorf("timeout = %s, want 1m30s", rec.Config.Kernel.Timeout)
	}
}

func TestEvaluateRecipeErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown option", `(supports :diameter 2)`, "unknown option :diameter"},
		{"wrong type", `(overhang :angle "steep")`, "expected number"},
		{"fractional count", `(supports :segments 7.5)`, "expected integer"},
		{"positional argument", `(mold 3)`, "unexpected argument"},
		{"input arity", `(input)`, "exactly one path"},
		{"invalid config", `(mold :liner-scale 0.9)`, "mold.liner_scale"},
		{"invalid axis", `(mold :axis :w)`, "mold.axis"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, evalErrs, err := NewEngine().Evaluate(tt.src, nil)
			if err != nil {
				t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
			}
			if rec != nil {
				t.Fatal("expected nil recipe on error")
			}
			if len(evalErrs) == 0 {
				t.Fatal("expected at least one eval error")
			}
			if !strings.Contains(evalErrs[0].Message, tt.want) {
				t.Errorf("message = %q, want it to contain %q", evalErrs[0].Message, tt.want)
			}
		})
	}
}

func TestEvaluateSyntaxError(t *testing.T) {
	eng := NewEngine()

	rec, evalErrs, err := eng.Evaluate("(overhang :angle 30)\n(supports :radius", nil)
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if rec != nil {
		t.Fatal("expected nil recipe on syntax error")
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected at least one eval error for syntax error")
	}
	if evalErrs[0].Message == "" {
		t.Error("eval error message should not be empty")
	}
	if evalErrs[0].Line > 0 {
		t.Logf("extracted line info: line=%d, message=%q", evalErrs[0].Line, evalErrs[0].Message)
	}
}

func TestEvaluateUndefinedSymbol(t *testing.T) {
	rec, evalErrs, err := NewEngine().Evaluate("(overhang :angle undefined-symbol)", nil)
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if rec != nil || len(evalErrs) == 0 {
		t.Fatalf("Evaluate() = %v, %v; want eval errors", rec, evalErrs)
	}
}

func TestEvaluateArithmeticInOptions(t *testing.T) {
	rec, evalErrs, err := NewEngine().Evaluate("(def r 0.4)\n(supports :radius (* r 2))", nil)
	if err != nil || len(evalErrs) > 0 {
		t.Fatalf("Evaluate() = %v, %v", evalErrs, err)
	}
	if rec.Config.Supports.Radius != 0.8 {
		t.Errorf("radius = %g, want 0.8", rec.Config.Supports.Radius)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	eng := NewEngine()
	src := "(overhang :angle 60)"
	for i := 0; i < 5; i++ {
		rec, evalErrs, err := eng.Evaluate(src, nil)
		if err != nil || len(evalErrs) > 0 {
			t.Fatalf("iteration %d: %v, %v", i, evalErrs, err)
		}
		if rec.Config.Overhang.Angle != 60 {
			t.Errorf("iteration %d: angle = %g", i, rec.Config.Overhang.Angle)
		}
	}
}

func TestEvalErrorImplementsError(t *testing.T) {
	e := EvalError{Line: 5, Message: "something went wrong"}
	if s := e.Error(); !strings.Contains(s, "line 5") || !strings.Contains(s, "something went wrong") {
		t.Errorf("Error() = %q, want line and message", s)
	}
	if s := (EvalError{Message: "no location"}).Error(); strings.Contains(s, "line") {
		t.Errorf("Error() with no line should not contain 'line', got: %s", s)
	}
}

func TestEvaluateTimeout(t *testing.T) {
	// waitWithTimeout is exercised directly with a channel that never
	// sends; no recipe loops long enough to hit EvalTimeout.
	var mu sync.Mutex
	var gen uint64 = 1
	ch := make(chan evalResult)

	done := make(chan struct{})
	var resultErr error
	go func() {
		defer close(done)
		_, _, resultErr = waitWithTimeout(ch, 1, &mu, &gen)
	}()

	select {
	case <-done:
		if resultErr == nil || !strings.Contains(resultErr.Error(), "timed out") {
			t.Errorf("expected timeout error, got: %v", resultErr)
		}
	case <-time.After(EvalTimeout + 2*time.Second):
		t.Fatal("test itself timed out waiting for evaluation timeout")
	}
}

func TestEvaluateGenerationDiscardsStale(t *testing.T) {
	var mu sync.Mutex
	gen := uint64(2)

	ch := make(chan evalResult, 1)
	ch <- evalResult{}

	_, _, err := waitWithTimeout(ch, 1, &mu, &gen)
	if err == nil || !strings.Contains(err.Error(), "superseded") {
		t.Errorf("expected superseded error, got: %v", err)
	}
}

func TestParseZygomysError(t *testing.T) {
	tests := []struct {
		name     string
		msg      string
		wantLine int
		wantMsg  string
	}{
		{"error on line format", "Error on line 5: unexpected token\n", 5, "unexpected token"},
		{"no line info", "some generic error", 0, "some generic error"},
		{"line format lowercase", "error on line 12: missing paren", 12, "missing paren"},
		{"parse failure", "Error parsing on line 7: unbalanced paren\n", 7, "unbalanced paren"},
		{"multiline detail", "Error on line 3:\nsupports: unknown option :x\n", 3, "unknown option :x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := parseZygomysError(errString(tt.msg))
			if len(errs) == 0 {
				t.Fatal("expected at least one error")
			}
			if errs[0].Line != tt.wantLine {
				t.Errorf("line = %d, want %d", errs[0].Line, tt.wantLine)
			}
			if !strings.Contains(errs[0].Message, tt.wantMsg) {
				t.Errorf("message = %q, want containing %q", errs[0].Message, tt.wantMsg)
			}
		})
	}
}

// errString is a simple error type for testing.
type errString string

func (e errString) Error() string { return string(e) }
