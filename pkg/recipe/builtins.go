package recipe

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	zygo "github.com/glycerine/zygomys/zygo"
	"github.com/samber/lo"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource rewrites recipe source for zygomys:
//
//  1. :keyword becomes the string literal "__kw_keyword", so keywords need
//     no global symbols.
//  2. kebab-case identifiers become snake_case; zygomys reads a hyphen as
//     subtraction.
//  3. ; comments become // comments.
//
// String literals are left alone.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		switch {
		case b[i] == '"':
			j := skipQuoted(b, i, '"', true)
			result = append(result, b[i:j]...)
			i = j
		case b[i] == '`':
			j := skipQuoted(b, i, '`', false)
			result = append(result, b[i:j]...)
			i = j
		case b[i] == ';':
			result = append(result, '/', '/')
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
		case b[i] == ':' && i+1 < len(b) && b[i+1] == '=':
			result = append(result, ':', '=')
			i += 2
		case b[i] == ':' && i+1 < len(b) && isLetter(b[i+1]):
			j := i + 1
			for j < len(b) && isKWChar(b[j]) {
				j++
			}
			result = append(result, '"')
			result = append(result, kwPrefix...)
			result = append(result, b[i+1:j]...)
			result = append(result, '"')
			i = j
		case b[i] == '-' && i > 0 && i+1 < len(b) && isIdentChar(b[i-1]) && isLetter(b[i+1]):
			result = append(result, '_')
			i++
		default:
			result = append(result, b[i])
			i++
		}
	}
	return string(result)
}

// skipQuoted returns the index just past the literal opened at b[i].
func skipQuoted(b []byte, i int, quote byte, escapes bool) int {
	j := i + 1
	for j < len(b) && b[j] != quote {
		if escapes && b[j] == '\\' && j+1 < len(b) {
			j++
		}
		j++
	}
	if j < len(b) {
		j++
	}
	return j
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW reports whether s is a preprocessed keyword and returns its name.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok || !strings.HasPrefix(str.S, kwPrefix) {
		return "", false
	}
	return str.S[len(kwPrefix):], true
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			continue
		}
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i++
		} else {
			result.kw[name] = zygo.SexpNull
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toInt extracts an integer; floats are accepted when they are whole.
func toInt(s zygo.Sexp) (int, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return int(v.Val), nil
	case *zygo.SexpFloat:
		if v.Val == math.Trunc(v.Val) {
			return int(v.Val), nil
		}
		return 0, fmt.Errorf("expected integer, got %g", v.Val)
	}
	return 0, fmt.Errorf("expected integer, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	return strings.TrimPrefix(str.S, kwPrefix), nil
}

// toDuration reads a number of seconds or a Go duration string ("90s").
func toDuration(s zygo.Sexp) (time.Duration, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return time.ParseDuration(str.S)
	}
	secs, err := toFloat64(s)
	if err != nil {
		return 0, fmt.Errorf("expected seconds or duration string: %w", err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// option stores one keyword argument into the recipe's configuration.
type option func(v zygo.Sexp) error

func floatOpt(dst *float64) option {
	return func(v zygo.Sexp) (err error) {
		*dst, err = toFloat64(v)
		return err
	}
}

func intOpt(dst *int) option {
	return func(v zygo.Sexp) (err error) {
		*dst, err = toInt(v)
		return err
	}
}

func stringOpt(dst *string) option {
	return func(v zygo.Sexp) (err error) {
		*dst, err = toKeywordString(v)
		return err
	}
}

func durationOpt(dst *time.Duration) option {
	return func(v zygo.Sexp) (err error) {
		*dst, err = toDuration(v)
		return err
	}
}

// addSection registers a form that takes only keyword options. Options
// are applied in name order so errors are reported deterministically.
func addSection(env *zygo.Zlisp, form string, opts map[string]option) {
	env.AddFunction(form, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) > 0 {
			return zygo.SexpNull, fmt.Errorf("%s: unexpected argument %s", form, pa.positional[0].SexpString(nil))
		}
		keys := lo.Keys(pa.kw)
		slices.Sort(keys)
		for _, k := range keys {
			set, ok := opts[k]
			if !ok {
				known := lo.Keys(opts)
				slices.Sort(known)
				return zygo.SexpNull, fmt.Errorf("%s: unknown option :%s (known: %s)", form, k, strings.Join(known, ", "))
			}
			if err := set(pa.kw[k]); err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %s: %w", form, k, err)
			}
		}
		return zygo.SexpNull, nil
	})
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the recipe forms. Each form writes into rec.
// Source must be preprocessed with preprocessSource() first.
func registerBuiltins(env *zygo.Zlisp, rec *Recipe) {
	cfg := rec.Config

	// (input "bracket.stl")
	env.AddFunction("input", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("input requires exactly one path, got %d arguments", len(args))
		}
		path, err := toKeywordString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("input: %w", err)
		}
		rec.Input = path
		return &zygo.SexpStr{S: path}, nil
	})

	// (overhang :angle 50)
	addSection(env, "overhang", map[string]option{
		"angle": floatOpt(&cfg.Overhang.Angle),
	})

	// (supports :radius 0.5 :segments 16 :max-supports 1000 :batch-size 100 :workers 4)
	addSection(env, "supports", map[string]option{
		"radius":       floatOpt(&cfg.Supports.Radius),
		"segments":     intOpt(&cfg.Supports.Segments),
		"max-supports": intOpt(&cfg.Supports.MaxSupports),
		"batch-size":   intOpt(&cfg.Supports.BatchSize),
		"workers":      intOpt(&cfg.Supports.Workers),
	})

	// (mold :slab-thickness 0.2 :slab-margin 1 :axis :x :liner-scale 1.03)
	addSection(env, "mold", map[string]option{
		"slab-thickness": floatOpt(&cfg.Mold.SlabThickness),
		"slab-margin":    floatOpt(&cfg.Mold.SlabMargin),
		"axis":           stringOpt(&cfg.Mold.Axis),
		"liner-scale":    floatOpt(&cfg.Mold.LinerScale),
	})

	// (kernel :backend :sdfx :mesh-cells 64 :max-cells 400 :mesher :search :timeout 90)
	addSection(env, "kernel", map[string]option{
		"backend":    stringOpt(&cfg.Kernel.Backend),
		"mesh-cells": intOpt(&cfg.Kernel.MeshCells),
		"max-cells":  intOpt(&cfg.Kernel.MaxCells),
		"mesher":     stringOpt(&cfg.Kernel.Mesher),
		"timeout":    durationOpt(&cfg.Kernel.Timeout),
	})

	// (output :dir "out" :format :obj :supports "out/supports.obj")
	addSection(env, "output", map[string]option{
		"dir":      stringOpt(&cfg.Output.Dir),
		"format":   stringOpt(&cfg.Output.Format),
		"supports": stringOpt(&cfg.Output.Supports),
	})
}
