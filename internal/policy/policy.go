// Package policy loads the classification policy that parameterizes
// parsing and matching: the pseudo-family name substitution table, the
// leaf-code format, and the approximate-matching tolerance.
//
// Policies are written in CUE and compiled through the CUE Go API. A
// default policy is embedded in the binary; operators can substitute a
// reviewed override per run.
package policy

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed policy.cue
var defaultSource string

// Policy holds the compiled, validated policy values.
type Policy struct {
	// NameMap rewrites the first component of a branch header. A mapped
	// header collapses the branch to the mapped single-component family and
	// keeps the rest of the chain as a classification comment.
	NameMap map[string]string

	// CodeLength is the exact length of a regular leaf code.
	CodeLength int

	// NocodePattern matches private leaf codes.
	NocodePattern *regexp.Regexp

	// MinApproxLeaves is the smallest leaf-set size for which approximate
	// leaf-set matching is attempted.
	MinApproxLeaves int

	// ToleranceDivisor bounds approximate matches: a candidate set of size
	// n may differ from the probe by at most n/ToleranceDivisor codes.
	ToleranceDivisor int
}

// ValidCode reports whether code satisfies the policy's code format.
func (p *Policy) ValidCode(code string) bool {
	return len(code) == p.CodeLength || p.NocodePattern.MatchString(code)
}

// Tolerance returns the allowed leaf-set distance for a candidate of the
// given size.
func (p *Policy) Tolerance(size int) int {
	return size / p.ToleranceDivisor
}

// Rename looks up a pseudo-family substitution for a branch header
// component.
func (p *Policy) Rename(name string) (string, bool) {
	mapped, ok := p.NameMap[name]
	return mapped, ok
}

// Default compiles the embedded policy.
func Default() (*Policy, error) {
	return Compile(defaultSource, "policy.cue")
}

// Load reads and compiles a policy override from disk.
func Load(path string) (*Policy, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy: %w", err)
	}
	return Compile(string(src), path)
}

// Compile parses CUE source into a validated Policy.
func Compile(src, filename string) (*Policy, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	root := v.LookupPath(cue.ParsePath("policy"))
	if !root.Exists() {
		return nil, &CompileError{
			Field:   "policy",
			Message: "top-level policy struct is required",
			Pos:     v.Pos(),
		}
	}

	p := &Policy{NameMap: map[string]string{}}

	if nm := root.LookupPath(cue.ParsePath("name_map")); nm.Exists() {
		iter, err := nm.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			val, err := iter.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			p.NameMap[iter.Selector().Unquoted()] = val
		}
	}

	var err error
	if p.CodeLength, err = intField(root, "code_length"); err != nil {
		return nil, err
	}
	if p.MinApproxLeaves, err = intField(root, "min_approx_leaves"); err != nil {
		return nil, err
	}
	if p.ToleranceDivisor, err = intField(root, "tolerance_divisor"); err != nil {
		return nil, err
	}

	patternVal := root.LookupPath(cue.ParsePath("nocode_pattern"))
	if !patternVal.Exists() {
		return nil, &CompileError{
			Field:   "nocode_pattern",
			Message: "nocode_pattern is required",
			Pos:     root.Pos(),
		}
	}
	pattern, err := patternVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	p.NocodePattern, err = regexp.Compile(pattern)
	if err != nil {
		return nil, &CompileError{
			Field:   "nocode_pattern",
			Message: fmt.Sprintf("invalid pattern: %v", err),
			Pos:     patternVal.Pos(),
		}
	}

	return p, p.validate(root.Pos())
}

func (p *Policy) validate(pos token.Pos) error {
	if p.CodeLength <= 0 {
		return &CompileError{Field: "code_length", Message: "must be positive", Pos: pos}
	}
	if p.ToleranceDivisor <= 0 {
		return &CompileError{Field: "tolerance_divisor", Message: "must be positive", Pos: pos}
	}
	if p.MinApproxLeaves < 0 {
		return &CompileError{Field: "min_approx_leaves", Message: "must not be negative", Pos: pos}
	}
	return nil
}

func intField(v cue.Value, name string) (int, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return 0, &CompileError{
			Field:   name,
			Message: name + " is required",
			Pos:     v.Pos(),
		}
	}
	n, err := fv.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return int(n), nil
}

// CompileError reports a policy document that does not satisfy the schema.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	return &CompileError{
		Field:   "policy",
		Message: first.Error(),
		Pos:     first.Position(),
	}
}
