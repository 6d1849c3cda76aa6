package pipeline

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/cuongbtq/beanstalk-bridge/internal/entry"
)

// FilterRules are CEL expressions over the variable `entry`, a map of the
// entry fields
type FilterRules struct {
	Accept    string
	Reject    string
	AcceptAll bool
}

// Filter decides undecided entries. Reject is evaluated before accept, and an
// expression that fails to evaluate counts as not matching.
type Filter struct {
	accept    cel.Program
	reject    cel.Program
	acceptAll bool
	logger    *slog.Logger
}

// NewFilter compiles the accept and reject expressions. Empty expressions
// never match.
func NewFilter(rules FilterRules, logger *slog.Logger) (*Filter, error) {
	env, err := cel.NewEnv(
		cel.Variable("entry", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter environment: %w", err)
	}

	f := &Filter{acceptAll: rules.AcceptAll, logger: logger}

	if f.accept, err = compile(env, rules.Accept); err != nil {
		return nil, fmt.Errorf("invalid accept rule: %w", err)
	}
	if f.reject, err = compile(env, rules.Reject); err != nil {
		return nil, fmt.Errorf("invalid reject rule: %w", err)
	}

	return f, nil
}

// compile returns a nil program for an empty expression
func compile(env *cel.Env, expr string) (cel.Program, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression must return a bool, got %s", out)
	}

	return env.Program(ast)
}

// Apply decides every undecided entry of the task
func (f *Filter) Apply(task *Task) {
	for _, e := range task.Undecided() {
		f.decide(e)
	}
}

func (f *Filter) decide(e *entry.Entry) {
	if f.matches(f.reject, e) {
		e.Reject("reject rule")
		return
	}
	if f.matches(f.accept, e) {
		e.Accept("accept rule")
		return
	}
	if f.acceptAll {
		e.Accept("accept_all")
	}
}

func (f *Filter) matches(prg cel.Program, e *entry.Entry) bool {
	if prg == nil {
		return false
	}

	out, _, err := prg.Eval(map[string]any{"entry": e.Serialize()})
	if err != nil {
		f.logger.Debug("Filter rule did not evaluate",
			slog.String("title", e.Title()),
			slog.Any("error", err),
		)
		return false
	}

	b, ok := out.Value().(bool)
	return ok && b
}
