package orchestrator

import (
	"sync"

	"github.com/google/cel-go/cel"

	engineerrors "github.com/subpilot/subpilot/internal/errors"
	"github.com/subpilot/subpilot/store"
)

// guardEvaluator evaluates auto-approve guard expressions. Guards are CEL
// expressions over {confidence, action_type, discount_percent}; compiled
// programs are cached per expression since configs change rarely.
type guardEvaluator struct {
	env *cel.Env

	mu       sync.Mutex
	programs map[string]cel.Program
}

func newGuardEvaluator() (*guardEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("confidence", cel.DoubleType),
		cel.Variable("action_type", cel.StringType),
		cel.Variable("discount_percent", cel.DoubleType),
	)
	if err != nil {
		return nil, err
	}
	return &guardEvaluator{env: env, programs: make(map[string]cel.Program)}, nil
}

// Eval evaluates the guard expression against a decision. An empty expression
// passes. A malformed expression or a non-boolean result fails closed: the
// action goes to human review instead of auto-approval.
func (g *guardEvaluator) Eval(expr string, confidence float64, taken store.ActionTaken) (bool, error) {
	if expr == "" {
		return true, nil
	}

	program, err := g.program(expr)
	if err != nil {
		return false, err
	}

	out, _, err := program.Eval(map[string]any{
		"confidence":       confidence,
		"action_type":      taken.ActionType,
		"discount_percent": taken.Details.DiscountPercent,
	})
	if err != nil {
		return false, engineerrors.InvalidArgument("guard evaluation failed").WithContext("error", err.Error())
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, engineerrors.InvalidArgument("guard expression is not boolean")
	}
	return result, nil
}

func (g *guardEvaluator) program(expr string) (cel.Program, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if program, ok := g.programs[expr]; ok {
		return program, nil
	}

	ast, issues := g.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, engineerrors.InvalidArgument("malformed guard expression").
			WithContext("error", issues.Err().Error())
	}
	program, err := g.env.Program(ast)
	if err != nil {
		return nil, engineerrors.InvalidArgument("guard expression cannot be evaluated").
			WithContext("error", err.Error())
	}
	g.programs[expr] = program
	return program, nil
}
