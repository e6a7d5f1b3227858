package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/repayplan/internal/assess"
	"github.com/opensource-finance/repayplan/internal/domain"
)

// newGateEnv declares the variables a custom gate expression may use.
func newGateEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("income", cel.IntType),
		cel.Variable("disposable", cel.IntType),
		cel.Variable("living_cost", cel.IntType),
		cel.Variable("liquidation", cel.IntType),
		cel.Variable("unsecured", cel.IntType),
		cel.Variable("secured", cel.IntType),
		cel.Variable("tax", cel.IntType),
		cel.Variable("credit", cel.IntType),
		cel.Variable("private_loan", cel.IntType),
		cel.Variable("household_size", cel.IntType),
		cel.Variable("age_band", cel.StringType),
		cel.Variable("marital", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// celGate is a compiled custom gate.
type celGate struct {
	rule    domain.GateRule
	program cel.Program
}

// ID implements assess.Gate.
func (g *celGate) ID() string { return g.rule.ID }

// Check implements assess.Gate. A gate that cannot be evaluated fires, so a
// broken policy sends the applicant to a consultation instead of a plan.
func (g *celGate) Check(f assess.Facts) (string, bool) {
	out, _, err := g.program.Eval(map[string]any{
		"income":         f.Income,
		"disposable":     f.Disposable,
		"living_cost":    f.LivingCost,
		"liquidation":    f.Liquidation,
		"unsecured":      f.Unsecured,
		"secured":        f.Secured,
		"tax":            f.Tax,
		"credit":         f.Credit,
		"private_loan":   f.PrivateLoan,
		"household_size": int64(f.HouseholdSize),
		"age_band":       f.AgeBand,
		"marital":        f.Marital,
	})
	if err != nil {
		return fmt.Sprintf("policy gate %s could not be evaluated", g.rule.ID), true
	}
	fired, ok := out.(types.Bool)
	if !ok {
		return fmt.Sprintf("policy gate %s could not be evaluated", g.rule.ID), true
	}
	if !fired {
		return "", false
	}
	if g.rule.Reason == "" {
		return fmt.Sprintf("policy gate %s", g.rule.ID), true
	}
	return g.rule.Reason, true
}

func compileGate(env *cel.Env, rule domain.GateRule) (*celGate, error) {
	ast, issues := env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile gate %s: %w", rule.ID, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("gate %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for gate %s: %w", rule.ID, err)
	}
	return &celGate{rule: rule, program: program}, nil
}

// CompileGates compiles every custom gate in document order.
func CompileGates(env *cel.Env, rules []domain.GateRule) ([]assess.Gate, error) {
	gates := make([]assess.Gate, 0, len(rules))
	for _, rule := range rules {
		g, err := compileGate(env, rule)
		if err != nil {
			return nil, err
		}
		gates = append(gates, g)
	}
	return gates, nil
}
