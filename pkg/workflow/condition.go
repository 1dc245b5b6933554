package workflow

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// conditionEvaluator compiles and caches step gate expressions. Variables
// resolve against the run snapshot at evaluation time, so compilation
// allows undefined identifiers.
type conditionEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func newConditionEvaluator() *conditionEvaluator {
	return &conditionEvaluator{cache: make(map[string]*vm.Program)}
}

// check compiles the expression, caching the program for later evaluation.
func (c *conditionEvaluator) check(expression string) error {
	_, err := c.compile(expression)
	return err
}

// evaluate runs the expression against env. Empty expressions are true.
func (c *conditionEvaluator) evaluate(expression string, env map[string]any) (bool, error) {
	if expression == "" {
		return true, nil
	}

	program, err := c.compile(expression)
	if err != nil {
		return false, fmt.Errorf("compile condition: %w", err)
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("run condition: %w", err)
	}

	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("condition must return bool, got %T", result)
	}
	return b, nil
}

func (c *conditionEvaluator) compile(expression string) (*vm.Program, error) {
	c.mu.RLock()
	if prog, ok := c.cache[expression]; ok {
		c.mu.RUnlock()
		return prog, nil
	}
	c.mu.RUnlock()

	prog, err := expr.Compile(expression,
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[expression] = prog
	c.mu.Unlock()
	return prog, nil
}
