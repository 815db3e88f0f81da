package memory

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/tatianab/overworld-agent/internal/models"
)

// Criteria compiles and evaluates goal expressions (complete_when / fail_when)
// against an Observation.
type Criteria struct {
	env      *cel.Env
	programs map[string]cel.Program
}

// NewCriteria declares the observation variables visible to goal expressions.
func NewCriteria() (*Criteria, error) {
	env, err := cel.NewEnv(
		cel.Variable("x", cel.IntType),
		cel.Variable("y", cel.IntType),
		cel.Variable("map_name", cel.StringType),
		cel.Variable("facing", cel.StringType),
		cel.Variable("in_battle", cel.BoolType),
		cel.Variable("in_dialogue", cel.BoolType),
		cel.Variable("dialogue", cel.StringType),
		cel.Variable("walkable", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, err
	}
	return &Criteria{env: env, programs: make(map[string]cel.Program)}, nil
}

// Compile checks expr and caches its program.
func (c *Criteria) Compile(expr string) error {
	_, err := c.program(expr)
	return err
}

// Eval reports whether expr holds for obs.
func (c *Criteria) Eval(expr string, obs models.Observation) (bool, error) {
	prg, err := c.program(expr)
	if err != nil {
		return false, err
	}
	walkable := make([]string, 0, len(obs.Walkable))
	for _, d := range obs.Walkable {
		walkable = append(walkable, string(d))
	}
	out, _, err := prg.Eval(map[string]any{
		"x":           obs.Position.X,
		"y":           obs.Position.Y,
		"map_name":    obs.MapName,
		"facing":      string(obs.Facing),
		"in_battle":   obs.InBattle,
		"in_dialogue": obs.InDialogue,
		"dialogue":    obs.DialogueText,
		"walkable":    walkable,
	})
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression %q returned %T, want bool", expr, out.Value())
	}
	return b, nil
}

func (c *Criteria) program(expr string) (cel.Program, error) {
	if prg, ok := c.programs[expr]; ok {
		return prg, nil
	}
	ast, iss := c.env.Compile(expr)
	if iss.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, iss.Err())
	}
	prg, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", expr, err)
	}
	c.programs[expr] = prg
	return prg, nil
}
