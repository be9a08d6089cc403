package agent

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentrelay/internal/util"
)

// Provider supplies instruction text at step time, for example from a
// prompt registry or from run variables.
type Provider interface {
	Instruction(ctx context.Context, vars map[string]any) (string, error)
}

// Func adapts an ordinary function to the Provider interface.
type Func func(ctx context.Context, vars map[string]any) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(ctx context.Context, vars map[string]any) (string, error) {
	return f(ctx, vars)
}

// Instruction is an agent persona: either a text/template rendered with the
// run variables or a dynamic Provider.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a text/template string.
// Run variables are available as {{ .name }}.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// ParseInstruction is like NewInstructionFromText but rejects templates
// that do not parse. Use it for instructions read from configuration.
func ParseInstruction(text string) (Instruction, error) {
	if err := util.CheckTemplate(text); err != nil {
		return Instruction{}, fmt.Errorf("invalid instruction: %w", err)
	}
	return Instruction{text: text}, nil
}

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(ctx context.Context, vars map[string]any) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic reports whether the instruction is a template.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// IsZero reports whether no instruction was set.
func (i Instruction) IsZero() bool { return i.provider == nil && i.text == "" }

// Resolve renders the instruction for one step.
func (i Instruction) Resolve(ctx context.Context, vars map[string]any) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(ctx, vars)
	}
	return util.RenderTemplate(i.text, vars)
}
