package pipeline

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// KnownTargets lists the deploy targets the platform layer can drive.
var KnownTargets = []string{"http", "digitalocean"}

// =============================================================================
// Parser Functions
// =============================================================================

// ParsePipeline parses a pipeline YAML document and validates its structure.
// This is a pure function - no I/O, no side effects.
func ParsePipeline(yamlContent string) (*Pipeline, error) {
	if strings.TrimSpace(yamlContent) == "" {
		return nil, ErrEmptyInput
	}

	var p Pipeline
	dec := yaml.NewDecoder(strings.NewReader(yamlContent))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, NewPipelineError("", err.Error(), ErrInvalidYAML)
	}

	if err := validatePipeline(&p); err != nil {
		return nil, err
	}

	return &p, nil
}

// validatePipeline checks structural rules: step presence, unique names,
// known actions with at most one step each, deploy target validity, and
// user substitution naming.
func validatePipeline(p *Pipeline) error {
	if len(p.Steps) == 0 {
		return NewPipelineError("steps", "pipeline must define at least one step", ErrNoSteps)
	}

	seenNames := make(map[string]bool)
	seenActions := make(map[Action]bool)

	for i, step := range p.Steps {
		field := fmt.Sprintf("steps[%d]", i)

		if step.Name == "" {
			return NewPipelineError(field+".name", "step name is required", ErrNoSteps)
		}
		if seenNames[step.Name] {
			return NewPipelineError(field+".name", fmt.Sprintf("duplicate step name %q", step.Name), ErrDuplicateStepName)
		}
		seenNames[step.Name] = true

		if !step.Action.IsValid() {
			return NewPipelineError(field+".action", fmt.Sprintf("unknown action %q", step.Action), ErrUnknownAction)
		}
		if seenActions[step.Action] {
			return NewPipelineError(field+".action", fmt.Sprintf("action %q appears more than once", step.Action), ErrDuplicateAction)
		}
		seenActions[step.Action] = true

		if step.Action == ActionDeploy {
			if step.Target == "" {
				return NewPipelineError(field+".target", "deploy step requires a target", ErrDeployTargetRequired)
			}
			if !isKnownTarget(step.Target) {
				return NewPipelineError(field+".target", fmt.Sprintf("unknown target %q", step.Target), ErrUnknownTarget)
			}
		}
	}

	for name := range p.Substitutions {
		if !strings.HasPrefix(name, "_") {
			return NewPipelineError("substitutions."+name, "user-defined substitutions must start with an underscore", ErrInvalidUserVariable)
		}
	}

	return nil
}

// ValidateStepOrder checks that step actions appear in delivery order:
// build before push before deploy. Missing actions are fine; a pipeline may
// stop at push.
func ValidateStepOrder(p *Pipeline) error {
	lastRank := -1
	for i, step := range p.Steps {
		r := step.Action.rank()
		if r <= lastRank {
			return NewPipelineError(
				fmt.Sprintf("steps[%d]", i),
				fmt.Sprintf("step %q (%s) is out of order", step.Name, step.Action),
				ErrStepOutOfOrder,
			)
		}
		lastRank = r
	}
	return nil
}

func isKnownTarget(target string) bool {
	for _, t := range KnownTargets {
		if t == target {
			return true
		}
	}
	return false
}
