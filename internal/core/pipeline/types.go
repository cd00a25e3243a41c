package pipeline

// =============================================================================
// Actions
// =============================================================================

// Action identifies what a pipeline step does.
type Action string

const (
	ActionBuild  Action = "build"
	ActionPush   Action = "push"
	ActionDeploy Action = "deploy"
)

// IsValid checks if the action is known.
func (a Action) IsValid() bool {
	switch a {
	case ActionBuild, ActionPush, ActionDeploy:
		return true
	default:
		return false
	}
}

// rank orders actions: build before push before deploy.
func (a Action) rank() int {
	switch a {
	case ActionBuild:
		return 0
	case ActionPush:
		return 1
	case ActionDeploy:
		return 2
	default:
		return 3
	}
}

// =============================================================================
// Pipeline Types
// =============================================================================

// Pipeline is a parsed delivery pipeline: a linear sequence of steps plus
// the user-defined substitution variables their fields may reference.
// Execution is strictly sequential; a failed step aborts the run and the
// remaining steps are skipped.
type Pipeline struct {
	Substitutions map[string]string `yaml:"substitutions,omitempty" json:"substitutions,omitempty"`
	Steps         []Step            `yaml:"steps" json:"steps"`
}

// Step is one pipeline step. Fields beyond Name and Action apply only to
// particular actions: Context to build, Target/Region/Env/Secrets to deploy.
type Step struct {
	Name    string            `yaml:"name" json:"name"`
	Action  Action            `yaml:"action" json:"action"`
	Context string            `yaml:"context,omitempty" json:"context,omitempty"`
	Target  string            `yaml:"target,omitempty" json:"target,omitempty"`
	Region  string            `yaml:"region,omitempty" json:"region,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Secrets map[string]string `yaml:"secrets,omitempty" json:"secrets,omitempty"`
}

// StepNames returns the step names in order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		names[i] = s.Name
	}
	return names
}

// StepActions returns the step actions in order, as strings.
func (p *Pipeline) StepActions() []string {
	actions := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		actions[i] = string(s.Action)
	}
	return actions
}

// DeployStep returns the deploy step, or nil if the pipeline has none.
func (p *Pipeline) DeployStep() *Step {
	for i := range p.Steps {
		if p.Steps[i].Action == ActionDeploy {
			return &p.Steps[i]
		}
	}
	return nil
}

// SecretNames returns the unique secret names referenced by deploy steps.
func (p *Pipeline) SecretNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, step := range p.Steps {
		for _, secretName := range step.Secrets {
			if !seen[secretName] {
				seen[secretName] = true
				names = append(names, secretName)
			}
		}
	}
	return names
}
