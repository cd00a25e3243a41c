package pipeline

import (
	"fmt"
	"regexp"
	"strings"
)

// =============================================================================
// Built-in Variables
// =============================================================================

// Built-in substitution variable names. These are provided per run; user
// pipelines may reference them but never declare them.
const (
	VarProjectID = "PROJECT_ID"
	VarCommitSHA = "COMMIT_SHA"
	VarShortSHA  = "SHORT_SHA"
	VarAppSlug   = "APP_SLUG"
	VarImage     = "IMAGE"
)

// builtinNames is the set of reserved variable names.
var builtinNames = map[string]bool{
	VarProjectID: true,
	VarCommitSHA: true,
	VarShortSHA:  true,
	VarAppSlug:   true,
	VarImage:     true,
}

// IsBuiltin reports whether name is a reserved built-in variable.
func IsBuiltin(name string) bool {
	return builtinNames[name]
}

// substitutionRegex matches $VAR and ${VAR} references. A literal dollar is
// written $$.
var substitutionRegex = regexp.MustCompile(`\$\$|\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// =============================================================================
// Variable Extraction
// =============================================================================

// ExtractReferences returns the unique variable names referenced by $VAR or
// ${VAR} anywhere in the pipeline's step fields, in first-seen order.
func ExtractReferences(p *Pipeline) []string {
	seen := make(map[string]bool)
	var names []string

	collect := func(value string) {
		for _, match := range substitutionRegex.FindAllStringSubmatch(value, -1) {
			name := match[1]
			if name == "" {
				name = match[2]
			}
			if name != "" && !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}

	for _, step := range p.Steps {
		collect(step.Context)
		collect(step.Target)
		collect(step.Region)
		for _, v := range step.Env {
			collect(v)
		}
		for _, v := range step.Secrets {
			collect(v)
		}
	}

	return names
}

// =============================================================================
// Substitution
// =============================================================================

// Resolve returns a copy of the pipeline with every $VAR and ${VAR}
// reference replaced. The variable set is the union of built-ins and the
// pipeline's declared substitutions; built-ins win on collision. A reference
// to a variable in neither set is an error, matching the rule that every
// variable a pipeline uses must be declared or built in.
func Resolve(p *Pipeline, builtins map[string]string) (*Pipeline, error) {
	vars := make(map[string]string, len(p.Substitutions)+len(builtins))
	for k, v := range p.Substitutions {
		vars[k] = v
	}
	for k, v := range builtins {
		vars[k] = v
	}

	// Reject references to nothing before touching any value
	for _, name := range ExtractReferences(p) {
		if _, ok := vars[name]; !ok {
			return nil, NewPipelineError(
				"",
				fmt.Sprintf("reference to undeclared substitution variable %q", name),
				ErrUndeclaredVariable,
			)
		}
	}

	resolved := &Pipeline{
		Substitutions: p.Substitutions,
		Steps:         make([]Step, len(p.Steps)),
	}

	for i, step := range p.Steps {
		out := step
		out.Context = substitute(step.Context, vars)
		out.Target = substitute(step.Target, vars)
		out.Region = substitute(step.Region, vars)
		out.Env = substituteMap(step.Env, vars)
		out.Secrets = substituteMap(step.Secrets, vars)
		resolved.Steps[i] = out
	}

	return resolved, nil
}

// BuiltinValues assembles the built-in variable map for one run.
func BuiltinValues(projectID, appSlug, commitSHA, shortSHA, imageRef string) map[string]string {
	return map[string]string{
		VarProjectID: projectID,
		VarAppSlug:   appSlug,
		VarCommitSHA: commitSHA,
		VarShortSHA:  shortSHA,
		VarImage:     imageRef,
	}
}

func substitute(value string, vars map[string]string) string {
	return substitutionRegex.ReplaceAllStringFunc(value, func(match string) string {
		if match == "$$" {
			return "$"
		}
		name := strings.TrimPrefix(match, "$")
		name = strings.TrimPrefix(name, "{")
		name = strings.TrimSuffix(name, "}")
		if val, ok := vars[name]; ok {
			return val
		}
		return match
	})
}

func substituteMap(m, vars map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = substitute(v, vars)
	}
	return out
}
