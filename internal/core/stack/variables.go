package stack

import "regexp"

// =============================================================================
// Variable Substitution Functions
// =============================================================================

// varPlaceholderRegex matches ${VAR} and ${VAR:-default} patterns.
// Groups:
//   - Group 1: Variable name (required)
//   - Group 2: Default value (optional, after :-)
var varPlaceholderRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// SubstituteVariables replaces ${VAR} and ${VAR:-default} placeholders with
// values from the variables map.
//
// Behavior:
//   - ${VAR} - replaced with variables["VAR"] if present, otherwise kept as-is
//   - ${VAR:-default} - replaced with variables["VAR"] if present, otherwise "default"
//   - Text without placeholders is left unchanged
//
// An unknown ${VAR} with no default stays in place verbatim so the container
// environment makes the gap visible instead of silently going empty.
func SubstituteVariables(value string, variables map[string]string) string {
	if variables == nil {
		variables = make(map[string]string)
	}

	return varPlaceholderRegex.ReplaceAllStringFunc(value, func(match string) string {
		submatch := varPlaceholderRegex.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}

		name := submatch[1]
		if val, ok := variables[name]; ok {
			return val
		}

		// ${VAR:-default} falls back to the default, including an empty one
		if hasDefaultMarker(match, name) {
			return submatch[2]
		}

		return match
	})
}

// hasDefaultMarker reports whether the matched placeholder carries a :-
// default clause. ${VAR:-} is longer than ${VAR} by exactly the marker.
func hasDefaultMarker(match, name string) bool {
	return len(match) > len(name)+3 && match[len(name)+2] == ':'
}

// ResolveEnvironment substitutes every value in env, layering variables from
// lowest to highest precedence: env file values first, then runtime values.
func ResolveEnvironment(env map[string]string, fileVars, runtimeVars map[string]string) map[string]string {
	merged := make(map[string]string, len(fileVars)+len(runtimeVars))
	for k, v := range fileVars {
		merged[k] = v
	}
	for k, v := range runtimeVars {
		merged[k] = v
	}

	resolved := make(map[string]string, len(env))
	for k, v := range env {
		resolved[k] = SubstituteVariables(v, merged)
	}
	return resolved
}
