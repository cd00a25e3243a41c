package imagespec

import (
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// Dockerfile Rendering
// =============================================================================

// RenderDockerfile renders a validated spec to Dockerfile text. Output is
// deterministic: env keys are emitted in sorted order so rendering the same
// spec twice produces byte-identical files and stable build caches.
func RenderDockerfile(spec *ImageSpec) string {
	var b strings.Builder

	fmt.Fprintf(&b, "FROM %s\n", spec.Base)

	if spec.Workdir != "" {
		fmt.Fprintf(&b, "\nWORKDIR %s\n", spec.Workdir)
	}

	if len(spec.Env) > 0 {
		b.WriteString("\n")
		keys := make([]string, 0, len(spec.Env))
		for k := range spec.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "ENV %s=%s\n", k, quoteIfNeeded(spec.Env[k]))
		}
	}

	if len(spec.Copy) > 0 {
		b.WriteString("\n")
		for _, entry := range spec.Copy {
			fmt.Fprintf(&b, "COPY %s %s\n", entry.Src, entry.Dest)
		}
	}

	if len(spec.Run) > 0 {
		b.WriteString("\n")
		for _, cmd := range spec.Run {
			fmt.Fprintf(&b, "RUN %s\n", cmd)
		}
	}

	if spec.Port > 0 {
		fmt.Fprintf(&b, "\nEXPOSE %d\n", spec.Port)
	}

	fmt.Fprintf(&b, "\nCMD %s\n", execForm(spec.Command))

	return b.String()
}

// execForm renders a command as a JSON array literal, the exec form of CMD.
func execForm(args []string) string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = `"` + strings.ReplaceAll(strings.ReplaceAll(arg, `\`, `\\`), `"`, `\"`) + `"`
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// quoteIfNeeded wraps an ENV value in double quotes when it contains
// whitespace.
func quoteIfNeeded(v string) string {
	if strings.ContainsAny(v, " \t") {
		return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return v
}
