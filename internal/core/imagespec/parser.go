package imagespec

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envKeyRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// =============================================================================
// Parser Functions
// =============================================================================

// ParseImageSpec parses an image spec YAML document and validates it.
// This is a pure function - no I/O, no side effects.
func ParseImageSpec(yamlContent string) (*ImageSpec, error) {
	if strings.TrimSpace(yamlContent) == "" {
		return nil, ErrEmptyInput
	}

	var spec ImageSpec
	dec := yaml.NewDecoder(strings.NewReader(yamlContent))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, NewSpecError("", err.Error(), ErrInvalidYAML)
	}

	if err := validateSpec(&spec); err != nil {
		return nil, err
	}

	return &spec, nil
}

// validateSpec checks required fields and path safety.
func validateSpec(spec *ImageSpec) error {
	if spec.Base == "" {
		return NewSpecError("base", "base image is required", ErrBaseRequired)
	}
	if len(spec.Command) == 0 {
		return NewSpecError("command", "command is required", ErrCommandRequired)
	}
	if spec.Port < 0 || spec.Port > 65535 {
		return NewSpecError("port", fmt.Sprintf("port %d out of range", spec.Port), ErrInvalidPort)
	}

	for i, entry := range spec.Copy {
		field := fmt.Sprintf("copy[%d]", i)
		if entry.Src == "" || entry.Dest == "" {
			return NewSpecError(field, "copy entry must have src and dest", ErrInvalidCopyEntry)
		}
		if escapesContext(entry.Src) {
			return NewSpecError(field+".src", "source escapes the build context", ErrUnsafePath)
		}
	}

	for key := range spec.Env {
		if !envKeyRegex.MatchString(key) {
			return NewSpecError("env."+key, "invalid environment variable name", ErrInvalidEnvKey)
		}
	}

	return nil
}

// escapesContext reports whether a relative path climbs out of the build
// context via .. segments or an absolute prefix.
func escapesContext(p string) bool {
	if strings.HasPrefix(p, "/") {
		return true
	}
	clean := path.Clean(p)
	return clean == ".." || strings.HasPrefix(clean, "../")
}
