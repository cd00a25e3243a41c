// Package lint cross-checks an app's three configuration artifacts against
// each other. This is part of the Functional Core - all functions are pure
// with no I/O; the caller supplies everything the checks need, including the
// names of secrets that exist.
package lint

import (
	"fmt"
	"strings"

	"github.com/samaanhq/shipyard/internal/core/compose"
	"github.com/samaanhq/shipyard/internal/core/imagespec"
	"github.com/samaanhq/shipyard/internal/core/pipeline"
)

// =============================================================================
// Findings
// =============================================================================

// Severity classifies a finding. Errors make the app undeployable; warnings
// flag configuration that runs but probably does not do what was meant.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one lint result.
type Finding struct {
	Severity Severity `json:"severity"`
	Artifact string   `json:"artifact"` // image, compose, pipeline, cross
	Code     string   `json:"code"`
	Message  string   `json:"message"`
}

// Report is the outcome of linting one app.
type Report struct {
	Findings []Finding `json:"findings"`
}

// OK reports whether the report contains no errors. Warnings do not fail a
// report.
func (r *Report) OK() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			return false
		}
	}
	return true
}

func (r *Report) addError(artifact, code, message string) {
	r.Findings = append(r.Findings, Finding{Severity: SeverityError, Artifact: artifact, Code: code, Message: message})
}

func (r *Report) addWarning(artifact, code, message string) {
	r.Findings = append(r.Findings, Finding{Severity: SeverityWarning, Artifact: artifact, Code: code, Message: message})
}

// =============================================================================
// Input
// =============================================================================

// Input carries the raw artifacts plus the environment facts the checks
// compare them against.
type Input struct {
	ImageSpecYAML string
	ComposeYAML   string
	PipelineYAML  string

	// KnownSecrets are the names present in the secret store.
	KnownSecrets []string

	// ImageRepo is the repository run tags are built under,
	// registry/project/slug. Empty skips the image reference check.
	ImageRepo string
}

// =============================================================================
// Lint
// =============================================================================

// Lint parses all three artifacts and runs every cross-artifact check that
// the successful parses allow. A parse failure in one artifact does not stop
// checks among the others.
func Lint(in Input) *Report {
	report := &Report{}

	var img *imagespec.ImageSpec
	var stack *compose.StackSpec
	var pipe *pipeline.Pipeline

	if in.ImageSpecYAML == "" {
		report.addError("image", "image-missing", "no image spec registered")
	} else {
		parsed, err := imagespec.ParseImageSpec(in.ImageSpecYAML)
		if err != nil {
			report.addError("image", "image-parse", err.Error())
		} else {
			img = parsed
		}
	}

	if in.ComposeYAML == "" {
		report.addError("compose", "compose-missing", "no orchestration spec registered")
	} else {
		parsed, err := compose.ParseStackSpec(in.ComposeYAML)
		if err != nil {
			report.addError("compose", "compose-parse", err.Error())
		} else {
			stack = parsed
		}
	}

	if in.PipelineYAML == "" {
		report.addError("pipeline", "pipeline-missing", "no pipeline registered")
	} else {
		parsed, err := pipeline.ParsePipeline(in.PipelineYAML)
		if err != nil {
			report.addError("pipeline", "pipeline-parse", err.Error())
		} else {
			pipe = parsed
		}
	}

	if pipe != nil {
		checkStepOrder(report, pipe)
		checkSubstitutionReferences(report, pipe)
		checkSecretsExist(report, pipe, in.KnownSecrets)
	}
	if img != nil && stack != nil {
		checkPortAlignment(report, img, stack)
	}
	if stack != nil && pipe != nil {
		checkVariableCoverage(report, in.ComposeYAML, stack, pipe)
		checkImageReference(report, in.ImageRepo, stack, pipe)
	}

	return report
}

// =============================================================================
// Checks
// =============================================================================

// checkStepOrder verifies build comes before push comes before deploy.
func checkStepOrder(report *Report, pipe *pipeline.Pipeline) {
	if err := pipeline.ValidateStepOrder(pipe); err != nil {
		report.addError("pipeline", "step-order", err.Error())
	}
}

// checkSubstitutionReferences verifies every $VAR reference resolves to a
// built-in or a declared substitution.
func checkSubstitutionReferences(report *Report, pipe *pipeline.Pipeline) {
	for _, name := range pipeline.ExtractReferences(pipe) {
		if pipeline.IsBuiltin(name) {
			continue
		}
		if _, declared := pipe.Substitutions[name]; !declared {
			report.addError("pipeline", "undeclared-substitution",
				fmt.Sprintf("variable %q is referenced but never declared", name))
		}
	}
}

// checkSecretsExist verifies every secret a deploy step maps in exists in
// the secret store.
func checkSecretsExist(report *Report, pipe *pipeline.Pipeline, known []string) {
	knownSet := make(map[string]bool, len(known))
	for _, name := range known {
		knownSet[name] = true
	}

	for _, name := range pipe.SecretNames() {
		if !knownSet[name] {
			report.addError("cross", "unknown-secret",
				fmt.Sprintf("pipeline references secret %q which does not exist", name))
		}
	}
}

// checkPortAlignment verifies the port the image exposes is the port some
// service publishes. A mismatch means the app builds and starts but nothing
// routes to it.
func checkPortAlignment(report *Report, img *imagespec.ImageSpec, stack *compose.StackSpec) {
	if img.Port == 0 {
		return
	}

	for _, svc := range stack.Services {
		for _, port := range svc.Ports {
			if int(port.Target) == img.Port {
				return
			}
		}
	}

	report.addError("cross", "port-mismatch",
		fmt.Sprintf("image exposes port %d but no service publishes it", img.Port))
}

// checkImageReference verifies some service actually runs what the pipeline
// builds. Run tags are <repo>:<commit>, so a service referencing the repo
// under any tag counts, as does a ${VAR} placeholder resolved at stack-up
// time.
func checkImageReference(report *Report, imageRepo string, stack *compose.StackSpec, pipe *pipeline.Pipeline) {
	if imageRepo == "" || !hasBuildStep(pipe) {
		return
	}

	for _, svc := range stack.Services {
		if strings.Contains(svc.Image, "${") {
			return
		}
		if svc.Image == imageRepo || strings.HasPrefix(svc.Image, imageRepo+":") {
			return
		}
	}

	report.addError("cross", "image-unreferenced",
		fmt.Sprintf("pipeline builds %s but no service references it", imageRepo))
}

func hasBuildStep(pipe *pipeline.Pipeline) bool {
	for _, step := range pipe.Steps {
		if step.Action == pipeline.ActionBuild {
			return true
		}
	}
	return false
}

// checkVariableCoverage verifies every ${VAR} the orchestration spec uses is
// supplied somewhere: a default in the spec itself, or an env or secret
// mapping on the deploy step. Uncovered variables resolve to nothing at
// stack-up time, so they warn rather than error.
func checkVariableCoverage(report *Report, composeYAML string, stack *compose.StackSpec, pipe *pipeline.Pipeline) {
	covered := make(map[string]bool)
	if deploy := pipe.DeployStep(); deploy != nil {
		for envName := range deploy.Env {
			covered[envName] = true
		}
		for envName := range deploy.Secrets {
			covered[envName] = true
		}
	}

	for _, name := range compose.ExtractVariables(stack) {
		if covered[name] || compose.HasDefault(composeYAML, name) {
			continue
		}
		report.addWarning("cross", "uncovered-variable",
			fmt.Sprintf("variable ${%s} has no default and no deploy-time value", name))
	}
}
