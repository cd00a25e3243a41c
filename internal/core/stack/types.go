// Package stack contains pure planning functions for running an app's
// orchestration spec: service ordering, resource naming, environment
// resolution, and container plans ready for the shell to execute.
package stack

// =============================================================================
// Container Plan Types
// =============================================================================

// ContainerPlan is a planned container configuration, the pure output the
// orchestrator hands to the Docker layer.
type ContainerPlan struct {
	Name          string
	Image         string
	Command       []string
	Entrypoint    []string
	Env           map[string]string
	Labels        map[string]string
	Ports         []PortPlan
	Volumes       []VolumePlan
	Networks      []string
	RestartPolicy RestartPolicyPlan
}

// PortPlan represents a planned port binding.
type PortPlan struct {
	ContainerPort int
	HostPort      int
	Protocol      string
	HostIP        string
}

// VolumePlan represents a planned volume mount.
type VolumePlan struct {
	Source   string
	Target   string
	ReadOnly bool
}

// RestartPolicyPlan represents a restart policy.
type RestartPolicyPlan struct {
	Name              string
	MaximumRetryCount int
}

// =============================================================================
// Container Labels
// =============================================================================

// Label keys stamped on every managed container, network, and volume so the
// orchestrator can find its own resources later.
const (
	LabelManaged = "com.shipyard.managed"
	LabelApp     = "com.shipyard.app"
	LabelService = "com.shipyard.service"
)
