package stack

import (
	"github.com/samaanhq/shipyard/internal/core/compose"
)

// =============================================================================
// Container Plan Building Functions
// =============================================================================

// BuildContainerPlanParams contains all inputs for building a container plan.
type BuildContainerPlanParams struct {
	AppID       string
	Service     compose.Service
	Variables   map[string]string
	NetworkName string
}

// BuildContainerPlan turns one compose service plus the app's runtime
// variables into a ContainerPlan the Docker layer can execute.
//
// The function:
//   - Generates the container name using ContainerName()
//   - Copies image, command, and entrypoint from the service
//   - Substitutes ${VAR} placeholders in environment values
//   - Prefixes named volumes with the app ID
//   - Maps the restart policy to Docker's names
//   - Stamps ownership labels, then layers service labels on top
func BuildContainerPlan(params BuildContainerPlanParams) ContainerPlan {
	svc := params.Service

	plan := ContainerPlan{
		Name:       ContainerName(params.AppID, svc.Name),
		Image:      svc.Image,
		Command:    svc.Command,
		Entrypoint: svc.Entrypoint,
		Env:        make(map[string]string),
		Labels: map[string]string{
			LabelManaged: "true",
			LabelApp:     params.AppID,
			LabelService: svc.Name,
		},
		Networks: []string{params.NetworkName},
	}

	for k, v := range svc.Environment {
		plan.Env[k] = SubstituteVariables(v, params.Variables)
	}

	for _, p := range svc.Ports {
		plan.Ports = append(plan.Ports, PortPlan{
			ContainerPort: int(p.Target),
			HostPort:      int(p.Published),
			Protocol:      p.Protocol,
			HostIP:        p.HostIP,
		})
	}

	for _, v := range svc.Volumes {
		source := v.Source
		// Named volumes get the app prefix; bind mounts pass through
		if v.Type == compose.VolumeMountTypeVolume {
			source = VolumeName(params.AppID, v.Source)
		}
		plan.Volumes = append(plan.Volumes, VolumePlan{
			Source:   source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}

	plan.RestartPolicy = mapRestartPolicy(svc.Restart)

	for k, v := range svc.Labels {
		plan.Labels[k] = v
	}

	return plan
}

// mapRestartPolicy maps a compose restart policy to Docker's policy name.
func mapRestartPolicy(policy compose.RestartPolicy) RestartPolicyPlan {
	switch policy {
	case compose.RestartAlways:
		return RestartPolicyPlan{Name: "always"}
	case compose.RestartOnFailure:
		return RestartPolicyPlan{Name: "on-failure"}
	case compose.RestartUnlessStopped:
		return RestartPolicyPlan{Name: "unless-stopped"}
	default:
		return RestartPolicyPlan{Name: "no"}
	}
}
