package docker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samaanhq/shipyard/internal/core/compose"
	"github.com/samaanhq/shipyard/internal/core/domain"
	"github.com/samaanhq/shipyard/internal/core/stack"
)

// =============================================================================
// Orchestrator - Manages Stack Lifecycle
// =============================================================================

// Orchestrator brings app stacks up and down using Docker.
type Orchestrator struct {
	docker Client
	logger *slog.Logger
	envDir string // Base directory for resolving relative env_file paths
}

// NewOrchestrator creates a new orchestrator.
// envDir is the base directory for resolving relative env_file paths.
func NewOrchestrator(docker Client, logger *slog.Logger, envDir string) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if envDir == "" {
		envDir = "."
	}
	return &Orchestrator{
		docker: docker,
		logger: logger,
		envDir: envDir,
	}
}

// =============================================================================
// Up Stack
// =============================================================================

// UpStack creates and starts all containers for an app's stack.
// Services start in dependency order; a dependency only gates when its
// dependents start, nothing waits for readiness.
func (o *Orchestrator) UpStack(ctx context.Context, appID string, spec *compose.StackSpec, variables map[string]string) ([]domain.ServiceInfo, error) {
	o.logger.Info("bringing stack up",
		"app_id", appID,
		"services", len(spec.Services),
	)

	// 1. Create the app network
	networkName := stack.NetworkName(appID)
	networkID, err := o.createStackNetwork(appID, networkName)
	if err != nil {
		return nil, fmt.Errorf("failed to create network: %w", err)
	}
	o.logger.Debug("created network", "network_id", networkID, "network_name", networkName)

	// 2. Create named volumes
	for _, vol := range spec.Volumes {
		if vol.External {
			continue
		}
		volumeName := stack.VolumeName(appID, vol.Name)
		if _, err := o.createStackVolume(appID, volumeName); err != nil {
			_ = o.docker.RemoveNetwork(networkID)
			return nil, fmt.Errorf("failed to create volume %s: %w", vol.Name, err)
		}
		o.logger.Debug("created volume", "volume_name", volumeName)
	}

	// 3. Pull images that are missing locally
	for _, svc := range spec.Services {
		exists, _ := o.docker.ImageExists(svc.Image)
		if !exists {
			o.logger.Info("pulling image", "image", svc.Image)
			if err := o.docker.PullImage(svc.Image, PullOptions{}); err != nil {
				o.logger.Warn("failed to pull image, trying anyway", "image", svc.Image, "error", err)
			}
		}
	}

	// 4. Find existing containers (restart case)
	existingContainers, err := o.docker.ListContainers(ListOptions{
		All: true,
		Filters: map[string]string{
			"label": fmt.Sprintf("%s=%s", stack.LabelApp, appID),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	existingByService := make(map[string]ContainerInfo)
	for _, c := range existingContainers {
		if svc, ok := c.Labels[stack.LabelService]; ok {
			existingByService[svc] = c
		}
	}

	// 5. Create and start containers in dependency order
	var services []domain.ServiceInfo
	createdContainers := make(map[string]string) // serviceName -> containerID

	for _, svc := range stack.StartOrder(spec.Services) {
		fileVars, err := o.readEnvFiles(svc.EnvFiles)
		if err != nil {
			o.cleanupCreatedContainers(createdContainers)
			_ = o.docker.RemoveNetwork(networkID)
			return nil, fmt.Errorf("failed to read env files for %s: %w", svc.Name, err)
		}

		var containerID string

		if existing, found := existingByService[svc.Name]; found {
			containerID = existing.ID
			o.logger.Debug("using existing container", "service", svc.Name, "container_id", shortID(containerID))
		} else {
			plan := stack.BuildContainerPlan(stack.BuildContainerPlanParams{
				AppID:       appID,
				Service:     svc,
				Variables:   mergeVars(fileVars, variables),
				NetworkName: networkName,
			})

			containerID, err = o.docker.CreateContainer(planToSpec(plan, svc.Name, networkName))
			if err != nil {
				o.cleanupCreatedContainers(createdContainers)
				_ = o.docker.RemoveNetwork(networkID)
				return nil, fmt.Errorf("failed to create container %s: %w", svc.Name, err)
			}
			o.logger.Debug("created container", "service", svc.Name, "container_id", shortID(containerID))
		}

		createdContainers[svc.Name] = containerID

		if err := o.docker.StartContainer(containerID); err != nil {
			if !strings.Contains(err.Error(), "is already running") {
				o.cleanupCreatedContainers(createdContainers)
				_ = o.docker.RemoveNetwork(networkID)
				return nil, fmt.Errorf("failed to start container %s: %w", svc.Name, err)
			}
		}
		o.logger.Debug("started container", "service", svc.Name, "container_id", shortID(containerID))

		info, err := o.docker.InspectContainer(containerID)
		if err != nil {
			o.cleanupCreatedContainers(createdContainers)
			_ = o.docker.RemoveNetwork(networkID)
			return nil, fmt.Errorf("failed to inspect container %s: %w", svc.Name, err)
		}

		services = append(services, domain.ServiceInfo{
			ContainerID: info.ID,
			ServiceName: svc.Name,
			Image:       svc.Image,
			State:       info.State,
		})
	}

	o.logger.Info("stack is up",
		"app_id", appID,
		"containers", len(services),
	)

	return services, nil
}

// =============================================================================
// Down Stack
// =============================================================================

// DownStack stops and removes all containers and the network for an app.
// Named volumes are preserved so data survives a restart; pass removeVolumes
// to delete them too.
func (o *Orchestrator) DownStack(ctx context.Context, appID string, spec *compose.StackSpec, removeVolumes bool) error {
	o.logger.Info("bringing stack down", "app_id", appID)

	containers, err := o.docker.ListContainers(ListOptions{
		All: true,
		Filters: map[string]string{
			"label": fmt.Sprintf("%s=%s", stack.LabelApp, appID),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}

	// Stop dependents before the services they depend on
	byService := make(map[string]ContainerInfo)
	for _, c := range containers {
		if svc, ok := c.Labels[stack.LabelService]; ok {
			byService[svc] = c
		}
	}

	timeout := 10 * time.Second
	for _, svc := range stack.StopOrder(spec.Services) {
		c, found := byService[svc.Name]
		if !found {
			continue
		}
		if c.Status == ContainerStatusRunning {
			o.logger.Debug("stopping container", "container_id", shortID(c.ID), "service", svc.Name)
			if err := o.docker.StopContainer(c.ID, &timeout); err != nil {
				o.logger.Warn("failed to stop container", "container_id", shortID(c.ID), "error", err)
			}
		}
		if err := o.docker.RemoveContainer(c.ID, RemoveOptions{Force: true, RemoveVolumes: false}); err != nil {
			o.logger.Warn("failed to remove container", "container_id", shortID(c.ID), "error", err)
		}
		delete(byService, svc.Name)
	}

	// Remove stragglers that are no longer in the spec
	for svc, c := range byService {
		if c.Status == ContainerStatusRunning {
			_ = o.docker.StopContainer(c.ID, &timeout)
		}
		if err := o.docker.RemoveContainer(c.ID, RemoveOptions{Force: true, RemoveVolumes: false}); err != nil {
			o.logger.Warn("failed to remove container", "container_id", shortID(c.ID), "service", svc, "error", err)
		}
	}

	networkName := stack.NetworkName(appID)
	if err := o.docker.RemoveNetwork(networkName); err != nil {
		o.logger.Warn("failed to remove network", "network", networkName, "error", err)
	} else {
		o.logger.Debug("removed network", "network", networkName)
	}

	if removeVolumes {
		for _, vol := range spec.Volumes {
			if vol.External {
				continue
			}
			volumeName := stack.VolumeName(appID, vol.Name)
			if err := o.docker.RemoveVolume(volumeName, false); err != nil {
				o.logger.Warn("failed to remove volume", "volume", volumeName, "error", err)
			}
		}
	}

	o.logger.Info("stack is down", "app_id", appID)
	return nil
}

// =============================================================================
// Stack Services
// =============================================================================

// StackServices returns the current containers for an app's stack.
func (o *Orchestrator) StackServices(ctx context.Context, appID string) ([]domain.ServiceInfo, error) {
	containers, err := o.docker.ListContainers(ListOptions{
		All: true,
		Filters: map[string]string{
			"label": fmt.Sprintf("%s=%s", stack.LabelApp, appID),
		},
	})
	if err != nil {
		return nil, err
	}

	var result []domain.ServiceInfo
	for _, c := range containers {
		serviceName := c.Labels[stack.LabelService]
		if serviceName == "" {
			// Fall back to the container name suffix
			parts := strings.Split(c.Name, "_")
			if len(parts) >= 3 {
				serviceName = parts[len(parts)-1]
			}
		}

		result = append(result, domain.ServiceInfo{
			ContainerID: c.ID,
			ServiceName: serviceName,
			Image:       c.Image,
			State:       c.State,
		})
	}

	return result, nil
}

// ServiceLogs returns logs for one container in a stack.
func (o *Orchestrator) ServiceLogs(ctx context.Context, containerID string, tail string) (string, error) {
	reader, err := o.docker.ContainerLogs(containerID, LogOptions{
		Tail:       tail,
		Timestamps: true,
	})
	if err != nil {
		return "", err
	}
	defer reader.Close()

	buf := make([]byte, 64*1024)
	n, _ := reader.Read(buf)
	return string(buf[:n]), nil
}

// =============================================================================
// Helper Methods
// =============================================================================

// createStackNetwork creates a network for an app or reuses the existing one.
func (o *Orchestrator) createStackNetwork(appID, networkName string) (string, error) {
	networkID, err := o.docker.CreateNetwork(NetworkSpec{
		Name:   networkName,
		Driver: "bridge",
		Labels: map[string]string{
			stack.LabelManaged: "true",
			stack.LabelApp:     appID,
		},
	})
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			o.logger.Debug("network already exists, reusing", "network_name", networkName)
			// Docker accepts name or ID
			return networkName, nil
		}
		return "", err
	}
	return networkID, nil
}

// createStackVolume creates a volume for an app or reuses the existing one.
func (o *Orchestrator) createStackVolume(appID, volumeName string) (string, error) {
	volID, err := o.docker.CreateVolume(VolumeSpec{
		Name: volumeName,
		Labels: map[string]string{
			stack.LabelManaged: "true",
			stack.LabelApp:     appID,
		},
	})
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			o.logger.Debug("volume already exists, reusing", "volume_name", volumeName)
			return volumeName, nil
		}
		return "", err
	}
	return volID, nil
}

// planToSpec converts a pure container plan into a Docker container spec.
// The service name becomes a network alias so services reach each other by
// the names used in the orchestration spec.
func planToSpec(plan stack.ContainerPlan, serviceName, networkName string) ContainerSpec {
	spec := ContainerSpec{
		Name:       plan.Name,
		Image:      plan.Image,
		Command:    plan.Command,
		Entrypoint: plan.Entrypoint,
		Env:        plan.Env,
		Labels:     plan.Labels,
		Networks:   plan.Networks,
		NetworkAliases: map[string][]string{
			networkName: {serviceName},
		},
		RestartPolicy: RestartPolicy{
			Name:              plan.RestartPolicy.Name,
			MaximumRetryCount: plan.RestartPolicy.MaximumRetryCount,
		},
	}

	for _, p := range plan.Ports {
		spec.Ports = append(spec.Ports, PortBinding{
			ContainerPort: p.ContainerPort,
			HostPort:      p.HostPort,
			Protocol:      p.Protocol,
			HostIP:        p.HostIP,
		})
	}

	for _, v := range plan.Volumes {
		spec.Volumes = append(spec.Volumes, VolumeMount{
			Source:   v.Source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}

	return spec
}

// cleanupCreatedContainers stops and removes all created containers.
func (o *Orchestrator) cleanupCreatedContainers(containers map[string]string) {
	timeout := 5 * time.Second
	for name, id := range containers {
		_ = o.docker.StopContainer(id, &timeout)
		_ = o.docker.RemoveContainer(id, RemoveOptions{Force: true})
		o.logger.Debug("cleaned up container", "service", name, "container_id", shortID(id))
	}
}

// readEnvFiles reads and merges env files in order; later files win.
// Relative paths resolve against the orchestrator's env directory.
func (o *Orchestrator) readEnvFiles(paths []string) (map[string]string, error) {
	vars := make(map[string]string)

	for _, p := range paths {
		path := p
		if !filepath.IsAbs(path) {
			path = filepath.Join(o.envDir, path)
		}

		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open env file %s: %w", p, err)
		}

		fileVars, err := parseEnvFile(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to parse env file %s: %w", p, err)
		}

		for k, v := range fileVars {
			vars[k] = v
		}
	}

	return vars, nil
}

// parseEnvFile parses KEY=VALUE lines. Blank lines and # comments are
// skipped; surrounding single or double quotes on values are stripped.
func parseEnvFile(r io.Reader) (map[string]string, error) {
	vars := make(map[string]string)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		if key != "" {
			vars[key] = value
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return vars, nil
}

// mergeVars layers runtime variables over env file variables.
func mergeVars(fileVars, runtimeVars map[string]string) map[string]string {
	merged := make(map[string]string, len(fileVars)+len(runtimeVars))
	for k, v := range fileVars {
		merged[k] = v
	}
	for k, v := range runtimeVars {
		merged[k] = v
	}
	return merged
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
