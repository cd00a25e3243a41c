package stack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samaanhq/shipyard/internal/core/compose"
)

func TestBuildContainerPlan_Full(t *testing.T) {
	svc := compose.Service{
		Name:  "app",
		Image: "registry.example.com/acme-food/calorie-counter:abc1234",
		Environment: map[string]string{
			"DB_HOST":     "db",
			"DB_PASSWORD": "${DB_PASSWORD}",
		},
		Ports: []compose.Port{
			{Target: 8501, Published: 8501, Protocol: "tcp"},
		},
		Volumes: []compose.VolumeMount{
			{Type: compose.VolumeMountTypeVolume, Source: "appdata", Target: "/data"},
			{Type: compose.VolumeMountTypeBind, Source: "/host/config", Target: "/config", ReadOnly: true},
		},
		Restart: compose.RestartUnlessStopped,
		Labels:  map[string]string{"team": "food"},
	}

	plan := BuildContainerPlan(BuildContainerPlanParams{
		AppID:       "app-1",
		Service:     svc,
		Variables:   map[string]string{"DB_PASSWORD": "hunter2"},
		NetworkName: NetworkName("app-1"),
	})

	assert.Equal(t, "shipyard_app-1_app", plan.Name)
	assert.Equal(t, svc.Image, plan.Image)
	assert.Equal(t, "hunter2", plan.Env["DB_PASSWORD"])
	assert.Equal(t, "db", plan.Env["DB_HOST"])

	require.Len(t, plan.Ports, 1)
	assert.Equal(t, 8501, plan.Ports[0].ContainerPort)

	require.Len(t, plan.Volumes, 2)
	assert.Equal(t, "shipyard_app-1_appdata", plan.Volumes[0].Source)
	assert.Equal(t, "/host/config", plan.Volumes[1].Source)
	assert.True(t, plan.Volumes[1].ReadOnly)

	assert.Equal(t, "unless-stopped", plan.RestartPolicy.Name)
	assert.Equal(t, []string{"shipyard_app-1"}, plan.Networks)

	assert.Equal(t, "true", plan.Labels[LabelManaged])
	assert.Equal(t, "app-1", plan.Labels[LabelApp])
	assert.Equal(t, "app", plan.Labels[LabelService])
	assert.Equal(t, "food", plan.Labels["team"])
}

func TestBuildContainerPlan_DefaultRestartPolicy(t *testing.T) {
	plan := BuildContainerPlan(BuildContainerPlanParams{
		AppID:   "app-1",
		Service: compose.Service{Name: "db", Image: "postgres:15"},
	})

	assert.Equal(t, "no", plan.RestartPolicy.Name)
}

func TestNaming(t *testing.T) {
	assert.Equal(t, "shipyard_a1", NetworkName("a1"))
	assert.Equal(t, "shipyard_a1_pgdata", VolumeName("a1", "pgdata"))
	assert.Equal(t, "shipyard_a1_db", ContainerName("a1", "db"))
}
