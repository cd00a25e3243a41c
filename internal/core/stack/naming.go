package stack

import "fmt"

// =============================================================================
// Resource Naming Functions
// =============================================================================

// NetworkName generates the network name for an app's stack.
// Pattern: shipyard_{appID}
func NetworkName(appID string) string {
	return fmt.Sprintf("shipyard_%s", appID)
}

// VolumeName generates the name for a named volume in an app's stack.
// Pattern: shipyard_{appID}_{volumeName}
//
// Prefixing keeps two apps that both declare a "pgdata" volume from sharing
// storage.
func VolumeName(appID, volumeName string) string {
	return fmt.Sprintf("shipyard_%s_%s", appID, volumeName)
}

// ContainerName generates the container name for a service in an app's stack.
// Pattern: shipyard_{appID}_{serviceName}
func ContainerName(appID, serviceName string) string {
	return fmt.Sprintf("shipyard_%s_%s", appID, serviceName)
}
