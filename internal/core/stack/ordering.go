package stack

import (
	"sort"

	"github.com/samaanhq/shipyard/internal/core/compose"
)

// =============================================================================
// Service Ordering Functions
// =============================================================================

// StartOrder sorts services so that every service comes after everything it
// depends on, using Kahn's algorithm. A dependency only gates when its
// dependents start; nothing here waits for readiness.
//
// Ties are broken by name so the order is deterministic. Cycles are rejected
// at parse time; if one slips through, the remaining services are appended
// at the end as a fallback.
func StartOrder(services []compose.Service) []compose.Service {
	if len(services) == 0 {
		return services
	}

	serviceMap := make(map[string]compose.Service, len(services))
	inDegree := make(map[string]int, len(services))
	dependents := make(map[string][]string)

	for _, svc := range services {
		serviceMap[svc.Name] = svc
		inDegree[svc.Name] = len(svc.DependsOn)
		for _, dep := range svc.DependsOn {
			dependents[dep] = append(dependents[dep], svc.Name)
		}
	}

	var queue []string
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	result := make([]compose.Service, 0, len(services))
	processed := make(map[string]bool, len(services))

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		result = append(result, serviceMap[name])
		processed[name] = true

		var freed []string
		for _, dependent := range dependents[name] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				freed = append(freed, dependent)
			}
		}
		sort.Strings(freed)
		queue = append(queue, freed...)
	}

	// Cycle fallback: emit whatever remains in name order
	if len(result) < len(services) {
		var remaining []string
		for _, svc := range services {
			if !processed[svc.Name] {
				remaining = append(remaining, svc.Name)
			}
		}
		sort.Strings(remaining)
		for _, name := range remaining {
			result = append(result, serviceMap[name])
		}
	}

	return result
}

// StopOrder is the reverse of StartOrder: dependents stop before the
// services they depend on.
func StopOrder(services []compose.Service) []compose.Service {
	ordered := StartOrder(services)
	reversed := make([]compose.Service, len(ordered))
	for i, svc := range ordered {
		reversed[len(ordered)-1-i] = svc
	}
	return reversed
}
