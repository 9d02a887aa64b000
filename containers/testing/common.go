// Package testing provides testcontainers-based container setup for this
// module's integration tests.
//
// Containers are ephemeral, get randomized host ports, and are torn down
// via the returned cleanup function.
//
// Integration tests using this package should use the integration build
// tag:
//
//	//go:build integration
package testing

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go"
)

// ContainerCleanup terminates a test container. Call it in defer.
type ContainerCleanup func()

func createCleanupFunc(ctx context.Context, container testcontainers.Container, containerType string) ContainerCleanup {
	return func() {
		if err := container.Terminate(ctx); err != nil {
			fmt.Printf("Warning: Failed to terminate %s container: %v\n", containerType, err)
		}
	}
}
