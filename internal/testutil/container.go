//go:build integration

package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/dyluth/copse/pkg/blackboard"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// StartRedis runs a real Redis in a container and returns its URL. The
// container is terminated when the test ends.
func StartRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start Redis container")
	t.Cleanup(func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	host, err := redisC.Host(ctx)
	require.NoError(t, err)
	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("redis://%s:%s", host, port.Port())
}

// NewContainerBlackboard connects a blackboard client to a fresh Redis container.
func NewContainerBlackboard(t *testing.T) *blackboard.Client {
	t.Helper()
	opts, err := redis.ParseURL(StartRedis(t))
	require.NoError(t, err)

	client, err := blackboard.NewClient(opts, TestInstance)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}
