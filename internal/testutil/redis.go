// Package testutil holds blackboard fixtures shared by package tests.
package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/copse/pkg/blackboard"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// TestInstance is the instance name used by every fixture.
const TestInstance = "test-instance"

// NewBlackboard returns a Redis-backed blackboard on a fresh miniredis.
// Both are closed when the test ends.
func NewBlackboard(t *testing.T) (*blackboard.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client, err := blackboard.NewClient(&redis.Options{Addr: mr.Addr()}, TestInstance)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

// WaitForSubscribers reports whether channel has at least n subscribers.
// Use it with require.Eventually before publishing.
func WaitForSubscribers(mr *miniredis.Miniredis, channel string, n int) func() bool {
	return func() bool {
		return mr.PubSubNumSub(channel)[channel] >= n
	}
}
