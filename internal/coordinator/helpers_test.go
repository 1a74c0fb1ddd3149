package coordinator_test

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/copse/internal/coordinator"
	"github.com/dyluth/copse/pkg/blackboard"
	"github.com/golang/mock/gomock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// setupRedis creates a blackboard client connected to a miniredis instance
func setupRedis(t *testing.T) (*blackboard.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client, err := blackboard.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

// recorder is a Dispatcher that remembers every routed work item.
type recorder struct {
	mu    sync.Mutex
	calls int
	items []*coordinator.WorkItem
}

func (r *recorder) Dispatch(_ context.Context, outputs []*coordinator.WorkItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	for _, item := range outputs {
		if item != nil {
			r.items = append(r.items, item)
		}
	}
	return nil
}

func (r *recorder) dispatched() []*coordinator.WorkItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*coordinator.WorkItem(nil), r.items...)
}

func (r *recorder) last(t *testing.T) *coordinator.WorkItem {
	t.Helper()
	items := r.dispatched()
	require.NotEmpty(t, items, "nothing dispatched")
	return items[len(items)-1]
}

// report plays the child side for item.
func report(t *testing.T, store blackboard.Store, item *coordinator.WorkItem, status blackboard.Status) {
	t.Helper()
	require.NoError(t, blackboard.Report(context.Background(), store, item.Reply, status))
}

// tick drives one manual poll and returns whether the coordinator went idle.
func tick(t *testing.T, c coordinator.Coordinator) bool {
	t.Helper()
	done, err := c.Tick(context.Background())
	require.NoError(t, err)
	return done
}

func getRecord(t *testing.T, store blackboard.Store, key string) *blackboard.Record {
	t.Helper()
	rec, err := store.GetRecord(context.Background(), key)
	require.NoError(t, err)
	return rec
}

// fillMatcher matches an Indicator by colour.
type fillMatcher struct {
	fill coordinator.Fill
}

func (m fillMatcher) Matches(x interface{}) bool {
	ind, ok := x.(coordinator.Indicator)
	return ok && ind.Fill == m.fill
}

func (m fillMatcher) String() string {
	return "indicator with fill " + string(m.fill)
}

var _ gomock.Matcher = fillMatcher{}
