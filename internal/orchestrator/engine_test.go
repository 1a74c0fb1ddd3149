package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dyluth/copse/internal/config"
	"github.com/dyluth/copse/internal/testutil"
	"github.com/dyluth/copse/internal/tree"
	"github.com/dyluth/copse/pkg/blackboard"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const engineTree = `version: "1.0"
poll_interval: 20ms
coordinators:
  build:
    kind: parallel
    signal_key: build-done
    children:
      - script: [success]
      - script: [success]
`

func buildTree(t *testing.T, store blackboard.Store) *tree.Tree {
	t.Helper()
	path := filepath.Join(t.TempDir(), "copse.yml")
	require.NoError(t, os.WriteFile(path, []byte(engineTree), 0644))
	cfg, err := config.Load(path)
	require.NoError(t, err)

	tr, err := tree.Build(cfg, store, tree.Options{})
	require.NoError(t, err)
	return tr
}

func TestEngine_TriggerStartsRun(t *testing.T) {
	client, mr := testutil.NewBlackboard(t)
	tr := buildTree(t, client)

	var logs bytes.Buffer
	engine := NewEngine(testutil.TestInstance, client, tr, nil, zerolog.New(&logs))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	require.Eventually(t, testutil.WaitForSubscribers(mr, blackboard.TriggerEventsChannel(testutil.TestInstance), 1),
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.PublishTrigger(context.Background(), &blackboard.TriggerEvent{
		Coordinator:   "build",
		Payload:       "from-trigger",
		RequestedAtMs: time.Now().UnixMilli(),
	}))

	require.Eventually(t, func() bool {
		signal, err := client.GetSignal(context.Background(), "build-done")
		return err == nil && signal == blackboard.StatusSuccess
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Contains(t, logs.String(), `"event_type":"trigger_received"`)
}

func TestEngine_UnknownCoordinatorIsLogged(t *testing.T) {
	client, mr := testutil.NewBlackboard(t)
	tr := buildTree(t, client)

	var logs syncBuffer
	engine := NewEngine(testutil.TestInstance, client, tr, nil, zerolog.New(&logs))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	require.Eventually(t, testutil.WaitForSubscribers(mr, blackboard.TriggerEventsChannel(testutil.TestInstance), 1),
		2*time.Second, 10*time.Millisecond)
	require.NoError(t, client.PublishTrigger(context.Background(), &blackboard.TriggerEvent{Coordinator: "nope"}))

	require.Eventually(t, func() bool {
		return bytes.Contains(logs.Bytes(), []byte(`"event_type":"trigger_rejected"`))
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

type failingTriggers struct{}

func (failingTriggers) SubscribeTriggers(context.Context) (*blackboard.TriggerSubscription, error) {
	return nil, errors.New("redis down")
}

func TestEngine_SubscribeFailure(t *testing.T) {
	tr := buildTree(t, blackboard.NewMemory())
	engine := NewEngine("x", failingTriggers{}, tr, nil, zerolog.Nop())

	err := engine.Run(context.Background())
	assert.ErrorContains(t, err, "failed to subscribe to trigger events")
}

// syncBuffer is a bytes.Buffer safe for a concurrent writer and reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}
