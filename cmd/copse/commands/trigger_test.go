package commands

import (
	"context"
	"testing"
	"time"

	"github.com/dyluth/copse/internal/config"
	"github.com/dyluth/copse/internal/orchestrator"
	"github.com/dyluth/copse/internal/testutil"
	"github.com/dyluth/copse/internal/tree"
	"github.com/dyluth/copse/pkg/blackboard"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrigger_UnknownCoordinator(t *testing.T) {
	_, mr := testutil.NewBlackboard(t)
	path := redisConfig(t, mr.Addr())

	_, stderr, err := execute(t, "trigger", "deploy", "--config", path)
	require.Error(t, err)
	assert.Contains(t, stderr, "unknown coordinator 'deploy'")
}

func TestTrigger_WaitsForServedRun(t *testing.T) {
	client, mr := testutil.NewBlackboard(t)
	path := redisConfig(t, mr.Addr())

	cfg, err := config.Load(path)
	require.NoError(t, err)
	tr, err := tree.Build(cfg, client, tree.Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- orchestrator.NewEngine(cfg.Instance, client, tr, nil, zerolog.Nop()).Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, testutil.WaitForSubscribers(mr, blackboard.TriggerEventsChannel(testutil.TestInstance), 1),
		2*time.Second, 10*time.Millisecond)

	stdout, _, err := execute(t, "trigger", "build", "--config", path, "--wait", "--timeout", "5s")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Triggered build")
	assert.Contains(t, stdout, "build success")
}

func TestWatch_FinishedRecord(t *testing.T) {
	client, mr := testutil.NewBlackboard(t)
	path := redisConfig(t, mr.Addr())

	require.NoError(t, client.PutRecord(context.Background(), "build", &blackboard.Record{
		RunID:        uuid.New().String(),
		Kind:         blackboard.KindParallel,
		Status:       blackboard.StatusFailure,
		Summary:      "all_success: succeeded [0], failed [1] of 2",
		CurrentIndex: -1,
		UpdatedAtMs:  time.Now().UnixMilli(),
	}))

	stdout, _, err := execute(t, "watch", "build", "--config", path, "--timeout", "1s")
	require.ErrorIs(t, err, errRunFailed)
	assert.Contains(t, stdout, "failure all_success: succeeded [0], failed [1] of 2")
}
