package coordinator_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dyluth/copse/internal/coordinator"
	"github.com/dyluth/copse/internal/coordinator/mocks"
	apperrors "github.com/dyluth/copse/internal/errors"
	"github.com/dyluth/copse/pkg/blackboard"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newParallel(t *testing.T, store blackboard.Store, d coordinator.Dispatcher, cfg coordinator.Config, opts ...coordinator.Option) *coordinator.Parallel {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "par"
	}
	p, err := coordinator.NewParallel(cfg, store, d, append(opts, coordinator.WithManualTicks())...)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestParallelDispatchesEverySlot(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := mocks.NewMockDispatcher(ctrl)
	store := blackboard.NewMemory()

	d.EXPECT().Dispatch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, outputs []*coordinator.WorkItem) error {
			require.Len(t, outputs, 3)
			for i, item := range outputs {
				require.NotNil(t, item)
				assert.Equal(t, i, item.SlotIndex)
				assert.Equal(t, "payload", item.Payload)
				assert.Equal(t, blackboard.ReplySlot, item.Reply.Mode)
				assert.Equal(t, "par", item.Reply.RecordKey)
				assert.Equal(t, i, item.Reply.Index)
				assert.Equal(t, item.RunID, item.Reply.RunID)
			}
			return nil
		}).Times(1)

	p := newParallel(t, store, d, coordinator.Config{Outputs: 3})
	run, err := p.Trigger(context.Background(), "payload")
	require.NoError(t, err)

	rec := getRecord(t, store, "par")
	assert.Equal(t, run.ID, rec.RunID)
	assert.Equal(t, blackboard.StatusRunning, rec.Status)
	assert.Equal(t, []blackboard.Status{
		blackboard.StatusRunning, blackboard.StatusRunning, blackboard.StatusRunning,
	}, rec.ChildStatuses)
	assert.Equal(t, run, p.Active())
}

func TestParallelAnySuccessCompletesOnFirstSuccess(t *testing.T) {
	store := blackboard.NewMemory()
	d := &recorder{}
	p := newParallel(t, store, d, coordinator.Config{Outputs: 3, Completion: coordinator.AnySuccess})

	run, err := p.Trigger(context.Background(), "")
	require.NoError(t, err)
	items := d.dispatched()

	report(t, store, items[0], blackboard.StatusFailure)
	assert.False(t, tick(t, p), "one failure must not finish any_success")

	report(t, store, items[1], blackboard.StatusSuccess)
	assert.True(t, tick(t, p))

	res := run.Result()
	require.NotNil(t, res)
	assert.Equal(t, blackboard.StatusSuccess, res.Status)
	assert.Contains(t, res.Summary, "succeeded [1]")
	assert.Contains(t, res.Summary, "failed [0]")

	rec := getRecord(t, store, "par")
	assert.Equal(t, blackboard.StatusSuccess, rec.Status)
	assert.Equal(t, []blackboard.Status{blackboard.StatusFailure, blackboard.StatusSuccess, blackboard.StatusRunning}, rec.ChildStatuses)
	assert.Equal(t, []int{1}, rec.SuccessIndices)
	assert.Equal(t, []int{0}, rec.FailureIndices)
	assert.Nil(t, p.Active())
}

func TestParallelAnySuccessFailsOnlyWhenAllFail(t *testing.T) {
	store := blackboard.NewMemory()
	d := &recorder{}
	p := newParallel(t, store, d, coordinator.Config{Outputs: 3, Completion: coordinator.AnySuccess})

	_, err := p.Trigger(context.Background(), "")
	require.NoError(t, err)
	items := d.dispatched()

	report(t, store, items[0], blackboard.StatusFailure)
	report(t, store, items[2], blackboard.StatusFailure)
	assert.False(t, tick(t, p))

	report(t, store, items[1], blackboard.StatusFailure)
	assert.True(t, tick(t, p))
	assert.Equal(t, blackboard.StatusFailure, p.Last().Status)
}

func TestParallelAllSuccessFailsFast(t *testing.T) {
	store := blackboard.NewMemory()
	d := &recorder{}
	p := newParallel(t, store, d, coordinator.Config{Outputs: 3, SignalKey: "par-done"})

	_, err := p.Trigger(context.Background(), "")
	require.NoError(t, err)

	sig, err := store.GetSignal(context.Background(), "par-done")
	require.NoError(t, err)
	assert.Equal(t, blackboard.StatusRunning, sig)

	report(t, store, d.dispatched()[2], blackboard.StatusFailure)
	assert.True(t, tick(t, p))
	assert.Equal(t, blackboard.StatusFailure, p.Last().Status)

	sig, err = store.GetSignal(context.Background(), "par-done")
	require.NoError(t, err)
	assert.Equal(t, blackboard.StatusFailure, sig)
}

func TestParallelAllCompleteWaitsForEverySlot(t *testing.T) {
	store := blackboard.NewMemory()
	d := &recorder{}
	p := newParallel(t, store, d, coordinator.Config{Outputs: 2, Completion: coordinator.AllComplete})

	_, err := p.Trigger(context.Background(), "")
	require.NoError(t, err)
	items := d.dispatched()

	report(t, store, items[0], blackboard.StatusSuccess)
	assert.False(t, tick(t, p))

	rec := getRecord(t, store, "par")
	assert.Equal(t, blackboard.StatusRunning, rec.Status)
	assert.Equal(t, 1, rec.CompletedChildren)

	report(t, store, items[1], blackboard.StatusFailure)
	assert.True(t, tick(t, p))
	assert.Equal(t, blackboard.StatusSuccess, p.Last().Status)
}

func TestParallelFinalRecordIsStable(t *testing.T) {
	ctx := context.Background()
	store := blackboard.NewMemory()
	d := &recorder{}
	p := newParallel(t, store, d, coordinator.Config{Outputs: 2})

	_, err := p.Trigger(ctx, "")
	require.NoError(t, err)
	items := d.dispatched()
	report(t, store, items[0], blackboard.StatusSuccess)
	report(t, store, items[1], blackboard.StatusSuccess)
	require.True(t, tick(t, p))

	first := getRecord(t, store, "par")

	// A late report and an idle tick change nothing
	err = blackboard.Report(ctx, store, items[0].Reply, blackboard.StatusFailure)
	assert.True(t, errors.Is(err, blackboard.ErrRunFinished))
	assert.True(t, tick(t, p))

	second := getRecord(t, store, "par")
	assert.Equal(t, first, second)
}

func TestParallelRetriggerRestartsCleanly(t *testing.T) {
	ctx := context.Background()
	store := blackboard.NewMemory()
	d := &recorder{}
	p := newParallel(t, store, d, coordinator.Config{Outputs: 2})

	first, err := p.Trigger(ctx, "one")
	require.NoError(t, err)
	oldItems := d.dispatched()
	report(t, store, oldItems[0], blackboard.StatusFailure)

	second, err := p.Trigger(ctx, "two")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	res := first.Result()
	require.NotNil(t, res, "restarted run must be finished")
	assert.True(t, res.Aborted)

	rec := getRecord(t, store, "par")
	assert.Equal(t, second.ID, rec.RunID)
	assert.Equal(t, []blackboard.Status{blackboard.StatusRunning, blackboard.StatusRunning}, rec.ChildStatuses)

	// The previous run's children are no longer heard
	err = blackboard.Report(ctx, store, oldItems[1].Reply, blackboard.StatusFailure)
	assert.True(t, errors.Is(err, blackboard.ErrRunFinished))
	assert.False(t, tick(t, p))

	newItems := d.dispatched()[2:]
	require.Len(t, newItems, 2)
	assert.Equal(t, "two", newItems[0].Payload)
	report(t, store, newItems[0], blackboard.StatusSuccess)
	report(t, store, newItems[1], blackboard.StatusSuccess)
	assert.True(t, tick(t, p))
	assert.Equal(t, blackboard.StatusSuccess, second.Result().Status)
}

func TestCoordinatorsReportIdleOnCreation(t *testing.T) {
	tests := []struct {
		kind blackboard.Kind
		cfg  coordinator.Config
	}{
		{blackboard.KindParallel, coordinator.Config{Name: "fanout", Outputs: 2}},
		{blackboard.KindSequence, coordinator.Config{Name: "steps", Outputs: 2}},
		{blackboard.KindRepeat, coordinator.Config{Name: "retry", SignalKey: "retry-signal", Count: 2}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.kind), func(t *testing.T) {
			ctrl := gomock.NewController(t)
			sink := mocks.NewMockStatusSink(ctrl)
			sink.EXPECT().Report(coordinator.Indicator{
				Coordinator: tt.cfg.Name,
				Fill:        coordinator.FillGrey,
				Shape:       coordinator.ShapeRing,
				Text:        "idle",
			}).Times(1)

			c, err := coordinator.New(tt.kind, tt.cfg, blackboard.NewMemory(), &recorder{},
				coordinator.WithStatusSink(sink), coordinator.WithManualTicks())
			require.NoError(t, err)
			require.NoError(t, c.Close())
		})
	}
}

func TestParallelRejectPolicy(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockStatusSink(ctrl)
	sink.EXPECT().Report(fillMatcher{coordinator.FillYellow}).Times(1)
	sink.EXPECT().Report(gomock.Any()).AnyTimes()

	p := newParallel(t, blackboard.NewMemory(), &recorder{},
		coordinator.Config{Outputs: 1, Reentry: coordinator.ReentryReject},
		coordinator.WithStatusSink(sink))

	first, err := p.Trigger(context.Background(), "")
	require.NoError(t, err)

	_, err = p.Trigger(context.Background(), "")
	assert.True(t, errors.Is(err, coordinator.ErrRunActive))
	assert.Equal(t, first, p.Active())
}

func TestParallelDispatchFailureFailsRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := mocks.NewMockDispatcher(ctrl)
	d.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Return(errors.New("no route to child"))

	store := blackboard.NewMemory()
	p := newParallel(t, store, d, coordinator.Config{Outputs: 2})

	run, err := p.Trigger(context.Background(), "")
	require.Error(t, err)

	var dispatchErr apperrors.DispatchError
	require.True(t, errors.As(err, &dispatchErr))
	assert.Equal(t, "par", dispatchErr.Coordinator)

	require.NotNil(t, run.Result())
	assert.Equal(t, blackboard.StatusFailure, run.Result().Status)
	assert.Equal(t, blackboard.StatusFailure, getRecord(t, store, "par").Status)
}

func TestParallelMaxWaitTicks(t *testing.T) {
	store := blackboard.NewMemory()
	d := &recorder{}
	p := newParallel(t, store, d, coordinator.Config{Outputs: 2, MaxWaitTicks: 3})

	_, err := p.Trigger(context.Background(), "")
	require.NoError(t, err)

	assert.False(t, tick(t, p))
	report(t, store, d.dispatched()[0], blackboard.StatusSuccess)
	assert.False(t, tick(t, p), "progress resets the idle count")
	assert.False(t, tick(t, p))
	assert.False(t, tick(t, p))
	assert.True(t, tick(t, p))

	res := p.Last()
	assert.Equal(t, blackboard.StatusFailure, res.Status)
	assert.Contains(t, res.Summary, `operation "par" timed out after 1.5s`)
}

func TestParallelWaitsForeverByDefault(t *testing.T) {
	p := newParallel(t, blackboard.NewMemory(), &recorder{}, coordinator.Config{Outputs: 1})

	_, err := p.Trigger(context.Background(), "")
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		require.False(t, tick(t, p))
	}
	assert.NotNil(t, p.Active())
}

func TestParallelTreatsMissingRecordAsRunning(t *testing.T) {
	ctx := context.Background()
	client, mr := setupRedis(t)
	p := newParallel(t, client, &recorder{}, coordinator.Config{Outputs: 1})

	_, err := p.Trigger(ctx, "")
	require.NoError(t, err)

	mr.Del(blackboard.RecordKey("test-instance", "par"))
	assert.False(t, tick(t, p))

	mr.HSet(blackboard.RecordKey("test-instance", "par"), "run_id", "garbage")
	assert.False(t, tick(t, p))
	assert.NotNil(t, p.Active())
}
