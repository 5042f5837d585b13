package replay

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aipilotbyjd/lnkflow-core/internal/dispatch"
	"github.com/aipilotbyjd/lnkflow-core/internal/domain"
	"github.com/aipilotbyjd/lnkflow-core/internal/scheduler"
)

type memStore struct {
	packs map[uuid.UUID]*domain.ExecutionReplayPack
}

func newMemStore() *memStore {
	return &memStore{packs: map[uuid.UUID]*domain.ExecutionReplayPack{}}
}

func (m *memStore) GetByExecutionID(_ context.Context, id uuid.UUID) (*domain.ExecutionReplayPack, error) {
	return m.packs[id], nil
}

func (m *memStore) Upsert(_ context.Context, pack *domain.ExecutionReplayPack) error {
	m.packs[pack.ExecutionID] = pack
	return nil
}

type memExecutions struct {
	execs map[uuid.UUID]*domain.Execution
}

func newMemExecutions() *memExecutions {
	return &memExecutions{execs: map[uuid.UUID]*domain.Execution{}}
}

func (m *memExecutions) GetExecution(_ context.Context, id uuid.UUID) (*domain.Execution, error) {
	return m.execs[id], nil
}

func (m *memExecutions) SaveExecution(_ context.Context, e *domain.Execution) error {
	m.execs[e.ID] = e
	return nil
}

type recordingQueue struct {
	enqueued []dispatch.JobPayload
}

func (q *recordingQueue) Enqueue(_ string, payload dispatch.JobPayload) (string, error) {
	q.enqueued = append(q.enqueued, payload)
	return "job-1", nil
}

func TestService_CaptureUpsertsPackKeyedByExecution(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil, nil)
	exec := &domain.Execution{ID: uuid.New(), WorkspaceID: uuid.New(), WorkflowID: uuid.New()}

	pack, err := svc.Capture(context.Background(), exec, ModeCapture, nil, domain.JSON{"a": 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, exec.ID, pack.ExecutionID)
	assert.Equal(t, ModeCapture, pack.Mode)

	stored, err := store.GetByExecutionID(context.Background(), exec.ID)
	require.NoError(t, err)
	assert.Same(t, pack, stored)
}

func TestService_AppendFixturesLatestWinsByFingerprint(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil, nil)
	exec := &domain.Execution{ID: uuid.New()}

	_, err := svc.Capture(context.Background(), exec, ModeCapture, nil, nil, []domain.ReplayFixture{
		{RequestFingerprint: "fp1", Response: domain.JSON{"v": 1}},
	})
	require.NoError(t, err)

	err = svc.AppendFixtures(context.Background(), exec.ID, []domain.ReplayFixture{
		{RequestFingerprint: "fp1", Response: domain.JSON{"v": 2}},
		{RequestFingerprint: "fp2", Response: domain.JSON{"v": 3}},
	})
	require.NoError(t, err)

	pack, _ := store.GetByExecutionID(context.Background(), exec.ID)
	require.Len(t, pack.Fixtures, 2)
	byFP := map[string]domain.JSON{}
	for _, f := range pack.Fixtures {
		byFP[f.RequestFingerprint] = f.Response
	}
	assert.Equal(t, domain.JSON{"v": 2}, byFP["fp1"])
	assert.Equal(t, domain.JSON{"v": 3}, byFP["fp2"])
}

func TestService_RerunCreatesChildExecutionAndEnqueuesDeterministicContext(t *testing.T) {
	execStore := newMemExecutions()
	packStore := newMemStore()
	queue := &recordingQueue{}
	svc := NewService(packStore, execStore, queue)

	source := &domain.Execution{
		ID:          uuid.New(),
		WorkflowID:  uuid.New(),
		WorkspaceID: uuid.New(),
		TriggerData: domain.JSON{"orig": true},
	}
	execStore.SaveExecution(context.Background(), source)
	packStore.Upsert(context.Background(), &domain.ExecutionReplayPack{
		ExecutionID: source.ID,
		Fixtures:    []domain.ReplayFixture{{RequestFingerprint: "fp1", Response: domain.JSON{"cached": true}}},
	})

	child, err := svc.Rerun(context.Background(), source.ID, RerunOptions{})
	require.NoError(t, err)

	assert.Equal(t, domain.ModeReplay, child.Mode)
	assert.True(t, child.IsDeterministicReplay)
	require.NotNil(t, child.ParentExecutionID)
	assert.Equal(t, source.ID, *child.ParentExecutionID)
	assert.Equal(t, domain.JSON{"orig": true}, child.TriggerData)

	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, child.ID, queue.enqueued[0].ExecutionID)
	assert.NotNil(t, queue.enqueued[0].ReplayContext)
}

func TestService_RerunHonoursOverrideTrigger(t *testing.T) {
	execStore := newMemExecutions()
	packStore := newMemStore()
	svc := NewService(packStore, execStore, &recordingQueue{})

	source := &domain.Execution{ID: uuid.New(), TriggerData: domain.JSON{"orig": true}}
	execStore.SaveExecution(context.Background(), source)

	child, err := svc.Rerun(context.Background(), source.ID, RerunOptions{OverrideTrigger: domain.JSON{"new": true}})
	require.NoError(t, err)
	assert.Equal(t, domain.JSON{"new": true}, child.TriggerData)
}

type fakeLiveExecutor struct {
	calls int
}

func (f *fakeLiveExecutor) Execute(_ context.Context, _, _ string, _ map[string]domain.JSON, _ domain.JSON) (*scheduler.NodeResult, error) {
	f.calls++
	return &scheduler.NodeResult{Output: domain.JSON{"live": true}}, nil
}

func TestFixtureExecutor_ReturnsFixtureOnMatchAndFallsThroughOtherwise(t *testing.T) {
	live := &fakeLiveExecutor{}
	fe := NewFixtureExecutor(live, []domain.ReplayFixture{
		{RequestFingerprint: "fp1", Response: domain.JSON{"cached": true}},
	}, false)

	result, err := fe.Execute(context.Background(), "n1", "http", nil, domain.JSON{"_request_fingerprint": "fp1"})
	require.NoError(t, err)
	assert.Equal(t, domain.JSON{"cached": true}, result.Output)
	assert.Equal(t, 0, live.calls)

	result, err = fe.Execute(context.Background(), "n1", "http", nil, domain.JSON{"_request_fingerprint": "unknown"})
	require.NoError(t, err)
	assert.Equal(t, domain.JSON{"live": true}, result.Output)
	assert.Equal(t, 1, live.calls)
}

func TestFixtureExecutor_StrictModeFailsOnUnmatchedFingerprint(t *testing.T) {
	live := &fakeLiveExecutor{}
	fe := NewFixtureExecutor(live, nil, true)

	_, err := fe.Execute(context.Background(), "n1", "http", nil, domain.JSON{"_request_fingerprint": "unknown"})
	assert.Error(t, err)
	assert.Equal(t, 0, live.calls)
}

func TestFingerprint_IsDeterministicAndSensitiveToBody(t *testing.T) {
	fp1 := Fingerprint("POST", "https://api.example.com/x", map[string]string{"Content-Type": "application/json"}, []byte(`{"a":1}`))
	fp2 := Fingerprint("POST", "https://api.example.com/x", map[string]string{"Content-Type": "application/json"}, []byte(`{"a":1}`))
	fp3 := Fingerprint("POST", "https://api.example.com/x", map[string]string{"Content-Type": "application/json"}, []byte(`{"a":2}`))

	assert.Equal(t, fp1, fp2)
	assert.NotEqual(t, fp1, fp3)
	assert.Len(t, fp1, 64)
}
