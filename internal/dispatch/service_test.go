package dispatch

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aipilotbyjd/lnkflow-core/internal/domain"
)

type recordingStore struct {
	saved *domain.Execution
}

func (s *recordingStore) SaveExecution(_ context.Context, e *domain.Execution) error {
	s.saved = e
	return nil
}

type fakeReplayer struct {
	captured *domain.Execution
}

func (r *fakeReplayer) Capture(_ context.Context, execution *domain.Execution, mode string, _ *uuid.UUID, _ domain.JSON, _ []domain.ReplayFixture) (*domain.ExecutionReplayPack, error) {
	r.captured = execution
	return &domain.ExecutionReplayPack{ExecutionID: execution.ID, Mode: mode, DeterministicSeed: 1}, nil
}

type recordingQueue struct {
	enqueued []JobPayload
}

func (q *recordingQueue) Enqueue(priority string, payload JobPayload) (string, error) {
	q.enqueued = append(q.enqueued, payload)
	return "job-1", nil
}

func TestService_DispatchPersistsCapturesAndEnqueues(t *testing.T) {
	wf := activeWorkflow()
	store := &recordingStore{}
	replayer := &fakeReplayer{}
	queue := &recordingQueue{}

	svc := &Service{
		Gate:   &Gate{Catalog: okCatalog(), Limiter: fakeLimiter{allow: true}, Meter: fakeMeter{remaining: 100}},
		Store:  store,
		Replay: replayer,
		Queue:  queue,
	}

	exec, err := svc.Dispatch(context.Background(), wf, nil, nil, domain.ModeManual, domain.JSON{"x": 1}, PriorityDefault, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionPending, exec.Status)
	assert.Equal(t, 1, exec.Attempt)
	assert.Same(t, store.saved, exec)
	assert.Equal(t, exec.ID, replayer.captured.ID)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, exec.ID, queue.enqueued[0].ExecutionID)
	assert.NotEmpty(t, queue.enqueued[0].CallbackToken)
}

func TestService_DispatchAbortsOnGateFailureWithoutPersisting(t *testing.T) {
	wf := activeWorkflow()
	store := &recordingStore{}
	queue := &recordingQueue{}

	svc := &Service{
		Gate:  &Gate{Catalog: okCatalog(), Limiter: fakeLimiter{allow: false}},
		Store: store,
		Queue: queue,
	}

	_, err := svc.Dispatch(context.Background(), wf, nil, nil, domain.ModeManual, domain.JSON{}, PriorityDefault, nil)
	require.Error(t, err)
	assert.Nil(t, store.saved)
	assert.Empty(t, queue.enqueued)
}
