package contract

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aipilotbyjd/lnkflow-core/internal/domain"
)

type memSnapshotStore struct {
	byKey map[string]*domain.WorkflowContractSnapshot
	saves int
}

func newMemSnapshotStore() *memSnapshotStore {
	return &memSnapshotStore{byKey: map[string]*domain.WorkflowContractSnapshot{}}
}

func (m *memSnapshotStore) key(workflowID uuid.UUID, graphHash string) string {
	return workflowID.String() + ":" + graphHash
}

func (m *memSnapshotStore) Find(_ context.Context, workflowID uuid.UUID, graphHash string) (*domain.WorkflowContractSnapshot, bool, error) {
	s, ok := m.byKey[m.key(workflowID, graphHash)]
	return s, ok, nil
}

func (m *memSnapshotStore) Save(_ context.Context, snapshot *domain.WorkflowContractSnapshot) error {
	m.saves++
	m.byKey[m.key(snapshot.WorkflowID, snapshot.GraphHash)] = snapshot
	return nil
}

func TestCompileOrReuse_ReusesExistingSnapshotForSameGraphHash(t *testing.T) {
	ctx := context.Background()
	store := newMemSnapshotStore()
	catalog := MapCatalog{"t": {Type: "t"}}
	workflowID := uuid.New()

	nodes := []domain.WorkflowNode{wfNode("a", "t"), wfNode("b", "t")}
	edges := []domain.WorkflowEdge{wfEdge("e1", "a", "b")}

	first, err := CompileOrReuse(ctx, store, catalog, workflowID, nodes, edges, false)
	require.NoError(t, err)
	assert.Equal(t, 1, store.saves)

	second, err := CompileOrReuse(ctx, store, catalog, workflowID, nodes, edges, false)
	require.NoError(t, err)
	assert.Equal(t, 1, store.saves, "second compile with identical graph hash must reuse, not recompile+resave")
	assert.Same(t, first, second)
}

func TestCompileOrReuse_RecompilesWhenGraphChanges(t *testing.T) {
	ctx := context.Background()
	store := newMemSnapshotStore()
	catalog := MapCatalog{"t": {Type: "t"}}
	workflowID := uuid.New()

	nodes := []domain.WorkflowNode{wfNode("a", "t"), wfNode("b", "t"), wfNode("c", "t")}

	_, err := CompileOrReuse(ctx, store, catalog, workflowID, nodes, []domain.WorkflowEdge{wfEdge("e1", "a", "b")}, false)
	require.NoError(t, err)

	_, err = CompileOrReuse(ctx, store, catalog, workflowID, nodes, []domain.WorkflowEdge{wfEdge("e1", "a", "c")}, false)
	require.NoError(t, err)

	assert.Equal(t, 2, store.saves)
}
