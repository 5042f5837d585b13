package contract

import (
	"context"

	"github.com/google/uuid"

	"github.com/aipilotbyjd/lnkflow-core/internal/domain"
)

// SnapshotStore persists WorkflowContractSnapshots keyed by
// (workflow_id, graph_hash), enabling idempotent compiles.
type SnapshotStore interface {
	Find(ctx context.Context, workflowID uuid.UUID, graphHash string) (*domain.WorkflowContractSnapshot, bool, error)
	Save(ctx context.Context, snapshot *domain.WorkflowContractSnapshot) error
}

// CompileOrReuse computes GraphHash up front and returns the existing
// snapshot unchanged if store already holds one for (workflowID,
// graph_hash); otherwise it compiles fresh and persists the result.
func CompileOrReuse(ctx context.Context, store SnapshotStore, catalog Catalog, workflowID uuid.UUID, nodes []domain.WorkflowNode, edges []domain.WorkflowEdge, strict bool) (*domain.WorkflowContractSnapshot, error) {
	graphHash := GraphHash(nodes, edges)

	if existing, ok, err := store.Find(ctx, workflowID, graphHash); err != nil {
		return nil, err
	} else if ok {
		return existing, nil
	}

	snapshot, err := Compile(catalog, nodes, edges, strict)
	if err != nil {
		return nil, err
	}
	snapshot.WorkflowID = workflowID

	if err := store.Save(ctx, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}
