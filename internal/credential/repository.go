package credential

import (
	"context"

	"github.com/google/uuid"

	"github.com/aipilotbyjd/lnkflow-core/internal/domain"
)

// Repository is the storage collaborator the resolver sits in front of,
// mirroring the teacher's CredentialService's repository dependency
// (internal/domain/services/credential.go) but trimmed to read paths
// plus the LastUsedAt touch the resolver makes whenever it loads a
// credential from the repository (cache hits do not touch it).
type Repository interface {
	FindByID(ctx context.Context, workspaceID, id uuid.UUID) (*domain.Credential, error)
	FindByName(ctx context.Context, workspaceID uuid.UUID, name string) (*domain.Credential, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID) error
}
