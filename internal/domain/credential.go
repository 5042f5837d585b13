package domain

import (
	"time"

	"github.com/google/uuid"
)

// Credential is a workspace-scoped secret. DataEncrypted is an opaque
// AEAD envelope (see internal/credential); plaintext is never stored nor
// returned on this struct.
type Credential struct {
	ID            uuid.UUID
	WorkspaceID   uuid.UUID
	Name          string
	Type          string
	DataEncrypted string
	ExpiresAt     *time.Time
	LastUsedAt    *time.Time
}

// CredentialData is the decrypted payload handed to a NodeExecutor.
// Expired reflects whether ExpiresAt has passed; callers decide whether
// an expired credential may still be used.
type CredentialData struct {
	Name      string
	Type      string
	Data      map[string]string
	ExpiresAt *time.Time
	Expired   bool
}
