package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/aipilotbyjd/lnkflow-core/internal/cache"
	"github.com/aipilotbyjd/lnkflow-core/internal/domain"
	"github.com/aipilotbyjd/lnkflow-core/internal/platform/apierr"
)

var (
	// ErrCredentialNotFound and ErrDecryptionFailed are the sentinel
	// causes the resolver wraps into *apierr.Error; callers that need the
	// raw sentinel can still errors.Is against these.
	ErrCredentialNotFound = fmt.Errorf("credential not found")
	ErrDecryptionFailed   = fmt.Errorf("credential decryption failed")
)

// Resolver decrypts and caches credentials for node execution, grounded
// on the teacher's CredentialService (internal/domain/services/
// credential.go) for the resolve-by-id/name shape, fronted by the
// tiered cache from spec §4.1's credential cache entry.
type Resolver struct {
	repo  Repository
	ring  *KeyRing
	cache *cache.TieredCache
	ttl   time.Duration
}

func NewResolver(repo Repository, ring *KeyRing, c *cache.TieredCache, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Resolver{repo: repo, ring: ring, cache: c, ttl: ttl}
}

func cacheKey(workspaceID, id uuid.UUID) string {
	return "credential:" + workspaceID.String() + ":" + id.String()
}

// Resolve decrypts the named credential ids within workspaceID, one at a
// time, returning a map keyed by credential id string. A credential past
// its ExpiresAt is still decrypted and returned with Expired set (spec
// §4.2's edge case); it is the caller's responsibility to reject it if
// the node declares it cannot run on expired secrets.
func (r *Resolver) Resolve(ctx context.Context, workspaceID uuid.UUID, ids ...uuid.UUID) (map[string]*domain.CredentialData, error) {
	out := make(map[string]*domain.CredentialData, len(ids))
	for _, id := range ids {
		data, err := r.resolveOne(ctx, workspaceID, id)
		if err != nil {
			return nil, err
		}
		out[id.String()] = data
	}
	return out, nil
}

// ResolveByName looks a credential up by its human name within the
// workspace, then resolves it the same way as Resolve.
func (r *Resolver) ResolveByName(ctx context.Context, workspaceID uuid.UUID, name string) (*domain.CredentialData, error) {
	cred, err := r.repo.FindByName(ctx, workspaceID, name)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindNotFound, apierr.CodeCredentialNotFound, ErrCredentialNotFound)
	}
	return r.decryptAndCache(ctx, cred)
}

func (r *Resolver) resolveOne(ctx context.Context, workspaceID, id uuid.UUID) (*domain.CredentialData, error) {
	key := cacheKey(workspaceID, id)

	if r.cache != nil {
		if raw, ok, err := r.cache.Get(ctx, key); err == nil && ok {
			var data domain.CredentialData
			if err := json.Unmarshal(raw, &data); err == nil {
				return &data, nil
			}
		}
	}

	cred, err := r.repo.FindByID(ctx, workspaceID, id)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindNotFound, apierr.CodeCredentialNotFound, ErrCredentialNotFound)
	}
	return r.decryptAndCache(ctx, cred)
}

func (r *Resolver) decryptAndCache(ctx context.Context, cred *domain.Credential) (*domain.CredentialData, error) {
	env, err := ParseEnvelope(cred.DataEncrypted)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindDecryptionFailed, apierr.CodeDecryptionFailed, ErrDecryptionFailed)
	}

	plaintext, err := r.ring.Open(env)
	if err != nil {
		log.Error().Str("credential_id", cred.ID.String()).Msg("credential decryption failed")
		return nil, apierr.Wrap(apierr.KindDecryptionFailed, apierr.CodeDecryptionFailed, ErrDecryptionFailed)
	}

	var fields map[string]string
	if err := json.Unmarshal(plaintext, &fields); err != nil {
		return nil, apierr.Wrap(apierr.KindDecryptionFailed, apierr.CodeDecryptionFailed, ErrDecryptionFailed)
	}

	data := &domain.CredentialData{
		Name:      cred.Name,
		Type:      cred.Type,
		Data:      fields,
		ExpiresAt: cred.ExpiresAt,
		Expired:   cred.ExpiresAt != nil && cred.ExpiresAt.Before(time.Now()),
	}

	if r.cache != nil {
		if raw, err := json.Marshal(data); err == nil {
			_ = r.cache.Set(ctx, cacheKey(cred.WorkspaceID, cred.ID), raw, r.ttl)
		}
	}

	if err := r.repo.TouchLastUsed(ctx, cred.ID); err != nil {
		log.Warn().Err(err).Str("credential_id", cred.ID.String()).Msg("failed to touch credential last_used_at")
	}

	return data, nil
}

// Invalidate evicts a credential from cache, used after rotation or
// revocation so the next Resolve re-reads and re-decrypts it.
func (r *Resolver) Invalidate(ctx context.Context, workspaceID, id uuid.UUID) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Delete(ctx, cacheKey(workspaceID, id))
}

// Seal encrypts a plaintext field map into the envelope form persisted
// as Credential.DataEncrypted, used by credential creation/rotation
// flows.
func (r *Resolver) Seal(fields map[string]string) (string, error) {
	plaintext, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("credential: marshal fields: %w", err)
	}
	env, err := r.ring.Seal(plaintext)
	if err != nil {
		return "", err
	}
	return env.String(), nil
}
