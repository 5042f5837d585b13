package credential

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aipilotbyjd/lnkflow-core/internal/cache"
	"github.com/aipilotbyjd/lnkflow-core/internal/domain"
)

type fakeRepo struct {
	byID      map[uuid.UUID]*domain.Credential
	touched   []uuid.UUID
	findErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: map[uuid.UUID]*domain.Credential{}}
}

func (f *fakeRepo) FindByID(_ context.Context, _, id uuid.UUID) (*domain.Credential, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	c, ok := f.byID[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return c, nil
}

func (f *fakeRepo) FindByName(_ context.Context, workspaceID uuid.UUID, name string) (*domain.Credential, error) {
	for _, c := range f.byID {
		if c.WorkspaceID == workspaceID && c.Name == name {
			return c, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeRepo) TouchLastUsed(_ context.Context, id uuid.UUID) error {
	f.touched = append(f.touched, id)
	return nil
}

func newTestRing(t *testing.T) *KeyRing {
	t.Helper()
	ring := NewKeyRing()
	key, err := GenerateKey()
	require.NoError(t, err)
	require.NoError(t, ring.AddKey("k1", key))
	return ring
}

func newTestCache() *cache.TieredCache {
	return cache.NewTieredCache(cache.NewLRU(100, nil), nil, time.Minute)
}

func TestResolver_ResolveDecryptsAndCaches(t *testing.T) {
	ctx := context.Background()
	ring := newTestRing(t)
	repo := newFakeRepo()

	sealed, err := ring.Seal([]byte(`{"api_key":"sk-live-123"}`))
	require.NoError(t, err)

	workspaceID := uuid.New()
	credID := uuid.New()
	repo.byID[credID] = &domain.Credential{
		ID:            credID,
		WorkspaceID:   workspaceID,
		Name:          "stripe",
		Type:          "api_key",
		DataEncrypted: sealed.String(),
	}

	resolver := NewResolver(repo, ring, newTestCache(), time.Minute)

	out, err := resolver.Resolve(ctx, workspaceID, credID)
	require.NoError(t, err)

	data := out[credID.String()]
	require.NotNil(t, data)
	assert.Equal(t, "sk-live-123", data.Data["api_key"])
	assert.False(t, data.Expired)
	assert.Len(t, repo.touched, 1)
}

func TestResolver_ResolveServesFromCacheOnSecondCall(t *testing.T) {
	ctx := context.Background()
	ring := newTestRing(t)
	repo := newFakeRepo()

	sealed, err := ring.Seal([]byte(`{"token":"abc"}`))
	require.NoError(t, err)

	workspaceID, credID := uuid.New(), uuid.New()
	repo.byID[credID] = &domain.Credential{ID: credID, WorkspaceID: workspaceID, DataEncrypted: sealed.String()}

	resolver := NewResolver(repo, ring, newTestCache(), time.Minute)

	_, err = resolver.Resolve(ctx, workspaceID, credID)
	require.NoError(t, err)
	_, err = resolver.Resolve(ctx, workspaceID, credID)
	require.NoError(t, err)

	assert.Len(t, repo.touched, 1, "second resolve should be served from cache, not hit the repository again")
}

func TestResolver_ResolveNotFound(t *testing.T) {
	ctx := context.Background()
	ring := newTestRing(t)
	resolver := NewResolver(newFakeRepo(), ring, newTestCache(), time.Minute)

	_, err := resolver.Resolve(ctx, uuid.New(), uuid.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCredentialNotFound))
}

func TestResolver_ResolveMarksExpired(t *testing.T) {
	ctx := context.Background()
	ring := newTestRing(t)
	repo := newFakeRepo()

	sealed, err := ring.Seal([]byte(`{"token":"abc"}`))
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	workspaceID, credID := uuid.New(), uuid.New()
	repo.byID[credID] = &domain.Credential{
		ID: credID, WorkspaceID: workspaceID, DataEncrypted: sealed.String(), ExpiresAt: &past,
	}

	resolver := NewResolver(repo, ring, newTestCache(), time.Minute)
	out, err := resolver.Resolve(ctx, workspaceID, credID)
	require.NoError(t, err)
	assert.True(t, out[credID.String()].Expired)
}

func TestResolver_RotationStillOpensOldCiphertext(t *testing.T) {
	ring := NewKeyRing()
	oldKey, err := GenerateKey()
	require.NoError(t, err)
	require.NoError(t, ring.AddKey("old", oldKey))

	sealed, err := ring.Seal([]byte("secret"))
	require.NoError(t, err)
	assert.Equal(t, "old", sealed.KeyID)

	newKey, err := GenerateKey()
	require.NoError(t, err)
	require.NoError(t, ring.AddKey("new", newKey))
	require.NoError(t, ring.SetActive("new"))

	freshlySealed, err := ring.Seal([]byte("secret2"))
	require.NoError(t, err)
	assert.Equal(t, "new", freshlySealed.KeyID)

	plaintext, err := ring.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(plaintext))
}

func TestResolver_InvalidateEvictsCache(t *testing.T) {
	ctx := context.Background()
	ring := newTestRing(t)
	repo := newFakeRepo()

	sealed, err := ring.Seal([]byte(`{"token":"abc"}`))
	require.NoError(t, err)

	workspaceID, credID := uuid.New(), uuid.New()
	repo.byID[credID] = &domain.Credential{ID: credID, WorkspaceID: workspaceID, DataEncrypted: sealed.String()}

	resolver := NewResolver(repo, ring, newTestCache(), time.Minute)
	_, err = resolver.Resolve(ctx, workspaceID, credID)
	require.NoError(t, err)

	require.NoError(t, resolver.Invalidate(ctx, workspaceID, credID))

	_, err = resolver.Resolve(ctx, workspaceID, credID)
	require.NoError(t, err)
	assert.Len(t, repo.touched, 2, "after invalidation, resolve should hit the repository again")
}
