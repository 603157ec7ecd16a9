package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/storefront/internal/model"
)

func newSessionRepoTest(t *testing.T) (*SessionRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewSessionRepo(rdb, time.Hour), mr
}

func TestSessionRepoSaveLoad(t *testing.T) {
	repo, _ := newSessionRepoTest(t)
	ctx := context.Background()

	s := model.NewSession("sid-1", time.Now())
	s.SignIn("42")
	s.SetCSRFToken("csrf")
	s.AddFlash(model.FlashInfo, "hello")
	require.NoError(t, repo.Save(ctx, s))
	assert.False(t, s.Dirty())

	got, err := repo.Load(ctx, "sid-1")
	require.NoError(t, err)
	assert.Equal(t, "sid-1", got.ID)
	assert.True(t, got.LoggedIn)
	assert.Equal(t, "42", got.UserID)
	assert.Equal(t, "csrf", got.CSRFToken)
	assert.Equal(t, []string{"hello"}, got.Flash[model.FlashInfo])
	assert.False(t, got.Dirty())
}

func TestSessionRepoExpires(t *testing.T) {
	repo, mr := newSessionRepoTest(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, model.NewSession("sid-1", time.Now())))
	mr.FastForward(2 * time.Hour)

	_, err := repo.Load(ctx, "sid-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionRepoTouchExtendsTTL(t *testing.T) {
	repo, mr := newSessionRepoTest(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, model.NewSession("sid-1", time.Now())))
	mr.FastForward(50 * time.Minute)
	require.NoError(t, repo.Touch(ctx, "sid-1"))
	mr.FastForward(50 * time.Minute)

	_, err := repo.Load(ctx, "sid-1")
	assert.NoError(t, err)
}

func TestSessionRepoDestroyIdempotent(t *testing.T) {
	repo, _ := newSessionRepoTest(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, model.NewSession("sid-1", time.Now())))
	require.NoError(t, repo.Destroy(ctx, "sid-1"))
	require.NoError(t, repo.Destroy(ctx, "sid-1"))

	_, err := repo.Load(ctx, "sid-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionRepoCorruptBlob(t *testing.T) {
	repo, mr := newSessionRepoTest(t)
	require.NoError(t, mr.Set("sess:bad", "{not json"))

	_, err := repo.Load(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionRepoUnavailable(t *testing.T) {
	repo, mr := newSessionRepoTest(t)
	mr.Close()

	_, err := repo.Load(context.Background(), "sid-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionNotFound)
}
