package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/guilddash/internal/model"
)

func TestMemoryUserRepo_SaveAndFind(t *testing.T) {
	repo := NewMemoryUserRepo(time.Hour)
	ctx := context.Background()

	user := &model.CanonicalUser{
		ID:       "1",
		Username: "alice",
		Guilds:   []model.GuildSummary{{ID: "10", Name: "guild"}},
	}
	require.NoError(t, repo.Save(ctx, user))

	got, err := repo.FindByID(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, user, got)
}

func TestMemoryUserRepo_FindByID_NotFound_ReturnsNil(t *testing.T) {
	got, err := NewMemoryUserRepo(time.Hour).FindByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryUserRepo_Save_ReplacesExisting(t *testing.T) {
	repo := NewMemoryUserRepo(time.Hour)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &model.CanonicalUser{ID: "1", Username: "old"}))
	require.NoError(t, repo.Save(ctx, &model.CanonicalUser{ID: "1", Username: "new"}))

	got, err := repo.FindByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Username)
	_, remaining := repo.Evict(time.Now())
	assert.Equal(t, 1, remaining)
}

func TestMemoryUserRepo_Save_StoresCopy(t *testing.T) {
	repo := NewMemoryUserRepo(time.Hour)
	ctx := context.Background()

	user := &model.CanonicalUser{ID: "1", Username: "alice", Guilds: []model.GuildSummary{{ID: "10", Name: "before"}}}
	require.NoError(t, repo.Save(ctx, user))

	user.Username = "mutated"
	user.Guilds[0].Name = "after"

	got, err := repo.FindByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "before", got.Guilds[0].Name)
}

func TestMemoryUserRepo_Save_RequiresID(t *testing.T) {
	repo := NewMemoryUserRepo(time.Hour)
	assert.Error(t, repo.Save(context.Background(), &model.CanonicalUser{}))
	assert.Error(t, repo.Save(context.Background(), nil))
}

func TestMemoryUserRepo_ExpiresAfterTTL(t *testing.T) {
	repo := NewMemoryUserRepo(time.Hour)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	require.NoError(t, repo.Save(ctx, &model.CanonicalUser{ID: "1"}))
	require.NoError(t, repo.Save(ctx, &model.CanonicalUser{ID: "2"}))

	// 取得すると最終アクセス時刻が延びる
	now = now.Add(50 * time.Minute)
	got, err := repo.FindByID(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, got)

	now = now.Add(20 * time.Minute)
	got, err = repo.FindByID(ctx, "2")
	require.NoError(t, err)
	assert.Nil(t, got, "保持期間を過ぎたユーザーは見つからない")

	removed, remaining := repo.Evict(now)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, remaining)

	got, err = repo.FindByID(ctx, "1")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestMemoryUserRepo_ZeroTTL_NeverExpires(t *testing.T) {
	repo := NewMemoryUserRepo(0)
	require.NoError(t, repo.Save(context.Background(), &model.CanonicalUser{ID: "1"}))

	removed, remaining := repo.Evict(time.Now().Add(24 * 365 * time.Hour))
	assert.Zero(t, removed)
	assert.Equal(t, 1, remaining)
}

func TestMemoryUserRepo_RunCleanup_StopsOnCancel(t *testing.T) {
	repo := NewMemoryUserRepo(time.Millisecond)
	require.NoError(t, repo.Save(context.Background(), &model.CanonicalUser{ID: "1"}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		repo.RunCleanup(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		_, remaining := repo.Evict(time.Time{})
		return remaining == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunCleanup did not return after cancel")
	}
}

func TestMemoryUserRepo_ConcurrentAccess(t *testing.T) {
	repo := NewMemoryUserRepo(time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		id := fmt.Sprintf("user-%d", i%5)
		go func() {
			defer wg.Done()
			_ = repo.Save(ctx, &model.CanonicalUser{ID: id, Username: id})
		}()
		go func() {
			defer wg.Done()
			_, _ = repo.FindByID(ctx, id)
		}()
	}
	wg.Wait()

	_, remaining := repo.Evict(time.Now())
	assert.Equal(t, 5, remaining)
}
