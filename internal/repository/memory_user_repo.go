package repository

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/guilddash/internal/model"
)

// userEntry は保持中のユーザーと最終アクセス時刻。
type userEntry struct {
	user     *model.CanonicalUser
	lastSeen time.Time
}

// MemoryUserRepo はプロセス内メモリにユーザーを保持するUserRepository実装。
// 再起動で内容は失われる。セッショントークン自体は自己完結しているため、
// ここに存在しないユーザーでもトークン検証は成功する。
// 保存または取得からttlを過ぎたユーザーは見つからない扱いになり、RunCleanupで削除される。
type MemoryUserRepo struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	users map[string]*userEntry
}

// NewMemoryUserRepo はMemoryUserRepoを生成する。ttlが0以下の場合は期限切れにしない。
func NewMemoryUserRepo(ttl time.Duration) *MemoryUserRepo {
	return &MemoryUserRepo{
		ttl:   ttl,
		now:   time.Now,
		users: make(map[string]*userEntry),
	}
}

// FindByID は指定IDのユーザーのコピーを返し、最終アクセス時刻を更新する。
func (r *MemoryUserRepo) FindByID(_ context.Context, id string) (*model.CanonicalUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	e, ok := r.users[id]
	if !ok || r.expired(e, now) {
		return nil, nil
	}
	e.lastSeen = now
	return cloneUser(e.user), nil
}

// Save はユーザーのコピーを保存する。
func (r *MemoryUserRepo) Save(_ context.Context, user *model.CanonicalUser) error {
	if user == nil || user.ID == "" {
		return errors.New("user id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.users[user.ID] = &userEntry{user: cloneUser(user), lastSeen: r.now()}
	return nil
}

// Evict は期限切れのユーザーを削除し、削除件数と残り件数を返す。
func (r *MemoryUserRepo) Evict(now time.Time) (removed, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, e := range r.users {
		if r.expired(e, now) {
			delete(r.users, id)
			removed++
		}
	}
	return removed, len(r.users)
}

// RunCleanup はintervalごとに期限切れのユーザーを削除する。ctxがキャンセルされるまでブロックする。
func (r *MemoryUserRepo) RunCleanup(ctx context.Context, interval time.Duration) {
	if r.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed, remaining := r.Evict(r.now())
			if removed > 0 {
				slog.Debug("evicted expired users",
					slog.Int("removed", removed),
					slog.Int("remaining", remaining),
				)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (r *MemoryUserRepo) expired(e *userEntry, now time.Time) bool {
	return r.ttl > 0 && now.Sub(e.lastSeen) > r.ttl
}

// cloneUser は呼び出し側の変更が保持中の値に影響しないようギルド一覧を複製する。
func cloneUser(u *model.CanonicalUser) *model.CanonicalUser {
	cp := *u
	if u.Guilds != nil {
		cp.Guilds = append([]model.GuildSummary(nil), u.Guilds...)
	}
	return &cp
}

// compile-time interface check
var _ UserRepository = (*MemoryUserRepo)(nil)
