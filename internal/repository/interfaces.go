// Package repository はデータ保持のインターフェースと実装を定義する。
package repository

import (
	"context"

	"github.com/hitoshi/guilddash/internal/model"
)

// UserRepository はログイン済みユーザーの保持インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.CanonicalUser, error)

	// Save はユーザーを保存する。同じIDのユーザーは丸ごと置き換える。
	Save(ctx context.Context, user *model.CanonicalUser) error
}
