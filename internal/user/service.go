// Package user はバックオフィス向けのアカウント管理ロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/repository"
)

// ErrSelfDeactivation は管理者が自分自身を無効化しようとしたことを表す。
var ErrSelfDeactivation = errors.New("cannot deactivate your own account")

// Service はアカウント管理のサービス層。
// アカウントの無効化は既存トークンにも即座に反映される（リクエスト認証時に有効フラグを再確認するため）。
type Service struct {
	userRepo repository.UserRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository) *Service {
	return &Service{userRepo: userRepo}
}

// Deactivate はアカウントを無効化する。
// actorIDは操作を行う管理者のID。自分自身は無効化できない。
func (s *Service) Deactivate(ctx context.Context, actorID, userID string) (*model.User, error) {
	if actorID == userID {
		return nil, ErrSelfDeactivation
	}
	return s.setActive(ctx, actorID, userID, false)
}

// Activate は無効化されたアカウントを再度有効にする。
func (s *Service) Activate(ctx context.Context, actorID, userID string) (*model.User, error) {
	return s.setActive(ctx, actorID, userID, true)
}

func (s *Service) setActive(ctx context.Context, actorID, userID string, active bool) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	if user.IsActive == active {
		return user, nil
	}

	if err := s.userRepo.SetActive(ctx, userID, active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewUserNotFoundError()
		}
		return nil, fmt.Errorf("アカウント状態の更新に失敗しました: %w", err)
	}
	user.IsActive = active

	slog.Info("アカウント状態を変更しました",
		slog.String("actor_id", actorID),
		slog.String("user_id", userID),
		slog.Bool("active", active),
	)

	return user, nil
}
