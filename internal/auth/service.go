package auth

import (
	"context"
	"fmt"

	"github.com/hitoshi/adboard/internal/model"
	"github.com/hitoshi/adboard/internal/repository"
)

// Resolver は呼び出し元の識別情報を既知のユーザーに解決する。
type Resolver struct {
	userRepo repository.UserRepository
}

// NewResolver はResolverを生成する。
func NewResolver(userRepo repository.UserRepository) *Resolver {
	return &Resolver{userRepo: userRepo}
}

// Resolve はCallerのメールアドレスでユーザーを検索する。
// 該当ユーザーがいない場合はCALLER_NOT_FOUNDを返す。
func (r *Resolver) Resolve(ctx context.Context, caller model.Caller) (*model.User, error) {
	if caller.Email == "" {
		return nil, model.NewCallerNotFoundError()
	}

	user, err := r.userRepo.FindByEmail(ctx, caller.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve caller: %w", err)
	}
	if user == nil {
		return nil, model.NewCallerNotFoundError()
	}
	return user, nil
}
