// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/adboard/internal/model"
)

// UserRepository はユーザーデータの参照インターフェース。
// 広告サービスはユーザーを変更しないため、読み取り操作のみを持つ。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

// ListingRepository は広告データの永続化インターフェース。
type ListingRepository interface {
	// FindByID は指定IDの広告を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Listing, error)

	// FindAll は全広告をID昇順で返す。0件の場合は空スライスを返す。
	FindAll(ctx context.Context) ([]*model.Listing, error)

	// FindAllByAuthor は指定ユーザーが作成した広告をID昇順で返す。
	FindAllByAuthor(ctx context.Context, authorID int64) ([]*model.Listing, error)

	// Save は広告を保存する。IDが0の場合は新規作成してIDを採番し、それ以外は上書き更新する。
	// 作成者（author_id）は更新対象に含まない。
	Save(ctx context.Context, listing *model.Listing) (*model.Listing, error)

	// Delete は指定広告を削除する。
	Delete(ctx context.Context, listing *model.Listing) error

	// CountByAuthor は指定ユーザーの広告数を返す。
	CountByAuthor(ctx context.Context, authorID int64) (int, error)

	// ListImageNames は広告から参照されている画像アセット名の一覧を返す。
	// 孤立アセットのクリーンアップで使用する。
	ListImageNames(ctx context.Context) ([]string, error)

	// IsImageReferenced は指定の画像アセット名を参照している広告が現時点で存在するかを返す。
	IsImageReferenced(ctx context.Context, name string) (bool, error)
}

// CommentRepository はコメントデータの永続化インターフェース。
// コメントのCRUDは対象外で、広告削除時のカスケードに必要な操作のみを持つ。
type CommentRepository interface {
	// FindAllByListing は指定広告のコメントをcreated_at降順で返す。
	FindAllByListing(ctx context.Context, listingID int64) ([]*model.Comment, error)

	// Delete は指定コメントを削除する。
	Delete(ctx context.Context, comment *model.Comment) error
}
