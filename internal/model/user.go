// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの権限ロールを表す。
type Role string

const (
	// RoleUser は一般ユーザーのロール。
	RoleUser Role = "USER"
	// RoleAdmin は管理者ロール。所有者でなくても全ての広告を変更できる。
	RoleAdmin Role = "ADMIN"
)

// User はサービス利用ユーザーを表す。
// 広告サービスは参照のみを行い、ユーザーを変更しない。
type User struct {
	ID        int64
	Email     string
	FirstName string
	LastName  string
	Phone     string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Caller はリクエスト元の識別情報を表す。
// 認証ミドルウェアがトークンから生成し、サービスの各操作に明示的に渡される。
type Caller struct {
	Email string
	Role  Role
}

// IsAdmin は呼び出し元が管理者ロールを持つかを返す。
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}
