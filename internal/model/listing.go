// Package model はドメインモデルを定義する。
package model

import "time"

// Listing は広告（announcement）を表す。
// AuthorIDは作成時に設定され、以後変更されない。
type Listing struct {
	ID          int64
	Title       string
	Description string
	Price       int
	Image       *string // 保存済み画像アセット名。未設定の場合はnil
	AuthorID    int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ImageName は画像アセット名を返す。未設定の場合は空文字列。
func (l *Listing) ImageName() string {
	if l.Image == nil {
		return ""
	}
	return *l.Image
}

// ListingProperties は広告の作成・更新で受け付ける項目。
type ListingProperties struct {
	Title       string
	Description string
	Price       int
}

// ListingDetail は広告詳細の表示用モデル。
// 作成者の氏名・連絡先を非正規化して含む。
type ListingDetail struct {
	ID              int64
	Title           string
	Description     string
	Price           int
	Image           *string
	AuthorID        int64
	AuthorFirstName string
	AuthorLastName  string
	AuthorEmail     string
	AuthorPhone     string
}
