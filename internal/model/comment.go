package model

import "time"

// Comment は広告に付いたコメントを表す。
// コメントのCRUDは別サービスの責務で、ここでは広告削除時のカスケードにのみ使用する。
type Comment struct {
	ID        int64
	ListingID int64
	AuthorID  int64
	Text      string
	CreatedAt time.Time
}
