package asset

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound は指定名のオブジェクトが存在しないことを示す。
var ErrNotFound = errors.New("asset not found")

// Object は保存済みオブジェクトのメタデータ。
type Object struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Backend は画像バイト列の保存先を抽象化するインターフェース。
type Backend interface {
	// Put は指定名でデータを保存する。既存の同名オブジェクトは上書きする。
	Put(ctx context.Context, name string, data []byte) error
	// Get は指定名のデータを返す。存在しない場合はErrNotFoundを返す。
	Get(ctx context.Context, name string) ([]byte, error)
	// Delete は指定名のオブジェクトを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, name string) error
	// Stat は指定名のオブジェクトの現在のメタデータを返す。存在しない場合はErrNotFoundを返す。
	Stat(ctx context.Context, name string) (Object, error)
	// List は保存済みオブジェクトの一覧を返す。
	List(ctx context.Context) ([]Object, error)
}
