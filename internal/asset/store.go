package asset

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshi/adboard/internal/model"
)

// Config はアセットストアの設定。起動時に注入する。
type Config struct {
	// URLPrefix は画像配信URLの接頭辞（例: "/ads/image"）。
	URLPrefix string
	// Dir はローカル保存時のディレクトリ。NewFSStoreが使用する。
	Dir string
	// MaxSize は1画像あたりの最大バイト数。0以下の場合は無制限。
	MaxSize int64
}

// Store は広告画像の保存契約を実装する。
// 名前の決定、上書き差し替え、名前による取得を提供し、
// Backendの入出力エラーはASSET_IO_FAILUREとして呼び出し元に返す。
type Store struct {
	cfg     Config
	backend Backend
}

// NewStore は任意のBackendの上にStoreを生成する。
func NewStore(cfg Config, backend Backend) *Store {
	return &Store{cfg: cfg, backend: backend}
}

// NewFSStore はcfg.Dirに画像を保存するStoreを生成する。
func NewFSStore(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("asset directory is not configured")
	}
	backend, err := NewFSBackend(cfg.Dir)
	if err != nil {
		return nil, err
	}
	return NewStore(cfg, backend), nil
}

// Backend はStoreが使用している保存先を返す。クリーンアップジョブが列挙と削除に使う。
func (s *Store) Backend() Backend {
	return s.backend
}

// Save は(連番, 作成者ID, メールハッシュ)から決定した名前で画像を保存し、その名前を返す。
func (s *Store) Save(ctx context.Context, authorID int64, seq int, emailDigest int32, data []byte) (string, error) {
	if err := s.validate(data); err != nil {
		return "", err
	}

	name := Name(seq, authorID, emailDigest)
	if err := s.backend.Put(ctx, name, data); err != nil {
		return "", model.NewAssetIOFailureError(err)
	}
	return name, nil
}

// Replace は既存のアセット名を再利用して画像を上書きし、その名前を返す。
// 以前の画像が既に失われていてもエラーにしない。
// アセット名として使えない値はASSET_NOT_FOUNDとなるため、呼び出し側はSaveで新しい名前を生成すること。
func (s *Store) Replace(ctx context.Context, existing string, data []byte) (string, error) {
	if !ValidName(existing) {
		return "", model.NewAssetNotFoundError(existing)
	}
	if err := s.validate(data); err != nil {
		return "", err
	}

	if err := s.backend.Put(ctx, existing, data); err != nil {
		return "", model.NewAssetIOFailureError(err)
	}
	return existing, nil
}

// Fetch は名前に対応する画像のバイト列を返す。
// 未知の名前の場合はASSET_NOT_FOUNDを返す。
func (s *Store) Fetch(ctx context.Context, name string) ([]byte, error) {
	if !ValidName(name) {
		return nil, model.NewAssetNotFoundError(name)
	}

	data, err := s.backend.Get(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return nil, model.NewAssetNotFoundError(name)
	}
	if err != nil {
		return nil, model.NewAssetIOFailureError(err)
	}
	return data, nil
}

// URL はアセット名から配信URLを組み立てる。
func (s *Store) URL(name string) string {
	if name == "" {
		return ""
	}
	return strings.TrimRight(s.cfg.URLPrefix, "/") + "/" + name
}

func (s *Store) validate(data []byte) error {
	if len(data) == 0 {
		return model.NewInvalidListingError("画像が空です")
	}
	if s.cfg.MaxSize > 0 && int64(len(data)) > s.cfg.MaxSize {
		return model.NewInvalidListingError(fmt.Sprintf("画像サイズが上限（%dバイト）を超えています", s.cfg.MaxSize))
	}
	return nil
}
