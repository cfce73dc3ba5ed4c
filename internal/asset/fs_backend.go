package asset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const tempPrefix = ".tmp-"

// FSBackend はローカルディレクトリに画像を保存するBackend。
type FSBackend struct {
	dir string
}

// NewFSBackend はFSBackendを生成する。保存ディレクトリが存在しない場合は作成する。
func NewFSBackend(dir string) (*FSBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create asset directory %s: %w", dir, err)
	}
	return &FSBackend{dir: dir}, nil
}

// Put は一時ファイルに書き込んでからリネームする。
// 書き込み途中のファイルが同名で参照されることはない。
func (b *FSBackend) Put(ctx context.Context, name string, data []byte) error {
	tmp, err := os.CreateTemp(b.dir, tempPrefix+name+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write asset %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close asset %s: %w", name, err)
	}
	if err := os.Rename(tmpName, b.path(name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename asset %s: %w", name, err)
	}
	return nil
}

// Get は指定名のファイル内容を返す。
func (b *FSBackend) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(b.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read asset %s: %w", name, err)
	}
	return data, nil
}

// Delete は指定名のファイルを削除する。
func (b *FSBackend) Delete(ctx context.Context, name string) error {
	err := os.Remove(b.path(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete asset %s: %w", name, err)
	}
	return nil
}

// Stat は指定名のファイルのメタデータを返す。
func (b *FSBackend) Stat(ctx context.Context, name string) (Object, error) {
	info, err := os.Stat(b.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return Object{}, ErrNotFound
	}
	if err != nil {
		return Object{}, fmt.Errorf("failed to stat asset %s: %w", name, err)
	}
	return Object{Name: filepath.Base(name), Size: info.Size(), ModTime: info.ModTime()}, nil
}

// RemoveStaleTemp は書き込み途中でプロセスが停止して残った一時ファイルのうち、
// 最終更新がbeforeより古いものを削除し、削除件数を返す。
func (b *FSBackend) RemoveStaleTemp(ctx context.Context, before time.Time) (int, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list asset directory: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if e.IsDir() || !strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(before) {
			continue
		}
		if err := os.Remove(filepath.Join(b.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("failed to remove temp file %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// List はディレクトリ直下のファイル一覧を返す。書き込み途中の一時ファイルは含まない。
func (b *FSBackend) List(ctx context.Context) ([]Object, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list asset directory: %w", err)
	}

	var objects []Object
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// 一覧取得後に削除されたファイル
			continue
		}
		objects = append(objects, Object{
			Name:    e.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return objects, nil
}

func (b *FSBackend) path(name string) string {
	return filepath.Join(b.dir, filepath.Base(name))
}

// compile-time interface check
var _ Backend = (*FSBackend)(nil)
