package settings

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// FileBackend 将设置文档保存在本地文件中。
type FileBackend struct {
	path string
}

// NewFileBackend 创建以 path 为文档路径的后端。
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path 返回文档路径。
func (b *FileBackend) Path() string {
	return b.path
}

// Load 读取文档，文件不存在时 found 为 false。
func (b *FileBackend) Load(_ context.Context) ([]byte, bool, error) {
	doc, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// Save 先写临时文件再重命名，避免留下半截文档。
func (b *FileBackend) Save(_ context.Context, doc []byte) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(doc); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), b.path)
}

var _ Backend = (*FileBackend)(nil)
