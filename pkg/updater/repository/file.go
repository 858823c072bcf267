package repository

import (
	"context"
	"io"
	"os"
	"path/filepath"

	sparuserrors "github.com/Ludea/Sparus/errors"
)

// FileRepository reads a repository from a local directory.
type FileRepository struct {
	documents
	root string
}

// NewFile creates a repository rooted at dir.
func NewFile(dir string) (*FileRepository, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, sparuserrors.Repository("open", dir, err)
	}
	if !info.IsDir() {
		return nil, sparuserrors.New(sparuserrors.KindRepository, "repository is not a directory").
			WithDetail("url", dir)
	}
	r := &FileRepository{root: dir}
	r.documents = documents{url: dir, get: r.open}
	return r, nil
}

func (r *FileRepository) open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(r.root, filepath.FromSlash(name)))
	if err != nil {
		return nil, sparuserrors.Repository("get "+name, r.root, err)
	}
	return f, nil
}

// PackageData opens package data at offset.
func (r *FileRepository) PackageData(ctx context.Context, name string, offset int64) (io.ReadCloser, error) {
	body, err := r.open(ctx, name)
	if err != nil {
		return nil, err
	}
	f := body.(*os.File)
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, sparuserrors.Repository("seek "+name, r.root, err)
	}
	return f, nil
}
