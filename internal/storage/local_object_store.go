package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

type LocalObjectStore struct {
	baseDir string
}

var _ ObjectStore = (*LocalObjectStore)(nil)

func NewLocalObjectStore(dir string) (*LocalObjectStore, error) {
	baseDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for %s: %w", dir, err)
	}

	return &LocalObjectStore{baseDir: baseDir}, nil
}

func (s *LocalObjectStore) fullpath(bucket, key string) string {
	return filepath.Join(s.baseDir, bucket, key)
}

func (s *LocalObjectStore) CreateBucket(ctx context.Context, bucket string) error {
	if err := os.MkdirAll(s.fullpath(bucket, ""), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create bucket directory %s: %w", bucket, err)
	}
	return nil
}

func (s *LocalObjectStore) PutObject(ctx context.Context, bucket, key string, data io.Reader) error {
	path := s.fullpath(bucket, key)
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory for %s/%s: %w", bucket, key, err)
	}

	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file %s/%s: %w", bucket, key, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, data); err != nil {
		return fmt.Errorf("failed to write file %s/%s: %w", bucket, key, err)
	}

	return nil
}

func (s *LocalObjectStore) ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error) {
	root := s.fullpath(bucket, prefix)

	var objects []Object
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.fullpath(bucket, ""), path)
		if err != nil {
			return err
		}
		objects = append(objects, Object{Name: filepath.ToSlash(rel), Size: info.Size()})
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list objects in %s/%s: %w", bucket, prefix, err)
	}

	return objects, nil
}

func (s *LocalObjectStore) DeleteObjects(ctx context.Context, bucket, prefix string) error {
	if err := os.RemoveAll(s.fullpath(bucket, prefix)); err != nil {
		return fmt.Errorf("failed to delete objects in %s/%s: %w", bucket, prefix, err)
	}
	return nil
}

func copyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dest, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dest, err)
	}
	return nil
}

func copyDir(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel := strings.TrimPrefix(path, src)
		return copyFile(path, filepath.Join(dest, rel))
	})
}

func (s *LocalObjectStore) DownloadDir(ctx context.Context, bucket, prefix, dest string, overwrite bool) error {
	sourcePath := s.fullpath(bucket, prefix)
	if _, err := os.Stat(sourcePath); err != nil {
		return fmt.Errorf("source %s/%s does not exist: %w", bucket, prefix, err)
	}

	if _, err := os.Stat(dest); err == nil {
		if !overwrite {
			return fmt.Errorf("destination %s already exists and overwrite is false", dest)
		}
		if err := os.RemoveAll(dest); err != nil {
			return fmt.Errorf("failed to remove existing destination: %w", err)
		}
	}

	if err := os.MkdirAll(dest, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create destination directory %s: %w", dest, err)
	}

	if err := copyDir(sourcePath, dest); err != nil {
		return fmt.Errorf("error downloading directory %s/%s to %s: %w", bucket, prefix, dest, err)
	}
	return nil
}

func (s *LocalObjectStore) UploadDir(ctx context.Context, bucket, prefix, src string) error {
	destPath := s.fullpath(bucket, prefix)

	if _, err := os.Stat(destPath); err == nil {
		if err := os.RemoveAll(destPath); err != nil {
			return fmt.Errorf("failed to remove existing destination: %w", err)
		}
	}

	if err := copyDir(src, destPath); err != nil {
		return fmt.Errorf("error uploading directory %s to %s/%s: %w", src, bucket, prefix, err)
	}
	return nil
}
