package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestObjectStore(t *testing.T) (*LocalObjectStore, string) {
	t.Helper()
	dir := t.TempDir()
	objectStore, err := NewLocalObjectStore(dir)
	require.NoError(t, err)
	return objectStore, dir
}

func writeFiles(t *testing.T, root string, files []string, content string) {
	t.Helper()
	for _, file := range files {
		path := filepath.Join(root, file)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), os.ModePerm))
		require.NoError(t, os.WriteFile(path, []byte(content), os.ModePerm))
	}
}

func TestLocalObjectStore_PutObject(t *testing.T) {
	objectStore, baseDir := setupTestObjectStore(t)

	content := []byte("onnx bytes")
	err := objectStore.PutObject(context.Background(), "models", "resnet/model.onnx", bytes.NewReader(content))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(baseDir, "models", "resnet", "model.onnx"))
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestLocalObjectStore_CreateBucket(t *testing.T) {
	objectStore, baseDir := setupTestObjectStore(t)

	require.NoError(t, objectStore.CreateBucket(context.Background(), "models"))
	require.NoError(t, objectStore.CreateBucket(context.Background(), "models"))

	info, err := os.Stat(filepath.Join(baseDir, "models"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLocalObjectStore_ListObjects(t *testing.T) {
	objectStore, baseDir := setupTestObjectStore(t)

	writeFiles(t, filepath.Join(baseDir, "models"), []string{"a/model.onnx", "a/metadata.json", "b/model.onnx"}, "x")

	objects, err := objectStore.ListObjects(context.Background(), "models", "a")
	require.NoError(t, err)

	names := make([]string, 0, len(objects))
	for _, obj := range objects {
		names = append(names, obj.Name)
		assert.Equal(t, int64(1), obj.Size)
	}
	assert.ElementsMatch(t, []string{"a/model.onnx", "a/metadata.json"}, names)

	missing, err := objectStore.ListObjects(context.Background(), "models", "missing")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestLocalObjectStore_DeleteObjects(t *testing.T) {
	objectStore, baseDir := setupTestObjectStore(t)

	writeFiles(t, filepath.Join(baseDir, "models"), []string{"old/file1.txt", "old/file2.txt", "keep/file3.txt"}, "content")

	require.NoError(t, objectStore.DeleteObjects(context.Background(), "models", "old"))

	for _, file := range []string{"old/file1.txt", "old/file2.txt"} {
		_, err := os.Stat(filepath.Join(baseDir, "models", file))
		assert.True(t, os.IsNotExist(err), "File %s should not exist", file)
	}

	_, err := os.Stat(filepath.Join(baseDir, "models", "keep", "file3.txt"))
	assert.NoError(t, err, "File outside prefix should still exist")
}

func TestLocalObjectStore_UploadDir(t *testing.T) {
	objectStore, baseDir := setupTestObjectStore(t)

	srcDir := t.TempDir()
	files := []string{"model.onnx", "metadata.json", "extra/notes.txt"}
	writeFiles(t, srcDir, files, "content")

	require.NoError(t, objectStore.UploadDir(context.Background(), "models", "uploaded", srcDir))

	// The upload must be a copy, independent of the source directory.
	require.NoError(t, os.RemoveAll(srcDir))

	for _, file := range files {
		data, err := os.ReadFile(filepath.Join(baseDir, "models", "uploaded", file))
		require.NoError(t, err)
		assert.Equal(t, "content", string(data))
	}
}

func TestLocalObjectStore_DownloadDir(t *testing.T) {
	objectStore, baseDir := setupTestObjectStore(t)

	destDir := filepath.Join(t.TempDir(), "download-target")
	files := []string{"model.onnx", "metadata.json", "subdir/file3.txt"}
	writeFiles(t, filepath.Join(baseDir, "models", "to-download"), files, "content")

	require.NoError(t, objectStore.DownloadDir(context.Background(), "models", "to-download", destDir, false))

	for _, file := range files {
		data, err := os.ReadFile(filepath.Join(destDir, file))
		require.NoError(t, err)
		assert.Equal(t, "content", string(data))
	}
}

func TestLocalObjectStore_DownloadDir_Missing(t *testing.T) {
	objectStore, _ := setupTestObjectStore(t)

	err := objectStore.DownloadDir(context.Background(), "models", "nope", filepath.Join(t.TempDir(), "dest"), false)
	assert.Error(t, err)
}

func TestLocalObjectStore_DownloadDir_Overwrite(t *testing.T) {
	objectStore, baseDir := setupTestObjectStore(t)

	destDir := t.TempDir()
	destFile := filepath.Join(destDir, "file1.txt")
	require.NoError(t, os.WriteFile(destFile, []byte("original"), os.ModePerm))

	writeFiles(t, filepath.Join(baseDir, "models", "to-download"), []string{"file1.txt", "file2.txt"}, "new")

	err := objectStore.DownloadDir(context.Background(), "models", "to-download", destDir, false)
	require.Error(t, err)
	data, err := os.ReadFile(destFile)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data), "File should not be overwritten when overwrite=false")

	err = objectStore.DownloadDir(context.Background(), "models", "to-download", destDir, true)
	require.NoError(t, err)
	data, err = os.ReadFile(destFile)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data), "File should be overwritten when overwrite=true")
}
