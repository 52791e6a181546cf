package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteFileAtomic copies r into path through a temporary file in the same
// directory. The temporary file is removed on any failure.
func WriteFileAtomic(path string, r io.Reader) (int64, error) {
	return writeAtomic(path, r, 0644)
}

// WriteBytesAtomic is WriteFileAtomic for an in-memory payload
func WriteBytesAtomic(path string, data []byte) error {
	_, err := writeAtomic(path, bytes.NewReader(data), 0644)
	return err
}

// WritePrivateAtomic writes data readable by the owner only (0600)
func WritePrivateAtomic(path string, data []byte) error {
	_, err := writeAtomic(path, bytes.NewReader(data), 0600)
	return err
}

func writeAtomic(path string, r io.Reader, perm os.FileMode) (int64, error) {
	dir := filepath.Dir(path)
	if err := EnsureDir(dir); err != nil {
		return 0, err
	}

	file, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempPath := file.Name()

	n, err := io.Copy(file, r)
	if err != nil {
		file.Close()
		os.Remove(tempPath)
		return n, fmt.Errorf("failed to write data: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return n, fmt.Errorf("failed to sync temporary file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return n, fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := os.Chmod(tempPath, perm); err != nil {
		os.Remove(tempPath)
		return n, fmt.Errorf("failed to set file mode: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return n, fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return n, nil
}

// Exists reports whether path exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EnsureDir creates dir and its parents
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}
