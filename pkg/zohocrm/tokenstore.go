package zohocrm

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// TokenFileName is the file kept under the configured token directory.
const TokenFileName = "access_token.json"

// TokenStore persists the raw token document between runs.
type TokenStore interface {
	// Read returns the stored token bytes or ErrTokenNotFound.
	Read() ([]byte, error)
	Write(data []byte) error
}

// FileTokenStore keeps the token as the sole content of one JSON file.
type FileTokenStore struct {
	path string
}

func NewFileTokenStore(dir string) *FileTokenStore {
	return &FileTokenStore{path: filepath.Join(dir, TokenFileName)}
}

// Path returns the token file location.
func (s *FileTokenStore) Path() string {
	return s.path
}

func (s *FileTokenStore) Read() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	return data, nil
}

// Write replaces the file via rename so readers never see a partial token.
func (s *FileTokenStore) Write(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, TokenFileName+".*")
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}
