package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

var sessionKeys = []string{KeyToken, KeyUsername, KeyRole, KeyUserID}

// FileStorage keeps session values in a JSON file so a short-lived CLI process finds the
// session written by the previous one. It does not announce changes.
type FileStorage struct {
	mu   sync.Mutex
	path string
}

// NewFileStorage stores the session at path.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// DefaultSessionPath returns the per-user session file location.
func DefaultSessionPath(namespace string) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	if namespace == "" {
		namespace = "classroom"
	}
	return filepath.Join(dir, namespace, "session.json"), nil
}

func (f *FileStorage) Load(_ context.Context) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, err := f.read()
	if err != nil {
		return nil, err
	}

	// viper folds keys to lower case; read them back under their canonical names.
	values := make(map[string]string, len(sessionKeys))
	for _, key := range sessionKeys {
		if value := v.GetString(key); value != "" {
			values[key] = value
		}
	}
	return values, nil
}

func (f *FileStorage) Save(_ context.Context, values map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, err := f.read()
	if err != nil {
		return err
	}
	for key, value := range values {
		v.Set(key, value)
	}
	return f.write(v)
}

func (f *FileStorage) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (f *FileStorage) read() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(f.path)
	v.SetConfigType("json")
	if info, err := os.Stat(f.path); err == nil && info.Size() == 0 {
		return v, nil
	}
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		return nil, fmt.Errorf("read session: %w", err)
	}
	return v, nil
}

func (f *FileStorage) write(v *viper.Viper) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	// Create the file owner-only before the token is written into it.
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Chmod(f.path, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}

	v.SetConfigPermissions(0o600)
	if err := v.WriteConfigAs(f.path); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}
