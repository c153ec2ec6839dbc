package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// FileSecretProvider resolves secrets mounted as files, the way container
// orchestrators expose them (for example /run/secrets/stripe_key).
type FileSecretProvider struct {
	readFile func(name string) ([]byte, error)
}

// NewFileSecretProvider creates a FileSecretProvider backed by the OS.
func NewFileSecretProvider() *FileSecretProvider {
	return &FileSecretProvider{readFile: os.ReadFile}
}

// GetParametersBatch reads each key as a file path. Missing files are
// omitted; any other read failure aborts the batch. Trailing newlines are
// trimmed.
func (p *FileSecretProvider) GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := p.readFile(key)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("reading secret file %s: %w", key, err)
		}
		result[key] = strings.TrimRight(string(raw), "\r\n")
	}
	return result, nil
}
