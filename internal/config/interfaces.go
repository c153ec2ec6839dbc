package config

import "context"

// SecretProvider resolves secret references to plaintext values. The keys
// are provider-specific references (file paths for FileSecretProvider).
type SecretProvider interface {
	// GetParametersBatch resolves every key it can. Keys that cannot be
	// found are omitted from the result rather than reported as errors.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
