// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Resolve the _FILE pointers of secret fields through the SecretProvider
//     and inject the values back into the environment.
//  4. Use envconfig to populate the Config struct.
//  5. Populate BuildInfo from linker-injected variables.
//  6. Validate the struct using go-playground/validator.
package config

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is the diagnostic error returned by LoadConfig.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// secretFileSuffix marks pointer variables: STRIPE_SECRET_KEY_FILE names the
// file holding STRIPE_SECRET_KEY.
const secretFileSuffix = "_FILE"

const localEnv = "local"

type envLookup func(key string) (string, bool)

type envSet func(key, value string) error

// loaderDeps holds the injectable environment accessors.
type loaderDeps struct {
	lookupEnv envLookup
	setEnv    envSet
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
	}
}

// LoadConfig loads and validates the configuration. The provider resolves
// _FILE pointer variables; it may be nil when none are set.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfigWithDeps(provider, defaultDeps())
}

func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	time.Local = time.UTC

	// Does not override variables that are already set.
	_ = godotenv.Load()

	if err := resolveSecretFiles(provider, deps); err != nil {
		return nil, err
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	return &cfg, nil
}

// secretTargets lists the environment names of the SecretString fields of
// Config. Only these can be supplied through a _FILE pointer, so unrelated
// variables such as SSL_CERT_FILE are left alone.
func secretTargets() []string {
	var names []string
	collectSecretTargets(reflect.TypeOf(Config{}), &names)
	return names
}

func collectSecretTargets(t reflect.Type, names *[]string) {
	secretType := reflect.TypeOf(SecretString(""))
	for i := range t.NumField() {
		f := t.Field(i)
		switch {
		case f.Type == secretType:
			if name := f.Tag.Get("envconfig"); name != "" {
				*names = append(*names, name)
			}
		case f.Type.Kind() == reflect.Struct:
			collectSecretTargets(f.Type, names)
		}
	}
}

// resolveSecretFiles resolves the _FILE pointers of the secret targets in one
// batch and injects the values under the target name. A target that is
// already set wins over its pointer.
func resolveSecretFiles(provider SecretProvider, deps loaderDeps) error {
	targetToPath := make(map[string]string)
	var targets, paths []string
	seen := make(map[string]bool)

	for _, target := range secretTargets() {
		if _, exists := deps.lookupEnv(target); exists {
			continue
		}
		path, ok := deps.lookupEnv(target + secretFileSuffix)
		if !ok || path == "" {
			continue
		}
		targetToPath[target] = path
		targets = append(targets, target)
		if !seen[path] {
			seen[path] = true
			paths = append(paths, path)
		}
	}

	if len(targets) == 0 {
		return nil
	}

	if provider == nil {
		return &ConfigError{
			Type:    ErrSecretResolution,
			Message: fmt.Sprintf("SecretProvider is required to resolve: %s", strings.Join(targets, ", ")),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSecretResolution,
			Message: fmt.Sprintf("failed to resolve %d secret files", len(paths)),
			Err:     err,
		}
	}

	var missing []string
	for _, target := range targets {
		value, ok := resolved[targetToPath[target]]
		if !ok {
			missing = append(missing, target)
			continue
		}
		if err := deps.setEnv(target, value); err != nil {
			return &ConfigError{
				Type:    ErrSecretResolution,
				Message: fmt.Sprintf("failed to set resolved value for %s", target),
				Err:     err,
			}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSecretResolution,
			Message: fmt.Sprintf("secret files not found for: %s", strings.Join(missing, ", ")),
		}
	}
	return nil
}
