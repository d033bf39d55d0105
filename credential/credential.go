// Package credential supplies the bearer token used for KIE API calls.
package credential

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/GoCodeAlone/kiejob/failure"
)

// Provider returns the API key for the current call chain.
type Provider interface {
	Credential(ctx context.Context) (string, error)
}

// Static is a fixed token, mostly useful in tests.
type Static string

// Credential returns the token, failing when it is blank.
func (s Static) Credential(_ context.Context) (string, error) {
	key := strings.TrimSpace(string(s))
	if key == "" {
		return "", missing("static credential is empty")
	}
	return key, nil
}

// File reads the API key from a text file on every call.
type File struct {
	Path string
}

// Credential reads and trims the key file.
func (f File) Credential(_ context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", missing("KIE API key not found. Please create %s with your API key", f.Path)
	}
	if err != nil {
		return "", failure.Wrap(failure.Fatal, "credential", failure.ErrCredential, "read %s: %v", f.Path, err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", missing("KIE API key file %s is empty. Please add your key", f.Path)
	}
	return key, nil
}

// Env reads the API key from an environment variable.
type Env struct {
	Name string
}

// Credential returns the trimmed variable value.
func (e Env) Credential(_ context.Context) (string, error) {
	key := strings.TrimSpace(os.Getenv(e.Name))
	if key == "" {
		return "", missing("environment variable %s is not set", e.Name)
	}
	return key, nil
}

// Chain tries each provider in order and returns the first key found.
type Chain []Provider

// Credential returns the first successful credential. When all providers
// fail, the errors are joined.
func (c Chain) Credential(ctx context.Context) (string, error) {
	if len(c) == 0 {
		return "", missing("no credential providers configured")
	}
	var errs []error
	for _, p := range c {
		key, err := p.Credential(ctx)
		if err == nil {
			return key, nil
		}
		errs = append(errs, err)
	}
	return "", failure.Wrap(failure.Fatal, "credential", errors.Join(errs...), "no provider returned a key")
}

func missing(format string, args ...any) error {
	return &failure.Error{
		Kind:    failure.Fatal,
		Op:      "credential",
		Message: fmt.Sprintf(format, args...),
		Err:     failure.ErrCredential,
	}
}
