// Package secrets defines the key lookup used by provider adapters for auth material.
// The vault behind a Store is out of scope; Env and Map cover configuration and tests.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("secrets: key not found")

// Store resolves a secret by key.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
}

// Map is an in-memory Store. The zero value is empty and ready to use.
type Map struct {
	mu   sync.RWMutex
	vals map[string]string
}

// NewMap returns a Map seeded with vals.
func NewMap(vals map[string]string) *Map {
	m := &Map{vals: make(map[string]string, len(vals))}
	for k, v := range vals {
		m.vals[k] = v
	}
	return m
}

// Set stores value under key.
func (m *Map) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vals == nil {
		m.vals = make(map[string]string)
	}
	m.vals[key] = value
}

// Get implements Store.
func (m *Map) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vals[key]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return v, nil
}

// Env reads secrets from environment variables through viper.
// With prefix "PROMPTKIT", key "openai_api_key" resolves PROMPTKIT_OPENAI_API_KEY,
// falling back to OPENAI_API_KEY.
type Env struct {
	prefixed *viper.Viper
	plain    *viper.Viper
}

// NewEnv returns an Env store. prefix may be empty.
func NewEnv(prefix string) *Env {
	e := &Env{plain: newEnvViper("")}
	if prefix != "" {
		e.prefixed = newEnvViper(prefix)
	}
	return e
}

func newEnvViper(prefix string) *viper.Viper {
	v := viper.New()
	if prefix != "" {
		v.SetEnvPrefix(prefix)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Get implements Store.
func (e *Env) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if e.prefixed != nil {
		if v := e.prefixed.GetString(key); v != "" {
			return v, nil
		}
	}
	if v := e.plain.GetString(key); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %q", ErrNotFound, key)
}

var (
	_ Store = (*Map)(nil)
	_ Store = (*Env)(nil)
)
