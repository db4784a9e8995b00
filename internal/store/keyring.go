package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

// KeyringKV stores entries in the OS keychain with an optional JSON file
// fallback for environments where no system keyring is available.
type KeyringKV struct {
	service      string
	fallbackPath string
	mu           sync.Mutex
}

// NewKeyringKV creates a keyring-backed store.
func NewKeyringKV(service, fallbackPath string) *KeyringKV {
	if strings.TrimSpace(service) == "" {
		service = "roulette-tracker"
	}
	return &KeyringKV{service: service, fallbackPath: fallbackPath}
}

func (k *KeyringKV) Get(_ context.Context, key string) (string, bool, error) {
	val, err := keyring.Get(k.service, key)
	if err == nil {
		return val, true, nil
	}
	if !isKeyringUnavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return "", false, fmt.Errorf("keyring get %s: %w", key, err)
	}

	val, ok, ferr := k.getFallback(key)
	if ferr != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", false, nil
		}
		return "", false, ferr
	}
	return val, ok, nil
}

func (k *KeyringKV) Set(_ context.Context, key, value string) error {
	err := keyring.Set(k.service, key, value)
	if err == nil {
		return nil
	}
	if !isKeyringUnavailable(err) {
		return fmt.Errorf("keyring set %s: %w", key, err)
	}
	return k.setFallback(key, value)
}

func (k *KeyringKV) Delete(_ context.Context, key string) error {
	err := keyring.Delete(k.service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) && !isKeyringUnavailable(err) {
		return fmt.Errorf("keyring delete %s: %w", key, err)
	}
	return k.deleteFallback(key)
}

func (k *KeyringKV) Close() error { return nil }

func isKeyringUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "secret service") ||
		strings.Contains(msg, "dbus") ||
		strings.Contains(msg, "no keychain") ||
		strings.Contains(msg, "keyring backend not available")
}

func (k *KeyringKV) getFallback(key string) (string, bool, error) {
	if strings.TrimSpace(k.fallbackPath) == "" {
		return "", false, fmt.Errorf("keyring unavailable and no fallback path configured")
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := k.readFallbackUnlocked()
	if err != nil {
		return "", false, err
	}
	v, ok := data[key]
	return v, ok, nil
}

func (k *KeyringKV) setFallback(key, value string) error {
	if strings.TrimSpace(k.fallbackPath) == "" {
		return fmt.Errorf("keyring unavailable and no fallback path configured")
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := k.readFallbackUnlocked()
	if err != nil {
		return err
	}
	data[key] = value
	return k.writeFallbackUnlocked(data)
}

func (k *KeyringKV) deleteFallback(key string) error {
	if strings.TrimSpace(k.fallbackPath) == "" {
		return nil
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := k.readFallbackUnlocked()
	if err != nil {
		return err
	}
	if _, ok := data[key]; !ok {
		return nil
	}
	delete(data, key)
	return k.writeFallbackUnlocked(data)
}

func (k *KeyringKV) readFallbackUnlocked() (map[string]string, error) {
	out := map[string]string{}
	raw, err := os.ReadFile(k.fallbackPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("read fallback store: %w", err)
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode fallback store: %w", err)
	}
	return out, nil
}

func (k *KeyringKV) writeFallbackUnlocked(data map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(k.fallbackPath), 0o700); err != nil {
		return fmt.Errorf("mkdir fallback dir: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode fallback store: %w", err)
	}
	if err := os.WriteFile(k.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("write fallback store: %w", err)
	}
	return nil
}
