package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingKey = errors.New("missing API key")
	ErrInvalidKey = errors.New("invalid API key")
)

// APIKey is one configured admin key
type APIKey struct {
	Name   string `json:"name"`
	Secret string `json:"-"` // Never serialize the secret
}

// ParseAPIKey parses "name:secret"; a bare secret gets the name key-<n>
func ParseAPIKey(value string, n int) (APIKey, error) {
	name, secret, found := strings.Cut(value, ":")
	if !found {
		name, secret = fmt.Sprintf("key-%d", n), value
	}
	if name == "" || secret == "" {
		return APIKey{}, fmt.Errorf("API key %d: name and secret cannot be empty", n)
	}
	return APIKey{Name: name, Secret: secret}, nil
}

// Keyring holds the accepted keys. It is immutable after creation.
type Keyring struct {
	keys []APIKey
}

// NewKeyring parses the configured keys
func NewKeyring(values []string) (*Keyring, error) {
	k := &Keyring{keys: make([]APIKey, 0, len(values))}
	seen := make(map[string]bool, len(values))
	for i, value := range values {
		key, err := ParseAPIKey(value, i+1)
		if err != nil {
			return nil, err
		}
		if seen[key.Name] {
			return nil, fmt.Errorf("duplicate API key name %q", key.Name)
		}
		seen[key.Name] = true
		k.keys = append(k.keys, key)
	}
	return k, nil
}

// Len returns the number of keys
func (k *Keyring) Len() int { return len(k.keys) }

// Validate returns the key matching secret
func (k *Keyring) Validate(secret string) (APIKey, error) {
	if secret == "" {
		return APIKey{}, ErrMissingKey
	}

	// Use constant-time comparison against every key
	var match APIKey
	found := 0
	for _, key := range k.keys {
		if subtle.ConstantTimeCompare([]byte(key.Secret), []byte(secret)) == 1 {
			match = key
			found = 1
		}
	}
	if found == 0 {
		return APIKey{}, ErrInvalidKey
	}
	return match, nil
}
