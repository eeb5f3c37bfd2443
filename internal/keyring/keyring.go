// Package keyring stores Kraken API credentials and rotates between them.
// Secrets are base64-encoded signing material; the ring decodes them once
// at insertion so a bad encoding is caught before any request is signed.
package keyring

import (
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

// APIKey is one Kraken credential pair. Secret holds the raw decoded
// signing material, ready for HMAC use.
type APIKey struct {
	ID         string
	Key        string
	Secret     []byte
	Disabled   bool
	LastUsed   time.Time
	ErrorCount int
}

// RotationStrategy controls when the ring advances to the next key.
type RotationStrategy int

const (
	// RotationRoundRobin rotates only on explicit Rotate calls.
	RotationRoundRobin RotationStrategy = iota
	// RotationOnError rotates whenever the current key records an error.
	RotationOnError
)

// Ring holds an ordered set of API keys with a current cursor.
// Safe for concurrent use.
type Ring struct {
	mu       sync.RWMutex
	keys     []*APIKey
	current  int
	strategy RotationStrategy
}

// New creates a Ring with the given rotation strategy and no keys.
func New(strategy RotationStrategy) *Ring {
	return &Ring{strategy: strategy}
}

// Add decodes the base64 secret and appends the key to the ring.
// Keys with a duplicate ID are ignored.
func (r *Ring) Add(id, key, encodedSecret string) error {
	secret, err := base64.StdEncoding.DecodeString(encodedSecret)
	if err != nil {
		return fmt.Errorf("decode api secret: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.keys {
		if existing.ID == id {
			return nil
		}
	}

	r.keys = append(r.keys, &APIKey{ID: id, Key: key, Secret: secret})
	return nil
}

// Current returns the first enabled key at or after the cursor, or nil
// when no key is usable.
func (r *Ring) Current() *APIKey {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.keys) == 0 {
		return nil
	}

	for i := 0; i < len(r.keys); i++ {
		idx := (r.current + i) % len(r.keys)
		if !r.keys[idx].Disabled {
			return r.keys[idx]
		}
	}
	return nil
}

// Rotate advances the cursor to the next enabled key.
func (r *Ring) Rotate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rotateLocked()
}

func (r *Ring) rotateLocked() {
	if len(r.keys) == 0 {
		return
	}
	start := r.current
	for {
		r.current = (r.current + 1) % len(r.keys)
		if !r.keys[r.current].Disabled || r.current == start {
			return
		}
	}
}

// OnError records a failure against the current key and rotates if the
// strategy asks for it.
func (r *Ring) OnError() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.keys) == 0 {
		return
	}
	r.keys[r.current].ErrorCount++
	if r.strategy == RotationOnError {
		r.rotateLocked()
	}
}

// MarkUsed stamps the current key with the time of its last use.
func (r *Ring) MarkUsed() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.keys) == 0 {
		return
	}
	r.keys[r.current].LastUsed = time.Now()
}

// Disable takes the key with the given ID out of rotation.
func (r *Ring) Disable(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range r.keys {
		if key.ID == id {
			key.Disabled = true
			return
		}
	}
}

// Enable returns a disabled key to rotation and resets its error count.
func (r *Ring) Enable(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range r.keys {
		if key.ID == id {
			key.Disabled = false
			key.ErrorCount = 0
			return
		}
	}
}

// Len returns the number of keys in the ring, disabled ones included.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys)
}

// String masks the key so credentials never reach logs verbatim.
func (k *APIKey) String() string {
	return fmt.Sprintf("APIKey{ID:%s, Key:%s}", k.ID, maskKey(k.Key))
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
