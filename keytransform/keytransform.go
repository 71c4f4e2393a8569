// Package keytransform maps application keys to protocol keys.
//
// The protocol restricts keys to 250 bytes with no control characters; a
// transformer gives callers a fixed mapping (hashing, case folding) applied
// before validation. The default is identity.
package keytransform

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash"
)

// Transformer converts a caller key into the key sent on the wire.
type Transformer func(key string) string

// Identity passes keys through untouched.
func Identity(key string) string { return key }

// Lowercase folds keys to lower case.
func Lowercase(key string) string { return strings.ToLower(key) }

// SHA1Hex replaces the key with the hex form of its sha1 digest, keeping any
// caller key under the protocol length cap.
func SHA1Hex(key string) string {
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

// XXHashHex replaces the key with the hex form of its 64-bit xxHash. Shorter
// than SHA1Hex when digest collisions are acceptable.
func XXHashHex(key string) string {
	return strconv.FormatUint(xxhash.Sum64String(key), 16)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Transformer{
		"identity":  Identity,
		"lowercase": Lowercase,
		"sha1":      SHA1Hex,
		"xxhash":    XXHashHex,
	}
)

// Register makes a transformer available under name for config lookup.
func Register(name string, t Transformer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = t
}

// New returns the transformer registered under name.
func New(name string) (Transformer, error) {
	registryMu.RLock()
	t, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("keytransform: unknown transformer %q", name)
	}
	return t, nil
}
