// Copyright 2026 The PlantOps Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package token

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

// JWK represents a JSON Web Key (RFC 7517)
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS represents a JSON Web Key Set (RFC 7517)
type JWKS struct {
	Keys []JWK `json:"keys"`
}

type signingKey struct {
	kid       string
	private   *rsa.PrivateKey
	createdAt time.Time
	retiredAt time.Time // zero while active
}

// KeySet holds the kid-indexed RSA signing keys. Exactly one key is active
// for signing; retired keys remain verifiable until pruned, so tokens issued
// before a rotation stay valid through their natural lifetime. Keys are
// generated with crypto/rsa — there is no placeholder fallback; generation
// failure is an error the caller must treat as fatal.
type KeySet struct {
	mu     sync.RWMutex
	active string
	keys   map[string]*signingKey
	bits   int
	now    func() time.Time
}

// NewKeySet generates the initial signing key.
func NewKeySet(bits int) (*KeySet, error) {
	if bits < 2048 {
		bits = 2048
	}
	ks := &KeySet{
		keys: make(map[string]*signingKey),
		bits: bits,
		now:  time.Now,
	}
	kid, err := ks.Rotate()
	if err != nil {
		return nil, err
	}
	ks.active = kid
	return ks, nil
}

// Rotate generates and publishes a new active key. The previous active key
// is retired but stays in the set for verification.
func (ks *KeySet) Rotate() (string, error) {
	private, err := rsa.GenerateKey(rand.Reader, ks.bits)
	if err != nil {
		return "", fmt.Errorf("failed to generate signing key: %w", err)
	}

	// Stable, deterministic kid: SHA-256 thumbprint of the public modulus.
	hash := sha256.Sum256(private.PublicKey.N.Bytes())
	kid := base64.RawURLEncoding.EncodeToString(hash[:16])

	ks.mu.Lock()
	defer ks.mu.Unlock()

	if previous, ok := ks.keys[ks.active]; ok {
		previous.retiredAt = ks.now()
	}
	ks.keys[kid] = &signingKey{
		kid:       kid,
		private:   private,
		createdAt: ks.now(),
	}
	ks.active = kid

	return kid, nil
}

// Signer returns the active key for signing.
func (ks *KeySet) Signer() (string, *rsa.PrivateKey) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	key := ks.keys[ks.active]
	return key.kid, key.private
}

// Verifier returns the public key for a kid, false when the kid is not in
// the set.
func (ks *KeySet) Verifier(kid string) (*rsa.PublicKey, bool) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	key, ok := ks.keys[kid]
	if !ok {
		return nil, false
	}
	return &key.private.PublicKey, true
}

// Prune drops retired keys once no outstanding token can still reference
// them: a key retired longer than maxTokenLifetime ago signed nothing that
// is still valid.
func (ks *KeySet) Prune(maxTokenLifetime time.Duration) {
	cutoff := ks.now().Add(-maxTokenLifetime)

	ks.mu.Lock()
	defer ks.mu.Unlock()
	for kid, key := range ks.keys {
		if !key.retiredAt.IsZero() && key.retiredAt.Before(cutoff) {
			delete(ks.keys, kid)
		}
	}
}

// JWKS returns the verification material for every key in the set, the
// active key first. The modulus and exponent are the real key components.
func (ks *KeySet) JWKS() JWKS {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	keys := make([]JWK, 0, len(ks.keys))
	if active, ok := ks.keys[ks.active]; ok {
		keys = append(keys, toJWK(active))
	}
	for kid, key := range ks.keys {
		if kid != ks.active {
			keys = append(keys, toJWK(key))
		}
	}
	return JWKS{Keys: keys}
}

func toJWK(key *signingKey) JWK {
	pub := key.private.PublicKey
	return JWK{
		Kty: "RSA",
		Use: "sig",
		Alg: "RS256",
		Kid: key.kid,
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(intToBytes(pub.E)),
	}
}

func intToBytes(n int) []byte {
	if n == 0 {
		return []byte{0}
	}
	var res []byte
	for n > 0 {
		res = append([]byte{byte(n & 0xff)}, res...)
		n >>= 8
	}
	return res
}
