// Package credential turns plaintext secrets into stored digests and checks
// secrets against them.
//
// Two digest formats are understood:
//
//	sha256  64 lowercase hex chars, unsalted (legacy, bit-compatible with existing rows)
//	bcrypt  modular crypt format "$2a$<cost>$..."
//
// Verify accepts either format regardless of the active scheme, so a
// deployment can switch to bcrypt and re-hash legacy digests on next login.
package credential

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Scheme names the digest format produced by Hash.
type Scheme string

const (
	SchemeSHA256 Scheme = "sha256"
	SchemeBcrypt Scheme = "bcrypt"
)

const (
	sha256HexLen = sha256.Size * 2
	// bcrypt ignores input past 72 bytes; longer secrets are refused instead.
	bcryptMaxLen = 72
)

// ErrSecretTooLong is returned by Hash when the active scheme cannot
// represent the whole secret.
var ErrSecretTooLong = errors.New("credential: secret too long")

// Codec hashes and verifies secrets.
type Codec struct {
	scheme Scheme
	cost   int
}

// Option configures a Codec.
type Option func(*Codec)

// WithBcryptCost overrides bcrypt.DefaultCost.
func WithBcryptCost(cost int) Option {
	return func(c *Codec) { c.cost = cost }
}

// New returns a Codec producing digests in the given scheme.
func New(scheme Scheme, opts ...Option) (*Codec, error) {
	switch scheme {
	case SchemeSHA256, SchemeBcrypt:
	default:
		return nil, fmt.Errorf("credential: unknown scheme %q", scheme)
	}
	c := &Codec{scheme: scheme, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Scheme reports the active scheme.
func (c *Codec) Scheme() Scheme {
	return c.scheme
}

// Hash returns the digest of secret in the active scheme.
func (c *Codec) Hash(secret string) (string, error) {
	if c.scheme == SchemeBcrypt {
		if len(secret) > bcryptMaxLen {
			return "", ErrSecretTooLong
		}
		b, err := bcrypt.GenerateFromPassword([]byte(secret), c.cost)
		if err != nil {
			return "", fmt.Errorf("bcrypt: %w", err)
		}
		return string(b), nil
	}
	return SHA256Digest(secret), nil
}

// Verify reports whether secret matches digest.
func (c *Codec) Verify(secret, digest string) bool {
	if isBcrypt(digest) {
		return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
	}
	if len(digest) != sha256HexLen {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(SHA256Digest(secret)), []byte(strings.ToLower(digest))) == 1
}

// NeedsRehash reports whether digest was produced by a weaker scheme than the
// active one.
func (c *Codec) NeedsRehash(digest string) bool {
	return c.scheme == SchemeBcrypt && !isBcrypt(digest)
}

// SHA256Digest is the legacy unsalted digest: lowercase hex of SHA-256 over
// the UTF-8 bytes of secret.
func SHA256Digest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func isBcrypt(digest string) bool {
	return strings.HasPrefix(digest, "$2")
}
