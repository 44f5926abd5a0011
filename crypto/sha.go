// Package crypto implements the cryptographic primitives the verified-boot
// core depends on: streaming SHA-256/512, RSASSA-PKCS#1 v1.5 verification
// against pre-encoded public keys, Ed25519 signatures (RFC 8032), and X25519
// scalar multiplication (RFC 7748).
package crypto

import (
	"crypto/sha512"
	"fmt"
	"hash"

	sha256 "github.com/minio/sha256-simd"
)

// Digest sizes in bytes.
const (
	SHA256DigestSize = 32
	SHA512DigestSize = 64
)

// Hasher is a streaming digest context. A context is single-use: after Final
// the caller must Init again before feeding more data.
type Hasher interface {
	Init()
	Update(data []byte)
	// Final returns the digest as a slice into the context's own buffer;
	// the bytes stay valid until the next Init.
	Final() []byte
	DigestSize() int
}

// SHA256Ctx is a streaming SHA-256 context.
type SHA256Ctx struct {
	h   hash.Hash
	buf [SHA256DigestSize]byte
}

// Init resets the context for a new message.
func (c *SHA256Ctx) Init() { c.h = sha256.New() }

// Update feeds message bytes into the context.
func (c *SHA256Ctx) Update(data []byte) { c.h.Write(data) }

// Final completes the hash and returns the 32-byte digest.
func (c *SHA256Ctx) Final() []byte {
	c.h.Sum(c.buf[:0])
	return c.buf[:]
}

// DigestSize returns 32.
func (c *SHA256Ctx) DigestSize() int { return SHA256DigestSize }

// SHA512Ctx is a streaming SHA-512 context.
type SHA512Ctx struct {
	h   hash.Hash
	buf [SHA512DigestSize]byte
}

// Init resets the context for a new message.
func (c *SHA512Ctx) Init() { c.h = sha512.New() }

// Update feeds message bytes into the context.
func (c *SHA512Ctx) Update(data []byte) { c.h.Write(data) }

// Final completes the hash and returns the 64-byte digest.
func (c *SHA512Ctx) Final() []byte {
	c.h.Sum(c.buf[:0])
	return c.buf[:]
}

// DigestSize returns 64.
func (c *SHA512Ctx) DigestSize() int { return SHA512DigestSize }

// NewHasher returns an initialized streaming context for the named digest
// algorithm. Descriptors carry the name on the wire ("sha256" or "sha512").
func NewHasher(name string) (Hasher, error) {
	switch name {
	case "sha256":
		c := &SHA256Ctx{}
		c.Init()
		return c, nil
	case "sha512":
		c := &SHA512Ctx{}
		c.Init()
		return c, nil
	default:
		return nil, fmt.Errorf("crypto: unknown hash algorithm %q", name)
	}
}

// SHA256 computes the SHA-256 digest of the concatenation of the inputs.
func SHA256(data ...[]byte) []byte {
	c := SHA256Ctx{}
	c.Init()
	for _, d := range data {
		c.Update(d)
	}
	out := make([]byte, SHA256DigestSize)
	copy(out, c.Final())
	return out
}

// SHA512 computes the SHA-512 digest of the concatenation of the inputs.
func SHA512(data ...[]byte) []byte {
	c := SHA512Ctx{}
	c.Init()
	for _, d := range data {
		c.Update(d)
	}
	out := make([]byte, SHA512DigestSize)
	copy(out, c.Final())
	return out
}
