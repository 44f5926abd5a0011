// Package vbmeta parses and authenticates vbmeta images: the 256-byte
// header, the authentication and auxiliary blocks, and the root signature
// over them. The trust decision about the embedded public key is the
// caller's; this package only establishes that the image is internally
// consistent and correctly signed by that key.
package vbmeta

import (
	"fmt"

	"github.com/linux-univx/avb/crypto"
)

// Algorithm selects the (hash, signature) pair protecting a vbmeta image.
type Algorithm uint32

// Algorithm values, as stored in the header.
const (
	AlgNone Algorithm = iota
	AlgSHA256RSA2048
	AlgSHA256RSA4096
	AlgSHA256RSA8192
	AlgSHA512RSA2048
	AlgSHA512RSA4096
	AlgSHA512RSA8192
)

// Valid reports whether the value is a known algorithm.
func (a Algorithm) Valid() bool { return a <= AlgSHA512RSA8192 }

// HashName returns the digest algorithm name, or "" for AlgNone.
func (a Algorithm) HashName() string {
	switch a {
	case AlgSHA256RSA2048, AlgSHA256RSA4096, AlgSHA256RSA8192:
		return "sha256"
	case AlgSHA512RSA2048, AlgSHA512RSA4096, AlgSHA512RSA8192:
		return "sha512"
	default:
		return ""
	}
}

// HashSize returns the digest size in bytes, or 0 for AlgNone.
func (a Algorithm) HashSize() int {
	switch a.HashName() {
	case "sha256":
		return crypto.SHA256DigestSize
	case "sha512":
		return crypto.SHA512DigestSize
	default:
		return 0
	}
}

// KeyNumBits returns the RSA modulus size in bits, or 0 for AlgNone.
func (a Algorithm) KeyNumBits() int {
	switch a {
	case AlgSHA256RSA2048, AlgSHA512RSA2048:
		return crypto.RSA2048NumBits
	case AlgSHA256RSA4096, AlgSHA512RSA4096:
		return crypto.RSA4096NumBits
	case AlgSHA256RSA8192, AlgSHA512RSA8192:
		return crypto.RSA8192NumBits
	default:
		return 0
	}
}

// SignatureSize returns the signature size in bytes, or 0 for AlgNone.
func (a Algorithm) SignatureSize() int { return a.KeyNumBits() / 8 }

// String returns the algorithm name used in tool output.
func (a Algorithm) String() string {
	switch a {
	case AlgNone:
		return "NONE"
	case AlgSHA256RSA2048:
		return "SHA256_RSA2048"
	case AlgSHA256RSA4096:
		return "SHA256_RSA4096"
	case AlgSHA256RSA8192:
		return "SHA256_RSA8192"
	case AlgSHA512RSA2048:
		return "SHA512_RSA2048"
	case AlgSHA512RSA4096:
		return "SHA512_RSA4096"
	case AlgSHA512RSA8192:
		return "SHA512_RSA8192"
	default:
		return fmt.Sprintf("ALGORITHM(%d)", uint32(a))
	}
}
