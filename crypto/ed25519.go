package crypto

import (
	"bytes"
	"crypto/sha512"
	"errors"

	"filippo.io/edwards25519"
)

// Ed25519 signatures per RFC 8032. Signing follows the deterministic
// construction: az = SHA-512(seed) with the low half clamped into the secret
// scalar, nonce r = SHA-512(az[32:] || M) reduced mod l, R = r*B,
// k = SHA-512(enc(R) || A || M) mod l, s = r + k*a mod l. Verification
// performs the inverse check s*B == R + k*A in variable time; signatures
// and keys are public at that point.
//
// Group, scalar, and field arithmetic come from filippo.io/edwards25519,
// which keeps all secret-dependent selects and swaps constant-time.

// Ed25519 sizes in bytes.
const (
	Ed25519SeedSize      = 32
	Ed25519PublicKeySize = 32
	Ed25519SignatureSize = 64
)

// ErrEd25519BadSeed is returned for seeds of the wrong length.
var ErrEd25519BadSeed = errors.New("crypto: ed25519 seed must be 32 bytes")

// ed25519Secret expands a seed into the clamped secret scalar and the
// 32-byte nonce prefix.
func ed25519Secret(seed []byte) (*edwards25519.Scalar, []byte) {
	az := sha512.Sum512(seed)
	a, err := edwards25519.NewScalar().SetBytesWithClamping(az[:32])
	if err != nil {
		// SetBytesWithClamping only fails on a wrong-length input.
		panic("crypto: ed25519 clamping failed: " + err.Error())
	}
	prefix := make([]byte, 32)
	copy(prefix, az[32:])
	return a, prefix
}

// Ed25519Public derives the 32-byte public key from a 32-byte seed.
func Ed25519Public(seed []byte) ([]byte, error) {
	if len(seed) != Ed25519SeedSize {
		return nil, ErrEd25519BadSeed
	}
	a, _ := ed25519Secret(seed)
	A := (&edwards25519.Point{}).ScalarBaseMult(a)
	return A.Bytes(), nil
}

// Ed25519Sign produces a 64-byte signature over message with the key derived
// from the 32-byte seed.
func Ed25519Sign(seed, message []byte) ([]byte, error) {
	if len(seed) != Ed25519SeedSize {
		return nil, ErrEd25519BadSeed
	}
	a, prefix := ed25519Secret(seed)
	A := (&edwards25519.Point{}).ScalarBaseMult(a)

	// r = SHA-512(prefix || M) mod l
	h := sha512.New()
	h.Write(prefix)
	h.Write(message)
	var rDigest [64]byte
	h.Sum(rDigest[:0])
	r, err := edwards25519.NewScalar().SetUniformBytes(rDigest[:])
	if err != nil {
		panic("crypto: ed25519 nonce reduction failed: " + err.Error())
	}

	R := (&edwards25519.Point{}).ScalarBaseMult(r)
	k := ed25519Challenge(R.Bytes(), A.Bytes(), message)

	// s = r + k*a mod l
	s := edwards25519.NewScalar().MultiplyAdd(k, a, r)

	sig := make([]byte, Ed25519SignatureSize)
	copy(sig[:32], R.Bytes())
	copy(sig[32:], s.Bytes())
	return sig, nil
}

// Ed25519Verify reports whether sig is a valid signature over message by the
// holder of pub.
func Ed25519Verify(pub, message, sig []byte) bool {
	if len(pub) != Ed25519PublicKeySize || len(sig) != Ed25519SignatureSize {
		return false
	}
	A, err := (&edwards25519.Point{}).SetBytes(pub)
	if err != nil {
		return false
	}
	// Reject non-canonical s; forbids trivial signature malleability.
	s, err := edwards25519.NewScalar().SetCanonicalBytes(sig[32:])
	if err != nil {
		return false
	}
	k := ed25519Challenge(sig[:32], pub, message)

	// Check s*B == R + k*A by computing R' = s*B + k*(-A) and comparing
	// encodings against the transmitted R.
	minusA := (&edwards25519.Point{}).Negate(A)
	R := (&edwards25519.Point{}).VarTimeDoubleScalarBaseMult(k, minusA, s)
	return bytes.Equal(R.Bytes(), sig[:32])
}

// ed25519Challenge computes k = SHA-512(R || A || M) mod l.
func ed25519Challenge(rEnc, aEnc, message []byte) *edwards25519.Scalar {
	h := sha512.New()
	h.Write(rEnc)
	h.Write(aEnc)
	h.Write(message)
	var digest [64]byte
	h.Sum(digest[:0])
	k, err := edwards25519.NewScalar().SetUniformBytes(digest[:])
	if err != nil {
		panic("crypto: ed25519 challenge reduction failed: " + err.Error())
	}
	return k
}
