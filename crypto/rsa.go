package crypto

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// RSA signature verification over pre-encoded public keys.
//
// Keys arrive as the blob embedded in a vbmeta auxiliary block:
//
//	key_num_bits : u32 big-endian
//	n0inv        : u32 big-endian, -1/n[0] mod 2^32
//	n            : key_num_bits/8 bytes, big-endian modulus
//	rr           : key_num_bits/8 bytes, big-endian R^2 mod n, R = 2^key_num_bits
//
// The Montgomery constants are part of the wire contract, so the
// exponentiation below consumes them directly instead of re-deriving them.
// The public exponent is fixed at 65537.

// Supported RSA key sizes in bits.
const (
	RSA2048NumBits = 2048
	RSA4096NumBits = 4096
	RSA8192NumBits = 8192
)

var (
	// ErrInvalidKeyBlob is returned when a pre-encoded public key cannot
	// be parsed or has an unsupported size.
	ErrInvalidKeyBlob = errors.New("crypto: invalid RSA public key blob")
)

// RSAPublicKey is a parsed pre-encoded public key. Limb vectors are stored
// least-significant word first.
type RSAPublicKey struct {
	NumBits uint32
	n0inv   uint32
	n       []uint32
	rr      []uint32
}

// ParseRSAPublicKey decodes a pre-encoded public key blob. The blob must be
// exactly 8 + 2*(key_num_bits/8) bytes.
func ParseRSAPublicKey(blob []byte) (*RSAPublicKey, error) {
	if len(blob) < 8 {
		return nil, ErrInvalidKeyBlob
	}
	numBits := binary.BigEndian.Uint32(blob[0:4])
	switch numBits {
	case RSA2048NumBits, RSA4096NumBits, RSA8192NumBits:
	default:
		return nil, ErrInvalidKeyBlob
	}
	numBytes := int(numBits / 8)
	if len(blob) != 8+2*numBytes {
		return nil, ErrInvalidKeyBlob
	}
	k := &RSAPublicKey{
		NumBits: numBits,
		n0inv:   binary.BigEndian.Uint32(blob[4:8]),
		n:       limbsFromBE(blob[8 : 8+numBytes]),
		rr:      limbsFromBE(blob[8+numBytes : 8+2*numBytes]),
	}
	// The modulus of a real key is odd; an even low limb also breaks the
	// Montgomery reduction below.
	if k.n[0]&1 == 0 {
		return nil, ErrInvalidKeyBlob
	}
	return k, nil
}

// limbsFromBE converts big-endian bytes into little-endian uint32 limbs.
// len(b) must be a multiple of 4.
func limbsFromBE(b []byte) []uint32 {
	words := len(b) / 4
	out := make([]uint32, words)
	for i := 0; i < words; i++ {
		out[words-1-i] = binary.BigEndian.Uint32(b[i*4 : i*4+4])
	}
	return out
}

// limbsToBE converts little-endian uint32 limbs into big-endian bytes.
func limbsToBE(limbs []uint32) []byte {
	out := make([]byte, len(limbs)*4)
	for i, w := range limbs {
		binary.BigEndian.PutUint32(out[(len(limbs)-1-i)*4:], w)
	}
	return out
}

// geM reports whether a >= n.
func (k *RSAPublicKey) geM(a []uint32) bool {
	for i := len(a) - 1; i >= 0; i-- {
		if a[i] > k.n[i] {
			return true
		}
		if a[i] < k.n[i] {
			return false
		}
	}
	return true // equal
}

// subM computes a -= n in place.
func (k *RSAPublicKey) subM(a []uint32) {
	var borrow uint64
	for i := range a {
		d := uint64(a[i]) - uint64(k.n[i]) - borrow
		a[i] = uint32(d)
		borrow = (d >> 32) & 1
	}
}

// montMulAdd computes c = (c + a*b) * R^-1 mod n for a single word a,
// using the word-serial Montgomery reduction driven by n0inv.
func (k *RSAPublicKey) montMulAdd(c []uint32, a uint32, b []uint32) {
	words := len(k.n)
	A := uint64(a)*uint64(b[0]) + uint64(c[0])
	d0 := uint32(A) * k.n0inv
	B := uint64(d0)*uint64(k.n[0]) + uint64(uint32(A))
	for i := 1; i < words; i++ {
		A = (A >> 32) + uint64(a)*uint64(b[i]) + uint64(c[i])
		B = (B >> 32) + uint64(d0)*uint64(k.n[i]) + uint64(uint32(A))
		c[i-1] = uint32(B)
	}
	A = (A >> 32) + (B >> 32)
	c[words-1] = uint32(A)
	if A>>32 != 0 {
		k.subM(c)
	}
}

// montMul computes c = a*b*R^-1 mod n. c must not alias a or b.
func (k *RSAPublicKey) montMul(c, a, b []uint32) {
	for i := range c {
		c[i] = 0
	}
	for i := range a {
		k.montMulAdd(c, a[i], b)
	}
}

// modPowF4 computes in^65537 mod n. in is little-endian limbs and is left
// unmodified; the result is a fresh limb vector.
func (k *RSAPublicKey) modPowF4(in []uint32) []uint32 {
	words := len(k.n)
	aR := make([]uint32, words)
	aaR := make([]uint32, words)
	out := make([]uint32, words)

	k.montMul(aR, in, k.rr) // aR = a*R mod n
	for i := 0; i < 16; i += 2 {
		k.montMul(aaR, aR, aR) // aaR = a^2k * R
		k.montMul(aR, aaR, aaR)
	}
	k.montMul(out, aR, in) // out = a^65537, Montgomery factors cancel
	if k.geM(out) {
		k.subM(out)
	}
	return out
}

// digestInfo holds the DER-encoded DigestInfo prefix for a PKCS#1 v1.5
// EMSA encoding, keyed by the descriptor hash-algorithm name.
var digestInfo = map[string][]byte{
	"sha256": {
		0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86,
		0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x01, 0x05,
		0x00, 0x04, 0x20,
	},
	"sha512": {
		0x30, 0x51, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86,
		0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x03, 0x05,
		0x00, 0x04, 0x40,
	},
}

// VerifyPKCS1v15 checks sig against digest under this key using RSASSA
// PKCS#1 v1.5 with the named hash algorithm. All inputs are public, so the
// trailing comparison is an ordinary byte compare.
func (k *RSAPublicKey) VerifyPKCS1v15(hashName string, digest, sig []byte) bool {
	prefix, ok := digestInfo[hashName]
	if !ok {
		return false
	}
	numBytes := int(k.NumBits / 8)
	if len(sig) != numBytes {
		return false
	}
	if len(digest) != int(prefix[len(prefix)-1]) {
		return false
	}

	s := limbsFromBE(sig)
	if k.geM(s) {
		return false // signature not reduced mod n
	}
	em := limbsToBE(k.modPowF4(s))

	// EM = 0x00 0x01 PS 0x00 DigestInfo digest, PS = 0xff padding.
	tLen := len(prefix) + len(digest)
	if numBytes < tLen+11 {
		return false
	}
	expected := make([]byte, numBytes)
	expected[0] = 0x00
	expected[1] = 0x01
	for i := 2; i < numBytes-tLen-1; i++ {
		expected[i] = 0xff
	}
	expected[numBytes-tLen-1] = 0x00
	copy(expected[numBytes-tLen:], prefix)
	copy(expected[numBytes-len(digest):], digest)

	return bytes.Equal(em, expected)
}
