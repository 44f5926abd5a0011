// Package vbtest builds signed vbmeta images for tests. Signing goes
// through crypto/rsa and the Montgomery constants are derived with math/big,
// so the library's own limb arithmetic is exercised against an independent
// implementation rather than against itself.
package vbtest

import (
	stdcrypto "crypto"
	"crypto/rand"
	"crypto/rsa"
	_ "crypto/sha256" // register the hashes Build signs with
	_ "crypto/sha512"
	"math/big"
	"sync"
	"testing"

	"github.com/linux-univx/avb/descriptor"
	"github.com/linux-univx/avb/vbmeta"
)

// keyCache shares generated RSA keys across tests; generation dominates
// test time otherwise. Keys are per (size, slot) so tests can ask for
// distinct keys of the same size.
var (
	keyMu    sync.Mutex
	keyCache = map[[2]int]*rsa.PrivateKey{}
)

func cachedKey(t testing.TB, bits, slot int) *rsa.PrivateKey {
	t.Helper()
	keyMu.Lock()
	defer keyMu.Unlock()
	id := [2]int{bits, slot}
	if k, ok := keyCache[id]; ok {
		return k
	}
	k, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		t.Fatalf("GenerateKey(%d): %v", bits, err)
	}
	keyCache[id] = k
	return k
}

// Signer signs vbmeta images under one algorithm/key pair.
type Signer struct {
	Alg  vbmeta.Algorithm
	Priv *rsa.PrivateKey
	// KeyBlob is the pre-encoded public key embedded in signed images.
	KeyBlob []byte
}

// NewSigner returns a signer for the algorithm, reusing a cached key.
func NewSigner(t testing.TB, alg vbmeta.Algorithm) *Signer {
	return NewSignerSlot(t, alg, 0)
}

// NewSignerSlot returns a signer with the numbered key of the algorithm's
// size, so tests can hold several distinct keys.
func NewSignerSlot(t testing.TB, alg vbmeta.Algorithm, slot int) *Signer {
	t.Helper()
	bits := alg.KeyNumBits()
	if bits == 0 {
		t.Fatalf("algorithm %v has no key", alg)
	}
	priv := cachedKey(t, bits, slot)
	return &Signer{Alg: alg, Priv: priv, KeyBlob: EncodeKeyBlob(t, &priv.PublicKey)}
}

// EncodeKeyBlob builds the pre-encoded public key blob:
// key_num_bits ‖ n0inv ‖ n ‖ rr, all big-endian.
func EncodeKeyBlob(t testing.TB, pub *rsa.PublicKey) []byte {
	t.Helper()
	numBits := pub.N.BitLen()
	numBytes := numBits / 8

	b32 := new(big.Int).Lsh(big.NewInt(1), 32)
	inv := new(big.Int).ModInverse(new(big.Int).Mod(pub.N, b32), b32)
	if inv == nil {
		t.Fatal("modulus not invertible mod 2^32")
	}
	n0inv := new(big.Int).Sub(b32, inv)

	r := new(big.Int).Lsh(big.NewInt(1), uint(numBits))
	rr := new(big.Int).Mod(new(big.Int).Mul(r, r), pub.N)

	blob := make([]byte, 8+2*numBytes)
	blob[0] = byte(numBits >> 24)
	blob[1] = byte(numBits >> 16)
	blob[2] = byte(numBits >> 8)
	blob[3] = byte(numBits)
	n0inv.FillBytes(blob[4:8])
	pub.N.FillBytes(blob[8 : 8+numBytes])
	rr.FillBytes(blob[8+numBytes:])
	return blob
}

// Params describes the image to build.
type Params struct {
	RollbackIndex         uint64
	RollbackIndexLocation uint32
	Flags                 uint32
	Release               string
	Descriptors           []descriptor.Descriptor
	// PublicKeyMetadata is embedded after the key and passed through to
	// the oracle.
	PublicKeyMetadata []byte
	// Padding appends unsigned trailing bytes after the auxiliary block.
	Padding int
}

// Build assembles and signs a vbmeta image. A nil signer produces an
// algorithm-NONE image with no authentication block or embedded key.
func Build(t testing.TB, s *Signer, p Params) []byte {
	t.Helper()

	var descBytes []byte
	for _, d := range p.Descriptors {
		descBytes = append(descBytes, d.Encode()...)
	}

	alg := vbmeta.AlgNone
	keyBlob := []byte(nil)
	if s != nil {
		alg = s.Alg
		keyBlob = s.KeyBlob
	}

	// Auxiliary block: descriptors, then key, then metadata, 8-aligned.
	descSize := len(descBytes)
	keyOff := (descSize + 7) &^ 7
	mdOff := keyOff + len(keyBlob)
	auxSize := (mdOff + len(p.PublicKeyMetadata) + 63) &^ 63
	aux := make([]byte, auxSize)
	copy(aux, descBytes)
	copy(aux[keyOff:], keyBlob)
	copy(aux[mdOff:], p.PublicKeyMetadata)

	// Authentication block: hash then signature, 64-aligned.
	hashSize := alg.HashSize()
	sigSize := alg.SignatureSize()
	authSize := (hashSize + sigSize + 63) &^ 63

	h := &vbmeta.Header{
		RequiredMajor:           vbmeta.MajorVersion,
		RequiredMinor:           vbmeta.MinorVersion,
		AuthenticationBlockSize: uint64(authSize),
		AuxiliaryBlockSize:      uint64(auxSize),
		Algorithm:               alg,
		HashOffset:              0,
		HashSize:                uint64(hashSize),
		SignatureOffset:         uint64(hashSize),
		SignatureSize:           uint64(sigSize),
		PublicKeyOffset:         uint64(keyOff),
		PublicKeySize:           uint64(len(keyBlob)),
		PublicKeyMetadataOffset: uint64(mdOff),
		PublicKeyMetadataSize:   uint64(len(p.PublicKeyMetadata)),
		DescriptorsOffset:       0,
		DescriptorsSize:         uint64(descSize),
		RollbackIndex:           p.RollbackIndex,
		Flags:                   p.Flags,
		RollbackIndexLocation:   p.RollbackIndexLocation,
		ReleaseString:           p.Release,
	}

	header := h.Encode()
	auth := make([]byte, authSize)

	if s != nil {
		var hashAlg stdcrypto.Hash
		switch alg.HashName() {
		case "sha256":
			hashAlg = stdcrypto.SHA256
		case "sha512":
			hashAlg = stdcrypto.SHA512
		}
		hh := hashAlg.New()
		hh.Write(header)
		hh.Write(aux)
		digest := hh.Sum(nil)
		copy(auth, digest)

		sig, err := rsa.SignPKCS1v15(nil, s.Priv, hashAlg, digest)
		if err != nil {
			t.Fatalf("SignPKCS1v15: %v", err)
		}
		copy(auth[hashSize:], sig)
	}

	img := make([]byte, 0, len(header)+len(auth)+len(aux)+p.Padding)
	img = append(img, header...)
	img = append(img, auth...)
	img = append(img, aux...)
	img = append(img, make([]byte, p.Padding)...)
	return img
}
