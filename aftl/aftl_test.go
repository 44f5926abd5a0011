package aftl_test

import (
	"bytes"
	stdcrypto "crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"testing"

	"github.com/linux-univx/avb/aftl"
	"github.com/linux-univx/avb/internal/vbtest"
	"github.com/linux-univx/avb/vbmeta"
)

// mth computes the RFC 6962 Merkle tree hash of the leaves.
func mth(leaves [][]byte) [32]byte {
	if len(leaves) == 1 {
		return aftl.LeafHash(leaves[0])
	}
	k := 1
	for k*2 < len(leaves) {
		k *= 2
	}
	left := mth(leaves[:k])
	right := mth(leaves[k:])
	var buf []byte
	buf = append(buf, 0x01)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return sha256.Sum256(buf)
}

// inclusionProof computes the RFC 6962 audit path for leaf m.
func inclusionProof(leaves [][]byte, m int) [][]byte {
	if len(leaves) == 1 {
		return nil
	}
	k := 1
	for k*2 < len(leaves) {
		k *= 2
	}
	if m < k {
		path := inclusionProof(leaves[:k], m)
		right := mth(leaves[k:])
		return append(path, right[:])
	}
	path := inclusionProof(leaves[k:], m-k)
	left := mth(leaves[:k])
	return append(path, left[:])
}

// Property: the verifier accepts exactly the RFC 6962 recomputation.
func TestRootFromInclusionProofMatchesMTH(t *testing.T) {
	for size := 1; size <= 8; size++ {
		var leaves [][]byte
		for i := 0; i < size; i++ {
			leaves = append(leaves, []byte(fmt.Sprintf("leaf-%d-%d", size, i)))
		}
		want := mth(leaves)

		for m := 0; m < size; m++ {
			proof := inclusionProof(leaves, m)
			got, err := aftl.RootFromInclusionProof(
				aftl.LeafHash(leaves[m]), uint64(m), uint64(size), proof)
			if err != nil {
				t.Fatalf("size %d leaf %d: %v", size, m, err)
			}
			if got != want {
				t.Errorf("size %d leaf %d: root mismatch", size, m)
			}
		}
	}
}

func TestRootFromInclusionProofRejectsBadShapes(t *testing.T) {
	leaves := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	proof := inclusionProof(leaves, 1)

	if _, err := aftl.RootFromInclusionProof(aftl.LeafHash(leaves[1]), 3, 3, proof); err == nil {
		t.Error("leaf index == tree size accepted")
	}
	if _, err := aftl.RootFromInclusionProof(aftl.LeafHash(leaves[1]), 1, 3, proof[:1]); err == nil {
		t.Error("short proof accepted")
	}
	long := append(append([][]byte{}, proof...), make([]byte, 32))
	if _, err := aftl.RootFromInclusionProof(aftl.LeafHash(leaves[1]), 1, 3, long); err == nil {
		t.Error("long proof accepted")
	}
	bad := append([][]byte{}, proof...)
	bad[len(bad)-1] = make([]byte, 31)
	if _, err := aftl.RootFromInclusionProof(aftl.LeafHash(leaves[1]), 1, 3, bad); err == nil {
		t.Error("wrong-size sibling accepted")
	}
}

// buildImage assembles a signed single-log image over the given leaves with
// one entry for leaf m.
func buildImage(t *testing.T, leaves [][]byte, m int, priv ed25519.PrivateKey) *aftl.Image {
	t.Helper()
	root := mth(leaves)
	desc := aftl.LogRootDescriptor{
		Version:   1,
		TreeSize:  uint64(len(leaves)),
		RootHash:  root[:],
		Timestamp: 1700000000,
		Metadata:  nil,
	}
	raw := desc.Encode()
	entry := aftl.IcpEntry{
		LogURL:           "https://log.example.org",
		LeafIndex:        uint64(m),
		LogRoot:          desc,
		Leaf:             leaves[m],
		LogRootSignature: ed25519.Sign(priv, raw),
		Proof:            inclusionProof(leaves, m),
	}
	return &aftl.Image{Major: aftl.MajorVersion, Minor: aftl.MinorVersion, Entries: []aftl.IcpEntry{entry}}
}

// S6: a valid one-entry log at leaf index 0 verifies; corruption fails.
func TestVerifySingleLeafLog(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	leaves := [][]byte{[]byte("firmware-info leaf zero")}
	img := buildImage(t, leaves, 0, priv)

	parsed, err := aftl.Parse(img.Encode())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := parsed.Verify(pub); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyMultiLeafLogAndCorruption(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	leaves := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d"), []byte("e")}
	img := buildImage(t, leaves, 3, priv)

	data := img.Encode()
	parsed, err := aftl.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := parsed.Verify(pub); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	// Any altered sibling byte breaks the recomputed root.
	e := parsed.Entries[0]
	for level := range e.Proof {
		bad := e
		bad.Proof = append([][]byte{}, e.Proof...)
		corrupted := append([]byte{}, e.Proof[level]...)
		corrupted[7] ^= 0x80
		bad.Proof[level] = corrupted
		if err := bad.Verify(pub); err == nil {
			t.Errorf("corrupted sibling at level %d accepted", level)
		}
	}

	// A corrupted signature fails after the root check passes.
	bad := e
	bad.LogRootSignature = append([]byte{}, e.LogRootSignature...)
	bad.LogRootSignature[0] ^= 0x01
	if err := bad.Verify(pub); err != aftl.ErrVerification {
		t.Errorf("corrupted signature: err = %v, want ErrVerification", err)
	}

	// A wrong key fails.
	otherPub, _, _ := ed25519.GenerateKey(rand.Reader)
	if err := e.Verify(otherPub); err != aftl.ErrVerification {
		t.Errorf("wrong key: err = %v, want ErrVerification", err)
	}
}

func TestVerifyRSALogRoot(t *testing.T) {
	signer := vbtest.NewSigner(t, vbmeta.AlgSHA256RSA4096)

	leaves := [][]byte{[]byte("rsa log leaf")}
	root := mth(leaves)
	desc := aftl.LogRootDescriptor{
		Version:  1,
		TreeSize: 1,
		RootHash: root[:],
	}
	raw := desc.Encode()
	digest := sha256.Sum256(raw)
	sig, err := rsa.SignPKCS1v15(nil, signer.Priv, stdcrypto.SHA256, digest[:])
	if err != nil {
		t.Fatalf("SignPKCS1v15: %v", err)
	}

	entry := aftl.IcpEntry{
		LogURL:           "https://log.example.org",
		LogRoot:          desc,
		Leaf:             leaves[0],
		LogRootSignature: sig,
	}
	img := &aftl.Image{Major: aftl.MajorVersion, Minor: aftl.MinorVersion, Entries: []aftl.IcpEntry{entry}}

	parsed, err := aftl.Parse(img.Encode())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := parsed.Verify(signer.KeyBlob); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestParseRejectsMalformedImages(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(rand.Reader)
	img := buildImage(t, [][]byte{[]byte("x")}, 0, priv)
	data := img.Encode()

	// Bad magic.
	bad := append([]byte{}, data...)
	bad[0] = 'Z'
	if _, err := aftl.Parse(bad); err != aftl.ErrInvalidMetadata {
		t.Errorf("bad magic: err = %v", err)
	}

	// Wrong total size.
	bad = append([]byte{}, data...)
	bad[15] ^= 0x01
	if _, err := aftl.Parse(bad); err != aftl.ErrInvalidMetadata {
		t.Errorf("bad size: err = %v", err)
	}

	// Unsupported major version.
	bad = append([]byte{}, data...)
	bad[7] = 9
	if _, err := aftl.Parse(bad); err != aftl.ErrUnsupportedVersion {
		t.Errorf("bad version: err = %v", err)
	}

	// Truncated entry.
	if _, err := aftl.Parse(data[:len(data)-4]); err == nil {
		t.Error("truncated image accepted")
	}
}

func TestCommitsTo(t *testing.T) {
	digest := sha256.Sum256([]byte("vbmeta image bytes"))
	leaf := append([]byte("prefix|"), digest[:]...)
	e := aftl.IcpEntry{Leaf: leaf}

	if !e.CommitsTo(digest[:]) {
		t.Error("leaf does not commit to its own digest")
	}
	other := sha256.Sum256([]byte("other"))
	if e.CommitsTo(other[:]) {
		t.Error("leaf commits to an unrelated digest")
	}
	if e.CommitsTo(nil) {
		t.Error("empty inner hash accepted")
	}
}
