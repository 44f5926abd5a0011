package aftl

import (
	"bytes"

	"github.com/linux-univx/avb/crypto"
)

// Verify checks one inclusion proof end to end: the recomputed Merkle root
// must equal the signed root descriptor's hash, and the log's signature
// over the descriptor must verify under logKey. A 32-byte key selects
// Ed25519; a longer key is treated as a pre-encoded RSA-4096 public key
// blob over SHA-256.
func (e *IcpEntry) Verify(logKey []byte) error {
	root, err := RootFromInclusionProof(LeafHash(e.Leaf), e.LeafIndex, e.LogRoot.TreeSize, e.Proof)
	if err != nil {
		return err
	}
	if !bytes.Equal(root[:], e.LogRoot.RootHash) {
		return ErrInvalidMetadata
	}

	switch len(logKey) {
	case crypto.Ed25519PublicKeySize:
		if len(e.LogRootSignature) != Ed25519SigSize {
			return ErrVerification
		}
		if !crypto.Ed25519Verify(logKey, e.LogRoot.Raw, e.LogRootSignature) {
			return ErrVerification
		}
	default:
		key, err := crypto.ParseRSAPublicKey(logKey)
		if err != nil || key.NumBits != crypto.RSA4096NumBits {
			return ErrVerification
		}
		if len(e.LogRootSignature) != RSA4096SigSize {
			return ErrVerification
		}
		digest := crypto.SHA256(e.LogRoot.Raw)
		if !key.VerifyPKCS1v15("sha256", digest, e.LogRootSignature) {
			return ErrVerification
		}
	}
	return nil
}

// CommitsTo reports whether the firmware-info leaf commits to the given
// inner-structure hash, typically the digest of the vbmeta image the
// descriptor accompanies.
func (e *IcpEntry) CommitsTo(innerHash []byte) bool {
	return len(innerHash) > 0 && bytes.Contains(e.Leaf, innerHash)
}

// Verify checks every entry of the image against logKey.
func (img *Image) Verify(logKey []byte) error {
	for i := range img.Entries {
		if err := img.Entries[i].Verify(logKey); err != nil {
			return err
		}
	}
	return nil
}
