package aftl

import sha256 "github.com/minio/sha256-simd"

// RFC 6962 domain-separation prefixes.
const (
	leafHashPrefix = 0x00
	nodeHashPrefix = 0x01
)

// LeafHash computes SHA-256(0x00 || leaf).
func LeafHash(leaf []byte) [HashSize]byte {
	h := sha256.New()
	h.Write([]byte{leafHashPrefix})
	h.Write(leaf)
	var out [HashSize]byte
	h.Sum(out[:0])
	return out
}

// nodeHash computes SHA-256(0x01 || left || right).
func nodeHash(left, right []byte) [HashSize]byte {
	h := sha256.New()
	h.Write([]byte{nodeHashPrefix})
	h.Write(left)
	h.Write(right)
	var out [HashSize]byte
	h.Sum(out[:0])
	return out
}

// RootFromInclusionProof walks the sibling path from a leaf hash to the
// Merkle root of a tree with treeSize leaves, using leafIndex to decide the
// combination order at each level (RFC 6962 / RFC 9162).
func RootFromInclusionProof(leafHash [HashSize]byte, leafIndex, treeSize uint64, proof [][]byte) ([HashSize]byte, error) {
	var zero [HashSize]byte
	if leafIndex >= treeSize {
		return zero, ErrInvalidMetadata
	}

	fn := leafIndex
	sn := treeSize - 1
	r := leafHash
	for _, p := range proof {
		if len(p) != HashSize {
			return zero, ErrInvalidMetadata
		}
		if sn == 0 {
			return zero, ErrInvalidMetadata // proof longer than the path
		}
		if fn&1 == 1 || fn == sn {
			r = nodeHash(p, r[:])
			if fn&1 == 0 {
				// Skip the levels where this node is the last in
				// its row and has no right sibling.
				for fn&1 == 0 && fn != 0 {
					fn >>= 1
					sn >>= 1
				}
			}
		} else {
			r = nodeHash(r[:], p)
		}
		fn >>= 1
		sn >>= 1
	}
	if sn != 0 {
		return zero, ErrInvalidMetadata // proof shorter than the path
	}
	return r, nil
}
