package vbmeta

import (
	"bytes"

	"github.com/linux-univx/avb/crypto"
	"github.com/linux-univx/avb/descriptor"
)

// Verified is the outcome of authenticating one vbmeta image. Byte fields
// are views into the image the caller supplied and share its lifetime.
type Verified struct {
	Header *Header
	// PublicKey is the pre-encoded signing key embedded in the auxiliary
	// block, empty when Algorithm is NONE.
	PublicKey []byte
	// PublicKeyMetadata is passed through to the root-of-trust oracle.
	PublicKeyMetadata []byte
	// Descriptors are the typed records of the auxiliary block, in wire
	// order.
	Descriptors []descriptor.Descriptor
	// Unsigned is true when Algorithm is NONE: the image parsed cleanly
	// but nothing vouches for it.
	Unsigned bool
}

// Verify parses a vbmeta image and checks its signature against the key it
// embeds. The caller decides whether that key is trusted. For Algorithm
// NONE the image is parsed and returned with Unsigned set; no signature
// check happens.
//
// The signed region is header ‖ auxiliary block. The authentication block
// sits between the two on the wire and is itself unsigned; its hash and
// signature fields are the values being checked.
func Verify(data []byte) (*Verified, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	authStart := uint64(HeaderSize)
	auxStart := authStart + h.AuthenticationBlockSize
	auth := data[authStart:auxStart]
	aux := data[auxStart : auxStart+h.AuxiliaryBlockSize]

	v := &Verified{
		Header:            h,
		PublicKey:         aux[h.PublicKeyOffset : h.PublicKeyOffset+h.PublicKeySize],
		PublicKeyMetadata: aux[h.PublicKeyMetadataOffset : h.PublicKeyMetadataOffset+h.PublicKeyMetadataSize],
	}

	if h.Algorithm == AlgNone {
		v.Unsigned = true
	} else {
		hashName := h.Algorithm.HashName()
		if int(h.HashSize) != h.Algorithm.HashSize() ||
			int(h.SignatureSize) != h.Algorithm.SignatureSize() {
			return nil, ErrInvalidMetadata
		}

		hasher, err := crypto.NewHasher(hashName)
		if err != nil {
			return nil, ErrInvalidMetadata
		}
		hasher.Update(data[:HeaderSize])
		hasher.Update(aux)
		digest := hasher.Final()

		storedHash := auth[h.HashOffset : h.HashOffset+h.HashSize]
		if !bytes.Equal(digest, storedHash) {
			return nil, ErrVerification
		}

		key, err := crypto.ParseRSAPublicKey(v.PublicKey)
		if err != nil {
			return nil, ErrInvalidMetadata
		}
		if int(key.NumBits) != h.Algorithm.KeyNumBits() {
			return nil, ErrInvalidMetadata
		}
		sig := auth[h.SignatureOffset : h.SignatureOffset+h.SignatureSize]
		if !key.VerifyPKCS1v15(hashName, digest, sig) {
			return nil, ErrVerification
		}
	}

	descs, err := descriptor.All(aux[h.DescriptorsOffset : h.DescriptorsOffset+h.DescriptorsSize])
	if err != nil {
		return nil, ErrInvalidMetadata
	}
	v.Descriptors = descs
	return v, nil
}

// ParseUnverified parses a vbmeta image without checking its hash or
// signature. Degraded boot paths use it to keep walking after a signature
// failure has already been recorded; nothing parsed this way should be
// trusted.
func ParseUnverified(data []byte) (*Verified, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	auxStart := uint64(HeaderSize) + h.AuthenticationBlockSize
	aux := data[auxStart : auxStart+h.AuxiliaryBlockSize]

	descs, err := descriptor.All(aux[h.DescriptorsOffset : h.DescriptorsOffset+h.DescriptorsSize])
	if err != nil {
		return nil, ErrInvalidMetadata
	}
	return &Verified{
		Header:            h,
		PublicKey:         aux[h.PublicKeyOffset : h.PublicKeyOffset+h.PublicKeySize],
		PublicKeyMetadata: aux[h.PublicKeyMetadataOffset : h.PublicKeyMetadataOffset+h.PublicKeyMetadataSize],
		Descriptors:       descs,
		Unsigned:          h.Algorithm == AlgNone,
	}, nil
}
