package vbmeta

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// Header geometry and format constants.
const (
	// HeaderSize is the fixed size of the vbmeta image header.
	HeaderSize = 256
	// MajorVersion is the format major version this parser implements.
	// Images requiring a different major version are rejected.
	MajorVersion = 1
	// MinorVersion is the highest required minor version accepted.
	MinorVersion = 2
	// releaseStringSize is the fixed size of the NUL-padded release field.
	releaseStringSize = 48
)

// Magic identifies a vbmeta header.
var Magic = [4]byte{0x41, 0x56, 0x42, 0x30} // "AVB0"

// Package errors; the verify walker maps them onto its status enumeration.
var (
	ErrInvalidMetadata    = errors.New("vbmeta: invalid metadata")
	ErrUnsupportedVersion = errors.New("vbmeta: unsupported format version")
	ErrVerification       = errors.New("vbmeta: signature verification failed")
)

// Header is the decoded 256-byte vbmeta image header. HashOffset and
// SignatureOffset are relative to the authentication block, the public-key,
// metadata and descriptor offsets to the auxiliary block.
type Header struct {
	RequiredMajor uint32
	RequiredMinor uint32

	AuthenticationBlockSize uint64
	AuxiliaryBlockSize      uint64

	Algorithm Algorithm

	HashOffset      uint64
	HashSize        uint64
	SignatureOffset uint64
	SignatureSize   uint64

	PublicKeyOffset         uint64
	PublicKeySize           uint64
	PublicKeyMetadataOffset uint64
	PublicKeyMetadataSize   uint64

	DescriptorsOffset uint64
	DescriptorsSize   uint64

	RollbackIndex         uint64
	Flags                 uint32
	RollbackIndexLocation uint32

	ReleaseString string
}

// Header flags.
const (
	// FlagsHashtreeDisabled indicates dm-verity has been switched off for
	// this boot; hashtree descriptors are ignored and cmdline fragments
	// are selected by their hashtree-disabled condition.
	FlagsHashtreeDisabled uint32 = 1 << 0
	// FlagsVerificationDisabled indicates only the top-level header is
	// read; descriptors are not verified.
	FlagsVerificationDisabled uint32 = 1 << 1
)

// HashtreeDisabled reports whether dm-verity is switched off.
func (h *Header) HashtreeDisabled() bool { return h.Flags&FlagsHashtreeDisabled != 0 }

// ParseHeader decodes and validates a header against the total image size.
// Every offset/size invariant is checked here so later slicing cannot go
// out of bounds.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, ErrInvalidMetadata
	}
	if !bytes.Equal(data[0:4], Magic[:]) {
		return nil, ErrInvalidMetadata
	}

	h := &Header{
		RequiredMajor:           binary.BigEndian.Uint32(data[4:8]),
		RequiredMinor:           binary.BigEndian.Uint32(data[8:12]),
		AuthenticationBlockSize: binary.BigEndian.Uint64(data[12:20]),
		AuxiliaryBlockSize:      binary.BigEndian.Uint64(data[20:28]),
		Algorithm:               Algorithm(binary.BigEndian.Uint32(data[28:32])),
		HashOffset:              binary.BigEndian.Uint64(data[32:40]),
		HashSize:                binary.BigEndian.Uint64(data[40:48]),
		SignatureOffset:         binary.BigEndian.Uint64(data[48:56]),
		SignatureSize:           binary.BigEndian.Uint64(data[56:64]),
		PublicKeyOffset:         binary.BigEndian.Uint64(data[64:72]),
		PublicKeySize:           binary.BigEndian.Uint64(data[72:80]),
		PublicKeyMetadataOffset: binary.BigEndian.Uint64(data[80:88]),
		PublicKeyMetadataSize:   binary.BigEndian.Uint64(data[88:96]),
		DescriptorsOffset:       binary.BigEndian.Uint64(data[96:104]),
		DescriptorsSize:         binary.BigEndian.Uint64(data[104:112]),
		RollbackIndex:           binary.BigEndian.Uint64(data[112:120]),
		Flags:                   binary.BigEndian.Uint32(data[120:124]),
		RollbackIndexLocation:   binary.BigEndian.Uint32(data[124:128]),
	}
	release := data[128 : 128+releaseStringSize]
	h.ReleaseString = string(release[:zeroIndex(release)])

	if h.RequiredMajor != MajorVersion || h.RequiredMinor > MinorVersion {
		return nil, ErrUnsupportedVersion
	}
	if !h.Algorithm.Valid() {
		return nil, ErrInvalidMetadata
	}

	imageSize := uint64(len(data))
	if h.AuthenticationBlockSize > imageSize-HeaderSize ||
		h.AuxiliaryBlockSize > imageSize-HeaderSize-h.AuthenticationBlockSize {
		return nil, ErrInvalidMetadata
	}
	if !rangeInside(h.HashOffset, h.HashSize, h.AuthenticationBlockSize) ||
		!rangeInside(h.SignatureOffset, h.SignatureSize, h.AuthenticationBlockSize) {
		return nil, ErrInvalidMetadata
	}
	if !rangeInside(h.PublicKeyOffset, h.PublicKeySize, h.AuxiliaryBlockSize) ||
		!rangeInside(h.PublicKeyMetadataOffset, h.PublicKeyMetadataSize, h.AuxiliaryBlockSize) ||
		!rangeInside(h.DescriptorsOffset, h.DescriptorsSize, h.AuxiliaryBlockSize) {
		return nil, ErrInvalidMetadata
	}
	return h, nil
}

// rangeInside reports whether [offset, offset+size) fits in a block of the
// given size, without overflowing.
func rangeInside(offset, size, block uint64) bool {
	return offset <= block && size <= block-offset
}

// zeroIndex returns the index of the first NUL, or len(b).
func zeroIndex(b []byte) int {
	for i, v := range b {
		if v == 0 {
			return i
		}
	}
	return len(b)
}

// Encode serializes the header into its 256-byte wire form.
func (h *Header) Encode() []byte {
	out := make([]byte, HeaderSize)
	copy(out[0:4], Magic[:])
	binary.BigEndian.PutUint32(out[4:8], h.RequiredMajor)
	binary.BigEndian.PutUint32(out[8:12], h.RequiredMinor)
	binary.BigEndian.PutUint64(out[12:20], h.AuthenticationBlockSize)
	binary.BigEndian.PutUint64(out[20:28], h.AuxiliaryBlockSize)
	binary.BigEndian.PutUint32(out[28:32], uint32(h.Algorithm))
	binary.BigEndian.PutUint64(out[32:40], h.HashOffset)
	binary.BigEndian.PutUint64(out[40:48], h.HashSize)
	binary.BigEndian.PutUint64(out[48:56], h.SignatureOffset)
	binary.BigEndian.PutUint64(out[56:64], h.SignatureSize)
	binary.BigEndian.PutUint64(out[64:72], h.PublicKeyOffset)
	binary.BigEndian.PutUint64(out[72:80], h.PublicKeySize)
	binary.BigEndian.PutUint64(out[80:88], h.PublicKeyMetadataOffset)
	binary.BigEndian.PutUint64(out[88:96], h.PublicKeyMetadataSize)
	binary.BigEndian.PutUint64(out[96:104], h.DescriptorsOffset)
	binary.BigEndian.PutUint64(out[104:112], h.DescriptorsSize)
	binary.BigEndian.PutUint64(out[112:120], h.RollbackIndex)
	binary.BigEndian.PutUint32(out[120:124], h.Flags)
	binary.BigEndian.PutUint32(out[124:128], h.RollbackIndexLocation)
	copy(out[128:128+releaseStringSize], h.ReleaseString)
	return out
}
