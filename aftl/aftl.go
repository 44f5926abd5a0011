// Package aftl implements the Android Firmware Transparency Log descriptor
// appended to vbmeta images: parsing the inclusion-proof entries, recomputing
// the RFC 6962 Merkle root from the proof path, and checking the log's
// signature over its root descriptor. AFTL verification is independent of
// slot verification; its failures only matter to callers that opt into
// transparency enforcement.
package aftl

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// Magic identifies an AFTL image.
var Magic = [4]byte{'A', 'F', 'T', 'L'}

// Format version implemented by this parser.
const (
	MajorVersion = 1
	MinorVersion = 1
)

// headerSize is the fixed size of the image header on the wire.
const headerSize = 4 + 4 + 4 + 4 + 2

// entryFixedSize is the fixed portion of an ICP entry on the wire.
const entryFixedSize = 4 + 8 + 4 + 4 + 4 + 1 + 4

// HashSize is the size of all proof and root hashes; AFTL uses SHA-256
// exclusively.
const HashSize = 32

// Accepted log-root signature sizes: Ed25519 and RSA-4096.
const (
	Ed25519SigSize = 64
	RSA4096SigSize = 512
)

// Package errors.
var (
	ErrInvalidMetadata    = errors.New("aftl: invalid metadata")
	ErrUnsupportedVersion = errors.New("aftl: unsupported version")
	ErrVerification       = errors.New("aftl: signature verification failed")
)

// Image is a parsed AFTL descriptor: a header and its inclusion-proof
// entries.
type Image struct {
	Major   uint32
	Minor   uint32
	Entries []IcpEntry
}

// LogRootDescriptor is the Trillian log root the proof anchors to. Raw
// holds the exact signed byte sequence.
type LogRootDescriptor struct {
	Version   uint16
	TreeSize  uint64
	RootHash  []byte
	Timestamp uint64
	Revision  uint64
	Metadata  []byte
	Raw       []byte
}

// IcpEntry is one inclusion proof: the leaf placed in the log, its index,
// the sibling path to the signed root, and the log's signature over the
// root descriptor.
type IcpEntry struct {
	LogURL    string
	LeafIndex uint64
	LogRoot   LogRootDescriptor
	// Leaf is the firmware-info leaf, the opaque bytes hashed into the
	// log with the RFC 6962 leaf prefix.
	Leaf []byte
	// LogRootSignature is 64 bytes (Ed25519) or 512 bytes (RSA-4096).
	LogRootSignature []byte
	// Proof is the inclusion path, leaf-adjacent sibling first.
	Proof [][]byte
}

// Parse decodes an AFTL image. The header's image size must match the
// buffer exactly.
func Parse(data []byte) (*Image, error) {
	if len(data) < headerSize {
		return nil, ErrInvalidMetadata
	}
	if !bytes.Equal(data[0:4], Magic[:]) {
		return nil, ErrInvalidMetadata
	}
	img := &Image{
		Major: binary.BigEndian.Uint32(data[4:8]),
		Minor: binary.BigEndian.Uint32(data[8:12]),
	}
	imageSize := binary.BigEndian.Uint32(data[12:16])
	count := binary.BigEndian.Uint16(data[16:18])

	if img.Major != MajorVersion || img.Minor > MinorVersion {
		return nil, ErrUnsupportedVersion
	}
	if uint32(len(data)) != imageSize {
		return nil, ErrInvalidMetadata
	}

	off := headerSize
	for i := 0; i < int(count); i++ {
		e, n, err := parseEntry(data[off:])
		if err != nil {
			return nil, err
		}
		img.Entries = append(img.Entries, *e)
		off += n
	}
	if off != len(data) {
		return nil, ErrInvalidMetadata
	}
	return img, nil
}

func parseEntry(data []byte) (*IcpEntry, int, error) {
	if len(data) < entryFixedSize {
		return nil, 0, ErrInvalidMetadata
	}
	urlSize := binary.BigEndian.Uint32(data[0:4])
	leafIndex := binary.BigEndian.Uint64(data[4:12])
	rootDescSize := binary.BigEndian.Uint32(data[12:16])
	leafSize := binary.BigEndian.Uint32(data[16:20])
	sigSize := binary.BigEndian.Uint32(data[20:24])
	proofCount := int(data[24])
	proofSize := binary.BigEndian.Uint32(data[25:29])

	if sigSize != Ed25519SigSize && sigSize != RSA4096SigSize {
		return nil, 0, ErrInvalidMetadata
	}
	if int(proofSize) != proofCount*HashSize {
		return nil, 0, ErrInvalidMetadata
	}

	total := uint64(entryFixedSize) + uint64(urlSize) + uint64(rootDescSize) +
		uint64(leafSize) + uint64(sigSize) + uint64(proofSize)
	if total > uint64(len(data)) {
		return nil, 0, ErrInvalidMetadata
	}

	off := entryFixedSize
	e := &IcpEntry{LeafIndex: leafIndex}
	e.LogURL = string(data[off : off+int(urlSize)])
	off += int(urlSize)

	root, err := parseLogRoot(data[off : off+int(rootDescSize)])
	if err != nil {
		return nil, 0, err
	}
	e.LogRoot = *root
	off += int(rootDescSize)

	e.Leaf = data[off : off+int(leafSize)]
	off += int(leafSize)
	e.LogRootSignature = data[off : off+int(sigSize)]
	off += int(sigSize)

	for i := 0; i < proofCount; i++ {
		e.Proof = append(e.Proof, data[off:off+HashSize])
		off += HashSize
	}
	return e, off, nil
}

// logRootFixedSize excludes the two variable fields.
const logRootFixedSize = 2 + 8 + 1 + 8 + 8 + 2

// parseLogRoot decodes a TrillianLogRootDescriptor and records the exact
// signed bytes in Raw.
func parseLogRoot(data []byte) (*LogRootDescriptor, error) {
	if len(data) < logRootFixedSize {
		return nil, ErrInvalidMetadata
	}
	d := &LogRootDescriptor{
		Version:  binary.BigEndian.Uint16(data[0:2]),
		TreeSize: binary.BigEndian.Uint64(data[2:10]),
	}
	hashSize := int(data[10])
	if hashSize != HashSize || len(data) < 11+hashSize+18 {
		return nil, ErrInvalidMetadata
	}
	d.RootHash = data[11 : 11+hashSize]
	off := 11 + hashSize
	d.Timestamp = binary.BigEndian.Uint64(data[off : off+8])
	d.Revision = binary.BigEndian.Uint64(data[off+8 : off+16])
	mdSize := int(binary.BigEndian.Uint16(data[off+16 : off+18]))
	if len(data) != off+18+mdSize {
		return nil, ErrInvalidMetadata
	}
	d.Metadata = data[off+18 : off+18+mdSize]
	d.Raw = data
	return d, nil
}

// Encode serializes the log root descriptor into its signed byte sequence.
func (d *LogRootDescriptor) Encode() []byte {
	out := make([]byte, 0, logRootFixedSize+len(d.RootHash)+len(d.Metadata))
	var b8 [8]byte

	binary.BigEndian.PutUint16(b8[:2], d.Version)
	out = append(out, b8[:2]...)
	binary.BigEndian.PutUint64(b8[:], d.TreeSize)
	out = append(out, b8[:]...)
	out = append(out, byte(len(d.RootHash)))
	out = append(out, d.RootHash...)
	binary.BigEndian.PutUint64(b8[:], d.Timestamp)
	out = append(out, b8[:]...)
	binary.BigEndian.PutUint64(b8[:], d.Revision)
	out = append(out, b8[:]...)
	binary.BigEndian.PutUint16(b8[:2], uint16(len(d.Metadata)))
	out = append(out, b8[:2]...)
	out = append(out, d.Metadata...)
	return out
}

// Encode serializes the entry.
func (e *IcpEntry) Encode() []byte {
	rootDesc := e.LogRoot.Encode()
	out := make([]byte, entryFixedSize)
	binary.BigEndian.PutUint32(out[0:4], uint32(len(e.LogURL)))
	binary.BigEndian.PutUint64(out[4:12], e.LeafIndex)
	binary.BigEndian.PutUint32(out[12:16], uint32(len(rootDesc)))
	binary.BigEndian.PutUint32(out[16:20], uint32(len(e.Leaf)))
	binary.BigEndian.PutUint32(out[20:24], uint32(len(e.LogRootSignature)))
	out[24] = byte(len(e.Proof))
	binary.BigEndian.PutUint32(out[25:29], uint32(len(e.Proof)*HashSize))
	out = append(out, e.LogURL...)
	out = append(out, rootDesc...)
	out = append(out, e.Leaf...)
	out = append(out, e.LogRootSignature...)
	for _, p := range e.Proof {
		out = append(out, p...)
	}
	return out
}

// Encode serializes the image, filling in the total size field.
func (img *Image) Encode() []byte {
	out := make([]byte, headerSize)
	copy(out[0:4], Magic[:])
	binary.BigEndian.PutUint32(out[4:8], img.Major)
	binary.BigEndian.PutUint32(out[8:12], img.Minor)
	binary.BigEndian.PutUint16(out[16:18], uint16(len(img.Entries)))
	for i := range img.Entries {
		out = append(out, img.Entries[i].Encode()...)
	}
	binary.BigEndian.PutUint32(out[12:16], uint32(len(out)))
	return out
}
