// Package descriptor implements the typed records embedded in a vbmeta
// auxiliary block. Every record starts with a 16-byte common prefix (8-byte
// tag, 8-byte count of the bytes that follow) and is padded so its total
// length is a multiple of 8. All integers are big-endian on the wire.
//
// Decoding is zero-copy: string and blob fields are views into the borrowed
// region and stay valid only as long as the region does. Records with an
// unrecognized tag are length-skipped.
package descriptor

import (
	"encoding/binary"
	"errors"
)

// Tag identifies the type of a descriptor record.
type Tag uint64

// Wire tag values.
const (
	TagProperty Tag = iota
	TagHashtree
	TagHash
	TagKernelCmdline
	TagChainPartition
)

// String returns the tag name used in logs and tool output.
func (t Tag) String() string {
	switch t {
	case TagProperty:
		return "property"
	case TagHashtree:
		return "hashtree"
	case TagHash:
		return "hash"
	case TagKernelCmdline:
		return "kernel_cmdline"
	case TagChainPartition:
		return "chain_partition"
	default:
		return "unknown"
	}
}

// prefixSize is the size of the common descriptor prefix.
const prefixSize = 16

// Implementation caps on variable-length string fields.
const (
	MaxPartitionNameLen = 32
	MaxHashAlgorithmLen = 32
)

// ErrInvalidMetadata is returned when a record overruns its region, when a
// length field is miscounted, or when a string exceeds the caps above.
var ErrInvalidMetadata = errors.New("descriptor: invalid metadata")

// Descriptor is the closed set of record types carried in a vbmeta image.
// Concrete types are Property, Hashtree, Hash, KernelCmdline, and
// ChainPartition.
type Descriptor interface {
	// Tag returns the record's wire tag.
	Tag() Tag
	// Encode serializes the full record, common prefix and padding included.
	Encode() []byte
}

// Iterator produces the descriptors of a region one at a time. It is
// restartable: Reset rewinds to the first record. The zero value is not
// usable; construct with NewIterator.
type Iterator struct {
	region []byte
	off    int
}

// NewIterator returns an iterator over a descriptor region.
func NewIterator(region []byte) *Iterator {
	return &Iterator{region: region}
}

// Reset rewinds the iterator to the start of the region.
func (it *Iterator) Reset() { it.off = 0 }

// Next decodes the next recognized descriptor. It returns ok=false when the
// region is exhausted. Records with unknown tags are skipped.
func (it *Iterator) Next() (Descriptor, bool, error) {
	for it.off < len(it.region) {
		if len(it.region)-it.off < prefixSize {
			return nil, false, ErrInvalidMetadata
		}
		tag := Tag(binary.BigEndian.Uint64(it.region[it.off:]))
		numBytes := binary.BigEndian.Uint64(it.region[it.off+8:])
		if numBytes%8 != 0 || numBytes > uint64(len(it.region)-it.off-prefixSize) {
			return nil, false, ErrInvalidMetadata
		}
		payload := it.region[it.off+prefixSize : it.off+prefixSize+int(numBytes)]
		it.off += prefixSize + int(numBytes)

		var (
			d   Descriptor
			err error
		)
		switch tag {
		case TagProperty:
			d, err = parseProperty(payload)
		case TagHashtree:
			d, err = parseHashtree(payload)
		case TagHash:
			d, err = parseHash(payload)
		case TagKernelCmdline:
			d, err = parseKernelCmdline(payload)
		case TagChainPartition:
			d, err = parseChainPartition(payload)
		default:
			continue // unknown tag: length-skip
		}
		if err != nil {
			return nil, false, err
		}
		return d, true, nil
	}
	return nil, false, nil
}

// All decodes every recognized descriptor in the region.
func All(region []byte) ([]Descriptor, error) {
	var out []Descriptor
	it := NewIterator(region)
	for {
		d, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, d)
	}
}

// encodeRecord assembles prefix || fixed || payloads, padded to 8 bytes.
func encodeRecord(tag Tag, body []byte) []byte {
	padded := (len(body) + 7) &^ 7
	out := make([]byte, prefixSize+padded)
	binary.BigEndian.PutUint64(out[0:8], uint64(tag))
	binary.BigEndian.PutUint64(out[8:16], uint64(padded))
	copy(out[prefixSize:], body)
	return out
}

// checkStringLen validates a variable-length string against a cap.
func checkStringLen(n uint32, max int) error {
	if int(n) > max {
		return ErrInvalidMetadata
	}
	return nil
}
