package descriptor

import "encoding/binary"

// Hash flags.
const (
	// HashFlagsDoNotUseAB marks a partition that is not slotted; the
	// verifier must not append the A/B suffix to its name.
	HashFlagsDoNotUseAB uint32 = 1 << 0
)

// hashFixedSize is the byte count of the fixed fields following the prefix.
const hashFixedSize = 8 + MaxHashAlgorithmLen + 4 + 4 + 4 + 4 + 60

// Hash describes a partition that is verified in full before boot: the
// whole image is read, optionally salted, hashed, and compared against
// Digest.
type Hash struct {
	ImageSize     uint64
	HashAlgorithm []byte
	PartitionName []byte
	Salt          []byte
	Digest        []byte
	Flags         uint32
}

// Tag returns TagHash.
func (d *Hash) Tag() Tag { return TagHash }

// DoNotUseAB reports whether slot suffixing is disabled for this partition.
func (d *Hash) DoNotUseAB() bool { return d.Flags&HashFlagsDoNotUseAB != 0 }

func parseHash(payload []byte) (*Hash, error) {
	if len(payload) < hashFixedSize {
		return nil, ErrInvalidMetadata
	}
	d := &Hash{
		ImageSize:     binary.BigEndian.Uint64(payload[0:8]),
		HashAlgorithm: trimZero(payload[8 : 8+MaxHashAlgorithmLen]),
	}
	nameLen := binary.BigEndian.Uint32(payload[40:44])
	saltLen := binary.BigEndian.Uint32(payload[44:48])
	digestLen := binary.BigEndian.Uint32(payload[48:52])
	d.Flags = binary.BigEndian.Uint32(payload[52:56])

	if err := checkStringLen(nameLen, MaxPartitionNameLen); err != nil {
		return nil, err
	}
	total := uint64(nameLen) + uint64(saltLen) + uint64(digestLen)
	if total > uint64(len(payload)-hashFixedSize) {
		return nil, ErrInvalidMetadata
	}
	off := hashFixedSize
	d.PartitionName = payload[off : off+int(nameLen)]
	off += int(nameLen)
	d.Salt = payload[off : off+int(saltLen)]
	off += int(saltLen)
	d.Digest = payload[off : off+int(digestLen)]
	return d, nil
}

// Encode serializes the descriptor, prefix and padding included.
func (d *Hash) Encode() []byte {
	body := make([]byte, hashFixedSize, hashFixedSize+len(d.PartitionName)+len(d.Salt)+len(d.Digest))
	binary.BigEndian.PutUint64(body[0:8], d.ImageSize)
	copy(body[8:8+MaxHashAlgorithmLen], d.HashAlgorithm)
	binary.BigEndian.PutUint32(body[40:44], uint32(len(d.PartitionName)))
	binary.BigEndian.PutUint32(body[44:48], uint32(len(d.Salt)))
	binary.BigEndian.PutUint32(body[48:52], uint32(len(d.Digest)))
	binary.BigEndian.PutUint32(body[52:56], d.Flags)
	body = append(body, d.PartitionName...)
	body = append(body, d.Salt...)
	body = append(body, d.Digest...)
	return encodeRecord(TagHash, body)
}

// trimZero strips trailing NUL padding from a fixed-size name field.
func trimZero(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return b[:end]
}
