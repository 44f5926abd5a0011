package descriptor

import "encoding/binary"

// Hashtree flags.
const (
	// HashtreeFlagsDoNotUseAB marks a partition that is not slotted; the
	// verifier must not append the A/B suffix to its name.
	HashtreeFlagsDoNotUseAB uint32 = 1 << 0
)

// hashtreeFixedSize is the byte count of the fixed fields following the
// prefix.
const hashtreeFixedSize = 4 + 8 + 8 + 8 + 4 + 4 + 4 + 8 + 8 + MaxHashAlgorithmLen + 4 + 4 + 4 + 4 + 60

// Hashtree describes a dm-verity protected partition. The tree itself is
// checked on demand by the kernel; the verifier's job is to pass these
// parameters through on the kernel cmdline.
type Hashtree struct {
	DMVerityVersion uint32
	ImageSize       uint64
	TreeOffset      uint64
	TreeSize        uint64
	DataBlockSize   uint32
	HashBlockSize   uint32
	FECNumRoots     uint32
	FECOffset       uint64
	FECSize         uint64
	HashAlgorithm   []byte
	PartitionName   []byte
	Salt            []byte
	RootDigest      []byte
	Flags           uint32
}

// Tag returns TagHashtree.
func (d *Hashtree) Tag() Tag { return TagHashtree }

// DoNotUseAB reports whether slot suffixing is disabled for this partition.
func (d *Hashtree) DoNotUseAB() bool { return d.Flags&HashtreeFlagsDoNotUseAB != 0 }

func parseHashtree(payload []byte) (*Hashtree, error) {
	if len(payload) < hashtreeFixedSize {
		return nil, ErrInvalidMetadata
	}
	d := &Hashtree{
		DMVerityVersion: binary.BigEndian.Uint32(payload[0:4]),
		ImageSize:       binary.BigEndian.Uint64(payload[4:12]),
		TreeOffset:      binary.BigEndian.Uint64(payload[12:20]),
		TreeSize:        binary.BigEndian.Uint64(payload[20:28]),
		DataBlockSize:   binary.BigEndian.Uint32(payload[28:32]),
		HashBlockSize:   binary.BigEndian.Uint32(payload[32:36]),
		FECNumRoots:     binary.BigEndian.Uint32(payload[36:40]),
		FECOffset:       binary.BigEndian.Uint64(payload[40:48]),
		FECSize:         binary.BigEndian.Uint64(payload[48:56]),
		HashAlgorithm:   trimZero(payload[56 : 56+MaxHashAlgorithmLen]),
	}
	nameLen := binary.BigEndian.Uint32(payload[88:92])
	saltLen := binary.BigEndian.Uint32(payload[92:96])
	digestLen := binary.BigEndian.Uint32(payload[96:100])
	d.Flags = binary.BigEndian.Uint32(payload[100:104])

	if err := checkStringLen(nameLen, MaxPartitionNameLen); err != nil {
		return nil, err
	}
	total := uint64(nameLen) + uint64(saltLen) + uint64(digestLen)
	if total > uint64(len(payload)-hashtreeFixedSize) {
		return nil, ErrInvalidMetadata
	}
	off := hashtreeFixedSize
	d.PartitionName = payload[off : off+int(nameLen)]
	off += int(nameLen)
	d.Salt = payload[off : off+int(saltLen)]
	off += int(saltLen)
	d.RootDigest = payload[off : off+int(digestLen)]
	return d, nil
}

// Encode serializes the descriptor, prefix and padding included.
func (d *Hashtree) Encode() []byte {
	body := make([]byte, hashtreeFixedSize,
		hashtreeFixedSize+len(d.PartitionName)+len(d.Salt)+len(d.RootDigest))
	binary.BigEndian.PutUint32(body[0:4], d.DMVerityVersion)
	binary.BigEndian.PutUint64(body[4:12], d.ImageSize)
	binary.BigEndian.PutUint64(body[12:20], d.TreeOffset)
	binary.BigEndian.PutUint64(body[20:28], d.TreeSize)
	binary.BigEndian.PutUint32(body[28:32], d.DataBlockSize)
	binary.BigEndian.PutUint32(body[32:36], d.HashBlockSize)
	binary.BigEndian.PutUint32(body[36:40], d.FECNumRoots)
	binary.BigEndian.PutUint64(body[40:48], d.FECOffset)
	binary.BigEndian.PutUint64(body[48:56], d.FECSize)
	copy(body[56:56+MaxHashAlgorithmLen], d.HashAlgorithm)
	binary.BigEndian.PutUint32(body[88:92], uint32(len(d.PartitionName)))
	binary.BigEndian.PutUint32(body[92:96], uint32(len(d.Salt)))
	binary.BigEndian.PutUint32(body[96:100], uint32(len(d.RootDigest)))
	binary.BigEndian.PutUint32(body[100:104], d.Flags)
	body = append(body, d.PartitionName...)
	body = append(body, d.Salt...)
	body = append(body, d.RootDigest...)
	return encodeRecord(TagHashtree, body)
}
