package descriptor

import "encoding/binary"

// ChainPartition flags.
const (
	// ChainFlagsDoNotUseAB marks a chained vbmeta that is not slotted; the
	// walker must not append the A/B suffix to its partition name.
	ChainFlagsDoNotUseAB uint32 = 1 << 0
)

// chainFixedSize is the byte count of the fixed fields following the prefix.
const chainFixedSize = 4 + 4 + 4 + 4 + 60

// ChainPartition delegates verification of a child partition's vbmeta to
// the key pinned in PublicKey. The child's rollback index lives at
// RollbackIndexLocation.
type ChainPartition struct {
	RollbackIndexLocation uint32
	PartitionName         []byte
	PublicKey             []byte
	Flags                 uint32
}

// Tag returns TagChainPartition.
func (d *ChainPartition) Tag() Tag { return TagChainPartition }

// DoNotUseAB reports whether slot suffixing is disabled for this partition.
func (d *ChainPartition) DoNotUseAB() bool { return d.Flags&ChainFlagsDoNotUseAB != 0 }

func parseChainPartition(payload []byte) (*ChainPartition, error) {
	if len(payload) < chainFixedSize {
		return nil, ErrInvalidMetadata
	}
	d := &ChainPartition{
		RollbackIndexLocation: binary.BigEndian.Uint32(payload[0:4]),
	}
	nameLen := binary.BigEndian.Uint32(payload[4:8])
	keyLen := binary.BigEndian.Uint32(payload[8:12])
	d.Flags = binary.BigEndian.Uint32(payload[12:16])

	if err := checkStringLen(nameLen, MaxPartitionNameLen); err != nil {
		return nil, err
	}
	total := uint64(nameLen) + uint64(keyLen)
	if total > uint64(len(payload)-chainFixedSize) {
		return nil, ErrInvalidMetadata
	}
	off := chainFixedSize
	d.PartitionName = payload[off : off+int(nameLen)]
	off += int(nameLen)
	d.PublicKey = payload[off : off+int(keyLen)]
	return d, nil
}

// Encode serializes the descriptor, prefix and padding included.
func (d *ChainPartition) Encode() []byte {
	body := make([]byte, chainFixedSize, chainFixedSize+len(d.PartitionName)+len(d.PublicKey))
	binary.BigEndian.PutUint32(body[0:4], d.RollbackIndexLocation)
	binary.BigEndian.PutUint32(body[4:8], uint32(len(d.PartitionName)))
	binary.BigEndian.PutUint32(body[8:12], uint32(len(d.PublicKey)))
	binary.BigEndian.PutUint32(body[12:16], d.Flags)
	body = append(body, d.PartitionName...)
	body = append(body, d.PublicKey...)
	return encodeRecord(TagChainPartition, body)
}
