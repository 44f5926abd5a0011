package descriptor

import "encoding/binary"

// propertyFixedSize is the byte count of the fixed fields following the
// prefix.
const propertyFixedSize = 8 + 8

// Property is a free-form key/value pair exposed to callers of the
// verification result.
type Property struct {
	Key   []byte
	Value []byte
}

// Tag returns TagProperty.
func (d *Property) Tag() Tag { return TagProperty }

func parseProperty(payload []byte) (*Property, error) {
	if len(payload) < propertyFixedSize {
		return nil, ErrInvalidMetadata
	}
	keyLen := binary.BigEndian.Uint64(payload[0:8])
	valueLen := binary.BigEndian.Uint64(payload[8:16])
	rem := uint64(len(payload) - propertyFixedSize)
	// Check the lengths separately so their sum cannot wrap.
	if keyLen > rem || valueLen > rem-keyLen {
		return nil, ErrInvalidMetadata
	}
	off := uint64(propertyFixedSize)
	return &Property{
		Key:   payload[off : off+keyLen],
		Value: payload[off+keyLen : off+keyLen+valueLen],
	}, nil
}

// Encode serializes the descriptor, prefix and padding included.
func (d *Property) Encode() []byte {
	body := make([]byte, propertyFixedSize, propertyFixedSize+len(d.Key)+len(d.Value))
	binary.BigEndian.PutUint64(body[0:8], uint64(len(d.Key)))
	binary.BigEndian.PutUint64(body[8:16], uint64(len(d.Value)))
	body = append(body, d.Key...)
	body = append(body, d.Value...)
	return encodeRecord(TagProperty, body)
}
