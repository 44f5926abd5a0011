package ops

import "bytes"

// Memory is an Ops implementation backed by in-process maps. The userspace
// tool uses it for images loaded from files, and tests use it as their
// environment fixture. The zero value is usable; fields may be populated
// directly.
type Memory struct {
	// Partitions maps partition name to image bytes.
	Partitions map[string][]byte
	// Preloaded maps partition name to an already-resident image served
	// via GetPreloadedPartition.
	Preloaded map[string][]byte
	// RollbackIndexes holds one monotonic counter per location. Locations
	// beyond the slice read as zero and are grown on write.
	RollbackIndexes []uint64
	// Unlocked is the device-unlock flag.
	Unlocked bool
	// GUIDs maps partition name to its unique GUID.
	GUIDs map[string]string

	// TrustedKeys are the pre-encoded public keys the root-of-trust
	// oracle accepts.
	TrustedKeys [][]byte
	// CustomKey marks the trusted keys as user-supplied, yielding
	// KeyTrustedCustom from the oracle.
	CustomKey bool
	// KeyLocation is the rollback-index location the oracle reports.
	KeyLocation uint32

	// ReadErrors injects a failure status for reads of the named
	// partition.
	ReadErrors map[string]Status
}

var _ Ops = (*Memory)(nil)

// ReadFromPartition implements Ops.
func (m *Memory) ReadFromPartition(name string, offset int64, num int) ([]byte, Status) {
	if st, ok := m.ReadErrors[name]; ok && st != StatusOK {
		return nil, st
	}
	data, ok := m.Partitions[name]
	if !ok {
		return nil, StatusNoSuchPartition
	}
	if offset < 0 {
		offset += int64(len(data))
	}
	if offset < 0 || num < 0 || offset+int64(num) > int64(len(data)) {
		return nil, StatusRangeOutsidePartition
	}
	out := make([]byte, num)
	copy(out, data[offset:])
	return out, StatusOK
}

// GetPreloadedPartition implements Ops.
func (m *Memory) GetPreloadedPartition(name string) ([]byte, bool) {
	data, ok := m.Preloaded[name]
	return data, ok
}

// WriteToPartition implements Ops.
func (m *Memory) WriteToPartition(name string, offset int64, data []byte) Status {
	img, ok := m.Partitions[name]
	if !ok {
		return StatusNoSuchPartition
	}
	if offset < 0 {
		offset += int64(len(img))
	}
	if offset < 0 || offset+int64(len(data)) > int64(len(img)) {
		return StatusRangeOutsidePartition
	}
	copy(img[offset:], data)
	return StatusOK
}

// ValidateVBMetaPublicKey implements Ops by comparing the key bit-exactly
// against TrustedKeys. Metadata is ignored.
func (m *Memory) ValidateVBMetaPublicKey(name string, publicKey, publicKeyMetadata []byte) (KeyTrust, uint32, Status) {
	for _, k := range m.TrustedKeys {
		if bytes.Equal(k, publicKey) {
			if m.CustomKey {
				return KeyTrustedCustom, m.KeyLocation, StatusOK
			}
			return KeyTrusted, m.KeyLocation, StatusOK
		}
	}
	return KeyUntrusted, 0, StatusOK
}

// ReadRollbackIndex implements Ops. Locations beyond the configured table
// read as zero, matching devices that grow their rollback storage lazily.
func (m *Memory) ReadRollbackIndex(location uint32) (uint64, Status) {
	if int(location) >= len(m.RollbackIndexes) {
		return 0, StatusOK
	}
	return m.RollbackIndexes[location], StatusOK
}

// WriteRollbackIndex implements Ops.
func (m *Memory) WriteRollbackIndex(location uint32, value uint64) Status {
	for int(location) >= len(m.RollbackIndexes) {
		m.RollbackIndexes = append(m.RollbackIndexes, 0)
	}
	m.RollbackIndexes[location] = value
	return StatusOK
}

// ReadIsDeviceUnlocked implements Ops.
func (m *Memory) ReadIsDeviceUnlocked() (bool, Status) {
	return m.Unlocked, StatusOK
}

// GetUniqueGUIDForPartition implements Ops. Partitions without a configured
// GUID report the nil GUID.
func (m *Memory) GetUniqueGUIDForPartition(name string) (string, Status) {
	if g, ok := m.GUIDs[name]; ok {
		return g, StatusOK
	}
	return "00000000-0000-0000-0000-000000000000", StatusOK
}

// GetSizeOfPartition implements Ops.
func (m *Memory) GetSizeOfPartition(name string) (uint64, Status) {
	data, ok := m.Partitions[name]
	if !ok {
		if p, pok := m.Preloaded[name]; pok {
			return uint64(len(p)), StatusOK
		}
		return 0, StatusNoSuchPartition
	}
	return uint64(len(data)), StatusOK
}
