package descriptor

import "encoding/binary"

// KernelCmdline flags select when a fragment applies.
const (
	// CmdlineFlagsUseOnlyIfHashtreeNotDisabled restricts the fragment to
	// boots where dm-verity is active.
	CmdlineFlagsUseOnlyIfHashtreeNotDisabled uint32 = 1 << 0
	// CmdlineFlagsUseOnlyIfHashtreeDisabled restricts the fragment to
	// boots where dm-verity has been turned off.
	CmdlineFlagsUseOnlyIfHashtreeDisabled uint32 = 1 << 1
)

// cmdlineFixedSize is the byte count of the fixed fields following the
// prefix.
const cmdlineFixedSize = 4 + 4

// KernelCmdline carries a cmdline fragment to append when its flag
// condition holds.
type KernelCmdline struct {
	Flags   uint32
	Cmdline []byte
}

// Tag returns TagKernelCmdline.
func (d *KernelCmdline) Tag() Tag { return TagKernelCmdline }

// AppliesWhen reports whether the fragment applies given the hashtree
// state of the boot.
func (d *KernelCmdline) AppliesWhen(hashtreeDisabled bool) bool {
	if d.Flags&CmdlineFlagsUseOnlyIfHashtreeNotDisabled != 0 && hashtreeDisabled {
		return false
	}
	if d.Flags&CmdlineFlagsUseOnlyIfHashtreeDisabled != 0 && !hashtreeDisabled {
		return false
	}
	return true
}

func parseKernelCmdline(payload []byte) (*KernelCmdline, error) {
	if len(payload) < cmdlineFixedSize {
		return nil, ErrInvalidMetadata
	}
	d := &KernelCmdline{
		Flags: binary.BigEndian.Uint32(payload[0:4]),
	}
	length := binary.BigEndian.Uint32(payload[4:8])
	if uint64(length) > uint64(len(payload)-cmdlineFixedSize) {
		return nil, ErrInvalidMetadata
	}
	d.Cmdline = payload[cmdlineFixedSize : cmdlineFixedSize+int(length)]
	return d, nil
}

// Encode serializes the descriptor, prefix and padding included.
func (d *KernelCmdline) Encode() []byte {
	body := make([]byte, cmdlineFixedSize, cmdlineFixedSize+len(d.Cmdline))
	binary.BigEndian.PutUint32(body[0:4], d.Flags)
	binary.BigEndian.PutUint32(body[4:8], uint32(len(d.Cmdline)))
	body = append(body, d.Cmdline...)
	return encodeRecord(TagKernelCmdline, body)
}
