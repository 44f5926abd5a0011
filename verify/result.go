// Package verify implements slot verification: loading and authenticating
// the top-level vbmeta image, walking its chain descriptors to verify
// secondary vbmetas, eagerly checking hash-protected partitions, enforcing
// rollback indices, and folding everything into a Result carrying the boot
// state color and kernel cmdline additions.
package verify

import (
	"fmt"
	"sort"

	"github.com/linux-univx/avb/descriptor"
	"github.com/linux-univx/avb/ops"
	"github.com/linux-univx/avb/vbmeta"
)

// Flags modify a verification run.
type Flags uint32

const (
	// FlagsNone requests strict verification.
	FlagsNone Flags = 0
	// FlagsAllowVerificationError records verification failures in the
	// result and keeps walking instead of aborting, so unlocked devices
	// can enter a degraded boot state. I/O and argument errors are never
	// downgraded.
	FlagsAllowVerificationError Flags = 1 << 0
)

// SlotVerifyResult is the status enumeration of a verification run.
type SlotVerifyResult int

// SlotVerifyResult values.
const (
	ResultOK SlotVerifyResult = iota
	// ResultOKNotSigned means the top-level algorithm was NONE; the image
	// parsed but nothing vouches for it, and policy is the caller's.
	ResultOKNotSigned
	ResultErrorOOM
	ResultErrorIO
	ResultErrorVerification
	ResultErrorRollbackIndex
	ResultErrorPublicKeyRejected
	ResultErrorInvalidMetadata
	ResultErrorUnsupportedVersion
	ResultErrorInvalidArgument
)

// String returns the status name.
func (r SlotVerifyResult) String() string {
	switch r {
	case ResultOK:
		return "OK"
	case ResultOKNotSigned:
		return "OK_NOT_SIGNED"
	case ResultErrorOOM:
		return "ERROR_OOM"
	case ResultErrorIO:
		return "ERROR_IO"
	case ResultErrorVerification:
		return "ERROR_VERIFICATION"
	case ResultErrorRollbackIndex:
		return "ERROR_ROLLBACK_INDEX"
	case ResultErrorPublicKeyRejected:
		return "ERROR_PUBLIC_KEY_REJECTED"
	case ResultErrorInvalidMetadata:
		return "ERROR_INVALID_METADATA"
	case ResultErrorUnsupportedVersion:
		return "ERROR_UNSUPPORTED_VERSION"
	case ResultErrorInvalidArgument:
		return "ERROR_INVALID_ARGUMENT"
	default:
		return fmt.Sprintf("RESULT(%d)", int(r))
	}
}

// Error makes a non-OK status usable as an error value.
func (r SlotVerifyResult) Error() string { return r.String() }

// Allowed reports whether FlagsAllowVerificationError downgrades this
// status. OOM, I/O, and argument errors are always fatal.
func (r SlotVerifyResult) Allowed(flags Flags) bool {
	if flags&FlagsAllowVerificationError == 0 {
		return false
	}
	switch r {
	case ResultErrorVerification, ResultErrorRollbackIndex,
		ResultErrorPublicKeyRejected, ResultErrorInvalidMetadata,
		ResultErrorUnsupportedVersion:
		return true
	default:
		return false
	}
}

// BootState is the verified-boot color communicated to the user and kernel.
type BootState int

// BootState values, ordered from most to least trusted.
const (
	// BootStateGreen: fully verified under the device manufacturer's key.
	BootStateGreen BootState = iota
	// BootStateYellow: fully verified under a user-supplied key.
	BootStateYellow
	// BootStateOrange: the device is unlocked and the walk completed,
	// whether fully verified, unsigned at the top level, or with failures
	// allowed under FlagsAllowVerificationError.
	BootStateOrange
	// BootStateRed: verification failed and the failure was not allowed,
	// or the device is locked and the top level is unsigned or failures
	// were allowed.
	BootStateRed
	// BootStateRedEIO: verification failed because of persistent I/O
	// errors on a required read.
	BootStateRedEIO
)

// String returns the color name as used on the kernel cmdline.
func (b BootState) String() string {
	switch b {
	case BootStateGreen:
		return "green"
	case BootStateYellow:
		return "yellow"
	case BootStateOrange:
		return "orange"
	case BootStateRed:
		return "red"
	case BootStateRedEIO:
		return "red_eio"
	default:
		return fmt.Sprintf("STATE(%d)", int(b))
	}
}

// VBMetaImage is one verified vbmeta image in traversal order. Data is
// owned by the result; Header and Descriptors point into it.
type VBMetaImage struct {
	// PartitionName is the on-device partition the image was read from,
	// slot suffix included.
	PartitionName string
	Header        *vbmeta.Header
	Descriptors   []descriptor.Descriptor
	Data          []byte
	// VerifyResult is non-OK when the image failed verification but
	// FlagsAllowVerificationError kept the walk going.
	VerifyResult SlotVerifyResult
}

// LoadedPartition is a hash-verified partition image retained for the
// caller.
type LoadedPartition struct {
	// Name is the base partition name from the descriptor.
	Name string
	// Suffix is the slot suffix applied when reading, "" if none.
	Suffix string
	Data   []byte
}

// Result is the outcome of a verification run. It owns every buffer it
// references; its lifetime is independent of the inputs.
type Result struct {
	Status    SlotVerifyResult
	BootState BootState

	VBMetaImages     []VBMetaImage
	LoadedPartitions []LoadedPartition

	// Cmdline holds the androidboot.vbmeta.* values followed by the
	// applicable kernel-cmdline descriptor fragments.
	Cmdline string

	// RollbackIndexes are the values to commit per location after a
	// successful boot: the maximum vbmeta rollback index seen at each
	// location during the walk.
	RollbackIndexes map[uint32]uint64

	// Errors lists the statuses that were downgraded under
	// FlagsAllowVerificationError, in the order encountered.
	Errors []SlotVerifyResult
}

// Property returns the value of the named property descriptor across all
// verified vbmeta images, or "" if absent.
func (r *Result) Property(key string) string {
	for i := range r.VBMetaImages {
		for _, d := range r.VBMetaImages[i].Descriptors {
			if p, ok := d.(*descriptor.Property); ok && string(p.Key) == key {
				return string(p.Value)
			}
		}
	}
	return ""
}

// Descriptors returns every descriptor of the given tag across all verified
// vbmeta images, preserving traversal order.
func (r *Result) Descriptors(tag descriptor.Tag) []descriptor.Descriptor {
	var out []descriptor.Descriptor
	for i := range r.VBMetaImages {
		for _, d := range r.VBMetaImages[i].Descriptors {
			if d.Tag() == tag {
				out = append(out, d)
			}
		}
	}
	return out
}

// CommitRollbackIndexes writes the intended rollback values through the ops
// layer. Call after the boot has been deemed successful, never during
// verification.
func (r *Result) CommitRollbackIndexes(o ops.Ops) ops.Status {
	locations := make([]uint32, 0, len(r.RollbackIndexes))
	for loc := range r.RollbackIndexes {
		locations = append(locations, loc)
	}
	sort.Slice(locations, func(i, j int) bool { return locations[i] < locations[j] })

	for _, loc := range locations {
		value := r.RollbackIndexes[loc]
		stored, st := o.ReadRollbackIndex(loc)
		if st != ops.StatusOK {
			return st
		}
		if stored >= value {
			continue // already at or past the intended value
		}
		if st := o.WriteRollbackIndex(loc, value); st != ops.StatusOK {
			return st
		}
	}
	return ops.StatusOK
}
