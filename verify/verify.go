package verify

import (
	"bytes"
	"errors"

	"github.com/linux-univx/avb/crypto"
	"github.com/linux-univx/avb/descriptor"
	"github.com/linux-univx/avb/log"
	"github.com/linux-univx/avb/ops"
	"github.com/linux-univx/avb/vbmeta"
)

const (
	// maxChainDepth bounds the chained-partition walk.
	maxChainDepth = 32
	// maxVBMetaSize caps how much of a vbmeta partition is read.
	maxVBMetaSize = 64 * 1024
)

// Verifier runs slot verification against one ops environment. The zero
// value is not usable; set Ops at least.
type Verifier struct {
	Ops   ops.Ops
	Flags Flags
	// Log receives walk diagnostics; nil uses the package default.
	Log *log.Logger
}

// Slot verifies the slot named by suffix ("" or e.g. "_a") and returns a
// Result. The result is always non-nil and carries the boot-state color
// even on failure. requestedPartitions selects which hash-verified
// partition images are retained in the result; nil retains all of them.
//
// Convenience wrapper around a Verifier value.
func Slot(o ops.Ops, requestedPartitions []string, suffix string, flags Flags) (*Result, SlotVerifyResult) {
	v := &Verifier{Ops: o, Flags: flags}
	return v.Slot(requestedPartitions, suffix)
}

// chainEntry is one queued chained-partition verification.
type chainEntry struct {
	baseName  string
	pinnedKey []byte
	location  uint32
	useAB     bool
	depth     int
}

// walk carries the mutable state of one verification run.
type walk struct {
	v         *Verifier
	lg        *log.Logger
	suffix    string
	requested []string
	res       *Result
	queue     []chainEntry
	// chainLocations tracks rollback-index locations claimed by chain
	// descriptors; duplicates are invalid metadata.
	chainLocations map[uint32]bool
	// keyTrust is the oracle's answer for the top-level key.
	keyTrust ops.KeyTrust
	// topUnsigned is set when the top-level algorithm is NONE.
	topUnsigned bool
	// ioFailure distinguishes RED_EIO from RED.
	ioFailure bool
}

// Slot implements the verification entry point described on the package
// doc.
func (v *Verifier) Slot(requestedPartitions []string, suffix string) (*Result, SlotVerifyResult) {
	if v.Ops == nil {
		return &Result{Status: ResultErrorInvalidArgument, BootState: BootStateRed},
			ResultErrorInvalidArgument
	}
	lg := v.Log
	if lg == nil {
		lg = log.Default().Module("verify")
	}

	w := &walk{
		v:              v,
		lg:             lg,
		suffix:         suffix,
		requested:      requestedPartitions,
		res:            &Result{RollbackIndexes: map[uint32]uint64{}},
		chainLocations: map[uint32]bool{},
	}

	status := w.run()

	unlocked, st := v.Ops.ReadIsDeviceUnlocked()
	if st != ops.StatusOK {
		w.ioFailure = true
		if status == ResultOK || status == ResultOKNotSigned {
			status = ResultErrorIO
		}
	}

	w.res.Status = status
	w.res.BootState = w.bootState(status, unlocked)

	if status == ResultOK || status == ResultOKNotSigned {
		hashtreeDisabled := false
		if len(w.res.VBMetaImages) > 0 {
			hashtreeDisabled = w.res.VBMetaImages[0].Header.HashtreeDisabled()
		}
		cmdline, cst := v.buildCmdline(w.res, unlocked, hashtreeDisabled, suffix)
		if cst != ops.StatusOK {
			w.ioFailure = true
			w.res.Status = ResultErrorIO
			w.res.BootState = BootStateRedEIO
			return w.res, ResultErrorIO
		}
		w.res.Cmdline = cmdline
	}
	return w.res, w.res.Status
}

// run performs the breadth-first walk and returns the final status.
func (w *walk) run() SlotVerifyResult {
	if st := w.verifyVBMeta(chainEntry{baseName: "vbmeta", useAB: true}); st != ResultOK {
		if !st.Allowed(w.v.Flags) {
			return st
		}
		w.res.Errors = append(w.res.Errors, st)
	}

	for len(w.queue) > 0 {
		entry := w.queue[0]
		w.queue = w.queue[1:]
		if st := w.verifyVBMeta(entry); st != ResultOK {
			if !st.Allowed(w.v.Flags) {
				return st
			}
			w.res.Errors = append(w.res.Errors, st)
		}
	}

	if len(w.res.Errors) > 0 {
		// Downgraded: the caller opted into a degraded boot.
		return ResultOK
	}
	if w.topUnsigned {
		return ResultOKNotSigned
	}
	return ResultOK
}

// bootState folds the final status, the downgraded errors, and the device
// lock state into the color.
func (w *walk) bootState(status SlotVerifyResult, unlocked bool) BootState {
	switch status {
	case ResultOK:
		if len(w.res.Errors) > 0 {
			// Degraded boot under FlagsAllowVerificationError.
			if unlocked {
				return BootStateOrange
			}
			return BootStateRed
		}
		if unlocked {
			return BootStateOrange
		}
		if w.keyTrust == ops.KeyTrustedCustom {
			return BootStateYellow
		}
		return BootStateGreen
	case ResultOKNotSigned:
		if unlocked {
			return BootStateOrange
		}
		return BootStateRed
	case ResultErrorIO:
		return BootStateRedEIO
	default:
		if w.ioFailure {
			return BootStateRedEIO
		}
		return BootStateRed
	}
}

// loadPartition returns the partition's bytes, preferring a preloaded
// image, which is copied so the result does not alias it. size < 0 reads
// the whole partition, capped at maxVBMetaSize when read through ops; a
// preloaded image is returned whole.
func (w *walk) loadPartition(name string, size int) ([]byte, SlotVerifyResult) {
	if data, ok := w.v.Ops.GetPreloadedPartition(name); ok {
		if size < 0 {
			size = len(data)
		}
		if size > len(data) {
			return nil, w.mapIOStatus(ops.StatusRangeOutsidePartition)
		}
		out := make([]byte, size)
		copy(out, data)
		return out, ResultOK
	}
	if size < 0 {
		psize, st := w.v.Ops.GetSizeOfPartition(name)
		if st != ops.StatusOK {
			return nil, w.mapIOStatus(st)
		}
		if psize > maxVBMetaSize {
			psize = maxVBMetaSize
		}
		size = int(psize)
	}
	data, st := w.v.Ops.ReadFromPartition(name, 0, size)
	if st != ops.StatusOK {
		return nil, w.mapIOStatus(st)
	}
	return data, ResultOK
}

// mapIOStatus converts an ops failure into a verification status.
func (w *walk) mapIOStatus(st ops.Status) SlotVerifyResult {
	switch st {
	case ops.StatusOOM:
		return ResultErrorOOM
	default:
		w.ioFailure = true
		return ResultErrorIO
	}
}

// verifyVBMeta loads and authenticates one vbmeta image, enforces its
// rollback index, processes its descriptors, and queues its chains.
func (w *walk) verifyVBMeta(entry chainEntry) SlotVerifyResult {
	if entry.depth > maxChainDepth {
		return ResultErrorInvalidMetadata
	}
	name := entry.baseName
	if entry.useAB {
		name += w.suffix
	}
	lg := w.lg.With("partition", name)

	data, st := w.loadPartition(name, -1)
	if st != ResultOK {
		lg.Error("vbmeta load failed", "status", st.String())
		return st
	}

	v, err := vbmeta.Verify(data)
	verifyResult := ResultOK
	if err != nil {
		verifyResult = mapVBMetaError(err)
		lg.Error("vbmeta authentication failed", "status", verifyResult.String())
		if !verifyResult.Allowed(w.v.Flags) {
			return verifyResult
		}
		// Degraded path: record the failure and keep walking with
		// unverified data.
		if v, err = vbmeta.ParseUnverified(data); err != nil {
			return mapVBMetaError(err)
		}
		w.res.Errors = append(w.res.Errors, verifyResult)
	}

	if entry.pinnedKey != nil {
		// Chained vbmeta: the key must bit-exactly match the parent's
		// pin; the oracle is not consulted.
		if !bytes.Equal(v.PublicKey, entry.pinnedKey) {
			lg.Error("chained public key does not match pin")
			return ResultErrorPublicKeyRejected
		}
	} else if !v.Unsigned && verifyResult == ResultOK {
		trust, keyLoc, ost := w.v.Ops.ValidateVBMetaPublicKey(name, v.PublicKey, v.PublicKeyMetadata)
		if ost != ops.StatusOK {
			return w.mapIOStatus(ost)
		}
		if trust == ops.KeyUntrusted {
			lg.Error("public key rejected by root of trust")
			return ResultErrorPublicKeyRejected
		}
		w.keyTrust = trust
		if entry.location == 0 {
			entry.location = keyLoc
		}
	} else if v.Unsigned && entry.pinnedKey == nil {
		w.topUnsigned = true
	}

	// Rollback enforcement. The header's location wins when set.
	location := entry.location
	if v.Header.RollbackIndexLocation != 0 {
		location = v.Header.RollbackIndexLocation
	}
	if verifyResult == ResultOK && !v.Unsigned {
		stored, ost := w.v.Ops.ReadRollbackIndex(location)
		if ost != ops.StatusOK {
			return w.mapIOStatus(ost)
		}
		if stored > v.Header.RollbackIndex {
			lg.Error("rollback index too old",
				"location", location, "stored", stored, "image", v.Header.RollbackIndex)
			return ResultErrorRollbackIndex
		}
		if v.Header.RollbackIndex > w.res.RollbackIndexes[location] {
			w.res.RollbackIndexes[location] = v.Header.RollbackIndex
		}
	}

	w.res.VBMetaImages = append(w.res.VBMetaImages, VBMetaImage{
		PartitionName: name,
		Header:        v.Header,
		Descriptors:   v.Descriptors,
		Data:          data,
		VerifyResult:  verifyResult,
	})

	for _, d := range v.Descriptors {
		switch d := d.(type) {
		case *descriptor.ChainPartition:
			if st := w.queueChain(d, entry.depth); st != ResultOK {
				return st
			}
		case *descriptor.Hash:
			if st := w.verifyHashPartition(d); st != ResultOK {
				if !st.Allowed(w.v.Flags) {
					return st
				}
				w.res.Errors = append(w.res.Errors, st)
			}
		}
	}

	lg.Debug("vbmeta verified",
		"descriptors", len(v.Descriptors), "rollback_index", v.Header.RollbackIndex)
	return ResultOK
}

// queueChain validates a chain descriptor and appends it to the walk queue.
func (w *walk) queueChain(d *descriptor.ChainPartition, depth int) SlotVerifyResult {
	if depth+1 > maxChainDepth {
		return ResultErrorInvalidMetadata
	}
	// Location 0 belongs to the top-level vbmeta; chains claim distinct
	// locations above it.
	if d.RollbackIndexLocation == 0 || w.chainLocations[d.RollbackIndexLocation] {
		return ResultErrorInvalidMetadata
	}
	w.chainLocations[d.RollbackIndexLocation] = true

	pinned := make([]byte, len(d.PublicKey))
	copy(pinned, d.PublicKey)
	w.queue = append(w.queue, chainEntry{
		baseName:  string(d.PartitionName),
		pinnedKey: pinned,
		location:  d.RollbackIndexLocation,
		useAB:     !d.DoNotUseAB(),
		depth:     depth + 1,
	})
	return ResultOK
}

// verifyHashPartition eagerly verifies a hash descriptor: read the image,
// hash it behind the salt, and compare against the stored digest.
func (w *walk) verifyHashPartition(d *descriptor.Hash) SlotVerifyResult {
	suffix := ""
	if !d.DoNotUseAB() {
		suffix = w.suffix
	}
	name := string(d.PartitionName) + suffix

	if d.ImageSize > uint64(int(^uint(0)>>1)) {
		return ResultErrorInvalidMetadata
	}
	data, st := w.loadPartition(name, int(d.ImageSize))
	if st != ResultOK {
		return st
	}

	hasher, err := crypto.NewHasher(string(d.HashAlgorithm))
	if err != nil {
		return ResultErrorInvalidMetadata
	}
	hasher.Update(d.Salt)
	hasher.Update(data)
	digest := hasher.Final()
	if !bytes.Equal(digest, d.Digest) {
		w.lg.Error("hash mismatch", "partition", name)
		return ResultErrorVerification
	}

	if w.wantPartition(string(d.PartitionName)) {
		w.res.LoadedPartitions = append(w.res.LoadedPartitions, LoadedPartition{
			Name:   string(d.PartitionName),
			Suffix: suffix,
			Data:   data,
		})
	}
	w.lg.Debug("hash partition verified", "partition", name, "bytes", len(data))
	return ResultOK
}

// wantPartition reports whether the caller asked to retain this partition.
func (w *walk) wantPartition(base string) bool {
	if len(w.requested) == 0 {
		return true
	}
	for _, r := range w.requested {
		if r == base {
			return true
		}
	}
	return false
}

// mapVBMetaError converts vbmeta package errors into statuses.
func mapVBMetaError(err error) SlotVerifyResult {
	switch {
	case errors.Is(err, vbmeta.ErrUnsupportedVersion):
		return ResultErrorUnsupportedVersion
	case errors.Is(err, vbmeta.ErrVerification):
		return ResultErrorVerification
	default:
		return ResultErrorInvalidMetadata
	}
}
