package verify

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/linux-univx/avb/crypto"
	"github.com/linux-univx/avb/descriptor"
	"github.com/linux-univx/avb/ops"
)

// Substitution variables recognized in kernel-cmdline descriptor fragments.
// The PARTUUID variables expand through the GUID op so fragments can
// reference partitions by-partuuid without baking device-specific
// identifiers into the vbmeta; the verity-mode variable expands to
// restart_on_corruption.
const (
	varSystemPartUUID = "$(ANDROID_SYSTEM_PARTUUID)"
	varBootPartUUID   = "$(ANDROID_BOOT_PARTUUID)"
	varVBMetaPartUUID = "$(ANDROID_VBMETA_PARTUUID)"
	varVerityMode     = "$(ANDROID_VERITY_MODE)"
)

// AggregateDigest hashes the concatenation of every verified vbmeta image
// in traversal order with the top-level image's declared hash algorithm
// (sha256 when the top level is unsigned). It returns the algorithm name
// and the digest.
func (r *Result) AggregateDigest() (string, []byte) {
	hashName := "sha256"
	if len(r.VBMetaImages) > 0 {
		if n := r.VBMetaImages[0].Header.Algorithm.HashName(); n != "" {
			hashName = n
		}
	}
	hasher, err := crypto.NewHasher(hashName)
	if err != nil {
		hasher, _ = crypto.NewHasher("sha256")
	}
	for i := range r.VBMetaImages {
		hasher.Update(r.VBMetaImages[i].Data)
	}
	digest := make([]byte, hasher.DigestSize())
	copy(digest, hasher.Final())
	return hashName, digest
}

// buildCmdline synthesizes the androidboot.vbmeta.* values followed by the
// applicable kernel-cmdline descriptor fragments.
func (v *Verifier) buildCmdline(res *Result, unlocked, hashtreeDisabled bool, suffix string) (string, ops.Status) {
	deviceState := "locked"
	if unlocked {
		deviceState = "unlocked"
	}

	totalSize := 0
	for i := range res.VBMetaImages {
		totalSize += len(res.VBMetaImages[i].Data)
	}
	hashName, digest := res.AggregateDigest()

	parts := []string{
		"androidboot.vbmeta.device_state=" + deviceState,
		"androidboot.vbmeta.hash_alg=" + hashName,
		fmt.Sprintf("androidboot.vbmeta.size=%d", totalSize),
		"androidboot.vbmeta.digest=" + hex.EncodeToString(digest),
	}

	for _, d := range res.Descriptors(descriptor.TagKernelCmdline) {
		kc := d.(*descriptor.KernelCmdline)
		if !kc.AppliesWhen(hashtreeDisabled) {
			continue
		}
		fragment, st := v.substitute(string(kc.Cmdline), suffix)
		if st != ops.StatusOK {
			return "", st
		}
		parts = append(parts, fragment)
	}

	// Every hashtree descriptor becomes a dm-verity target line, unless
	// this boot has dm-verity switched off.
	if !hashtreeDisabled {
		for _, d := range res.Descriptors(descriptor.TagHashtree) {
			ht := d.(*descriptor.Hashtree)
			partSuffix := suffix
			if ht.DoNotUseAB() {
				partSuffix = ""
			}
			guid, st := v.Ops.GetUniqueGUIDForPartition(string(ht.PartitionName) + partSuffix)
			if st != ops.StatusOK {
				return "", st
			}
			parts = append(parts, HashtreeCmdline(ht, guid))
		}
	}
	return strings.Join(parts, " "), ops.StatusOK
}

// substitute expands the PARTUUID and verity-mode variables in a cmdline
// fragment.
func (v *Verifier) substitute(fragment, suffix string) (string, ops.Status) {
	for _, sub := range []struct {
		token     string
		partition string
	}{
		{varSystemPartUUID, "system" + suffix},
		{varBootPartUUID, "boot" + suffix},
		{varVBMetaPartUUID, "vbmeta" + suffix},
	} {
		if !strings.Contains(fragment, sub.token) {
			continue
		}
		guid, st := v.Ops.GetUniqueGUIDForPartition(sub.partition)
		if st != ops.StatusOK {
			return "", st
		}
		fragment = strings.ReplaceAll(fragment, sub.token, guid)
	}
	return strings.ReplaceAll(fragment, varVerityMode, "restart_on_corruption"), ops.StatusOK
}

// HashtreeCmdline translates a hashtree descriptor into the dm-verity
// target line handed to the kernel, referencing the partition by GUID.
// Platforms that set up dm-verity themselves feed this to the dm= parameter.
func HashtreeCmdline(d *descriptor.Hashtree, partGUID string) string {
	alg := string(d.HashAlgorithm)
	dataBlocks := uint64(0)
	hashStartBlock := uint64(0)
	if d.DataBlockSize > 0 {
		dataBlocks = d.ImageSize / uint64(d.DataBlockSize)
	}
	if d.HashBlockSize > 0 {
		hashStartBlock = d.TreeOffset / uint64(d.HashBlockSize)
	}

	line := fmt.Sprintf(
		"dm=\"1 vroot none ro 1,0 %d verity %d PARTUUID=%s PARTUUID=%s %d %d %d %d %s %s %s",
		d.ImageSize/512,
		d.DMVerityVersion,
		partGUID, partGUID,
		d.DataBlockSize, d.HashBlockSize,
		dataBlocks, hashStartBlock,
		alg,
		hex.EncodeToString(d.RootDigest),
		hex.EncodeToString(d.Salt),
	)
	if d.FECSize > 0 && d.DataBlockSize > 0 {
		line += fmt.Sprintf(
			" 10 restart_on_corruption ignore_zero_blocks use_fec_from_device PARTUUID=%s fec_roots %d fec_blocks %d fec_start %d",
			partGUID,
			d.FECNumRoots,
			d.FECOffset/uint64(d.DataBlockSize),
			d.FECOffset/uint64(d.DataBlockSize),
		)
	} else {
		line += " 2 restart_on_corruption ignore_zero_blocks"
	}
	return line + "\" root=/dev/dm-0"
}
