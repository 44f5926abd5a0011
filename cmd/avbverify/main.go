// Command avbverify runs slot verification against partition images stored
// as files, the way a device's bootloader would against its flash.
//
// Usage:
//
//	avbverify -images dir -key key.avbpubkey [flags]
//
// Every dir/<name>.img file becomes the partition <name>. The key file
// holds the pre-encoded public key trusted for the top-level vbmeta. Stored
// rollback indexes can be injected with -rollbacks 1:5,2:0.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"

	"github.com/linux-univx/avb/aftl"
	"github.com/linux-univx/avb/log"
	"github.com/linux-univx/avb/ops"
	"github.com/linux-univx/avb/verify"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v1.3.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. Accepts CLI
// arguments (without the program name) so it can be tested in isolation.
func run(args []string) int {
	cfg, exit, code := parseFlags(args)
	if exit {
		return code
	}

	log.SetDefault(log.New(log.VerbosityToLevel(cfg.Verbosity)))
	lg := log.Default().Module("avbverify")

	m, err := buildOps(cfg)
	if err != nil {
		lg.Error("setup failed", "err", err.Error())
		return 1
	}

	flags := verify.FlagsNone
	if cfg.Allow {
		flags |= verify.FlagsAllowVerificationError
	}

	res, st := verify.Slot(m, cfg.Partitions, cfg.Slot, flags)
	printResult(res)

	if cfg.AftlPath != "" {
		if err := checkTransparency(cfg, res); err != nil {
			lg.Error("transparency check failed", "err", err.Error())
			return 1
		}
		fmt.Println("aftl:       verified")
	}

	if st != verify.ResultOK && st != verify.ResultOKNotSigned {
		return 1
	}
	return 0
}

// buildOps loads the partition images and device state into an in-memory
// ops implementation.
func buildOps(cfg config) (*ops.Memory, error) {
	m := &ops.Memory{
		Partitions: map[string][]byte{},
		Unlocked:   cfg.Unlocked,
	}
	for loc, value := range cfg.Rollbacks {
		if st := m.WriteRollbackIndex(loc, value); st != ops.StatusOK {
			return nil, fmt.Errorf("rollback setup: %v", st)
		}
	}

	matches, err := filepath.Glob(filepath.Join(cfg.ImagesDir, "*.img"))
	if err != nil {
		return nil, errors.Wrapf(err, "scanning %s", cfg.ImagesDir)
	}
	if len(matches) == 0 {
		return nil, errors.Errorf("no *.img files under %s", cfg.ImagesDir)
	}
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", path)
		}
		name := strings.TrimSuffix(filepath.Base(path), ".img")
		m.Partitions[name] = data
	}

	if cfg.KeyPath != "" {
		key, err := os.ReadFile(cfg.KeyPath)
		if err != nil {
			return nil, errors.Wrap(err, "reading trusted key")
		}
		m.TrustedKeys = [][]byte{key}
	}
	return m, nil
}

// checkTransparency parses the AFTL descriptor and verifies every inclusion
// proof under the log key, then checks the leaf commits to the verified
// vbmeta.
func checkTransparency(cfg config, res *verify.Result) error {
	data, err := os.ReadFile(cfg.AftlPath)
	if err != nil {
		return errors.Wrap(err, "reading aftl descriptor")
	}
	key, err := os.ReadFile(cfg.AftlKey)
	if err != nil {
		return errors.Wrap(err, "reading aftl log key")
	}

	img, err := aftl.Parse(data)
	if err != nil {
		return err
	}
	if err := img.Verify(key); err != nil {
		return err
	}

	_, digest := res.AggregateDigest()
	for i := range img.Entries {
		if !img.Entries[i].CommitsTo(digest) {
			return errors.Errorf("entry %d does not commit to the vbmeta digest", i)
		}
	}
	return nil
}

// printResult renders the verification outcome.
func printResult(res *verify.Result) {
	fmt.Printf("status:     %s\n", res.Status)
	fmt.Printf("boot state: %s\n", res.BootState)

	for _, img := range res.VBMetaImages {
		marker := ""
		if img.VerifyResult != verify.ResultOK {
			marker = " (" + img.VerifyResult.String() + ")"
		}
		fmt.Printf("vbmeta:     %s algorithm=%s rollback=%d%s\n",
			img.PartitionName, img.Header.Algorithm, img.Header.RollbackIndex, marker)
	}
	for _, lp := range res.LoadedPartitions {
		fmt.Printf("verified:   %s%s (%d bytes)\n", lp.Name, lp.Suffix, len(lp.Data))
	}
	for loc, value := range res.RollbackIndexes {
		fmt.Printf("rollback:   location %d -> %d\n", loc, value)
	}

	hashName, digest := res.AggregateDigest()
	fmt.Printf("digest:     %s:%s\n", hashName, hexutil.Encode(digest))
	if res.Cmdline != "" {
		fmt.Printf("cmdline:    %s\n", res.Cmdline)
	}
}
