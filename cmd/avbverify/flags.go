package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
)

// config holds the resolved command-line configuration.
type config struct {
	ImagesDir  string
	KeyPath    string
	Slot       string
	Partitions []string
	Rollbacks  map[uint32]uint64
	Allow      bool
	Unlocked   bool
	AftlPath   string
	AftlKey    string
	Verbosity  int
}

// parseFlags parses args and returns the configuration. exit is true when
// the process should terminate immediately with code.
func parseFlags(args []string) (cfg config, exit bool, code int) {
	fs := flag.NewFlagSet("avbverify", flag.ContinueOnError)

	fs.StringVar(&cfg.ImagesDir, "images", ".", "directory holding <partition>.img files")
	fs.StringVar(&cfg.KeyPath, "key", "", "path to the trusted pre-encoded public key")
	fs.StringVar(&cfg.Slot, "slot", "", "slot suffix to verify, e.g. _a")
	partitions := fs.String("partitions", "", "comma-separated partitions to retain (default: all)")
	rollbacks := fs.String("rollbacks", "", "stored rollback indexes as loc:value[,loc:value]")
	fs.BoolVar(&cfg.Allow, "allow-verification-error", false, "continue after verification errors")
	fs.BoolVar(&cfg.Unlocked, "unlocked", false, "treat the device as unlocked")
	fs.StringVar(&cfg.AftlPath, "aftl", "", "path to an AFTL descriptor to check")
	fs.StringVar(&cfg.AftlKey, "aftl-key", "", "path to the transparency log public key")
	fs.IntVar(&cfg.Verbosity, "verbosity", 2, "log level 0-4")
	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return cfg, true, 2
	}
	if *showVersion {
		fmt.Printf("avbverify %s (%s)\n", version, commit)
		return cfg, true, 0
	}

	if *partitions != "" {
		for _, p := range strings.Split(*partitions, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Partitions = append(cfg.Partitions, p)
			}
		}
	}

	cfg.Rollbacks = map[uint32]uint64{}
	if *rollbacks != "" {
		for _, pair := range strings.Split(*rollbacks, ",") {
			loc, value, err := parseRollback(pair)
			if err != nil {
				fmt.Println(err)
				return cfg, true, 2
			}
			cfg.Rollbacks[loc] = value
		}
	}
	return cfg, false, 0
}

// parseRollback parses one "location:value" pair.
func parseRollback(pair string) (uint32, uint64, error) {
	parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("bad rollback spec %q, want loc:value", pair)
	}
	loc, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("bad rollback location %q: %v", parts[0], err)
	}
	value, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad rollback value %q: %v", parts[1], err)
	}
	return uint32(loc), value, nil
}
