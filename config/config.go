// Package config parses and validates amplseq's command-line contract:
// plain flag wiring into a struct, no subcommands.
package config

import (
	"flag"
	"fmt"
	"runtime"
	"sort"

	"github.com/grailbio/base/errors"
)

// Config holds every run option, already validated and defaulted.
type Config struct {
	Reference    string
	Input        []string // even length, already sorted and paired as (2i, 2i+1)
	OutputPrefix string
	Threads      int
	Readers      int
	MinQual      byte

	IgnoreMultibaseDeletions    bool
	IgnoreMultipleDeletions     bool
	IgnoreMultipleMutations     bool
	IgnoreMultipleModifications bool
	View                        bool

	// Ambient logging options, outside the core analysis but still part
	// of the CLI contract.
	LogLevel  string
	Timestamp bool
	Quiet     bool
}

// Parse parses args (normally os.Args[1:]) into a Config, applying the
// readers/threads defaulting formula and rejecting malformed input
// before any worker starts.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("amplseq", flag.ContinueOnError)

	var (
		threads int
		readers int
		minQual int
		cfg     Config
	)
	fs.StringVar(&cfg.Reference, "reference", "", "reference sequence FASTA")
	fs.StringVar(&cfg.Reference, "R", "", "reference sequence FASTA (shorthand)")
	fs.StringVar(&cfg.OutputPrefix, "output-prefix", "ampl_seq", "prefix for output files")
	fs.StringVar(&cfg.OutputPrefix, "o", "ampl_seq", "prefix for output files (shorthand)")
	fs.IntVar(&threads, "threads", 0, "number of process threads (default: available cores)")
	fs.IntVar(&threads, "t", 0, "number of process threads (shorthand)")
	fs.IntVar(&readers, "readers", 0, "number of reader threads (default: derived from threads and input count)")
	fs.IntVar(&readers, "r", 0, "number of reader threads (shorthand)")
	fs.IntVar(&minQual, "min-qual", 0, "minimum base quality to consider")
	fs.IntVar(&minQual, "q", 0, "minimum base quality to consider (shorthand)")
	fs.BoolVar(&cfg.IgnoreMultibaseDeletions, "ignore-multibase-deletions", false, "ignore read pairs with multibase deletions")
	fs.BoolVar(&cfg.IgnoreMultibaseDeletions, "M", false, "ignore read pairs with multibase deletions (shorthand)")
	fs.BoolVar(&cfg.IgnoreMultipleDeletions, "ignore-multiple-deletions", false, "ignore read pairs with multiple deletions")
	fs.BoolVar(&cfg.IgnoreMultipleDeletions, "d", false, "ignore read pairs with multiple deletions (shorthand)")
	fs.BoolVar(&cfg.IgnoreMultipleMutations, "ignore-multiple-mutations", false, "ignore read pairs with multiple mutations")
	fs.BoolVar(&cfg.IgnoreMultipleMutations, "m", false, "ignore read pairs with multiple mutations (shorthand)")
	fs.BoolVar(&cfg.IgnoreMultipleModifications, "ignore-multiple-modifications", false, "ignore read pairs with multiple modifications")
	fs.BoolVar(&cfg.IgnoreMultipleModifications, "D", false, "ignore read pairs with multiple modifications (shorthand)")
	fs.BoolVar(&cfg.View, "view", false, "write the ASCII alignment-view file")
	fs.BoolVar(&cfg.View, "V", false, "write the ASCII alignment-view file (shorthand)")
	fs.StringVar(&cfg.LogLevel, "loglevel", "info", "set log level")
	fs.StringVar(&cfg.LogLevel, "l", "info", "set log level (shorthand)")
	fs.BoolVar(&cfg.Timestamp, "timestamp", false, "prepend log entries with a timestamp")
	fs.BoolVar(&cfg.Timestamp, "X", false, "prepend log entries with a timestamp (shorthand)")
	fs.BoolVar(&cfg.Quiet, "quiet", false, "silence all output")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.Input = fs.Args()

	if err := Finalize(&cfg, minQual, threads, readers); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Finalize validates and defaults a Config whose Reference/Input/boolean
// fields have already been populated by the caller's own flag parsing —
// either Parse's isolated FlagSet above, or cmd/amplseq's package-level
// flag.Var bindings parsed by grail.Init(). minQual, threads, and readers
// are taken separately since their effective fields (MinQual byte,
// Threads, Readers) are derived, not copied verbatim. This is the shared
// tail of Parse, extracted so both entry points apply identical
// validation and defaulting rules.
func Finalize(cfg *Config, minQual, threads, readers int) error {
	if cfg.Reference == "" {
		return errors.E("config: -reference/-R is required")
	}
	if len(cfg.Input) < 2 {
		return errors.E("config: at least two input FASTQ files are required")
	}
	if len(cfg.Input)%2 != 0 {
		return errors.E("config: input files must come in pairs (even count)")
	}
	if minQual < 0 || minQual > 255 {
		return errors.E("config: min-qual must fit in a byte (0-255)")
	}
	cfg.MinQual = byte(minQual)

	sorted := append([]string(nil), cfg.Input...)
	sort.Strings(sorted)
	cfg.Input = sorted

	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	cfg.Threads = threads

	if readers <= 0 {
		readers = defaultReaders(threads, len(cfg.Input)/2)
	}
	cfg.Readers = readers

	return nil
}

// defaultReaders implements the "readers (default: min(physical cores,
// file pairs, max(threads/4, 1)))" sizing rule. runtime.NumCPU reports
// logical cores; it's the closest stdlib approximation to "physical
// cores" available without an external CPU-topology dependency.
func defaultReaders(threads, filePairs int) int {
	n := runtime.NumCPU()
	if filePairs < n {
		n = filePairs
	}
	quarterThreads := threads / 4
	if quarterThreads < 1 {
		quarterThreads = 1
	}
	if quarterThreads < n {
		n = quarterThreads
	}
	if n < 1 {
		n = 1
	}
	return n
}

// bufferPoolFactor is the multiplier in the Buffer pool sizing formula.
const bufferPoolFactor = 4

// BufferPoolSize implements the "4·max(threads,readers)" Buffer pool
// sizing formula.
func (c *Config) BufferPoolSize() int {
	m := c.Threads
	if c.Readers > m {
		m = c.Readers
	}
	return bufferPoolFactor * m
}

// FilePairs returns the (mate1, mate2) path pairs input was split into.
func (c *Config) FilePairs() [][2]string {
	pairs := make([][2]string, len(c.Input)/2)
	for i := range pairs {
		pairs[i] = [2]string{c.Input[2*i], c.Input[2*i+1]}
	}
	return pairs
}

// String renders the resolved configuration for a single startup log
// line.
func (c *Config) String() string {
	return fmt.Sprintf("reference=%s pairs=%d threads=%d readers=%d min_qual=%d view=%v",
		c.Reference, len(c.Input)/2, c.Threads, c.Readers, c.MinQual, c.View)
}
