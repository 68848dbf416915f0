// Command amplseq reconstructs per-read-pair consensus sequences from
// paired FASTQ files against a single amplicon reference, and reports
// per-position base composition, insert-length, deletion, and
// mutation-correlation statistics. Flags mirror config.Parse's contract;
// see config.Config for the full option list.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"

	"github.com/heathsc/amplseq/config"
	"github.com/heathsc/amplseq/internal/reference"
	"github.com/heathsc/amplseq/pipeline"
)

var (
	cfgReference                   string
	cfgOutputPrefix                string
	cfgThreads                     int
	cfgReaders                     int
	cfgMinQual                     int
	cfgIgnoreMultibaseDeletions    bool
	cfgIgnoreMultipleDeletions     bool
	cfgIgnoreMultipleMutations     bool
	cfgIgnoreMultipleModifications bool
	cfgView                        bool
)

func init() {
	flag.StringVar(&cfgReference, "reference", "", "reference sequence FASTA")
	flag.StringVar(&cfgReference, "R", "", "reference sequence FASTA (shorthand)")
	flag.StringVar(&cfgOutputPrefix, "output-prefix", "ampl_seq", "prefix for output files")
	flag.StringVar(&cfgOutputPrefix, "o", "ampl_seq", "prefix for output files (shorthand)")
	flag.IntVar(&cfgThreads, "threads", 0, "number of process threads (default: available cores)")
	flag.IntVar(&cfgThreads, "t", 0, "number of process threads (shorthand)")
	flag.IntVar(&cfgReaders, "readers", 0, "number of reader threads (default: derived from threads and input count)")
	flag.IntVar(&cfgReaders, "r", 0, "number of reader threads (shorthand)")
	flag.IntVar(&cfgMinQual, "min-qual", 0, "minimum base quality to consider")
	flag.IntVar(&cfgMinQual, "q", 0, "minimum base quality to consider (shorthand)")
	flag.BoolVar(&cfgIgnoreMultibaseDeletions, "ignore-multibase-deletions", false, "ignore read pairs with multibase deletions")
	flag.BoolVar(&cfgIgnoreMultibaseDeletions, "M", false, "ignore read pairs with multibase deletions (shorthand)")
	flag.BoolVar(&cfgIgnoreMultipleDeletions, "ignore-multiple-deletions", false, "ignore read pairs with multiple deletions")
	flag.BoolVar(&cfgIgnoreMultipleDeletions, "d", false, "ignore read pairs with multiple deletions (shorthand)")
	flag.BoolVar(&cfgIgnoreMultipleMutations, "ignore-multiple-mutations", false, "ignore read pairs with multiple mutations")
	flag.BoolVar(&cfgIgnoreMultipleMutations, "m", false, "ignore read pairs with multiple mutations (shorthand)")
	flag.BoolVar(&cfgIgnoreMultipleModifications, "ignore-multiple-modifications", false, "ignore read pairs with multiple modifications")
	flag.BoolVar(&cfgIgnoreMultipleModifications, "D", false, "ignore read pairs with multiple modifications (shorthand)")
	flag.BoolVar(&cfgView, "view", false, "write the ASCII alignment-view file")
	flag.BoolVar(&cfgView, "V", false, "write the ASCII alignment-view file (shorthand)")
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] mate1_R1.fq mate1_R2.fq [mate2_R1.fq mate2_R2.fq ...]\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()

	cfg := &config.Config{
		Reference:                   cfgReference,
		Input:                       flag.Args(),
		OutputPrefix:                cfgOutputPrefix,
		IgnoreMultibaseDeletions:    cfgIgnoreMultibaseDeletions,
		IgnoreMultipleDeletions:     cfgIgnoreMultipleDeletions,
		IgnoreMultipleMutations:     cfgIgnoreMultipleMutations,
		IgnoreMultipleModifications: cfgIgnoreMultipleModifications,
		View:                        cfgView,
	}
	if err := config.Finalize(cfg, cfgMinQual, cfgThreads, cfgReaders); err != nil {
		log.Fatalf("%v", err)
	}
	log.Printf("amplseq: %s", cfg)

	ctx := vcontext.Background()
	ref, err := reference.Load(ctx, cfg.Reference)
	if err != nil {
		log.Fatalf("reference: %v", err)
	}
	log.Printf("amplseq: loaded reference %s (%d bp)", ref.Name, ref.Len())

	if err := pipeline.Run(ctx, cfg, ref.Seq); err != nil {
		log.Fatalf("%v", err)
	}
}
