// Package pipeline wires the reader pool, worker pool, and optional view
// writer together into a producer/consumer pipeline: it pre-allocates a
// Buffer pool, readers fill buffers from file pairs onto the full
// channel, workers consume them and recycle them onto empty, and
// per-worker Stats are merged once every goroutine has joined.
package pipeline

import (
	"context"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"

	"github.com/heathsc/amplseq/config"
	"github.com/heathsc/amplseq/fastq"
	"github.com/heathsc/amplseq/stats"
	"github.com/heathsc/amplseq/view"
)

// Run is the top-level orchestrator: it creates the empty/full/file-pair/
// view channels, seeds the Buffer pool, dispatches file-pair indices,
// starts the reader and worker pools plus the optional view writer,
// joins them with sync.WaitGroup, merges the per-worker Stats, and
// writes the report TSVs. The caller is expected to have already parsed
// flags and called grail.Init() before invoking Run.
func Run(ctx context.Context, cfg *config.Config, ref []byte) error {
	pairs := cfg.FilePairs()

	poolSize := cfg.BufferPoolSize()
	empty := make(chan *fastq.Buffer, poolSize)
	full := make(chan *fastq.Buffer, poolSize)
	filePairs := make(chan int, cfg.Readers)

	for i := 0; i < poolSize; i++ {
		empty <- fastq.NewBuffer(uint64(i))
	}

	var errOnce errors.Once

	var viewCh chan *view.ViewBuf
	var viewWG sync.WaitGroup
	if cfg.View {
		path := cfg.OutputPrefix + "_view.txt.gz"
		w, err := view.NewWriter(ctx, path)
		if err != nil {
			return errors.E(err, "pipeline: view writer", path)
		}
		viewCh = make(chan *view.ViewBuf, 2*cfg.Threads)
		viewWG.Add(1)
		go func() {
			defer viewWG.Done()
			if err := w.Run(ctx, viewCh); err != nil {
				errOnce.Set(errors.E(err, "pipeline: view writer"))
			}
		}()
	}

	go func() {
		for i := range pairs {
			filePairs <- i
		}
		close(filePairs)
	}()

	var readerWG sync.WaitGroup
	for i := 0; i < cfg.Readers; i++ {
		rp := &readerPool{pairs: pairs, empty: empty, full: full, filePairs: filePairs}
		readerWG.Add(1)
		go func() {
			defer readerWG.Done()
			if err := rp.run(ctx); err != nil {
				errOnce.Set(err)
			}
		}()
	}

	results := make(chan *stats.Stats, cfg.Threads)
	var workerWG sync.WaitGroup
	for i := 0; i < cfg.Threads; i++ {
		wp := &workerPool{cfg: cfg, ref: ref, full: full, empty: empty}
		if cfg.View {
			wp.viewCh = viewCh
		}
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			st, err := wp.run(ctx)
			if err != nil {
				errOnce.Set(err)
			}
			results <- st
		}()
	}

	readerWG.Wait()
	close(full)
	workerWG.Wait()
	close(results)

	if cfg.View {
		close(viewCh)
		viewWG.Wait()
	}

	shards := make([]*stats.Stats, 0, cfg.Threads)
	for st := range results {
		if st != nil {
			shards = append(shards, st)
		}
	}

	if err := errOnce.Err(); err != nil {
		return err
	}

	merged, err := stats.MergeAll(ref, shards)
	if err != nil {
		return err
	}
	log.Printf("amplseq: processed %d read pairs", merged.NReads)
	return merged.Output(ctx, cfg.OutputPrefix)
}
