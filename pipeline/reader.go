package pipeline

import (
	"context"
	"io"

	"github.com/grailbio/base/errors"

	"github.com/heathsc/amplseq/fastq"
	"github.com/heathsc/amplseq/internal/ioutil"
)

// readerPool is one of the configured reader goroutines: it walks
// file-pair indices off filePairs, opens both mates, and fills Buffers
// pulled from empty, pushing each onto full. The "pull empty, prepull
// next, fill, dispatch" alternation lives in a single straight-line
// function rather than cooperating closures.
type readerPool struct {
	pairs     [][2]string
	empty     chan *fastq.Buffer
	full      chan *fastq.Buffer
	filePairs <-chan int
}

// run processes file pairs until filePairs closes, returning the first
// error encountered (if any). After an error it keeps draining pair
// indices without opening them, so the dispatching goroutine never
// blocks on a send nobody will receive. It always returns its last
// pending Buffer to the empty channel before exiting.
func (r *readerPool) run(ctx context.Context) error {
	var pending *fastq.Buffer
	defer func() {
		if pending != nil {
			r.empty <- pending
		}
	}()

	var firstErr error
	for idx := range r.filePairs {
		if firstErr != nil {
			continue
		}
		pair := r.pairs[idx]
		firstErr = r.runPair(ctx, pair, &pending)
	}
	return firstErr
}

func (r *readerPool) runPair(ctx context.Context, pair [2]string, pending **fastq.Buffer) error {
	rc0, err := ioutil.Open(ctx, pair[0])
	if err != nil {
		return errors.E(err, "reader: open", pair[0])
	}
	defer rc0.Close(ctx)
	rc1, err := ioutil.Open(ctx, pair[1])
	if err != nil {
		return errors.E(err, "reader: open", pair[1])
	}
	defer rc1.Close(ctx)

	readers := [2]io.Reader{rc0, rc1}

	for {
		var buf *fastq.Buffer
		if *pending != nil {
			buf, *pending = *pending, nil
		} else {
			buf = <-r.empty
		}
		next := <-r.empty

		atEOF, err := buf.Fill(readers, next)
		if err != nil {
			// Both buffers came off the empty channel; give them back so
			// the pool stays whole while the pipeline winds down.
			buf.Clear()
			r.empty <- buf
			next.Clear()
			*pending = next
			return errors.E(err, "reader: fill", pair[0], pair[1])
		}
		r.full <- buf

		if atEOF {
			if !next.IsEmpty() {
				r.full <- next
			} else {
				*pending = next
			}
			return nil
		}
		*pending = next
	}
}
