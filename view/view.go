// Package view implements the optional ASCII alignment-view sink: a
// bounded pool of fixed-width record buffers fed by workers and drained
// by a single writer goroutine, so that the view file's lines never
// interleave mid-record. Buffers are flushed with an explicit call
// workers make before exiting, rather than relying on any destructor.
package view

import (
	"context"

	"github.com/grailbio/base/errors"

	"github.com/heathsc/amplseq/internal/ioutil"
)

// RecsPerBuf is the fixed record capacity of one ViewBuf.
const RecsPerBuf = 1024

// ViewBuf is a block of RecsPerBuf fixed-width records of width RecLen,
// emitted as a unit to the view writer.
type ViewBuf struct {
	RecLen int
	data   []byte
	nRec   int
}

func newViewBuf(recLen int) *ViewBuf {
	return &ViewBuf{RecLen: recLen, data: make([]byte, recLen*RecsPerBuf)}
}

func (vb *ViewBuf) full() bool { return vb.nRec == RecsPerBuf }

func (vb *ViewBuf) nextSlot() []byte {
	off := vb.nRec * vb.RecLen
	vb.nRec++
	return vb.data[off : off+vb.RecLen]
}

// Records returns the filled records, one RecLen-wide slice per record.
func (vb *ViewBuf) Records() [][]byte {
	out := make([][]byte, vb.nRec)
	for i := range out {
		out[i] = vb.data[i*vb.RecLen : (i+1)*vb.RecLen]
	}
	return out
}

// FillSlot copies src into slot, space-padding on the right if src is
// shorter than the slot and truncating if longer. al_buf already encodes
// deletions as spaces and insertions as lowercase; this just fits it to
// a fixed width.
func FillSlot(slot, src []byte) {
	n := copy(slot, src)
	for ; n < len(slot); n++ {
		slot[n] = ' '
	}
}

// Store is a per-worker handle onto the view channel: it hands out
// record slots one at a time, transparently rotating to a fresh ViewBuf
// and sending the full one once RecsPerBuf is reached.
type Store struct {
	recLen int
	ch     chan<- *ViewBuf
	cur    *ViewBuf
}

// NewStore returns a Store that sends completed ViewBufs of record width
// recLen on ch.
func NewStore(recLen int, ch chan<- *ViewBuf) *Store {
	return &Store{recLen: recLen, ch: ch}
}

// NextSlot returns the next RecLen-wide slot to fill with a consensus
// view line, rotating buffers as needed.
func (s *Store) NextSlot() []byte {
	if s.cur == nil || s.cur.full() {
		if s.cur != nil {
			s.ch <- s.cur
		}
		s.cur = newViewBuf(s.recLen)
	}
	return s.cur.nextSlot()
}

// Flush sends any partially-filled ViewBuf and clears it. Workers call
// this once on exit so no records are lost.
func (s *Store) Flush() {
	if s.cur != nil && s.cur.nRec > 0 {
		s.ch <- s.cur
	}
	s.cur = nil
}

// Writer is the single goroutine draining the view channel to
// {prefix}_view.txt.gz, one consensus line per record plus a trailing
// newline, through the compression-transparent I/O layer.
type Writer struct {
	wc *ioutil.WriteCloser
}

// NewWriter creates path (expected to end in ".gz") for writing.
func NewWriter(ctx context.Context, path string) (*Writer, error) {
	wc, err := ioutil.Create(ctx, path)
	if err != nil {
		return nil, errors.E(err, "view: create", path)
	}
	return &Writer{wc: wc}, nil
}

// Run drains ch until it's closed, writing each record followed by a
// newline, then closes the underlying file. It is meant to run in its
// own goroutine; the orchestrator waits for it to return after closing
// ch (once every worker has called Flush). A write failure doesn't stop
// the drain — workers sending on the bounded channel must never block on
// a writer that has given up.
func (w *Writer) Run(ctx context.Context, ch <-chan *ViewBuf) error {
	nl := []byte{'\n'}
	var firstErr error
	for vb := range ch {
		if firstErr != nil {
			continue
		}
		for _, rec := range vb.Records() {
			if _, err := w.wc.Write(rec); err != nil {
				firstErr = errors.E(err, "view: write")
				break
			}
			if _, err := w.wc.Write(nl); err != nil {
				firstErr = errors.E(err, "view: write")
				break
			}
		}
	}
	if err := w.wc.Close(ctx); err != nil && firstErr == nil {
		firstErr = errors.E(err, "view: close")
	}
	return firstErr
}
