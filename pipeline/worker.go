package pipeline

import (
	"bytes"
	"context"

	"github.com/grailbio/base/errors"

	"github.com/heathsc/amplseq/align"
	"github.com/heathsc/amplseq/config"
	"github.com/heathsc/amplseq/fastq"
	"github.com/heathsc/amplseq/internal/seq"
	"github.com/heathsc/amplseq/stats"
	"github.com/heathsc/amplseq/view"
)

// workerPool is one of cfg.Threads worker goroutines: it drains full
// Buffers, reconciles each read pair into a reference-anchored consensus
// via the two-stage alignment protocol, updates a local Stats, and
// recycles the Buffer. Structured the same way as readerPool: one
// straight-line loop over a channel instead of cooperating closures.
type workerPool struct {
	cfg    *config.Config
	ref    []byte
	full   chan *fastq.Buffer
	empty  chan *fastq.Buffer
	viewCh chan *view.ViewBuf
}

// run drains full until it closes, returning the worker's accumulated
// Stats and the first error encountered. After an error the worker keeps
// draining and recycling Buffers without processing them, so the readers
// never starve for empty Buffers while the pipeline winds down; the
// first observed error wins.
func (wp *workerPool) run(ctx context.Context) (*stats.Stats, error) {
	w := &worker{
		cfg:     wp.cfg,
		ref:     wp.ref,
		aligner: align.New(),
		stats:   stats.New(wp.ref),
	}
	if wp.viewCh != nil {
		w.view = view.NewStore(len(wp.ref), wp.viewCh)
	}
	defer func() {
		if w.view != nil {
			w.view.Flush()
		}
	}()

	var firstErr error
	for buf := range wp.full {
		if firstErr == nil {
			firstErr = w.processBuffer(buf)
		}
		buf.Clear()
		wp.empty <- buf
	}
	return w.stats, firstErr
}

// worker holds one goroutine's reusable scratch state: the aligner (with
// its own RC scratch buffer), the overlap consensus and reference-aligned
// consensus buffers, and the local Stats/ViewStore. None of this is safe
// to share across goroutines; each workerPool.run call owns exactly one.
type worker struct {
	cfg     *config.Config
	ref     []byte
	aligner *align.Aligner
	stats   *stats.Stats
	view    *view.Store

	overlapBuf []byte
	alBuf      []byte
}

// processBuffer walks both mate record streams of buf in lockstep,
// running process_records on every pair.
func (w *worker) processBuffer(buf *fastq.Buffer) error {
	if buf.IsEmpty() {
		return nil
	}
	slices := buf.Slices()
	it1 := fastq.NewIter(slices[0])
	it2 := fastq.NewIter(slices[1])
	for {
		rec1, ok1 := it1.Next()
		rec2, ok2 := it2.Next()
		if !ok1 && !ok2 {
			break
		}
		if ok1 != ok2 {
			return errors.E("worker: mate files have unequal record counts")
		}
		if err := w.processRecords(rec1, rec2); err != nil {
			return err
		}
	}
	if err := it1.Err(); err != nil {
		return errors.E(err, "worker: mate 1")
	}
	if err := it2.Err(); err != nil {
		return errors.E(err, "worker: mate 2")
	}
	return nil
}

// processRecords reconciles one read pair into a reference-anchored
// consensus: ID check, overlap-alignment consensus reconstruction,
// end-to-end reference alignment, the skip filter, and stats/view
// emission.
func (w *worker) processRecords(rec1, rec2 fastq.Record) error {
	if !bytes.Equal(firstToken(rec1.ID), firstToken(rec2.ID)) {
		return errors.E("worker: mismatch between IDs of read 1 and read 2", string(rec1.ID), string(rec2.ID))
	}

	if err := w.reconcileOverlap(rec1, rec2); err != nil {
		return err
	}

	dels, nMut, nDel, mbDel, err := w.reconcileReference()
	if err != nil {
		return err
	}

	w.emit(dels, nMut, nDel, mbDel)
	return nil
}

// emit applies the skip filter and records the pair's contribution to
// the local Stats and the optional view. insert_len is counted before
// the skip check regardless of outcome; everything else, del_hash
// included, is gated on the filter.
func (w *worker) emit(dels []stats.DelKey, nMut, nDel int, mbDel bool) {
	skip := (w.cfg.IgnoreMultibaseDeletions && mbDel) ||
		(w.cfg.IgnoreMultipleMutations && nMut > 1) ||
		(w.cfg.IgnoreMultipleDeletions && nDel > 1) ||
		(w.cfg.IgnoreMultipleModifications && (nMut+nDel) > 1)

	w.stats.AddLen(uint32(len(w.overlapBuf)))

	if !skip {
		for _, d := range dels {
			w.stats.AddDel(d.Start, d.End)
		}
		w.stats.AddObs(w.alBuf)
		if w.view != nil {
			view.FillSlot(w.view.NextSlot(), w.alBuf)
		}
	}
}

// reconcileOverlap runs the overlap alignment of rec1.Seq against
// RC(rec2.Seq) with free ends (0,15,15,0) and reconstructs the consensus
// into w.overlapBuf.
func (w *worker) reconcileOverlap(rec1, rec2 fastq.Record) error {
	n2 := len(rec2.Seq)
	rc := w.aligner.Buf(n2)
	seq.ReverseComplement(rc, rec2.Seq)

	w.aligner.SetFreeEnds(0, 15, 15, 0)
	ops, err := w.aligner.Align(rec1.Seq, rc)
	if err != nil {
		return errors.E(err, "worker: overlap alignment")
	}

	buf, err := buildOverlapConsensus(w.overlapBuf[:0], ops, rec1.Seq, rec1.Qual, rc, rec2.Qual, w.cfg.MinQual)
	if err != nil {
		return err
	}
	w.overlapBuf = buf
	return nil
}

// buildOverlapConsensus walks ops (the overlap-alignment CIGAR of pattern
// against text) one base at a time, reconciling base and quality, and
// appends the result onto dst (which callers reset to [:0] to reuse its
// backing array). qualText is indexed in
// reverse, matching RC(mate2)'s orientation. Kept free of *worker/*align.
// Aligner state so it can be driven directly from hand-built CIGARs in
// tests without invoking the real aligner.
func buildOverlapConsensus(dst []byte, ops []align.Op, pattern, qualPattern, text, qualText []byte, minQual byte) ([]byte, error) {
	ip, it := 0, 0
	n2 := len(text)

	stream := align.NewOpStream(ops)
	for {
		code, ok := stream.Next()
		if !ok {
			break
		}
		switch code {
		case 'M', 'X':
			if ip >= len(pattern) || it >= n2 {
				return nil, errors.E("worker: overlap alignment iterator underflow")
			}
			p, qp := pattern[ip], qualPattern[ip]
			t, qt := text[it], qualText[n2-1-it]

			var base, emitted byte
			switch {
			case t == p:
				base, emitted = t, maxByte(qp, qt)
			case qt > qp:
				base, emitted = t, qt-qp
			default:
				base, emitted = p, qp-qt
			}
			if phred(emitted) < int(minQual) {
				base = 'N'
			}
			dst = append(dst, base)
			ip++
			it++
		case 'I':
			if it >= n2 {
				return nil, errors.E("worker: overlap alignment iterator underflow")
			}
			it++
		case 'D':
			if ip >= len(pattern) {
				return nil, errors.E("worker: overlap alignment iterator underflow")
			}
			ip++
		default:
			return nil, errors.E("worker: unsupported overlap CIGAR op", string(code))
		}
	}
	return dst, nil
}

// reconcileReference runs the end-to-end reference alignment of
// w.overlapBuf against w.ref with free ends (0,0,0,0) and builds w.alBuf,
// n_mut, n_del, and mb_del, plus the upper/lowercase end normalization.
// Deletion spans are returned, not recorded: the caller only commits them
// to del_hash once the skip filter has passed.
func (w *worker) reconcileReference() (dels []stats.DelKey, nMut, nDel int, mbDel bool, err error) {
	w.aligner.SetFreeEnds(0, 0, 0, 0)
	ops, err := w.aligner.Align(w.overlapBuf, w.ref)
	if err != nil {
		return nil, 0, 0, false, errors.E(err, "worker: reference alignment")
	}

	alBuf, dels, nMut, nDel, mbDel, err := buildReferenceAlignment(w.alBuf[:0], ops, w.overlapBuf, w.ref)
	if err != nil {
		return nil, 0, 0, false, err
	}
	w.alBuf = alBuf
	return dels, nMut, nDel, mbDel, nil
}

// buildReferenceAlignment walks ops (the end-to-end-alignment CIGAR of
// pattern=overlapBuf against text=ref) one base at a time, building the
// reference-aligned consensus into dst (callers reset to [:0] to reuse its
// backing array) and the n_mut, n_del, mb_del, and deletion-span
// accumulators. Returns the deletion spans as a slice instead of writing
// them into Stats directly, so it can be driven from hand-built CIGARs
// in tests without a Stats or a real Aligner.
func buildReferenceAlignment(dst []byte, ops []align.Op, overlapBuf, ref []byte) (al []byte, dels []stats.DelKey, nMut, nDel int, mbDel bool, err error) {
	ip, it := 0, 0
	startDel := -1 // -1: no deletion currently open

	stream := align.NewOpStream(ops)
	for {
		code, ok := stream.Next()
		if !ok {
			break
		}
		switch code {
		case 'M', 'X':
			if ip >= len(overlapBuf) || it >= len(ref) {
				return nil, nil, 0, 0, false, errors.E("worker: reference alignment iterator underflow")
			}
			p, r := overlapBuf[ip], ref[it]
			closing := startDel >= 0
			if closing {
				// The run being closed spans al_buf up to its length
				// just before this base is pushed.
				dels = append(dels, stats.DelKey{Start: uint32(startDel), End: uint32(len(dst))})
				startDel = -1
			}
			base := toUpper(p)
			if closing {
				base = toLower(p)
			}
			dst = append(dst, base)
			if toUpper(p) != toUpper(r) {
				nMut++
			}
			ip++
			it++
		case 'I':
			if it >= len(ref) {
				return nil, nil, 0, 0, false, errors.E("worker: reference alignment iterator underflow")
			}
			dst = append(dst, ' ')
			if startDel >= 0 {
				mbDel = true
			} else {
				startDel = len(dst) // post-push length
				nDel++
			}
			it++
		case 'D':
			if ip >= len(overlapBuf) {
				return nil, nil, 0, 0, false, errors.E("worker: reference alignment iterator underflow")
			}
			if startDel >= 0 {
				dels = append(dels, stats.DelKey{Start: uint32(startDel), End: uint32(len(dst))})
				startDel = -1
			}
			dst = append(dst, toLower(overlapBuf[ip]))
			ip++
		default:
			return nil, nil, 0, 0, false, errors.E("worker: unsupported reference CIGAR op", string(code))
		}
	}

	if n := len(dst); n > 0 {
		dst[0] = toUpper(dst[0])
		dst[n-1] = toUpper(dst[n-1])
	}
	if startDel >= 0 {
		dels = append(dels, stats.DelKey{Start: uint32(startDel), End: uint32(len(dst))})
	}

	return dst, dels, nMut, nDel, mbDel, nil
}

// firstToken returns the leading whitespace-delimited token of id, or id
// itself if it contains no whitespace.
func firstToken(id []byte) []byte {
	if i := bytes.IndexAny(id, " \t"); i >= 0 {
		return id[:i]
	}
	return id
}

func maxByte(a, b byte) byte {
	if a > b {
		return a
	}
	return b
}

// phred decodes a Phred-33 byte to its quality score, saturating at 0
// rather than going negative.
func phred(q byte) int {
	v := int(q) - 33
	if v < 0 {
		v = 0
	}
	return v
}

func toUpper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 32
	}
	return b
}

func toLower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + 32
	}
	return b
}
