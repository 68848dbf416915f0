package fastq

import (
	"bytes"

	"github.com/grailbio/base/errors"
)

// Record is a borrowed FASTQ record: its three slices alias the Buffer
// that produced them and are valid only until the Buffer is next filled
// or cleared. ID omits the leading '@'.
type Record struct {
	ID   []byte
	Seq  []byte
	Qual []byte
}

// Iter is a lazy, finite, non-restartable iterator over the FASTQ records
// packed into a record-aligned byte slice, as produced by Buffer.Slices.
// The Buffer already guarantees 4-line alignment, so a stream that ends
// mid-record is always a genuine error rather than a partial read.
type Iter struct {
	buf []byte
	err error
}

// NewIter returns an iterator over buf, which must hold zero or more
// complete, 4-line-terminated FASTQ records back to back (the invariant
// Buffer.Fill guarantees for its Slices() output).
func NewIter(buf []byte) *Iter {
	return &Iter{buf: buf}
}

// Err returns the error that stopped iteration, if any. Call it after
// Next returns false to distinguish a clean end from a parse failure.
func (it *Iter) Err() error { return it.err }

// Next returns the next record and true, or the zero Record and false
// when the buffer is exhausted or a validation error occurred (check Err).
func (it *Iter) Next() (Record, bool) {
	if it.err != nil || len(it.buf) == 0 {
		return Record{}, false
	}

	line1, rest, ok := cutLine(it.buf)
	if !ok {
		it.err = errors.E("fastq: incomplete FASTQ record")
		return Record{}, false
	}
	if len(line1) == 0 || line1[0] != '@' {
		it.err = errors.E("fastq: invalid FASTQ record: header doesn't start with '@'")
		return Record{}, false
	}

	seq, rest, ok := cutLine(rest)
	if !ok {
		it.err = errors.E("fastq: incomplete FASTQ record")
		return Record{}, false
	}

	line3, rest, ok := cutLine(rest)
	if !ok {
		it.err = errors.E("fastq: incomplete FASTQ record")
		return Record{}, false
	}
	if len(line3) == 0 || line3[0] != '+' {
		it.err = errors.E("fastq: invalid FASTQ record: separator line doesn't start with '+'")
		return Record{}, false
	}

	qual, rest, ok := cutLine(rest)
	if !ok {
		it.err = errors.E("fastq: incomplete FASTQ record")
		return Record{}, false
	}

	if len(seq) == 0 {
		it.err = errors.E("fastq: invalid FASTQ record: empty sequence")
		return Record{}, false
	}
	if len(seq) != len(qual) {
		it.err = errors.E("fastq: invalid FASTQ record: seq/qual length mismatch")
		return Record{}, false
	}

	it.buf = rest
	return Record{ID: line1[1:], Seq: seq, Qual: qual}, true
}

// cutLine splits buf at the first '\n', returning the line (without the
// newline) and the remainder. ok is false if buf has no newline at all.
func cutLine(buf []byte) (line, rest []byte, ok bool) {
	i := bytes.IndexByte(buf, '\n')
	if i < 0 {
		return nil, buf, false
	}
	return buf[:i], buf[i+1:], true
}
