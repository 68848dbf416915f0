// Package fastq implements the paired, record-aligned Buffer and the lazy
// record iterator that the reader and worker pools pass records through.
// Each mate gets a fixed-capacity byte slice sized once at construction and
// reused for the life of the run.
package fastq

import (
	"bytes"
	"io"

	"github.com/grailbio/base/errors"
)

// Cap is the fixed per-mate capacity of a Buffer, in bytes.
const Cap = 1 << 20 // 1 MiB

const linesPerRecord = 4

// Buffer is a fixed-capacity paired byte buffer. Each side holds a
// record-aligned prefix ([0:used[i])) after Fill returns; any trailing
// partial record is moved into the caller-supplied pending Buffer instead
// of being silently dropped.
type Buffer struct {
	inner [2][]byte
	used  [2]int
	ix    uint64
}

// NewBuffer allocates a Buffer with both mates at full Cap capacity. ix is
// an arbitrary identifier used only for diagnostics (e.g. log lines);
// callers are free to pass 0 when it doesn't matter.
func NewBuffer(ix uint64) *Buffer {
	return &Buffer{
		inner: [2][]byte{make([]byte, Cap), make([]byte, Cap)},
		ix:    ix,
	}
}

// Ix returns the Buffer's identifier.
func (b *Buffer) Ix() uint64 { return b.ix }

// IsEmpty reports whether both sides are empty.
func (b *Buffer) IsEmpty() bool { return b.used[0] == 0 && b.used[1] == 0 }

// Clear zeros both used marks, returning the Buffer to the empty state the
// orchestrator's pool expects when it comes back off the full channel.
func (b *Buffer) Clear() {
	b.used[0] = 0
	b.used[1] = 0
}

// Slices returns the record-aligned used prefix of each mate. The
// returned slices alias the Buffer's storage and are only valid until the
// next Fill or Clear.
func (b *Buffer) Slices() [2][]byte {
	return [2][]byte{b.inner[0][:b.used[0]], b.inner[1][:b.used[1]]}
}

// spillTail copies the tail bytes b.inner[mate][from:used] that didn't
// make it into a complete record onto the end of pending's same mate,
// after any bytes pending already held (there should be none in
// practice, since pending is always drained by the next Fill before it
// accumulates more, but we don't assume it).
func (b *Buffer) spillTail(mate int, from int, pending *Buffer) {
	tail := b.inner[mate][from:b.used[mate]]
	if len(tail) == 0 {
		return
	}
	n := copy(pending.inner[mate][pending.used[mate]:], tail)
	if n != len(tail) {
		panic("fastq: pending buffer too small to hold spilled tail")
	}
	pending.used[mate] += n
	b.used[mate] = from
}

// recordAlignedEnd scans buf[:used] for the offset immediately following
// the 4th, 8th, 12th, ... newline, returning the largest such offset that
// is <= used, plus whether buf is record aligned at all. If buf
// holds any bytes at all but fewer than linesPerRecord newlines, aligned
// is 0 and ok is false: the buffer doesn't even hold one complete record
// yet. An empty buf is trivially aligned (zero records, zero bytes used),
// which matters for a mate file that is empty or already at EOF.
func recordAlignedEnd(buf []byte) (aligned int, ok bool) {
	if len(buf) == 0 {
		return 0, true
	}
	n := 0
	last := 0
	for {
		i := bytes.IndexByte(buf[last:], '\n')
		if i < 0 {
			break
		}
		last += i + 1
		n++
		if n%linesPerRecord == 0 {
			aligned = last
		}
	}
	return aligned, aligned > 0
}

// fillOne reads from r into buf[used:cap(buf)] until the slice is full or
// r reaches EOF, returning the new used length and whether EOF was seen.
func fillOne(r io.Reader, buf []byte, used int) (int, bool, error) {
	for used < len(buf) {
		n, err := r.Read(buf[used:])
		used += n
		if err != nil {
			if err == io.EOF {
				return used, true, nil
			}
			return used, false, err
		}
	}
	return used, false, nil
}

// Fill reads from both mate readers, appending onto any bytes already
// present (the reader pool fills the previous call's pending Buffer
// first, so these are the straddling tail spilled by that call). It
// aligns each side's used prefix on a record boundary, spilling any
// remainder into pending, and reports whether both mates reached EOF,
// whether or not a tail was spilled.
func (b *Buffer) Fill(readers [2]io.Reader, pending *Buffer) (atEOF bool, err error) {
	var eof [2]bool
	for i := 0; i < 2; i++ {
		b.used[i], eof[i], err = fillOne(readers[i], b.inner[i], b.used[i])
		if err != nil {
			return false, errors.E(err, "fastq: read mate", i)
		}
	}
	for i := 0; i < 2; i++ {
		aligned, ok := recordAlignedEnd(b.inner[i][:b.used[i]])
		if !ok {
			return false, errors.E("fastq: buffer too small for a complete FASTQ record")
		}
		b.spillTail(i, aligned, pending)
	}
	return eof[0] && eof[1], nil
}
