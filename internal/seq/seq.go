// Package seq provides small byte-level helpers for working with DNA
// sequence data: reverse-complementing and classifying bases. Case is
// preserved rather than normalized away, since amplseq's consensus
// reconstruction needs to distinguish reference-matching (uppercase)
// from deleted-reference (lowercase) bases in its output.
package seq

// complementTable maps each ASCII byte to its complement. A<->T and C<->G,
// case preserved; every other byte (including N/n) passes through
// unchanged. Built once, indexed directly instead of branching per base.
var complementTable = func() [256]byte {
	var t [256]byte
	for i := range t {
		t[i] = byte(i)
	}
	t['A'], t['T'] = 'T', 'A'
	t['a'], t['t'] = 't', 'a'
	t['C'], t['G'] = 'G', 'C'
	t['c'], t['g'] = 'g', 'c'
	return t
}()

// Complement returns the complement of a single base, case preserved.
func Complement(b byte) byte {
	return complementTable[b]
}

// ReverseComplement writes the reverse complement of src into dst. dst and
// src must have equal length; dst and src may overlap only if identical
// (in which case the operation is done in place).
func ReverseComplement(dst, src []byte) {
	n := len(src)
	if len(dst) != n {
		panic("seq.ReverseComplement: len(dst) != len(src)")
	}
	if &dst[0] == &src[0] {
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			dst[i], dst[j] = complementTable[src[j]], complementTable[src[i]]
		}
		if n&1 == 1 {
			dst[n/2] = complementTable[src[n/2]]
		}
		return
	}
	for i, j := 0, n-1; j >= 0; i, j = i+1, j-1 {
		dst[i] = complementTable[src[j]]
	}
}

// BaseSlot classifies a consensus byte into the six-way pos_counts slot:
// A=0, C=1, G=2, T=3, space (deletion)=4, anything lowercase additionally
// increments Ins (slot 5). ok is false for
// bytes that are none of ACGTacgt or a space (e.g. 'N'), which contribute
// to no slot at all.
func BaseSlot(b byte) (slot int, isIns bool, ok bool) {
	switch b {
	case 'A':
		return 0, false, true
	case 'C':
		return 1, false, true
	case 'G':
		return 2, false, true
	case 'T':
		return 3, false, true
	case 'a':
		return 0, true, true
	case 'c':
		return 1, true, true
	case 'g':
		return 2, true, true
	case 't':
		return 3, true, true
	case ' ':
		return 4, false, true
	default:
		return 0, false, false
	}
}

// MutClass classifies a base at a reference position as a match (false) or
// mismatch (true) for the mutation-correlation accumulator. ok is false
// when the base isn't one of ACGTacgt, or the reference base at that
// position isn't one of ACGT — such positions are undefined and must be
// excluded from the whole row, not just this pair.
func MutClass(base, ref byte) (mismatch bool, ok bool) {
	var b byte
	switch base {
	case 'A', 'a':
		b = 'A'
	case 'C', 'c':
		b = 'C'
	case 'G', 'g':
		b = 'G'
	case 'T', 't':
		b = 'T'
	default:
		return false, false
	}
	var r byte
	switch ref {
	case 'A', 'a':
		r = 'A'
	case 'C', 'c':
		r = 'C'
	case 'G', 'g':
		r = 'G'
	case 'T', 't':
		r = 'T'
	default:
		return false, false
	}
	return b != r, true
}
