// Package align is a thin façade over github.com/shenwei356/wfa, the
// gap-affine WFA2 aligner. It configures the engine once with the
// match/mismatch/gap-affine penalties amplseq always uses and exposes
// the two calls workers need: a free-ends setter and an align call that
// returns a normalized op stream, plus the reusable scratch buffer
// workers hold the reverse-complemented mate 2 in. Wrapping the engine
// here lets a worker reuse the scratch buffer and the engine's internal
// DP tables across every pair it processes.
package align

import (
	"github.com/grailbio/base/errors"
	"github.com/shenwei356/wfa"
)

// Penalties are the gap-affine scoring parameters amplseq always aligns
// with: match=0, mismatch=4, gap-open=6, gap-extend=2.
const (
	penaltyMatch    = 0
	penaltyMismatch = 4
	penaltyGapOpen  = 6
	penaltyGapExt   = 2
)

// Op is one run-length-encoded CIGAR operation: Code is one of 'M', 'X',
// 'I', 'D' and N is the run length.
type Op struct {
	Code byte
	N    uint32
}

// Aligner wraps a configured WFA2 instance plus the scratch buffer used
// to hold the reverse-complemented mate 2 across a worker's whole run,
// avoiding a per-pair allocation in the hot loop.
type Aligner struct {
	engine  *wfa.Aligner
	scratch []byte
}

// New configures a new Aligner with amplseq's fixed gap-affine penalties
// and full-traceback alignment scope.
func New() *Aligner {
	engine := wfa.NewAligner(
		wfa.WithAttributes(
			wfa.Attributes{
				Match:       penaltyMatch,
				Mismatch:    penaltyMismatch,
				GapOpening:  penaltyGapOpen,
				GapExtending: penaltyGapExt,
				Scope:       wfa.AlignmentScopeAlignment,
			},
		),
	)
	return &Aligner{engine: engine}
}

// SetFreeEnds sets the number of unpenalized bases allowed at the
// pattern/text begin/end. (0,15,15,0) is the overlap-alignment policy;
// (0,0,0,0) is strict end-to-end.
func (a *Aligner) SetFreeEnds(patternBegin, patternEnd, textBegin, textEnd int) {
	a.engine.SetFreeEnds(patternBegin, patternEnd, textBegin, textEnd)
}

// Buf returns the scratch buffer resized to exactly n bytes, growing the
// backing array only when needed. Callers must not retain the slice past
// the next Buf call.
func (a *Aligner) Buf(n int) []byte {
	if cap(a.scratch) < n {
		a.scratch = make([]byte, n)
	}
	return a.scratch[:n]
}

// BufMut returns the current scratch buffer without resizing it.
func (a *Aligner) BufMut() []byte { return a.scratch }

// Align aligns pattern against text under the currently configured free
// ends, returning a normalized op stream. Any CIGAR code other than
// M/X/I/D from the underlying engine is a protocol violation and is
// reported as an error rather than silently passed through.
func (a *Aligner) Align(pattern, text []byte) ([]Op, error) {
	result := a.engine.Align(pattern, text)
	if result == nil {
		return nil, errors.E("align: alignment failed")
	}
	defer wfa.RecycleAlignmentResult(result)

	ops := make([]Op, 0, len(result.Ops))
	for _, raw := range result.Ops {
		code, n := wfa.Op(raw)
		switch code {
		case byte(wfa.OpM), byte(wfa.OpX), byte(wfa.OpI), byte(wfa.OpD):
			ops = append(ops, Op{Code: code, N: n})
		default:
			return nil, errors.E("align: unsupported CIGAR op", string(code))
		}
	}
	return ops, nil
}
