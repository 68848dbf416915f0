package stats

import (
	"context"
	"math"
	"sort"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"

	"github.com/heathsc/amplseq/internal/ioutil"
)

// Output writes the five report TSVs, all prefixed with outputPrefix:
// {prefix}_stats.tsv, {prefix}_insert_len.tsv (only when at least one
// insert length was observed), {prefix}_del.tsv, {prefix}_mut_corr.tsv,
// and {prefix}_contact_map.tsv.
func (s *Stats) Output(ctx context.Context, outputPrefix string) error {
	if err := s.writeStatsTSV(ctx, outputPrefix+"_stats.tsv"); err != nil {
		return err
	}
	if len(s.InsertLen) > 0 {
		if err := s.writeInsertLenTSV(ctx, outputPrefix+"_insert_len.tsv"); err != nil {
			return err
		}
	}
	if err := s.writeDelTSV(ctx, outputPrefix+"_del.tsv"); err != nil {
		return err
	}
	phi := s.buildPhiMatrix()
	if err := s.writeMutCorrTSV(ctx, outputPrefix+"_mut_corr.tsv", phi); err != nil {
		return err
	}
	if err := s.writeContactMapTSV(ctx, outputPrefix+"_contact_map.tsv", phi); err != nil {
		return err
	}
	return nil
}

func pct(n, d uint64) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) * 100.0 / float64(d)
}

func writePct(w *tsv.Writer, v float64) {
	w.WriteString(strconv.FormatFloat(v, 'f', 2, 64))
}

// writeUint64 writes a count field without truncating it through the
// tsv.Writer's 32-bit helper.
func writeUint64(w *tsv.Writer, v uint64) {
	w.WriteString(strconv.FormatUint(v, 10))
}

func create(ctx context.Context, path string) (*ioutil.WriteCloser, error) {
	wc, err := ioutil.Create(ctx, path)
	if err != nil {
		return nil, errors.E(err, "stats: create", path)
	}
	return wc, nil
}

func (s *Stats) writeStatsTSV(ctx context.Context, path string) error {
	wc, err := create(ctx, path)
	if err != nil {
		return err
	}
	defer wc.Close(ctx)

	w := tsv.NewWriter(wc)
	w.WriteString("Pos\tRef\tN(A)\tN(C)\tN(G)\tN(Del)\tN(Ins)\tN(T)\tTot\t%A\t%C\t%G\t%T\t%Del\t%Ins\t%Mut")
	if err := w.EndLine(); err != nil {
		return err
	}

	for i, ct := range s.PosCounts {
		var refBase byte = 'N'
		if i < len(s.ref) {
			refBase = s.ref[i]
		}
		w.WriteUint32(uint32(i + 1))
		w.WriteByte(refBase)

		tot := ct[0] + ct[1] + ct[2] + ct[3] + ct[4] // A+C+G+T+Del, Ins excluded
		writeUint64(w, ct[0])
		writeUint64(w, ct[1])
		writeUint64(w, ct[2])
		writeUint64(w, ct[4])
		writeUint64(w, ct[5])
		writeUint64(w, ct[3])
		writeUint64(w, tot)

		for _, slot := range [6]int{0, 1, 2, 3, 4, 5} {
			writePct(w, pct(ct[slot], tot))
		}

		// %Mut is the mismatch fraction among the called A/C/G/T bases
		// only; Del observations don't enter its denominator.
		refSlot, ok := refMutSlot(refBase)
		if ok {
			acgtTotal := ct[0] + ct[1] + ct[2] + ct[3]
			writePct(w, pct(acgtTotal-ct[refSlot], acgtTotal))
		} else {
			writePct(w, 0)
		}
		if err := w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

// refMutSlot returns the pos_counts slot (0..3) matching an uppercase or
// lowercase ACGT reference base, or ok=false for anything else (the
// position contributes no defined %Mut).
func refMutSlot(refBase byte) (int, bool) {
	switch refBase {
	case 'A', 'a':
		return 0, true
	case 'C', 'c':
		return 1, true
	case 'G', 'g':
		return 2, true
	case 'T', 't':
		return 3, true
	default:
		return 0, false
	}
}

func (s *Stats) writeInsertLenTSV(ctx context.Context, path string) error {
	wc, err := create(ctx, path)
	if err != nil {
		return err
	}
	defer wc.Close(ctx)

	// The histogram counts every processed pair, filtered-out ones
	// included, so its own total is the percentage denominator rather
	// than NReads (which only counts emitted observations).
	lengths := make([]uint32, 0, len(s.InsertLen))
	var total uint64
	for l, c := range s.InsertLen {
		lengths = append(lengths, l)
		total += c
	}
	sort.Slice(lengths, func(i, j int) bool { return lengths[i] < lengths[j] })

	w := tsv.NewWriter(wc)
	w.WriteString("Length\tCount\t%")
	if err := w.EndLine(); err != nil {
		return err
	}
	for _, l := range lengths {
		count := s.InsertLen[l]
		w.WriteUint32(l)
		writeUint64(w, count)
		writePct(w, pct(count, total))
		if err := w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

func (s *Stats) writeDelTSV(ctx context.Context, path string) error {
	wc, err := create(ctx, path)
	if err != nil {
		return err
	}
	defer wc.Close(ctx)

	type row struct {
		key   DelKey
		count uint64
	}
	rows := make([]row, 0, len(s.DelHash))
	for k, v := range s.DelHash {
		rows = append(rows, row{k, v})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		li := rows[i].key.End - rows[i].key.Start
		lj := rows[j].key.End - rows[j].key.Start
		return li < lj
	})

	w := tsv.NewWriter(wc)
	w.WriteString("Start\tStop\tLen\tCount\t%")
	if err := w.EndLine(); err != nil {
		return err
	}
	for _, r := range rows {
		length := r.key.End + 1 - r.key.Start
		w.WriteUint32(r.key.Start)
		w.WriteUint32(r.key.End)
		w.WriteUint32(length)
		writeUint64(w, r.count)
		writePct(w, pct(r.count, s.NReads))
		if err := w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

// phi computes the φ-coefficient (Pearson correlation on a 2x2
// contingency table) of a mutCell indexed [00,01,10,11].
func phi(c mutCell) float64 {
	n00, n01, n10, n11 := float64(c[0]), float64(c[1]), float64(c[2]), float64(c[3])
	denom := (n10 + n11) * (n00 + n01) * (n00 + n10) * (n01 + n11)
	if denom <= 0 {
		return 0
	}
	return (n11*n00 - n10*n01) / math.Sqrt(denom)
}

// mismatchFraction returns 100·n11/(n00+n01+n10+n11), the percentage of
// observations where both positions of the pair mismatched the
// reference. Divided by 100 for the diagonal of mut_corr.tsv (a
// position's self-correlation is its own mismatch rate, not a constant
// 1.0) and used as is for contact_map.tsv's mm% column.
func mismatchFraction(c mutCell) float64 {
	total := c[0] + c[1] + c[2] + c[3]
	if total == 0 {
		return 0
	}
	return float64(c[3]) * 100.0 / float64(total)
}

// buildPhiMatrix precomputes the triangular φ-coefficient table once so
// mut_corr.tsv and contact_map.tsv don't each recompute it.
func (s *Stats) buildPhiMatrix() []float64 {
	out := make([]float64, len(s.MutCorr))
	for i, c := range s.MutCorr {
		out[i] = phi(c)
	}
	return out
}

func (s *Stats) writeMutCorrTSV(ctx context.Context, path string, phiTable []float64) error {
	wc, err := create(ctx, path)
	if err != nil {
		return err
	}
	defer wc.Close(ctx)

	w := tsv.NewWriter(wc)
	for i := 0; i < s.L; i++ {
		for j := 0; j < s.L; j++ {
			idx := triIndex(i, j)
			var v float64
			if i == j {
				v = mismatchFraction(s.MutCorr[idx]) / 100.0
			} else {
				v = phiTable[idx]
			}
			if j > 0 {
				w.WriteByte('\t')
			}
			w.WriteString(strconv.FormatFloat(v, 'f', 4, 64))
		}
		if err := w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

func (s *Stats) writeContactMapTSV(ctx context.Context, path string, phiTable []float64) error {
	wc, err := create(ctx, path)
	if err != nil {
		return err
	}
	defer wc.Close(ctx)

	delPair := s.buildDelPairCounts()

	w := tsv.NewWriter(wc)
	w.WriteString("x\ty\tdel%\tmm%\tr")
	if err := w.EndLine(); err != nil {
		return err
	}
	for x := 0; x < s.L; x++ {
		if x > 0 {
			if err := w.EndLine(); err != nil {
				return err
			}
		}
		for y := 0; y < s.L; y++ {
			idx := triIndex(x, y)
			w.WriteUint32(uint32(x + 1))
			w.WriteUint32(uint32(y + 1))
			writePct(w, pct(delPair[idx], s.NReads))
			writePct(w, mismatchFraction(s.MutCorr[idx]))
			w.WriteString(strconv.FormatFloat(phiTable[idx], 'f', 4, 64))
			if err := w.EndLine(); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

// buildDelPairCounts synthesizes a per-pair deletion co-occurrence count
// from DelHash: every del_hash entry (start,end) with count c is
// interpreted as "positions start..end (1-based, inclusive) were jointly
// absent from the reference alignment in c reads", and contributes c to
// every pair of 0-based positions within that inclusive span.
func (s *Stats) buildDelPairCounts() []uint64 {
	out := make([]uint64, len(s.MutCorr))
	for key, count := range s.DelHash {
		lo := int(key.Start) - 1
		hi := int(key.End) - 1
		if lo < 0 {
			lo = 0
		}
		if hi >= s.L {
			hi = s.L - 1
		}
		for i := lo; i <= hi; i++ {
			for j := i; j <= hi; j++ {
				out[triIndex(i, j)] += count
			}
		}
	}
	return out
}
