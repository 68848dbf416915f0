package pipeline

import (
	"io"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heathsc/amplseq/align"
	"github.com/heathsc/amplseq/config"
	"github.com/heathsc/amplseq/fastq"
	"github.com/heathsc/amplseq/stats"
)

var opRe = regexp.MustCompile(`(\d+)([MXID])`)

// ops parses a CIGAR-like literal such as "4M1I3M" into an align.Op slice.
func ops(cigar string) []align.Op {
	matches := opRe.FindAllStringSubmatch(cigar, -1)
	out := make([]align.Op, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			panic(err)
		}
		out = append(out, align.Op{Code: m[2][0], N: uint32(n)})
	}
	return out
}

// An all-M overlap CIGAR reconciles to the input sequence verbatim.
func TestBuildOverlapConsensusExactMatch(t *testing.T) {
	dst, err := buildOverlapConsensus(nil, ops("8M"),
		[]byte("ACGTACGT"), []byte("IIIIIIII"),
		[]byte("ACGTACGT"), []byte("IIIIIIII"), 0)
	require.NoError(t, err)
	assert.Equal(t, "ACGTACGT", string(dst))
}

// Matching bases with quality below min_qual become N even though both
// mates agree on the base.
func TestBuildOverlapConsensusLowQualityMasked(t *testing.T) {
	dst, err := buildOverlapConsensus(nil, ops("8M"),
		[]byte("ACGTACGT"), []byte("!!!!!!!!"),
		[]byte("ACGTACGT"), []byte("!!!!!!!!"), 30)
	require.NoError(t, err)
	assert.Equal(t, "NNNNNNNN", string(dst))
}

// When mates disagree, the higher-quality base wins and the emitted
// quality is the saturating difference between the two.
func TestBuildOverlapConsensusDisagreementPicksHigherQuality(t *testing.T) {
	// pattern base 'A' qual 'I' (40), text base 'G' qual '#' (2): text
	// loses since qt=2 < qp=40.
	dst, err := buildOverlapConsensus(nil, ops("1M"),
		[]byte("A"), []byte("I"), // qp = 'I'-33 = 40
		[]byte("G"), []byte("#"), // qt = '#'-33 = 2
		0)
	require.NoError(t, err)
	assert.Equal(t, "A", string(dst))

	dst, err = buildOverlapConsensus(nil, ops("1M"),
		[]byte("A"), []byte("#"), // qp = 2
		[]byte("G"), []byte("I"), // qt = 40
		0)
	require.NoError(t, err)
	assert.Equal(t, "G", string(dst))
}

// I and D only advance one side's iterator and emit nothing to the
// consensus (only M/X emit), so a base with no counterpart on the other
// mate is silently dropped rather than carried through.
func TestBuildOverlapConsensusInsertAndDeleteEmitNothing(t *testing.T) {
	dst, err := buildOverlapConsensus(nil, ops("1M1I1M"),
		[]byte("AC"), []byte("II"),
		[]byte("AXC"), []byte("III"), 0)
	require.NoError(t, err)
	assert.Equal(t, "AC", string(dst))

	dst, err = buildOverlapConsensus(nil, ops("1M1D1M"),
		[]byte("AXC"), []byte("III"),
		[]byte("AC"), []byte("II"), 0)
	require.NoError(t, err)
	assert.Equal(t, "AC", string(dst))
}

// Testable property: consensus length equals the number of M/X ops in
// the overlap CIGAR, regardless of how many I/D ops are interspersed.
// This CIGAR consumes 8 pattern bases (2M+3M+1D+2M) and 8 text bases
// (2M+1I+3M+2M), but only the 7 M/X bases reach the consensus.
func TestBuildOverlapConsensusLengthMatchesMatchOpCount(t *testing.T) {
	dst, err := buildOverlapConsensus(nil, ops("2M1I3M1D2M"),
		[]byte("ACGTACGA"), []byte("IIIIIIII"),
		[]byte("ACGTACGT"), []byte("IIIIIIII"), 0)
	require.NoError(t, err)
	assert.Len(t, dst, 7)
}

func TestBuildOverlapConsensusIteratorUnderflowIsError(t *testing.T) {
	_, err := buildOverlapConsensus(nil, ops("4M"), []byte("AC"), []byte("II"), []byte("AC"), []byte("II"), 0)
	assert.Error(t, err)
}

func TestBuildOverlapConsensusUnsupportedOpIsError(t *testing.T) {
	// Built directly: the ops helper only parses M/X/I/D.
	_, err := buildOverlapConsensus(nil, []align.Op{{Code: 'H', N: 1}}, []byte("A"), []byte("I"), []byte("A"), []byte("I"), 0)
	assert.Error(t, err)
}

// An end-to-end reference alignment of an exact match leaves the
// consensus untouched and records no mutations or deletions.
func TestBuildReferenceAlignmentExactMatch(t *testing.T) {
	al, dels, nMut, nDel, mbDel, err := buildReferenceAlignment(nil, ops("8M"),
		[]byte("ACGTACGT"), []byte("ACGTACGT"))
	require.NoError(t, err)
	assert.Equal(t, "ACGTACGT", string(al))
	assert.Empty(t, dels)
	assert.Equal(t, 0, nMut)
	assert.Equal(t, 0, nDel)
	assert.False(t, mbDel)
}

// A single mismatch at position 4: al_buf keeps the consensus base and
// n_mut is incremented once.
func TestBuildReferenceAlignmentSingleMismatch(t *testing.T) {
	al, dels, nMut, nDel, mbDel, err := buildReferenceAlignment(nil, ops("8M"),
		[]byte("ACGAACGT"), []byte("ACGTACGT"))
	require.NoError(t, err)
	assert.Equal(t, "ACGAACGT", string(al))
	assert.Empty(t, dels)
	assert.Equal(t, 1, nMut)
	assert.Equal(t, 0, nDel)
	assert.False(t, mbDel)
}

// S3 — single-base deletion at position 5: one I op opens and the
// following M closes it, lowercasing the base right after the gap and
// recording del_hash[(5,5)].
func TestBuildReferenceAlignmentSingleBaseDeletion(t *testing.T) {
	al, dels, nMut, nDel, mbDel, err := buildReferenceAlignment(nil, ops("4M1I3M"),
		[]byte("ACGTCGT"), []byte("ACGTACGT"))
	require.NoError(t, err)
	assert.Equal(t, "ACGT cGT", string(al))
	assert.Equal(t, []stats.DelKey{{Start: 5, End: 5}}, dels)
	assert.Equal(t, 0, nMut)
	assert.Equal(t, 1, nDel)
	assert.False(t, mbDel)
}

// S6 — multibase deletion: two consecutive I ops set mb_del and the span
// covers both missing positions.
func TestBuildReferenceAlignmentMultibaseDeletion(t *testing.T) {
	al, dels, nMut, nDel, mbDel, err := buildReferenceAlignment(nil, ops("4M2I2M"),
		[]byte("ACGTGT"), []byte("ACGTACGT"))
	require.NoError(t, err)
	assert.Equal(t, "ACGT  gT", string(al))
	assert.Equal(t, []stats.DelKey{{Start: 5, End: 6}}, dels)
	assert.Equal(t, 0, nMut)
	assert.Equal(t, 1, nDel)
	assert.True(t, mbDel)
}

// A deletion still open when the CIGAR ends is closed against the final
// consensus length rather than being dropped.
func TestBuildReferenceAlignmentDeletionOpenAtEnd(t *testing.T) {
	al, dels, _, nDel, _, err := buildReferenceAlignment(nil, ops("4M1I"),
		[]byte("ACGT"), []byte("ACGTA"))
	require.NoError(t, err)
	assert.Equal(t, "ACGT ", string(al))
	assert.Equal(t, []stats.DelKey{{Start: 5, End: 5}}, dels)
	assert.Equal(t, 1, nDel)
}

func TestBuildReferenceAlignmentIteratorUnderflowIsError(t *testing.T) {
	_, _, _, _, _, err := buildReferenceAlignment(nil, ops("9M"), []byte("ACGTACGT"), []byte("ACGTACGT"))
	assert.Error(t, err)
}

// S5 — ID mismatch: processRecords fails before any alignment is
// attempted, so this doesn't need a real Aligner.
func TestProcessRecordsRejectsIDMismatch(t *testing.T) {
	w := &worker{cfg: &config.Config{}, stats: stats.New([]byte("ACGT"))}
	err := w.processRecords(
		fastq.Record{ID: []byte("r1/1"), Seq: []byte("ACGT"), Qual: []byte("IIII")},
		fastq.Record{ID: []byte("r2/1"), Seq: []byte("ACGT"), Qual: []byte("IIII")},
	)
	assert.Error(t, err)
}

func TestFirstTokenIgnoresTrailingWhitespaceDelimitedText(t *testing.T) {
	assert.Equal(t, firstToken([]byte("r1 extra stuff")), firstToken([]byte("r1 other stuff")))
	assert.Equal(t, "r1", string(firstToken([]byte("r1 extra"))))
	assert.Equal(t, "r1", string(firstToken([]byte("r1"))))
}

// Open question #4 and testable property 5: a pair rejected by the skip
// filter still contributes to insert_len, and to nothing else — del_hash
// and pos_counts stay untouched.
func TestSkippedPairStillCountsInsertLength(t *testing.T) {
	w := &worker{
		cfg:        &config.Config{IgnoreMultipleMutations: true},
		stats:      stats.New([]byte("ACGTACGT")),
		overlapBuf: []byte("ACGAACGA"),
		alBuf:      []byte("ACGAACGA"),
	}
	w.emit([]stats.DelKey{{Start: 5, End: 5}}, 2, 1, false)

	assert.EqualValues(t, 1, w.stats.InsertLen[8])
	assert.Empty(t, w.stats.DelHash)
	assert.EqualValues(t, 0, w.stats.NReads)
	for i := range w.stats.PosCounts {
		assert.Equal(t, [6]uint64{}, w.stats.PosCounts[i])
	}
}

// The same pair with the filter off records everything.
func TestEmitRecordsDeletionsWhenNotSkipped(t *testing.T) {
	w := &worker{
		cfg:        &config.Config{},
		stats:      stats.New([]byte("ACGTACGT")),
		overlapBuf: []byte("ACGTCGT"),
		alBuf:      []byte("ACGT cGT"),
	}
	w.emit([]stats.DelKey{{Start: 5, End: 5}}, 0, 1, false)

	assert.EqualValues(t, 1, w.stats.InsertLen[7])
	assert.EqualValues(t, 1, w.stats.DelHash[stats.DelKey{Start: 5, End: 5}])
	assert.EqualValues(t, 1, w.stats.NReads)
	assert.EqualValues(t, 1, w.stats.PosCounts[4][4]) // Del slot at the gap
}

// processBuffer reports an error when the mate streams disagree on record
// count. Mate 1 is empty, so the mismatch is detected on the very first
// Next() call, before any record is aligned.
func TestProcessBufferRejectsUnequalRecordCounts(t *testing.T) {
	w := &worker{cfg: &config.Config{}, stats: stats.New([]byte("ACGT"))}

	buf := fastq.NewBuffer(0)
	pending := fastq.NewBuffer(1)
	readers := [2]io.Reader{
		strings.NewReader(""),
		strings.NewReader("@r1\nACGT\n+\nIIII\n"),
	}
	_, err := buf.Fill(readers, pending)
	require.NoError(t, err)

	err = w.processBuffer(buf)
	assert.Error(t, err)
}
