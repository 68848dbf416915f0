package seq

import "testing"

func TestReverseComplement(t *testing.T) {
	cases := []struct{ in, want string }{
		{"ACGT", "ACGT"},
		{"AACCGGTT", "AACCGGTT"},
		{"ACGTacgt", "acgtACGT"},
		{"AAAA", "TTTT"},
		{"NNAC", "GTNN"},
	}
	for _, c := range cases {
		dst := make([]byte, len(c.in))
		ReverseComplement(dst, []byte(c.in))
		if got := string(dst); got != c.want {
			t.Errorf("ReverseComplement(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestReverseComplementInPlace(t *testing.T) {
	b := []byte("ACGTacgt")
	ReverseComplement(b, b)
	if got, want := string(b), "acgtACGT"; got != want {
		t.Errorf("in-place ReverseComplement = %q, want %q", got, want)
	}
}

func TestBaseSlot(t *testing.T) {
	cases := []struct {
		b     byte
		slot  int
		isIns bool
		ok    bool
	}{
		{'A', 0, false, true},
		{'t', 3, true, true},
		{' ', 4, false, true},
		{'N', 0, false, false},
	}
	for _, c := range cases {
		slot, isIns, ok := BaseSlot(c.b)
		if slot != c.slot || isIns != c.isIns || ok != c.ok {
			t.Errorf("BaseSlot(%q) = (%d,%v,%v), want (%d,%v,%v)", c.b, slot, isIns, ok, c.slot, c.isIns, c.ok)
		}
	}
}

func TestMutClass(t *testing.T) {
	if mismatch, ok := mustMutClass(t, 'A', 'A'); !ok || mismatch {
		t.Errorf("A vs A should be a defined match")
	}
	if mismatch, ok := mustMutClass(t, 'a', 'C'); !ok || !mismatch {
		t.Errorf("a vs C should be a defined mismatch")
	}
	if _, ok := MutClass('N', 'A'); ok {
		t.Errorf("N base should be undefined")
	}
	if _, ok := MutClass('A', 'N'); ok {
		t.Errorf("N reference should be undefined")
	}
}

func mustMutClass(t *testing.T, base, ref byte) (bool, bool) {
	t.Helper()
	return MutClass(base, ref)
}
