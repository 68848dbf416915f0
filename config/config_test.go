package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequiresReference(t *testing.T) {
	_, err := Parse([]string{"a.fq", "b.fq"})
	require.Error(t, err)
}

func TestParseRequiresEvenInputCount(t *testing.T) {
	_, err := Parse([]string{"-R", "ref.fa", "a.fq", "b.fq", "c.fq"})
	require.Error(t, err)
}

func TestParseRequiresAtLeastOnePair(t *testing.T) {
	_, err := Parse([]string{"-R", "ref.fa", "a.fq"})
	require.Error(t, err)
}

func TestParseSortsAndPairsInput(t *testing.T) {
	cfg, err := Parse([]string{"-R", "ref.fa", "z_R2.fq", "a_R1.fq", "a_R2.fq", "z_R1.fq"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a_R1.fq", "a_R2.fq", "z_R1.fq", "z_R2.fq"}, cfg.Input)
	assert.Equal(t, [][2]string{{"a_R1.fq", "a_R2.fq"}, {"z_R1.fq", "z_R2.fq"}}, cfg.FilePairs())
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]string{"-R", "ref.fa", "a.fq", "b.fq"})
	require.NoError(t, err)
	assert.Equal(t, "ampl_seq", cfg.OutputPrefix)
	assert.EqualValues(t, 0, cfg.MinQual)
	assert.GreaterOrEqual(t, cfg.Threads, 1)
	assert.GreaterOrEqual(t, cfg.Readers, 1)
}

func TestParseShorthandFlags(t *testing.T) {
	cfg, err := Parse([]string{"-R", "ref.fa", "-q", "30", "-M", "-V", "a.fq", "b.fq"})
	require.NoError(t, err)
	assert.EqualValues(t, 30, cfg.MinQual)
	assert.True(t, cfg.IgnoreMultibaseDeletions)
	assert.True(t, cfg.View)
}

func TestDefaultReadersBoundedByThreadsOverFour(t *testing.T) {
	n := defaultReaders(4, 100)
	assert.LessOrEqual(t, n, 1)
}

func TestBufferPoolSizeFormula(t *testing.T) {
	cfg := &Config{Threads: 3, Readers: 7}
	assert.Equal(t, 28, cfg.BufferPoolSize())
}
