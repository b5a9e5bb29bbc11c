package model

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const testWordVocab = 30

func smallConfig() Config {
	return Config{
		CharVocabSize:    20,
		CharDim:          4,
		CharChannelSize:  6,
		CharChannelWidth: 3,
		WordDim:          4,
		HiddenSize:       5,
		Dropout:          0.2,
		Seed:             7,
	}
}

func randomTable(rng *rand.Rand, rows, cols int) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return mat.NewDense(rows, cols, data)
}

func randomChars(rng *rand.Rand, batch, length, wordLen, vocab int) CharIDs {
	c := CharIDs{Batch: batch, Length: length, WordLength: wordLen, Data: make([]int, batch*length*wordLen)}
	for i := range c.Data {
		c.Data[i] = rng.IntN(vocab)
	}
	return c
}

func randomWords(rng *rand.Rand, batch, length, vocab int) WordIDs {
	w := WordIDs{Batch: batch, Length: length, Data: make([]int, batch*length)}
	for i := range w.Data {
		w.Data[i] = rng.IntN(vocab)
	}
	return w
}

func randomBatch(rng *rand.Rand, cfg Config, batch, cLen, qLen, wordLen int) Batch {
	return Batch{
		ContextChars: randomChars(rng, batch, cLen, wordLen, cfg.CharVocabSize),
		ContextWords: randomWords(rng, batch, cLen, testWordVocab),
		QueryChars:   randomChars(rng, batch, qLen, wordLen, cfg.CharVocabSize),
		QueryWords:   randomWords(rng, batch, qLen, testWordVocab),
	}
}

func newTestModel(t *testing.T, cfg Config) *BiDAF {
	t.Helper()
	table := randomTable(rand.New(rand.NewPCG(1, 2)), testWordVocab, cfg.WordDim)
	m, err := New(cfg, table)
	require.NoError(t, err)
	return m
}

func requireFinite(t *testing.T, m mat.Matrix) {
	t.Helper()
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			require.False(t, math.IsNaN(v) || math.IsInf(v, 0), "non-finite value at (%d, %d)", i, j)
		}
	}
}

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(42, 43))
}
