package model

import "gonum.org/v1/gonum/mat"

// WordEmbedding is a frozen lookup table filled from pretrained vectors.
// The table is copied in at construction and never written afterwards; it
// is not part of Parameters.
type WordEmbedding struct {
	table *mat.Dense
}

func NewWordEmbedding(pretrained mat.Matrix) *WordEmbedding {
	return &WordEmbedding{table: mat.DenseCopyOf(pretrained)}
}

func (w *WordEmbedding) VocabSize() int {
	r, _ := w.table.Dims()
	return r
}

func (w *WordEmbedding) Dim() int {
	_, c := w.table.Dims()
	return c
}

// Table returns a copy of the lookup table.
func (w *WordEmbedding) Table() *mat.Dense {
	return mat.DenseCopyOf(w.table)
}

// Forward gathers one table row per word id.
func (w *WordEmbedding) Forward(ids WordIDs) (Sequence, error) {
	if err := ids.validate("words", w.VocabSize()); err != nil {
		return Sequence{}, err
	}
	out := newSequence(ids.Batch, ids.Length, w.Dim())
	for r, id := range ids.Data {
		copy(out.Data.RawRowView(r), w.table.RawRowView(id))
	}
	return out, nil
}
