package model

import (
	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-bidaf/internal/simd"
)

// LSTMCell holds the parameters of one direction of an LSTM layer. The four
// gate blocks are stacked in the order input, forget, cell, output; block k
// occupies rows k*hidden..(k+1)*hidden.
type LSTMCell struct {
	WeightIH *mat.Dense // 4H × input
	WeightHH *mat.Dense // 4H × H
	BiasIH   *mat.Dense // 1 × 4H
	BiasHH   *mat.Dense // 1 × 4H
}

func newLSTMCell(input, hidden int) LSTMCell {
	return LSTMCell{
		WeightIH: mat.NewDense(4*hidden, input, nil),
		WeightHH: mat.NewDense(4*hidden, hidden, nil),
		BiasIH:   mat.NewDense(1, 4*hidden, nil),
		BiasHH:   mat.NewDense(1, 4*hidden, nil),
	}
}

// initWeights applies Kaiming-normal input weights, orthogonal recurrent
// weights and zero biases, except the forget block of BiasHH which is 1.
func (c *LSTMCell) initWeights(in *initializer) {
	in.kaimingNormal(c.WeightIH)
	in.orthogonal(c.WeightHH)
	c.BiasIH.Zero()
	c.BiasHH.Zero()

	hidden := c.hidden()
	forget := c.BiasHH.RawRowView(0)[hidden : 2*hidden]
	for i := range forget {
		forget[i] = 1
	}
}

func (c *LSTMCell) hidden() int {
	_, h := c.WeightHH.Dims()
	return h
}

// BiLSTM is a single-layer bidirectional LSTM. Its output concatenates the
// forward and backward hidden states, 2*hidden wide.
type BiLSTM struct {
	Fwd LSTMCell
	Bwd LSTMCell
}

func NewBiLSTM(input, hidden int) *BiLSTM {
	return &BiLSTM{
		Fwd: newLSTMCell(input, hidden),
		Bwd: newLSTMCell(input, hidden),
	}
}

func (l *BiLSTM) initWeights(in *initializer) {
	l.Fwd.initWeights(in)
	l.Bwd.initWeights(in)
}

// Hidden returns the per-direction hidden size.
func (l *BiLSTM) Hidden() int {
	return l.Fwd.hidden()
}

// Forward runs both directions over every sequence of x. Hidden and cell
// state start at zero for each sequence and each call.
func (l *BiLSTM) Forward(x Sequence) Sequence {
	hidden := l.Hidden()
	out := newSequence(x.Batch, x.Length, 2*hidden)
	l.Fwd.run(x, out, 0, false)
	l.Bwd.run(x, out, hidden, true)
	return out
}

// run writes the hidden states of one direction into columns
// offset..offset+hidden of out.
func (c *LSTMCell) run(x Sequence, out Sequence, offset int, reverse bool) {
	hidden := c.hidden()

	// Input projections for every position at once.
	var proj mat.Dense
	proj.Mul(x.Data, c.WeightIH.T())
	addBias(&proj, c.BiasIH.RawRowView(0))
	addBias(&proj, c.BiasHH.RawRowView(0))

	h := mat.NewVecDense(hidden, nil)
	cell := make([]float64, hidden)
	rec := mat.NewVecDense(4*hidden, nil)
	gates := make([]float64, 4*hidden)
	tanhCell := make([]float64, hidden)

	for b := 0; b < x.Batch; b++ {
		h.Zero()
		for i := range cell {
			cell[i] = 0
		}

		for step := 0; step < x.Length; step++ {
			t := step
			if reverse {
				t = x.Length - 1 - step
			}
			row := b*x.Length + t

			copy(gates, proj.RawRowView(row))
			rec.MulVec(c.WeightHH, h)
			simd.VecAdd(gates, rec.RawVector().Data)

			inGate := gates[0:hidden]
			forget := gates[hidden : 2*hidden]
			candidate := gates[2*hidden : 3*hidden]
			outGate := gates[3*hidden : 4*hidden]
			simd.Sigmoid(inGate)
			simd.Sigmoid(forget)
			simd.Tanh(candidate)
			simd.Sigmoid(outGate)

			hv := h.RawVector().Data
			for k := 0; k < hidden; k++ {
				cell[k] = forget[k]*cell[k] + inGate[k]*candidate[k]
				tanhCell[k] = cell[k]
			}
			simd.Tanh(tanhCell)
			for k := 0; k < hidden; k++ {
				hv[k] = outGate[k] * tanhCell[k]
			}
			copy(out.Data.RawRowView(row)[offset:offset+hidden], hv)
		}
	}
}
