package model

import (
	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-bidaf/internal/simd"
)

// Linear computes y = x·Wᵀ + b row by row. Weight is out×in, Bias is 1×out.
type Linear struct {
	Weight *mat.Dense
	Bias   *mat.Dense
}

func NewLinear(in, out int) *Linear {
	return &Linear{
		Weight: mat.NewDense(out, in, nil),
		Bias:   mat.NewDense(1, out, nil),
	}
}

// Dims returns the input and output widths.
func (l *Linear) Dims() (in, out int) {
	out, in = l.Weight.Dims()
	return in, out
}

// Forward applies the projection to every row of x.
func (l *Linear) Forward(x mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Mul(x, l.Weight.T())
	addBias(&out, l.Bias.RawRowView(0))
	return &out
}

func addBias(m *mat.Dense, bias []float64) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		simd.VecAdd(m.RawRowView(i), bias)
	}
}
