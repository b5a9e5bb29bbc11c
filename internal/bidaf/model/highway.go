package model

import (
	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-bidaf/internal/simd"
)

// HighwayStages is the number of gated stages in the fusion network.
const HighwayStages = 2

// HighwayStage is one gated step: x ← g⊙ReLU(Transform(x)) + (1−g)⊙x with
// g = σ(Gate(x)).
type HighwayStage struct {
	Transform *Linear
	Gate      *Linear
}

// Highway fuses character and word features. Every stage keeps the width of
// its input.
type Highway struct {
	Stages [HighwayStages]HighwayStage
}

func NewHighway(width int) *Highway {
	h := &Highway{}
	for i := range h.Stages {
		h.Stages[i] = HighwayStage{
			Transform: NewLinear(width, width),
			Gate:      NewLinear(width, width),
		}
	}
	return h
}

// Width returns the input (and output) width.
func (h *Highway) Width() int {
	in, _ := h.Stages[0].Transform.Dims()
	return in
}

func (h *Highway) initWeights(in *initializer) {
	for i := range h.Stages {
		s := &h.Stages[i]
		in.kaimingNormal(s.Transform.Weight)
		s.Transform.Bias.Zero()
		in.fanInUniform(s.Gate.Weight, s.Gate.Bias, h.Width())
	}
}

// Forward runs both stages over the rows of x and returns a new matrix of
// the same shape. x is not modified.
func (h *Highway) Forward(x *mat.Dense) *mat.Dense {
	cur := mat.DenseCopyOf(x)
	rows, _ := cur.Dims()
	for _, stage := range h.Stages {
		transform := stage.Transform.Forward(cur)
		gate := stage.Gate.Forward(cur)
		for i := 0; i < rows; i++ {
			t, g, v := transform.RawRowView(i), gate.RawRowView(i), cur.RawRowView(i)
			simd.Relu(t)
			simd.Sigmoid(g)
			for j := range v {
				v[j] = g[j]*t[j] + (1-g[j])*v[j]
			}
		}
	}
	return cur
}
