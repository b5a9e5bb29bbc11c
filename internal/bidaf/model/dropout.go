package model

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Pass carries per-call state through one forward computation. A nil or
// zero Pass is an inference pass, in which dropout is the identity.
type Pass struct {
	Training bool
	rng      *rand.Rand
}

// NewTrainingPass returns a pass with dropout enabled, drawing masks from
// its own source so concurrent passes share nothing.
func NewTrainingPass(seed uint64) *Pass {
	return &Pass{Training: true, rng: rand.New(rand.NewPCG(seed, ^seed))}
}

func (p *Pass) training() bool {
	return p != nil && p.Training
}

// Dropout zeroes activations with probability Rate during training and
// scales the survivors by 1/(1-Rate).
type Dropout struct {
	Rate float64
}

// Apply runs dropout on m in place.
func (d Dropout) Apply(m *mat.Dense, p *Pass) {
	if !p.training() || d.Rate == 0 {
		return
	}
	rng := p.rng
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		p.rng = rng
	}
	keep := 1 / (1 - d.Rate)
	raw := m.RawMatrix()
	for i := 0; i < raw.Rows; i++ {
		row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
		for j := range row {
			if rng.Float64() < d.Rate {
				row[j] = 0
			} else {
				row[j] *= keep
			}
		}
	}
}
