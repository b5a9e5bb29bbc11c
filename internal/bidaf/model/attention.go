package model

import (
	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-bidaf/internal/device"
	"github.com/23skdu/longbow-bidaf/internal/simd"
)

// AttentionFlow computes bidirectional attention between an encoded context
// C (batch, Lc, 2H) and query Q (batch, Lq, 2H).
//
//	s[i,j] = wc·C[i] + wq·Q[j] + wcq·(C[i]⊙Q[j])
//
// Context-to-query attention softmaxes each row of s over the query axis;
// query-to-context attention softmaxes max_j s[i,j] over the context axis.
type AttentionFlow struct {
	Backend  device.Backend
	WeightC  *Linear // 2H → 1
	WeightQ  *Linear // 2H → 1
	WeightCQ *Linear // 2H → 1
}

func NewAttentionFlow(config Config, backend device.Backend) *AttentionFlow {
	width := 2 * config.HiddenSize
	return &AttentionFlow{
		Backend:  backend,
		WeightC:  NewLinear(width, 1),
		WeightQ:  NewLinear(width, 1),
		WeightCQ: NewLinear(width, 1),
	}
}

func (a *AttentionFlow) initWeights(in *initializer) {
	for _, l := range []*Linear{a.WeightC, a.WeightQ, a.WeightCQ} {
		in.kaimingNormal(l.Weight)
		l.Bias.Zero()
	}
}

// Attention is the result of one AttentionFlow pass.
type Attention struct {
	// G is the fused (batch, Lc, 8H) output [C, c2q, C⊙c2q, C⊙q2c].
	G Sequence
	// Similarity holds s for each batch row, Lc×Lq.
	Similarity []*mat.Dense
	// C2Q holds the context-to-query weights for each batch row, Lc×Lq.
	C2Q []*mat.Dense
	// Q2C holds the query-to-context weights for each batch row, length Lc.
	Q2C [][]float64
}

// Forward returns only the fused output.
func (a *AttentionFlow) Forward(c, q Sequence) Sequence {
	return a.Attend(c, q).G
}

// Attend runs the full attention computation and keeps the intermediate
// weights.
func (a *AttentionFlow) Attend(c, q Sequence) *Attention {
	width := c.Width()
	res := &Attention{
		G:          newSequence(c.Batch, c.Length, 4*width),
		Similarity: make([]*mat.Dense, c.Batch),
		C2Q:        make([]*mat.Dense, c.Batch),
		Q2C:        make([][]float64, c.Batch),
	}

	for b := 0; b < c.Batch; b++ {
		cb, qb := c.Slab(b), q.Slab(b)

		s := a.similarity(cb, qb)
		res.Similarity[b] = s

		// context-to-query: softmax over the query axis, then weight Q rows
		weights := mat.DenseCopyOf(s)
		for i := 0; i < c.Length; i++ {
			simd.SoftmaxStable(weights.RawRowView(i))
		}
		res.C2Q[b] = weights
		var c2q mat.Dense
		c2q.Mul(weights, qb)

		// query-to-context: row maxima softmaxed over the context axis
		q2cWeights := make([]float64, c.Length)
		for i := range q2cWeights {
			row := s.RawRowView(i)
			q2cWeights[i] = row[simd.MaxIdx(row)]
		}
		simd.SoftmaxStable(q2cWeights)
		res.Q2C[b] = q2cWeights
		q2c := make([]float64, width)
		for i, w := range q2cWeights {
			simd.VecAddScaled(q2c, cb.RawRowView(i), w)
		}

		for i := 0; i < c.Length; i++ {
			ci := cb.RawRowView(i)
			dst := res.G.Row(b, i)
			copy(dst[0:width], ci)
			copy(dst[width:2*width], c2q.RawRowView(i))
			copy(dst[2*width:3*width], ci)
			simd.VecMul(dst[2*width:3*width], c2q.RawRowView(i))
			copy(dst[3*width:4*width], ci)
			simd.VecMul(dst[3*width:4*width], q2c)
		}
	}
	return res
}

// similarity builds the Lc×Lq score matrix for one batch row. The
// elementwise products C[i]⊙Q[j] are materialised as an (Lc·Lq)×2H grid
// and projected in one product.
func (a *AttentionFlow) similarity(cb, qb *mat.Dense) *mat.Dense {
	cLen, width := cb.Dims()
	qLen, _ := qb.Dims()

	grid := a.Backend.GetMatrix(cLen*qLen, width)
	defer a.Backend.PutMatrix(grid)
	for i := 0; i < cLen; i++ {
		ci := cb.RawRowView(i)
		for j := 0; j < qLen; j++ {
			cell := grid.RawRowView(i*qLen + j)
			copy(cell, ci)
			simd.VecMul(cell, qb.RawRowView(j))
		}
	}
	cq := a.WeightCQ.Forward(grid)

	wc, bc := a.WeightC.Weight.RawRowView(0), a.WeightC.Bias.At(0, 0)
	wq, bq := a.WeightQ.Weight.RawRowView(0), a.WeightQ.Bias.At(0, 0)
	sq := make([]float64, qLen)
	for j := range sq {
		sq[j] = simd.DotProduct(wq, qb.RawRowView(j)) + bq
	}

	s := a.Backend.NewMatrix(cLen, qLen, nil)
	for i := 0; i < cLen; i++ {
		sc := simd.DotProduct(wc, cb.RawRowView(i)) + bc
		row := s.RawRowView(i)
		for j := range row {
			row[j] = sc + sq[j] + cq.At(i*qLen+j, 0)
		}
	}
	return s
}
