package model

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// initializer draws every parameter from one seeded source so a Config
// fully determines the initial weights.
type initializer struct {
	src rand.Source
}

func newInitializer(seed uint64) *initializer {
	return &initializer{src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)}
}

func (in *initializer) fill(w *mat.Dense, dist interface{ Rand() float64 }) {
	raw := w.RawMatrix()
	for i := 0; i < raw.Rows; i++ {
		row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
		for j := range row {
			row[j] = dist.Rand()
		}
	}
}

// kaimingNormal fills an out×in weight from N(0, 2/in), the fan-in mode
// with ReLU gain.
func (in *initializer) kaimingNormal(w *mat.Dense) {
	_, fanIn := w.Dims()
	in.fill(w, distuv.Normal{Mu: 0, Sigma: math.Sqrt(2 / float64(fanIn)), Src: in.src})
}

func (in *initializer) uniform(w *mat.Dense, bound float64) {
	in.fill(w, distuv.Uniform{Min: -bound, Max: bound, Src: in.src})
}

// fanInUniform is the default init of linear and convolution layers:
// U(-1/sqrt(fanIn), 1/sqrt(fanIn)) for the weight and the bias.
func (in *initializer) fanInUniform(w, bias *mat.Dense, fanIn int) {
	bound := 1 / math.Sqrt(float64(fanIn))
	in.uniform(w, bound)
	if bias != nil {
		in.uniform(bias, bound)
	}
}

// orthogonal fills w with a (semi-)orthogonal matrix: the Q factor of a
// Gaussian matrix, with column signs fixed by diag(R) so the result is
// uniformly distributed.
func (in *initializer) orthogonal(w *mat.Dense) {
	rows, cols := w.Dims()
	transposed := rows < cols
	if transposed {
		rows, cols = cols, rows
	}

	gauss := mat.NewDense(rows, cols, nil)
	in.fill(gauss, distuv.Normal{Mu: 0, Sigma: 1, Src: in.src})

	var qr mat.QR
	qr.Factorize(gauss)
	var q, r mat.Dense
	qr.QTo(&q)
	qr.RTo(&r)

	out := mat.NewDense(rows, cols, nil)
	out.Copy(q.Slice(0, rows, 0, cols))
	for j := 0; j < cols; j++ {
		if r.At(j, j) < 0 {
			for i := 0; i < rows; i++ {
				out.Set(i, j, -out.At(i, j))
			}
		}
	}

	if transposed {
		w.Copy(out.T())
	} else {
		w.Copy(out)
	}
}
