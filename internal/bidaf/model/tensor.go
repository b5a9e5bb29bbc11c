package model

import "gonum.org/v1/gonum/mat"

// Sequence is a (batch, length, width) activation. Rows of Data are
// batch-major: row b*Length+i holds position i of sequence b.
type Sequence struct {
	Batch  int
	Length int
	Data   *mat.Dense
}

func newSequence(batch, length, width int) Sequence {
	return Sequence{Batch: batch, Length: length, Data: mat.NewDense(batch*length, width, nil)}
}

// Width returns the size of the feature axis.
func (s Sequence) Width() int {
	_, c := s.Data.Dims()
	return c
}

// Row returns the feature vector of position i in sequence b. The slice
// aliases Data.
func (s Sequence) Row(b, i int) []float64 {
	return s.Data.RawRowView(b*s.Length + i)
}

// Slab returns the Length×Width view of sequence b.
func (s Sequence) Slab(b int) *mat.Dense {
	return s.Data.Slice(b*s.Length, (b+1)*s.Length, 0, s.Width()).(*mat.Dense)
}

// concatCols joins matrices with equal row counts along the feature axis.
func concatCols(parts ...*mat.Dense) *mat.Dense {
	rows, _ := parts[0].Dims()
	width := 0
	for _, p := range parts {
		r, c := p.Dims()
		if r != rows {
			panic("concatCols: row count mismatch")
		}
		width += c
	}

	out := mat.NewDense(rows, width, nil)
	for i := 0; i < rows; i++ {
		dst := out.RawRowView(i)
		off := 0
		for _, p := range parts {
			off += copy(dst[off:], p.RawRowView(i))
		}
	}
	return out
}

// columnToGrid lays a (batch*length)×1 column out as a batch×length matrix.
// The batch and length axes are always kept, even when either is 1.
func columnToGrid(col *mat.Dense, batch, length int) *mat.Dense {
	out := mat.NewDense(batch, length, nil)
	for r := 0; r < batch*length; r++ {
		out.Set(r/length, r%length, col.At(r, 0))
	}
	return out
}
