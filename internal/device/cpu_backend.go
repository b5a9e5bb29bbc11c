package device

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// ensure interface compliance
var _ Backend = (*CPUBackend)(nil)

// CPUBackend is the gonum-backed backend. Matrix products go through
// gonum's BLAS, which can be swapped for a system BLAS with the netlib
// build tag.
type CPUBackend struct {
	pool sync.Pool
}

func NewCPUBackend() *CPUBackend {
	return &CPUBackend{}
}

func (b *CPUBackend) Name() string {
	return "CPU"
}

func (b *CPUBackend) NewMatrix(r, c int, data []float64) *mat.Dense {
	if data == nil {
		return mat.NewDense(r, c, nil)
	}
	if len(data) != r*c {
		panic(fmt.Sprintf("NewMatrix: data length %d does not match %dx%d", len(data), r, c))
	}
	buf := make([]float64, len(data))
	copy(buf, data)
	return mat.NewDense(r, c, buf)
}

func (b *CPUBackend) GetMatrix(r, c int) *mat.Dense {
	size := r * c
	if v := b.pool.Get(); v != nil {
		buf := v.(*[]float64)
		if cap(*buf) >= size {
			poolHits.Inc()
			raw := (*buf)[:size]
			// Zero only the elements we hand out
			for i := range raw {
				raw[i] = 0
			}
			return mat.NewDense(r, c, raw)
		}
		// Too small for this request; let the GC have it.
	}
	poolMisses.Inc()
	return mat.NewDense(r, c, nil)
}

func (b *CPUBackend) PutMatrix(m *mat.Dense) {
	if m == nil || m.IsEmpty() {
		return
	}
	raw := m.RawMatrix()
	if raw.Stride != raw.Cols {
		// Views into a larger matrix do not own their backing array.
		return
	}
	buf := raw.Data[:cap(raw.Data)]
	b.pool.Put(&buf)
}
