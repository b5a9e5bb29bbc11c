package device

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func getMetricValue(m prometheus.Metric) float64 {
	var metric dto.Metric
	_ = m.Write(&metric)
	if metric.Counter != nil {
		return *metric.Counter.Value
	}
	if metric.Gauge != nil {
		return *metric.Gauge.Value
	}
	return 0
}

func TestCPUBackend_NewMatrix(t *testing.T) {
	backend := NewCPUBackend()
	assert.Equal(t, "CPU", backend.Name())

	t.Run("Zeros", func(t *testing.T) {
		m := backend.NewMatrix(2, 3, nil)
		r, c := m.Dims()
		assert.Equal(t, 2, r)
		assert.Equal(t, 3, c)
		assert.Equal(t, 0.0, mat.Sum(m))
	})

	t.Run("CopiesData", func(t *testing.T) {
		data := []float64{1, 2, 3, 4}
		m := backend.NewMatrix(2, 2, data)
		data[0] = 100
		assert.Equal(t, 1.0, m.At(0, 0), "NewMatrix must not alias caller data")
	})

	t.Run("LengthMismatch", func(t *testing.T) {
		assert.Panics(t, func() { backend.NewMatrix(2, 2, []float64{1}) })
	})
}

func TestCPUBackend_Pooling(t *testing.T) {
	backend := NewCPUBackend()

	t1 := backend.GetMatrix(10, 10)
	t1.Set(0, 0, 123)
	backend.PutMatrix(t1)

	// Whether or not sync.Pool hands the buffer back, it must come out zeroed
	// and with the requested shape.
	t2 := backend.GetMatrix(5, 8)
	r, c := t2.Dims()
	require.Equal(t, 5, r)
	require.Equal(t, 8, c)
	assert.Equal(t, 0.0, t2.At(0, 0), "pooled matrix not zeroed")

	// Larger than anything pooled: must allocate.
	t3 := backend.GetMatrix(64, 64)
	r, c = t3.Dims()
	assert.Equal(t, 64, r)
	assert.Equal(t, 64, c)

	// Views are not pooled.
	backend.PutMatrix(t3.Slice(0, 2, 0, 2).(*mat.Dense))
	backend.PutMatrix(nil)
}

func TestCPUBackend_PoolMetrics(t *testing.T) {
	backend := NewCPUBackend()
	startHits := getMetricValue(poolHits)
	startMisses := getMetricValue(poolMisses)

	m := backend.GetMatrix(4, 4)
	backend.PutMatrix(m)
	_ = backend.GetMatrix(2, 2)

	hits := getMetricValue(poolHits) - startHits
	misses := getMetricValue(poolMisses) - startMisses
	// sync.Pool may drop entries at any GC, so only the total is stable.
	assert.Equal(t, 2.0, hits+misses)
	assert.GreaterOrEqual(t, misses, 1.0)
}
