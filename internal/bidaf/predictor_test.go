package bidaf

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-bidaf/internal/bidaf/model"
	"github.com/23skdu/longbow-bidaf/internal/cache"
)

const wordVocab = 25

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

func newTestModel(t *testing.T) *model.BiDAF {
	t.Helper()
	cfg := model.Config{
		CharVocabSize:    15,
		CharDim:          3,
		CharChannelSize:  4,
		CharChannelWidth: 2,
		WordDim:          4,
		HiddenSize:       4,
		Dropout:          0.1,
		Seed:             3,
	}
	rng := rand.New(rand.NewPCG(5, 6))
	data := make([]float64, wordVocab*cfg.WordDim)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	m, err := model.New(cfg, mat.NewDense(wordVocab, cfg.WordDim, data))
	require.NoError(t, err)
	return m
}

func testBatch(seed uint64, batch, cLen, qLen int) model.Batch {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	chars := func(length int) model.CharIDs {
		c := model.CharIDs{Batch: batch, Length: length, WordLength: 3, Data: make([]int, batch*length*3)}
		for i := range c.Data {
			c.Data[i] = rng.IntN(15)
		}
		return c
	}
	words := func(length int) model.WordIDs {
		w := model.WordIDs{Batch: batch, Length: length, Data: make([]int, batch*length)}
		for i := range w.Data {
			w.Data[i] = rng.IntN(wordVocab)
		}
		return w
	}
	return model.Batch{
		ContextChars: chars(cLen),
		ContextWords: words(cLen),
		QueryChars:   chars(qLen),
		QueryWords:   words(qLen),
	}
}

func TestPrediction_BestSpans(t *testing.T) {
	p := &Prediction{
		P1: mat.NewDense(1, 4, []float64{1, 5, 0, 0}),
		P2: mat.NewDense(1, 4, []float64{0, 0, 0, 9}),
	}

	spans := p.BestSpans(2)
	require.Len(t, spans, 1)
	assert.Equal(t, Span{Start: 2, End: 3, Score: 9}, spans[0])

	spans = p.BestSpans(0)
	assert.Equal(t, Span{Start: 1, End: 3, Score: 14}, spans[0])

	t.Run("EndNeverBeforeStart", func(t *testing.T) {
		p := &Prediction{
			P1: mat.NewDense(1, 3, []float64{0, 0, 10}),
			P2: mat.NewDense(1, 3, []float64{10, 0, 0}),
		}
		s := p.BestSpans(3)[0]
		assert.LessOrEqual(t, s.Start, s.End)
	})

	t.Run("TiesPickFirst", func(t *testing.T) {
		p := &Prediction{
			P1: mat.NewDense(2, 2, []float64{1, 1, 0, 0}),
			P2: mat.NewDense(2, 2, []float64{1, 1, 0, 0}),
		}
		for _, s := range p.BestSpans(2) {
			assert.Equal(t, 0, s.Start)
			assert.Equal(t, 0, s.End)
		}
	})
}

func TestPrediction_Probs(t *testing.T) {
	p := &Prediction{
		P1: mat.NewDense(2, 3, []float64{1, 2, 3, 1000, 1000, 1000}),
		P2: mat.NewDense(2, 3, []float64{0, 0, 0, -5, 0, 5}),
	}
	for _, probs := range []*mat.Dense{p.StartProbs(), p.EndProbs()} {
		for i := 0; i < 2; i++ {
			assert.InDelta(t, 1.0, floats.Sum(probs.RawRowView(i)), 1e-12)
		}
	}
	assert.InDelta(t, 1.0/3, p.StartProbs().At(1, 0), 1e-12)
	assert.Equal(t, 1.0, p.P1.At(0, 0), "logits are not modified")

	rows := p.ExportRows(2)
	require.Len(t, rows, 2)
	assert.Equal(t, []float64{1, 2, 3}, rows[0].Start)
	assert.Equal(t, 2, rows[0].SpanStart)
	assert.Equal(t, 2, rows[0].SpanEnd)
}

func TestPredictor_Cache(t *testing.T) {
	c := cache.NewMapCache()
	p := NewPredictor(newTestModel(t), WithCache(c))
	batch := testBatch(1, 2, 5, 3)

	startHits := getMetricValue(cacheHits)
	startMisses := getMetricValue(cacheMisses)

	first, err := p.Predict(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, startMisses+1, getMetricValue(cacheMisses))
	assert.Equal(t, 1, c.Size())

	second, err := p.Predict(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, startHits+1, getMetricValue(cacheHits))
	assert.True(t, mat.Equal(first.P1, second.P1))
	assert.True(t, mat.Equal(first.P2, second.P2))

	// mutating a result does not poison the cache
	second.P1.Set(0, 0, 1e9)
	third, err := p.Predict(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, first.P1.At(0, 0), third.P1.At(0, 0))

	t.Run("TrainingBypassesCache", func(t *testing.T) {
		p.Model().SetTraining(true)
		defer p.Model().SetTraining(false)
		_, err := p.Predict(context.Background(), testBatch(2, 1, 4, 2))
		require.NoError(t, err)
		assert.Equal(t, 1, c.Size())
	})
}

func TestPredictor_PredictAll(t *testing.T) {
	p := NewPredictor(newTestModel(t), WithConcurrency(2))
	batches := []model.Batch{
		testBatch(1, 2, 5, 3),
		testBatch(2, 1, 1, 1),
		testBatch(3, 3, 7, 4),
	}

	preds, err := p.PredictAll(context.Background(), batches)
	require.NoError(t, err)
	require.Len(t, preds, 3)
	for i, b := range batches {
		want, err := p.Predict(context.Background(), b)
		require.NoError(t, err)
		assert.True(t, mat.Equal(want.P1, preds[i].P1))
		assert.True(t, mat.Equal(want.P2, preds[i].P2))
	}

	t.Run("ShapeError", func(t *testing.T) {
		bad := testBatch(4, 1, 2, 2)
		bad.QueryWords.Data[0] = wordVocab
		_, err := p.PredictAll(context.Background(), append(batches, bad))
		assert.ErrorIs(t, err, model.ErrShape)
	})
}

func TestPredictor_Cancelled(t *testing.T) {
	p := NewPredictor(newTestModel(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Predict(ctx, testBatch(1, 1, 3, 2))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBatchKey(t *testing.T) {
	a := testBatch(1, 2, 5, 3)
	b := testBatch(1, 2, 5, 3)
	assert.Equal(t, BatchKey(a), BatchKey(b))

	b.QueryChars.Data[0] = (b.QueryChars.Data[0] + 1) % 15
	assert.NotEqual(t, BatchKey(a), BatchKey(b))
}
