package bidaf

import (
	"context"
	"encoding/binary"
	"fmt"
	"runtime"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/23skdu/longbow-bidaf/internal/bidaf/model"
	"github.com/23skdu/longbow-bidaf/internal/cache"
)

var tracer = otel.Tracer("bidaf-predictor")

// DefaultMaxAnswerLen bounds decoded spans unless WithMaxAnswerLen is given.
const DefaultMaxAnswerLen = 30

// Predictor scores batches with a BiDAF model. It is safe for concurrent use
// as long as nobody mutates the model parameters meanwhile.
type Predictor struct {
	model        *model.BiDAF
	cache        cache.ScoreCache
	concurrency  int
	maxAnswerLen int
}

type Option func(*Predictor)

// WithCache memoizes inference results by batch content.
func WithCache(c cache.ScoreCache) Option {
	return func(p *Predictor) { p.cache = c }
}

// WithConcurrency limits how many batches PredictAll runs at once.
func WithConcurrency(n int) Option {
	return func(p *Predictor) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

func WithMaxAnswerLen(n int) Option {
	return func(p *Predictor) { p.maxAnswerLen = n }
}

func NewPredictor(m *model.BiDAF, opts ...Option) *Predictor {
	p := &Predictor{
		model:        m,
		concurrency:  runtime.NumCPU(),
		maxAnswerLen: DefaultMaxAnswerLen,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Predictor) Model() *model.BiDAF { return p.model }

func (p *Predictor) MaxAnswerLen() int { return p.maxAnswerLen }

// Predict runs one batch. Results are served from the cache when one is
// configured and the model is in inference mode.
func (p *Predictor) Predict(ctx context.Context, batch model.Batch) (*Prediction, error) {
	ctx, span := tracer.Start(ctx, "Predict")
	defer span.End()
	span.SetAttributes(
		attribute.Int("batch_size", batch.ContextWords.Batch),
		attribute.Int("context_len", batch.ContextWords.Length),
		attribute.Int("query_len", batch.QueryWords.Length),
	)

	start := time.Now()
	defer func() { predictDuration.Observe(time.Since(start).Seconds()) }()

	if err := ctx.Err(); err != nil {
		predictErrors.Inc()
		return nil, err
	}

	useCache := p.cache != nil && !p.model.Training()
	var key uint64
	if useCache {
		key = BatchKey(batch)
		if s, ok := p.cache.Get(key); ok {
			cacheHits.Inc()
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return predictionFromScores(s), nil
		}
		cacheMisses.Inc()
	}

	p1, p2, err := p.model.Forward(batch)
	if err != nil {
		predictErrors.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("forward: %w", err)
	}
	pred := &Prediction{P1: p1, P2: p2}
	predictRows.Add(float64(pred.Rows()))

	if useCache {
		p.cache.Put(key, pred.scores())
	}
	return pred, nil
}

// PredictAll runs batches concurrently, bounded by the configured
// concurrency. Results keep the order of batches. The first error cancels
// the batches that have not started.
func (p *Predictor) PredictAll(ctx context.Context, batches []model.Batch) ([]*Prediction, error) {
	ctx, span := tracer.Start(ctx, "PredictAll", trace.WithAttributes(attribute.Int("batches", len(batches))))
	defer span.End()

	out := make([]*Prediction, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i := range batches {
		g.Go(func() error {
			pred, err := p.Predict(gctx, batches[i])
			if err != nil {
				return fmt.Errorf("batch %d: %w", i, err)
			}
			out[i] = pred
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return out, nil
}

// BatchKey digests the shape and ids of a batch.
func BatchKey(batch model.Batch) uint64 {
	h := xxhash.New()
	buf := make([]byte, 0, 64)
	writeInts := func(ints ...int) {
		buf = buf[:0]
		for _, v := range ints {
			buf = binary.LittleEndian.AppendUint64(buf, uint64(v))
		}
		_, _ = h.Write(buf)
	}
	for _, c := range []model.CharIDs{batch.ContextChars, batch.QueryChars} {
		writeInts(c.Batch, c.Length, c.WordLength)
		writeInts(c.Data...)
	}
	for _, w := range []model.WordIDs{batch.ContextWords, batch.QueryWords} {
		writeInts(w.Batch, w.Length)
		writeInts(w.Data...)
	}
	return h.Sum64()
}
