package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/fxamacker/cbor/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/23skdu/longbow-bidaf/internal/bidaf"
	"github.com/23skdu/longbow-bidaf/internal/bidaf/model"
	"github.com/23skdu/longbow-bidaf/internal/client"
)

var (
	pairsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bidaf_pairs_processed_total",
		Help: "The total number of (context, query) pairs scored over HTTP",
	})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bidaf_request_duration_seconds",
		Help:    "Time spent processing predict requests",
		Buckets: prometheus.DefBuckets,
	})
)

type PredictorInterface interface {
	Predict(ctx context.Context, batch model.Batch) (*bidaf.Prediction, error)
	MaxAnswerLen() int
}

type FlightClientInterface interface {
	DoPut(ctx context.Context, datasetName string, record arrow.RecordBatch) error
	Close() error
}

// predictRequest is the CBOR body of POST /predict.
type predictRequest struct {
	ContextChars [][][]int `cbor:"context_chars"`
	ContextWords [][]int   `cbor:"context_words"`
	QueryChars   [][][]int `cbor:"query_chars"`
	QueryWords   [][]int   `cbor:"query_words"`
	MaxAnswerLen int       `cbor:"max_answer_len,omitempty"`
}

func (r predictRequest) batch() (model.Batch, error) {
	var b model.Batch
	var err error
	if b.ContextChars, err = model.NewCharIDs(r.ContextChars); err != nil {
		return b, err
	}
	if b.ContextWords, err = model.NewWordIDs(r.ContextWords); err != nil {
		return b, err
	}
	if b.QueryChars, err = model.NewCharIDs(r.QueryChars); err != nil {
		return b, err
	}
	if b.QueryWords, err = model.NewWordIDs(r.QueryWords); err != nil {
		return b, err
	}
	return b, nil
}

type spanResponse struct {
	Start int     `cbor:"start"`
	End   int     `cbor:"end"`
	Score float64 `cbor:"score"`
}

type predictResponse struct {
	StartLogits [][]float64    `cbor:"start_logits"`
	EndLogits   [][]float64    `cbor:"end_logits"`
	Spans       []spanResponse `cbor:"spans"`
}

type Server struct {
	predictor     PredictorInterface
	flightClient  FlightClientInterface
	datasetName   string
	builder       *client.RecordBatchBuilder
	sem           *semaphore.Weighted
	maxConcurrent int64
}

func NewServer(p PredictorInterface, fc FlightClientInterface, dataset string, maxConcurrent int) *Server {
	return &Server{
		predictor:     p,
		flightClient:  fc,
		datasetName:   dataset,
		builder:       client.NewRecordBatchBuilder(memory.NewGoAllocator()),
		sem:           semaphore.NewWeighted(int64(maxConcurrent)),
		maxConcurrent: int64(maxConcurrent),
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/predict", s.handlePredict)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

func startServer(addr string, p PredictorInterface, fc FlightClientInterface, dataset string, maxConcurrent int) error {
	srv := NewServer(p, fc, dataset, maxConcurrent)

	log.Info().Str("addr", addr).Msg("Starting BiDAF Server")
	if fc != nil {
		log.Info().Str("dataset", dataset).Msg("Forwarding predictions to Flight sink")
	}
	return http.ListenAndServe(addr, srv.routes())
}

var tracer = otel.Tracer("bidaf-server")

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handlePredict")
	defer span.End()

	start := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(start).Seconds())
	}()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req predictRequest
	if err := cbor.NewDecoder(r.Body).Decode(&req); err != nil {
		span.RecordError(err)
		http.Error(w, fmt.Sprintf("Bad Request (CBOR decode): %v", err), http.StatusBadRequest)
		return
	}
	batch, err := req.batch()
	if err != nil {
		span.RecordError(err)
		http.Error(w, fmt.Sprintf("Bad Request: %v", err), http.StatusBadRequest)
		return
	}

	span.SetAttributes(
		attribute.Int("batch_size", batch.ContextWords.Batch),
		attribute.Int("context_len", batch.ContextWords.Length),
	)

	// Admission control, weighted by batch size
	weight := int64(batch.ContextWords.Batch)
	if weight > s.maxConcurrent {
		http.Error(w, "Batch exceeds admission limit", http.StatusRequestEntityTooLarge)
		return
	}
	if err := s.sem.Acquire(ctx, weight); err != nil {
		log.Error().Err(err).Msg("Failed to acquire semaphore")
		http.Error(w, "Server busy", http.StatusServiceUnavailable)
		return
	}
	defer s.sem.Release(weight)

	pred, err := s.predictor.Predict(ctx, batch)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, model.ErrShape) {
			http.Error(w, fmt.Sprintf("Bad Request: %v", err), http.StatusBadRequest)
			return
		}
		log.Error().Err(err).Msg("Prediction failed")
		http.Error(w, "Prediction failed", http.StatusInternalServerError)
		return
	}
	pairsProcessed.Add(float64(pred.Rows()))

	maxLen := req.MaxAnswerLen
	if maxLen <= 0 {
		maxLen = s.predictor.MaxAnswerLen()
	}
	rows := pred.ExportRows(maxLen)

	if s.flightClient != nil {
		if err := s.forward(ctx, rows); err != nil {
			log.Error().Err(err).Msg("Error forwarding predictions")
		}
	}

	resp := predictResponse{
		StartLogits: make([][]float64, len(rows)),
		EndLogits:   make([][]float64, len(rows)),
		Spans:       make([]spanResponse, len(rows)),
	}
	for i, sp := range pred.BestSpans(maxLen) {
		resp.StartLogits[i] = rows[i].Start
		resp.EndLogits[i] = rows[i].End
		resp.Spans[i] = spanResponse{Start: sp.Start, End: sp.End, Score: sp.Score}
	}

	data, err := cbor.Marshal(resp)
	if err != nil {
		http.Error(w, "Encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/cbor")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) forward(ctx context.Context, rows []client.Row) error {
	rec, err := s.builder.BuildRecordBatch(rows)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	defer rec.Release()
	return s.flightClient.DoPut(ctx, s.datasetName, rec)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
