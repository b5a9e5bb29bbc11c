package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"runtime/pprof"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/23skdu/longbow-bidaf/internal/bidaf"
	"github.com/23skdu/longbow-bidaf/internal/bidaf/model"
	"github.com/23skdu/longbow-bidaf/internal/bidaf/weights"
	"github.com/23skdu/longbow-bidaf/internal/cache"
	"github.com/23skdu/longbow-bidaf/internal/client"
)

var defaults = model.DefaultConfig()

var (
	charVocabSize    = flag.Int("char-vocab-size", defaults.CharVocabSize, "Character vocabulary size")
	charDim          = flag.Int("char-dim", defaults.CharDim, "Character embedding dimension")
	charChannelSize  = flag.Int("char-channel-size", defaults.CharChannelSize, "Character convolution output channels")
	charChannelWidth = flag.Int("char-channel-width", defaults.CharChannelWidth, "Character convolution width")
	wordDim          = flag.Int("word-dim", defaults.WordDim, "Word embedding dimension")
	hiddenSize       = flag.Int("hidden-size", defaults.HiddenSize, "LSTM hidden size per direction")
	dropout          = flag.Float64("dropout", defaults.Dropout, "Dropout probability (training mode only)")
	seed             = flag.Uint64("seed", defaults.Seed, "Parameter initialization seed")

	embeddingsPath = flag.String("embeddings", "", "Path to raw float32 word table")
	vocabSize      = flag.Int("vocab-size", 1000, "Word vocabulary size for a random table when -embeddings is not set")
	paramsPath     = flag.String("params", "", "Path to raw float32 trained parameters")

	cpuProfile    = flag.String("cpuprofile", "", "Write cpu profile to file")
	serverAddr    = flag.String("server", "", "Flight server address to export predictions to (e.g., localhost:3000)")
	datasetName   = flag.String("dataset", "bidaf_predictions", "Target dataset name on the Flight server")
	listenAddr    = flag.String("listen", "", "Address to listen on for HTTP Server (e.g. :8080)")
	maxConcurrent = flag.Int("max-concurrent", 1024, "Maximum number of concurrent pairs to score")
	maxAnswerLen  = flag.Int("max-answer-len", bidaf.DefaultMaxAnswerLen, "Maximum decoded answer length in words")
	useCache      = flag.Bool("cache", false, "Cache scores by batch content")
	enableOTel    = flag.Bool("otel", false, "Enable OpenTelemetry tracing (stdout)")

	demoBatch      = flag.Int("batch", 2, "Demo batch size")
	demoContextLen = flag.Int("context-len", 20, "Demo context length in words")
	demoQueryLen   = flag.Int("query-len", 6, "Demo query length in words")
	demoWordLen    = flag.Int("word-len", 8, "Demo word length in characters")
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	flag.Parse()
	if err := validateFlags(); err != nil {
		log.Fatal().Err(err).Msg("Invalid flags")
	}

	if *enableOTel {
		shutdown, err := initTracer()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracer")
		}
		defer shutdown(context.Background())
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create CPU profile file")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("Could not start CPU profile")
		}
		defer pprof.StopCPUProfile()
	}

	config := model.Config{
		CharVocabSize:    *charVocabSize,
		CharDim:          *charDim,
		CharChannelSize:  *charChannelSize,
		CharChannelWidth: *charChannelWidth,
		WordDim:          *wordDim,
		HiddenSize:       *hiddenSize,
		Dropout:          *dropout,
		Seed:             *seed,
	}

	m, err := buildModel(config)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build model")
	}

	opts := []bidaf.Option{
		bidaf.WithMaxAnswerLen(*maxAnswerLen),
		bidaf.WithConcurrency(*maxConcurrent),
	}
	if *useCache {
		opts = append(opts, bidaf.WithCache(cache.NewMapCache()))
	}
	predictor := bidaf.NewPredictor(m, opts...)

	var fc *client.FlightClient
	if *serverAddr != "" {
		fc, err = client.NewFlightClient(*serverAddr)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create flight client")
		}
		defer func() {
			if err := fc.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close flight client")
			}
		}()
		log.Info().Str("addr", *serverAddr).Msg("Connected to Flight Server")
	}

	// Server Mode
	if *listenAddr != "" {
		var fcInterface FlightClientInterface
		if fc != nil {
			fcInterface = fc
		}
		if err := startServer(*listenAddr, predictor, fcInterface, *datasetName, *maxConcurrent); err != nil {
			log.Fatal().Err(err).Msg("Server failed")
		}
		return
	}

	batch := randomBatch(rand.New(rand.NewPCG(*seed, 0)), config, m.WordEmbedding.VocabSize())

	start := time.Now()
	pred, err := predictor.Predict(context.Background(), batch)
	if err != nil {
		log.Fatal().Err(err).Msg("Prediction failed")
	}
	elapsed := time.Since(start)

	for i, s := range pred.BestSpans(*maxAnswerLen) {
		log.Info().Int("row", i).Int("start", s.Start).Int("end", s.End).Float64("score", s.Score).Msg("Best span")
	}
	log.Info().
		Int("count", pred.Rows()).
		Dur("elapsed", elapsed).
		Float64("pairs_per_sec", float64(pred.Rows())/elapsed.Seconds()).
		Msg("Scored batch")

	rec, err := client.NewRecordBatchBuilder(memory.NewGoAllocator()).BuildRecordBatch(pred.ExportRows(*maxAnswerLen))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build record batch")
	}
	defer rec.Release()

	// If server is provided, send via Flight
	if fc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		if err := fc.DoPut(ctx, *datasetName, rec); err != nil {
			log.Fatal().Err(err).Msg("Flight DoPut failed")
		}
		log.Info().Str("dataset", *datasetName).Msg("Successfully sent predictions")
		return
	}

	if err := writeArrowStream(os.Stdout, rec); err != nil {
		log.Warn().Err(err).Msg("Failed to write arrow stream")
	}
}

func buildModel(config model.Config) (*model.BiDAF, error) {
	var table *mat.Dense
	if *embeddingsPath != "" {
		t, err := weights.LoadWordTable(*embeddingsPath, config.WordDim)
		if err != nil {
			return nil, err
		}
		table = t
	} else {
		log.Warn().Int("vocab_size", *vocabSize).Msg("No word table given, using random embeddings")
		table = randomTable(rand.New(rand.NewPCG(config.Seed, 1)), *vocabSize, config.WordDim)
	}

	m, err := model.New(config, table)
	if err != nil {
		return nil, err
	}
	if *paramsPath != "" {
		if err := weights.NewLoader(m).LoadFromRawBinary(*paramsPath); err != nil {
			return nil, err
		}
		log.Info().Str("path", *paramsPath).Msg("Loaded parameters")
	}
	return m, nil
}

func randomTable(rng *rand.Rand, rows, cols int) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return mat.NewDense(rows, cols, data)
}

func randomBatch(rng *rand.Rand, config model.Config, wordVocab int) model.Batch {
	wordLen := max(*demoWordLen, config.CharChannelWidth)
	chars := func(length int) model.CharIDs {
		c := model.CharIDs{Batch: *demoBatch, Length: length, WordLength: wordLen, Data: make([]int, *demoBatch*length*wordLen)}
		for i := range c.Data {
			c.Data[i] = rng.IntN(config.CharVocabSize)
		}
		return c
	}
	words := func(length int) model.WordIDs {
		w := model.WordIDs{Batch: *demoBatch, Length: length, Data: make([]int, *demoBatch*length)}
		for i := range w.Data {
			w.Data[i] = rng.IntN(wordVocab)
		}
		return w
	}
	return model.Batch{
		ContextChars: chars(*demoContextLen),
		ContextWords: words(*demoContextLen),
		QueryChars:   chars(*demoQueryLen),
		QueryWords:   words(*demoQueryLen),
	}
}

// validateFlags rejects settings that would make every request fail.
func validateFlags() error {
	if *maxConcurrent <= 0 {
		return fmt.Errorf("-max-concurrent must be positive, got %d", *maxConcurrent)
	}
	if *maxAnswerLen <= 0 {
		return fmt.Errorf("-max-answer-len must be positive, got %d", *maxAnswerLen)
	}
	return nil
}

func writeArrowStream(w io.Writer, rec arrow.RecordBatch) error {
	writer := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()))
	if err := writer.Write(rec); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

func initTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("bidaf"),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}
