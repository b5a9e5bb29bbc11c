//go:build ignore

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-bidaf/internal/client"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	addr := "localhost:3000"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}
	dataset := "bidaf-verify"
	if len(os.Args) > 2 {
		dataset = os.Args[2]
	}

	log.Info().Str("addr", addr).Msg("Connecting to Flight sink")

	var c *client.FlightClient
	var err error
	for i := 0; i < 10; i++ {
		c, err = client.NewFlightClient(addr)
		if err == nil {
			break
		}
		log.Warn().Err(err).Msg("Connection failed, retrying...")
		time.Sleep(1 * time.Second)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect after retries")
	}
	defer c.Close()

	rows := []client.Row{
		{Start: []float64{0.1, 2.3, -0.4}, End: []float64{-1, 0.5, 1.7}, SpanStart: 1, SpanEnd: 2},
		{Start: []float64{1.2, 0.3, 0.0}, End: []float64{0.9, -0.2, 0.1}, SpanStart: 0, SpanEnd: 0},
	}
	rec, err := client.NewRecordBatchBuilder(memory.NewGoAllocator()).BuildRecordBatch(rows)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build record batch")
	}
	defer rec.Release()

	log.Info().Int("rows", len(rows)).Str("dataset", dataset).Msg("Sending predictions")

	start := time.Now()
	if err := c.DoPut(context.Background(), dataset, rec); err != nil {
		log.Fatal().Err(err).Str("breaker", c.Breaker().State().String()).Msg("DoPut failed")
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("Predictions stored")

	fmt.Println("VERIFICATION PASSED")
}
