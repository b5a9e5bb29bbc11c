package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-bidaf/internal/bidaf/model"
	"github.com/23skdu/longbow-bidaf/internal/bidaf/weights"
)

// ParamDump holds the summary of a loaded tensor for verification
type ParamDump struct {
	Name     string    `json:"name"`
	Rows     int       `json:"rows"`
	Cols     int       `json:"cols"`
	FirstFew []float64 `json:"first_few"`
	LastFew  []float64 `json:"last_few"`
	Sum      float64   `json:"sum"`
}

func main() {
	embeddingsPath := flag.String("embeddings", "", "Path to raw float32 word table")
	paramsPath := flag.String("params", "", "Path to raw float32 trained parameters")
	vocabSize := flag.Int("vocab-size", 1, "Word vocabulary size when -embeddings is not set")
	flag.Parse()

	config := model.DefaultConfig()

	var table mat.Matrix = mat.NewDense(*vocabSize, config.WordDim, nil)
	if *embeddingsPath != "" {
		t, err := weights.LoadWordTable(*embeddingsPath, config.WordDim)
		if err != nil {
			log.Fatalf("Failed to load word table: %v", err)
		}
		table = t
	}

	m, err := model.New(config, table)
	if err != nil {
		log.Fatalf("Failed to build model: %v", err)
	}
	if *paramsPath != "" {
		if err := weights.NewLoader(m).LoadFromRawBinary(*paramsPath); err != nil {
			log.Fatalf("Failed to load parameters: %v", err)
		}
	}

	var dumps []ParamDump
	for _, p := range m.Parameters() {
		r, c := p.Value.Dims()
		data := mat.DenseCopyOf(p.Value).RawMatrix().Data

		count := min(5, len(data))
		dumps = append(dumps, ParamDump{
			Name:     p.Name,
			Rows:     r,
			Cols:     c,
			FirstFew: data[:count],
			LastFew:  data[len(data)-count:],
			Sum:      floats.Sum(data),
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(dumps); err != nil {
		log.Fatal(err)
	}
}
