package bidaf

import (
	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-bidaf/internal/cache"
	"github.com/23skdu/longbow-bidaf/internal/client"
	"github.com/23skdu/longbow-bidaf/internal/simd"
)

// Prediction holds the unnormalized start (P1) and end (P2) logits of one
// batch, each batch×Lc.
type Prediction struct {
	P1 *mat.Dense
	P2 *mat.Dense
}

// Span is a decoded answer: context positions Start..End inclusive.
type Span struct {
	Start int
	End   int
	Score float64
}

// Rows returns the batch size.
func (p *Prediction) Rows() int {
	r, _ := p.P1.Dims()
	return r
}

// BestSpans decodes the highest scoring span of each row, maximising
// p1[i]+p2[j] over i <= j < i+maxLen. A non-positive maxLen puts no bound on
// the span length. Ties resolve to the earliest start, then the earliest end.
func (p *Prediction) BestSpans(maxLen int) []Span {
	rows, cols := p.P1.Dims()
	if maxLen <= 0 || maxLen > cols {
		maxLen = cols
	}

	spans := make([]Span, rows)
	for b := 0; b < rows; b++ {
		start, end := p.P1.RawRowView(b), p.P2.RawRowView(b)
		best := Span{Start: 0, End: 0, Score: start[0] + end[0]}
		for i := 0; i < cols; i++ {
			for j := i; j < cols && j < i+maxLen; j++ {
				if s := start[i] + end[j]; s > best.Score {
					best = Span{Start: i, End: j, Score: s}
				}
			}
		}
		spans[b] = best
	}
	return spans
}

// StartProbs returns the row-wise softmax of P1.
func (p *Prediction) StartProbs() *mat.Dense {
	return softmaxRows(p.P1)
}

// EndProbs returns the row-wise softmax of P2.
func (p *Prediction) EndProbs() *mat.Dense {
	return softmaxRows(p.P2)
}

func softmaxRows(m *mat.Dense) *mat.Dense {
	out := mat.DenseCopyOf(m)
	rows, _ := out.Dims()
	for i := 0; i < rows; i++ {
		simd.SoftmaxStable(out.RawRowView(i))
	}
	return out
}

// ExportRows pairs each row's logits with its decoded span for export.
func (p *Prediction) ExportRows(maxLen int) []client.Row {
	spans := p.BestSpans(maxLen)
	rows := make([]client.Row, len(spans))
	for b, s := range spans {
		rows[b] = client.Row{
			Start:     append([]float64(nil), p.P1.RawRowView(b)...),
			End:       append([]float64(nil), p.P2.RawRowView(b)...),
			SpanStart: s.Start,
			SpanEnd:   s.End,
		}
	}
	return rows
}

func (p *Prediction) scores() cache.Scores {
	rows := p.Rows()
	s := cache.Scores{Start: make([][]float64, rows), End: make([][]float64, rows)}
	for b := 0; b < rows; b++ {
		s.Start[b] = p.P1.RawRowView(b)
		s.End[b] = p.P2.RawRowView(b)
	}
	return s
}

func predictionFromScores(s cache.Scores) *Prediction {
	return &Prediction{P1: denseFromRows(s.Start), P2: denseFromRows(s.End)}
}

func denseFromRows(rows [][]float64) *mat.Dense {
	out := mat.NewDense(len(rows), len(rows[0]), nil)
	for i, r := range rows {
		out.SetRow(i, r)
	}
	return out
}
