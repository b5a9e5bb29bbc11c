package client

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Row is the exported result for one batch entry: its start and end logits
// over the context and the decoded answer span.
type Row struct {
	Start     []float64
	End       []float64
	SpanStart int
	SpanEnd   int
}

// PredictionSchema is the layout of records built by RecordBatchBuilder.
var PredictionSchema = arrow.NewSchema(
	[]arrow.Field{
		{Name: "row", Type: arrow.PrimitiveTypes.Int32},
		{Name: "start_logits", Type: arrow.ListOf(arrow.PrimitiveTypes.Float64)},
		{Name: "end_logits", Type: arrow.ListOf(arrow.PrimitiveTypes.Float64)},
		{Name: "start", Type: arrow.PrimitiveTypes.Int32},
		{Name: "end", Type: arrow.PrimitiveTypes.Int32},
	},
	nil,
)

// RecordBatchBuilder creates Arrow RecordBatches from predictions.
type RecordBatchBuilder struct {
	mem memory.Allocator
}

// NewRecordBatchBuilder creates a new builder.
func NewRecordBatchBuilder(mem memory.Allocator) *RecordBatchBuilder {
	return &RecordBatchBuilder{mem: mem}
}

// BuildRecordBatch converts prediction rows into a RecordBatch with one
// record row per batch entry.
func (b *RecordBatchBuilder) BuildRecordBatch(rows []Row) (arrow.RecordBatch, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	idx := array.NewInt32Builder(b.mem)
	defer idx.Release()
	startList := array.NewListBuilder(b.mem, arrow.PrimitiveTypes.Float64)
	defer startList.Release()
	endList := array.NewListBuilder(b.mem, arrow.PrimitiveTypes.Float64)
	defer endList.Release()
	spanStart := array.NewInt32Builder(b.mem)
	defer spanStart.Release()
	spanEnd := array.NewInt32Builder(b.mem)
	defer spanEnd.Release()

	startVals := startList.ValueBuilder().(*array.Float64Builder)
	endVals := endList.ValueBuilder().(*array.Float64Builder)

	for i, r := range rows {
		if len(r.Start) != len(r.End) {
			return nil, fmt.Errorf("row %d: %d start logits but %d end logits", i, len(r.Start), len(r.End))
		}
		idx.Append(int32(i))
		startList.Append(true)
		startVals.AppendValues(r.Start, nil)
		endList.Append(true)
		endVals.AppendValues(r.End, nil)
		spanStart.Append(int32(r.SpanStart))
		spanEnd.Append(int32(r.SpanEnd))
	}

	cols := []arrow.Array{
		idx.NewArray(),
		startList.NewArray(),
		endList.NewArray(),
		spanStart.NewArray(),
		spanEnd.NewArray(),
	}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	return array.NewRecordBatch(PredictionSchema, cols, int64(len(rows))), nil
}
