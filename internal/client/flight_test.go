package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockFlightServer struct {
	flight.BaseFlightServer

	mu       sync.Mutex
	rows     int64
	datasets []string
}

func (s *mockFlightServer) DoPut(server flight.FlightService_DoPutServer) error {
	rdr, err := flight.NewRecordReader(server)
	if err != nil {
		return err
	}
	defer rdr.Release()

	s.mu.Lock()
	defer s.mu.Unlock()
	if desc := rdr.LatestFlightDescriptor(); desc != nil {
		s.datasets = append(s.datasets, desc.Path...)
	}
	for rdr.Next() {
		s.rows += rdr.Record().NumRows()
	}
	return rdr.Err()
}

func startFlightServer(t *testing.T) (*mockFlightServer, string) {
	t.Helper()
	mockServer := &mockFlightServer{}
	server := flight.NewServerWithMiddleware(nil)
	server.RegisterFlightService(mockServer)

	require.NoError(t, server.Init("localhost:0"))
	go func() {
		_ = server.Serve()
	}()
	t.Cleanup(server.Shutdown)
	return mockServer, server.Addr().String()
}

func TestFlightClient_DoPut(t *testing.T) {
	mockServer, addr := startFlightServer(t)

	client, err := NewFlightClient(addr)
	require.NoError(t, err)
	defer client.Close()

	builder := NewRecordBatchBuilder(memory.NewGoAllocator())
	rb, err := builder.BuildRecordBatch([]Row{
		{Start: []float64{1, 2}, End: []float64{2, 1}, SpanStart: 1, SpanEnd: 1},
		{Start: []float64{3, 4}, End: []float64{4, 3}},
	})
	require.NoError(t, err)
	defer rb.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.DoPut(ctx, "test-dataset", rb))

	mockServer.mu.Lock()
	defer mockServer.mu.Unlock()
	assert.Equal(t, int64(2), mockServer.rows)
	assert.Equal(t, []string{"test-dataset"}, mockServer.datasets)
	assert.Equal(t, StateClosed, client.Breaker().State())
}

func TestFlightClient_CircuitOpen(t *testing.T) {
	_, addr := startFlightServer(t)
	client, err := NewFlightClient(addr)
	require.NoError(t, err)
	defer client.Close()

	for i := 0; i < 5; i++ {
		client.Breaker().Failure()
	}
	require.Equal(t, StateOpen, client.Breaker().State())

	err = client.DoPut(context.Background(), "test-dataset", nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}
