package weights

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-bidaf/internal/bidaf/model"
)

func testConfig() model.Config {
	return model.Config{
		CharVocabSize:    10,
		CharDim:          2,
		CharChannelSize:  4,
		CharChannelWidth: 2,
		WordDim:          2,
		HiddenSize:       3,
		Seed:             1,
	}
}

func TestWordTable_RoundTrip(t *testing.T) {
	table := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 0.5, -0.25})

	path := filepath.Join(t.TempDir(), "words.bin")
	var buf bytes.Buffer
	require.NoError(t, WriteWordTable(&buf, table))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	got, err := LoadWordTable(path, 2)
	require.NoError(t, err)
	assert.True(t, mat.Equal(table, got))
}

func TestWordTable_Errors(t *testing.T) {
	t.Run("MissingFile", func(t *testing.T) {
		_, err := LoadWordTable("non_existent_file", 2)
		assert.Error(t, err)
	})

	t.Run("Truncated", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteWordTable(&buf, mat.NewDense(1, 3, []float64{1, 2, 3})))
		_, err := ReadWordTable(&buf, 2)
		assert.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := ReadWordTable(bytes.NewReader(nil), 2)
		assert.Error(t, err)
	})

	t.Run("BadDim", func(t *testing.T) {
		_, err := ReadWordTable(bytes.NewReader(nil), 0)
		assert.Error(t, err)
	})
}

func TestLoader_Parameters(t *testing.T) {
	table := mat.NewDense(5, 2, nil)
	src, err := model.New(testConfig(), table)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "params.bin")
	require.NoError(t, NewLoader(src).SaveToRawBinary(path))

	cfg := testConfig()
	cfg.Seed = 99
	dst, err := model.New(cfg, table)
	require.NoError(t, err)
	require.NoError(t, NewLoader(dst).LoadFromRawBinary(path))

	dstParams := dst.Parameters()
	for i, p := range src.Parameters() {
		// stored as float32
		assert.True(t, mat.EqualApprox(p.Value, dstParams[i].Value, 1e-6), p.Name)
	}

	t.Run("Truncated", func(t *testing.T) {
		data, err := os.ReadFile(path)
		require.NoError(t, err)

		fresh, err := model.New(testConfig(), table)
		require.NoError(t, err)
		before := snapshot(fresh)

		err = NewLoader(fresh).ReadParameters(bytes.NewReader(data[:len(data)-4]))
		assert.ErrorIs(t, err, ErrTruncated)
		assertUnchanged(t, before, fresh)
	})

	t.Run("TrailingByte", func(t *testing.T) {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		err = NewLoader(dst).ReadParameters(bytes.NewReader(append(data, 0)))
		assert.ErrorIs(t, err, ErrTrailingData)
	})

	t.Run("MissingFile", func(t *testing.T) {
		assert.Error(t, NewLoader(dst).LoadFromRawBinary("non_existent_file"))
	})
}

func TestLoader_ConfigMismatch(t *testing.T) {
	table := mat.NewDense(5, 2, nil)

	large := testConfig()
	large.CharVocabSize = 40
	src, err := model.New(large, table)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, NewLoader(src).WriteParameters(&buf))

	dst, err := model.New(testConfig(), table)
	require.NoError(t, err)
	before := snapshot(dst)

	err = NewLoader(dst).ReadParameters(&buf)
	assert.ErrorIs(t, err, ErrTrailingData)
	assertUnchanged(t, before, dst)
}

func snapshot(m *model.BiDAF) []*mat.Dense {
	var out []*mat.Dense
	for _, p := range m.Parameters() {
		out = append(out, mat.DenseCopyOf(p.Value))
	}
	return out
}

func assertUnchanged(t *testing.T, before []*mat.Dense, m *model.BiDAF) {
	t.Helper()
	for i, p := range m.Parameters() {
		assert.True(t, mat.Equal(before[i], p.Value), "%s was modified by a failed load", p.Name)
	}
}
