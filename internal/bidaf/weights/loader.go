package weights

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-bidaf/internal/bidaf/model"
)

var (
	// ErrTruncated is returned when a file ends before a full row or tensor.
	ErrTruncated = errors.New("weights: truncated input")

	// ErrTrailingData is returned when a parameter stream is longer than the
	// model it is loaded into.
	ErrTrailingData = errors.New("weights: trailing data after last parameter")
)

// LoadWordTable reads a pretrained word table stored as raw little-endian
// float32 values, wordDim per row. The vocabulary size is inferred from the
// file size.
func LoadWordTable(path string, wordDim int) (*mat.Dense, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open word table: %w", err)
	}
	defer file.Close()

	table, err := ReadWordTable(bufio.NewReader(file), wordDim)
	if err != nil {
		return nil, fmt.Errorf("failed to load word table %s: %w", path, err)
	}
	return table, nil
}

// ReadWordTable reads rows until EOF. A partial trailing row is an error.
func ReadWordTable(r io.Reader, wordDim int) (*mat.Dense, error) {
	if wordDim <= 0 {
		return nil, fmt.Errorf("word dim must be positive, got %d", wordDim)
	}

	var data []float64
	row := make([]float32, wordDim)
	for {
		err := binary.Read(r, binary.LittleEndian, row)
		if err == io.EOF {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("row %d: %w", len(data)/wordDim, ErrTruncated)
		}
		if err != nil {
			return nil, err
		}
		for _, v := range row {
			data = append(data, float64(v))
		}
	}
	if len(data) == 0 {
		return nil, errors.New("word table is empty")
	}
	return mat.NewDense(len(data)/wordDim, wordDim, data), nil
}

// WriteWordTable writes a table in the format ReadWordTable reads.
func WriteWordTable(w io.Writer, table mat.Matrix) error {
	return writeDense(w, table)
}

// Loader reads and writes the trainable parameters of a model as one raw
// float32 stream, in Parameters order.
type Loader struct {
	Model *model.BiDAF
}

func NewLoader(m *model.BiDAF) *Loader {
	return &Loader{Model: m}
}

// LoadFromRawBinary overwrites every trainable parameter from path. The
// frozen word table is not part of the file.
func (l *Loader) LoadFromRawBinary(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return l.ReadParameters(bufio.NewReader(file))
}

// ReadParameters reads the whole stream before touching the model. On any
// error, including a stream sized for a different configuration, the model
// keeps its current parameters.
func (l *Loader) ReadParameters(r io.Reader) error {
	params := l.Model.Parameters()
	staged := make([][]float32, len(params))
	for i, p := range params {
		rows, cols := p.Value.Dims()
		staged[i] = make([]float32, rows*cols)
		if err := binary.Read(r, binary.LittleEndian, staged[i]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				err = ErrTruncated
			}
			return fmt.Errorf("failed to load %s: %w", p.Name, err)
		}
	}

	var extra [1]byte
	if _, err := io.ReadFull(r, extra[:]); err == nil {
		return fmt.Errorf("%d parameters read: %w", len(params), ErrTrailingData)
	} else if !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to check end of parameters: %w", err)
	}

	for i, p := range params {
		copyInto(p.Value, staged[i])
	}
	return nil
}

// SaveToRawBinary writes the parameters so LoadFromRawBinary can restore them.
func (l *Loader) SaveToRawBinary(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(file)
	if err := l.WriteParameters(w); err != nil {
		file.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func (l *Loader) WriteParameters(w io.Writer) error {
	for _, p := range l.Model.Parameters() {
		if err := writeDense(w, p.Value); err != nil {
			return fmt.Errorf("failed to write %s: %w", p.Name, err)
		}
	}
	return nil
}

func copyInto(d *mat.Dense, f32s []float32) {
	rows, cols := d.Dims()
	for i := 0; i < rows; i++ {
		row := d.RawRowView(i)
		for j := range row {
			row[j] = float64(f32s[i*cols+j])
		}
	}
}

func writeDense(w io.Writer, m mat.Matrix) error {
	rows, cols := m.Dims()
	f32s := make([]float32, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			f32s = append(f32s, float32(m.At(i, j)))
		}
	}
	return binary.Write(w, binary.LittleEndian, f32s)
}
