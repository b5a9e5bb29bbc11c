package device

import "gonum.org/v1/gonum/mat"

// Backend creates matrices and manages scratch memory for the model.
// All matrices are row-major gonum Dense values; a (batch, seq, width)
// activation is stored as batch*seq rows.
type Backend interface {
	Name() string

	// NewMatrix allocates an r×c matrix. When data is non-nil it is copied.
	NewMatrix(r, c int, data []float64) *mat.Dense

	// GetMatrix gets a zeroed r×c scratch matrix from the pool or creates a new one.
	GetMatrix(r, c int) *mat.Dense

	// PutMatrix returns a scratch matrix to the pool. The caller must not
	// touch m afterwards.
	PutMatrix(m *mat.Dense)
}
