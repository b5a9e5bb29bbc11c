// Package simd holds the row kernels the model applies to activation rows.
// They operate in place on []float64 slices taken from gonum matrices.
package simd

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// DotProduct computes the dot product of two float64 vectors
func DotProduct(a, b []float64) float64 {
	return floats.Dot(a, b)
}

// VecAdd performs dst += src for float64 vectors
func VecAdd(dst, src []float64) {
	floats.Add(dst, src)
}

// VecAddScaled performs dst += src * scale for float64 vectors
func VecAddScaled(dst, src []float64, scale float64) {
	floats.AddScaled(dst, scale, src)
}

// VecMul performs the element-wise product dst *= src.
func VecMul(dst, src []float64) {
	floats.Mul(dst, src)
}

// Sigmoid applies the logistic function in-place.
// Negative inputs take the exp(x)/(1+exp(x)) branch so large magnitudes
// never overflow.
func Sigmoid(data []float64) {
	for i, x := range data {
		if x >= 0 {
			data[i] = 1 / (1 + math.Exp(-x))
		} else {
			e := math.Exp(x)
			data[i] = e / (1 + e)
		}
	}
}

// Tanh applies tanh in-place.
func Tanh(data []float64) {
	for i, x := range data {
		data[i] = math.Tanh(x)
	}
}

// Relu clamps negative values to zero in-place.
func Relu(data []float64) {
	for i, x := range data {
		if x < 0 {
			data[i] = 0
		}
	}
}

// SoftmaxStable applies softmax in-place to a row, subtracting the row
// maximum before exponentiating.
func SoftmaxStable(row []float64) {
	if len(row) == 0 {
		return
	}
	max := floats.Max(row)

	var sum float64
	for i, v := range row {
		row[i] = math.Exp(v - max)
		sum += row[i]
	}

	floats.Scale(1/sum, row)
}

// MaxIdx returns the index of the largest value. Ties resolve to the first
// occurrence.
func MaxIdx(row []float64) int {
	return floats.MaxIdx(row)
}
