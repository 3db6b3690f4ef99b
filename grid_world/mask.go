package grid_world

import (
	"gonum.org/v1/gonum/mat"
)

// A mask is a full-board occupancy matrix: 1 where some character occupies a cell, 0 elsewhere.
// Masks are plain gonum dense matrices so that drape updates can be written as matrix arithmetic.

// NewMask returns an empty rows x cols mask.
func NewMask(rows, cols int) *mat.Dense {
	return mat.NewDense(rows, cols, nil)
}

// MaskOf returns the occupancy mask of @char in the passed art.
// Note there is no error checking on the art; AsciiArtToGame validates it beforehand.
func MaskOf(art []string, char rune) *mat.Dense {
	rows, cols := len(art), len([]rune(art[0]))
	mask := NewMask(rows, cols)
	for i, line := range art {
		for j, c := range []rune(line) {
			if c == char {
				mask.Set(i, j, 1)
			}
		}
	}
	return mask
}

// CloneMask returns a deep copy of m.
func CloneMask(m mat.Matrix) *mat.Dense {
	return mat.DenseCopyOf(m)
}

// Roll shifts every cell of m by (dRow, dCol) with toroidal wrap: the row or column
// shifted off one edge reappears on the opposite edge. A negative dRow moves content up,
// a negative dCol moves it left.
func Roll(m mat.Matrix, dRow, dCol int) *mat.Dense {
	rows, cols := m.Dims()
	rolled := NewMask(rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			rolled.Set(wrap(i+dRow, rows), wrap(j+dCol, cols), m.At(i, j))
		}
	}
	return rolled
}

func wrap(i, n int) int {
	return ((i % n) + n) % n
}

// Overlap is the sum of the elementwise product of a and b, i.e. the number of cells
// occupied in both masks.
func Overlap(a, b mat.Matrix) float64 {
	rows, cols := a.Dims()
	product := NewMask(rows, cols)
	product.MulElem(a, b)
	return mat.Sum(product)
}

// Cardinality is the number of occupied cells of m.
func Cardinality(m mat.Matrix) float64 {
	return mat.Sum(m)
}

// Position returns the (row, col) of the first occupied cell of m, scanning rows top-down.
// The bool is false for an empty mask.
func Position(m mat.Matrix) (row, col int, ok bool) {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if m.At(i, j) != 0 {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}
