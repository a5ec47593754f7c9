package core

import "fmt"

// Grid is a rectangular matrix of small integers (cell colors 0-9).
type Grid [][]int

// Equal reports cell-by-cell equality with another grid.
func (g Grid) Equal(other Grid) bool {
	if len(g) != len(other) {
		return false
	}
	for i := range g {
		if len(g[i]) != len(other[i]) {
			return false
		}
		for j := range g[i] {
			if g[i][j] != other[i][j] {
				return false
			}
		}
	}
	return true
}

// Dims returns the number of rows and columns. A ragged or empty grid
// reports cols from its first row.
func (g Grid) Dims() (rows, cols int) {
	rows = len(g)
	if rows > 0 {
		cols = len(g[0])
	}
	return rows, cols
}

// Validate checks that the grid is non-empty and rectangular.
func (g Grid) Validate() error {
	if len(g) == 0 {
		return ErrValidation(CodeEmptyGrid, "grid has no rows")
	}
	width := len(g[0])
	if width == 0 {
		return ErrValidation(CodeEmptyGrid, "grid has empty rows")
	}
	for i, row := range g {
		if len(row) != width {
			return ErrValidation(CodeRaggedGrid,
				fmt.Sprintf("row %d has %d cells, expected %d", i, len(row), width))
		}
	}
	return nil
}

// Pair is one input/output example.
type Pair struct {
	Input  Grid `json:"input"`
	Output Grid `json:"output,omitempty"`
}

// Puzzle is a grid-transformation task: training pairs demonstrating the
// rule and one or more test cases requiring predicted outputs.
type Puzzle struct {
	ID    string `json:"id"`
	Train []Pair `json:"train"`
	Test  []Pair `json:"test"`
}

// Validate checks structural integrity of the puzzle definition.
func (p *Puzzle) Validate() error {
	if p.ID == "" {
		return ErrValidation(CodeInvalidPuzzle, "puzzle id is empty")
	}
	if len(p.Train) == 0 {
		return ErrValidation(CodeInvalidPuzzle, "puzzle has no training pairs")
	}
	if len(p.Test) == 0 {
		return ErrValidation(CodeInvalidPuzzle, "puzzle has no test cases")
	}
	for i, pair := range p.Train {
		if err := pair.Input.Validate(); err != nil {
			return ErrValidation(CodeInvalidPuzzle, fmt.Sprintf("train[%d] input: %v", i, err))
		}
		if err := pair.Output.Validate(); err != nil {
			return ErrValidation(CodeInvalidPuzzle, fmt.Sprintf("train[%d] output: %v", i, err))
		}
	}
	for i, pair := range p.Test {
		if err := pair.Input.Validate(); err != nil {
			return ErrValidation(CodeInvalidPuzzle, fmt.Sprintf("test[%d] input: %v", i, err))
		}
	}
	return nil
}

// ExpectedOutputs returns the ground-truth output grid for each test case,
// in test order.
func (p *Puzzle) ExpectedOutputs() []Grid {
	outputs := make([]Grid, 0, len(p.Test))
	for _, pair := range p.Test {
		outputs = append(outputs, pair.Output)
	}
	return outputs
}
