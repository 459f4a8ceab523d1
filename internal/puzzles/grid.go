package puzzles

import "math"

// StandardSize is the only grid size accepted from peers.
const StandardSize = 9

type Grid [][]int

// IsStandard reports whether g is a 9x9 grid whose cells are all in [0,9].
// Zero means blank.
func IsStandard(g Grid) bool {
	if len(g) != StandardSize {
		return false
	}
	for _, row := range g {
		if len(row) != StandardSize {
			return false
		}
		for _, cell := range row {
			if cell < 0 || cell > StandardSize {
				return false
			}
		}
	}
	return true
}

// Valid checks an NxN grid partitioned into sqrt(N)xsqrt(N) boxes for the
// sudoku constraint: no value in [1,N] occurs more than once in any row,
// column or box. Blank (zero) cells are ignored, so partially filled but
// still-legal boards pass. It does not prove solvability.
func Valid(g Grid) bool {
	n := len(g)
	root := int(math.Sqrt(float64(n)))
	if root*root != n {
		return false
	}
	for _, row := range g {
		if len(row) != n {
			return false
		}
	}

	for _, row := range g {
		if hasDuplicate(row, n) {
			return false
		}
	}

	for col := 0; col < n; col++ {
		column := make([]int, n)
		for row := 0; row < n; row++ {
			column[row] = g[row][col]
		}
		if hasDuplicate(column, n) {
			return false
		}
	}

	for boxRow := 0; boxRow < n; boxRow += root {
		for boxCol := 0; boxCol < n; boxCol += root {
			box := make([]int, 0, n)
			for i := boxRow; i < boxRow+root; i++ {
				for j := boxCol; j < boxCol+root; j++ {
					box = append(box, g[i][j])
				}
			}
			if hasDuplicate(box, n) {
				return false
			}
		}
	}

	return true
}

func hasDuplicate(values []int, n int) bool {
	seen := make([]int, n+1)
	for _, v := range values {
		if v >= 1 && v <= n {
			seen[v]++
			if seen[v] > 1 {
				return true
			}
		}
	}
	return false
}
