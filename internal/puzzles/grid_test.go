package puzzles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func emptyGrid(n int) Grid {
	g := make(Grid, n)
	for i := range g {
		g[i] = make([]int, n)
	}
	return g
}

func TestValidAcceptsBlankGrid(t *testing.T) {
	assert.True(t, Valid(emptyGrid(9)), "an all-blank grid is legal")
}

func TestValidRejectsRowDuplicate(t *testing.T) {
	g := emptyGrid(9)
	g[4][0] = 5
	g[4][8] = 5

	assert.False(t, Valid(g), "two 5s in one row must be rejected")
}

func TestValidRejectsColumnDuplicate(t *testing.T) {
	g := emptyGrid(9)
	g[0][3] = 7
	g[8][3] = 7

	assert.False(t, Valid(g))
}

func TestValidRejectsBoxDuplicate(t *testing.T) {
	g := emptyGrid(9)
	// Same 3x3 box, different row and column.
	g[0][0] = 2
	g[1][1] = 2

	assert.False(t, Valid(g))
}

func TestValidAcceptsPartialLegalBoard(t *testing.T) {
	g := emptyGrid(9)
	g[0] = []int{1, 2, 3, 4, 5, 6, 7, 8, 9}

	assert.True(t, Valid(g))
}

func TestValidFourByFour(t *testing.T) {
	g := emptyGrid(4)
	g[0] = []int{1, 2, 3, 4}
	assert.True(t, Valid(g))

	g[1][0] = 1 // same 2x2 box as the leading 1
	assert.False(t, Valid(g))
}

func TestValidRejectsNonSquare(t *testing.T) {
	assert.False(t, Valid(emptyGrid(5)), "5 has no integer square root")

	ragged := emptyGrid(9)
	ragged[3] = ragged[3][:8]
	assert.False(t, Valid(ragged))
}

func TestIsStandard(t *testing.T) {
	assert.True(t, IsStandard(emptyGrid(9)))
	assert.False(t, IsStandard(emptyGrid(4)))

	g := emptyGrid(9)
	g[0][0] = 10
	assert.False(t, IsStandard(g), "cells above 9 are not standard")

	g[0][0] = -1
	assert.False(t, IsStandard(g))
}
