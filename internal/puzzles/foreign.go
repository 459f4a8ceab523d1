package puzzles

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ratingScale maps the [1,5] rating scale some groups use onto our [1,3]
// scale. Applied to every foreign rating.
const ratingScale = 0.6

var (
	errNoGroup         = errors.New("puzzle has no group")
	errGroupOutOfRange = errors.New("puzzle group is outside [10,19]")
	errNoSudokuID      = errors.New("puzzle has no sudoku_id")
)

// Cell is one grid value. Peers send blanks as 0, "" or null; locally
// blanks re-serialize as "".
type Cell int

func (c Cell) MarshalJSON() ([]byte, error) {
	if c == 0 {
		return []byte(`""`), nil
	}
	return json.Marshal(int(c))
}

func (c *Cell) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch t := v.(type) {
	case nil:
		*c = 0
	case float64:
		*c = Cell(int(t))
	case string:
		if t == "" {
			*c = 0
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return fmt.Errorf("cell is not a number: %q", t)
		}
		*c = Cell(n)
	default:
		return fmt.Errorf("cell has unsupported type %T", v)
	}
	return nil
}

// FlexInt tolerates peers that send numbers as JSON strings.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch t := v.(type) {
	case float64:
		*f = FlexInt(int(t))
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return fmt.Errorf("not a number: %q", t)
		}
		*f = FlexInt(n)
	default:
		return fmt.Errorf("unsupported numeric type %T", v)
	}
	return nil
}

// RawPuzzle is a puzzle exactly as a peer sent it: every field optional,
// nothing trusted. Repair turns it into a ForeignPuzzle or rejects it.
type RawPuzzle struct {
	Group            *FlexInt        `json:"group"`
	SudokuID         json.RawMessage `json:"sudoku_id"`
	Title            *string         `json:"title"`
	Difficulty       *FlexInt        `json:"difficulty"`
	AuthorName       *string         `json:"author_name"`
	Rating           *float64        `json:"rating"`
	Type             *string         `json:"type"`
	HasBeenCompleted *FlexInt        `json:"hasBeenCompleted"`
	Puzzle           [][]Cell        `json:"puzzle"`
}

// ForeignPuzzle is the normalized shape shared across the federation.
// Transient: produced for one aggregation response and never persisted.
type ForeignPuzzle struct {
	Group            int             `json:"group"`
	SudokuID         json.RawMessage `json:"sudoku_id"`
	Title            string          `json:"title"`
	Difficulty       int             `json:"difficulty"`
	AuthorName       string          `json:"author_name"`
	Rating           int             `json:"rating"`
	Type             string          `json:"type"`
	Puzzle           [][]Cell        `json:"puzzle"`
	HasBeenCompleted int             `json:"hasBeenCompleted"`
}

// Repair validates a raw peer puzzle and fills in every recoverable field.
// A puzzle missing its group or sudoku_id cannot be fixed and is rejected;
// everything else gets a default. The input is not modified.
func Repair(raw RawPuzzle) (*ForeignPuzzle, error) {
	if raw.Group == nil {
		return nil, errNoGroup
	}
	group := int(*raw.Group)
	if group < 10 || group > 19 {
		return nil, errGroupOutOfRange
	}

	if len(raw.SudokuID) == 0 || string(raw.SudokuID) == "null" {
		return nil, errNoSudokuID
	}

	p := &ForeignPuzzle{
		Group:      group,
		SudokuID:   raw.SudokuID,
		Title:      "ANON",
		AuthorName: "some person",
		Type:       "sudoku",
		Puzzle:     raw.Puzzle,
	}

	if raw.Title != nil {
		p.Title = *raw.Title
	}
	if raw.Difficulty != nil {
		p.Difficulty = int(*raw.Difficulty)
	}
	if raw.AuthorName != nil {
		p.AuthorName = *raw.AuthorName
	}
	if raw.Rating != nil {
		p.Rating = int(math.Round(*raw.Rating * ratingScale))
	}
	if raw.HasBeenCompleted != nil {
		p.HasBeenCompleted = int(*raw.HasBeenCompleted)
	}
	// Some groups label their plain 9x9 sudokus "traditional".
	if raw.Type != nil && *raw.Type != "traditional" {
		p.Type = *raw.Type
	}

	return p, nil
}

// grid converts the raw cells for structural validation.
func (raw RawPuzzle) grid() Grid {
	g := make(Grid, len(raw.Puzzle))
	for i, row := range raw.Puzzle {
		g[i] = make([]int, len(row))
		for j, cell := range row {
			g[i][j] = int(cell)
		}
	}
	return g
}

func typeToString(t int) string {
	switch t {
	case 1:
		return "sudoku"
	case 2:
		return "sudoku variant"
	case 3:
		return "lights out"
	default:
		return "unknown"
	}
}
