package puzzles

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puzzlefed/puzzlefed/internal/config"
	"github.com/puzzlefed/puzzlefed/internal/store"
)

type fakeCatalog struct {
	rows         []store.LocalPuzzle
	lastUsername string
}

func (f *fakeCatalog) ListLocalPuzzles(ctx context.Context, difficulties, ratings []int, username string) ([]store.LocalPuzzle, error) {
	f.lastUsername = username
	return f.rows, nil
}

// legalGrid is a partially filled but valid 9x9 board.
func legalGrid() [][]int {
	g := make([][]int, 9)
	for i := range g {
		g[i] = make([]int, 9)
	}
	g[0] = []int{1, 2, 3, 4, 5, 6, 7, 8, 9}
	return g
}

func peerPuzzle(group, id int, overrides map[string]any) map[string]any {
	p := map[string]any{
		"group":     group,
		"sudoku_id": id,
		"title":     fmt.Sprintf("puzzle-%d", id),
		"type":      "sudoku",
		"puzzle":    legalGrid(),
	}
	for k, v := range overrides {
		p[k] = v
	}
	return p
}

func servePuzzles(t *testing.T, body any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(body))
	}))
}

func newAggregator(catalog Catalog, peers ...config.Peer) *Aggregator {
	return NewAggregator(19, peers, catalog, http.DefaultClient, slog.Default())
}

func TestAggregationResilience(t *testing.T) {
	peerA := servePuzzles(t, []any{peerPuzzle(11, 1, nil)})
	defer peerA.Close()

	peerB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer peerB.Close()

	peerC := servePuzzles(t, []any{peerPuzzle(13, 3, nil)})
	defer peerC.Close()

	a := newAggregator(&fakeCatalog{},
		config.Peer{GroupNo: 11, Secret: "a", BaseURL: peerA.URL},
		config.Peer{GroupNo: 12, Secret: "b", BaseURL: peerB.URL},
		config.Peer{GroupNo: 13, Secret: "c", BaseURL: peerC.URL},
	)

	list, err := a.List(context.Background(), Filters{})
	require.NoError(t, err, "one broken peer must not fail the aggregation")

	groups := make([]int, 0, len(list))
	for _, p := range list {
		groups = append(groups, p.Group)
	}
	assert.Equal(t, []int{11, 13}, groups)
}

func TestAggregatorSinglePeerFilter(t *testing.T) {
	peerA := servePuzzles(t, []any{peerPuzzle(11, 1, nil)})
	defer peerA.Close()

	catalog := &fakeCatalog{rows: []store.LocalPuzzle{localRow(5)}}
	a := newAggregator(catalog, config.Peer{GroupNo: 11, Secret: "a", BaseURL: peerA.URL})

	group := 11
	list, err := a.List(context.Background(), Filters{Group: &group})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 11, list[0].Group, "a foreign group filter must exclude local rows")
}

func localRow(id uint) store.LocalPuzzle {
	grid, _ := json.Marshal(legalGrid())
	return store.LocalPuzzle{
		PuzzleID:          id,
		PuzzleType:        1,
		PuzzleName:        "local one",
		DifficultyLevel:   2,
		AvgUserDifficulty: 3,
		PuzzlesUnSolved:   string(grid),
		Username:          "alice",
	}
}

func TestAggregatorLocalOnly(t *testing.T) {
	catalog := &fakeCatalog{rows: []store.LocalPuzzle{localRow(5)}}
	a := newAggregator(catalog)

	own := 19
	list, err := a.List(context.Background(), Filters{Group: &own, Username: "alice"})
	require.NoError(t, err)
	require.Len(t, list, 1)

	p := list[0]
	assert.Equal(t, 19, p.Group)
	assert.Equal(t, json.RawMessage("5"), p.SudokuID)
	assert.Equal(t, "local one", p.Title)
	assert.Equal(t, "alice", p.AuthorName)
	assert.Equal(t, 2, p.Difficulty)
	assert.Equal(t, 3, p.Rating)
	assert.Equal(t, "sudoku", p.Type)
	assert.Equal(t, "alice", catalog.lastUsername)
}

func TestAggregatorAcceptsSinglePuzzleObject(t *testing.T) {
	peer := servePuzzles(t, peerPuzzle(11, 9, nil))
	defer peer.Close()

	a := newAggregator(&fakeCatalog{}, config.Peer{GroupNo: 11, Secret: "a", BaseURL: peer.URL})

	group := 11
	list, err := a.List(context.Background(), Filters{Group: &group})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAggregatorDropsInvalidForeignPuzzles(t *testing.T) {
	badGrid := legalGrid()
	badGrid[4][0] = 5
	badGrid[4][8] = 5

	noID := peerPuzzle(11, 0, nil)
	delete(noID, "sudoku_id")

	peer := servePuzzles(t, []any{
		peerPuzzle(11, 1, nil),
		peerPuzzle(11, 2, map[string]any{"puzzle": badGrid}),
		noID,
		peerPuzzle(11, 4, map[string]any{"puzzle": [][]int{{1, 2}, {3, 4}}}),
	})
	defer peer.Close()

	a := newAggregator(&fakeCatalog{}, config.Peer{GroupNo: 11, Secret: "a", BaseURL: peer.URL})

	group := 11
	list, err := a.List(context.Background(), Filters{Group: &group})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, json.RawMessage("1"), list[0].SudokuID)
}

func TestAggregatorTypeFilter(t *testing.T) {
	peer := servePuzzles(t, []any{
		peerPuzzle(11, 1, nil),
		peerPuzzle(11, 2, map[string]any{"type": "lights out"}),
	})
	defer peer.Close()

	a := newAggregator(&fakeCatalog{}, config.Peer{GroupNo: 11, Secret: "a", BaseURL: peer.URL})
	group := 11

	list, err := a.List(context.Background(), Filters{Group: &group})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "sudoku", list[0].Type)

	list, err = a.List(context.Background(), Filters{Group: &group, AllTypes: true})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestAggregatorPagination(t *testing.T) {
	var body []any
	for i := 1; i <= 5; i++ {
		body = append(body, peerPuzzle(11, i, nil))
	}
	peer := servePuzzles(t, body)
	defer peer.Close()

	a := newAggregator(&fakeCatalog{}, config.Peer{GroupNo: 11, Secret: "a", BaseURL: peer.URL})
	group := 11

	list, err := a.List(context.Background(), Filters{Group: &group, Offset: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, json.RawMessage("2"), list[0].SudokuID)
	assert.Equal(t, json.RawMessage("3"), list[1].SudokuID)

	list, err = a.List(context.Background(), Filters{Group: &group, Offset: 10, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, list)
}
