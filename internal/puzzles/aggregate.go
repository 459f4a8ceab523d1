// Package puzzles merges the local puzzle catalog with catalogs fetched
// live from federation peers, repairing and validating the untrusted
// foreign data along the way.
package puzzles

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/puzzlefed/puzzlefed/internal/config"
	"github.com/puzzlefed/puzzlefed/internal/store"
)

// Aggregation defaults. Malformed offset/limit values fall back to these
// rather than erroring.
const (
	DefaultOffset = 0
	DefaultLimit  = 256
)

var (
	defaultDifficulties = []int{0, 1, 2, 3}
	defaultRatings      = []int{0, 1, 2, 3, 4, 5}
)

// Catalog is the slice of the storage layer the aggregator reads.
type Catalog interface {
	ListLocalPuzzles(ctx context.Context, difficulties, ratings []int, username string) ([]store.LocalPuzzle, error)
}

// Filters are the caller's listing constraints. A nil Group means
// "federate across everyone"; our own group means local only.
type Filters struct {
	Difficulties []int
	Ratings      []int
	Group        *int
	Username     string
	AllTypes     bool
	Offset       int
	Limit        int
}

// Aggregator answers puzzle listing queries by fanning out to peers and
// merging their contributions with the local catalog. One slow or broken
// peer never fails the overall response.
type Aggregator struct {
	own     int
	peers   []config.Peer
	catalog Catalog
	h       *http.Client
	logger  *slog.Logger
}

// NewAggregator builds an aggregator for the given own group id and
// foreign peer list.
func NewAggregator(own int, peers []config.Peer, catalog Catalog, h *http.Client, logger *slog.Logger) *Aggregator {
	foreign := make([]config.Peer, 0, len(peers))
	for _, p := range peers {
		if p.GroupNo != own {
			foreign = append(foreign, p)
		}
	}

	return &Aggregator{
		own:     own,
		peers:   foreign,
		catalog: catalog,
		h:       h,
		logger:  logger,
	}
}

// List resolves a filtered listing across the federation. Results preserve
// each source's own internal ordering; cross-source ordering is local
// first, then peers in configuration order.
func (a *Aggregator) List(ctx context.Context, f Filters) ([]ForeignPuzzle, error) {
	difficulties := f.Difficulties
	if len(difficulties) == 0 {
		difficulties = defaultDifficulties
	}
	ratings := f.Ratings
	if len(ratings) == 0 {
		ratings = defaultRatings
	}

	var merged []ForeignPuzzle

	switch {
	case f.Group != nil && *f.Group != a.own && *f.Group >= 10 && *f.Group <= 19:
		merged = a.fetchGroup(ctx, *f.Group, difficulties, ratings)

	case f.Group != nil:
		local, err := a.localPuzzles(ctx, difficulties, ratings, f.Username)
		if err != nil {
			return nil, err
		}
		merged = local

	default:
		local, err := a.localPuzzles(ctx, difficulties, ratings, f.Username)
		if err != nil {
			return nil, err
		}
		merged = append(local, a.fetchAll(ctx, difficulties, ratings)...)
	}

	if !f.AllTypes {
		kept := merged[:0]
		for _, p := range merged {
			if p.Type == "sudoku" {
				kept = append(kept, p)
			}
		}
		merged = kept
	}

	return paginate(merged, f.Offset, f.Limit), nil
}

// fetchAll queries every configured peer concurrently. Failures are logged
// and contribute nothing.
func (a *Aggregator) fetchAll(ctx context.Context, difficulties, ratings []int) []ForeignPuzzle {
	results := make([][]ForeignPuzzle, len(a.peers))

	g, ctx := errgroup.WithContext(ctx)
	for i, peer := range a.peers {
		i, peer := i, peer
		g.Go(func() error {
			list, err := a.fetchPeer(ctx, peer, difficulties, ratings)
			if err != nil {
				a.logger.Warn("peer puzzle fetch failed", "group", peer.GroupNo, "err", err)
				return nil
			}
			results[i] = list
			return nil
		})
	}
	g.Wait()

	var out []ForeignPuzzle
	for _, list := range results {
		out = append(out, list...)
	}
	return out
}

func (a *Aggregator) fetchGroup(ctx context.Context, group int, difficulties, ratings []int) []ForeignPuzzle {
	for _, peer := range a.peers {
		if peer.GroupNo == group {
			list, err := a.fetchPeer(ctx, peer, difficulties, ratings)
			if err != nil {
				a.logger.Warn("peer puzzle fetch failed", "group", group, "err", err)
				return nil
			}
			return list
		}
	}

	a.logger.Warn("no peer configured for requested group", "group", group)
	return nil
}

// fetchPeer pulls one peer's listing and keeps only puzzles that are
// standard 9x9, structurally legal and repairable.
func (a *Aggregator) fetchPeer(ctx context.Context, peer config.Peer, difficulties, ratings []int) ([]ForeignPuzzle, error) {
	q := url.Values{}
	for _, d := range difficulties {
		q.Add("difficulty", strconv.Itoa(d))
	}
	for _, r := range ratings {
		q.Add("ratings", strconv.Itoa(r))
	}

	reqURL := fmt.Sprintf("%s/fedapi/sudoku?%s", peer.BaseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating puzzle listing request: %w", err)
	}

	resp, err := a.h.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not get response from peer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("peer responded with status %d", resp.StatusCode)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read peer response: %w", err)
	}

	raws, err := decodePuzzleList(b)
	if err != nil {
		return nil, err
	}

	out := make([]ForeignPuzzle, 0, len(raws))
	for _, raw := range raws {
		grid := raw.grid()
		if !IsStandard(grid) || !Valid(grid) {
			continue
		}
		p, err := Repair(raw)
		if err != nil {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

// decodePuzzleList tolerates peers that respond with a single puzzle
// object instead of a list, and drops individual puzzles that don't
// decode rather than failing the whole contribution.
func decodePuzzleList(b []byte) ([]RawPuzzle, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		items = []json.RawMessage{b}
	}

	raws := make([]RawPuzzle, 0, len(items))
	for _, item := range items {
		var raw RawPuzzle
		if err := json.Unmarshal(item, &raw); err != nil {
			continue
		}
		raws = append(raws, raw)
	}

	if len(raws) == 0 && len(items) > 0 {
		return nil, fmt.Errorf("peer response is not a puzzle list")
	}
	return raws, nil
}

// localPuzzles normalizes the local catalog into the federation shape,
// tagged with our own group.
func (a *Aggregator) localPuzzles(ctx context.Context, difficulties, ratings []int, username string) ([]ForeignPuzzle, error) {
	rows, err := a.catalog.ListLocalPuzzles(ctx, difficulties, ratings, username)
	if err != nil {
		return nil, fmt.Errorf("could not list local puzzles: %w", err)
	}

	out := make([]ForeignPuzzle, 0, len(rows))
	for _, row := range rows {
		var grid [][]Cell
		if err := json.Unmarshal([]byte(row.PuzzlesUnSolved), &grid); err != nil {
			a.logger.Warn("skipping local puzzle with unreadable grid", "puzzle_id", row.PuzzleID, "err", err)
			continue
		}

		out = append(out, ForeignPuzzle{
			Group:            a.own,
			SudokuID:         json.RawMessage(strconv.FormatUint(uint64(row.PuzzleID), 10)),
			Title:            row.PuzzleName,
			Difficulty:       row.DifficultyLevel,
			AuthorName:       row.Username,
			Rating:           row.AvgUserDifficulty,
			Type:             typeToString(row.PuzzleType),
			Puzzle:           grid,
			HasBeenCompleted: row.HasBeenCompleted,
		})
	}
	return out, nil
}

func paginate(list []ForeignPuzzle, offset, limit int) []ForeignPuzzle {
	if offset < 0 {
		offset = DefaultOffset
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if offset >= len(list) {
		return []ForeignPuzzle{}
	}
	end := offset + limit
	if end > len(list) {
		end = len(list)
	}
	return list[offset:end]
}
