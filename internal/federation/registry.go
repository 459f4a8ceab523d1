package federation

import (
	"sort"

	"github.com/puzzlefed/puzzlefed/internal/config"
)

// Federation group ids are small integers in this range.
const (
	GroupMin = 10
	GroupMax = 19
)

func ValidGroupNo(n int) bool {
	return n >= GroupMin && n <= GroupMax
}

// Registry is the static peer configuration, immutable after boot. It
// includes our own group's entry; that entry's secret is the credential we
// present when exchanging grants with peers.
type Registry struct {
	own   int
	peers map[int]config.Peer
}

func NewRegistry(own int, peers []config.Peer) *Registry {
	m := make(map[int]config.Peer, len(peers))
	for _, p := range peers {
		m[p.GroupNo] = p
	}
	return &Registry{own: own, peers: m}
}

func (r *Registry) OwnGroup() int {
	return r.own
}

func (r *Registry) Own() config.Peer {
	return r.peers[r.own]
}

func (r *Registry) Lookup(group int) (config.Peer, bool) {
	p, ok := r.peers[group]
	return p, ok
}

// Foreign returns every configured peer except ourselves, in group order.
func (r *Registry) Foreign() []config.Peer {
	out := make([]config.Peer, 0, len(r.peers))
	for g, p := range r.peers {
		if g != r.own {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupNo < out[j].GroupNo })
	return out
}
