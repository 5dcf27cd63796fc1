package route

import (
	"container/heap"

	"transmute/internal/catalog"
)

type state struct {
	format catalog.Format
	hops   int
}

type candidate struct {
	state
	weight float64
	seq    int
	edge   catalog.Edge
	prev   *candidate
}

type frontier []*candidate

func (f frontier) Len() int { return len(f) }

func (f frontier) Less(i, j int) bool {
	a, b := f[i], f[j]
	if a.weight != b.weight {
		return a.weight > b.weight
	}
	if a.hops != b.hops {
		return a.hops < b.hops
	}
	return a.seq < b.seq
}

func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }

func (f *frontier) Push(x any) { *f = append(*f, x.(*candidate)) }

func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*f = old[:n-1]
	return item
}

// bestQuality searches for the route with the highest cumulative weight.
// Hop weights never exceed 1, so a route's weight can only fall as it grows
// and the first time the target leaves the queue it is optimal. Ties prefer
// fewer hops, then declaration order.
func (r *Resolver) bestQuality(domain catalog.Domain, from, to catalog.Format) ([]catalog.Edge, bool) {
	settled := map[state]bool{}
	seq := 0
	queue := &frontier{{state: state{format: from}, weight: 1}}

	for queue.Len() > 0 {
		current := heap.Pop(queue).(*candidate)
		if settled[current.state] {
			continue
		}
		settled[current.state] = true
		if current.format == to {
			var hops []catalog.Edge
			for c := current; c.prev != nil; c = c.prev {
				hops = append([]catalog.Edge{c.edge}, hops...)
			}
			return hops, true
		}
		if current.hops >= r.maxHops {
			continue
		}
		for _, edge := range r.catalog.EdgesFrom(domain, current.format) {
			if edge.To == from {
				continue
			}
			next := state{format: edge.To, hops: current.hops + 1}
			if settled[next] {
				continue
			}
			seq++
			heap.Push(queue, &candidate{
				state:  next,
				weight: current.weight * edge.Quality.Weight(),
				seq:    seq,
				edge:   edge,
				prev:   current,
			})
		}
	}
	return nil, false
}
