package route

import (
	"fmt"
	"slices"

	"transmute/internal/catalog"
	"transmute/internal/services"
)

// DefaultMaxHops bounds route length when no option overrides it.
const DefaultMaxHops = 2

// DefaultMaxIntermediate is the intermediate-format bound used for
// recommendations.
const DefaultMaxIntermediate = 1

// Strategy selects the search used by FindRoute.
type Strategy string

const (
	StrategyFewestHops  Strategy = "fewest_hops"
	StrategyBestQuality Strategy = "best_quality"
)

// Resolver answers route queries against a catalog. It holds no mutable
// state and is safe for concurrent use.
type Resolver struct {
	catalog  *catalog.Catalog
	maxHops  int
	strategy Strategy
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithMaxHops sets the maximum number of hops in a route. Values below one
// are ignored.
func WithMaxHops(n int) Option {
	return func(r *Resolver) {
		if n >= 1 {
			r.maxHops = n
		}
	}
}

// WithStrategy selects the search strategy. Unknown values keep fewest hops.
func WithStrategy(s Strategy) Option {
	return func(r *Resolver) {
		if s == StrategyBestQuality {
			r.strategy = s
		}
	}
}

// NewResolver constructs a resolver over cat.
func NewResolver(cat *catalog.Catalog, opts ...Option) *Resolver {
	r := &Resolver{catalog: cat, maxHops: DefaultMaxHops, strategy: StrategyFewestHops}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Catalog() *catalog.Catalog { return r.catalog }

func (r *Resolver) MaxHops() int { return r.maxHops }

func (r *Resolver) Strategy() Strategy { return r.strategy }

// FindRoute returns a route from -> to within the hop limit. Same-format
// requests always yield the trivial route. Unknown formats are not found.
func (r *Resolver) FindRoute(domain catalog.Domain, from, to catalog.Format) (Route, bool) {
	if from == to {
		return trivial(domain, from), true
	}
	if !r.catalog.HasFormat(domain, from) || !r.catalog.HasFormat(domain, to) {
		return Route{}, false
	}
	var hops []catalog.Edge
	var ok bool
	if r.strategy == StrategyBestQuality {
		hops, ok = r.bestQuality(domain, from, to)
	} else {
		hops, ok = r.breadthFirst(domain, from, to)
	}
	if !ok {
		return Route{}, false
	}
	return fromEdges(domain, from, hops), true
}

// CanConvert is FindRoute's found flag.
func (r *Resolver) CanConvert(domain catalog.Domain, from, to catalog.Format) bool {
	_, ok := r.FindRoute(domain, from, to)
	return ok
}

func (r *Resolver) breadthFirst(domain catalog.Domain, from, to catalog.Format) ([]catalog.Edge, bool) {
	type node struct {
		format catalog.Format
		depth  int
	}
	parent := map[catalog.Format]catalog.Edge{}
	visited := map[catalog.Format]bool{from: true}
	queue := []node{{format: from}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current.depth >= r.maxHops {
			continue
		}
		for _, edge := range r.catalog.EdgesFrom(domain, current.format) {
			if visited[edge.To] {
				continue
			}
			visited[edge.To] = true
			parent[edge.To] = edge
			if edge.To == to {
				return unwind(parent, from, to), true
			}
			queue = append(queue, node{format: edge.To, depth: current.depth + 1})
		}
	}
	return nil, false
}

func unwind(parent map[catalog.Format]catalog.Edge, from, to catalog.Format) []catalog.Edge {
	var hops []catalog.Edge
	for at := to; at != from; {
		edge := parent[at]
		hops = append(hops, edge)
		at = edge.From
	}
	slices.Reverse(hops)
	return hops
}

// AllRoutesBetween lists the direct edge and every simple route through up
// to maxIntermediate intermediate formats. Direct routes come first, then
// higher quality, then fewer hops; remaining ties keep declaration order.
func (r *Resolver) AllRoutesBetween(domain catalog.Domain, from, to catalog.Format, maxIntermediate int) []Route {
	if from == to {
		return []Route{trivial(domain, from)}
	}
	if !r.catalog.HasFormat(domain, from) || !r.catalog.HasFormat(domain, to) {
		return nil
	}
	maxIntermediate = max(maxIntermediate, 0)

	var routes []Route
	path := []catalog.Edge{}
	onPath := map[catalog.Format]bool{from: true}
	var walk func(at catalog.Format)
	walk = func(at catalog.Format) {
		for _, edge := range r.catalog.EdgesFrom(domain, at) {
			if onPath[edge.To] {
				continue
			}
			path = append(path, edge)
			if edge.To == to {
				routes = append(routes, fromEdges(domain, from, slices.Clone(path)))
			} else if len(path) <= maxIntermediate {
				onPath[edge.To] = true
				walk(edge.To)
				delete(onPath, edge.To)
			}
			path = path[:len(path)-1]
		}
	}
	walk(from)

	slices.SortStableFunc(routes, func(a, b Route) int {
		aDirect, bDirect := a.HopCount() == 1, b.HopCount() == 1
		switch {
		case aDirect && !bDirect:
			return -1
		case bDirect && !aDirect:
			return 1
		case a.Weight > b.Weight:
			return -1
		case a.Weight < b.Weight:
			return 1
		default:
			return a.HopCount() - b.HopCount()
		}
	})
	return routes
}

// Validate reports a validation error when domain or either format is unknown
// to the catalog.
func (r *Resolver) Validate(domain catalog.Domain, from, to catalog.Format) error {
	if !r.catalog.HasDomain(domain) {
		return services.Wrap(services.ErrValidation, "route", "validate", fmt.Sprintf("unknown domain %q", domain), nil)
	}
	for _, f := range []catalog.Format{from, to} {
		if f == "" {
			return services.Wrap(services.ErrValidation, "route", "validate", "format is required", nil)
		}
		if !r.catalog.HasFormat(domain, f) {
			return services.Wrap(services.ErrValidation, "route", "validate", fmt.Sprintf("format %q is not known in domain %s", f, domain), nil)
		}
	}
	return nil
}

// Reachable lists formats reachable from `from` within the hop limit, in
// breadth-first discovery order.
func (r *Resolver) Reachable(domain catalog.Domain, from catalog.Format) []catalog.Format {
	type node struct {
		format catalog.Format
		depth  int
	}
	visited := map[catalog.Format]bool{from: true}
	queue := []node{{format: from}}
	var out []catalog.Format
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current.depth >= r.maxHops {
			continue
		}
		for _, edge := range r.catalog.EdgesFrom(domain, current.format) {
			if visited[edge.To] {
				continue
			}
			visited[edge.To] = true
			out = append(out, edge.To)
			queue = append(queue, node{format: edge.To, depth: current.depth + 1})
		}
	}
	return out
}

// InferDomain picks the domain for a request that did not name one: the
// domain with the shortest route wins, ties go to catalog precedence. When no
// domain can convert, the first domain knowing both formats is returned so
// the caller can report alternatives.
func (r *Resolver) InferDomain(from, to catalog.Format) (catalog.Domain, bool) {
	candidates := r.catalog.DomainsWith(from, to)
	if len(candidates) == 0 {
		return "", false
	}
	best, bestHops := candidates[0], -1
	for _, d := range candidates {
		found, ok := r.FindRoute(d, from, to)
		if !ok {
			continue
		}
		if bestHops < 0 || found.HopCount() < bestHops {
			best, bestHops = d, found.HopCount()
		}
	}
	return best, true
}
