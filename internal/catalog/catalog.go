package catalog

import (
	"errors"
	"fmt"
	"slices"
)

type pair struct {
	from Format
	to   Format
}

type domainIndex struct {
	edges   []Edge
	from    map[Format][]int
	pairs   map[pair]int
	formats []Format
	known   map[Format]struct{}
}

// Catalog is a read-only, per-domain index of declared edges.
type Catalog struct {
	order   []Domain
	domains map[Domain]*domainIndex
}

// New indexes edges per domain, keeping declaration order for neighbours.
func New(edges []Edge) (*Catalog, error) {
	c := &Catalog{domains: make(map[Domain]*domainIndex)}
	for i, e := range edges {
		if err := checkEdge(e); err != nil {
			return nil, fmt.Errorf("catalog edge %d: %w", i, err)
		}
		idx, ok := c.domains[e.Domain]
		if !ok {
			idx = &domainIndex{
				from:  make(map[Format][]int),
				pairs: make(map[pair]int),
				known: make(map[Format]struct{}),
			}
			c.domains[e.Domain] = idx
			c.order = append(c.order, e.Domain)
		}
		key := pair{e.From, e.To}
		if _, dup := idx.pairs[key]; dup {
			return nil, fmt.Errorf("catalog edge %d: duplicate %s", i, e)
		}
		idx.pairs[key] = len(idx.edges)
		idx.from[e.From] = append(idx.from[e.From], len(idx.edges))
		idx.edges = append(idx.edges, e)
		idx.addFormat(e.From)
		idx.addFormat(e.To)
	}
	return c, nil
}

// MustNew is New for static tables; it panics on an invalid table.
func MustNew(edges []Edge) *Catalog {
	c, err := New(edges)
	if err != nil {
		panic(err)
	}
	return c
}

func checkEdge(e Edge) error {
	switch {
	case e.Domain == "":
		return errors.New("missing domain")
	case e.From == "" || e.To == "":
		return fmt.Errorf("%s: missing format", e)
	case e.From == e.To:
		return fmt.Errorf("%s: self edge", e)
	case !e.Quality.Valid():
		return fmt.Errorf("%s: invalid quality tier %d", e, int(e.Quality))
	case e.Method == "":
		return fmt.Errorf("%s: missing method", e)
	}
	return nil
}

func (idx *domainIndex) addFormat(f Format) {
	if _, ok := idx.known[f]; ok {
		return
	}
	idx.known[f] = struct{}{}
	idx.formats = append(idx.formats, f)
}

// EdgesFrom returns the edges leaving from in declaration order.
func (c *Catalog) EdgesFrom(domain Domain, from Format) []Edge {
	idx, ok := c.domains[domain]
	if !ok {
		return nil
	}
	positions := idx.from[from]
	out := make([]Edge, 0, len(positions))
	for _, p := range positions {
		out = append(out, idx.edges[p])
	}
	return out
}

// Edge looks up the direct edge from -> to.
func (c *Catalog) Edge(domain Domain, from, to Format) (Edge, bool) {
	idx, ok := c.domains[domain]
	if !ok {
		return Edge{}, false
	}
	p, ok := idx.pairs[pair{from, to}]
	if !ok {
		return Edge{}, false
	}
	return idx.edges[p], true
}

// HasDomain reports whether any edge was declared for domain.
func (c *Catalog) HasDomain(domain Domain) bool {
	_, ok := c.domains[domain]
	return ok
}

// HasFormat reports whether f appears on either end of an edge in domain.
func (c *Catalog) HasFormat(domain Domain, f Format) bool {
	idx, ok := c.domains[domain]
	if !ok {
		return false
	}
	_, ok = idx.known[f]
	return ok
}

// Formats lists the formats of domain in first-declared order.
func (c *Catalog) Formats(domain Domain) []Format {
	idx, ok := c.domains[domain]
	if !ok {
		return nil
	}
	return slices.Clone(idx.formats)
}

// Edges lists every edge of domain in declaration order.
func (c *Catalog) Edges(domain Domain) []Edge {
	idx, ok := c.domains[domain]
	if !ok {
		return nil
	}
	return slices.Clone(idx.edges)
}

// Domains lists domains in the order their first edge was declared. The
// order doubles as precedence when a domain has to be inferred.
func (c *Catalog) Domains() []Domain {
	return slices.Clone(c.order)
}

// DomainsWith lists, in precedence order, the domains declaring both formats.
func (c *Catalog) DomainsWith(from, to Format) []Domain {
	var out []Domain
	for _, d := range c.order {
		if c.HasFormat(d, from) && c.HasFormat(d, to) {
			out = append(out, d)
		}
	}
	return out
}
