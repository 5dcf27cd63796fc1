package route

import (
	"strings"

	"transmute/internal/catalog"
)

// Route is an ordered sequence of formats where every consecutive pair is a
// declared edge. A one-element route is the trivial same-format route.
// Routes are values built fresh for every lookup; callers must not modify the
// slices.
type Route struct {
	Domain  catalog.Domain      `json:"domain"`
	Formats []catalog.Format    `json:"formats"`
	Hops    []catalog.Edge      `json:"hops"`
	Weight  float64             `json:"weight"`
	Quality catalog.QualityTier `json:"quality"`
}

func trivial(domain catalog.Domain, f catalog.Format) Route {
	return Route{
		Domain:  domain,
		Formats: []catalog.Format{f},
		Weight:  1,
		Quality: catalog.Excellent,
	}
}

// fromEdges builds a route from a chain of edges starting at from.
func fromEdges(domain catalog.Domain, from catalog.Format, hops []catalog.Edge) Route {
	formats := make([]catalog.Format, 0, len(hops)+1)
	formats = append(formats, from)
	weight := 1.0
	for _, hop := range hops {
		formats = append(formats, hop.To)
		weight *= hop.Quality.Weight()
	}
	return Route{
		Domain:  domain,
		Formats: formats,
		Hops:    hops,
		Weight:  weight,
		Quality: catalog.TierForWeight(weight),
	}
}

func (r Route) Source() catalog.Format {
	if len(r.Formats) == 0 {
		return ""
	}
	return r.Formats[0]
}

func (r Route) Target() catalog.Format {
	if len(r.Formats) == 0 {
		return ""
	}
	return r.Formats[len(r.Formats)-1]
}

func (r Route) HopCount() int { return len(r.Hops) }

// IsTrivial reports a same-format route that needs no execution step.
func (r Route) IsTrivial() bool { return len(r.Hops) == 0 }

// Methods lists the recommended method of each hop.
func (r Route) Methods() []catalog.Method {
	out := make([]catalog.Method, len(r.Hops))
	for i, hop := range r.Hops {
		out[i] = hop.Method
	}
	return out
}

// PreservesMetadata is true only when every hop keeps metadata.
func (r Route) PreservesMetadata() bool {
	for _, hop := range r.Hops {
		if !hop.PreservesMetadata {
			return false
		}
	}
	return true
}

func (r Route) String() string {
	parts := make([]string, len(r.Formats))
	for i, f := range r.Formats {
		parts[i] = string(f)
	}
	return strings.Join(parts, " -> ")
}
