package route_test

import (
	"errors"
	"math"
	"testing"

	"transmute/internal/catalog"
	"transmute/internal/route"
	"transmute/internal/services"
)

func edge(domain catalog.Domain, from, to catalog.Format, q catalog.QualityTier) catalog.Edge {
	return catalog.Edge{Domain: domain, From: from, To: to, Quality: q, Method: catalog.MethodFFmpeg}
}

func TestEveryDeclaredEdgeIsADirectRoute(t *testing.T) {
	cat := catalog.Default()
	resolver := route.NewResolver(cat)
	for _, domain := range cat.Domains() {
		for _, e := range cat.Edges(domain) {
			r, ok := resolver.FindRoute(domain, e.From, e.To)
			if !ok {
				t.Fatalf("%s: expected route", e)
			}
			if r.HopCount() != 1 || r.Source() != e.From || r.Target() != e.To {
				t.Fatalf("%s: expected direct route, got %s", e, r)
			}
			if r.Quality != e.Quality {
				t.Fatalf("%s: route quality %s, edge quality %s", e, r.Quality, e.Quality)
			}
			if r.Hops[0].Method != e.Method {
				t.Fatalf("%s: method %s, want %s", e, r.Hops[0].Method, e.Method)
			}
		}
	}
}

func TestTrivialRouteRegardlessOfCatalog(t *testing.T) {
	empty := catalog.MustNew(nil)
	resolver := route.NewResolver(empty)
	r, ok := resolver.FindRoute(catalog.DomainEbook, "epub", "epub")
	if !ok {
		t.Fatal("expected trivial route")
	}
	if !r.IsTrivial() || len(r.Formats) != 1 || r.Quality != catalog.Excellent {
		t.Fatalf("unexpected trivial route %+v", r)
	}
	if !resolver.CanConvert(catalog.DomainEbook, "epub", "epub") {
		t.Fatal("CanConvert must agree with FindRoute")
	}
}

func TestOneIntermediateRouteQuality(t *testing.T) {
	cat := catalog.MustNew([]catalog.Edge{
		edge(catalog.DomainVideo, "a", "i", catalog.Good),
		edge(catalog.DomainVideo, "i", "b", catalog.Fair),
	})
	r, ok := route.NewResolver(cat).FindRoute(catalog.DomainVideo, "a", "b")
	if !ok {
		t.Fatal("expected route through intermediate")
	}
	if r.String() != "a -> i -> b" {
		t.Fatalf("unexpected route %s", r)
	}
	if math.Abs(r.Weight-0.48) > 1e-9 {
		t.Fatalf("unexpected weight %v", r.Weight)
	}
	if r.Quality != catalog.TierForWeight(0.8*0.6) || r.Quality != catalog.Poor {
		t.Fatalf("unexpected quality %s", r.Quality)
	}
}

func TestFewestHopsWinsOverQualityByDefault(t *testing.T) {
	cat := catalog.MustNew([]catalog.Edge{
		edge(catalog.DomainGeneric, "a", "x", catalog.Excellent),
		edge(catalog.DomainGeneric, "x", "b", catalog.Excellent),
		edge(catalog.DomainGeneric, "a", "b", catalog.Poor),
	})
	r, ok := route.NewResolver(cat).FindRoute(catalog.DomainGeneric, "a", "b")
	if !ok || r.HopCount() != 1 || r.Quality != catalog.Poor {
		t.Fatalf("expected direct poor route, got %s (%s)", r, r.Quality)
	}

	best := route.NewResolver(cat, route.WithStrategy(route.StrategyBestQuality))
	r, ok = best.FindRoute(catalog.DomainGeneric, "a", "b")
	if !ok || r.String() != "a -> x -> b" || r.Quality != catalog.Excellent {
		t.Fatalf("expected excellent two-hop route, got %s (%s)", r, r.Quality)
	}
}

func TestBestQualityRespectsHopLimit(t *testing.T) {
	cat := catalog.MustNew([]catalog.Edge{
		edge(catalog.DomainGeneric, "a", "x", catalog.Excellent),
		edge(catalog.DomainGeneric, "x", "y", catalog.Excellent),
		edge(catalog.DomainGeneric, "y", "b", catalog.Excellent),
		edge(catalog.DomainGeneric, "a", "z", catalog.Fair),
		edge(catalog.DomainGeneric, "z", "b", catalog.Good),
	})
	resolver := route.NewResolver(cat, route.WithStrategy(route.StrategyBestQuality), route.WithMaxHops(2))
	r, ok := resolver.FindRoute(catalog.DomainGeneric, "a", "b")
	if !ok || r.String() != "a -> z -> b" {
		t.Fatalf("expected a -> z -> b, got %s", r)
	}

	resolver = route.NewResolver(cat, route.WithStrategy(route.StrategyBestQuality), route.WithMaxHops(3))
	r, ok = resolver.FindRoute(catalog.DomainGeneric, "a", "b")
	if !ok || r.String() != "a -> x -> y -> b" {
		t.Fatalf("expected a -> x -> y -> b, got %s", r)
	}
}

func TestBreadthFirstTieUsesDeclarationOrder(t *testing.T) {
	cat := catalog.MustNew([]catalog.Edge{
		edge(catalog.DomainGeneric, "a", "first", catalog.Poor),
		edge(catalog.DomainGeneric, "a", "second", catalog.Excellent),
		edge(catalog.DomainGeneric, "second", "b", catalog.Excellent),
		edge(catalog.DomainGeneric, "first", "b", catalog.Poor),
	})
	r, ok := route.NewResolver(cat).FindRoute(catalog.DomainGeneric, "a", "b")
	if !ok || r.String() != "a -> first -> b" {
		t.Fatalf("expected first declared neighbour, got %s", r)
	}
}

func TestMaxHopsMonotonicity(t *testing.T) {
	cat := catalog.MustNew([]catalog.Edge{
		edge(catalog.DomainVideo, "a", "b", catalog.Good),
		edge(catalog.DomainVideo, "b", "c", catalog.Good),
		edge(catalog.DomainVideo, "c", "d", catalog.Good),
	})
	found := func(hops int) bool {
		return route.NewResolver(cat, route.WithMaxHops(hops)).CanConvert(catalog.DomainVideo, "a", "d")
	}
	if found(2) {
		t.Fatal("three-hop route must not be found with max hops 2")
	}
	for hops := 3; hops <= 6; hops++ {
		if !found(hops) {
			t.Fatalf("route lost when max hops increased to %d", hops)
		}
	}
}

func TestCanConvertMatchesFindRoute(t *testing.T) {
	cat := catalog.Default()
	for _, strategy := range []route.Strategy{route.StrategyFewestHops, route.StrategyBestQuality} {
		resolver := route.NewResolver(cat, route.WithStrategy(strategy))
		for _, domain := range cat.Domains() {
			formats := cat.Formats(domain)
			for _, from := range formats {
				for _, to := range formats {
					_, ok := resolver.FindRoute(domain, from, to)
					if ok != resolver.CanConvert(domain, from, to) {
						t.Fatalf("%s %s->%s: CanConvert diverges from FindRoute", domain, from, to)
					}
				}
			}
		}
	}
}

func TestDomainsAreIsolated(t *testing.T) {
	cat := catalog.MustNew([]catalog.Edge{
		edge(catalog.DomainEbook, "epub", "shared", catalog.Excellent),
		edge(catalog.DomainVideo, "shared", "mkv", catalog.Excellent),
	})
	resolver := route.NewResolver(cat, route.WithMaxHops(5))
	if resolver.CanConvert(catalog.DomainEbook, "epub", "mkv") {
		t.Fatal("route must not leave the e-book domain")
	}
	if resolver.CanConvert(catalog.DomainVideo, "epub", "mkv") {
		t.Fatal("epub is unknown in the video domain")
	}
	defaults := route.NewResolver(catalog.Default())
	if defaults.CanConvert(catalog.DomainEbook, "epub", "mkv") || defaults.CanConvert(catalog.DomainVideo, "mkv", "epub") {
		t.Fatal("default catalog must not connect e-books and video")
	}
}

func TestDefaultCatalogMultiHopRoutes(t *testing.T) {
	resolver := route.NewResolver(catalog.Default())
	tests := []struct {
		domain catalog.Domain
		from   catalog.Format
		to     catalog.Format
		want   string
	}{
		{catalog.DomainGeneric, "md", "pdf", "md -> html -> pdf"},
		{catalog.DomainEbook, "mobi", "kepub", "mobi -> epub -> kepub"},
		{catalog.DomainVideo, "mp4", "av1", "mp4 -> mkv -> av1"},
	}
	for _, tc := range tests {
		r, ok := resolver.FindRoute(tc.domain, tc.from, tc.to)
		if !ok || r.String() != tc.want {
			t.Errorf("%s %s->%s: got %q (found=%v), want %q", tc.domain, tc.from, tc.to, r.String(), ok, tc.want)
		}
	}
}

func TestAllRoutesBetweenOrdering(t *testing.T) {
	cat := catalog.MustNew([]catalog.Edge{
		edge(catalog.DomainGeneric, "a", "b", catalog.Poor),
		edge(catalog.DomainGeneric, "a", "x", catalog.Fair),
		edge(catalog.DomainGeneric, "a", "y", catalog.Excellent),
		edge(catalog.DomainGeneric, "a", "z", catalog.Fair),
		edge(catalog.DomainGeneric, "x", "b", catalog.Excellent),
		edge(catalog.DomainGeneric, "y", "b", catalog.Good),
		edge(catalog.DomainGeneric, "z", "b", catalog.Excellent),
	})
	routes := route.NewResolver(cat).AllRoutesBetween(catalog.DomainGeneric, "a", "b", route.DefaultMaxIntermediate)
	want := []string{"a -> b", "a -> y -> b", "a -> x -> b", "a -> z -> b"}
	if len(routes) != len(want) {
		t.Fatalf("got %d routes, want %d", len(routes), len(want))
	}
	for i, r := range routes {
		if r.String() != want[i] {
			t.Fatalf("routes[%d] = %s, want %s", i, r, want[i])
		}
	}

	direct := route.NewResolver(cat).AllRoutesBetween(catalog.DomainGeneric, "a", "b", 0)
	if len(direct) != 1 || direct[0].HopCount() != 1 {
		t.Fatalf("expected only the direct route, got %v", direct)
	}
}

func TestValidate(t *testing.T) {
	resolver := route.NewResolver(catalog.Default())
	if err := resolver.Validate(catalog.DomainEbook, "epub", "mobi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, tc := range []struct {
		domain   catalog.Domain
		from, to catalog.Format
	}{
		{"audio", "mp3", "wav"},
		{catalog.DomainEbook, "epub", "mkv"},
		{catalog.DomainVideo, "", "mkv"},
	} {
		err := resolver.Validate(tc.domain, tc.from, tc.to)
		if !errors.Is(err, services.ErrValidation) {
			t.Errorf("Validate(%s, %s, %s) = %v, want validation error", tc.domain, tc.from, tc.to, err)
		}
	}
}

func TestReachableAndInferDomain(t *testing.T) {
	resolver := route.NewResolver(catalog.Default(), route.WithMaxHops(1))
	reach := resolver.Reachable(catalog.DomainEbook, "mobi")
	if len(reach) != 2 || reach[0] != "epub" || reach[1] != "azw3" {
		t.Fatalf("unexpected reachable formats %v", reach)
	}

	resolver = route.NewResolver(catalog.Default())
	tests := []struct {
		from, to catalog.Format
		want     catalog.Domain
	}{
		{"mkv", "mp4", catalog.DomainVideo},
		{"mp4", "mp3", catalog.DomainGeneric},
		{"epub", "pdf", catalog.DomainEbook},
		{"docx", "pdf", catalog.DomainGeneric},
	}
	for _, tc := range tests {
		got, ok := resolver.InferDomain(tc.from, tc.to)
		if !ok || got != tc.want {
			t.Errorf("InferDomain(%s, %s) = %q, %v; want %q", tc.from, tc.to, got, ok, tc.want)
		}
	}
	if _, ok := resolver.InferDomain("epub", "mkv"); ok {
		t.Fatal("expected no domain for epub -> mkv")
	}
}
