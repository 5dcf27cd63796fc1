package catalog_test

import (
	"encoding/json"
	"strings"
	"testing"

	"transmute/internal/catalog"
)

func TestNewRejectsInvalidTables(t *testing.T) {
	valid := catalog.Edge{Domain: catalog.DomainEbook, From: "epub", To: "mobi", Quality: catalog.Good, Method: catalog.MethodCalibre}
	tests := []struct {
		name  string
		edges []catalog.Edge
		want  string
	}{
		{"duplicate", []catalog.Edge{valid, valid}, "duplicate"},
		{"missing domain", []catalog.Edge{{From: "a", To: "b", Quality: catalog.Good, Method: catalog.MethodFFmpeg}}, "missing domain"},
		{"self edge", []catalog.Edge{{Domain: catalog.DomainVideo, From: "mkv", To: "mkv", Quality: catalog.Good, Method: catalog.MethodFFmpeg}}, "self edge"},
		{"bad tier", []catalog.Edge{{Domain: catalog.DomainVideo, From: "mkv", To: "mp4", Method: catalog.MethodFFmpeg}}, "quality tier"},
		{"missing method", []catalog.Edge{{Domain: catalog.DomainVideo, From: "mkv", To: "mp4", Quality: catalog.Good}}, "method"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := catalog.New(tc.edges)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestSameEdgeInTwoDomainsIsNotDuplicate(t *testing.T) {
	edges := []catalog.Edge{
		{Domain: catalog.DomainGeneric, From: "mp4", To: "gif", Quality: catalog.Fair, Method: catalog.MethodFFmpeg},
		{Domain: catalog.DomainVideo, From: "mp4", To: "gif", Quality: catalog.Fair, Method: catalog.MethodFFmpeg},
	}
	if _, err := catalog.New(edges); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEdgesFromKeepsDeclarationOrder(t *testing.T) {
	cat := catalog.MustNew([]catalog.Edge{
		{Domain: catalog.DomainGeneric, From: "md", To: "html", Quality: catalog.Excellent, Method: catalog.MethodPandoc},
		{Domain: catalog.DomainGeneric, From: "txt", To: "md", Quality: catalog.Excellent, Method: catalog.MethodPandoc},
		{Domain: catalog.DomainGeneric, From: "md", To: "docx", Quality: catalog.Good, Method: catalog.MethodPandoc},
	})
	edges := cat.EdgesFrom(catalog.DomainGeneric, "md")
	if len(edges) != 2 || edges[0].To != "html" || edges[1].To != "docx" {
		t.Fatalf("unexpected edges %v", edges)
	}
	if got := cat.EdgesFrom(catalog.DomainEbook, "md"); len(got) != 0 {
		t.Fatalf("expected no edges in undeclared domain, got %v", got)
	}
	formats := cat.Formats(catalog.DomainGeneric)
	want := []catalog.Format{"md", "html", "txt", "docx"}
	if len(formats) != len(want) {
		t.Fatalf("unexpected formats %v", formats)
	}
	for i := range want {
		if formats[i] != want[i] {
			t.Fatalf("formats[%d] = %q, want %q", i, formats[i], want[i])
		}
	}
}

func TestEdgeLookupIsDirected(t *testing.T) {
	cat := catalog.Default()
	edge, ok := cat.Edge(catalog.DomainEbook, "epub", "kepub")
	if !ok {
		t.Fatal("expected epub->kepub edge")
	}
	if edge.Method != catalog.MethodKepubify || edge.Quality != catalog.Excellent {
		t.Fatalf("unexpected edge %+v", edge)
	}
	if _, ok := cat.Edge(catalog.DomainEbook, "kepub", "epub"); ok {
		t.Fatal("edges must not be symmetric")
	}
	if !cat.HasFormat(catalog.DomainEbook, "kepub") {
		t.Fatal("target-only formats are still known")
	}
	if cat.HasFormat(catalog.DomainEbook, "mkv") {
		t.Fatal("mkv is not an e-book format")
	}
}

func TestDefaultDomainPrecedence(t *testing.T) {
	cat := catalog.Default()
	domains := cat.Domains()
	want := []catalog.Domain{catalog.DomainVideo, catalog.DomainEbook, catalog.DomainGeneric}
	if len(domains) != len(want) {
		t.Fatalf("unexpected domains %v", domains)
	}
	for i := range want {
		if domains[i] != want[i] {
			t.Fatalf("domains[%d] = %q, want %q", i, domains[i], want[i])
		}
	}
	if got := cat.DomainsWith("mp4", "gif"); len(got) != 2 || got[0] != catalog.DomainVideo {
		t.Fatalf("expected video then generic, got %v", got)
	}
	if got := cat.DomainsWith("epub", "mkv"); len(got) != 0 {
		t.Fatalf("expected no shared domain, got %v", got)
	}
}

func TestQualityTierWeights(t *testing.T) {
	tests := []struct {
		weight float64
		want   catalog.QualityTier
	}{
		{1.0, catalog.Excellent},
		{0.9, catalog.Excellent},
		{0.8, catalog.Good},
		{0.8 * 0.8, catalog.Fair},
		{0.7, catalog.Good},
		{0.6, catalog.Fair},
		{0.5, catalog.Fair},
		{0.8 * 0.6, catalog.Poor},
		{0.4, catalog.Poor},
		{0, catalog.Poor},
	}
	for _, tc := range tests {
		if got := catalog.TierForWeight(tc.weight); got != tc.want {
			t.Errorf("TierForWeight(%v) = %s, want %s", tc.weight, got, tc.want)
		}
	}
	for _, tier := range []catalog.QualityTier{catalog.Excellent, catalog.Good, catalog.Fair, catalog.Poor} {
		if catalog.TierForWeight(tier.Weight()) != tier {
			t.Errorf("tier %s does not round trip through its weight", tier)
		}
		parsed, err := catalog.ParseQualityTier(tier.String())
		if err != nil || parsed != tier {
			t.Errorf("ParseQualityTier(%q) = %v, %v", tier.String(), parsed, err)
		}
	}
	if !catalog.Excellent.Better(catalog.Good) || catalog.Poor.Better(catalog.Fair) {
		t.Fatal("unexpected tier ordering")
	}
}

func TestQualityTierJSON(t *testing.T) {
	type wrapper struct {
		Quality catalog.QualityTier `json:"quality"`
	}
	for _, tier := range []catalog.QualityTier{0, catalog.Excellent, catalog.Poor} {
		data, err := json.Marshal(wrapper{Quality: tier})
		if err != nil {
			t.Fatalf("marshal %d: %v", tier, err)
		}
		var got wrapper
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if got.Quality != tier {
			t.Fatalf("%s decoded to %d, want %d", data, got.Quality, tier)
		}
	}
	if data, _ := json.Marshal(wrapper{}); string(data) != `{"quality":""}` {
		t.Fatalf("zero tier encoded as %s", data)
	}
	var w wrapper
	if err := json.Unmarshal([]byte(`{"quality":"bogus"}`), &w); err == nil {
		t.Fatal("expected unknown tier to be rejected")
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]catalog.Format{
		".EPUB":      "epub",
		" jpeg ":     "jpg",
		"Markdown":   "md",
		"kepub.epub": "kepub",
		"mkv":        "mkv",
		".tif":       "tiff",
	}
	for input, want := range tests {
		if got := catalog.ParseFormat(input); got != want {
			t.Errorf("ParseFormat(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		domain catalog.Domain
		format catalog.Format
		want   catalog.Kind
	}{
		{catalog.DomainVideo, "mkv", catalog.KindVideo},
		{catalog.DomainVideo, "gif", catalog.KindImage},
		{catalog.DomainEbook, "pdf", catalog.KindEbook},
		{catalog.DomainGeneric, "pdf", catalog.KindDocument},
		{catalog.DomainGeneric, "flac", catalog.KindAudio},
		{catalog.DomainGeneric, "xyz", catalog.KindUnknown},
	}
	for _, tc := range tests {
		if got := catalog.KindOf(tc.domain, tc.format); got != tc.want {
			t.Errorf("KindOf(%s, %s) = %q, want %q", tc.domain, tc.format, got, tc.want)
		}
	}
}

func TestParseDomain(t *testing.T) {
	if d, err := catalog.ParseDomain("E-Book"); err != nil || d != catalog.DomainEbook {
		t.Fatalf("ParseDomain(E-Book) = %q, %v", d, err)
	}
	if _, err := catalog.ParseDomain("audio"); err == nil {
		t.Fatal("expected error for unknown domain")
	}
}
