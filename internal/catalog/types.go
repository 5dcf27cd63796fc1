package catalog

import (
	"fmt"
	"strings"
)

// Domain is an independent namespace of formats.
type Domain string

const (
	DomainGeneric Domain = "generic"
	DomainEbook   Domain = "ebook"
	DomainVideo   Domain = "video"
)

// ParseDomain normalizes a user supplied domain name.
func ParseDomain(value string) (Domain, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "generic", "general", "document", "media":
		return DomainGeneric, nil
	case "ebook", "e-book", "book":
		return DomainEbook, nil
	case "video":
		return DomainVideo, nil
	default:
		return "", fmt.Errorf("unknown domain %q", value)
	}
}

// Format identifies a file format within a domain, always lower case without
// a leading dot.
type Format string

var formatAliases = map[string]Format{
	"jpeg":       "jpg",
	"tif":        "tiff",
	"htm":        "html",
	"markdown":   "md",
	"kepub.epub": "kepub",
	"azw":        "azw3",
	"text":       "txt",
}

// ParseFormat normalizes an identifier or file extension (".EPUB", "jpeg").
func ParseFormat(value string) Format {
	v := strings.ToLower(strings.TrimSpace(value))
	v = strings.TrimPrefix(v, ".")
	if alias, ok := formatAliases[v]; ok {
		return alias
	}
	return Format(v)
}

// QualityTier is an ordered estimate of how much fidelity a conversion keeps.
// Lower values are better.
type QualityTier int

const (
	Excellent QualityTier = iota + 1
	Good
	Fair
	Poor
)

// Weight returns the multiplicative weight used to combine hop qualities.
func (q QualityTier) Weight() float64 {
	switch q {
	case Excellent:
		return 1.0
	case Good:
		return 0.8
	case Fair:
		return 0.6
	case Poor:
		return 0.4
	default:
		return 0
	}
}

// TierForWeight maps a combined weight back to the nearest tier.
func TierForWeight(w float64) QualityTier {
	// eps absorbs float64 rounding in weight products.
	const eps = 1e-9
	switch {
	case w >= 0.9-eps:
		return Excellent
	case w >= 0.7-eps:
		return Good
	case w >= 0.5-eps:
		return Fair
	default:
		return Poor
	}
}

// Better reports whether q preserves more fidelity than other.
func (q QualityTier) Better(other QualityTier) bool {
	return q.Valid() && (!other.Valid() || q < other)
}

func (q QualityTier) Valid() bool {
	return q >= Excellent && q <= Poor
}

func (q QualityTier) String() string {
	switch q {
	case Excellent:
		return "excellent"
	case Good:
		return "good"
	case Fair:
		return "fair"
	case Poor:
		return "poor"
	default:
		return "unknown"
	}
}

// ParseQualityTier is the inverse of String.
func ParseQualityTier(value string) (QualityTier, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "excellent":
		return Excellent, nil
	case "good":
		return Good, nil
	case "fair":
		return Fair, nil
	case "poor":
		return Poor, nil
	default:
		return 0, fmt.Errorf("unknown quality tier %q", value)
	}
}

// MarshalText writes the zero tier as an empty string so routes that were
// never resolved survive a JSON round trip.
func (q QualityTier) MarshalText() ([]byte, error) {
	if q == 0 {
		return []byte{}, nil
	}
	return []byte(q.String()), nil
}

func (q *QualityTier) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*q = 0
		return nil
	}
	tier, err := ParseQualityTier(string(data))
	if err != nil {
		return err
	}
	*q = tier
	return nil
}

// Method names the tool recommended to execute an edge.
type Method string

const (
	MethodFFmpeg      Method = "ffmpeg"
	MethodDrapto      Method = "drapto"
	MethodCalibre     Method = "calibre"
	MethodKepubify    Method = "kepubify"
	MethodPandoc      Method = "pandoc"
	MethodLibreOffice Method = "libreoffice"
	MethodImageMagick Method = "imagemagick"
	MethodPoppler     Method = "poppler"
)

// Edge is a declared direct conversion inside one domain. Edges are directed.
type Edge struct {
	Domain              Domain      `json:"domain"`
	From                Format      `json:"from"`
	To                  Format      `json:"to"`
	Quality             QualityTier `json:"quality"`
	PreservesMetadata   bool        `json:"preserves_metadata"`
	PreservesFormatting bool        `json:"preserves_formatting"`
	PreservesImages     bool        `json:"preserves_images"`
	Method              Method      `json:"method"`
}

func (e Edge) String() string {
	return fmt.Sprintf("%s:%s->%s", e.Domain, e.From, e.To)
}
