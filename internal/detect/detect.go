// Package detect determines the source format of an input file, trusting a
// known extension first and sniffing file content otherwise.
package detect

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"transmute/internal/catalog"
	"transmute/internal/services"
)

// Detector resolves formats against a catalog.
type Detector struct {
	catalog *catalog.Catalog
}

// New returns a detector that accepts only formats present in cat.
func New(cat *catalog.Catalog) *Detector {
	return &Detector{catalog: cat}
}

// Format returns the catalog format for path.
func (d *Detector) Format(path string) (catalog.Format, error) {
	if f := FromName(path); f != "" && d.known(f) {
		return f, nil
	}
	sniffed, mime, err := Sniff(path)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "detect", "sniff", filepath.Base(path), err)
	}
	if sniffed == "" || !d.known(sniffed) {
		return "", services.Wrap(services.ErrValidation, "detect", "sniff",
			"cannot determine format of "+filepath.Base(path)+" (content looks like "+mime+")", nil)
	}
	return sniffed, nil
}

func (d *Detector) known(f catalog.Format) bool {
	if d.catalog == nil {
		return true
	}
	for _, domain := range d.catalog.Domains() {
		if d.catalog.HasFormat(domain, f) {
			return true
		}
	}
	return false
}

// FromName derives a format from the file extension, or "" when there is none.
func FromName(path string) catalog.Format {
	base := strings.ToLower(filepath.Base(path))
	if strings.HasSuffix(base, ".kepub.epub") {
		return "kepub"
	}
	ext := filepath.Ext(base)
	if ext == "" || ext == base {
		return ""
	}
	return catalog.ParseFormat(ext)
}

// Sniff inspects the leading bytes of path. It returns the format implied by
// the detected MIME type ("" when it maps to none) and the MIME string.
func Sniff(path string) (catalog.Format, string, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", "", err
	}
	// Generic parents (zip, ole storage) stand in when the exact type has no
	// registered extension.
	for m := mt; m != nil; m = m.Parent() {
		if ext := m.Extension(); ext != "" {
			return catalog.ParseFormat(ext), mt.String(), nil
		}
	}
	return "", mt.String(), nil
}
