package main

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"transmute/internal/catalog"
	"transmute/internal/jobs"
	"transmute/internal/route"
)

var titleCaser = cases.Title(language.English)

// titleCase renders identifiers such as "best_quality" as "Best Quality".
func titleCase(value string) string {
	return titleCaser.String(strings.ReplaceAll(value, "_", " "))
}

// formatLabel shows a format the way users type it.
func formatLabel(f catalog.Format) string {
	return strings.ToUpper(string(f))
}

func tierLabel(q catalog.QualityTier) string {
	return titleCase(q.String())
}

func preservesLabel(e catalog.Edge) string {
	var kept []string
	if e.PreservesMetadata {
		kept = append(kept, "metadata")
	}
	if e.PreservesFormatting {
		kept = append(kept, "formatting")
	}
	if e.PreservesImages {
		kept = append(kept, "images")
	}
	if len(kept) == 0 {
		return "-"
	}
	return strings.Join(kept, ", ")
}

func routeLabel(r route.Route) string {
	parts := make([]string, len(r.Formats))
	for i, f := range r.Formats {
		parts[i] = formatLabel(f)
	}
	return strings.Join(parts, " -> ")
}

func methodsLabel(r route.Route) string {
	methods := r.Methods()
	if len(methods) == 0 {
		return "copy"
	}
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

func statusLabel(s jobs.Status) string {
	return titleCase(string(s))
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

func formatSize(bytes int64) string {
	if bytes <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(bytes))
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
