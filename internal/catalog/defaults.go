package catalog

// Preservation flags used to keep the default table compact.
const (
	keepsMetadata = 1 << iota
	keepsFormatting
	keepsImages

	keepsAll = keepsMetadata | keepsFormatting | keepsImages
)

type row struct {
	from, to Format
	quality  QualityTier
	method   Method
	keeps    int
}

func expand(domain Domain, rows []row) []Edge {
	out := make([]Edge, 0, len(rows))
	for _, r := range rows {
		out = append(out, Edge{
			Domain:              domain,
			From:                r.from,
			To:                  r.to,
			Quality:             r.quality,
			PreservesMetadata:   r.keeps&keepsMetadata != 0,
			PreservesFormatting: r.keeps&keepsFormatting != 0,
			PreservesImages:     r.keeps&keepsImages != 0,
			Method:              r.method,
		})
	}
	return out
}

var videoRows = []row{
	{"mkv", "mp4", Excellent, MethodFFmpeg, keepsAll},
	{"mp4", "mkv", Excellent, MethodFFmpeg, keepsAll},
	{"mov", "mp4", Good, MethodFFmpeg, keepsMetadata | keepsImages},
	{"mov", "mkv", Excellent, MethodFFmpeg, keepsAll},
	{"avi", "mp4", Good, MethodFFmpeg, keepsImages},
	{"avi", "mkv", Good, MethodFFmpeg, keepsImages},
	{"mp4", "webm", Good, MethodFFmpeg, keepsImages},
	{"mkv", "webm", Good, MethodFFmpeg, keepsImages},
	{"webm", "mp4", Good, MethodFFmpeg, keepsImages},
	{"webm", "mkv", Excellent, MethodFFmpeg, keepsAll},
	{"mkv", "av1", Excellent, MethodDrapto, keepsAll},
	{"av1", "mp4", Good, MethodFFmpeg, keepsMetadata | keepsImages},
	{"mp4", "gif", Fair, MethodFFmpeg, keepsImages},
	{"webm", "gif", Fair, MethodFFmpeg, keepsImages},
}

var ebookRows = []row{
	{"epub", "azw3", Excellent, MethodCalibre, keepsAll},
	{"epub", "kepub", Excellent, MethodKepubify, keepsAll},
	{"epub", "mobi", Good, MethodCalibre, keepsMetadata | keepsImages},
	{"epub", "pdf", Fair, MethodCalibre, keepsMetadata | keepsImages},
	{"epub", "txt", Poor, MethodCalibre, 0},
	{"azw3", "epub", Good, MethodCalibre, keepsAll},
	{"mobi", "epub", Good, MethodCalibre, keepsMetadata | keepsImages},
	{"mobi", "azw3", Good, MethodCalibre, keepsMetadata | keepsImages},
	{"fb2", "epub", Good, MethodCalibre, keepsMetadata | keepsFormatting},
	{"docx", "epub", Good, MethodCalibre, keepsFormatting | keepsImages},
	{"txt", "epub", Fair, MethodCalibre, 0},
	{"pdf", "epub", Poor, MethodCalibre, keepsImages},
}

var genericRows = []row{
	// documents
	{"docx", "pdf", Good, MethodLibreOffice, keepsAll},
	{"doc", "pdf", Good, MethodLibreOffice, keepsAll},
	{"odt", "pdf", Good, MethodLibreOffice, keepsAll},
	{"rtf", "pdf", Good, MethodLibreOffice, keepsFormatting},
	{"txt", "pdf", Good, MethodLibreOffice, 0},
	{"html", "pdf", Good, MethodLibreOffice, keepsFormatting | keepsImages},
	{"doc", "docx", Excellent, MethodLibreOffice, keepsAll},
	{"docx", "odt", Excellent, MethodLibreOffice, keepsAll},
	{"odt", "docx", Excellent, MethodLibreOffice, keepsAll},
	{"docx", "html", Good, MethodPandoc, keepsFormatting | keepsImages},
	{"docx", "md", Fair, MethodPandoc, keepsFormatting},
	{"docx", "txt", Fair, MethodPandoc, 0},
	{"md", "html", Excellent, MethodPandoc, keepsFormatting | keepsImages},
	{"md", "docx", Good, MethodPandoc, keepsFormatting | keepsImages},
	{"html", "md", Fair, MethodPandoc, keepsFormatting},
	{"txt", "md", Excellent, MethodPandoc, 0},
	{"pdf", "txt", Poor, MethodPoppler, 0},
	{"pdf", "png", Fair, MethodPoppler, keepsImages},
	{"pdf", "jpg", Fair, MethodPoppler, keepsImages},
	// images
	{"png", "jpg", Good, MethodImageMagick, keepsMetadata},
	{"png", "webp", Excellent, MethodImageMagick, keepsMetadata},
	{"png", "gif", Fair, MethodImageMagick, 0},
	{"png", "pdf", Good, MethodImageMagick, keepsImages},
	{"jpg", "png", Excellent, MethodImageMagick, keepsMetadata},
	{"jpg", "webp", Good, MethodImageMagick, keepsMetadata},
	{"jpg", "pdf", Good, MethodImageMagick, keepsImages},
	{"webp", "png", Excellent, MethodImageMagick, keepsMetadata},
	{"webp", "jpg", Good, MethodImageMagick, keepsMetadata},
	{"gif", "png", Good, MethodImageMagick, 0},
	{"bmp", "png", Excellent, MethodImageMagick, 0},
	{"tiff", "png", Excellent, MethodImageMagick, keepsMetadata},
	{"tiff", "jpg", Good, MethodImageMagick, keepsMetadata},
	// audio
	{"wav", "flac", Excellent, MethodFFmpeg, keepsMetadata},
	{"wav", "mp3", Good, MethodFFmpeg, 0},
	{"wav", "ogg", Good, MethodFFmpeg, 0},
	{"wav", "aac", Good, MethodFFmpeg, 0},
	{"flac", "wav", Excellent, MethodFFmpeg, 0},
	{"flac", "mp3", Good, MethodFFmpeg, keepsMetadata},
	{"flac", "ogg", Good, MethodFFmpeg, keepsMetadata},
	{"mp3", "wav", Fair, MethodFFmpeg, 0},
	{"mp3", "ogg", Fair, MethodFFmpeg, keepsMetadata},
	{"ogg", "mp3", Fair, MethodFFmpeg, keepsMetadata},
	{"m4a", "mp3", Good, MethodFFmpeg, keepsMetadata},
	{"aac", "mp3", Fair, MethodFFmpeg, 0},
	// media extraction
	{"mp4", "mp3", Good, MethodFFmpeg, keepsMetadata},
	{"mp4", "gif", Fair, MethodFFmpeg, 0},
	{"mov", "mp4", Good, MethodFFmpeg, keepsMetadata},
}

// DefaultEdges returns the built-in edge table. Video is declared first, then
// e-books, then generic media, which fixes the domain precedence.
func DefaultEdges() []Edge {
	edges := expand(DomainVideo, videoRows)
	edges = append(edges, expand(DomainEbook, ebookRows)...)
	edges = append(edges, expand(DomainGeneric, genericRows)...)
	return edges
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return MustNew(DefaultEdges())
}
