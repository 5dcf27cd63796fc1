package catalog

// Kind is the media family of a format, used to pick optimizer heuristics.
type Kind string

const (
	KindUnknown  Kind = ""
	KindDocument Kind = "document"
	KindImage    Kind = "image"
	KindAudio    Kind = "audio"
	KindVideo    Kind = "video"
	KindEbook    Kind = "ebook"
)

var genericKinds = map[Format]Kind{
	"pdf": KindDocument, "docx": KindDocument, "doc": KindDocument, "odt": KindDocument,
	"rtf": KindDocument, "txt": KindDocument, "md": KindDocument, "html": KindDocument,
	"png": KindImage, "jpg": KindImage, "webp": KindImage, "gif": KindImage,
	"bmp": KindImage, "tiff": KindImage,
	"mp3": KindAudio, "wav": KindAudio, "flac": KindAudio, "ogg": KindAudio,
	"aac": KindAudio, "m4a": KindAudio,
	"mp4": KindVideo, "mov": KindVideo, "mkv": KindVideo, "webm": KindVideo,
}

// KindOf classifies f within domain.
func KindOf(domain Domain, f Format) Kind {
	switch domain {
	case DomainEbook:
		return KindEbook
	case DomainVideo:
		if f == "gif" {
			return KindImage
		}
		return KindVideo
	default:
		return genericKinds[f]
	}
}
