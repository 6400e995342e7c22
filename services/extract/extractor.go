package extract

import (
	"strings"

	"github.com/mailvault/mailvault/config"
	"github.com/mailvault/mailvault/interfaces"
	"github.com/mailvault/mailvault/internal/enum"
	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/utils"
)

// Registry resolves an attachment's declared content type to one of the
// supported extractor variants. The declared type wins; the filename
// extension is the fallback for generic or missing types.
type Registry struct {
	plain  interfaces.ContentExtractor
	html   interfaces.ContentExtractor
	pdf    interfaces.ContentExtractor
	office interfaces.ContentExtractor
	image  interfaces.ContentExtractor
}

func NewRegistry(cfg *config.PipelineConfig, log logger.Logger) *Registry {
	return &Registry{
		plain:  NewPlainExtractor(),
		html:   NewHTMLExtractor(),
		pdf:    NewPDFExtractor(),
		office: NewOfficeExtractor(),
		image:  NewOCRExtractor(cfg.OCRBinary, cfg.OCREnabled, log),
	}
}

// Resolve picks the extractor for a payload. A nil extractor with family
// ContentFamilyUnsupported means the type has no extractor at all.
func (reg *Registry) Resolve(contentType, filename string) (interfaces.ContentExtractor, enum.ContentFamily) {
	switch kindFor(contentType, filename) {
	case "plain":
		return reg.plain, enum.ContentFamilyPlain
	case "html":
		return reg.html, enum.ContentFamilyPlain
	case "pdf":
		return reg.pdf, enum.ContentFamilyPDF
	case "office":
		return reg.office, enum.ContentFamilyOffice
	case "image":
		return reg.image, enum.ContentFamilyImage
	default:
		return nil, enum.ContentFamilyUnsupported
	}
}

var extensionKinds = map[string]string{
	"txt":  "plain",
	"log":  "plain",
	"csv":  "plain",
	"md":   "plain",
	"json": "plain",
	"xml":  "plain",
	"html": "html",
	"htm":  "html",
	"pdf":  "pdf",
	"docx": "office",
	"xlsx": "office",
	"pptx": "office",
	"png":  "image",
	"jpg":  "image",
	"jpeg": "image",
	"tif":  "image",
	"tiff": "image",
	"bmp":  "image",
	"gif":  "image",
	"webp": "image",
}

func kindFor(contentType, filename string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}

	switch {
	case ct == "text/html" || ct == "application/xhtml+xml":
		return "html"
	case ct == "application/pdf" || ct == "application/x-pdf":
		return "pdf"
	case strings.HasPrefix(ct, "text/"),
		ct == "application/json",
		ct == "application/xml",
		ct == "application/csv":
		return "plain"
	case strings.Contains(ct, "wordprocessingml"),
		strings.Contains(ct, "spreadsheetml"),
		strings.Contains(ct, "presentationml"):
		return "office"
	case strings.HasPrefix(ct, "image/"):
		return "image"
	}

	// Generic or absent content type: fall back to the filename extension.
	if ct == "" || ct == "application/octet-stream" || ct == "binary/octet-stream" {
		if kind, ok := extensionKinds[utils.FileExtension(filename)]; ok {
			return kind
		}
	}

	return ""
}
