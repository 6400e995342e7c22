package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/mailvault/mailvault/interfaces"
	"github.com/mailvault/mailvault/internal/enum"
)

// officeExtractor handles the OOXML formats (docx, xlsx, pptx). All three
// are zip containers holding XML parts; the variant is detected from the
// archive layout rather than trusted from the declared content type.
type officeExtractor struct{}

func NewOfficeExtractor() interfaces.ContentExtractor {
	return &officeExtractor{}
}

func (e *officeExtractor) Family() enum.ContentFamily {
	return enum.ContentFamilyOffice
}

func (e *officeExtractor) Extract(ctx context.Context, r io.ReaderAt, size int64) (string, error) {
	archive, err := zip.NewReader(r, size)
	if err != nil {
		return "", errors.Wrap(err, "failed to open office archive")
	}

	files := make(map[string]*zip.File, len(archive.File))
	for _, f := range archive.File {
		files[f.Name] = f
	}

	switch {
	case files["word/document.xml"] != nil:
		return extractDocx(files["word/document.xml"])
	case files["xl/sharedStrings.xml"] != nil || hasPrefixEntry(archive, "xl/worksheets/"):
		return extractXlsx(files)
	case hasPrefixEntry(archive, "ppt/slides/"):
		return extractPptx(archive)
	default:
		return "", errors.New("unrecognized office archive layout")
	}
}

func hasPrefixEntry(archive *zip.Reader, prefix string) bool {
	for _, f := range archive.File {
		if strings.HasPrefix(f.Name, prefix) {
			return true
		}
	}
	return false
}

// extractDocx walks word/document.xml collecting w:t runs, one line per
// w:p paragraph.
func extractDocx(doc *zip.File) (string, error) {
	rc, err := doc.Open()
	if err != nil {
		return "", errors.Wrap(err, "failed to open document part")
	}
	defer rc.Close()

	var sb strings.Builder
	decoder := xml.NewDecoder(rc)
	inText := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errors.Wrap(err, "failed to parse document xml")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// extractXlsx reads the shared string table, which holds the text content
// of every string cell in the workbook.
func extractXlsx(files map[string]*zip.File) (string, error) {
	shared := files["xl/sharedStrings.xml"]
	if shared == nil {
		// workbook with no string cells
		return "", nil
	}

	rc, err := shared.Open()
	if err != nil {
		return "", errors.Wrap(err, "failed to open shared strings part")
	}
	defer rc.Close()

	var lines []string
	var current strings.Builder
	decoder := xml.NewDecoder(rc)
	inText := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errors.Wrap(err, "failed to parse shared strings xml")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "si":
				if current.Len() > 0 {
					lines = append(lines, current.String())
					current.Reset()
				}
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}

// extractPptx collects a:t runs from each slide part, slides in name order.
func extractPptx(archive *zip.Reader) (string, error) {
	var slides []*zip.File
	for _, f := range archive.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			slides = append(slides, f)
		}
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].Name < slides[j].Name })

	var parts []string
	for _, slide := range slides {
		text, err := extractDocx(slide) // same token walk, element names differ only in namespace
		if err != nil {
			return "", err
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}
