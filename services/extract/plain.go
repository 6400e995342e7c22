package extract

import (
	"context"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"

	"github.com/mailvault/mailvault/interfaces"
	"github.com/mailvault/mailvault/internal/enum"
)

type plainExtractor struct{}

func NewPlainExtractor() interfaces.ContentExtractor {
	return &plainExtractor{}
}

func (e *plainExtractor) Family() enum.ContentFamily {
	return enum.ContentFamilyPlain
}

func (e *plainExtractor) Extract(ctx context.Context, r io.ReaderAt, size int64) (string, error) {
	data, err := io.ReadAll(io.NewSectionReader(r, 0, size))
	if err != nil {
		return "", errors.Wrap(err, "failed to read payload")
	}
	return strings.TrimSpace(string(data)), nil
}

// htmlExtractor strips markup and script/style blocks, keeping the visible
// text. HTML attachments land in the plain family.
type htmlExtractor struct{}

func NewHTMLExtractor() interfaces.ContentExtractor {
	return &htmlExtractor{}
}

func (e *htmlExtractor) Family() enum.ContentFamily {
	return enum.ContentFamilyPlain
}

func (e *htmlExtractor) Extract(ctx context.Context, r io.ReaderAt, size int64) (string, error) {
	doc, err := goquery.NewDocumentFromReader(io.NewSectionReader(r, 0, size))
	if err != nil {
		return "", errors.Wrap(err, "failed to parse html")
	}

	doc.Find("script, style, noscript").Remove()

	text := doc.Text()
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n"), nil
}
