package extract

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pkg/errors"

	"github.com/mailvault/mailvault/interfaces"
	"github.com/mailvault/mailvault/internal/enum"
)

type pdfExtractor struct{}

func NewPDFExtractor() interfaces.ContentExtractor {
	return &pdfExtractor{}
}

func (e *pdfExtractor) Family() enum.ContentFamily {
	return enum.ContentFamilyPDF
}

// Extract pulls the text layer out of a PDF. The parser panics on some
// malformed documents, so the whole call runs behind a recover and reports
// such inputs as ordinary extraction errors.
func (e *pdfExtractor) Extract(ctx context.Context, r io.ReaderAt, size int64) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
			err = fmt.Errorf("pdf parser panic: %v", rec)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", errors.Wrap(err, "failed to open pdf")
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", errors.Wrap(err, "failed to extract pdf text")
	}

	var sb strings.Builder
	if _, err := io.Copy(&sb, plain); err != nil {
		return "", errors.Wrap(err, "failed to read pdf text")
	}
	return strings.TrimSpace(sb.String()), nil
}
