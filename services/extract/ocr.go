package extract

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"

	"github.com/pkg/errors"

	"github.com/mailvault/mailvault/interfaces"
	"github.com/mailvault/mailvault/internal/enum"
	er "github.com/mailvault/mailvault/internal/errors"
	"github.com/mailvault/mailvault/internal/logger"
)

// ocrExtractor shells out to the tesseract binary for image attachments.
// OCR is an optional deployment capability: when the binary is absent or
// OCR is disabled, Extract reports ErrUnsupportedType so the pipeline can
// record the attachment as unsupported instead of failed.
type ocrExtractor struct {
	binary    string
	available bool
}

func NewOCRExtractor(binary string, enabled bool, log logger.Logger) interfaces.ContentExtractor {
	available := false
	if enabled && binary != "" {
		if _, err := exec.LookPath(binary); err == nil {
			available = true
		} else {
			log.Warnf("OCR binary %q not found, image attachments will be recorded as unsupported", binary)
		}
	}
	return &ocrExtractor{binary: binary, available: available}
}

func (e *ocrExtractor) Family() enum.ContentFamily {
	return enum.ContentFamilyImage
}

func (e *ocrExtractor) Extract(ctx context.Context, r io.ReaderAt, size int64) (string, error) {
	if !e.available {
		return "", er.ErrUnsupportedType
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.binary, "stdin", "stdout")
	cmd.Stdin = io.NewSectionReader(r, 0, size)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", errors.Wrapf(err, "ocr failed: %s", strings.TrimSpace(stderr.String()))
	}

	return strings.TrimSpace(stdout.String()), nil
}
