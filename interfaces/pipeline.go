package interfaces

import (
	"context"
	"io"
	"time"

	"github.com/mailvault/mailvault/internal/enum"
)

// AttachmentInput is one attachment payload handed to the pipeline.
type AttachmentInput struct {
	Payload     []byte
	Filename    string
	ContentType string
	ContentID   string
	IsInline    bool
}

// AttachmentResult is the processing outcome for one attachment. Checksum
// and Size are always set; ExtractedText and SkippedReason are mutually
// exclusive.
type AttachmentResult struct {
	Filename      string
	ContentType   string
	ContentID     string
	IsInline      bool
	Checksum      string
	Size          int64
	ProcessedIn   enum.ProcessedIn
	ExtractedText *string
	SkippedReason *enum.SkippedReason
}

type AttachmentProcessor interface {
	Process(ctx context.Context, input AttachmentInput) *AttachmentResult
	// ProcessAll fans a batch out over a bounded worker pool and returns
	// results in input order.
	ProcessAll(ctx context.Context, inputs []AttachmentInput) []*AttachmentResult
}

// TempFileSweeper removes spool files orphaned by a crash mid-extraction.
type TempFileSweeper interface {
	SweepTempFiles(ctx context.Context, maxAge time.Duration) (int, error)
}

// ContentExtractor turns one attachment payload into plain text. Payloads
// are presented as a ReaderAt so the same extractor serves both the
// in-memory and the temp-file tier.
type ContentExtractor interface {
	Family() enum.ContentFamily
	Extract(ctx context.Context, r io.ReaderAt, size int64) (string, error)
}
