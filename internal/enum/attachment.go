package enum

// SkippedReason records why an attachment produced no extracted text.
type SkippedReason string

const (
	SkippedTooLarge         SkippedReason = "too_large"
	SkippedExtractionFailed SkippedReason = "extraction_failed"
	SkippedUnsupportedType  SkippedReason = "unsupported_type"
)

func (s SkippedReason) String() string {
	return string(s)
}

// ProcessedIn records which tier handled an attachment payload.
type ProcessedIn string

const (
	ProcessedInMemory      ProcessedIn = "memory"
	ProcessedInTempStorage ProcessedIn = "temp_storage"
	ProcessedSkipped       ProcessedIn = "skipped"
)

func (p ProcessedIn) String() string {
	return string(p)
}

// ContentFamily is the closed set of extractor families.
type ContentFamily string

const (
	ContentFamilyPlain       ContentFamily = "plain"
	ContentFamilyPDF         ContentFamily = "pdf"
	ContentFamilyOffice      ContentFamily = "office"
	ContentFamilyImage       ContentFamily = "image"
	ContentFamilyUnsupported ContentFamily = "unsupported"
)

func (c ContentFamily) String() string {
	return string(c)
}
