package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/mailvault/mailvault/config"
	"github.com/mailvault/mailvault/interfaces"
	"github.com/mailvault/mailvault/internal/enum"
	er "github.com/mailvault/mailvault/internal/errors"
	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/metrics"
	"github.com/mailvault/mailvault/internal/tracing"
	"github.com/mailvault/mailvault/services/extract"
)

const tempFilePattern = "att-*.spool"

// Processor runs attachments through checksumming, size tiering, and text
// extraction. Memory use per attachment is bounded: payloads over the
// memory threshold are staged in a scoped temp file, payloads over the
// temp-file threshold are skipped outright.
type Processor struct {
	cfg      *config.PipelineConfig
	registry *extract.Registry
	log      logger.Logger
	tempDir  string

	// dedupCache short-circuits extraction for payloads already seen this
	// process, keyed by checksum. Purely an optimization; results are
	// identical with the cache disabled.
	dedupCache *lru.Cache[string, string]
}

func NewProcessor(cfg *config.PipelineConfig, registry *extract.Registry, log logger.Logger) (*Processor, error) {
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "mailvault-attachments")
	}
	if err := os.MkdirAll(tempDir, 0o700); err != nil {
		return nil, errors.Wrap(err, "failed to create attachment temp dir")
	}

	cacheSize := cfg.DedupCacheSize
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create dedup cache")
	}

	return &Processor{
		cfg:        cfg,
		registry:   registry,
		log:        log,
		tempDir:    tempDir,
		dedupCache: cache,
	}, nil
}

func (p *Processor) TempDir() string {
	return p.tempDir
}

func (p *Processor) Process(ctx context.Context, input interfaces.AttachmentInput) *interfaces.AttachmentResult {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Processor.Process")
	defer span.Finish()
	tracing.TagComponentPipeline(span)

	size := int64(len(input.Payload))
	sum := sha256.Sum256(input.Payload)

	result := &interfaces.AttachmentResult{
		Filename:    input.Filename,
		ContentType: input.ContentType,
		ContentID:   input.ContentID,
		IsInline:    input.IsInline,
		Checksum:    hex.EncodeToString(sum[:]),
		Size:        size,
	}
	span.LogKV("filename", input.Filename, "size", size)

	if size > p.cfg.TempFileThresholdBytes {
		p.markSkipped(result, enum.ProcessedSkipped, enum.SkippedTooLarge)
		return result
	}

	tier := enum.ProcessedInMemory
	if size > p.cfg.MemoryThresholdBytes {
		tier = enum.ProcessedInTempStorage
	}
	result.ProcessedIn = tier

	extractor, family := p.registry.Resolve(input.ContentType, input.Filename)
	if extractor == nil {
		p.markSkipped(result, tier, enum.SkippedUnsupportedType)
		return result
	}

	if text, ok := p.dedupCache.Get(result.Checksum); ok {
		result.ExtractedText = &text
		metrics.RecordAttachment(tier.String(), "dedup_hit")
		return result
	}

	reader, cleanup, err := p.stage(input.Payload, tier)
	if err != nil {
		p.log.Errorf("failed to stage attachment %s: %v", input.Filename, err)
		p.markSkipped(result, tier, enum.SkippedExtractionFailed)
		return result
	}
	defer cleanup()

	started := time.Now()
	text, err := p.extractWithTimeout(ctx, extractor, reader, size)
	metrics.RecordExtraction(family.String(), time.Since(started))

	switch {
	case err == nil:
		result.ExtractedText = &text
		p.dedupCache.Add(result.Checksum, text)
		metrics.RecordAttachment(tier.String(), "extracted")
	case errors.Is(err, er.ErrUnsupportedType):
		p.markSkipped(result, tier, enum.SkippedUnsupportedType)
	default:
		tracing.TraceErr(span, err)
		p.log.Warnf("extraction failed for %s (%s): %v", input.Filename, input.ContentType, err)
		p.markSkipped(result, tier, enum.SkippedExtractionFailed)
	}

	return result
}

// ProcessAll fans a batch out over a bounded worker pool. Results keep the
// input order.
func (p *Processor) ProcessAll(ctx context.Context, inputs []interfaces.AttachmentInput) []*interfaces.AttachmentResult {
	results := make([]*interfaces.AttachmentResult, len(inputs))
	if len(inputs) == 0 {
		return results
	}

	workers := p.cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup
	for i := range inputs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = p.Process(ctx, inputs[i])
		}(i)
	}
	wg.Wait()

	return results
}

func (p *Processor) markSkipped(result *interfaces.AttachmentResult, tier enum.ProcessedIn, reason enum.SkippedReason) {
	result.ProcessedIn = tier
	result.SkippedReason = &reason
	result.ExtractedText = nil
	metrics.RecordAttachment(tier.String(), reason.String())
}

// stage presents the payload as a ReaderAt for the chosen tier. The temp
// tier spools to a file that the returned cleanup always removes.
func (p *Processor) stage(payload []byte, tier enum.ProcessedIn) (io.ReaderAt, func(), error) {
	if tier == enum.ProcessedInMemory {
		return bytes.NewReader(payload), func() {}, nil
	}

	f, err := os.CreateTemp(p.tempDir, tempFilePattern)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create spool file")
	}

	cleanup := func() {
		f.Close()
		if err := os.Remove(f.Name()); err != nil && !os.IsNotExist(err) {
			p.log.Warnf("failed to remove spool file %s: %v", f.Name(), err)
		}
	}

	if _, err := f.Write(payload); err != nil {
		cleanup()
		return nil, nil, errors.Wrap(err, "failed to write spool file")
	}

	return f, cleanup, nil
}

// extractWithTimeout bounds a single extraction. The extractor also gets
// the deadline through its context, but a hung extractor must not stall the
// batch, so the wait itself is bounded too.
func (p *Processor) extractWithTimeout(ctx context.Context, extractor interfaces.ContentExtractor, r io.ReaderAt, size int64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ExtractionTimeout())
	defer cancel()

	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		text, err := extractor.Extract(ctx, r, size)
		done <- outcome{text: text, err: err}
	}()

	select {
	case o := <-done:
		return o.text, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", er.ErrExtractionTimeout
		}
		return "", ctx.Err()
	}
}
