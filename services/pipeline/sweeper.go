package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/mailvault/mailvault/internal/tracing"
	"github.com/mailvault/mailvault/internal/utils"
)

// SweepTempFiles removes spool files older than maxAge. Normal operation
// deletes each spool file on the spot; the sweep is the backstop for files
// orphaned by a crash mid-extraction.
func (p *Processor) SweepTempFiles(ctx context.Context, maxAge time.Duration) (int, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "Processor.SweepTempFiles")
	defer span.Finish()
	tracing.TagComponentPipeline(span)

	pattern := filepath.Join(p.tempDir, tempFilePattern)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, errors.Wrap(err, "failed to list spool files")
	}

	cutoff := utils.Now().Add(-maxAge)
	removed := 0
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			p.log.Warnf("failed to sweep spool file %s: %v", path, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		p.log.Infof("swept %d stale spool files from %s", removed, p.tempDir)
	}
	span.LogKV("removed", removed)
	return removed, nil
}
