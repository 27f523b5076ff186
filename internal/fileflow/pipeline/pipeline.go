package pipeline

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"fileflow/internal/fileflow/domain"
	"fileflow/pkg/config"
	fferrors "fileflow/pkg/errors"
	"fileflow/pkg/logger"
)

// Pipeline assembles a fresh processor chain per upload and runs it
// under a wall-clock timeout. Pipeline itself is safe for concurrent
// use; the processors it builds are not shared across runs.
type Pipeline struct {
	cfg    config.PipelineConfig
	key    []byte
	logger *logger.Logger
}

// New builds a pipeline from configuration. A malformed encryption key
// is reported here rather than failing uploads one by one later.
func New(cfg config.PipelineConfig, log *logger.Logger) (*Pipeline, error) {
	var key []byte
	if cfg.EncryptionKey != "" {
		decoded, err := hex.DecodeString(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("invalid encryption key: %w", err)
		}
		key = decoded
	}

	return &Pipeline{
		cfg:    cfg,
		key:    key,
		logger: log.WithField("component", "pipeline"),
	}, nil
}

// OptionsFromUpload derives processing options from caller intent and
// tag inference. Scan and checksum are on by default; compression is
// tag-driven; encryption follows visibility or an explicit tag;
// thumbnails follow the content type.
func OptionsFromUpload(upload *domain.FileUploadContext, cfg config.PipelineConfig) domain.ProcessingOptions {
	isImage := strings.HasPrefix(upload.ContentType, "image/")

	return domain.ProcessingOptions{
		EnableVirusScan:          !upload.HasTag("skip-scan"),
		EnableChecksumValidation: true,
		EnableCompression:        upload.HasTag("compress"),
		EnableEncryption:         !upload.IsPublic || upload.HasTag("encrypt"),
		EnableThumbnail:          isImage,
		BufferSize:               cfg.BufferSize,
		MaxProcessingTime:        cfg.MaxProcessingTime,
		CompressionLevel:         cfg.CompressionLevel,
		EncryptionAlgorithm:      cfg.EncryptionAlgorithm,
		ThumbnailSize:            cfg.ThumbnailSize,
	}
}

// buildProcessors returns one fresh instance of every known processor.
// The chain filters by applicability.
func (p *Pipeline) buildProcessors(pctx *domain.ProcessingContext) []Processor {
	algorithm := pctx.Options.EncryptionAlgorithm
	if algorithm == "" {
		algorithm = p.cfg.EncryptionAlgorithm
	}
	level := pctx.Options.CompressionLevel
	if level == 0 {
		level = p.cfg.CompressionLevel
	}
	size := pctx.Options.ThumbnailSize
	if size == 0 {
		size = p.cfg.ThumbnailSize
	}

	return []Processor{
		NewVirusScanProcessor(p.cfg.ScanPatterns, p.cfg.RestrictedContentTypes),
		NewChecksumProcessor(p.cfg.ChecksumAlgorithm),
		NewCompressionProcessor(p.cfg.CompressionAlgorithm, level, p.cfg.CompressionMinSize),
		NewEncryptionProcessor(algorithm, p.cfg.EncryptionKeyID, p.key),
		NewThumbnailProcessor(size, p.cfg.ThumbnailMaxWidth, p.cfg.ThumbnailMaxHeight, p.cfg.ThumbnailMaxFileSize),
	}
}

// KnownProcessorNames lists every processor the pipeline can run, used
// by callers emitting per-processor event flags.
func KnownProcessorNames() []string {
	return []string{
		"VirusScanProcessor",
		"ChecksumProcessor",
		"CompressionProcessor",
		"EncryptionProcessor",
		"ThumbnailProcessor",
	}
}

// Run executes one pipeline run against the stream. A timeout or an
// unrecoverable stream error yields Result{Success: false} with empty
// chunks; the caller falls back to storing the original bytes.
func (p *Pipeline) Run(ctx context.Context, r io.Reader, pctx *domain.ProcessingContext) *Result {
	timeout := pctx.Options.MaxProcessingTime
	if timeout <= 0 {
		timeout = p.cfg.MaxProcessingTime
	}

	bufferSize := pctx.Options.BufferSize
	if bufferSize <= 0 {
		bufferSize = p.cfg.BufferSize
	}

	// the chain runs against a detached copy of the context, so an
	// abandoned run can only ever write into its own copy; the caller's
	// context is updated solely on in-time completion
	runPctx := pctx.Clone()
	chain := NewChain(p.buildProcessors(runPctx), runPctx, bufferSize, p.logger)
	log := p.logger.WithField("file", pctx.FileName)
	log.Debug("pipeline run starting",
		"activeProcessors", chain.ActiveProcessors(), "size", pctx.FileSize, "timeout", timeout)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan *Result, 1)
	go func() {
		done <- chain.Execute(r, runPctx)
	}()

	select {
	case result := <-done:
		pctx.Metadata = runPctx.Metadata
		pctx.Thumbnail = runPctx.Thumbnail
		result.Context = pctx
		if result.Success {
			log.Debug("pipeline run completed", "totalBytes", result.TotalBytes(),
				"elapsed", time.Since(pctx.StartedAt))
		} else {
			log.Warn("pipeline run failed", "error", result.Error)
		}
		return result

	case <-runCtx.Done():
		// the run is abandoned, not retried; the goroutine's result is
		// discarded when it eventually finishes
		reason := fferrors.ErrPipelineTimeout.Error()
		if ctx.Err() != nil {
			reason = fmt.Sprintf("processing cancelled: %v", ctx.Err())
		}
		log.Warn("pipeline run abandoned", "reason", reason, "timeout", timeout)
		return &Result{
			Context: pctx,
			Stats:   make(map[string]*Statistics),
			Success: false,
			Error:   reason,
		}
	}
}
