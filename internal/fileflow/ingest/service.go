// Package ingest orchestrates one upload end to end: route to a
// backend, spool to the temporary holding area, run the processor
// chain, upload the result, and release the temporary reference
// whatever the outcome.
package ingest

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"fileflow/internal/fileflow/domain"
	"fileflow/internal/fileflow/metrics"
	"fileflow/internal/fileflow/pipeline"
	"fileflow/internal/fileflow/router"
	"fileflow/internal/fileflow/storage"
	"fileflow/internal/fileflow/tempfile"
	"fileflow/internal/fileflow/transaction"
	"fileflow/pkg/config"
	fferrors "fileflow/pkg/errors"
	"fileflow/pkg/logger"
)

// maxSelectionAttempts bounds re-selection when chosen backends turn
// out to be unavailable.
const maxSelectionAttempts = 3

// Service wires the router, temp file manager, pipeline and storage
// registry into the ingestion flow the command layer calls.
type Service struct {
	cfg      config.PipelineConfig
	router   *router.Router
	temps    *tempfile.Manager
	pipeline *pipeline.Pipeline
	registry *storage.Registry
	tx       *transaction.Executor
	observer *metrics.Observer
	logger   *logger.Logger
}

// NewService builds the ingestion service. The observer may be nil.
func NewService(cfg config.PipelineConfig, rt *router.Router, temps *tempfile.Manager, pl *pipeline.Pipeline, registry *storage.Registry, observer *metrics.Observer, log *logger.Logger) *Service {
	return &Service{
		cfg:      cfg,
		router:   rt,
		temps:    temps,
		pipeline: pl,
		registry: registry,
		tx:       transaction.NewExecutor(temps, log),
		observer: observer,
		logger:   log.WithField("component", "ingest-service"),
	}
}

// Ingest runs the full flow with options inferred from the upload
// context.
func (s *Service) Ingest(ctx context.Context, upload *domain.FileUploadContext, r io.Reader) (*domain.UploadEvent, error) {
	opts := pipeline.OptionsFromUpload(upload, s.cfg)
	return s.IngestWithOptions(ctx, upload, opts, r)
}

// IngestWithOptions runs the full flow with caller-chosen processing
// options. The temporary reference created for the upload is released
// after the operation settles, success or failure.
func (s *Service) IngestWithOptions(ctx context.Context, upload *domain.FileUploadContext, opts domain.ProcessingOptions, r io.Reader) (*domain.UploadEvent, error) {
	start := time.Now()
	log := s.logger.WithField("file", upload.FileName)

	backend, decision, err := s.selectBackend(ctx, upload)
	if err != nil {
		s.observer.RecordIngest(time.Since(start), 0, err)
		return nil, err
	}
	log.Debug("backend chosen", "backend", backend.Name(), "score", decision.Score, "rule", decision.RuleType)

	ref, err := s.temps.Create(ctx, upload.FileName, upload.FileSize, upload.ContentType, r)
	if err != nil {
		s.observer.RecordIngest(time.Since(start), 0, err)
		return nil, err
	}

	var event *domain.UploadEvent
	err = s.tx.WithCleanup(ctx, ref.ID, func(ctx context.Context) error {
		var opErr error
		event, opErr = s.processAndStore(ctx, upload, opts, ref, backend)
		return opErr
	})
	if err != nil {
		s.observer.RecordIngest(time.Since(start), 0, err)
		return nil, err
	}

	event.ProcessingTime = time.Since(start)
	s.observer.RecordIngest(event.ProcessingTime, event.ProcessedSize, nil)
	log.Info("upload ingested",
		"backend", event.Backend, "path", event.StoragePath,
		"size", event.ProcessedSize, "pipelineProcessed", event.PipelineProcessed,
		"elapsed", event.ProcessingTime)
	return event, nil
}

// selectBackend routes the upload, re-invoking selection without the
// chosen backend whenever it turns out to be unavailable. An unusable
// backend is never returned while an alternative exists.
func (s *Service) selectBackend(ctx context.Context, upload *domain.FileUploadContext) (storage.Backend, *domain.RoutingDecision, error) {
	exclude := make(map[string]bool)

	for attempt := 0; attempt < maxSelectionAttempts; attempt++ {
		decision, err := s.router.Select(ctx, upload, exclude)
		if err != nil {
			return nil, nil, err
		}

		backend, exists := s.registry.Get(decision.Backend)
		if exists && s.router.IsStrategyAvailable(ctx, decision.Backend) {
			return backend, decision, nil
		}

		s.logger.Warn("chosen backend unavailable, re-selecting",
			"file", upload.FileName, "backend", decision.Backend, "attempt", attempt+1)
		exclude[decision.Backend] = true
	}

	return nil, nil, fmt.Errorf("routing %s: %w", upload.FileName, fferrors.ErrNoBackendAvailable)
}

// processAndStore runs the pipeline over the spooled bytes and uploads
// the outcome. A pipeline failure falls back to storing the original,
// unprocessed bytes with pipelineProcessed=false.
func (s *Service) processAndStore(ctx context.Context, upload *domain.FileUploadContext, opts domain.ProcessingOptions, ref *domain.TemporaryFileReference, backend storage.Backend) (*domain.UploadEvent, error) {
	pctx := domain.NewProcessingContext(upload.FileName, upload.ContentType, ref.Size, upload.UploaderID, opts)

	stream, err := s.temps.GetStream(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	result := s.pipeline.Run(ctx, stream, pctx)
	_ = stream.Close()

	objectPath := s.objectPath(upload, ref)

	var payload io.Reader
	if result.Success {
		payload = newChunkReader(result.Chunks)
	} else {
		s.observer.RecordPipelineFallback()
		s.logger.Warn("pipeline failed, storing original bytes",
			"file", upload.FileName, "error", result.Error)
		original, err := s.temps.GetStream(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		defer original.Close()
		payload = original
	}

	// backend failures here propagate: retry/backoff policy belongs to
	// the caller
	info, err := backend.Upload(ctx, objectPath, payload, upload.ContentType, map[string]string{
		"uploader": upload.UploaderID,
	})
	if err != nil {
		return nil, fmt.Errorf("upload to %s failed: %w", backend.Name(), err)
	}

	s.storeThumbnail(ctx, backend, objectPath, pctx)

	return s.buildEvent(backend.Name(), info, ref, result), nil
}

// storeThumbnail writes the side artifact next to the main object. A
// failure here only costs metadata richness, never the upload.
func (s *Service) storeThumbnail(ctx context.Context, backend storage.Backend, objectPath string, pctx *domain.ProcessingContext) {
	if len(pctx.Thumbnail) == 0 {
		return
	}
	thumbPath := objectPath + ".thumb.png"
	if _, err := backend.Upload(ctx, thumbPath, newChunkReader([][]byte{pctx.Thumbnail}), "image/png", nil); err != nil {
		s.logger.Warn("failed to store thumbnail", "path", thumbPath, "error", err)
		return
	}
	pctx.Metadata.Set("thumbnail.path", thumbPath)
}

func (s *Service) objectPath(upload *domain.FileUploadContext, ref *domain.TemporaryFileReference) string {
	uploader := upload.UploaderID
	if uploader == "" {
		uploader = "anonymous"
	}
	return path.Join("uploads", uploader, ref.ID+"-"+path.Base(upload.FileName))
}

// buildEvent assembles the business event payload: chosen backend,
// final path, checksum, per-processor flags and pipeline metadata.
func (s *Service) buildEvent(backendName string, info *storage.ObjectInfo, ref *domain.TemporaryFileReference, result *pipeline.Result) *domain.UploadEvent {
	checksum, ok := result.Context.Metadata.GetString("checksum")
	if !ok {
		// pipeline checksum disabled or run failed; the reference's
		// spool-time digest covers the original bytes
		checksum = ref.Checksum
	}

	flags := make(map[string]string, len(pipeline.KnownProcessorNames()))
	for _, name := range pipeline.KnownProcessorNames() {
		if result.ProcessorApplied(name) {
			flags[name+"_processed"] = "true"
		} else {
			flags[name+"_processed"] = "false"
		}
	}

	return &domain.UploadEvent{
		Backend:           backendName,
		StoragePath:       info.Path,
		Checksum:          checksum,
		ProcessorFlags:    flags,
		PipelineProcessed: result.Success,
		ProcessedSize:     info.Size,
	}
}

// chunkReader streams a slice of chunks without concatenating them.
type chunkReader struct {
	chunks [][]byte
	index  int
	offset int
}

func newChunkReader(chunks [][]byte) *chunkReader {
	return &chunkReader{chunks: chunks}
}

func (c *chunkReader) Read(p []byte) (int, error) {
	for c.index < len(c.chunks) {
		chunk := c.chunks[c.index]
		if c.offset < len(chunk) {
			n := copy(p, chunk[c.offset:])
			c.offset += n
			return n, nil
		}
		c.index++
		c.offset = 0
	}
	return 0, io.EOF
}
