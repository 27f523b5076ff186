package ingest_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fileflow/internal/fileflow/domain"
	"fileflow/internal/fileflow/ingest"
	"fileflow/internal/fileflow/pipeline"
	"fileflow/internal/fileflow/router"
	"fileflow/internal/fileflow/storage"
	"fileflow/internal/fileflow/tempfile"
	"fileflow/pkg/config"
	fferrors "fileflow/pkg/errors"
	"fileflow/pkg/logger"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestLogger() *logger.Logger {
	return logger.NewWithConfig(logger.Config{Level: logger.ERROR, Output: io.Discard})
}

type fixture struct {
	service  *ingest.Service
	temps    *tempfile.Manager
	backends map[string]*storage.MemoryBackend
}

// newFixture wires a complete ingestion stack over in-memory backends.
func newFixture(t *testing.T, backendDefs map[string]string) *fixture {
	t.Helper()
	log := newTestLogger()

	registry := storage.NewRegistry(log)
	backends := make(map[string]*storage.MemoryBackend, len(backendDefs))
	for name, kind := range backendDefs {
		b := storage.NewMemoryBackend(name, kind)
		backends[name] = b
		registry.Register(b, true)
	}

	routerCfg := config.DefaultConfig.Router
	routerCfg.AvailabilityCacheTTL = 0 // keep availability live for the tests
	rt := router.New(routerCfg, registry, log)

	tempCfg := config.TempFileConfig{
		Directory:         t.TempDir(),
		DefaultExpiration: time.Hour,
		MaxFileSize:       1 << 20,
		CleanupInterval:   time.Hour,
	}
	temps, err := tempfile.New(tempCfg, nil, log)
	require.NoError(t, err)
	t.Cleanup(temps.Stop)

	pipelineCfg := config.DefaultConfig.Pipeline
	pipelineCfg.EncryptionKey = testKeyHex
	pl, err := pipeline.New(pipelineCfg, log)
	require.NoError(t, err)

	return &fixture{
		service:  ingest.NewService(pipelineCfg, rt, temps, pl, registry, nil, log),
		temps:    temps,
		backends: backends,
	}
}

func TestService_IngestPrivateTextFile(t *testing.T) {
	f := newFixture(t, map[string]string{"LOCAL": storage.KindLocal})
	content := bytes.Repeat([]byte("business document line\n"), 50)

	upload := &domain.FileUploadContext{
		FileName:    "doc.txt",
		FileSize:    int64(len(content)),
		ContentType: "text/plain",
		UploaderID:  "alice",
	}

	event, err := f.service.Ingest(context.Background(), upload, bytes.NewReader(content))
	require.NoError(t, err)

	require.Equal(t, "LOCAL", event.Backend)
	require.True(t, event.PipelineProcessed)
	require.Positive(t, event.ProcessedSize)

	// checksum covers the original plaintext bytes
	sum := sha256.Sum256(content)
	require.Equal(t, hex.EncodeToString(sum[:]), event.Checksum)

	require.Equal(t, "true", event.ProcessorFlags["ChecksumProcessor_processed"])
	require.Equal(t, "true", event.ProcessorFlags["EncryptionProcessor_processed"])
	require.Equal(t, "false", event.ProcessorFlags["CompressionProcessor_processed"])
	require.Equal(t, "false", event.ProcessorFlags["ThumbnailProcessor_processed"])

	// stored object exists on the chosen backend
	exists, err := f.backends["LOCAL"].Exists(context.Background(), event.StoragePath)
	require.NoError(t, err)
	require.True(t, exists)

	// the temporary reference is released after the operation settles
	require.Equal(t, 0, f.temps.Count())
}

func TestService_IngestValidatesUpload(t *testing.T) {
	f := newFixture(t, map[string]string{"LOCAL": storage.KindLocal})

	upload := &domain.FileUploadContext{
		FileName:    "",
		FileSize:    10,
		ContentType: "text/plain",
	}

	_, err := f.service.Ingest(context.Background(), upload, bytes.NewReader([]byte("0123456789")))
	require.ErrorIs(t, err, fferrors.ErrEmptyFileName)
	require.Equal(t, 0, f.temps.Count())
}

func TestService_ReselectsWhenChosenBackendUnavailable(t *testing.T) {
	f := newFixture(t, map[string]string{
		"LOCAL": storage.KindLocal,
		"S3":    storage.KindS3,
	})

	// a tiny text file routes to LOCAL; make it unavailable
	f.backends["LOCAL"].SetAvailable(false)

	content := []byte("small note")
	upload := &domain.FileUploadContext{
		FileName:    "note.txt",
		FileSize:    int64(len(content)),
		ContentType: "text/plain",
		IsPublic:    true, // no encryption, keeps the assertion simple
	}

	event, err := f.service.Ingest(context.Background(), upload, bytes.NewReader(content))
	require.NoError(t, err)
	require.Equal(t, "S3", event.Backend)

	stream, err := f.backends["S3"].Download(context.Background(), event.StoragePath)
	require.NoError(t, err)
	defer stream.Close()
	stored, err := io.ReadAll(stream)
	require.NoError(t, err)
	require.Equal(t, content, stored)
}

func TestService_FailsWhenEveryBackendUnavailable(t *testing.T) {
	f := newFixture(t, map[string]string{
		"LOCAL": storage.KindLocal,
		"S3":    storage.KindS3,
	})
	f.backends["LOCAL"].SetAvailable(false)
	f.backends["S3"].SetAvailable(false)

	upload := &domain.FileUploadContext{
		FileName:    "stranded.txt",
		FileSize:    5,
		ContentType: "text/plain",
	}

	_, err := f.service.Ingest(context.Background(), upload, bytes.NewReader([]byte("hello")))
	if !errors.Is(err, fferrors.ErrNoBackendAvailable) {
		t.Fatalf("expected ErrNoBackendAvailable, got %v", err)
	}
}

func encodeTestPNG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 64, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestService_StoresThumbnailSideArtifact(t *testing.T) {
	f := newFixture(t, map[string]string{"LOCAL": storage.KindLocal})

	img := encodeTestPNG(t, 300, 200)
	upload := &domain.FileUploadContext{
		FileName:    "photo.png",
		FileSize:    int64(len(img)),
		ContentType: "image/png",
		UploaderID:  "bob",
		IsPublic:    true,
	}

	// thumbnails piggyback on the inferred options for image content
	event, err := f.service.Ingest(context.Background(), upload, bytes.NewReader(img))
	require.NoError(t, err)
	require.Equal(t, "true", event.ProcessorFlags["ThumbnailProcessor_processed"])

	exists, err := f.backends["LOCAL"].Exists(context.Background(), event.StoragePath+".thumb.png")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestService_ExplicitOptionsOverrideInference(t *testing.T) {
	f := newFixture(t, map[string]string{"LOCAL": storage.KindLocal})
	content := bytes.Repeat([]byte("compressible content! "), 500)

	upload := &domain.FileUploadContext{
		FileName:    "data.txt",
		FileSize:    int64(len(content)),
		ContentType: "text/plain",
	}
	opts := domain.ProcessingOptions{
		EnableChecksumValidation: true,
		EnableCompression:        true,
	}

	event, err := f.service.IngestWithOptions(context.Background(), upload, opts, bytes.NewReader(content))
	require.NoError(t, err)

	require.Equal(t, "true", event.ProcessorFlags["CompressionProcessor_processed"])
	require.Equal(t, "false", event.ProcessorFlags["EncryptionProcessor_processed"])
	require.Equal(t, "false", event.ProcessorFlags["VirusScanProcessor_processed"])
	require.Less(t, event.ProcessedSize, int64(len(content)))
}
