package pipeline_test

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fileflow/internal/fileflow/domain"
	"fileflow/internal/fileflow/pipeline"
	"fileflow/pkg/config"
	"fileflow/pkg/logger"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestLogger() *logger.Logger {
	return logger.NewWithConfig(logger.Config{Level: logger.ERROR, Output: io.Discard})
}

func testPipelineConfig() config.PipelineConfig {
	cfg := config.DefaultConfig.Pipeline
	cfg.EncryptionKey = testKeyHex
	return cfg
}

func runPipeline(t *testing.T, cfg config.PipelineConfig, opts domain.ProcessingOptions, contentType string, input []byte) *pipeline.Result {
	t.Helper()

	p, err := pipeline.New(cfg, newTestLogger())
	if err != nil {
		t.Fatalf("failed to build pipeline: %v", err)
	}

	pctx := domain.NewProcessingContext("test-file", contentType, int64(len(input)), "tester", opts)
	return p.Run(context.Background(), bytes.NewReader(input), pctx)
}

func TestPipeline_PassthroughWhenAllDisabled(t *testing.T) {
	input := bytes.Repeat([]byte("passthrough "), 200)

	result := runPipeline(t, testPipelineConfig(), domain.ProcessingOptions{}, "text/plain", input)

	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if !bytes.Equal(result.Bytes(), input) {
		t.Error("expected output to be byte-identical to input")
	}
	for _, name := range pipeline.KnownProcessorNames() {
		if result.ProcessorApplied(name) {
			t.Errorf("expected %s not to be applied", name)
		}
	}
}

func TestPipeline_ChecksumMatchesSHA256(t *testing.T) {
	input := []byte(strings.Repeat("checksum test content! ", 22))[:500]
	opts := domain.ProcessingOptions{EnableChecksumValidation: true}

	result := runPipeline(t, testPipelineConfig(), opts, "text/plain", input)

	require.True(t, result.Success)
	require.True(t, result.ProcessorApplied("ChecksumProcessor"))

	// stream content must be untouched
	require.Equal(t, input, result.Bytes())

	expected := sha256.Sum256(input)
	got, ok := result.Context.Metadata.GetString("checksum")
	require.True(t, ok, "checksum metadata missing")
	require.Equal(t, hex.EncodeToString(expected[:]), got)

	algorithm, _ := result.Context.Metadata.GetString("checksum.algorithm")
	require.Equal(t, "sha256", algorithm)
}

func TestCompression_SkipsFilesBelowMinimumSize(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.CompressionMinSize = 1024
	input := []byte("tiny file that should not be compressed")
	opts := domain.ProcessingOptions{EnableCompression: true}

	result := runPipeline(t, cfg, opts, "text/plain", input)

	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if !bytes.Equal(result.Bytes(), input) {
		t.Error("expected output unchanged for file below minimum size")
	}
	if result.ProcessorApplied("CompressionProcessor") {
		t.Error("expected compression not to be applied")
	}

	applied, ok := result.Context.Metadata.GetBool("compression.applied")
	if !ok || applied {
		t.Errorf("expected compression.applied=false, got %v (present=%v)", applied, ok)
	}
	reason, _ := result.Context.Metadata.GetString("compression.skipReason")
	if reason != "below minimum size" {
		t.Errorf("unexpected skip reason: %q", reason)
	}
}

func TestCompression_SkipsAlreadyCompressedContent(t *testing.T) {
	input := bytes.Repeat([]byte("jpeg-ish payload"), 500)
	opts := domain.ProcessingOptions{EnableCompression: true}

	result := runPipeline(t, testPipelineConfig(), opts, "image/jpeg", input)

	require.True(t, result.Success)
	require.Equal(t, input, result.Bytes())
	require.False(t, result.ProcessorApplied("CompressionProcessor"))
}

func TestCompression_AppliesForCompressibleText(t *testing.T) {
	input := bytes.Repeat([]byte("highly repetitive line of text\n"), 500)
	opts := domain.ProcessingOptions{EnableCompression: true}

	result := runPipeline(t, testPipelineConfig(), opts, "text/plain", input)

	require.True(t, result.Success)
	require.True(t, result.ProcessorApplied("CompressionProcessor"))
	require.Less(t, result.TotalBytes(), int64(len(input)))

	algorithm, _ := result.Context.Metadata.GetString("compression.algorithm")
	require.Equal(t, "zstd", algorithm)

	originalSize, ok := result.Context.Metadata.GetInt64("compression.originalSize")
	require.True(t, ok)
	require.Equal(t, int64(len(input)), originalSize)
}

func TestEncryption_RoundTrip(t *testing.T) {
	input := bytes.Repeat([]byte("secret payload "), 100)
	opts := domain.ProcessingOptions{EnableEncryption: true}

	result := runPipeline(t, testPipelineConfig(), opts, "text/plain", input)

	require.True(t, result.Success)
	require.True(t, result.ProcessorApplied("EncryptionProcessor"))

	sealed := result.Bytes()
	require.NotEqual(t, input, sealed)

	key, err := hex.DecodeString(testKeyHex)
	require.NoError(t, err)
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	aead, err := cipher.NewGCM(block)
	require.NoError(t, err)

	nonce := sealed[:aead.NonceSize()]
	plaintext, err := aead.Open(nil, nonce, sealed[aead.NonceSize():], nil)
	require.NoError(t, err)
	require.Equal(t, input, plaintext)

	keyID, _ := result.Context.Metadata.GetString("encryption.keyId")
	require.Equal(t, "default", keyID)
}

func TestEncryption_MissingKeyMakesProcessorInert(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.EncryptionKey = ""
	input := []byte("should pass through unencrypted")
	opts := domain.ProcessingOptions{EnableEncryption: true}

	result := runPipeline(t, cfg, opts, "text/plain", input)

	// Init failure must not fail the run
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if !bytes.Equal(result.Bytes(), input) {
		t.Error("expected passthrough when encryption cannot initialize")
	}
	if result.ProcessorApplied("EncryptionProcessor") {
		t.Error("expected encryption not to be applied")
	}

	// the failed Init shows up in the statistics, distinguishing an
	// inert processor from one that ran cleanly over zero bytes
	stats, ok := result.Stats["EncryptionProcessor"]
	if !ok {
		t.Fatal("expected statistics for the inert processor")
	}
	if stats.Errors != 1 {
		t.Errorf("expected 1 recorded error for the failed Init, got %d", stats.Errors)
	}
}

func TestScan_DetectsConfiguredPattern(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.ScanPatterns = []string{"MALICIOUS-MARKER"}
	input := []byte("prefix MALICIOUS-MARKER suffix")
	opts := domain.ProcessingOptions{EnableVirusScan: true}

	result := runPipeline(t, cfg, opts, "text/plain", input)

	require.True(t, result.Success)
	require.Equal(t, input, result.Bytes(), "scan must never alter the stream")

	verdict, _ := result.Context.Metadata.GetString("scan.result")
	require.Equal(t, pipeline.ScanThreatDetected, verdict)
}

func TestScan_DetectsPatternAcrossChunkBoundary(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.ScanPatterns = []string{"SPLIT-PATTERN-HERE"}
	opts := domain.ProcessingOptions{
		EnableVirusScan: true,
		// force many small reads so the pattern straddles chunks
		BufferSize: 8,
	}
	input := []byte("xxxxxxSPLIT-PATTERN-HEREyyyyyy")

	result := runPipeline(t, cfg, opts, "text/plain", input)

	require.True(t, result.Success)
	verdict, _ := result.Context.Metadata.GetString("scan.result")
	require.Equal(t, pipeline.ScanThreatDetected, verdict)
}

func TestScan_RestrictedContentTypeIsSuspicious(t *testing.T) {
	cfg := testPipelineConfig()
	opts := domain.ProcessingOptions{EnableVirusScan: true}
	input := []byte("plain executable bytes without any known pattern")

	result := runPipeline(t, cfg, opts, "application/x-msdownload", input)

	require.True(t, result.Success)
	verdict, _ := result.Context.Metadata.GetString("scan.result")
	require.Equal(t, pipeline.ScanSuspicious, verdict)
}

func TestScan_CleanFile(t *testing.T) {
	opts := domain.ProcessingOptions{EnableVirusScan: true}
	input := []byte("completely ordinary file contents")

	result := runPipeline(t, testPipelineConfig(), opts, "text/plain", input)

	require.True(t, result.Success)
	verdict, _ := result.Context.Metadata.GetString("scan.result")
	require.Equal(t, pipeline.ScanClean, verdict)
}

func encodeTestImage(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestThumbnail_GeneratedForLargeImage(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.ThumbnailSize = 64
	input := encodeTestImage(t, 300, 200)
	opts := domain.ProcessingOptions{EnableThumbnail: true}

	result := runPipeline(t, cfg, opts, "image/png", input)

	require.True(t, result.Success)
	require.True(t, result.ProcessorApplied("ThumbnailProcessor"))
	require.Equal(t, input, result.Bytes(), "original stream must pass through unchanged")
	require.NotEmpty(t, result.Context.Thumbnail)

	thumb, err := png.Decode(bytes.NewReader(result.Context.Thumbnail))
	require.NoError(t, err)
	require.LessOrEqual(t, thumb.Bounds().Dx(), 64)
	require.LessOrEqual(t, thumb.Bounds().Dy(), 64)
}

func TestThumbnail_SkippedForSmallImage(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.ThumbnailSize = 256
	input := encodeTestImage(t, 32, 32)
	opts := domain.ProcessingOptions{EnableThumbnail: true}

	result := runPipeline(t, cfg, opts, "image/png", input)

	require.True(t, result.Success)
	require.False(t, result.ProcessorApplied("ThumbnailProcessor"))
	require.Empty(t, result.Context.Thumbnail)

	generated, ok := result.Context.Metadata.GetBool("thumbnail.generated")
	require.True(t, ok)
	require.False(t, generated)
}

func TestThumbnail_NotApplicableForNonImage(t *testing.T) {
	opts := domain.ProcessingOptions{EnableThumbnail: true}
	input := []byte("not an image at all")

	result := runPipeline(t, testPipelineConfig(), opts, "application/octet-stream", input)

	require.True(t, result.Success)
	require.False(t, result.ProcessorApplied("ThumbnailProcessor"))
	if result.Context.Metadata.Has("thumbnail.generated") {
		t.Error("thumbnail processor should not have run for non-image content")
	}
}

// stallingReader never finishes, forcing the run into its timeout path.
type stallingReader struct{}

func (stallingReader) Read(p []byte) (int, error) {
	time.Sleep(20 * time.Millisecond)
	for i := range p {
		p[i] = 'x'
	}
	return len(p), nil
}

func TestPipeline_RunTimesOut(t *testing.T) {
	cfg := testPipelineConfig()
	p, err := pipeline.New(cfg, newTestLogger())
	if err != nil {
		t.Fatalf("failed to build pipeline: %v", err)
	}

	opts := domain.ProcessingOptions{
		EnableChecksumValidation: true,
		MaxProcessingTime:        50 * time.Millisecond,
	}
	pctx := domain.NewProcessingContext("stalling", "text/plain", 1<<20, "tester", opts)

	result := p.Run(context.Background(), stallingReader{}, pctx)

	if result.Success {
		t.Fatal("expected the run to fail on timeout")
	}
	if len(result.Chunks) != 0 {
		t.Errorf("expected no chunks from an abandoned run, got %d", len(result.Chunks))
	}
}

// trickleReader delivers one byte per slow read and EOFs after a fixed
// number of reads, so a timed-out run finishes well after Run returned.
type trickleReader struct {
	reads int
}

func (r *trickleReader) Read(p []byte) (int, error) {
	time.Sleep(20 * time.Millisecond)
	if r.reads >= 8 {
		return 0, io.EOF
	}
	r.reads++
	p[0] = 'x'
	return 1, nil
}

func TestPipeline_AbandonedRunLeavesCallerContextUntouched(t *testing.T) {
	p, err := pipeline.New(testPipelineConfig(), newTestLogger())
	require.NoError(t, err)

	opts := domain.ProcessingOptions{
		EnableChecksumValidation: true,
		MaxProcessingTime:        40 * time.Millisecond,
	}
	pctx := domain.NewProcessingContext("slow-then-done", "text/plain", 8, "tester", opts)

	result := p.Run(context.Background(), &trickleReader{}, pctx)
	require.False(t, result.Success)
	require.Same(t, pctx, result.Context)

	// let the timed-out run drain to EOF and finish its cleanup phase
	time.Sleep(400 * time.Millisecond)

	if pctx.Metadata.Has("checksum") {
		t.Error("a timed-out run must not write into the caller's metadata")
	}
	if len(pctx.Thumbnail) != 0 {
		t.Error("a timed-out run must not attach artifacts to the caller's context")
	}
}

func TestChain_OrdersProcessorsByPriority(t *testing.T) {
	opts := domain.ProcessingOptions{
		EnableVirusScan:          true,
		EnableChecksumValidation: true,
		EnableCompression:        true,
	}
	pctx := domain.NewProcessingContext("order", "text/plain", 4096, "tester", opts)

	key, _ := hex.DecodeString(testKeyHex)
	// deliberately scrambled
	processors := []pipeline.Processor{
		pipeline.NewCompressionProcessor("zstd", 3, 0),
		pipeline.NewEncryptionProcessor("aes-gcm", "default", key),
		pipeline.NewChecksumProcessor("sha256"),
		pipeline.NewVirusScanProcessor(nil, nil),
	}

	chain := pipeline.NewChain(processors, pctx, 0, newTestLogger())

	expected := []string{"VirusScanProcessor", "ChecksumProcessor", "CompressionProcessor"}
	require.Equal(t, expected, chain.ActiveProcessors())
}

func TestResult_TotalBytesIsIdempotent(t *testing.T) {
	input := bytes.Repeat([]byte("abcd"), 1000)
	opts := domain.ProcessingOptions{EnableChecksumValidation: true, BufferSize: 512}

	result := runPipeline(t, testPipelineConfig(), opts, "text/plain", input)

	require.True(t, result.Success)
	first := result.TotalBytes()
	second := result.TotalBytes()
	require.Equal(t, first, second)
	require.Equal(t, int64(len(input)), first)
	require.Equal(t, input, result.Bytes(), "TotalBytes must not consume the chunks")
}

func TestOptionsFromUpload_TagInference(t *testing.T) {
	cfg := testPipelineConfig()

	tests := []struct {
		name   string
		upload domain.FileUploadContext
		check  func(t *testing.T, opts domain.ProcessingOptions)
	}{
		{
			name:   "private upload gets scan, checksum and encryption",
			upload: domain.FileUploadContext{ContentType: "text/plain"},
			check: func(t *testing.T, opts domain.ProcessingOptions) {
				if !opts.EnableVirusScan || !opts.EnableChecksumValidation || !opts.EnableEncryption {
					t.Error("expected scan, checksum and encryption on")
				}
				if opts.EnableCompression || opts.EnableThumbnail {
					t.Error("expected compression and thumbnail off")
				}
			},
		},
		{
			name:   "public upload skips encryption",
			upload: domain.FileUploadContext{ContentType: "text/plain", IsPublic: true},
			check: func(t *testing.T, opts domain.ProcessingOptions) {
				if opts.EnableEncryption {
					t.Error("expected encryption off for public upload")
				}
			},
		},
		{
			name:   "encrypt tag forces encryption for public upload",
			upload: domain.FileUploadContext{ContentType: "text/plain", IsPublic: true, Tags: []string{"encrypt"}},
			check: func(t *testing.T, opts domain.ProcessingOptions) {
				if !opts.EnableEncryption {
					t.Error("expected encryption on with encrypt tag")
				}
			},
		},
		{
			name:   "skip-scan tag disables scanning",
			upload: domain.FileUploadContext{ContentType: "text/plain", Tags: []string{"skip-scan"}},
			check: func(t *testing.T, opts domain.ProcessingOptions) {
				if opts.EnableVirusScan {
					t.Error("expected scan off with skip-scan tag")
				}
			},
		},
		{
			name:   "compress tag enables compression",
			upload: domain.FileUploadContext{ContentType: "text/plain", Tags: []string{"compress"}},
			check: func(t *testing.T, opts domain.ProcessingOptions) {
				if !opts.EnableCompression {
					t.Error("expected compression on with compress tag")
				}
			},
		},
		{
			name:   "image content enables thumbnail",
			upload: domain.FileUploadContext{ContentType: "image/png"},
			check: func(t *testing.T, opts domain.ProcessingOptions) {
				if !opts.EnableThumbnail {
					t.Error("expected thumbnail on for image content")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, pipeline.OptionsFromUpload(&tt.upload, cfg))
		})
	}
}
