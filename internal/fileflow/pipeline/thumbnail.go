package pipeline

import (
	"bytes"
	"fmt"
	"image/png"
	"io"
	"time"

	"github.com/disintegration/imaging"

	"fileflow/internal/fileflow/domain"
)

// ThumbnailProcessor produces a resized side artifact for recognized
// raster images. The main byte stream is never modified; the thumbnail
// lands on the processing context.
type ThumbnailProcessor struct {
	targetSize  int
	maxWidth    int
	maxHeight   int
	maxFileSize int64

	stats Statistics
	start time.Time
}

var _ Processor = (*ThumbnailProcessor)(nil)

// NewThumbnailProcessor builds a thumbnail processor for one run.
func NewThumbnailProcessor(targetSize, maxWidth, maxHeight int, maxFileSize int64) *ThumbnailProcessor {
	return &ThumbnailProcessor{
		targetSize:  targetSize,
		maxWidth:    maxWidth,
		maxHeight:   maxHeight,
		maxFileSize: maxFileSize,
	}
}

func (p *ThumbnailProcessor) Name() string  { return "ThumbnailProcessor" }
func (p *ThumbnailProcessor) Priority() int { return PriorityThumbnail }

func (p *ThumbnailProcessor) Applicable(pctx *domain.ProcessingContext) bool {
	return pctx.Options.EnableThumbnail && pctx.IsImage()
}

func (p *ThumbnailProcessor) Init(pctx *domain.ProcessingContext) error {
	p.start = time.Now()
	return nil
}

func (p *ThumbnailProcessor) Process(r io.Reader, pctx *domain.ProcessingContext) (io.Reader, error) {
	if p.maxFileSize > 0 && pctx.FileSize > p.maxFileSize {
		pctx.Metadata.Set("thumbnail.generated", false)
		pctx.Metadata.Set("thumbnail.skipReason", "source file too large")
		return r, nil
	}

	// the image must be decoded whole; the original bytes are handed
	// on unchanged afterwards
	original, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to buffer image: %w", err)
	}
	p.stats.BytesProcessed = int64(len(original))
	passthrough := bytes.NewReader(original)

	img, err := imaging.Decode(bytes.NewReader(original))
	if err != nil {
		pctx.Metadata.Set("thumbnail.generated", false)
		pctx.Metadata.Set("thumbnail.skipReason", fmt.Sprintf("decode failed: %v", err))
		return passthrough, nil
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if width > p.maxWidth || height > p.maxHeight {
		pctx.Metadata.Set("thumbnail.generated", false)
		pctx.Metadata.Set("thumbnail.skipReason", "source dimensions exceed maximum")
		return passthrough, nil
	}
	if width <= p.targetSize && height <= p.targetSize {
		pctx.Metadata.Set("thumbnail.generated", false)
		pctx.Metadata.Set("thumbnail.skipReason", "source already within target size")
		return passthrough, nil
	}

	thumb := imaging.Fit(img, p.targetSize, p.targetSize, imaging.Lanczos)

	var encoded bytes.Buffer
	if err := png.Encode(&encoded, thumb); err != nil {
		pctx.Metadata.Set("thumbnail.generated", false)
		pctx.Metadata.Set("thumbnail.skipReason", fmt.Sprintf("encode failed: %v", err))
		return passthrough, nil
	}

	pctx.Thumbnail = encoded.Bytes()
	pctx.Metadata.Set("thumbnail.generated", true)
	pctx.Metadata.Set("thumbnail.width", thumb.Bounds().Dx())
	pctx.Metadata.Set("thumbnail.height", thumb.Bounds().Dy())
	pctx.Metadata.Set("thumbnail.size", int64(encoded.Len()))

	p.stats.Applied = true
	return passthrough, nil
}

func (p *ThumbnailProcessor) Cleanup(pctx *domain.ProcessingContext) error {
	p.stats.Duration = time.Since(p.start)
	return nil
}

func (p *ThumbnailProcessor) Stats() *Statistics { return &p.stats }
