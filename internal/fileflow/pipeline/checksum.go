package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"time"

	"github.com/zeebo/blake3"

	"fileflow/internal/fileflow/domain"
)

// ChecksumProcessor streams the upload through a cryptographic digest.
// The final hex digest is written to context metadata only in Cleanup,
// after every chunk has been seen.
type ChecksumProcessor struct {
	algorithm string
	hasher    hash.Hash
	stats     Statistics
	start     time.Time
}

var _ Processor = (*ChecksumProcessor)(nil)

// NewChecksumProcessor builds a checksum processor. Supported
// algorithms: "sha256" (default) and "blake3".
func NewChecksumProcessor(algorithm string) *ChecksumProcessor {
	if algorithm == "" {
		algorithm = "sha256"
	}
	return &ChecksumProcessor{algorithm: algorithm}
}

func (p *ChecksumProcessor) Name() string  { return "ChecksumProcessor" }
func (p *ChecksumProcessor) Priority() int { return PriorityChecksum }

func (p *ChecksumProcessor) Applicable(pctx *domain.ProcessingContext) bool {
	return pctx.Options.EnableChecksumValidation
}

func (p *ChecksumProcessor) Init(pctx *domain.ProcessingContext) error {
	p.start = time.Now()
	switch p.algorithm {
	case "sha256":
		p.hasher = sha256.New()
	case "blake3":
		p.hasher = blake3.New()
	default:
		return fmt.Errorf("unsupported checksum algorithm %q", p.algorithm)
	}
	return nil
}

func (p *ChecksumProcessor) Process(r io.Reader, pctx *domain.ProcessingContext) (io.Reader, error) {
	tee := io.TeeReader(r, p.hasher)
	return &countingReader{r: tee, n: &p.stats.BytesProcessed}, nil
}

func (p *ChecksumProcessor) Cleanup(pctx *domain.ProcessingContext) error {
	if p.hasher == nil {
		return nil
	}
	digest := hex.EncodeToString(p.hasher.Sum(nil))
	pctx.Metadata.Set("checksum", digest)
	pctx.Metadata.Set("checksum.algorithm", p.algorithm)

	p.stats.Applied = true
	p.stats.Duration = time.Since(p.start)
	return nil
}

func (p *ChecksumProcessor) Stats() *Statistics { return &p.stats }
