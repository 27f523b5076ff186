package pipeline

import (
	"bytes"
	"io"
	"time"

	"fileflow/internal/fileflow/domain"
)

// Scan verdicts recorded under scan.result.
const (
	ScanClean          = "CLEAN"
	ScanSuspicious     = "SUSPICIOUS"
	ScanThreatDetected = "THREAT_DETECTED"
)

// VirusScanProcessor scans the raw byte stream against a configured
// pattern list and a restricted content type set. Detection is advisory
// metadata only: the upload is never blocked here, policy enforcement
// belongs to the caller.
type VirusScanProcessor struct {
	patterns        [][]byte
	restrictedTypes map[string]bool

	stats      Statistics
	start      time.Time
	matched    bool
	suspicious bool
	// overlap keeps the tail of the previous read so patterns spanning
	// chunk boundaries are still found
	overlap    []byte
	maxPattern int
}

var _ Processor = (*VirusScanProcessor)(nil)

// NewVirusScanProcessor builds a scan processor for one run.
func NewVirusScanProcessor(patterns []string, restrictedTypes []string) *VirusScanProcessor {
	p := &VirusScanProcessor{
		restrictedTypes: make(map[string]bool, len(restrictedTypes)),
	}
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		raw := []byte(pattern)
		p.patterns = append(p.patterns, raw)
		if len(raw) > p.maxPattern {
			p.maxPattern = len(raw)
		}
	}
	for _, ct := range restrictedTypes {
		p.restrictedTypes[ct] = true
	}
	return p
}

func (p *VirusScanProcessor) Name() string  { return "VirusScanProcessor" }
func (p *VirusScanProcessor) Priority() int { return PriorityVirusScan }

func (p *VirusScanProcessor) Applicable(pctx *domain.ProcessingContext) bool {
	return pctx.Options.EnableVirusScan
}

func (p *VirusScanProcessor) Init(pctx *domain.ProcessingContext) error {
	p.start = time.Now()
	if p.restrictedTypes[pctx.ContentType] {
		p.suspicious = true
	}
	return nil
}

// Process wraps the stream so scanning happens as the bytes flow
// through; the stream itself is never altered.
func (p *VirusScanProcessor) Process(r io.Reader, pctx *domain.ProcessingContext) (io.Reader, error) {
	return &scanReader{r: r, p: p}, nil
}

func (p *VirusScanProcessor) scanChunk(chunk []byte) {
	if len(p.patterns) == 0 || p.matched {
		return
	}

	window := chunk
	if len(p.overlap) > 0 {
		window = append(append([]byte(nil), p.overlap...), chunk...)
	}
	for _, pattern := range p.patterns {
		if bytes.Contains(window, pattern) {
			p.matched = true
			return
		}
	}

	keep := p.maxPattern - 1
	if keep <= 0 {
		p.overlap = nil
		return
	}
	if len(window) > keep {
		window = window[len(window)-keep:]
	}
	p.overlap = append(p.overlap[:0], window...)
}

func (p *VirusScanProcessor) Cleanup(pctx *domain.ProcessingContext) error {
	verdict := ScanClean
	switch {
	case p.matched:
		verdict = ScanThreatDetected
	case p.suspicious:
		verdict = ScanSuspicious
	}

	pctx.Metadata.Set("scan.result", verdict)
	pctx.Metadata.Set("scan.bytesScanned", p.stats.BytesProcessed)

	p.stats.Applied = true
	p.stats.Duration = time.Since(p.start)
	return nil
}

func (p *VirusScanProcessor) Stats() *Statistics { return &p.stats }

type scanReader struct {
	r io.Reader
	p *VirusScanProcessor
}

func (s *scanReader) Read(buf []byte) (int, error) {
	n, err := s.r.Read(buf)
	if n > 0 {
		s.p.stats.BytesProcessed += int64(n)
		s.p.scanChunk(buf[:n])
	}
	return n, err
}
