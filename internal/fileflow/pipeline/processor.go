// Package pipeline implements the stream processor chain and the
// ingestion pipeline that drives it. Processors transform an upload's
// byte stream in priority order while it is being written to storage.
//
// Metadata key namespace (one prefix per processor):
//
//	scan.*        virus/content scan results
//	checksum.*    digest algorithm and final hex digest
//	compression.* applied flag, sizes, ratio, errors
//	encryption.*  applied flag, algorithm, key id
//	thumbnail.*   generation results and skip reasons
package pipeline

import (
	"io"
	"time"

	"fileflow/internal/fileflow/domain"
)

// Processor priorities. Security and integrity checks run before
// content-altering steps.
const (
	PriorityVirusScan   = 5
	PriorityChecksum    = 10
	PriorityCompression = 30
	PriorityEncryption  = 40
	PriorityThumbnail   = 50
)

// Processor is one pluggable stage of the chain. A processor instance
// is stateful only for the duration of one run and must not be shared
// across concurrent runs; the pipeline builds a fresh set per run.
type Processor interface {
	// Name identifies the processor in statistics and event flags.
	Name() string
	// Priority orders the chain; lower runs earlier.
	Priority() int
	// Applicable reports whether this processor participates in the run.
	Applicable(pctx *domain.ProcessingContext) bool
	// Init prepares per-run state. A failing processor is treated as
	// inert for the run, never fatal to the upload.
	Init(pctx *domain.ProcessingContext) error
	// Process transforms the input stream. Returning an error makes the
	// chain substitute the input it received as this processor's output.
	Process(r io.Reader, pctx *domain.ProcessingContext) (io.Reader, error)
	// Cleanup finalizes metadata after the stream is fully drained. It
	// runs for every active processor regardless of earlier errors.
	Cleanup(pctx *domain.ProcessingContext) error
	// Stats returns this run's counters.
	Stats() *Statistics
}

// Statistics holds per-processor counters for one invocation. Read-only
// after the pipeline completes.
type Statistics struct {
	BytesProcessed int64
	Duration       time.Duration
	Errors         int
	// Applied reports whether the processor actually did its work (as
	// opposed to passing bytes through untouched).
	Applied bool
}

// countingReader counts bytes flowing through a processor's output so
// streaming processors can fill in BytesProcessed.
type countingReader struct {
	r io.Reader
	n *int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	*c.n += int64(n)
	return n, err
}
