package pipeline

import (
	"bytes"

	"fileflow/internal/fileflow/domain"
)

// Result is the outcome of one pipeline run. Immutable once produced;
// owned by the caller that invoked the pipeline.
type Result struct {
	Chunks  [][]byte
	Context *domain.ProcessingContext
	Stats   map[string]*Statistics
	Success bool
	Error   string

	totalBytes    int64
	totalComputed bool
}

// TotalBytes returns the byte count across all chunks. The sum is
// computed once and cached; repeated calls are idempotent and never
// mutate a chunk's read position (chunks are plain byte slices).
func (r *Result) TotalBytes() int64 {
	if !r.totalComputed {
		var total int64
		for _, chunk := range r.Chunks {
			total += int64(len(chunk))
		}
		r.totalBytes = total
		r.totalComputed = true
	}
	return r.totalBytes
}

// Bytes concatenates the chunks into one slice.
func (r *Result) Bytes() []byte {
	if len(r.Chunks) == 1 {
		return r.Chunks[0]
	}
	return bytes.Join(r.Chunks, nil)
}

// ProcessorApplied reports whether the named processor ran and actually
// applied its transformation during this run.
func (r *Result) ProcessorApplied(name string) bool {
	stats, ok := r.Stats[name]
	return ok && stats.Applied
}
