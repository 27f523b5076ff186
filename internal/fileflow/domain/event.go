package domain

import "time"

// UploadEvent is the payload handed back to the command/event layer
// after an ingest completes. The business layer attaches it to the
// event it persists; only the fields below are required by that
// contract.
type UploadEvent struct {
	Backend        string
	StoragePath    string
	Checksum       string
	ProcessorFlags map[string]string // "<name>_processed" -> "true"/"false"

	PipelineProcessed bool
	ProcessingTime    time.Duration
	ProcessedSize     int64
}
