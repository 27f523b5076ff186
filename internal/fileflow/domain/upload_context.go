package domain

// AccessPattern describes the expected read pattern for an uploaded file.
type AccessPattern string

const (
	AccessHot  AccessPattern = "HOT"
	AccessWarm AccessPattern = "WARM"
	AccessCold AccessPattern = "COLD"
)

// Priority is the caller-declared priority of an upload.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityNormal   Priority = "NORMAL"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// FileUploadContext carries everything the router needs to know about an
// upload. Constructed once per upload request and never mutated.
type FileUploadContext struct {
	FileName      string
	FileSize      int64
	ContentType   string
	UploaderID    string
	IsPublic      bool
	AccessPattern AccessPattern
	Priority      Priority
	Tags          []string
	GeoLocation   string
}

// HasTag reports whether the upload carries the given tag.
func (c *FileUploadContext) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
