package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"fileflow/internal/fileflow/domain"
)

func newIngestCmd() *cobra.Command {
	var (
		contentType string
		uploader    string
		public      bool
		tags        []string
		access      string
		priority    string
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest a file through the pipeline and store it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildStack()
			if err != nil {
				return err
			}
			defer s.close()

			path := args[0]
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("cannot stat %s: %w", path, err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", path)
			}

			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("cannot open %s: %w", path, err)
			}
			defer f.Close()

			if contentType == "" {
				contentType = "application/octet-stream"
			}

			upload := &domain.FileUploadContext{
				FileName:      filepath.Base(path),
				FileSize:      info.Size(),
				ContentType:   contentType,
				UploaderID:    uploader,
				IsPublic:      public,
				AccessPattern: domain.AccessPattern(access),
				Priority:      domain.Priority(priority),
				Tags:          tags,
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			event, err := s.service.Ingest(ctx, upload, f)
			if err != nil {
				return fmt.Errorf("ingest failed: %w", err)
			}

			printEvent(cmd, event)
			return nil
		},
	}

	cmd.Flags().StringVar(&contentType, "content-type", "", "MIME type of the file (default application/octet-stream)")
	cmd.Flags().StringVar(&uploader, "uploader", "", "uploader identifier")
	cmd.Flags().BoolVar(&public, "public", false, "mark the file as publicly accessible")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "upload tags (e.g. compress, encrypt, skip-scan)")
	cmd.Flags().StringVar(&access, "access", string(domain.AccessWarm), "expected access pattern: HOT, WARM or COLD")
	cmd.Flags().StringVar(&priority, "priority", string(domain.PriorityNormal), "upload priority: LOW, NORMAL, HIGH or CRITICAL")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall operation timeout")

	return cmd
}

func printEvent(cmd *cobra.Command, event *domain.UploadEvent) {
	cmd.Printf("Backend:    %s\n", event.Backend)
	cmd.Printf("Path:       %s\n", event.StoragePath)
	cmd.Printf("Checksum:   %s\n", event.Checksum)
	cmd.Printf("Size:       %d bytes\n", event.ProcessedSize)
	cmd.Printf("Processed:  %t (%s)\n", event.PipelineProcessed, event.ProcessingTime.Round(time.Millisecond))

	names := make([]string, 0, len(event.ProcessorFlags))
	for name := range event.ProcessorFlags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cmd.Printf("  %s = %s\n", name, event.ProcessorFlags[name])
	}
}
