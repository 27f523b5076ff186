package cli

import (
	"github.com/spf13/cobra"
)

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired temporary files once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildStack()
			if err != nil {
				return err
			}
			defer s.close()

			removed := s.temps.CleanupExpired(cmd.Context())
			cmd.Printf("Removed %d expired temporary file(s)\n", removed)
			return nil
		},
	}
}
