package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

func newBackendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List configured storage backends with availability and health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildStack()
			if err != nil {
				return err
			}
			defer s.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			cmd.Printf("%-16s %-8s %-12s %s\n", "NAME", "KIND", "AVAILABLE", "HEALTH")
			for _, name := range s.registry.Names() {
				backend, _ := s.registry.Get(name)
				available := s.router.IsStrategyAvailable(ctx, name)
				health := s.router.StrategyHealthScore(ctx, name)
				cmd.Printf("%-16s %-8s %-12t %d\n", name, backend.Kind(), available, health)
			}
			return nil
		},
	}
}
