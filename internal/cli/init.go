package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cardshelf/internal/sqlite"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the store",
		Long:  "Create the configuration directory and an empty store at the current schema.\nAn existing store is left unchanged.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := sqlite.Open(a.config.StorePath)
			if err != nil {
				return sysError(fmt.Errorf("open store: %w", err))
			}
			defer s.Close()

			if err := s.Init(ctx); err != nil {
				return sysError(fmt.Errorf("initialize store: %w", err))
			}
			a.log.Debug("store initialized")

			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]string{"store": a.config.StorePath})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Shelf initialized at %s\n", a.config.StorePath)
			return nil
		},
	}
}
