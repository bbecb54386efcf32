package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cardshelf/internal/cycles"
)

func newRepairCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Break cycles in the card-set tree",
		Long:  "Walk every card set's parent chain and cut the link that closes each cycle.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, _, err := a.openStore(ctx, readable, false)
			if err != nil {
				return err
			}
			defer s.Close()

			repairs, err := cycles.Guard(ctx, s, a.log)
			if err != nil {
				return sysError(err)
			}
			if a.flags.jsonMode {
				if repairs == nil {
					repairs = []cycles.Repair{}
				}
				return printJSON(cmd.OutOrStdout(), repairs)
			}
			if len(repairs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No cycles found")
				return nil
			}
			printRepairs(cmd.OutOrStdout(), repairs)
			return nil
		},
	}
}
