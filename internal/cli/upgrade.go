package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cardshelf/internal/logging"
	"github.com/mesh-intelligence/cardshelf/internal/migrate"
)

func newUpgradeCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Upgrade the store to the current schema",
		Long: "Copy the store into a staging store at the current schema, validate it and\n" +
			"only then replace the live store's contents. A failure before promotion\n" +
			"leaves the live store untouched.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, repairs, err := a.openStore(ctx, readable, true)
			if err != nil {
				return err
			}
			defer s.Close()
			logRepairs(a.log, repairs)

			e := a.engine(s)
			if !force {
				c, err := e.CheckCanRead(ctx)
				if err == nil && c.Current() {
					if a.flags.jsonMode {
						return printJSON(cmd.OutOrStdout(), map[string]any{"ok": true, "current": true})
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Store is already current")
					return nil
				}
			}

			report, err := e.AttemptUpgrade(ctx, logging.NewProgressSink(a.log.Named("progress")))
			if a.flags.jsonMode {
				if jerr := printJSON(cmd.OutOrStdout(), report); jerr != nil {
					return jerr
				}
			} else {
				printReport(cmd, report)
			}
			if err == nil {
				return nil
			}
			var promoteErr *migrate.PromotionError
			if errors.As(err, &promoteErr) {
				return sysError(err)
			}
			return userError(err)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "rebuild the store even when every table is current")
	return cmd
}

func printReport(cmd *cobra.Command, r *migrate.Report) {
	out := cmd.OutOrStdout()
	if r.OK {
		fmt.Fprintf(out, "Upgrade complete (run %s)\n", r.RunID)
		return
	}
	fmt.Fprintf(out, "Upgrade failed in state %s (run %s)\n", r.State, r.RunID)
	for _, m := range r.Messages {
		fmt.Fprintf(out, "  %s\n", m)
	}
	if r.Warning != "" {
		fmt.Fprintf(out, "WARNING: %s\n", r.Warning)
	}
}
