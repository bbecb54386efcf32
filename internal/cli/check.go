package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cardshelf/internal/versions"
)

// tableStatus is one row of the check output.
type tableStatus struct {
	Table   string `json:"table"`
	Version int    `json:"version,omitempty"`
	Current int    `json:"current"`
	Status  string `json:"status"`
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Classify the store's table versions",
		Long:  "Report, per table, whether the store is current, upgradeable or at a version\nthis build cannot read. The store is not modified.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, _, err := a.openStore(ctx, anyVersion, false)
			if err != nil {
				return err
			}
			defer s.Close()

			e := a.engine(s)
			registry := e.Registry()
			c, err := e.CheckCanRead(ctx)
			var unknown *versions.UnknownVersionError
			if err != nil && !errors.As(err, &unknown) {
				return sysError(err)
			}

			status := make(map[string]string)
			for _, t := range c.Compatible {
				status[t] = "current"
			}
			for _, t := range c.Upgradeable {
				status[t] = "upgradeable"
			}
			for _, t := range c.Unknown {
				status[t] = "unknown"
			}
			rows := make([]tableStatus, 0, len(status))
			for _, t := range registry.Tables() {
				entry, _ := registry.Entry(t)
				rows = append(rows, tableStatus{Table: t, Version: c.Found[t], Current: entry.Current, Status: status[t]})
			}

			if a.flags.jsonMode {
				if err := printJSON(cmd.OutOrStdout(), rows); err != nil {
					return err
				}
			} else {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TABLE\tVERSION\tCURRENT\tSTATUS")
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", r.Table, r.Version, r.Current, r.Status)
				}
				w.Flush()
			}
			if unknown != nil {
				return userError(unknown)
			}
			return nil
		},
	}
}
