package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cardshelf/internal/archive"
	"github.com/mesh-intelligence/cardshelf/internal/cycles"
	"github.com/mesh-intelligence/cardshelf/internal/sqlite"
)

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write every card set to a JSONL archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, repairs, err := a.openStore(ctx, current, true)
			if err != nil {
				return err
			}
			defer s.Close()
			logRepairs(a.log, repairs)

			n, err := archive.Export(ctx, s, args[0])
			if err != nil {
				return sysError(err)
			}
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]any{"file": args[0], "exported": n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d card sets to %s\n", n, args[0])
			return nil
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Add the card sets of a JSONL archive",
		Long: "Add every card set of a JSONL archive in one transaction. Either every record\n" +
			"is imported or none is; a malformed line rejects the whole archive. Cycles among\n" +
			"the archive's parents are cut before anything is written.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, repairs, err := a.openStore(ctx, current, true)
			if err != nil {
				return err
			}
			defer s.Close()
			logRepairs(a.log, repairs)

			res, err := archive.Import(ctx, s, args[0], archive.ImportOptions{
				Ordering: a.ordering(),
				Logger:   a.log.Named("archive"),
			})
			if errors.Is(err, archive.ErrMalformedArchive) {
				return userError(err)
			}
			if err != nil {
				return storeError(err)
			}
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), res)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Imported %d card sets from %s\n", res.Imported, args[0])
			for _, name := range res.DroppedParents {
				fmt.Fprintf(out, "Parent of %q not found; imported at the top level\n", name)
			}
			printRepairs(out, res.Repairs)
			printRepairs(out, res.StoreRepairs)
			return nil
		},
	}
}

// guardAfterEdit runs the cycle guard after a parent edit.
func guardAfterEdit(cmd *cobra.Command, a *app, s *sqlite.Store) ([]cycles.Repair, error) {
	repairs, err := cycles.Guard(cmd.Context(), s, a.log)
	if err != nil {
		return nil, sysError(err)
	}
	return repairs, nil
}
