package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cardshelf/pkg/types"
)

func newSetsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sets",
		Short: "Show the card-set tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, repairs, err := a.openStore(ctx, current, true)
			if err != nil {
				return err
			}
			defer s.Close()
			logRepairs(a.log, repairs)

			if a.flags.jsonMode {
				sets, err := s.CardSets(ctx)
				if err != nil {
					return sysError(err)
				}
				if sets == nil {
					sets = []types.CardSet{}
				}
				return printJSON(cmd.OutOrStdout(), sets)
			}
			tree, err := s.CardSetTree(ctx)
			if err != nil {
				return sysError(err)
			}
			fmt.Fprint(cmd.OutOrStdout(), tree)
			return nil
		},
	}
	cmd.AddCommand(newSetsAddCmd(a), newSetsReparentCmd(a), newSetsDeleteCmd(a))
	return cmd
}

// parseMember parses "card" or "card@expansion".
func parseMember(s string) types.Member {
	card, exp, _ := strings.Cut(s, "@")
	return types.Member{Card: strings.TrimSpace(card), Expansion: strings.TrimSpace(exp)}
}

// storeError classifies store errors caused by bad input as user errors.
func storeError(err error) error {
	for _, target := range []error{types.ErrNotFound, types.ErrDuplicateName, types.ErrInvalidName, types.ErrLookupFailed} {
		if errors.Is(err, target) {
			return userError(err)
		}
	}
	return sysError(err)
}

func newSetsAddCmd(a *app) *cobra.Command {
	var cs types.CardSet
	var cards []string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a card set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, _, err := a.openStore(ctx, current, false)
			if err != nil {
				return err
			}
			defer s.Close()

			cs.Name = args[0]
			for _, c := range cards {
				cs.Members = append(cs.Members, parseMember(c))
			}
			if _, err := s.CreateCardSet(ctx, &cs); err != nil {
				return storeError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created card set %q with %d cards\n", cs.Name, len(cs.Members))
			return nil
		},
	}
	cmd.Flags().StringVar(&cs.Parent, "parent", "", "parent card set")
	cmd.Flags().StringVar(&cs.Author, "author", "", "author")
	cmd.Flags().StringVar(&cs.Comment, "comment", "", "comment")
	cmd.Flags().StringVar(&cs.Annotations, "annotations", "", "annotations")
	cmd.Flags().BoolVar(&cs.InUse, "in-use", false, "mark the card set as in use")
	cmd.Flags().StringArrayVar(&cards, "card", nil, "member as card or card@expansion (repeatable)")
	return cmd
}

func newSetsReparentCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reparent <name> [parent]",
		Short: "Move a card set under another, or to the top level",
		Long:  "Move a card set under parent, or to the top level when parent is omitted.\nA move that closes a cycle is repaired immediately.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, _, err := a.openStore(ctx, current, false)
			if err != nil {
				return err
			}
			defer s.Close()

			parent := ""
			if len(args) == 2 {
				parent = args[1]
			}
			if err := s.SetParent(ctx, args[0], parent); err != nil {
				return storeError(err)
			}
			repairs, err := guardAfterEdit(cmd, a, s)
			if err != nil {
				return err
			}
			printRepairs(cmd.OutOrStdout(), repairs)
			return nil
		},
	}
}

func newSetsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a card set; its children move to its parent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, _, err := a.openStore(ctx, current, false)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.DeleteCardSet(ctx, args[0]); err != nil {
				return storeError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted card set %q\n", args[0])
			return nil
		},
	}
}
