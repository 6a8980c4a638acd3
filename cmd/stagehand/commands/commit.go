package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCommitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commit <package>",
		Short: "Record the current resolution of a package in the snapshot store",
		Long: `Resolve the named package and persist the resulting package set to
the snapshot database. Nothing is launched. Committed snapshots serve as
an audit trail of what each requirement resolved to over time.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadStore()
			if err != nil {
				return err
			}

			snapshots, err := openSnapshotStore(cmd.Context())
			if err != nil {
				return err
			}
			defer snapshots.Close()

			ctrl, _, cleanup, err := newController(cmd.Context(), store, false, nil, snapshots)
			if err != nil {
				return err
			}
			defer cleanup()

			snap, err := ctrl.Commit(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "committed %s (%d packages) as %s\n",
				snap.Root, len(snap.Packages), snap.ID)
			return nil
		},
	}
	return cmd
}
