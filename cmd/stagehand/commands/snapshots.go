package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/stagehand/stagehand/pkg/stores"
)

func newSnapshotsCommand() *cobra.Command {
	var (
		limit  int
		latest bool
	)

	cmd := &cobra.Command{
		Use:   "snapshots <package>",
		Short: "Show committed snapshots for a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openSnapshotStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			var snaps []*stores.Snapshot
			if latest {
				snap, err := store.LatestSnapshot(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				snaps = []*stores.Snapshot{snap}
			} else {
				snaps, err = store.ListSnapshots(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snaps)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tPACKAGES")
			for _, snap := range snaps {
				pkgs := make([]string, 0, len(snap.Packages))
				for _, pkg := range snap.Packages {
					pkgs = append(pkgs, pkg.Name+"-"+pkg.Version)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n",
					snap.ID,
					snap.CreatedAt.Format(time.RFC3339),
					strings.Join(pkgs, ","),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "maximum snapshots to show (0 for all)")
	cmd.Flags().BoolVar(&latest, "latest", false, "show only the most recent snapshot")

	cmd.AddCommand(newSnapshotsPruneCommand())

	return cmd
}

func newSnapshotsPruneCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete snapshots older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openSnapshotStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			pruned, err := store.PruneBefore(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d snapshots\n", pruned)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "delete snapshots created earlier than now minus this duration")

	return cmd
}
