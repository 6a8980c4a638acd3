package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPackagesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "packages",
		Short: "List the packages declared in the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadStore()
			if err != nil {
				return err
			}
			packages := store.Packages()

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(packages)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tVERSION\tALIASES\tREQUIRES")
			for _, pkg := range packages {
				requires := make([]string, 0, len(pkg.Requires))
				for _, ref := range pkg.Requires {
					requires = append(requires, ref.String())
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					pkg.Name,
					pkg.Version,
					strings.Join(pkg.Aliases, ","),
					strings.Join(requires, ","),
				)
			}
			return w.Flush()
		},
	}
	return cmd
}
