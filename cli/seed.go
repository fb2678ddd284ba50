package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stevemurr/recordstore/schema"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand(opts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Bulk-load records from a seed document",
		Long: `Load every valid record from a JSON seed document into the backend.

Invalid records are skipped and listed in the output.

Example:
  recordstore seed --file data/tecnomega.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			path := file
			if path == "" {
				path = rt.cfg.Seed.Path
			}
			res, err := rt.store.SeedFromFile(cmd.Context(), path)
			if err != nil {
				return failed("seed", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "seed document (defaults to seed.path from config)")
	return cmd
}

// NewCollectionsCommand creates the collections command.
func NewCollectionsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List the registered collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "COLLECTION\tIDENTIFIER\tREQUIRED")
			for _, c := range schema.Collections() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name, c.Identifier, strings.Join(c.Required, ","))
			}
			return tw.Flush()
		},
	}
}
