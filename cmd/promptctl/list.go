package main

import (
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List loaded prompts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.shutdown()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, name := range slices.Sorted(a.reg.List()) {
				t, err := a.reg.Get(name)
				if err != nil {
					continue // unregistered concurrently
				}
				kind := "text"
				if t.Structured() {
					kind = "json"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, t.Version, kind, t.Description)
			}
			return w.Flush()
		},
	}
}
