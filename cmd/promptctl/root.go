package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd(d deps) *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "promptctl",
		Short:         "Run and inspect prompt manifests",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "promptctl.yaml", "config file (YAML or JSON)")

	load := func(cmd *cobra.Command) (*app, error) {
		return newApp(cmd.Context(), cfgPath, d)
	}
	root.AddCommand(
		newRunCmd(load),
		newListCmd(load),
		newSchemaCmd(load),
		newGenCmd(load),
	)
	return root
}

type loadFunc func(cmd *cobra.Command) (*app, error)
