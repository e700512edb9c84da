package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/skosovsky/promptkit/internal/config"
)

func newSchemaCmd(load loadFunc) *cobra.Command {
	var prompt string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the config JSON Schema, or a prompt's reply schema with --prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if prompt == "" {
				return enc.Encode(config.JSONSchema())
			}
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.shutdown()
			t, err := a.reg.Get(prompt)
			if err != nil {
				return err
			}
			return enc.Encode(map[string]any{
				"name":     t.Name,
				"request":  t.RequestFormat.JSONSchema(),
				"response": t.ResponseFormat.JSONSchema(),
			})
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "", "print request and response schemas of this prompt")
	return cmd
}
