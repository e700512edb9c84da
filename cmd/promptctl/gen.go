package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skosovsky/promptkit"
	"github.com/skosovsky/promptkit/internal/codegen"
)

func newGenCmd(load loadFunc) *cobra.Command {
	var pkg, out string
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate typed Go wrappers for every loaded prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.shutdown()
			var tpls []promptkit.PromptTemplate
			for name := range a.reg.List() {
				t, err := a.reg.Get(name)
				if err != nil {
					continue
				}
				tpls = append(tpls, t)
			}
			src, err := codegen.Generate(pkg, tpls)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(src)
				return err
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil { // #nosec G301 -- generated source dir
				return err
			}
			if err := os.WriteFile(out, src, 0o644); err != nil { // #nosec G306 -- generated source
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d prompts to %s\n", len(tpls), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&pkg, "package", "prompts", "package name of the generated file")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}
