package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cubedlayer/cubed/internal/cubederr"
	"github.com/cubedlayer/cubed/internal/schemaloader"
)

var validateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Compile every cube definition under <path> and report problems",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := args[0]
		s, err := schemaloader.Load(dir, "validate")
		if err != nil {
			if modelErrs, ok := err.(*cubederr.ModelErrors); ok {
				for _, p := range modelErrs.Problems {
					fmt.Fprintf(cmd.ErrOrStderr(), "cube %q: %s\n", p.Cube, p.Problem)
				}
				return failureError(fmt.Errorf("%d schema problem(s)", len(modelErrs.Problems)))
			}
			return failureError(err)
		}
		names := s.CubeNames()
		fmt.Fprintf(cmd.OutOrStdout(), "%d cube(s) valid: %v\n", len(names), names)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
