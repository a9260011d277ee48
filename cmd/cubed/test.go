package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cubedlayer/cubed/internal/schema"
	"github.com/cubedlayer/cubed/internal/schemaloader"
)

var testCmd = &cobra.Command{
	Use:   "test <path>",
	Short: "Load every cube under <path> and sanity-check each dimension and measure",
	Long: `Reproduces the original CLI's "test" command: compiles the schema,
then walks every cube's dimensions and measures, confirming each one
resolves through Cube.GetDimension/GetMeasure. It is not a query
execution smoke test against a live backend — that is cubed's Execute,
exercised separately against a real connection.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := args[0]
		s, err := schemaloader.Load(dir, "test")
		if err != nil {
			return failureError(err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "testing schema with %d cube(s)...\n", len(s.CubeNames()))

		failed := false
		for _, name := range s.CubeNames() {
			c, _ := s.Cube(name)
			fmt.Fprintf(out, "\ncube: %s\n", name)
			failed = testCubeFields(out, c) || failed
		}

		if failed {
			fmt.Fprintln(out, "\nFAILED")
			return failureError(fmt.Errorf("one or more cubes failed dimension/measure resolution"))
		}
		fmt.Fprintln(out, "\nall tests passed")
		return nil
	},
}

// testCubeFields reports whether any field in c failed to resolve.
func testCubeFields(out io.Writer, c *schema.Cube) bool {
	failed := false
	for name := range c.Dimensions {
		if d, ok := c.GetDimension(name); ok {
			fmt.Fprintf(out, "  dimension %q: %s\n", name, d.Type)
		} else {
			fmt.Fprintf(out, "  dimension %q: FAILED to resolve\n", name)
			failed = true
		}
	}
	for name := range c.Measures {
		if m, ok := c.GetMeasure(name); ok {
			fmt.Fprintf(out, "  measure %q: %s\n", name, m.Kind)
		} else {
			fmt.Fprintf(out, "  measure %q: FAILED to resolve\n", name)
			failed = true
		}
	}
	return failed
}

func init() {
	rootCmd.AddCommand(testCmd)
}
