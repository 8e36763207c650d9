package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newPagesCommand(opts *RootOptions, factory BackendFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pages",
		Short: "Inspect and maintain wiki pages",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "count",
		Short: "Print the number of pages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, opts, factory, func(b *Backend) error {
				count, err := b.Wiki.Count(cmd.Context())
				if err != nil {
					return err
				}
				return newFormatter(opts, cmd.OutOrStdout()).emit(map[string]int64{"pages": count}, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, count)
					return err
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rerender",
		Short: "Re-render the HTML of every page from its markdown",
		Long:  "Re-render the HTML of every page from its current markdown. History is left untouched.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, opts, factory, func(b *Backend) error {
				count, err := b.Wiki.RerenderAll(cmd.Context())
				if err != nil {
					return err
				}
				return newFormatter(opts, cmd.OutOrStdout()).emit(map[string]int{"rerendered": count}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "re-rendered %d pages\n", count)
					return err
				})
			})
		},
	})

	return cmd
}
