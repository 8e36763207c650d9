package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

type memberRow struct {
	ShortID      string    `json:"short_id"`
	DisplayName  string    `json:"display_name"`
	Allowed      bool      `json:"allowed"`
	EditCount    int       `json:"edit_count"`
	RegisteredAt time.Time `json:"registered_at"`
}

func newUsersCommand(opts *RootOptions, factory BackendFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage registered identities",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered identities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, opts, factory, func(b *Backend) error {
				members, err := b.Users.List(cmd.Context(), operator)
				if err != nil {
					return err
				}

				rows := make([]memberRow, 0, len(members))
				for _, m := range members {
					count := m.Identity.EditCount
					if count < len(m.Identity.Edits) {
						count = len(m.Identity.Edits)
					}
					rows = append(rows, memberRow{
						ShortID:      m.Identity.ShortID,
						DisplayName:  m.Persona.DisplayName,
						Allowed:      m.Identity.Allowed,
						EditCount:    count,
						RegisteredAt: m.Identity.RegisteredAt,
					})
				}

				return newFormatter(opts, cmd.OutOrStdout()).emit(rows, func(w io.Writer) error {
					cells := make([][]any, 0, len(rows))
					for _, r := range rows {
						cells = append(cells, []any{r.ShortID, r.DisplayName, r.Allowed, r.EditCount, r.RegisteredAt.Format(time.DateTime)})
					}
					return table(w, []any{"SHORT ID", "NAME", "ALLOWED", "EDITS", "REGISTERED"}, cells)
				})
			})
		},
	})

	cmd.AddCommand(newPermissionCommand(opts, factory, "allow", true))
	cmd.AddCommand(newPermissionCommand(opts, factory, "block", false))

	cmd.AddCommand(&cobra.Command{
		Use:   "purge-idle",
		Short: "Delete identities that are not allowed and never edited",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, opts, factory, func(b *Backend) error {
				removed, err := b.Users.PurgeIdle(cmd.Context(), operator)
				if err != nil {
					return err
				}
				return newFormatter(opts, cmd.OutOrStdout()).emit(map[string]int64{"removed": removed}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "removed %d idle identities\n", removed)
					return err
				})
			})
		},
	})

	return cmd
}

func newPermissionCommand(opts *RootOptions, factory BackendFactory, verb string, allowed bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <short_id>",
		Short: fmt.Sprintf("Set the edit permission of an identity (%s)", verb),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, opts, factory, func(b *Backend) error {
				record, err := b.Users.SetAllowed(cmd.Context(), operator, args[0], allowed)
				if err != nil {
					return err
				}
				persona := b.Identity.Derive(record.Cookie)
				row := memberRow{
					ShortID:      record.ShortID,
					DisplayName:  persona.DisplayName,
					Allowed:      record.Allowed,
					EditCount:    len(record.Edits),
					RegisteredAt: record.RegisteredAt,
				}
				return newFormatter(opts, cmd.OutOrStdout()).emit(row, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "%s (%s) allowed=%t\n", row.ShortID, row.DisplayName, row.Allowed)
					return err
				})
			})
		},
	}
}
