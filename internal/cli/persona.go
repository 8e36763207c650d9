package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newPersonaCommand(opts *RootOptions, factory BackendFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "persona <cookie>",
		Short: "Show the persona derived from a cookie",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, opts, factory, func(b *Backend) error {
				persona := b.Identity.Derive(args[0])
				return newFormatter(opts, cmd.OutOrStdout()).emit(persona, func(w io.Writer) error {
					return table(w, []any{"FIELD", "VALUE"}, [][]any{
						{"short_id", persona.ShortID},
						{"name", persona.DisplayName},
						{"avatar", fmt.Sprintf("%s (%s)", persona.AvatarName, persona.AvatarImage())},
						{"color", persona.CSSColor()},
						{"voice", fmt.Sprintf("pitch=%d speed=%d id=%d", persona.Voice.Pitch, persona.Voice.Speed, persona.Voice.ID)},
						{"profile", fmt.Sprintf("%s, %d ans, %s (%s)", persona.Profile.Job, persona.Profile.Age, persona.Profile.City, persona.Profile.Department)},
						{"privileged", persona.IsPrivileged},
					})
				})
			})
		},
	}
}
