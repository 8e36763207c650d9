// Package cli implements the wikiadmin maintenance commands.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"wikiloult/app/internal/app/bootstrap"
	"wikiloult/app/internal/domain/identity"
	"wikiloult/app/internal/domain/users"
	"wikiloult/app/internal/domain/wiki"
	"wikiloult/app/internal/platform/config"
	applog "wikiloult/app/internal/platform/log"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Backend is what the commands operate on.
type Backend struct {
	Wiki     wiki.Service
	Users    users.Service
	Identity *identity.Engine
	Close    func() error
}

// BackendFactory opens a Backend for one command invocation.
type BackendFactory func(ctx context.Context, opts *RootOptions) (*Backend, error)

// operator is the acting persona for every admin command. The CLI has shell
// access to the database, so it is privileged by construction.
var operator = identity.Persona{ShortID: "wikiadmin", DisplayName: "wikiadmin", IsPrivileged: true}

// NewRootCommand creates the root command for the wikiadmin CLI.
func NewRootCommand(factory BackendFactory) *cobra.Command {
	opts := &RootOptions{}
	if factory == nil {
		factory = OpenBackend
	}

	cmd := &cobra.Command{
		Use:   "wikiadmin",
		Short: "Maintenance commands for wikiloult",
		Long:  "Manage editor permissions, inspect personas and re-render pages of a wikiloult database.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newUsersCommand(opts, factory))
	cmd.AddCommand(newPagesCommand(opts, factory))
	cmd.AddCommand(newPersonaCommand(opts, factory))

	return cmd
}

// OpenBackend loads the configuration and composes the application services.
func OpenBackend(ctx context.Context, opts *RootOptions) (*Backend, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, eris.Wrap(err, "loading configuration")
	}

	logger, err := applog.NewTextLogger(os.Stderr, cfg.LogLevel)
	if err != nil {
		return nil, eris.Wrap(err, "initialising logger")
	}

	app, err := bootstrap.Build(ctx, bootstrap.Dependencies{Config: *cfg, Logger: logger})
	if err != nil {
		return nil, eris.Wrap(err, "bootstrapping application")
	}

	return &Backend{
		Wiki:     app.WikiService,
		Users:    app.UserService,
		Identity: app.Identity,
		Close:    app.Cleanup,
	}, nil
}

// withBackend opens a backend, runs fn and always closes the backend.
func withBackend(cmd *cobra.Command, opts *RootOptions, factory BackendFactory, fn func(*Backend) error) (err error) {
	backend, err := factory(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer func() {
		if backend.Close == nil {
			return
		}
		if closeErr := backend.Close(); closeErr != nil && err == nil {
			err = eris.Wrap(closeErr, "closing backend")
		}
	}()

	return fn(backend)
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
