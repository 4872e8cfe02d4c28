package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/eringen/devquote"
)

const shutdownTimeout = 15 * time.Second

type options struct {
	envFile string
	addr    string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd.ErrOrStderr(), opts)
		},
	}
	root := &cobra.Command{
		Use:   "devquote",
		Short: "devquote - project estimation and blog API",
		Long: `devquote serves AI-assisted project cost estimates, email capture and a
blog with an AI writing assistant. Settings come from the environment,
optionally merged from a .env file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load if present")
	root.PersistentFlags().StringVar(&opts.addr, "addr", "", "listen address, overrides PORT")

	root.AddCommand(serve, newCheckConfigCmd(opts), newVersionCmd())
	return root
}

// loadConfig merges the env file, reads the environment and validates it.
func loadConfig(opts *options, warn io.Writer) (devquote.SiteConfig, error) {
	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return devquote.SiteConfig{}, errors.Annotatef(err, "load %s", opts.envFile)
		}
	}
	cfg, err := devquote.ConfigFromEnv()
	if err != nil {
		return cfg, err
	}
	if opts.addr != "" {
		cfg.Addr = opts.addr
	}
	cfg.Version = version

	warnings, err := cfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(warn, "warning: %s\n", w)
	}
	return cfg, err
}

func runServe(ctx context.Context, stderr io.Writer, opts *options) error {
	cfg, err := loadConfig(opts, stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := devquote.New(cfg)
	if err := app.Setup(ctx); err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() { errc <- app.Start(ctx) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	app.Logger().Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		return errors.Annotate(err, "shutdown")
	}
	return <-errc
}

func newCheckConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and print warnings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "environment: %s\n", cfg.Env)
			fmt.Fprintf(out, "listen:      %s\n", cfg.Addr)
			fmt.Fprintf(out, "chat model:  %s\n", cfg.ChatModel)
			fmt.Fprintf(out, "store:       %s\n", storeKind(cfg))
			fmt.Fprintln(out, "configuration OK")
			return nil
		},
	}
}

func storeKind(cfg devquote.SiteConfig) string {
	switch {
	case cfg.DatabaseURL != "":
		return "postgres"
	case cfg.StoreURL != "" && cfg.StoreKey != "":
		return "rest " + cfg.StoreURL
	case cfg.SQLitePath != "":
		return "sqlite " + cfg.SQLitePath
	}
	return "disabled"
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the devquote version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "devquote %s\n", version)
		},
	}
}
