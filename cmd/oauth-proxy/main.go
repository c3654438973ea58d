package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/brizzai/oauth-proxy/internal/auth"
	"github.com/brizzai/oauth-proxy/internal/auth/matcher"
	"github.com/brizzai/oauth-proxy/internal/auth/validator"
	"github.com/brizzai/oauth-proxy/internal/config"
	"github.com/brizzai/oauth-proxy/internal/instrumentation"
	"github.com/brizzai/oauth-proxy/internal/logger"
	"github.com/brizzai/oauth-proxy/internal/requester"
	"github.com/brizzai/oauth-proxy/internal/server"
)

var (
	errNothingToCheck = errors.New("--redirect-uri or --origin is required")
	errNotAllowed     = errors.New("not covered by allowed_redirect_uris")
)

func main() {
	Execute()
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. serve is the default action.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "oauth-proxy",
		Short: "OAuth authorization-code exchange proxy",
		Long: `oauth-proxy exchanges OAuth authorization codes for tokens on behalf of
browser clients, keeping client secrets server side, and enriches the
result with the user's profile from the backend.`,
		RunE:          runServe,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Place version check in PreRun to ensure flags are parsed first
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			pterm.Info.WithWriter(cmd.OutOrStdout()).Println(config.GetVersionInfo())
			os.Exit(0)
		}
	}

	config.InitFlags(rootCmd.PersistentFlags())
	rootCmd.PersistentFlags().BoolP("version", "v", false, "Show version information")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP proxy (default)",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, args []string) {
				pterm.Info.WithWriter(cmd.OutOrStdout()).Println(config.GetVersionInfo())
			},
		},
		newCheckCmd(),
		&cobra.Command{
			Use:   "config",
			Short: "Print the effective configuration with secrets masked",
			RunE:  runConfig,
		},
	)
	return rootCmd
}

func newCheckCmd() *cobra.Command {
	var redirectURI, origin string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check a redirect URI or origin against the configured allowlist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, redirectURI, origin)
		},
	}
	cmd.Flags().StringVar(&redirectURI, "redirect-uri", "", "Redirect URI to check")
	cmd.Flags().StringVar(&origin, "origin", "", "Origin to check")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	log, err := logger.InitLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var srv *server.Server
	app := fx.New(
		fx.Supply(cfg),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		instrumentation.Module,
		requester.Module,
		auth.Module,
		server.Module,
		fx.Populate(&srv),
	)
	if err := app.Err(); err != nil {
		return err
	}

	logger.Info("Configuration loaded",
		zap.Int("port", cfg.Server.Port),
		zap.Strings("path_prefixes", cfg.Server.PathPrefixes),
		zap.Float64("rate_limit_rps", cfg.RateLimit.RequestsPerSecond),
		zap.String("tracing_exporter", cfg.Tracing.Exporter),
	)

	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := app.Stop(context.Background()); err != nil {
			logger.Error("Failed to stop application", zap.Error(err))
		}
	}()

	return srv.Start(ctx)
}

func runCheck(cmd *cobra.Command, redirectURI, origin string) error {
	if redirectURI == "" && origin == "" {
		return errNothingToCheck
	}
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	success := pterm.Success.WithWriter(out)
	failure := pterm.Error.WithWriter(out)

	v := validator.New(matcher.NewCache())
	allowed := true

	if redirectURI != "" {
		if v.ValidateRedirectURI(redirectURI, cfg.AllowedRedirectURIs) {
			success.Printfln("redirect_uri %s is allowed", redirectURI)
		} else {
			failure.Printfln("redirect_uri %s is not allowed", redirectURI)
			allowed = false
		}
	}
	if origin != "" {
		if v.IsAllowedOrigin(origin, cfg.AllowedRedirectURIs) {
			success.Printfln("origin %s is allowed", origin)
		} else {
			failure.Printfln("origin %s is not allowed", origin)
			allowed = false
		}
	}

	if !allowed {
		return errNotAllowed
	}
	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), string(out))
	return err
}
