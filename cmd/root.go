// Package cmd defines and implements the CLI commands for the archiver executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-archiver/internal/api"
	"github.com/JakeFAU/article-archiver/internal/app"
	"github.com/JakeFAU/article-archiver/internal/archive"
	"github.com/JakeFAU/article-archiver/internal/config"
	"github.com/JakeFAU/article-archiver/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// baseURLArgAnnotation marks commands whose first positional argument is the
// search URL prefix.
const baseURLArgAnnotation = "base-url-arg"

// App defines the application interface that commands use. Tests inject a
// fake through newApp.
type App interface {
	Run(ctx context.Context) (archive.RunSummary, error)
	Retriever() *archive.Retriever
	Records() archive.RecordStore
	APIServer() *api.Server
	Config() config.Config
	Logger() *zap.Logger
	Close(ctx context.Context) error
}

// newApp is the application factory, replaced in tests.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "archiver",
		Short: "Crawls a journal search and archives every article PDF it finds.",
		Long: `archiver walks the paginated result pages of a journal search, opens
each article, downloads its PDF and stores it together with a metadata record.
Stored PDFs can be exported again by content ID or served over HTTP.`,
		SilenceUsage: true,

		// Builds the application after flags are parsed and before the
		// subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := applyFlagOverrides(cmd.Flags(), &cfg); err != nil {
				return err
			}
			if cmd.Annotations[baseURLArgAnnotation] != "" && len(args) > 0 {
				cfg.Crawl.BaseURL = args[0]
			}

			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			logging.Install(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or $HOME/.archiver/config.yaml)")
	cmd.PersistentFlags().String("driver", "", "navigator driver: headless or static")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newRetrieveCmd())
	cmd.AddCommand(newRecordsCmd())
	cmd.AddCommand(newServeCmd())
	return cmd
}

// applyFlagOverrides copies explicitly set flags over loaded config values.
func applyFlagOverrides(flags *pflag.FlagSet, cfg *config.Config) error {
	var err error
	flags.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "driver":
			cfg.Navigator.Driver = f.Value.String()
		case "base-url":
			cfg.Crawl.BaseURL = f.Value.String()
		case "start-page":
			cfg.Crawl.StartPage, err = flags.GetInt(f.Name)
		case "max-pages":
			cfg.Crawl.MaxPages, err = flags.GetInt(f.Name)
		case "workers":
			cfg.Pipeline.Workers, err = flags.GetInt(f.Name)
		case "output-dir":
			cfg.Retrieve.OutputDir = f.Value.String()
		case "port":
			cfg.Server.Port, err = flags.GetInt(f.Name)
		}
	})
	if err != nil {
		return fmt.Errorf("read flags: %w", err)
	}
	return nil
}

// withApp resolves the App built by the root command and closes it once fn
// returns, whether or not fn failed.
func withApp(fn func(cmd *cobra.Command, args []string, a App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		appInstance, err := resolveApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			closeErr := appInstance.Close(context.WithoutCancel(cmd.Context()))
			if syncErr := logging.Sync(appInstance.Logger()); syncErr != nil {
				closeErr = errors.Join(closeErr, syncErr)
			}
			if closeErr != nil {
				err = errors.Join(err, fmt.Errorf("shutdown: %w", closeErr))
			}
		}()
		return fn(cmd, args, appInstance)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command's
// context; any command error exits with status 1.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
