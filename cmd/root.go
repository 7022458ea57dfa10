package cmd

import (
	"context"
	"fmt"

	"github.com/JakeFAU/scholar-cites/internal/app"
	"github.com/JakeFAU/scholar-cites/internal/bibliography"
	"github.com/JakeFAU/scholar-cites/internal/cache"
	"github.com/JakeFAU/scholar-cites/internal/config"
	"github.com/JakeFAU/scholar-cites/internal/logging"
	"github.com/JakeFAU/scholar-cites/internal/refresh"
	pkgconfig "github.com/JakeFAU/scholar-cites/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// This allows us to inject a mock app during tests.
type App interface {
	Close(ctx context.Context) error
	GetLogger() *zap.Logger
	GetConfig() config.Config
	GetStore() *cache.Store
	GetSource() *bibliography.FileSource
	Refresh(ctx context.Context) (*refresh.Summary, error)
	Run(ctx context.Context) error
}

// newApp is the application factory. It's a variable so we can
// replace it with a mock factory in our tests.
var newApp func(ctx context.Context) (App, error) = func(ctx context.Context) (App, error) {
	path := cfgFile
	if path == "" {
		// Reuse whatever file the global Viper search located so the
		// typed loader and the search paths agree on the source.
		path = viper.ConfigFileUsed()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scholarcites",
		Short: "Citation count cache for a static publication list.",
		Long: `scholarcites keeps a local cache of Google Scholar citation counts for
the publications listed in a YAML bibliography. Each refresh fetches only
the stalest entries within a per-run budget, pausing politely between
lookups, so repeated runs converge on a fully populated cache without
hammering the source.`,

		// This hook runs AFTER config is loaded but BEFORE the subcommand's RunE.
		// This is the perfect place to build and inject the application.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}

			// Store the app instance in the context for subcommands to use.
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		// This hook ensures services are shut down gracefully.
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				// The command context may already be canceled after an
				// interrupted serve, so close with a fresh one.
				if err := appInstance.Close(context.Background()); err != nil {
					logging.L.Warn("Application close failed", zap.Error(err))
				}
			}
		},
	}

	// Initialize Viper configuration.
	cobra.OnInitialize(pkgconfig.InitConfig)

	// Define persistent flags.
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., /etc/scholarcites and $HOME/.scholarcites)")

	// Add subcommands. They no longer take the app as an argument.
	cmd.AddCommand(newRefreshCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newPruneCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	// Initialize the logger once at the very start.
	logging.InitLogger()

	// Create and execute the root command.
	if err := newRootCmd().Execute(); err != nil {
		logging.L.Fatal("Command execution failed", zap.Error(err))
	}
}
