// File: cmd/dashboard/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/smartdevs17/etherfund-dashboard/internal/config"
	"github.com/smartdevs17/etherfund-dashboard/internal/connection"
	"github.com/smartdevs17/etherfund-dashboard/internal/contentstore"
	"github.com/smartdevs17/etherfund-dashboard/internal/contract"
	"github.com/smartdevs17/etherfund-dashboard/internal/dashboard"
	"github.com/smartdevs17/etherfund-dashboard/internal/forms"
	"github.com/smartdevs17/etherfund-dashboard/internal/metrics"
	"github.com/smartdevs17/etherfund-dashboard/internal/monitor"
	"github.com/smartdevs17/etherfund-dashboard/internal/notification"
	"github.com/smartdevs17/etherfund-dashboard/internal/reader"
	"github.com/smartdevs17/etherfund-dashboard/internal/server"
	"github.com/smartdevs17/etherfund-dashboard/internal/storage"
	"github.com/smartdevs17/etherfund-dashboard/internal/telemetry"
	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application wires the gateways, read path and write path together
type Application struct {
	config         *config.Config
	logger         *logrus.Logger
	metricsManager *metrics.Manager
	connection     *connection.Manager
	cache          storage.ContentCache
	gateway        *contract.Gateway
	store          contentstore.Store
	reader         *reader.Reader
	builder        *dashboard.Builder
	loaders        *dashboard.Loaders
	forms          *forms.Service
	refresher      *monitor.Refresher
	server         *server.HTTPServer
	shutdownTracer func(context.Context) error
	ctx            context.Context
	cancel         context.CancelFunc
}

// NewApplication creates a new application instance. approve, when set,
// gates every signature the configured key would make.
func NewApplication(cfg *config.Config, approve contract.ApprovalFunc) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(approve); err != nil {
		app.Stop()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeLogger initializes the application logger
func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging
	level := logCfg.Level
	if viper.GetBool("debug") {
		level = "debug"
	} else if flagLevel := viper.GetString("log-level"); flagLevel != "" {
		level = flagLevel
	}

	if err := utils.InitLogger(level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return err
	}

	app.logger = utils.GetLogger()
	app.logger.WithFields(logrus.Fields{
		"level":  level,
		"format": logCfg.Format,
		"output": logCfg.Output,
	}).Debug("Logger initialized")
	return nil
}

// initializeComponents initializes all application components, leaves first
func (app *Application) initializeComponents(approve contract.ApprovalFunc) error {
	shutdown, err := telemetry.InitTracer(app.ctx, app.config.Telemetry.ServiceName, app.config.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	app.shutdownTracer = shutdown

	app.metricsManager = metrics.NewManager()

	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initializeGateway(approve); err != nil {
		return fmt.Errorf("failed to initialize contract gateway: %w", err)
	}

	app.store = contentstore.NewCachedStore(
		contentstore.NewHTTPStore(&app.config.ContentStore, app.metricsManager),
		app.cache,
		app.metricsManager,
	)
	app.reader = reader.New(app.gateway, app.store, app.config.Reader.ContentConcurrency, app.metricsManager)
	app.builder = dashboard.NewBuilder(app.gateway, app.reader, &app.config.Dashboard, app.metricsManager)
	app.loaders = dashboard.NewLoaders(app.builder, app.metricsManager)
	app.forms = forms.NewService(app.gateway, app.store, app.loaders, app.cache)
	if webhooks := notification.NewWebhookSender(&app.config.Notification, app.metricsManager); webhooks.Enabled() {
		app.forms.WithNotifier(webhooks, webhooks.DeliveryBudget())
		app.logger.WithField("webhooks", len(app.config.Notification.WebhookURLs)).Info("Write notifications enabled")
	}

	app.logger.Info("All components initialized successfully")
	return nil
}

// initializeStorage opens and migrates the content cache
func (app *Application) initializeStorage() error {
	cache, err := storage.Open(&app.config.Storage)
	if err != nil {
		return err
	}
	app.cache = storage.NewCacheWithMetrics(cache, app.metricsManager)

	app.logger.WithField("type", app.config.Storage.Type).Info("Storage layer initialized")
	return nil
}

// initializeGateway connects to the node and builds the contract gateway.
// An unreachable node is not fatal: calls fail until it comes back.
func (app *Application) initializeGateway(approve contract.ApprovalFunc) error {
	chainCfg := &app.config.Chain

	var backend contract.Backend
	if chainCfg.NodeURL != "" {
		app.connection = connection.NewManager(chainCfg, app.metricsManager)
		if err := app.connection.Connect(app.ctx); err != nil {
			app.logger.WithField("error", err).Warn("Node unreachable at startup")
		}
		backend = app.connection
	} else {
		app.logger.Warn("No node configured; contract calls are unavailable")
	}

	var signer contract.Signer
	if chainCfg.SignerKey != "" {
		keySigner, err := contract.NewKeySigner(chainCfg.SignerKey)
		if err != nil {
			return err
		}
		signer = keySigner
		if approve != nil {
			signer = contract.NewApprovalSigner(keySigner, approve)
		}
		app.logger.WithField("account", keySigner.Address().Hex()).Info("Signer configured")
	}

	gateway, err := contract.New(backend, chainCfg, signer, app.metricsManager)
	if err != nil {
		return err
	}
	app.gateway = gateway
	return nil
}

// Serve starts the HTTP server
func (app *Application) Serve() error {
	srv, err := server.NewHTTPServer(
		&app.config.Server,
		app.config.Chain.ExplorerTxURL,
		app.loaders,
		app.forms,
		app.cache,
		app.metricsManager,
	)
	if err != nil {
		return err
	}
	app.server = srv

	if interval := app.config.Dashboard.RefreshInterval; interval > 0 && app.connection != nil {
		app.refresher = monitor.NewRefresher(app.connection, app.loaders, interval, app.metricsManager)
		if err := app.refresher.Start(app.ctx); err != nil {
			return err
		}
	}

	app.logger.WithFields(logrus.Fields{
		"contract": app.gateway.Address().Hex(),
		"writes":   app.gateway.HasSigner(),
	}).Info("Starting EtherFund dashboard")
	return srv.Start()
}

// Stop releases every component in reverse order
func (app *Application) Stop() {
	app.cancel()

	if app.refresher != nil {
		app.refresher.Stop()
	}

	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			app.logger.WithField("error", err).Error("Failed to stop HTTP server")
		}
	}

	if app.forms != nil {
		app.forms.Wait()
	}

	if app.cache != nil {
		if err := app.cache.Close(); err != nil {
			app.logger.WithField("error", err).Error("Failed to close storage")
		}
	}

	if app.connection != nil {
		if err := app.connection.Close(); err != nil {
			app.logger.WithField("error", err).Error("Failed to close connection")
		}
	}

	if app.shutdownTracer != nil {
		if err := app.shutdownTracer(context.Background()); err != nil {
			app.logger.WithField("error", err).Error("Failed to flush traces")
		}
	}
}

// CLI Commands

var rootCmd = &cobra.Command{
	Use:     "etherfund-dashboard",
	Short:   "EtherFund crowdfunding campaign dashboard",
	Long:    `Reads a crowdfunding contract's events and content-addressed updates and serves a per-campaign dashboard.`,
	Version: AppVersion,
	RunE:    runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard over HTTP",
	RunE:  runServe,
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The HTTP write path has no one to ask, so the configured key signs directly
	app, err := NewApplication(cfg, nil)
	if err != nil {
		return err
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	if err := app.Serve(); err != nil {
		app.Stop()
		return fmt.Errorf("failed to start application: %w", err)
	}

	<-signalChan
	fmt.Println("\nReceived shutdown signal, stopping application...")
	app.Stop()
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("EtherFund Dashboard %s\n", AppVersion)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetString("config"))
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Environment: %s\n", cfg.App.Environment)
		fmt.Printf("Node: %s\n", cfg.Chain.NodeURL)
		fmt.Printf("Contract: %s\n", cfg.Chain.ContractAddress)
		fmt.Printf("Content store: %s\n", cfg.ContentStore.ContentStoreURL())
		fmt.Printf("Storage: %s\n", cfg.Storage.Type)
		fmt.Printf("Writes enabled: %t\n", cfg.Chain.SignerKey != "")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug mode")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(validateConfigCmd)
	addCampaignCommands(rootCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
