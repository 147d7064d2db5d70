// Package main is the entry point for the gormscope application.
// gormscope binds GORM sessions to the gin request cycle and exposes the
// schema administration commands.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gormscope/gormscope/consts"
	"github.com/gormscope/gormscope/internal/check"
	"github.com/gormscope/gormscope/internal/cli"
	"github.com/gormscope/gormscope/internal/config"
	"github.com/gormscope/gormscope/internal/database"
	"github.com/gormscope/gormscope/internal/model"
	"github.com/gormscope/gormscope/internal/server"
	"github.com/gormscope/gormscope/pkg/errors"
	"github.com/gormscope/gormscope/pkg/logger"
	"github.com/gormscope/gormscope/pkg/telemetry"
)

// Build information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func init() {
	consts.Version = Version
	consts.BuildTime = BuildTime
	consts.GitCommit = GitCommit
}

var (
	configPath string
	envPath    string

	// cfg is loaded before any subcommand runs
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "gormscope",
	Short: "gormscope - request-scoped GORM sessions for gin",
	Long: `gormscope opens a database session for every request, publishes it to
the request context and closes it when the request ends. The db commands
initialize the schema and run migrations.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cmd.Name() == "version" {
			return
		}
		if err := config.LoadDotEnv(envPath); err != nil {
			fmt.Fprintf(os.Stderr, "[WARNING] Failed to load %s: %v\n", envPath, err)
		}
		// check reports configuration problems itself
		if cmd.Name() == "check" {
			return
		}
		loadConfig()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Run:   runServe,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the environment and create a config file from the template",
	Run: func(cmd *cobra.Command, args []string) {
		checker := check.NewChecker(configPath, check.WithOutput(cmd.OutOrStdout()))
		if err := checker.Run(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "Environment check failed: %v\n", err)
			os.Exit(1)
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gormscope %s\n", Version)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.ConfigPath, "config file path")
	rootCmd.PersistentFlags().StringVar(&envPath, "env-file", ".env", "dotenv file loaded before the config")

	serveCmd.Flags().String("host", "", "server host (overrides config)")
	serveCmd.Flags().Int("port", 0, "server port (overrides config)")
	serveCmd.Flags().Bool("debug", false, "enable debug mode")
	serveCmd.Flags().Bool("check", false, "run the environment check before starting the server")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(cli.NewDBCommand(openAdmin, cli.Options{}))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads, validates and applies the configuration. Configuration
// errors are fatal.
func loadConfig() {
	loaded, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(errors.ExitCodeConfigValidation)
	}
	if err := config.Validate(loaded); err != nil {
		fmt.Fprintf(os.Stderr, "\n[ERROR] Configuration validation failed\n")
		if appErr, ok := errors.AsAppError(err); ok {
			fmt.Fprintf(os.Stderr, "Error Code: %s\n", appErr.Code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		os.Exit(errors.ExitCodeConfigValidation)
	}
	cfg = loaded

	if err := logger.Init(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
}

// openAdmin builds the database adapter the db commands run against
func openAdmin() (cli.Admin, error) {
	return database.New(cfg.Database, model.Default)
}

func runServe(cmd *cobra.Command, args []string) {
	if withCheck, _ := cmd.Flags().GetBool("check"); withCheck {
		result := check.NewChecker(configPath).RunNonInteractive(cmd.Context())
		if !result.Success {
			check.PrintCheckResult(os.Stderr, result)
			os.Exit(1)
		}
		for _, warn := range result.Warnings {
			fmt.Fprintf(os.Stderr, "[WARNING] %s\n", warn)
		}
	}

	consts.MarkStarted(time.Now())
	defer logger.Sync()

	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Server.Debug = true
	}

	logger.Info("Starting gormscope", zap.String("version", Version))

	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			logger.Error("Failed to shutdown telemetry", zap.Error(err))
		}
	}()

	db, err := database.New(cfg.Database, model.Default)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(errors.ExitCodeConfigValidation)
	}
	defer db.Close()

	// An in-memory database starts empty
	if db.Engine().InMemory() {
		if _, err := db.InitDB(context.Background()); err != nil {
			logger.Fatal("Failed to initialize in-memory schema", zap.Error(err))
		}
	}

	if cfg.Database.HealthCheckCron != "" {
		monitor, err := db.StartMonitor()
		if err != nil {
			logger.Warn("Failed to start engine monitor", zap.Error(err))
		} else {
			defer monitor.Stop()
		}
	}

	var serverOpts []server.Option
	if h := tel.Handler(); h != nil && cfg.Telemetry.Prometheus.Port < 0 {
		serverOpts = append(serverOpts, server.WithMetrics(h))
	}
	srv := server.New(cfg, db, serverOpts...)
	srv.SetupRoutes()

	if err := srv.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
	logger.Info("gormscope server is running", zap.String("address", cfg.Server.Address()))

	srv.WaitForShutdown()

	logger.Info("gormscope stopped")
}
