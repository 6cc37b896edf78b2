package bridge

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BruceJL/mysql-json-bridge/pkg/config"
	mw "github.com/BruceJL/mysql-json-bridge/pkg/httputil/middleware"
	"github.com/BruceJL/mysql-json-bridge/pkg/metrics"
	"github.com/BruceJL/mysql-json-bridge/pkg/mysql"
	"github.com/BruceJL/mysql-json-bridge/pkg/rest"
	"github.com/BruceJL/mysql-json-bridge/pkg/tenant"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bridge HTTP server",
	Long:  `Starts the HTTP server that exposes configured tenant databases as JSON endpoints`,
	Run:   runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringP("server.listenAddr", "l", "", "HTTP listen address")
	f.String("server.baseURL", "", "Base URL for API endpoints")
	f.StringP("tenants.dir", "t", "", "Directory holding per-tenant YAML files")
	f.String("metrics.listenAddr", "", "Metrics listen address")

	viper.BindPFlags(f)
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	if cfg == nil {
		log.Fatal("Configuration not loaded")
	}

	// flag overrides
	if addr := viper.GetString("server.listenAddr"); addr != "" {
		cfg.Server.ListenAddr = addr
	}
	if base := viper.GetString("server.baseURL"); base != "" {
		cfg.Server.BaseURL = base
	}
	if dir := viper.GetString("tenants.dir"); dir != "" {
		cfg.Tenants.Dir = dir
	}
	if addr := viper.GetString("metrics.listenAddr"); addr != "" {
		cfg.Metrics.ListenAddr = addr
	}

	level := effectiveLogLevel(cfg)
	logger, err := buildLogger(level)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	resolver := tenant.NewResolver(cfg.Tenants.Dir, logger)
	pool := mysql.NewPoolManager(resolver, logger)
	server := rest.NewServer(pool, logger, cfg.Server.BaseURL)

	server.AddMiddleware(
		mw.RequestID,
		mw.CORSWithOptions(nil),
	)
	if level != "none" {
		server.AddMiddleware(mw.LoggerWithOptions(&mw.LoggerOptions{Logger: logger}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	if cfg.Metrics.Enabled {
		metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{Addr: cfg.Metrics.ListenAddr})
	}

	// Handle graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.Start(cfg.Server.ListenAddr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}
	wg.Wait()

	log.Println("Server gracefully stopped")
}

// effectiveLogLevel prefers the --log-level flag; the config file's log.level
// applies when the flag is unset.
func effectiveLogLevel(cfg *config.Config) string {
	if logLevel != "" {
		return logLevel
	}
	if cfg != nil && cfg.Log.Level != "" {
		return cfg.Log.Level
	}
	return "info"
}

func buildLogger(level string) (*zap.Logger, error) {
	if level == "none" {
		return zap.NewNop(), nil
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(lvl)
	return zapCfg.Build()
}
