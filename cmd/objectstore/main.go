package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof" // profiling endpoints, enabled via --enable-pprof
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ivydigitalstorm/grr/pkg/config"
	"github.com/ivydigitalstorm/grr/pkg/log"
	"github.com/ivydigitalstorm/grr/pkg/metrics"
	"github.com/ivydigitalstorm/grr/pkg/registry"
	"github.com/ivydigitalstorm/grr/pkg/store"
	"github.com/spf13/cobra"

	_ "github.com/ivydigitalstorm/grr/pkg/registry/plugins"
	_ "github.com/ivydigitalstorm/grr/pkg/store/boltstore"
	_ "github.com/ivydigitalstorm/grr/pkg/store/memstore"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "objectstore",
	Short:   "Abstract wide-column object store",
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		listStorage, _ := cmd.Flags().GetBool("list_storage")
		if listStorage {
			printRegisteredStorage()
			return nil
		}
		return cmd.Help()
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"objectstore version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "Path to YAML configuration file")
	rootCmd.Flags().Bool("list_storage", false, "List registered datastore and blobstore implementations and exit")

	rootCmd.AddCommand(serveCmd)
}

func printRegisteredStorage() {
	fmt.Println("Registered datastore implementations:")
	for _, name := range registry.ListBackends() {
		fmt.Printf("  - %s\n", name)
	}
	fmt.Println("Registered blobstore implementations:")
	for _, name := range registry.ListBlobstores() {
		fmt.Printf("  - %s\n", name)
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the object store, exposing metrics and health endpoints",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("datastore", "", "Datastore implementation name (overrides config file)")
	serveCmd.Flags().String("data-dir", "", "Data directory (overrides config file)")
	serveCmd.Flags().String("blobstore", "", "Blobstore implementation name (overrides config file)")
	serveCmd.Flags().String("token-mode", "require_token", "Token validation mode: require_token, allow_default, anonymous")
	serveCmd.Flags().String("default-token", "", "Default token substituted when token-mode=allow_default")
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the metrics/health HTTP server")
	serveCmd.Flags().Bool("enable-pprof", false, "Enable pprof profiling endpoints on the metrics server")
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if v, _ := cmd.Flags().GetString("datastore"); v != "" {
		cfg.Datastore.Implementation = v
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.Datastore.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("blobstore"); v != "" {
		cfg.Blobstore.Implementation = v
	}

	logLevel := log.Level(cfg.Log.Level)
	log.Init(log.Config{Level: logLevel, JSONOutput: cfg.Log.JSON})

	backend, err := registry.NewBackend(cfg.Datastore.Implementation, cfg.Datastore.DataDir)
	if err != nil {
		return fmt.Errorf("failed to construct datastore backend: %w", err)
	}
	blobs, err := registry.NewBlobstore(cfg.Blobstore.Implementation, cfg.Datastore.DataDir)
	if err != nil {
		return fmt.Errorf("failed to construct blob store: %w", err)
	}

	tokenModeFlag, _ := cmd.Flags().GetString("token-mode")
	tokenMode, err := parseTokenMode(tokenModeFlag)
	if err != nil {
		return err
	}
	defaultToken, _ := cmd.Flags().GetString("default-token")

	st := store.New(store.Config{
		Backend:         backend,
		Blobstore:       blobs,
		TokenMode:       tokenMode,
		DefaultToken:    defaultToken,
		FlushInterval:   secondsToDuration(cfg.Flush.IntervalSeconds),
		MonitorInterval: secondsToDuration(cfg.Flush.MonitorIntervalSeconds),
	})
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			log.Warn("store close failed: " + err.Error())
		}
	}()

	metrics.SetVersion(Version)
	metrics.RegisterComponent("backend", true, "ready")
	metrics.RegisterComponent("blobstore", true, "ready")

	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	pprofEnabled, _ := cmd.Flags().GetBool("enable-pprof")

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	if pprofEnabled {
		mux.Handle("/debug/pprof/", http.DefaultServeMux)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	fmt.Printf("✓ Object store running (datastore=%s, blobstore=%s)\n", cfg.Datastore.Implementation, cfg.Blobstore.Implementation)
	fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", metricsAddr)
	fmt.Printf("✓ Health endpoints: http://%s/{health,ready,live}\n", metricsAddr)
	fmt.Println("Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "\n%v\n", err)
	}

	fmt.Println("✓ Shutdown complete")
	return nil
}

func parseTokenMode(s string) (store.TokenMode, error) {
	switch s {
	case "require_token", "":
		return store.RequireToken, nil
	case "allow_default":
		return store.AllowDefault, nil
	case "anonymous":
		return store.Anonymous, nil
	default:
		return store.RequireToken, fmt.Errorf("unrecognized token-mode %q", s)
	}
}

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
