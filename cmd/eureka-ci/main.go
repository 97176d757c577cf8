package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"gopkg.in/yaml.v3"

	"github.com/folio-org/eureka-ci-app/internal/api"
	"github.com/folio-org/eureka-ci-app/internal/config"
	"github.com/folio-org/eureka-ci-app/internal/github"
	"github.com/folio-org/eureka-ci-app/internal/lock"
	"github.com/folio-org/eureka-ci-app/internal/log"
	"github.com/folio-org/eureka-ci-app/internal/objectstore"
	"github.com/folio-org/eureka-ci-app/internal/processor"
	"github.com/folio-org/eureka-ci-app/internal/queue"
	"github.com/folio-org/eureka-ci-app/internal/repoconfig"
	"github.com/folio-org/eureka-ci-app/internal/secrets"
	"github.com/folio-org/eureka-ci-app/internal/state"
	"github.com/folio-org/eureka-ci-app/internal/storage"
	"github.com/folio-org/eureka-ci-app/internal/tui/watch"
	"github.com/folio-org/eureka-ci-app/internal/webhook"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "start":
		os.Exit(runStart(args))
	case "watch":
		os.Exit(runWatch(args))
	case "config":
		os.Exit(runConfigNoun(args))
	case "version":
		fmt.Printf("eureka-ci version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`eureka-ci - Webhook ingestion and check-run orchestration service

Usage:
  eureka-ci <command> [flags]

Commands:
  start           Start the service in the foreground
  watch           Open the operator console TUI
  config check    Validate the configuration
  config show     Print the resolved configuration
  version         Show version information
  help            Show this help message
`)
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: eureka-ci config <check|show> [flags]")
		return 1
	}

	switch args[0] {
	case "check":
		return runConfigCheck(args[1:])
	case "show":
		return runConfigShow(args[1:])
	case "help", "--help", "-h":
		fmt.Println("Usage: eureka-ci config <check|show> [--config PATH]")
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", args[0])
		return 1
	}
}

// loadConfig resolves the --config flag (or discovery) into a parsed config.
func loadConfig(configPath string) (*config.Config, string, error) {
	if configPath == "" {
		discovered, err := config.DiscoverConfigPath()
		if err != nil {
			return nil, "", err
		}
		configPath = discovered
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, "", err
	}
	return cfg, configPath, nil
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, resolvedPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("eureka-ci starting", "version", version, "config", resolvedPath)

	pidLock, err := lock.Acquire(pidLockPath(cfg))
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "error", err)
		return 1
	}
	defer pidLock.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	secretStore, err := secrets.NewDirStore(cfg.Secrets.Dir)
	if err != nil {
		logger.Error("failed to open secret store", "dir", cfg.Secrets.Dir, "error", err)
		return 1
	}
	secretResolver := secrets.NewResolver(secretStore, cfg.Secrets.CacheTTL)

	objStore, err := objectstore.NewFSStore(cfg.ConfigStore.Root)
	if err != nil {
		logger.Error("failed to open config store", "root", cfg.ConfigStore.Root, "error", err)
		return 1
	}
	workflowResolver := repoconfig.NewResolver(objStore, cfg.ConfigStore.MappingKey, cfg.ConfigStore.CacheTTL, log.WithComponent("repoconfig"))

	privateKeyPEM, err := secretResolver.Get(ctx, cfg.GitHub.PrivateKeyRef)
	if err != nil {
		logger.Error("failed to load app private key", "secret_ref", cfg.GitHub.PrivateKeyRef, "error", err)
		return 1
	}
	privateKey, err := github.ParsePrivateKey([]byte(privateKeyPEM))
	if err != nil {
		logger.Error("invalid app private key", "error", err)
		return 1
	}
	ghClient, err := github.New(github.Config{
		AppID:          cfg.GitHub.AppID,
		PrivateKey:     privateKey,
		BaseURL:        cfg.GitHub.BaseURL,
		RequestTimeout: cfg.GitHub.RequestTimeout,
		Logger:         log.WithComponent("github"),
	})
	if err != nil {
		logger.Error("failed to create platform client", "error", err)
		return 1
	}

	q := queue.New(db, cfg.Queue.VisibilityTimeout)
	registry := state.NewStore(db)

	proc := processor.New(processor.Config{
		Workers:       cfg.Queue.Workers,
		PollInterval:  cfg.Queue.PollInterval,
		MaxDeliveries: cfg.Queue.MaxDeliveries,
		DispatchRepo:  cfg.GitHub.DispatchRepo,
		DispatchRef:   cfg.GitHub.DispatchRef,
	}, q, registry, workflowResolver, ghClient, log.WithComponent("processor"))

	webhookServer := webhook.New(cfg.Webhook, q, secretResolver, log.WithComponent("webhook"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 3)

	go func() {
		if err := proc.Run(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("processor: %w", err)
		}
	}()
	go func() {
		if err := webhookServer.Start(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("webhook: %w", err)
		}
	}()

	if cfg.API.Enabled {
		apiServer := api.New(cfg.API, q, registry, log.WithComponent("api"))
		go func() {
			if err := apiServer.Start(ctx); err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("operator API enabled", "listen", cfg.API.Listen)
	}

	logger.Info("eureka-ci running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("eureka-ci stopped")
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	apiURL := fs.String("api", "http://127.0.0.1:8081", "Operator API base URL")
	apiKey := fs.String("key", os.Getenv("EUREKA_CI_API_KEY"), "Operator API key (or $EUREKA_CI_API_KEY)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	program := tea.NewProgram(watch.New(*apiURL, *apiKey))
	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "watch failed: %v\n", err)
		return 1
	}
	return 0
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, resolvedPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config check FAILED: %v\n", err)
		return 1
	}

	fmt.Printf("Config check PASSED: %s\n", resolvedPath)
	fmt.Printf("  webhook listen:  %s%s\n", cfg.Webhook.Listen, cfg.Webhook.Path)
	fmt.Printf("  state db:        %s\n", cfg.State.Path)
	fmt.Printf("  config store:    %s (%s)\n", cfg.ConfigStore.Root, cfg.ConfigStore.MappingKey)
	fmt.Printf("  dispatch target: %s@%s\n", cfg.GitHub.DispatchRepo, cfg.GitHub.DispatchRef)
	fmt.Printf("  queue workers:   %d\n", cfg.Queue.Workers)
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	// The auth key never leaves the process, resolved or not.
	if cfg.API.AuthKey != "" {
		cfg.API.AuthKey = "<redacted>"
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render config: %v\n", err)
		return 1
	}
	fmt.Print(string(out))
	return 0
}

// pidLockPath derives the lock file path from the state database path so the
// lock and the database it guards live together.
func pidLockPath(cfg *config.Config) string {
	dbPath := cfg.State.Path
	base := filepath.Base(dbPath)
	ext := filepath.Ext(base)
	return filepath.Join(filepath.Dir(dbPath), base[:len(base)-len(ext)]+".pid")
}
