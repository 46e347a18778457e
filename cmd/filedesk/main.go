// ABOUTME: Entry point for filedesk, the document desk assistant service
// ABOUTME: Dispatches serve, health and check-config sub-commands

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/filedesk/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
   __ _ _           _           _
  / _(_) | ___   __| | ___  ___| | __
 | |_| | |/ _ \ / _' |/ _ \/ __| |/ /
 |  _| | |  __/| (_| |  __/\__ \   <
 |_| |_|_|\___| \__,_|\___||___/_|\_\
`

// getConfigPath returns the path to the config file.
// Priority: FILEDESK_CONFIG env var > XDG_CONFIG_HOME/filedesk/config.yaml > ~/.config/filedesk/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("FILEDESK_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "filedesk", "config.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: filedesk <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve          Start the assistant frontends and HTTP API")
		fmt.Println("  health         Check a running instance")
		fmt.Println("  check-config   Validate the config file and exit")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	case "check-config":
		err = runCheckConfig()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCheckConfig() error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("    ✓ ")
	fmt.Printf("%s is valid\n", configPath)
	fmt.Printf("      session backend: %s\n", cfg.Session.Backend)
	fmt.Printf("      files:           %s\n", cfg.Files.Dir)
	fmt.Printf("      telegram:        %t\n", cfg.Frontends.Telegram.Enabled)
	fmt.Printf("      matrix:          %t\n", cfg.Frontends.Matrix.Enabled)
	return nil
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is not configured")
	}

	// Readiness includes the session store ping
	url := fmt.Sprintf("http://%s/health/ready", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}
