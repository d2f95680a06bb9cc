package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/a3tai/mcp-pdf-composer/internal/config"
	"github.com/a3tai/mcp-pdf-composer/internal/logging"
	"github.com/a3tai/mcp-pdf-composer/internal/mcp"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// setupLogging returns the application logger. Stdout carries the MCP
// protocol in stdio mode, so logs go to stderr and stay quiet unless debug
// is enabled.
func setupLogging(cfg *config.Config) logging.Logger {
	if cfg.IsStdioMode() {
		log.SetOutput(os.Stderr)
		if !cfg.IsDebug() {
			log.SetOutput(io.Discard)
			return logging.New(os.Stderr, logging.LevelError)
		}
		return cfg.Logger(os.Stderr)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	return cfg.Logger(os.Stdout)
}

// newService builds the composition service from the configuration
func newService(cfg *config.Config, logger logging.Logger) (*pdf.Service, error) {
	return pdf.NewService(cfg.MaxFileSize, cfg.PDFDirectory, cfg.Output(),
		pdf.WithLogger(logger),
		pdf.WithDefaults(pdf.Defaults{
			Policy:         cfg.Policy(),
			DiscardOutline: cfg.DiscardOutline,
			Optimize:       cfg.Optimize,
			Compress:       cfg.Compress,
		}),
	)
}

// runServerMode handles server mode execution with signal handling
func runServerMode(ctx context.Context, cancel context.CancelFunc, server *mcp.Server, logger logging.Logger) {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.Run(ctx)
	}()

	select {
	case sig := <-signalCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()

		if err := <-serverErrCh; err != nil {
			logger.Error("server shutdown with error", "error", err)
			os.Exit(1)
		}

	case err := <-serverErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("server stopped")
}

// runStdioMode handles stdio mode execution. The parent process controls
// the lifecycle, the server returns once stdin is closed.
func runStdioMode(ctx context.Context, server *mcp.Server, logger logging.Logger) {
	if err := server.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion()
			return
		}
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := setupLogging(cfg)

	if version != "dev" {
		cfg.Version = version
	}
	logger.Debug("starting", "config", cfg.String())

	pdfService, err := newService(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create PDF service: %v", err)
	}

	server, err := mcp.NewServer(cfg, pdfService, logger)
	if err != nil {
		log.Fatalf("Failed to create MCP server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.IsServerMode() {
		runServerMode(ctx, cancel, server, logger)
	} else {
		runStdioMode(ctx, server, logger)
	}
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("MCP PDF Composer\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Git Commit: %s\n", gitCommit)
	fmt.Printf("Built with: %s\n", runtime.Version())
}
