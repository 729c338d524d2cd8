package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/a3tai/asset-form-generator/internal/config"
	"github.com/a3tai/asset-form-generator/internal/logger"
	"github.com/a3tai/asset-form-generator/internal/mcp"
	"github.com/a3tai/asset-form-generator/internal/pipeline"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// Exit codes
const (
	exitOK      = 0
	exitFatal   = 1
	exitPartial = 2
)

// handleSignals cancels ctx on the first SIGINT, SIGTERM or SIGHUP
func handleSignals(cancel context.CancelFunc, log *logger.Logger) func() {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-signalCh:
			log.Warn("received signal, stopping", "signal", sig.String())
			cancel()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(signalCh)
		close(done)
	}
}

// runBatch performs one generation run and returns the process exit code
func runBatch(ctx context.Context, cfg *config.Config, log *logger.Logger, out io.Writer) int {
	service, cleanup, err := pipeline.NewFromConfig(ctx, cfg, log)
	if err != nil {
		log.Error("failed to set up pipeline", "error", err)
		return exitFatal
	}
	defer cleanup()

	summary, err := service.Run(ctx)
	if err != nil {
		log.Error("run failed", "error", err)
		fmt.Fprintf(out, "Error: %v\n", err)
		return exitFatal
	}

	fmt.Fprintln(out, summary.String())
	for _, p := range summary.Planned {
		fmt.Fprintf(out, "  would write %s\n", p)
	}
	for _, f := range summary.Failures {
		fmt.Fprintf(out, "  [%s] %s: %s\n", f.Stage, f.Subject, f.Message)
	}
	if len(summary.Failures) > 0 {
		return exitPartial
	}
	return exitOK
}

// runMCP serves the pipeline as MCP tools over stdio
func runMCP(ctx context.Context, cfg *config.Config, log *logger.Logger) int {
	service, cleanup, err := pipeline.NewFromConfig(ctx, cfg, log)
	if err != nil {
		log.Error("failed to set up pipeline", "error", err)
		return exitFatal
	}
	defer cleanup()

	server, err := mcp.NewServer(cfg, service, log)
	if err != nil {
		log.Error("failed to create MCP server", "error", err)
		return exitFatal
	}

	if err := server.Run(ctx); err != nil {
		log.Error("server error", "error", err)
		return exitFatal
	}
	return exitOK
}

func main() {
	// Check for version flag before parsing other flags
	if versionRequested(os.Args[1:]) {
		printVersion(os.Stdout)
		return
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(exitFatal)
	}

	// Set version if it was provided during build
	if version != "dev" {
		cfg.Version = version
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(exitFatal)
	}
	log.Debug("starting", "config", cfg.String())

	ctx, cancel := context.WithCancel(context.Background())
	stopSignals := handleSignals(cancel, log)

	var code int
	if cfg.IsMCPMode() {
		code = runMCP(ctx, cfg, log)
	} else {
		code = runBatch(ctx, cfg, log, os.Stdout)
	}

	stopSignals()
	cancel()
	log.Sync()
	os.Exit(code)
}

func versionRequested(args []string) bool {
	for _, arg := range args {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return true
		}
	}
	return false
}

// printVersion prints version information
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "Asset Form Generator\n")
	fmt.Fprintf(w, "Version: %s\n", version)
	fmt.Fprintf(w, "Build Time: %s\n", buildTime)
	fmt.Fprintf(w, "Git Commit: %s\n", gitCommit)
	fmt.Fprintf(w, "Built with: %s\n", runtime.Version())
}
