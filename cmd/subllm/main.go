package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Mathews-Tom/SubLLM/config"
)

// Version info, injected at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "models":
		runModels(os.Args[2:])
	case "auth":
		runAuth(os.Args[2:])
	case "version":
		fmt.Printf("SubLLM %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func loadConfig(args []string, name string) *config.Config {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (YAML)")
	fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func runServe(args []string) {
	cfg := loadConfig(args, "serve")

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting SubLLM",
		zap.String("version", Version),
		zap.String("commit", GitCommit),
	)

	srv := NewServer(cfg, logger)
	if err := srv.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	srv.WaitForShutdown()
	logger.Info("SubLLM stopped")
}

func runModels(args []string) {
	cfg := loadConfig(args, "models")

	router := buildRouter(cfg, zap.NewNop())
	defer router.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBACKEND\tMODEL")
	for _, info := range router.ListModels() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", info.ID, info.Backend, info.Model)
	}
	w.Flush()
}

func runAuth(args []string) {
	cfg := loadConfig(args, "auth")

	router := buildRouter(cfg, zap.NewNop())
	defer router.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	anyFailed := false
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BACKEND\tAUTHENTICATED\tMETHOD\tDETAIL")
	for _, status := range router.CheckAuth(ctx) {
		if !status.Authenticated {
			anyFailed = true
		}
		fmt.Fprintf(w, "%s\t%t\t%s\t%s\n",
			status.Backend, status.Authenticated, status.Method, status.Detail)
	}
	w.Flush()

	if anyFailed {
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`SubLLM - multi-backend LLM dispatcher

Usage:
  subllm <command> [options]

Commands:
  serve     Start the HTTP proxy server
  models    List routable model ids
  auth      Probe backend authentication state
  version   Show version information
  help      Show this help message

Options:
  --config <path>   Path to configuration file (YAML)

Examples:
  subllm serve --config /etc/subllm/config.yaml
  subllm models
  subllm auth`)
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
