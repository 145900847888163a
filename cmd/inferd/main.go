package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"inferd/internal/capability"
	"inferd/internal/common/fsutil"
	"inferd/internal/config"
	"inferd/internal/engine/llamacpp"
	"inferd/internal/engine/llamasrv"
	"inferd/internal/httpapi"
	"inferd/internal/registry"
	"inferd/internal/scheduler"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath         string
		addr            string
		modelsDir       string
		defaultModel    string
		assignmentsPath string
		logLevel        string
		idleTimeout     time.Duration
		maxQueueDepth   int
		corsOrigins     string
		llamaBin        string
		llamaHost       string
		llamaPortStart  int
		llamaPortEnd    int
		llamaCtx        int
		llamaThreads    int
		llamaExtraArgs  string
	)

	root := &cobra.Command{
		Use:           "inferd",
		Short:         "Queueing scheduler for local LLM inference",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg config.Config
			if cfgPath != "" {
				var err error
				cfg, err = config.Load(cfgPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
			}
			// Flags win over the file when set on the command line.
			set := func(name string, apply func()) {
				if cmd.Flags().Changed(name) {
					apply()
				}
			}
			set("addr", func() { cfg.Addr = addr })
			set("models-dir", func() { cfg.ModelsDir = modelsDir })
			set("default-model", func() { cfg.DefaultModel = defaultModel })
			set("assignments", func() { cfg.AssignmentsPath = assignmentsPath })
			set("log-level", func() { cfg.LogLevel = logLevel })
			set("idle-timeout", func() { cfg.IdleTimeout = config.Duration(idleTimeout) })
			set("max-queue-depth", func() { cfg.MaxQueueDepth = maxQueueDepth })
			set("cors-origins", func() { cfg.CORSOrigins = splitCSV(corsOrigins) })
			set("llama-bin", func() { cfg.LlamaBin = llamaBin })
			set("llama-host", func() { cfg.LlamaHost = llamaHost })
			set("llama-port-start", func() { cfg.LlamaPortStart = llamaPortStart })
			set("llama-port-end", func() { cfg.LlamaPortEnd = llamaPortEnd })
			set("llama-ctx", func() { cfg.LlamaCtx = llamaCtx })
			set("llama-threads", func() { cfg.LlamaThreads = llamaThreads })
			set("llama-args", func() { cfg.LlamaExtraArgs = splitCSV(llamaExtraArgs) })

			if cfg.Addr == "" {
				cfg.Addr = addr
			}
			if cfg.ModelsDir == "" {
				cfg.ModelsDir = modelsDir
			}
			if cfg.LogLevel == "" {
				cfg.LogLevel = logLevel
			}
			if cfg.LlamaBin == "" {
				cfg.LlamaBin = llamaBin
			}
			return serve(cfg)
		},
	}

	f := root.Flags()
	f.StringVar(&cfgPath, "config", envOr("INFERD_CONFIG", ""), "Path to a yaml/json/toml config file")
	f.StringVar(&addr, "addr", envOr("INFERD_ADDR", ":8080"), "HTTP listen address, e.g. :8080")
	f.StringVar(&modelsDir, "models-dir", envOr("INFERD_MODELS_DIR", "~/models/llm"), "Directory to scan for *.gguf model files")
	f.StringVar(&defaultModel, "default-model", "", "Default model id when request omits model")
	f.StringVar(&assignmentsPath, "assignments", envOr("INFERD_ASSIGNMENTS", ""), "Path to the capability assignments file")
	f.StringVar(&logLevel, "log-level", envOr("INFERD_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")
	f.DurationVar(&idleTimeout, "idle-timeout", 60*time.Second, "Worker shuts down after this long with an empty queue")
	f.IntVar(&maxQueueDepth, "max-queue-depth", 256, "Reject requests beyond this many queued")
	f.StringVar(&corsOrigins, "cors-origins", "", "Comma-separated allowed CORS origins (empty disables CORS)")
	f.StringVar(&llamaBin, "llama-bin", envOr("INFERD_LLAMA_BIN", "llama-server"), "llama-server binary (spawn mode)")
	f.StringVar(&llamaHost, "llama-host", "127.0.0.1", "Host to bind spawned llama-server on")
	f.IntVar(&llamaPortStart, "llama-port-start", 0, "Start of the spawn port range")
	f.IntVar(&llamaPortEnd, "llama-port-end", 0, "End of the spawn port range")
	f.IntVar(&llamaCtx, "llama-ctx", 4096, "Context window forwarded to the engine")
	f.IntVar(&llamaThreads, "llama-threads", 0, "Threads forwarded to the engine (0 = engine default)")
	f.StringVar(&llamaExtraArgs, "llama-args", "", "Comma-separated extra llama-server arguments")

	return root
}

func serve(cfg config.Config) error {
	logger := newLogger(cfg.LogLevel)

	reg, err := registry.LoadDir(cfg.ModelsDir)
	if err != nil {
		return fmt.Errorf("load models: %w", err)
	}
	logger.Info().Int("models", len(reg)).Str("dir", cfg.ModelsDir).Msg("registry loaded")

	var eng scheduler.Engine
	if llamacpp.Built() {
		eng = llamacpp.New(cfg.LlamaCtx, cfg.LlamaThreads)
		logger.Info().Msg("using in-process llama engine")
	} else {
		eng = llamasrv.New(llamasrv.Config{
			Binary:    cfg.LlamaBin,
			Host:      cfg.LlamaHost,
			PortStart: cfg.LlamaPortStart,
			PortEnd:   cfg.LlamaPortEnd,
			CtxSize:   cfg.LlamaCtx,
			Threads:   cfg.LlamaThreads,
			ExtraArgs: cfg.LlamaExtraArgs,
			Logger:    &logger,
		})
		logger.Info().Str("binary", cfg.LlamaBin).Msg("using llama-server spawn engine")
	}

	schedCfg := scheduler.Config{
		Registry:      reg,
		Engine:        eng,
		DefaultModel:  cfg.DefaultModel,
		IdleTimeout:   cfg.IdleTimeout.Std(),
		MaxQueueDepth: cfg.MaxQueueDepth,
		Logger:        &logger,
	}

	var caps *capability.Store
	if cfg.AssignmentsPath != "" {
		if !fsutil.PathExists(cfg.AssignmentsPath) {
			logger.Warn().Str("path", cfg.AssignmentsPath).Msg("assignments file not found, starting empty")
		}
		caps = capability.NewStore(cfg.AssignmentsPath)
		if err := caps.Load(); err != nil {
			return fmt.Errorf("load assignments: %w", err)
		}
		schedCfg.Assignments = caps
	}

	sched := scheduler.New(schedCfg)
	defer sched.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpapi.SetLogger(logger)
	httpapi.SetBaseContext(ctx)
	if len(cfg.CORSOrigins) > 0 {
		httpapi.SetCORSOptions(true, cfg.CORSOrigins,
			[]string{"GET", "POST", "PUT", "OPTIONS"},
			[]string{"Content-Type", "X-Request-Priority", "X-Log-Level"})
	}

	var capsIface httpapi.CapabilityStore
	if caps != nil {
		capsIface = caps
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(sched, capsIface),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("inferd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn().Err(err).Msg("sd_notify failed")
	} else if sent {
		logger.Debug().Msg("sd_notify ready sent")
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

// splitCSV splits a comma-separated flag value, trimming spaces and
// dropping empties.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
