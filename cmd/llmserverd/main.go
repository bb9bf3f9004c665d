package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"llmserverd/internal/config"
	"llmserverd/internal/engine"
	"llmserverd/internal/hf"
	"llmserverd/internal/httpapi"
	"llmserverd/internal/worker"
)

var version = "dev"

type options struct {
	addr         string
	configPath   string
	configDir    string
	modelsDir    string
	instances    int
	maxQueue     int
	maxWait      time.Duration
	inferTimeout time.Duration
	contextSize  int
	threads      int
	maxTokens    int
	corsOrigins  []string
	logLevel     string
	offline      bool
	hfToken      string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	defaultAddr := ":8080"
	if v := os.Getenv("LLMSERVERD_ADDR"); v != "" {
		defaultAddr = v
	}
	defaultLevel := "info"
	if v := os.Getenv("LLMSERVERD_LOG_LEVEL"); v != "" {
		defaultLevel = v
	}

	root := &cobra.Command{
		Use:           "llmserverd <model-id> [model-id...]",
		Short:         "Hugging Face model server",
		Version:       version,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, args)
		},
	}
	f := root.Flags()
	f.StringVar(&opts.addr, "addr", defaultAddr, "HTTP listen address, e.g. :8080")
	f.StringVar(&opts.configPath, "config", "", "Server config file (json/yaml/toml)")
	f.StringVar(&opts.configDir, "config-dir", "assets/config", "Directory of per-model config files")
	f.StringVar(&opts.modelsDir, "models-dir", "~/.cache/llmserverd", "Directory for downloaded model files")
	f.IntVarP(&opts.instances, "instances", "i", 1, "How many instances to create per model")
	f.IntVar(&opts.maxQueue, "max-queue", 0, "Queued requests per worker before rejecting (0=default)")
	f.DurationVar(&opts.maxWait, "max-wait", 0, "How long a request may wait for a worker slot (0=default)")
	f.DurationVar(&opts.inferTimeout, "infer-timeout", 0, "Per-request inference timeout (0 disables)")
	f.IntVar(&opts.contextSize, "context-size", 0, "Engine context size (0=engine default)")
	f.IntVar(&opts.threads, "threads", 0, "Engine threads (0=engine default)")
	f.IntVar(&opts.maxTokens, "max-tokens", 0, "Generation cap per request (0=engine default)")
	f.StringSliceVar(&opts.corsOrigins, "cors-origin", nil, "Allowed CORS origins (repeatable; empty disables CORS)")
	f.StringVar(&opts.logLevel, "log-level", defaultLevel, "Log level: debug|info|warn|error")
	f.BoolVar(&opts.offline, "offline", false, "Use previously downloaded model files only")
	f.StringVar(&opts.hfToken, "hf-token", os.Getenv("HF_TOKEN"), "Hugging Face auth token")
	return root
}

func run(opts *options, modelIDs []string) error {
	log := newLogger(opts.logLevel)

	if opts.configPath != "" {
		fileCfg, err := config.LoadServer(opts.configPath)
		if err != nil {
			return err
		}
		applyFileConfig(opts, fileCfg)
	}
	modelsDir, err := config.ExpandHome(opts.modelsDir)
	if err != nil {
		return err
	}

	reg := worker.NewRegistry()
	for _, modelID := range modelIDs {
		if err := loadModel(opts, modelID, modelsDir, reg, log); err != nil {
			log.Error().Err(err).Str("model", modelID).Msg("model unavailable")
		}
	}
	if reg.Empty() {
		return errors.New("no model instance initialized, refusing to serve")
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	defer baseCancel()
	httpapi.SetLogger(log)
	httpapi.SetBaseContext(baseCtx)
	httpapi.SetInferTimeout(opts.inferTimeout)
	httpapi.SetCORSOptions(opts.corsOrigins)

	dispatcher := worker.NewDispatcher(reg, log)
	srv := &http.Server{Addr: opts.addr, Handler: httpapi.NewMux(dispatcher)}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", opts.addr).Int("workers", len(reg.Workers())).Msg("llmserverd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM): stop accepting connections first,
	// then drain every worker.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}
	baseCancel()
	if err := worker.NewCoordinator(reg, log).ShutdownAll(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("worker drain finished with errors")
	}
	return nil
}

// loadModel resolves one model id to local files and registers its worker
// instances. A worker that fails init is logged and excluded; the caller
// decides whether an empty registry is fatal.
func loadModel(opts *options, modelID, modelsDir string, reg *worker.Registry, log zerolog.Logger) error {
	if !opts.offline && !hf.Exists(modelID) {
		return fmt.Errorf("model %s does not exist or is not accessible on Hugging Face", modelID)
	}
	kind := hf.DetectKind(modelID)

	cfgFile := filepath.Join(opts.configDir, config.FileNameFor(modelID))
	if !config.PathExists(cfgFile) {
		created, err := config.WriteDefault(opts.configDir, modelID, kind == hf.KindChat)
		if err != nil {
			return err
		}
		log.Info().Str("path", created).Msg("created model config")
	}
	mcfg, err := config.LoadModel(cfgFile)
	if err != nil {
		return err
	}

	var files hf.ModelFiles
	if opts.offline {
		files, err = hf.Local(mcfg.ModelPath, modelsDir)
	} else {
		fetchOpts := hf.DefaultFetchOptions()
		fetchOpts.AuthToken = opts.hfToken
		files, err = hf.Fetch(mcfg.ModelPath, modelsDir, fetchOpts)
	}
	if err != nil {
		return err
	}

	registered := 0
	for i := 0; i < opts.instances; i++ {
		w, err := worker.New(worker.Options{
			Config:      mcfg,
			Kind:        worker.Kind(kind),
			WeightsPath: files.Weights,
			TemplateDir: files.Dir,
			Engine: engine.Params{
				ContextSize: opts.contextSize,
				Threads:     opts.threads,
				MaxTokens:   opts.maxTokens,
			},
			MailboxDepth: opts.maxQueue,
			MaxWait:      opts.maxWait,
			Logger:       log,
		})
		if err != nil {
			worker.CountInitFailure(mcfg.ModelName)
			log.Error().Err(err).Str("model", mcfg.ModelName).Int("instance", i).Msg("worker init failed")
			continue
		}
		reg.Register(w)
		registered++
	}
	if registered == 0 {
		return fmt.Errorf("all %d instances of %s failed to initialize", opts.instances, mcfg.ModelName)
	}
	log.Info().Str("model", mcfg.ModelName).Str("kind", string(kind)).Int("instances", registered).Msg("model loaded")
	return nil
}

// applyFileConfig fills options left at their zero value from the server
// config file. Explicit flags win.
func applyFileConfig(opts *options, c config.Server) {
	if opts.addr == ":8080" && c.Addr != "" {
		opts.addr = c.Addr
	}
	if c.ConfigDir != "" && opts.configDir == "assets/config" {
		opts.configDir = c.ConfigDir
	}
	if c.ModelsDir != "" && opts.modelsDir == "~/.cache/llmserverd" {
		opts.modelsDir = c.ModelsDir
	}
	if opts.instances <= 1 && c.Instances > 0 {
		opts.instances = c.Instances
	}
	if opts.maxQueue == 0 {
		opts.maxQueue = c.MaxQueue
	}
	if opts.maxWait == 0 {
		opts.maxWait = c.MaxWait
	}
	if opts.inferTimeout == 0 {
		opts.inferTimeout = c.InferTimeout
	}
	if opts.contextSize == 0 {
		opts.contextSize = c.ContextSize
	}
	if opts.threads == 0 {
		opts.threads = c.Threads
	}
	if opts.maxTokens == 0 {
		opts.maxTokens = c.MaxTokens
	}
	if len(opts.corsOrigins) == 0 {
		opts.corsOrigins = c.CORSOrigins
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).With().Timestamp().Logger()
}
