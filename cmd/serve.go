package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"visionproxy/internal/config"
	"visionproxy/internal/logger"
	"visionproxy/internal/metrics"
	"visionproxy/internal/ocr"
	"visionproxy/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the OCR proxy HTTP server",
	Long: `Start the HTTP server exposing POST/OPTIONS /vision (and /api/vision).

Each POST with a JSON body {"image": "<base64>"} is validated and forwarded
once to Google Cloud Vision with TEXT_DETECTION and DOCUMENT_TEXT_DETECTION.

Environment variables:
  GOOGLE_VISION_API_KEY  - Vision API key (requests fail with 500 when unset)
  VISION_BACKEND         - rest (default) or grpc
  VISION_TIMEOUT         - upstream timeout, e.g. 30s
  VISION_DEBUG_INFO      - attach _debug diagnostics to error responses
  APP_ENV                - "development" adds stack traces to 500 responses
  PORT                   - listen port (default 8080)
  MAX_BODY_BYTES         - inbound body limit (default 10 MiB)
  METRICS_ENABLED        - expose /metrics (default true)`,
	Example: `  # Serve on the default port
  visionproxy serve

  # Serve on another port without metrics
  visionproxy serve --port 9000 --metrics=false`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("port", "", "Listen port (overrides PORT)")
	serveCmd.Flags().Bool("metrics", true, "Expose Prometheus metrics on /metrics")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	cfg, err := requireConfig()
	if err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return err
	}

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}
	if cmd.Flags().Changed("metrics") {
		cfg.MetricsEnabled, _ = cmd.Flags().GetBool("metrics")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, closeFn, err := buildServer(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeFn(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close Vision client")
		}
	}()

	log.Info().
		Str("addr", cfg.Addr()).
		Str("backend", cfg.VisionBackend).
		Bool("api_key_configured", cfg.HasAPIKey()).
		Bool("metrics", cfg.MetricsEnabled).
		Str("environment", cfg.Environment).
		Msg("Starting visionproxy")

	return srv.ListenAndServe(ctx)
}

// buildServer wires configuration, metrics, the OCR service and the router.
func buildServer(ctx context.Context, cfg *config.Config) (*server.Server, func() error, error) {
	log := logger.WithComponent("serve")
	closeFn := func() error { return nil }

	var m *metrics.Metrics
	var upstreamObserver ocr.UpstreamObserver
	var requestObserver server.RequestObserver
	if cfg.MetricsEnabled {
		m = metrics.New()
		upstreamObserver = m
		requestObserver = m
	}

	var processor server.Processor
	if cfg.HasAPIKey() {
		annotator, annotatorClose, err := newAnnotator(ctx, cfg)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create Vision annotator")
			return nil, nil, err
		}
		closeFn = annotatorClose
		processor = ocr.NewService(annotator, ocr.ServiceConfig{
			Timeout:  cfg.UpstreamTimeout,
			Observer: upstreamObserver,
			Logger:   logger.WithComponent("ocr"),
		})
	} else {
		log.Warn().Msg(config.EnvVisionAPIKey + " not configured; /vision will answer 500 until it is set")
	}

	serverCfg := server.ServerConfig{
		Addr: cfg.Addr(),
		Vision: server.NewVisionHandler(server.HandlerConfig{
			APIKey:       cfg.VisionAPIKey,
			Processor:    processor,
			MaxBodyBytes: cfg.MaxBodyBytes,
			Development:  cfg.IsDevelopment(),
			DebugInfo:    cfg.DebugInfo,
			Observer:     requestObserver,
			Logger:       logger.WithComponent("vision"),
		}),
		Health: &server.HealthHandler{
			Backend:          cfg.VisionBackend,
			APIKeyConfigured: cfg.HasAPIKey(),
		},
		Logger: logger.WithComponent("http"),
	}
	if m != nil {
		serverCfg.Metrics = m.Handler()
	}

	return server.New(serverCfg), closeFn, nil
}
