package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"residualbind/internal/cfg"
	"residualbind/internal/common"
	"residualbind/internal/metrics"
	"residualbind/internal/ml"
)

type app struct {
	settings cfg.Settings
	metrics  *metrics.MetricsWrapper
}

func main() {
	a := &app{}
	var logLevel string
	var metricsPort int

	root := &cobra.Command{
		Use:           "rbind",
		Short:         "build RNA-binding datasets and run global importance analysis",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := zerolog.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", logLevel, err)
			}
			zerolog.SetGlobalLevel(level)

			settings, err := cfg.Load()
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			if cmd.Flags().Changed("metrics-port") {
				settings.MetricsPort = metricsPort
			}
			a.settings = settings
			a.metrics = metrics.NewWrapper(metrics.New())

			if settings.MetricsPort != 0 {
				startMetricsServer(cmd.Context(), settings.MetricsPort)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", getEnvOrDefault(common.EnvLogLevel, "info"), "log level (debug, info, warn, error)")
	root.PersistentFlags().IntVar(&metricsPort, "metrics-port", 0, "serve Prometheus metrics on this port while running")

	root.AddCommand(a.datasetCmd(), a.giaCmd(), a.evaluateCmd(), a.scanCmd(), a.resultsCmd(), a.inspectCmd())

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		if a.metrics != nil {
			a.metrics.ErrorsTotal().Inc()
		}
		log.Fatal().Err(err).Msg("rbind failed")
	}
}

// startMetricsServer serves /metrics and /health until ctx is done.
func startMetricsServer(ctx context.Context, port int) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		if err := server.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to shutdown metrics server")
		}
	}()

	go func() {
		log.Info().Int("port", port).Msg("Metrics server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// predictor connects to the model server when one is configured and falls
// back to the local inference script otherwise. With both available the
// script takes over if the server fails.
func (a *app) predictor() (ml.Predictor, error) {
	s := a.settings
	if s.ModelServerURL == "" {
		return a.scriptPredictor()
	}

	log.Info().
		Str("url", s.ModelServerURL).
		Str("model", s.ModelName).
		Msg("Using remote model server")
	var p ml.Predictor = ml.NewRemotePredictor(s.ModelServerURL, s.ModelName, s.PredictTimeout)
	if _, err := os.Stat(s.ModelPath); err == nil {
		script, err := ml.NewScriptPredictor(s.ModelPath, s.ScriptPath, s.PredictTimeout)
		if err != nil {
			log.Warn().Err(err).Msg("Local inference script unavailable, running without fallback")
		} else {
			p = ml.NewFallbackPredictor(p, script)
		}
	}
	return ml.NewInstrumented(p, a.metrics), nil
}

func (a *app) scriptPredictor() (ml.Predictor, error) {
	s := a.settings
	p, err := ml.NewScriptPredictor(s.ModelPath, s.ScriptPath, s.PredictTimeout)
	if err != nil {
		return nil, err
	}
	log.Info().Str("model", s.ModelPath).Msg("Using local inference script")
	return ml.NewInstrumented(p, a.metrics), nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
