package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voicelink/mic-bridge/internal/bridge"
	"github.com/voicelink/mic-bridge/internal/capture"
	"github.com/voicelink/mic-bridge/internal/config"
	"github.com/voicelink/mic-bridge/internal/observability"
	"github.com/voicelink/mic-bridge/internal/resilience"
	"github.com/voicelink/mic-bridge/internal/transport"
	"github.com/voicelink/mic-bridge/internal/turn"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		observability.InitLogger("info", false)
		observability.GetLogger().Fatal().Err(err).Msg("Failed to load configuration")
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = uuid.New().String()
	}
	logger = logger.With().Str("client_id", clientID).Logger()
	logger.Info().
		Str("server_url", cfg.ServerURL).
		Int("sample_rate", cfg.SampleRate).
		Int("chunk_duration_ms", cfg.ChunkDurationMs).
		Msg("Starting mic bridge")

	// Capture
	input, err := capture.NewPortAudioInput()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize audio subsystem")
	}
	captureSvc := capture.NewService(capture.Config{
		EnableInput:      cfg.EnableInput,
		SampleRate:       cfg.SampleRate,
		ChunkDuration:    cfg.ChunkDuration(),
		VADThreshold:     cfg.VADThreshold,
		EchoCancellation: cfg.EchoCancellation,
		NoiseSuppression: cfg.NoiseSuppression,
		AutoGainControl:  cfg.AutoGainControl,
		DeviceID:         cfg.AudioDeviceID,
	}, input, logger)

	// Transport
	reconnectCfg := &resilience.ReconnectConfig{
		MaxAttempts: cfg.ReconnectMaxAttempts,
		Backoff:     cfg.ReconnectBackoff(),
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}
	client := transport.NewClient(cfg.ServerURL, reconnectCfg, logger)

	// Turn tracking from server control events
	tracker := turn.NewTracker(clientID, logger)
	client.OnMessage(tracker.HandleMessage)

	// Bridge
	audioBridge := bridge.NewBridge(captureSvc, bridge.Config{
		RespectTurnState:  cfg.RespectTurnState,
		StopOnSendFailure: cfg.StopOnSendFailure,
	}, logger)
	audioBridge.SetTurnGate(tracker)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Reconnect on drop: the read loop reports disconnects, a fresh
	// Connect re-dials with backoff. Close cancels rootCtx first, so a
	// shutdown-time drop does not re-dial.
	client.OnStateChange(func(connected bool) {
		if connected {
			return
		}
		go func() {
			if rootCtx.Err() != nil {
				return
			}
			logger.Warn().Msg("Transport dropped, reconnecting")
			if err := client.Connect(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("Reconnect failed")
			}
		}()
	})

	// HTTP server: health, readiness, metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"transport": func(ctx context.Context) (bool, error) {
			return client.IsConnected(), nil
		},
		"capture": func(ctx context.Context) (bool, error) {
			status := captureSvc.Status()
			if status.State == capture.StateError || status.State == capture.StatePermissionDenied {
				return false, errors.New(status.Error)
			}
			return true, nil
		},
	}))
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	if err := client.Connect(rootCtx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to audio server")
	}
	audioBridge.SetClient(client)

	if cfg.EnableInput {
		if err := captureSvc.StartRecording(rootCtx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start recording")
		}
		if err := audioBridge.StartStreaming(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start streaming")
		}
	} else {
		logger.Info().Msg("Audio input disabled, running control channel only")
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	rootCancel()

	audioBridge.StopStreaming()
	captureSvc.Destroy()
	if err := client.Close(); err != nil {
		logger.Warn().Err(err).Msg("Error closing transport")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server shutdown error")
	}

	status := audioBridge.Status()
	logger.Info().
		Uint64("chunks_sent", status.ChunksProcessed).
		Uint64("bytes_sent", status.BytesSent).
		Msg("Mic bridge stopped")
}
