package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/christian-lee/translate-mediator/internal/config"
	"github.com/christian-lee/translate-mediator/internal/session"
	"github.com/christian-lee/translate-mediator/internal/sink"
	"github.com/christian-lee/translate-mediator/internal/stt"
	"github.com/christian-lee/translate-mediator/internal/translate"
)

// Exit codes per spec §6.5.
const (
	exitOK            = 0
	exitMisconfigured = 1
	exitSessionFatal  = 2
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if len(os.Args) < 2 {
		fmt.Println("Usage:")
		fmt.Println("  translate-mediator run [config]     Start one session, reading PCM audio from stdin")
		os.Exit(exitMisconfigured)
	}

	switch os.Args[1] {
	case "run":
		cfgPath := "config.yaml"
		if len(os.Args) > 2 {
			cfgPath = os.Args[2]
		}
		os.Exit(run(cfgPath))
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		os.Exit(exitMisconfigured)
	}
}

// run wires one session's worth of collaborators and blocks until it ends.
// Multi-tenant isolation beyond one session per process is out of scope
// (spec.md non-goals); a deployment that wants concurrent sessions runs
// multiple instances of this binary.
func run(cfgPath string) int {
	hotCfg, err := config.NewHotConfig(cfgPath)
	if err != nil {
		slog.Error("load config failed", "err", err)
		return exitMisconfigured
	}
	cfg := hotCfg.Get()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down...")
		cancel()
	}()

	translator, err := translate.NewGeminiTranslator(ctx, cfg.Translate.APIKey, cfg.Translate.Model, cfg.Translate.FallbackModel)
	if err != nil {
		slog.Error("init translator failed", "err", err)
		return exitMisconfigured
	}
	defer translator.Close()

	sttSource, err := stt.NewGoogleSource(ctx, cfg.Runtime.SourceLang, cfg.STT.AltLangs)
	if err != nil {
		slog.Error("init stt source failed", "err", err)
		return exitMisconfigured
	}
	defer sttSource.Close()

	startMetricsServer(cfg.Metrics.ListenAddr)

	// Exactly one viewer connects over the transport listen address; the
	// coordinator starts once that connection is established, since there
	// is nowhere to deliver messages before then.
	transportErr := make(chan error, 1)
	transportReady := make(chan *sink.WSTransport, 1)
	// sessionSlot is filled by the first accepted viewer and never drained,
	// so every later connection is rejected.
	sessionSlot := make(chan struct{}, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		transport, err := sink.Upgrade(w, r)
		if err != nil {
			slog.Error("websocket upgrade failed", "err", err)
			return
		}
		select {
		case sessionSlot <- struct{}{}:
			transportReady <- transport
		default:
			slog.Warn("viewer connection rejected, session already active")
			_ = transport.Close()
		}
	})

	srv := &http.Server{Addr: cfg.Transport.ListenAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case transportErr <- fmt.Errorf("transport server: %w", err):
			default:
			}
		}
	}()
	defer srv.Close()

	slog.Info("translate-mediator waiting for viewer", "transport", cfg.Transport.ListenAddr, "metrics", cfg.Metrics.ListenAddr)

	var transport *sink.WSTransport
	select {
	case transport = <-transportReady:
	case err := <-transportErr:
		slog.Error("transport server failed before any session connected", "err", err)
		return exitSessionFatal
	case <-ctx.Done():
		return exitOK
	}

	coord := session.New(cfg.Session.IDPrefix, cfg.Runtime, translator, sttSource, os.Stdin, transport)

	hotCfg.OnRuntimeReload(func(d config.RuntimeDefaults) {
		coord.UpdateConfig(config.Patch{
			SourceLang:             &d.SourceLang,
			TargetLang:             &d.TargetLang,
			DebounceMS:             &d.DebounceMS,
			BatchSize:              &d.BatchSize,
			BatchTimeoutMS:         &d.BatchTimeoutMS,
			SyncDisplayMode:        &d.SyncDisplayMode,
			InterimDebounceEnabled: &d.InterimDebounceEnabled,
		})
	})
	hotCfg.Watch()

	if err := coord.Run(ctx); err != nil {
		if errors.Is(err, session.ErrOverflow) {
			slog.Error("session ended fatally", "session", coord.ID, "err", err)
			return exitSessionFatal
		}
		slog.Error("session ended with error", "session", coord.ID, "err", err)
		return exitSessionFatal
	}

	return exitOK
}

func startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics server error", "err", err)
		}
	}()
}
