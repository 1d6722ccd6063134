package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/MrWong99/elocute/internal/config"
	"github.com/MrWong99/elocute/internal/health"
	"github.com/MrWong99/elocute/internal/observe"
	"github.com/MrWong99/elocute/pkg/audio"
	"github.com/MrWong99/elocute/pkg/pronunciation"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		addr     string
		noReload bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP analysis service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := root.cfg
			if addr != "" {
				cfg.Server.ListenAddr = addr
			}
			return serve(cmd.Context(), root, cfg, !noReload)
		},
	}
	cmd.Flags().StringVar(&addr, "listen", "", "override server.listen_addr")
	cmd.Flags().BoolVar(&noReload, "no-reload", false, "do not watch the config file for changes")
	return cmd
}

func serve(ctx context.Context, root *rootOptions, cfg *config.Config, reload bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Registerer:     promReg,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	svc, err := newServices(ctx, cfg, reg, metrics, false)
	if err != nil {
		return err
	}
	defer svc.Close()

	if reload && root.configPath != "" {
		w, err := config.NewWatcher(root.configPath, func(old, new *config.Config) {
			applyReload(svc, root.level, old, new)
		})
		if err != nil {
			return err
		}
		go w.Run(ctx)
	}

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           newServer(svc, cfg, metrics, promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("elocute listening", "addr", srv.Addr, "tls", cfg.Server.TLS != nil, "storage", cfg.Storage.Driver)
		if tls := cfg.Server.TLS; tls != nil {
			errCh <- srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutdown signal received, stopping")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	slog.Info("goodbye")
	return nil
}

// applyReload applies the hot-reloadable parts of a config change and logs
// the rest.
func applyReload(svc *services, level *slog.LevelVar, old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged {
		level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.AnalysisChanged {
		if err := svc.applyAnalysis(new.Analysis); err != nil {
			slog.Error("analysis settings not applied", "err", err)
		} else {
			slog.Info("analysis settings reloaded")
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config sections changed that need a restart", "sections", d.RestartRequired)
	}
}

// server is the HTTP host over services.
type server struct {
	svc       *services
	maxUpload int64
}

// newServer returns the routed, instrumented handler. metricsHandler is
// mounted at the configured metrics path.
func newServer(svc *services, cfg *config.Config, m *observe.Metrics, metricsHandler http.Handler) http.Handler {
	s := &server{svc: svc, maxUpload: cfg.Server.MaxUploadBytes}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /v1/progress", s.handleProgress)
	mux.HandleFunc("GET /v1/insights", s.handleInsights)
	health.New(svc.checks...).Register(mux)
	if metricsHandler != nil {
		mux.Handle("GET "+cfg.Telemetry.MetricsPath, metricsHandler)
	}
	return observe.Middleware(m)(mux)
}

type errorBody struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = writeJSON(w, v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorBody{Error: msg})
}

// handleAnalyze accepts multipart/form-data with the fields audio (file),
// word and user.
func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.maxUpload {
		respondError(w, http.StatusRequestEntityTooLarge, "recording exceeds upload limit")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondError(w, http.StatusRequestEntityTooLarge, "recording exceeds upload limit")
			return
		}
		respondError(w, http.StatusBadRequest, "expected multipart form: "+err.Error())
		return
	}
	word := strings.TrimSpace(r.FormValue("word"))
	user := strings.TrimSpace(r.FormValue("user"))
	if word == "" || user == "" {
		respondError(w, http.StatusBadRequest, "word and user are required")
		return
	}
	f, _, err := r.FormFile("audio")
	if err != nil {
		respondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		respondError(w, http.StatusBadRequest, "read audio: "+err.Error())
		return
	}

	ctx := r.Context()
	a, prog, err := s.svc.analyzeAndRecord(ctx, pronunciation.Request{UserID: user, Word: word, Audio: data})
	switch {
	case a == nil && errors.Is(err, audio.ErrDecode):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case a == nil && ctx.Err() != nil:
		// The client is gone; nobody reads the body.
		return
	case a == nil:
		observe.Logger(ctx).Error("analysis failed", "err", err)
		respondError(w, http.StatusInternalServerError, "analysis failed")
		return
	case err != nil:
		observe.Logger(ctx).Warn("analysis not recorded", "err", err)
	}
	respondJSON(w, http.StatusOK, analyzeResult{Analysis: a, Progress: prog})
}

func (s *server) handleProgress(w http.ResponseWriter, r *http.Request) {
	user, word := r.URL.Query().Get("user"), r.URL.Query().Get("word")
	if user == "" || word == "" {
		respondError(w, http.StatusBadRequest, "user and word query parameters are required")
		return
	}
	p, err := s.svc.tracker().Progress(r.Context(), user, word)
	if errors.Is(err, pronunciation.ErrNotFound) {
		respondError(w, http.StatusNotFound, "no attempts recorded")
		return
	}
	if err != nil {
		observe.Logger(r.Context()).Error("load progress", "err", err)
		respondError(w, http.StatusInternalServerError, "load progress failed")
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *server) handleInsights(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		respondError(w, http.StatusBadRequest, "user query parameter is required")
		return
	}
	now, err := sessionTime(r.URL.Query().Get("date"), time.Now())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	in, err := s.svc.tracker().Insights(r.Context(), user, now)
	if err != nil {
		observe.Logger(r.Context()).Error("build insights", "err", err)
		respondError(w, http.StatusInternalServerError, "build insights failed")
		return
	}
	respondJSON(w, http.StatusOK, in)
}
