package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/MrWong99/elocute/internal/config"
	"github.com/MrWong99/elocute/internal/health"
	"github.com/MrWong99/elocute/internal/observe"
	"github.com/MrWong99/elocute/pkg/assess"
	"github.com/MrWong99/elocute/pkg/audio"
	"github.com/MrWong99/elocute/pkg/pronunciation"
	"github.com/MrWong99/elocute/pkg/provider/stt"
	"github.com/MrWong99/elocute/pkg/store/postgres"
	"github.com/MrWong99/elocute/pkg/store/sqlite"
)

// pipeline pairs an engine with the tracker built from the same tunables.
// It is replaced as a unit when the analysis settings are reloaded.
type pipeline struct {
	engine  *pronunciation.Engine
	tracker *pronunciation.Tracker
}

// services is everything the subcommands need, built from one config.
type services struct {
	store     pronunciation.Store
	storeName string
	metrics   *observe.Metrics

	transcriber *collaborator[stt.Provider]
	assessor    *collaborator[assess.Assessor]

	current atomic.Pointer[pipeline]
	checks  []health.Checker
	closers []io.Closer
}

// newServices opens the store and, unless storeOnly is set, builds the
// collaborators and the analysis pipeline. The read-only progress and
// insights commands need no collaborators.
func newServices(ctx context.Context, cfg *config.Config, reg *config.Registry, m *observe.Metrics, storeOnly bool) (*services, error) {
	s := &services{metrics: m, storeName: string(cfg.Storage.Driver)}

	store, check, closer, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	s.store = store
	s.checks = append(s.checks, check)
	if closer != nil {
		s.closers = append(s.closers, closer)
	}

	if storeOnly {
		s.current.Store(&pipeline{tracker: pronunciation.NewTracker(store, cfg.Analysis.Tunables())})
		return s, nil
	}

	s.transcriber, err = buildTranscriber(cfg, reg, m)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.closers = append(s.closers, s.transcriber.closers...)
	s.checks = append(s.checks, health.BreakerCheck("transcriber", s.transcriber.breakers...))

	s.assessor, err = buildAssessor(cfg, reg, m)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.checks = append(s.checks, health.BreakerCheck("assessor", s.assessor.breakers...))

	if err := s.applyAnalysis(cfg.Analysis); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// applyAnalysis builds a new pipeline from a and swaps it in. Analyses
// already running finish on the previous one.
func (s *services) applyAnalysis(a config.AnalysisConfig) error {
	dc, err := a.DecoderConfig()
	if err != nil {
		return err
	}
	eng, err := pronunciation.NewEngine(pronunciation.Config{
		Decoder:         audio.NewDecoder(dc),
		Features:        a.FeatureParams(),
		Tunables:        a.Tunables(),
		Transcriber:     s.transcriber.provider,
		TranscriberName: s.transcriber.name,
		Language:        a.Language,
		HintTarget:      a.HintTarget,
		Assessor:        s.assessor.provider,
		AssessorName:    s.assessor.name,
		Metrics:         s.metrics,
	})
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	s.current.Store(&pipeline{
		engine:  eng,
		tracker: pronunciation.NewTracker(s.store, eng.Tunables()),
	})
	return nil
}

func (s *services) engine() *pronunciation.Engine   { return s.current.Load().engine }
func (s *services) tracker() *pronunciation.Tracker { return s.current.Load().tracker }

// analyzeAndRecord runs one analysis and folds it into the user's progress.
// The analysis is returned even when recording fails.
func (s *services) analyzeAndRecord(ctx context.Context, req pronunciation.Request) (*pronunciation.Analysis, *pronunciation.Progress, error) {
	p := s.current.Load()
	a, err := p.engine.Analyze(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	prog, err := p.tracker.Record(ctx, a)
	if s.metrics != nil {
		s.metrics.RecordCollaborator(ctx, observe.KindStore, s.storeName, err)
	}
	if err != nil {
		return a, nil, fmt.Errorf("record progress: %w", err)
	}
	return a, prog, nil
}

// Close releases the store and any native collaborators.
func (s *services) Close() error {
	err := closeAll(s.closers)
	if err != nil {
		slog.Warn("close services", "err", err)
	}
	return err
}

// closerFunc adapts a func to io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// openStore opens the configured backend and returns it with its readiness
// check and closer. The memory store has no closer.
func openStore(ctx context.Context, sc config.StorageConfig) (pronunciation.Store, health.Checker, io.Closer, error) {
	switch sc.Driver {
	case config.StorageMemory, "":
		ms := pronunciation.NewMemStore()
		slog.Warn("using in-memory store; progress is lost on exit")
		return ms, health.PingCheck("store", ms), nil, nil
	case config.StorageSQLite:
		st, err := sqlite.Open(ctx, sc.DSN)
		if err != nil {
			return nil, health.Checker{}, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		slog.Info("store opened", "driver", "sqlite", "path", sc.DSN)
		return st, health.PingCheck("store", st), st, nil
	case config.StoragePostgres:
		st, err := postgres.New(ctx, sc.DSN)
		if err != nil {
			return nil, health.Checker{}, nil, fmt.Errorf("open postgres store: %w", err)
		}
		slog.Info("store opened", "driver", "postgres")
		return st, health.PingCheck("store", st), closerFunc(func() error { st.Close(); return nil }), nil
	default:
		return nil, health.Checker{}, nil, errors.New("unknown storage driver " + string(sc.Driver))
	}
}
