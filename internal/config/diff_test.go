package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/elocute/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	d := config.Diff(cfg, cfg)
	if d.LogLevelChanged || d.AnalysisChanged || len(d.RestartRequired) != 0 {
		t.Errorf("expected empty diff, got %+v", d)
	}
	if d.HotReloadable() {
		t.Error("HotReloadable() = true for identical configs")
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("diff = %+v, want log level change to debug", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level change should not require restart, got %v", d.RestartRequired)
	}
	if !d.HotReloadable() {
		t.Error("HotReloadable() = false")
	}
}

func TestDiff_AnalysisChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Analysis.MasteredAt = 0.95

	d := config.Diff(old, new)
	if !d.AnalysisChanged {
		t.Error("expected AnalysisChanged=true")
	}
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false")
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.ListenAddr = ":9999"
	new.Providers.Transcriber.Name = "whisper"
	new.Storage.Driver = config.StorageSQLite
	new.Storage.DSN = "x.db"

	d := config.Diff(old, new)
	for _, section := range []string{"server", "providers", "storage"} {
		if !slices.Contains(d.RestartRequired, section) {
			t.Errorf("RestartRequired = %v, missing %q", d.RestartRequired, section)
		}
	}
	if slices.Contains(d.RestartRequired, "telemetry") {
		t.Errorf("telemetry unchanged but listed: %v", d.RestartRequired)
	}
	if d.HotReloadable() {
		t.Error("HotReloadable() = true for restart-only changes")
	}
}
