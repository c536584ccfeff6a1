package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/artem-schander/protest-scraper-sub000/internal/app"
	"github.com/artem-schander/protest-scraper-sub000/internal/config"
	"github.com/artem-schander/protest-scraper-sub000/internal/pipeline"
)

func baseConfig() config.Config {
	return config.Config{
		Server:   config.ServerConfig{Port: 8080},
		HTTP:     config.HTTPConfig{UserAgent: "test-agent/1.0", TimeoutSeconds: 5},
		Pipeline: config.PipelineConfig{HorizonDays: 30, ParallelSources: 2, ToleranceHours: 72},
		Store:    config.StoreConfig{Provider: config.ProviderMemory},
		Archive:  config.ArchiveConfig{Provider: config.ProviderNone, Prefix: "runs"},
	}
}

func allDisabled() map[string]config.SourceConfig {
	off := false
	out := map[string]config.SourceConfig{}
	for _, id := range []string{"berlin-police", "dresden", "friedenskooperative", "demokrateam", "wien-police"} {
		out[id] = config.SourceConfig{Enabled: &off}
	}
	return out
}

func TestNewWiresMemoryBackends(t *testing.T) {
	a, err := app.New(context.Background(), baseConfig(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Runner)
	require.NotNil(t, a.Store)
	require.Len(t, a.Registry.IDs(), 5)
	require.NoError(t, a.Store.Ping(context.Background()))
}

func TestNewAppliesSourceOverrides(t *testing.T) {
	cfg := baseConfig()
	off := false
	cfg.Sources = map[string]config.SourceConfig{"dresden": {Enabled: &off}}

	a, err := app.New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()
	require.NotContains(t, a.Registry.IDs(), "dresden")

	cfg.Sources = map[string]config.SourceConfig{"typo": {}}
	_, err = app.New(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestRunWithLocalArchive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "archive")
	cfg := baseConfig()
	cfg.Sources = allDisabled()
	cfg.Archive = config.ArchiveConfig{Provider: config.ProviderLocal, BaseDir: dir, Prefix: "runs"}

	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	summary, err := a.Runner.Run(context.Background(), 14)
	require.NoError(t, err)
	require.Zero(t, summary.Total)
	require.Equal(t, 14, summary.HorizonDays)

	_, err = os.Stat(filepath.Join(dir, pipeline.ArchivePath("runs", summary.RunID)))
	require.NoError(t, err)
}

func TestRunWithMemoryArchive(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	cfg := baseConfig()
	cfg.Sources = allDisabled()
	cfg.Archive = config.ArchiveConfig{Provider: config.ProviderMemory, Prefix: "runs"}

	a, err := app.New(context.Background(), cfg, zap.New(core))
	require.NoError(t, err)
	defer a.Close()
	require.Equal(t, 1, logs.FilterMessageSnippet("archiving drafts in memory").Len())

	summary, err := a.Runner.Run(context.Background(), 7)
	require.NoError(t, err)
	require.Zero(t, summary.Total)
}

func TestNewFailsOnInvalidDSN(t *testing.T) {
	cfg := baseConfig()
	cfg.Store.Provider = config.ProviderPostgres
	cfg.DB.DSN = "postgres://user@localhost:notaport/db"

	_, err := app.New(context.Background(), cfg, nil)
	require.Error(t, err)
}
