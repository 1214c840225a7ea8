package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/soaringjerry/Sigmo/internal/config"
	"github.com/soaringjerry/Sigmo/internal/questionnaire"
)

func memoryConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Storage.Driver = config.DriverMemory
	cfg.Server.StaticDir = ""
	return cfg
}

func TestParseScores(t *testing.T) {
	s, err := parseScores("odor=2, dust=5")
	require.NoError(t, err)
	assert.Equal(t, 2, s.Odor)
	assert.Equal(t, 5, s.Dust)
	assert.Equal(t, questionnaire.NeutralScores().Clumping, s.Clumping)

	for _, bad := range []string{"odor", "smell=2", "odor=x", "odor=9"} {
		_, err := parseScores(bad)
		assert.Error(t, err, bad)
	}
}

func TestPreviewRequestRejectsUnknownState(t *testing.T) {
	_, err := previewFlags{day: 2, period: 21, state: "opened"}.request()
	require.Error(t, err)
}

func TestPrintPreview(t *testing.T) {
	color.NoColor = true
	cfg := memoryConfig()
	gen, err := newGenerator(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	req, err := previewFlags{day: 4, period: 21, state: "normal", scores: "odor=1"}.request()
	require.NoError(t, err)
	out, err := gen.Generate(context.Background(), req)
	require.NoError(t, err)

	var buf bytes.Buffer
	printPreview(&buf, req, out)
	text := buf.String()
	assert.Contains(t, text, "Day 4 of 21")
	assert.Contains(t, text, "source: fallback")
	assert.Contains(t, text, "[除臭]")
}

func TestHandlerServesHealthAndAPI(t *testing.T) {
	cfg := memoryConfig()
	a, err := newApp(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	srv := httptest.NewServer(newHandler(a, cfg, zap.NewNop()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "zh", body["locale"])
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	resp2, err := http.Get(srv.URL + "/api/admin/protocols")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
	assert.Contains(t, resp2.Header.Get("Cache-Control"), "no-store")
}

func TestMigrateMemoryIsNoop(t *testing.T) {
	require.NoError(t, migrate(context.Background(), memoryConfig(), zap.NewNop()))
}

func TestMigrateSQLite(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.SQLitePath = t.TempDir() + "/sigmo.db"
	require.NoError(t, migrate(context.Background(), cfg, zap.NewNop()))
	// applying twice must be harmless
	require.NoError(t, migrate(context.Background(), cfg, zap.NewNop()))
}

func TestRootCommandWiresSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "migrate", "preview", "admin"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}
