package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilson-pinto/medical-agent-poc/internal/config"
	"github.com/wilson-pinto/medical-agent-poc/internal/llm"
)

func TestLoadConfigLayers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medagent.toml")
	require.NoError(t, os.WriteFile(path, []byte(
		"api_port = 9000\nlog_level = \"warn\"\nmax_steps = 12\n",
	), 0o600))
	t.Setenv("MAX_STEPS", "20")

	cfg, err := loadConfig(path, 0, "")
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.APIPort)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 20, cfg.MaxSteps)

	cfg, err = loadConfig(path, 9100, "debug")
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.APIPort)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml"), 0, "")
	assert.ErrorIs(t, err, config.ErrReadConfigFile)

	t.Setenv("STORE_BACKEND", "cassandra")
	_, err = loadConfig("", 0, "")
	assert.ErrorIs(t, err, ErrInvalidSettings)
}

func TestCollaborators(t *testing.T) {
	s := &medAgent{cfg: config.NewDefaultConfig()}
	deps, err := s.collaborators(nil)
	require.NoError(t, err)
	assert.NotNil(t, deps.Search)

	s.cfg.Services.BaseURL = "http://localhost:9"
	s.cfg.LLM.Enabled = true
	deps, err = s.collaborators(nil)
	require.NoError(t, err)
	assert.IsType(t, &llm.Reranker{}, deps.Rerank)
	assert.IsType(t, &llm.Planner{}, deps.Questions)
}
