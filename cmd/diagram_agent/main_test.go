package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/diagram-weaver/internal/types"
)

func TestCommandsAreRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"run", "validate", "analyze", "solutions"} {
		assert.True(t, names[want], "command %s should be registered", want)
	}
}

func TestLoadRunConfigAppliesDefaults(t *testing.T) {
	runConfigPath = ""
	t.Cleanup(func() { runConfigPath = "" })

	cfg, err := loadRunConfig(runCommand)
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.Provider)
	assert.NotEmpty(t, cfg.Model)
	assert.NotEmpty(t, cfg.FixerModels)
	assert.Equal(t, 20, cfg.MaxDebugAttempts)
}

func TestLoadRunConfigReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"model": "from-file", "workers": 2}`), 0644))
	runConfigPath = path
	t.Cleanup(func() { runConfigPath = "" })

	cfg, err := loadRunConfig(runCommand)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Model)
	assert.Equal(t, 2, cfg.Workers)
}

func TestAnalyzeCmdCleanScene(t *testing.T) {
	sceneGraph := types.Scene{Elements: []types.SceneElement{
		{ID: "R1", Type: "Resistor", Kind: types.KindComponent,
			Box: &types.BoundingBox{XMin: 0, YMin: 0, XMax: 2, YMax: 2}},
	}}
	data, err := json.Marshal(sceneGraph)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "scene.json")
	require.NoError(t, os.WriteFile(path, data, 0644))

	assert.NoError(t, analyzeCmd(analyzeCommand, []string{path}))
}

func TestAnalyzeCmdMissingFile(t *testing.T) {
	err := analyzeCmd(analyzeCommand, []string{filepath.Join(t.TempDir(), "missing.json")})
	assert.Error(t, err)
}
