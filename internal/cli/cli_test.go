package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "ringpool", cmd.Use, "Root command should be 'ringpool'")
	assert.Equal(t, "1.0.0", cmd.Version, "Version should be 1.0.0")

	commands := cmd.Commands()
	assert.Len(t, commands, 3, "Should have 3 subcommands")

	commandNames := make(map[string]bool)
	for _, c := range commands {
		commandNames[c.Use] = true
	}

	assert.True(t, commandNames["run"], "Should have 'run' command")
	assert.True(t, commandNames["submit"], "Should have 'submit' command")
	assert.True(t, commandNames["status"], "Should have 'status' command")

	configFlag := cmd.PersistentFlags().Lookup("config")
	assert.NotNil(t, configFlag, "Should have --config flag")
	assert.Equal(t, "configs/default.yaml", configFlag.DefValue, "Default config path should be configs/default.yaml")
}

func TestBuildRunCommand(t *testing.T) {
	cmd := buildRunCommand()

	assert.NotNil(t, cmd, "buildRunCommand should return a non-nil command")
	assert.Equal(t, "run", cmd.Use, "Command should be 'run'")
	assert.Contains(t, cmd.Short, "Start", "Short description should mention 'Start'")
	assert.NotNil(t, cmd.RunE, "RunE function should be set")
}

func TestBuildSubmitCommand(t *testing.T) {
	cmd := buildSubmitCommand()

	assert.NotNil(t, cmd, "buildSubmitCommand should return a non-nil command")
	assert.Equal(t, "submit", cmd.Use, "Command should be 'submit'")

	fileFlag := cmd.Flags().Lookup("file")
	assert.NotNil(t, fileFlag, "Should have --file flag")
	assert.Equal(t, "f", fileFlag.Shorthand, "Should have -f shorthand")
	assert.NotNil(t, cmd.RunE, "RunE function should be set")
}

func TestBuildStatusCommand(t *testing.T) {
	cmd := buildStatusCommand()

	assert.NotNil(t, cmd, "buildStatusCommand should return a non-nil command")
	assert.Equal(t, "status", cmd.Use, "Command should be 'status'")
	assert.Contains(t, cmd.Short, "configuration", "Short description should mention 'configuration'")
	assert.NotNil(t, cmd.RunE, "RunE function should be set")
}

func TestSubmitTasks_InvalidFile(t *testing.T) {
	err := submitTasks("/nonexistent/tasks.json")

	assert.Error(t, err, "submitTasks should return error for nonexistent file")
	assert.Contains(t, err.Error(), "failed to read task file", "Error should mention file reading failure")
}

func TestSubmitTasks_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	taskFile := filepath.Join(tmpDir, "invalid.json")

	err := os.WriteFile(taskFile, []byte(`{"invalid json structure`), 0644)
	require.NoError(t, err, "Failed to write invalid JSON")

	err = submitTasks(taskFile)

	assert.Error(t, err, "submitTasks should return error for invalid JSON")
	assert.Contains(t, err.Error(), "failed to parse task file", "Error should mention JSON parsing failure")
}

func TestSubmitTasks_RunsBatchToCompletion(t *testing.T) {
	tmpDir := t.TempDir()

	cfgPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("pool:\n  num_threads: 2\n  max_queue_size: 16\n"), 0644))
	configFile = cfgPath
	defer func() { configFile = "configs/default.yaml" }()

	specs := []taskSpec{
		{Name: "a", SpecifyWorkerID: -1, Priority: "normal", SleepMs: 1},
		{Name: "b", SpecifyWorkerID: -1, Priority: "high", SleepMs: 1},
	}
	data, err := json.Marshal(specs)
	require.NoError(t, err)

	taskFile := filepath.Join(tmpDir, "tasks.json")
	require.NoError(t, os.WriteFile(taskFile, data, 0644))

	assert.NoError(t, submitTasks(taskFile))
}

func TestParsePriority(t *testing.T) {
	assert.Equal(t, "High", parsePriority("high").String())
	assert.Equal(t, "Low", parsePriority("LOW").String())
	assert.Equal(t, "Normal", parsePriority("").String())
	assert.Equal(t, "Normal", parsePriority("bogus").String())
}

func TestShowStatus(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("pool:\n  num_threads: 3\n"), 0644))
	configFile = cfgPath
	defer func() { configFile = "configs/default.yaml" }()

	assert.NoError(t, showStatus())
}
