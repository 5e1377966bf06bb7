package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/metalsense/internal/standards"
)

func TestRunStandards_YAMLRoundTrip(t *testing.T) {
	useTestConfig(t)

	var buf bytes.Buffer
	require.NoError(t, runStandards(&buf, "", false, "yaml"))
	assert.Contains(t, buf.String(), standards.Version)

	// The printed tables load back as a valid registry.
	path := filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	var check bytes.Buffer
	require.NoError(t, runStandards(&check, path, true, ""))
	assert.Contains(t, check.String(), path+": ok")
	assert.Contains(t, check.String(), "10 metals")
}

func TestRunStandards_JSON(t *testing.T) {
	useTestConfig(t)

	var buf bytes.Buffer
	require.NoError(t, runStandards(&buf, "", false, "json"))

	var tables standards.Tables
	require.NoError(t, json.Unmarshal(buf.Bytes(), &tables))
	assert.Equal(t, standards.Version, tables.Version)
	assert.Len(t, tables.Standards, 10)
}

func TestRunStandards_CheckBuiltin(t *testing.T) {
	useTestConfig(t)

	var buf bytes.Buffer
	require.NoError(t, runStandards(&buf, "", true, ""))
	assert.Contains(t, buf.String(), "built-in: ok")
}

func TestRunStandards_InvalidFile(t *testing.T) {
	useTestConfig(t)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: broken\nstandards:\n  lead:\n    permissible: 0\n"), 0o644))

	var buf bytes.Buffer
	assert.Error(t, runStandards(&buf, path, true, ""))
}
