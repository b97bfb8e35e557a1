// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package rtconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	c := Default()
	assert.NoError(t, c.Validate())
}

func TestValidateRejectsBadPathBounds(t *testing.T) {
	c := Default()
	c.MinPathLength = 10
	c.MaxPathLength = 2
	assert.Error(t, c.Validate())
}

func TestValidateRejectsUnknownIntegrator(t *testing.T) {
	c := Default()
	c.Integrator = "nonsense"
	assert.Error(t, c.Validate())
}

func TestMergeYAMLOverlaysOnlyPresentFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.yaml")
	require.NoError(t, os.WriteFile(path, []byte("exposure: 1.5\nwidth: 640\n"), 0o644))

	c := Default()
	require.NoError(t, c.MergeYAML(path))

	assert.Equal(t, float32(1.5), c.Exposure)
	assert.Equal(t, 640, c.Width)
	assert.Equal(t, 1080, c.Height, "fields absent from the YAML file must keep their default value")
}
