package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vektor/internal/core"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, core.DefaultParameters(), cfg.Pipeline)
	assert.Equal(t, 20, cfg.Render.BatchSize)
	assert.Equal(t, 16*time.Millisecond, cfg.Render.IdleFallback.Duration)
}

func TestWriteThenDecode(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.KernelSize = 3
	cfg.Pipeline.Background = core.BackgroundWhite
	cfg.Render.IdleFallback = Duration{40 * time.Millisecond}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, cfg))
	assert.Contains(t, buf.String(), `idle_fallback = "40ms"`)

	got, err := Decode(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vektor.toml")
	doc := "[pipeline]\niterations = 4\ntake_percentile = 0.5\n\n[log]\nlevel = \"debug\"\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Pipeline.Iterations)
	assert.Equal(t, 0.5, cfg.Pipeline.TakePercentile)
	assert.Equal(t, 1, cfg.Pipeline.KernelSize)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 20, cfg.Render.BatchSize)
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown key", "[pipeline]\nradius = 3\n", "unknown keys: pipeline.radius"},
		{"bad parameter", "[pipeline]\nkernel_size = 0\n", "kernel_size"},
		{"bad batch", "[render]\nbatch_size = 0\n", "render.batch_size"},
		{"bad duration", "[render]\nidle_fallback = \"soon\"\n", "invalid duration"},
		{"bad level", "[log]\nlevel = \"loud\"\n", "log.level"},
		{"bad max side", "[input]\nmax_side = -1\n", "input.max_side"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestInvalidParametersKeepTheirType(t *testing.T) {
	_, err := Decode(strings.NewReader("[pipeline]\nplot_scale = 0.0\n"))
	assert.ErrorIs(t, err, core.ErrInvalidParameters)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
