package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gekko3d/morphfield/morphrt/rt/shape"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "morph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 50000, cfg.Particles.Count)
	assert.Equal(t, 224, cfg.Derived.AtlasSide)
	assert.Equal(t, Range{Min: 0.1, Max: 6.0}, cfg.Particles.Lifetime)
	assert.Equal(t, "repel", cfg.Pointer.Mode)
	assert.Equal(t, ForceConfig{Strength: 5, Radius: 1.5}, cfg.Force("tornado"))
	assert.Equal(t, []shape.ID{shape.Box}, cfg.InitialShapes())
	assert.Equal(t, shape.Builtin, cfg.CycleShapes())
	assert.Equal(t, shape.DefaultTessellation(), cfg.Tessellation())

	box := cfg.Derived.Palette["Box"]
	assert.Equal(t, mgl32.Vec3{1, float32(0x44) / 255, float32(0x44) / 255}, box.Start)
	assert.InDelta(t, 0.1, box.Emissive, 1e-6)
	assert.Len(t, cfg.Derived.Palette, 4)

	cam := cfg.CameraState()
	assert.Equal(t, mgl32.Vec3{0, 0, 10}, cam.Position)
	assert.Equal(t, float32(50), cam.FovY)
}

func TestOverlayKeepsUnsetKeys(t *testing.T) {
	path := writeFile(t, `
particles:
  count: 4
pointer:
  mode: swirl
  modes:
    swirl: {strength: 2, radius: 0.5}
palette:
  Box: {start: "#000000", end: "#ffffff", emissive: 1}
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Particles.Count)
	assert.Equal(t, 2, cfg.Derived.AtlasSide)
	assert.Equal(t, 3.0, cfg.Particles.SpawnExtent)
	assert.Equal(t, ForceConfig{Strength: 2, Radius: 0.5}, cfg.Force("Swirl"))
	assert.Equal(t, ForceConfig{Strength: 5, Radius: 1.5}, cfg.Force("repel"))
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, cfg.Derived.Palette["Box"].End)
	assert.Len(t, cfg.Derived.Palette, 4, "palette entries merge per key")
}

func TestValidateCollectsErrors(t *testing.T) {
	path := writeFile(t, `
particles:
  count: 0
  lifetime: {min: 3, max: 1}
pointer:
  mode: vortex
device:
  backend: vulkan
palette:
  Box: {start: "#ff", end: "#ffffff", emissive: 0.1}
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
	msg := err.Error()
	for _, want := range []string{"particles.count", "particles.lifetime", "pointer.mode", "device.backend", "palette.Box.start"} {
		assert.Contains(t, msg, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalid)
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Particles.Count = 1234
	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, cfg.WriteYAML(path))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1234, back.Particles.Count)
	assert.Equal(t, cfg.Palette, back.Palette)
}

func TestParseHexColor(t *testing.T) {
	c, err := ParseHexColor("#00aaff")
	require.NoError(t, err)
	assert.Equal(t, mgl32.Vec3{0, float32(0xaa) / 255, 1}, c)

	c, err = ParseHexColor("ff0000")
	require.NoError(t, err)
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, c)

	_, err = ParseHexColor("#zzzzzz")
	assert.Error(t, err)
	_, err = ParseHexColor("")
	assert.Error(t, err)
}
