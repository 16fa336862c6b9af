package raster

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/gekko3d/morphfield/morphrt/rt/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redSprite(pos [3]float32, scale float32) core.ParticleInstance {
	return core.ParticleInstance{
		Pos:   pos,
		Scale: scale,
		Color: [4]float32{1, 0, 0, 1},
	}
}

func TestRenderSoftDiscAtCenter(t *testing.T) {
	r := New(64, 64, 1)
	cam := core.NewCameraState()
	cam.Aspect = 1
	img, st := r.Render(cam, []core.ParticleInstance{redSprite([3]float32{0, 0, 0}, 0.5)})

	assert.Equal(t, 1, st.Drawn)
	assert.Greater(t, st.Covered, 0)
	c := img.RGBAAt(32, 32)
	assert.Equal(t, uint8(255), c.R)
	assert.Equal(t, uint8(0), c.G)
	// corners of the quad lie outside the disc
	assert.Equal(t, uint8(0), img.RGBAAt(0, 0).R)
}

func TestRenderCullsInvisible(t *testing.T) {
	r := New(32, 32, 2)
	cam := core.NewCameraState()
	behind := redSprite([3]float32{0, 0, 20}, 0.5)
	dead := redSprite([3]float32{0, 0, 0}, 0)
	transparent := redSprite([3]float32{0, 0, 0}, 0.5)
	transparent.Color[3] = 0

	img, st := r.Render(cam, []core.ParticleInstance{behind, dead, transparent})
	assert.Equal(t, 0, st.Drawn)
	assert.Equal(t, 3, st.Culled)
	assert.Equal(t, 32, img.Bounds().Dx(), "supersampled frame resolves to output size")
	assert.Equal(t, uint8(0), img.RGBAAt(16, 16).R)
}

func TestRenderBlendsOpacity(t *testing.T) {
	r := New(16, 16, 1)
	r.Background = [3]float32{0, 0, 1}
	cam := core.NewCameraState()
	cam.Aspect = 1
	half := redSprite([3]float32{0, 0, 0}, 2)
	half.Color[3] = 0.5

	img, _ := r.Render(cam, []core.ParticleInstance{half})
	c := img.RGBAAt(8, 8)
	assert.InDelta(t, 128, int(c.R), 1)
	assert.InDelta(t, 128, int(c.B), 1)
	assert.Equal(t, uint8(255), c.A)
}

func TestWritePNG(t *testing.T) {
	r := New(8, 8, 1)
	img, _ := r.Render(core.NewCameraState(), nil)
	path := filepath.Join(t.TempDir(), "frame.png")
	require.NoError(t, WritePNG(path, img))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	decoded, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())

	assert.Error(t, WritePNG(filepath.Join(t.TempDir(), "missing", "x.png"), img))
}
