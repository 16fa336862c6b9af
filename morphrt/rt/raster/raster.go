// Package raster splats particle sprites on the CPU. It produces the same
// soft discs as sprite.wgsl so headless runs can be inspected as PNG.
package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/chewxy/math32"
	"github.com/gekko3d/morphfield/morphrt/rt/core"
	"github.com/gekko3d/morphfield/morphrt/rt/sim"
	"github.com/go-gl/mathgl/mgl32"
	xdraw "golang.org/x/image/draw"
)

// Raster renders at Supersample times the output size and resolves with a
// Catmull-Rom downscale.
type Raster struct {
	Width       int
	Height      int
	Supersample int
	Background  mgl32.Vec3

	accum []mgl32.Vec4 // straight rgb, accumulated alpha
}

func New(width, height, supersample int) *Raster {
	return &Raster{Width: width, Height: height, Supersample: max(supersample, 1)}
}

// Stats reports what the last Render drew.
type Stats struct {
	Drawn   int
	Culled  int
	Covered int // pixels touched at supersampled resolution
}

// Render draws inst in order with source-over blending, like the GPU pass
// which has no depth test.
func (r *Raster) Render(cam *core.CameraState, inst []core.ParticleInstance) (*image.RGBA, Stats) {
	ss := max(r.Supersample, 1)
	w, h := r.Width*ss, r.Height*ss
	if len(r.accum) != w*h {
		r.accum = make([]mgl32.Vec4, w*h)
	}
	bg := r.Background.Vec4(1)
	for i := range r.accum {
		r.accum[i] = bg
	}

	vp := cam.GetViewProjection()
	right := cam.GetViewMatrix().Row(0).Vec3()
	var st Stats
	touched := make([]bool, w*h)

	for k := range inst {
		in := &inst[k]
		if in.Scale <= 0 || in.Color[3] <= 0 {
			st.Culled++
			continue
		}
		center := mgl32.Vec3(in.Pos)
		cx, cy, ok := project(vp, center, w, h)
		if !ok {
			st.Culled++
			continue
		}
		ex, ey, ok := project(vp, center.Add(right.Mul(in.Scale)), w, h)
		if !ok {
			st.Culled++
			continue
		}
		radius := math32.Hypot(ex-cx, ey-cy)
		if radius <= 0 {
			st.Culled++
			continue
		}

		x0, x1 := clampInt(int(math32.Floor(cx-radius)), 0, w), clampInt(int(math32.Ceil(cx+radius)), 0, w)
		y0, y1 := clampInt(int(math32.Floor(cy-radius)), 0, h), clampInt(int(math32.Ceil(cy+radius)), 0, h)
		if x0 >= x1 || y0 >= y1 {
			st.Culled++
			continue
		}
		st.Drawn++

		rgb := mgl32.Vec3{in.Color[0] + in.Emissive[0], in.Color[1] + in.Emissive[1], in.Color[2] + in.Emissive[2]}
		inv := 0.5 / radius
		for y := y0; y < y1; y++ {
			v := (float32(y)+0.5-cy)*inv + 0.5
			for x := x0; x < x1; x++ {
				u := (float32(x)+0.5-cx)*inv + 0.5
				a := in.Color[3] * sim.SpriteMask(u, v)
				if a <= 0 {
					continue
				}
				idx := y*w + x
				dst := r.accum[idx]
				r.accum[idx] = mgl32.Vec4{
					rgb[0]*a + dst[0]*(1-a),
					rgb[1]*a + dst[1]*(1-a),
					rgb[2]*a + dst[2]*(1-a),
					a + dst[3]*(1-a),
				}
				touched[idx] = true
			}
		}
	}
	for _, t := range touched {
		if t {
			st.Covered++
		}
	}

	full := image.NewRGBA(image.Rect(0, 0, w, h))
	for i, c := range r.accum {
		full.SetRGBA(i%w, i/w, toRGBA(c))
	}
	if ss == 1 {
		return full, st
	}
	out := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	xdraw.CatmullRom.Scale(out, out.Bounds(), full, full.Bounds(), xdraw.Src, nil)
	return out, st
}

func project(vp mgl32.Mat4, p mgl32.Vec3, w, h int) (x, y float32, ok bool) {
	clip := vp.Mul4x1(p.Vec4(1))
	if clip.W() <= 0 {
		return 0, 0, false
	}
	ndc := clip.Vec3().Mul(1 / clip.W())
	return (ndc.X()*0.5 + 0.5) * float32(w), (0.5 - ndc.Y()*0.5) * float32(h), true
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func toRGBA(c mgl32.Vec4) color.RGBA {
	q := func(v float32) uint8 { return uint8(core.Saturate(v)*255 + 0.5) }
	return color.RGBA{q(c[0]), q(c[1]), q(c[2]), q(c[3])}
}

// WritePNG encodes img to path.
func WritePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("raster: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("raster: encode %s: %w", path, err)
	}
	return f.Close()
}
