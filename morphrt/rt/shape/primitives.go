package shape

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// boxVertices emits the six face grids of an axis-aligned box centred at the
// origin. Edge vertices are duplicated per face, as in an indexed mesh.
func boxVertices(p BoxParams) []mgl32.Vec3 {
	ws, hs, ds := max(p.WidthSegs, 1), max(p.HeightSegs, 1), max(p.DepthSegs, 1)
	total := 2 * ((ds+1)*(hs+1) + (ws+1)*(ds+1) + (ws+1)*(hs+1))
	out := make([]mgl32.Vec3, 0, total)

	// u, v, w are axis indices; udir/vdir flip the grid so every face winds outward.
	plane := func(u, v, w int, udir, vdir float32, width, height, depth float32, gridX, gridY int) {
		halfW, halfH, halfD := width/2, height/2, depth/2
		segW, segH := width/float32(gridX), height/float32(gridY)
		for iy := 0; iy <= gridY; iy++ {
			y := float32(iy)*segH - halfH
			for ix := 0; ix <= gridX; ix++ {
				x := float32(ix)*segW - halfW
				var v3 mgl32.Vec3
				v3[u] = x * udir
				v3[v] = y * vdir
				v3[w] = halfD
				out = append(out, v3)
			}
		}
	}

	const x, y, z = 0, 1, 2
	plane(z, y, x, -1, -1, p.Depth, p.Height, p.Width, ds, hs)  // +x
	plane(z, y, x, 1, -1, p.Depth, p.Height, -p.Width, ds, hs)  // -x
	plane(x, z, y, 1, 1, p.Width, p.Depth, p.Height, ws, ds)    // +y
	plane(x, z, y, 1, -1, p.Width, p.Depth, -p.Height, ws, ds)  // -y
	plane(x, y, z, 1, -1, p.Width, p.Height, p.Depth, ws, hs)   // +z
	plane(x, y, z, -1, -1, p.Width, p.Height, -p.Depth, ws, hs) // -z
	return out
}

// sphereVertices emits a UV sphere, (w+1)*(h+1) vertices from pole to pole.
func sphereVertices(p SphereParams) []mgl32.Vec3 {
	ws, hs := max(p.WidthSegments, 3), max(p.HeightSegments, 2)
	out := make([]mgl32.Vec3, 0, (ws+1)*(hs+1))
	for iy := 0; iy <= hs; iy++ {
		v := float32(iy) / float32(hs)
		theta := v * math32.Pi
		sinT, cosT := math32.Sincos(theta)
		for ix := 0; ix <= ws; ix++ {
			u := float32(ix) / float32(ws)
			phi := u * 2 * math32.Pi
			sinP, cosP := math32.Sincos(phi)
			out = append(out, mgl32.Vec3{
				-p.Radius * cosP * sinT,
				p.Radius * cosT,
				p.Radius * sinP * sinT,
			})
		}
	}
	return out
}

// torusVertices emits a ring torus in the XY plane.
func torusVertices(p TorusParams) []mgl32.Vec3 {
	rs, ts := max(p.RadialSegments, 2), max(p.TubularSegments, 3)
	out := make([]mgl32.Vec3, 0, (rs+1)*(ts+1))
	for j := 0; j <= rs; j++ {
		v := float32(j) / float32(rs) * 2 * math32.Pi
		sinV, cosV := math32.Sincos(v)
		for i := 0; i <= ts; i++ {
			u := float32(i) / float32(ts) * 2 * math32.Pi
			sinU, cosU := math32.Sincos(u)
			ring := p.Radius + p.Tube*cosV
			out = append(out, mgl32.Vec3{ring * cosU, ring * sinU, p.Tube * sinV})
		}
	}
	return out
}

// coneVertices emits the lateral surface grid of a Y-axis cone with its apex
// up, followed by the bottom cap (one centre vertex per segment, then the rim).
func coneVertices(p ConeParams) []mgl32.Vec3 {
	rs, hs := max(p.RadialSegments, 3), max(p.HeightSegments, 1)
	half := p.Height / 2
	out := make([]mgl32.Vec3, 0, (rs+1)*(hs+1)+rs+rs+1)

	for iy := 0; iy <= hs; iy++ {
		v := float32(iy) / float32(hs)
		radius := v * p.Radius
		for ix := 0; ix <= rs; ix++ {
			u := float32(ix) / float32(rs)
			sinT, cosT := math32.Sincos(u * 2 * math32.Pi)
			out = append(out, mgl32.Vec3{radius * sinT, -v*p.Height + half, radius * cosT})
		}
	}

	for ix := 1; ix <= rs; ix++ {
		out = append(out, mgl32.Vec3{0, -half, 0})
	}
	for ix := 0; ix <= rs; ix++ {
		sinT, cosT := math32.Sincos(float32(ix) / float32(rs) * 2 * math32.Pi)
		out = append(out, mgl32.Vec3{p.Radius * sinT, -half, p.Radius * cosT})
	}
	return out
}
