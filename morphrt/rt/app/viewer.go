// Package app hosts the particle simulation in a GLFW window. Compute and
// sprite rendering share one WebGPU device, so the particle buffers never
// leave the GPU.
package app

import (
	"fmt"

	"github.com/gekko3d/morphfield/morphrt/rt/core"
	"github.com/gekko3d/morphfield/morphrt/rt/gpu"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

type Viewer struct {
	Window   *glfw.Window
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	Surface  *wgpu.Surface
	Config   *wgpu.SurfaceConfiguration

	// Sim is the compute backend to hand to the simulation.
	Sim     *gpu.Device
	Sprites *gpu.SpritePass

	Camera     *core.CameraState
	ClearColor wgpu.Color
	Profiler   *Profiler

	log core.Logger

	LastRenderTime float64
	FrameCount     int
	FPS            float64
	FPSTime        float64
}

func NewViewer(window *glfw.Window, camera *core.CameraState, logger core.Logger) *Viewer {
	return &Viewer{
		Window:     window,
		Camera:     camera,
		ClearColor: wgpu.Color{R: 0, G: 0, B: 0, A: 1},
		Profiler:   NewProfiler(),
		log:        core.OrNop(logger),
	}
}

func (v *Viewer) Init() error {
	v.Instance = wgpu.CreateInstance(nil)
	v.Surface = v.Instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(v.Window))

	adapter, err := v.Instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: v.Surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return fmt.Errorf("request adapter: %w", err)
	}
	v.Adapter = adapter

	v.Device, err = adapter.RequestDevice(nil)
	if err != nil {
		return fmt.Errorf("request device: %w", err)
	}
	v.Queue = v.Device.GetQueue()

	width, height := v.Window.GetFramebufferSize()
	caps := v.Surface.GetCapabilities(adapter)
	v.Config = &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	v.Surface.Configure(adapter, v.Device, v.Config)

	v.Sim = gpu.NewFromDevice(adapter, v.Device, v.log)
	v.log.Infof("viewer: %dx%d, surface format %v", width, height, v.Config.Format)
	return nil
}

func (v *Viewer) Resize(w, h int) {
	if w <= 0 || h <= 0 {
		return
	}
	v.Config.Width = uint32(w)
	v.Config.Height = uint32(h)
	v.Surface.Configure(v.Adapter, v.Device, v.Config)
}

// Render draws the particles as they are after the last submitted kernel.
// Nothing is drawn until the simulation has allocated its buffers.
func (v *Viewer) Render() error {
	if v.Sprites == nil && v.Sim.Count() > 0 {
		sprites, err := gpu.NewSpritePass(v.Sim, v.Config.Format)
		if err != nil {
			return err
		}
		v.Sprites = sprites
	}

	v.Profiler.BeginScope("render")
	defer v.Profiler.EndScope("render")

	w, h := int(v.Config.Width), int(v.Config.Height)
	if v.Sprites != nil {
		if err := v.Sprites.UpdateCamera(v.Camera, w, h); err != nil {
			return err
		}
	}

	nextTexture, err := v.Surface.GetCurrentTexture()
	if err != nil {
		return fmt.Errorf("get current texture: %w", err)
	}
	defer nextTexture.Release()

	view, err := nextTexture.CreateView(nil)
	if err != nil {
		return fmt.Errorf("create view: %w", err)
	}
	defer view.Release()

	encoder, err := v.Device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: v.ClearColor,
		}},
	})
	if v.Sprites != nil {
		v.Sprites.Draw(pass)
	}
	if err := pass.End(); err != nil {
		return fmt.Errorf("sprite pass: %w", err)
	}

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("finish encoder: %w", err)
	}
	defer cmd.Release()
	v.Queue.Submit(cmd)
	v.Surface.Present()

	v.updateFPS()
	v.Profiler.SetCount("particles", v.Sim.Count())
	return nil
}

func (v *Viewer) updateFPS() {
	now := glfw.GetTime()
	if v.LastRenderTime > 0 {
		v.FrameCount++
		v.FPSTime += now - v.LastRenderTime
		if v.FPSTime >= 1.0 {
			v.FPS = float64(v.FrameCount) / v.FPSTime
			v.FrameCount = 0
			v.FPSTime = 0
			v.Window.SetTitle("morphview | " + v.Profiler.Title(v.FPS))
		}
	}
	v.LastRenderTime = now
}

// Release frees the sprite pass, the surface and the device. The
// simulation must be closed first since it borrows the device.
func (v *Viewer) Release() {
	if v.Sprites != nil {
		v.Sprites.Release()
		v.Sprites = nil
	}
	if v.Surface != nil {
		v.Surface.Release()
		v.Surface = nil
	}
	if v.Device != nil {
		v.Device.Release()
		v.Device = nil
	}
	if v.Adapter != nil {
		v.Adapter.Release()
		v.Adapter = nil
	}
	if v.Instance != nil {
		v.Instance.Release()
		v.Instance = nil
	}
}
