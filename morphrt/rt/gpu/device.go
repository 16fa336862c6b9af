package gpu

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gekko3d/morphfield/morphrt/rt/atlas"
	"github.com/gekko3d/morphfield/morphrt/rt/core"
	"github.com/gekko3d/morphfield/morphrt/rt/shaders"
	"github.com/gekko3d/morphfield/morphrt/rt/sim"

	"github.com/cogentcore/webgpu/wgpu"
)

const workgroupSize = 64

// Device runs the particle kernels from particles.wgsl. The particle arrays
// live in storage buffers for the device's lifetime and the sprite pass
// reads them in place.
type Device struct {
	log core.Logger

	Instance *wgpu.Instance // nil when the device is borrowed
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	owned    bool

	mu     sync.Mutex
	closed bool
	params sim.Params
	side   int

	ParamsBuf  *wgpu.Buffer
	SpawnBuf   *wgpu.Buffer
	OffsetBuf  *wgpu.Buffer
	AgeBuf     *wgpu.Buffer
	stagingBuf *wgpu.Buffer

	atlasTex  *wgpu.Texture
	atlasView *wgpu.TextureView

	initPipeline   *wgpu.ComputePipeline
	updatePipeline *wgpu.ComputePipeline
	initGroup      *wgpu.BindGroup
	updateGroup    *wgpu.BindGroup
}

// NewHeadless requests an adapter and device with no surface.
func NewHeadless(logger core.Logger) (*Device, error) {
	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("request device: %w", err)
	}
	d := NewFromDevice(adapter, device, logger)
	d.Instance = instance
	d.owned = true
	return d, nil
}

// NewFromDevice wraps a device owned by the caller, e.g. the viewer's.
func NewFromDevice(adapter *wgpu.Adapter, device *wgpu.Device, logger core.Logger) *Device {
	return &Device{
		log:     core.OrNop(logger),
		Adapter: adapter,
		Device:  device,
		Queue:   device.GetQueue(),
	}
}

func (d *Device) Name() string { return "webgpu" }

// Count is the allocated particle count.
func (d *Device) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.params.Count
}

func (d *Device) Allocate(p sim.Params, atlasSide int) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("webgpu device: %w", err)
	}
	if atlasSide*atlasSide < p.Count {
		return fmt.Errorf("webgpu device: atlas side %d too small for %d particles", atlasSide, p.Count)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return sim.ErrClosed
	}
	if d.SpawnBuf != nil {
		return errors.New("webgpu device: already allocated")
	}
	d.params = p
	d.side = atlasSide

	if err := d.createBuffers(); err != nil {
		d.releaseResources()
		return err
	}
	if err := d.createAtlas(); err != nil {
		d.releaseResources()
		return err
	}
	if err := d.createPipelines(); err != nil {
		d.releaseResources()
		return err
	}
	d.log.Debugf("webgpu device: allocated %d particles, atlas %dx%d", p.Count, atlasSide, atlasSide)
	return nil
}

func (d *Device) createBuffers() error {
	n := uint64(d.params.Count)
	storage := wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

	var err error
	if d.ParamsBuf, err = d.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "SimParams",
		Size:  core.SimUniformsSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	}); err != nil {
		return fmt.Errorf("create params buffer: %w", err)
	}
	if d.SpawnBuf, err = d.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "SpawnPositions",
		Size:  n * core.Vec4Stride,
		Usage: storage,
	}); err != nil {
		return fmt.Errorf("create spawn buffer: %w", err)
	}
	if d.OffsetBuf, err = d.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "OffsetPositions",
		Size:  n * core.Vec4Stride,
		Usage: storage,
	}); err != nil {
		return fmt.Errorf("create offset buffer: %w", err)
	}
	if d.AgeBuf, err = d.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Ages",
		Size:  n * 4,
		Usage: storage,
	}); err != nil {
		return fmt.Errorf("create age buffer: %w", err)
	}
	if d.stagingBuf, err = d.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "StateReadback",
		Size:  n * (2*core.Vec4Stride + 4),
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	}); err != nil {
		return fmt.Errorf("create readback buffer: %w", err)
	}
	return nil
}

func (d *Device) createAtlas() error {
	side := uint32(d.side)
	var err error
	d.atlasTex, err = d.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "MorphTargets",
		Size:          wgpu.Extent3D{Width: side, Height: side, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatRGBA32Float,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		SampleCount:   1,
	})
	if err != nil {
		return fmt.Errorf("create atlas texture: %w", err)
	}
	d.atlasView, err = d.atlasTex.CreateView(nil)
	if err != nil {
		return fmt.Errorf("create atlas view: %w", err)
	}
	return nil
}

func (d *Device) createPipelines() error {
	module, err := d.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Particles CS",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.ParticlesWGSL},
	})
	if err != nil {
		return fmt.Errorf("failed to create particle shader module: %w", err)
	}
	defer module.Release()

	d.initPipeline, err = d.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "InitParticles",
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: "init_particles",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create init pipeline: %w", err)
	}
	d.updatePipeline, err = d.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "UpdateParticles",
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: "update_particles",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create update pipeline: %w", err)
	}

	// The init entry point touches no texture, so its auto layout differs.
	d.initGroup, err = d.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: d.initPipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: d.ParamsBuf, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: d.SpawnBuf, Size: wgpu.WholeSize},
			{Binding: 2, Buffer: d.OffsetBuf, Size: wgpu.WholeSize},
			{Binding: 3, Buffer: d.AgeBuf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create init bind group: %w", err)
	}
	d.updateGroup, err = d.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: d.updatePipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: d.ParamsBuf, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: d.SpawnBuf, Size: wgpu.WholeSize},
			{Binding: 2, Buffer: d.OffsetBuf, Size: wgpu.WholeSize},
			{Binding: 3, Buffer: d.AgeBuf, Size: wgpu.WholeSize},
			{Binding: 4, TextureView: d.atlasView},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create update bind group: %w", err)
	}
	return nil
}

// dispatch encodes one kernel over all particles and submits it. Callers hold d.mu.
func (d *Device) dispatch(label string, pipeline *wgpu.ComputePipeline, group *wgpu.BindGroup, u sim.Uniforms) error {
	params := u.GPU(d.params, d.side)
	if err := d.Queue.WriteBuffer(d.ParamsBuf, 0, params.Pack()); err != nil {
		return fmt.Errorf("%s: write params: %w", label, err)
	}

	encoder, err := d.Device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, group, nil)
	workgroups := (uint32(d.params.Count) + workgroupSize - 1) / workgroupSize
	pass.DispatchWorkgroups(workgroups, 1, 1)
	pass.End()

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	d.Queue.Submit(cmd)
	return nil
}

func (d *Device) ready(label string) error {
	if d.closed {
		return sim.ErrClosed
	}
	if d.SpawnBuf == nil {
		return fmt.Errorf("webgpu device: %s before Allocate", label)
	}
	return nil
}

// Init dispatches the init kernel and blocks until the device has run it.
func (d *Device) Init() sim.Fence {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ready("init"); err != nil {
		return sim.DoneFence(err)
	}
	if err := d.dispatch("init", d.initPipeline, d.initGroup, sim.Uniforms{}); err != nil {
		return sim.DoneFence(err)
	}
	d.Device.Poll(true, nil)
	return sim.DoneFence(nil)
}

// WriteAtlas copies the committed texels into the atlas texture. Queue
// writes are ordered with submissions, so the next update sees the new
// targets and the one before it the old ones.
func (d *Device) WriteAtlas(a *atlas.Atlas) sim.Fence {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ready("atlas"); err != nil {
		return sim.DoneFence(err)
	}
	if a.Side() != d.side {
		return sim.DoneFence(fmt.Errorf("webgpu device: atlas side %d, want %d", a.Side(), d.side))
	}

	side := uint32(d.side)
	var err error
	a.Read(func(texels []float32, _ uint64) {
		err = d.Queue.WriteTexture(d.atlasTex.AsImageCopy(), wgpu.ToBytes(texels), &wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  side * atlas.TexelStride * 4,
			RowsPerImage: side,
		}, &wgpu.Extent3D{Width: side, Height: side, DepthOrArrayLayers: 1})
	})
	if err != nil {
		return sim.DoneFence(fmt.Errorf("webgpu device: upload atlas: %w", err))
	}
	return sim.DoneFence(nil)
}

// Update submits one frame. The returned fence polls the device.
func (d *Device) Update(u sim.Uniforms) sim.Fence {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ready("update"); err != nil {
		return sim.DoneFence(err)
	}
	if err := d.dispatch("update", d.updatePipeline, d.updateGroup, u); err != nil {
		return sim.DoneFence(err)
	}
	return &pollFence{d: d}
}

// ReadState copies the particle buffers into a staging buffer and maps it.
func (d *Device) ReadState(ctx context.Context, dst *sim.Store) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ready("readback"); err != nil {
		return err
	}
	n := d.params.Count
	if dst.Len() != n {
		return fmt.Errorf("webgpu device: readback into %d particles, have %d", dst.Len(), n)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	vecBytes := uint64(n) * core.Vec4Stride
	ageBytes := uint64(n) * 4
	encoder, err := d.Device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("readback: %w", err)
	}
	encoder.CopyBufferToBuffer(d.SpawnBuf, 0, d.stagingBuf, 0, vecBytes)
	encoder.CopyBufferToBuffer(d.OffsetBuf, 0, d.stagingBuf, vecBytes, vecBytes)
	encoder.CopyBufferToBuffer(d.AgeBuf, 0, d.stagingBuf, 2*vecBytes, ageBytes)
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("readback: %w", err)
	}
	d.Queue.Submit(cmd)

	var (
		status wgpu.BufferMapAsyncStatus
		mapped bool
	)
	size := d.stagingBuf.GetSize()
	d.stagingBuf.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
		mapped = s == wgpu.BufferMapAsyncStatusSuccess
	})
	d.Device.Poll(true, nil)
	if !mapped {
		return fmt.Errorf("webgpu device: map readback buffer: status %v", status)
	}

	data := d.stagingBuf.GetMappedRange(0, uint(size))
	core.UnpackVec4s(dst.Spawn, data[:vecBytes])
	core.UnpackVec4s(dst.Offset, data[vecBytes:2*vecBytes])
	core.UnpackFloats(dst.Age, data[2*vecBytes:])
	d.stagingBuf.Unmap()
	return nil
}

// Release frees the buffers and pipelines, and the device itself when it
// was created by NewHeadless.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	if d.SpawnBuf != nil {
		// let in-flight frames finish before their buffers go away
		d.Device.Poll(true, nil)
	}
	d.releaseResources()
	if d.owned {
		d.Device.Release()
		d.Adapter.Release()
		d.Instance.Release()
	}
	d.log.Debugf("webgpu device: released")
}

func (d *Device) releaseResources() {
	if d.initGroup != nil {
		d.initGroup.Release()
		d.initGroup = nil
	}
	if d.updateGroup != nil {
		d.updateGroup.Release()
		d.updateGroup = nil
	}
	if d.initPipeline != nil {
		d.initPipeline.Release()
		d.initPipeline = nil
	}
	if d.updatePipeline != nil {
		d.updatePipeline.Release()
		d.updatePipeline = nil
	}
	if d.atlasView != nil {
		d.atlasView.Release()
		d.atlasView = nil
	}
	if d.atlasTex != nil {
		d.atlasTex.Release()
		d.atlasTex = nil
	}
	for _, b := range []**wgpu.Buffer{&d.ParamsBuf, &d.SpawnBuf, &d.OffsetBuf, &d.AgeBuf, &d.stagingBuf} {
		if *b != nil {
			(*b).Release()
			*b = nil
		}
	}
}

// pollFence completes once the device queue has drained.
type pollFence struct {
	d *Device
}

func (f *pollFence) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.d.mu.Lock()
	defer f.d.mu.Unlock()
	if f.d.closed {
		return nil
	}
	f.d.Device.Poll(true, nil)
	return ctx.Err()
}

func (f *pollFence) Done() bool {
	f.d.mu.Lock()
	defer f.d.mu.Unlock()
	if f.d.closed {
		return true
	}
	return f.d.Device.Poll(false, nil)
}

var _ sim.Device = (*Device)(nil)
