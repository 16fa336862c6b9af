package gpu

import (
	"fmt"

	"github.com/gekko3d/morphfield/morphrt/rt/core"
	"github.com/gekko3d/morphfield/morphrt/rt/shaders"

	"github.com/cogentcore/webgpu/wgpu"
)

// SpritePass draws one alpha-blended billboard per particle straight from
// the simulation buffers of a Device.
type SpritePass struct {
	Pipeline  *wgpu.RenderPipeline
	CameraBuf *wgpu.Buffer
	BindGroup *wgpu.BindGroup

	sim *Device
}

// NewSpritePass builds the sprite pipeline for the given color format. The
// device must already be allocated.
func NewSpritePass(d *Device, format wgpu.TextureFormat) (*SpritePass, error) {
	if d.SpawnBuf == nil {
		return nil, fmt.Errorf("sprite pass: device not allocated")
	}
	p := &SpritePass{sim: d}

	module, err := d.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Sprite VS/FS",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.SpriteWGSL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sprite shader module: %w", err)
	}
	defer module.Release()

	p.Pipeline, err = d.Device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "Sprite Pipeline",
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format: format,
				Blend: &wgpu.BlendState{
					Color: wgpu.BlendComponent{
						SrcFactor: wgpu.BlendFactorSrcAlpha,
						DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
						Operation: wgpu.BlendOperationAdd,
					},
					Alpha: wgpu.BlendComponent{
						SrcFactor: wgpu.BlendFactorOne,
						DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
						Operation: wgpu.BlendOperationAdd,
					},
				},
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology: wgpu.PrimitiveTopologyTriangleList,
			CullMode: wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sprite pipeline: %w", err)
	}

	p.CameraBuf, err = d.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "SpriteCamera",
		Size:  core.CameraUniformsSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		p.Release()
		return nil, fmt.Errorf("create sprite camera buffer: %w", err)
	}

	p.BindGroup, err = d.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: p.Pipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: d.ParamsBuf, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: d.SpawnBuf, Size: wgpu.WholeSize},
			{Binding: 2, Buffer: d.OffsetBuf, Size: wgpu.WholeSize},
			{Binding: 3, Buffer: d.AgeBuf, Size: wgpu.WholeSize},
			{Binding: 4, Buffer: p.CameraBuf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		p.Release()
		return nil, fmt.Errorf("failed to create sprite bind group: %w", err)
	}
	return p, nil
}

// UpdateCamera uploads the camera block for the next Draw.
func (p *SpritePass) UpdateCamera(cam *core.CameraState, width, height int) error {
	return p.sim.Queue.WriteBuffer(p.CameraBuf, 0, cam.PackCamera(width, height))
}

// Draw records the instanced sprite draw into an open render pass.
func (p *SpritePass) Draw(pass *wgpu.RenderPassEncoder) {
	pass.SetPipeline(p.Pipeline)
	pass.SetBindGroup(0, p.BindGroup, nil)
	pass.Draw(6, uint32(p.sim.Count()), 0, 0)
}

func (p *SpritePass) Release() {
	if p.BindGroup != nil {
		p.BindGroup.Release()
		p.BindGroup = nil
	}
	if p.CameraBuf != nil {
		p.CameraBuf.Release()
		p.CameraBuf = nil
	}
	if p.Pipeline != nil {
		p.Pipeline.Release()
		p.Pipeline = nil
	}
}
