package shaders

import (
	_ "embed"
)

//go:embed particles.wgsl
var ParticlesWGSL string

//go:embed sprite.wgsl
var SpriteWGSL string
