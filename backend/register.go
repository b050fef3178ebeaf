package backend

import (
	// Registers the platform hal backends (Vulkan, Metal, DX12, GLES).
	_ "github.com/gogpu/wgpu/hal/allbackends"
)
