// Package backend selects the graphics API a chart renders with.
//
// Two tiers are probed in priority order:
//
//   - the explicit GPU tier (Vulkan, Metal, DX12), reported as KindWebGPU
//   - the fallback immediate-mode tier (OpenGL ES), reported as KindWebGL
//
// The first tier that yields a hal instance with at least one adapter wins.
// When neither does, Select fails with ErrNoCapableBackend and nothing stays
// allocated. The returned Selection carries a Strategy, which is the only place
// the render path asks per-tier questions (shader translation, surface format
// preference, present mode).
//
// # Usage
//
//	sel, err := backend.Select()
//	if err != nil {
//	    return err
//	}
//	defer sel.Release()
//	fmt.Println(sel.Kind) // "webgpu" or "webgl"
//
// Tests inject a lookup to simulate missing APIs:
//
//	sel, err := backend.Select(backend.WithLookup(func(gputypes.Backend) (hal.Backend, bool) {
//	    return nil, false
//	}))
//	// errors.Is(err, backend.ErrNoCapableBackend) == true
package backend
